// Package common provides the constants and RPC payload types shared by the
// wanpull daemon and its command line client.
package common

// Environment variable names for configuration.
const (
	// ConfigDirEnv overrides the directory holding state, history and logs.
	ConfigDirEnv = "WANPULL_CONFIG_DIR"

	// ListenAddrEnv is the host:port the daemon's RPC endpoint binds to.
	ListenAddrEnv = "WANPULL_LISTEN_ADDR"

	// RPCSecretEnv is the bearer token required by the RPC endpoint.
	RPCSecretEnv = "WANPULL_RPC_SECRET"

	DownloadDirEnv      = "WANPULL_DOWNLOAD_DIR"
	ConnectTimeoutEnv   = "WANPULL_CONNECT_TIMEOUT"
	ReadTimeoutEnv      = "WANPULL_READ_TIMEOUT"
	ChunkSizeEnv        = "WANPULL_CHUNK_SIZE"
	MaxRetriesEnv       = "WANPULL_MAX_RETRIES"
	RetryDelayEnv       = "WANPULL_RETRY_DELAY"
	AutosaveIntervalEnv = "WANPULL_AUTOSAVE_INTERVAL"
	BackupKeepEnv       = "WANPULL_BACKUP_KEEP"
	ProbeURLEnv         = "WANPULL_PROBE_URL"
	ProbeTimeoutEnv     = "WANPULL_PROBE_TIMEOUT"
	DefaultRateEnv      = "WANPULL_DEFAULT_RATE"
	ProxyEnv            = "WANPULL_PROXY"
	InsecureTLSEnv      = "WANPULL_INSECURE_TLS"

	// BindDeviceEnv enables SO_BINDTODEVICE in addition to source address
	// binding. Linux only.
	BindDeviceEnv = "WANPULL_BIND_DEVICE"

	LogFileEnv      = "WANPULL_LOG_FILE"
	ScheduleFileEnv = "WANPULL_SCHEDULE_FILE"

	// DebugEnv enables verbose logging.
	DebugEnv = "WANPULL_DEBUG"
)
