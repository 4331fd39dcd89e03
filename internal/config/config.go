// Package config loads the daemon configuration from the environment. A .env
// file in the working directory is read first when present; variables
// already set in the process environment win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/wanpull/wanpull/common"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

const (
	DEF_CONFIG_DIR_NAME   = ".multiwan_downloader"
	DEF_LISTEN_ADDR       = "127.0.0.1:7331"
	DEF_AUTOSAVE_INTERVAL = 30 * time.Second
	DEF_BACKUP_KEEP       = 10
	DEF_PROBE_URL         = "http://httpbin.org/ip"
	DEF_PROBE_TIMEOUT     = 3 * time.Second
	STATE_FILE_NAME       = "download_state.json"
	HISTORY_FILE_NAME     = "history.db"
	BACKUP_DIR_NAME       = "backups"
)

// Config is the resolved daemon configuration.
type Config struct {
	ConfigDir        string
	ListenAddr       string
	RPCSecret        string
	DownloadDir      string
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	ChunkSize        int
	MaxRetries       int
	RetryDelay       time.Duration
	AutosaveInterval time.Duration
	BackupKeep       int
	ProbeURL         string
	ProbeTimeout     time.Duration
	DefaultRate      int64
	Proxy            string
	InsecureTLS      bool
	BindDevice       bool
	LogFile          string
	ScheduleFile     string
	Debug            bool
}

// Load reads the optional .env file and the WANPULL_* variables. Invalid
// values are reported with the variable name; missing ones take defaults.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore error if .env not found
	return fromEnv()
}

// LoadFile is Load with an explicit env file, which must exist.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	home, _ := os.UserHomeDir()
	p := &parser{}
	c := &Config{
		ConfigDir:        p.str(common.ConfigDirEnv, filepath.Join(home, DEF_CONFIG_DIR_NAME)),
		ListenAddr:       p.str(common.ListenAddrEnv, DEF_LISTEN_ADDR),
		RPCSecret:        os.Getenv(common.RPCSecretEnv),
		DownloadDir:      p.str(common.DownloadDirEnv, filepath.Join(home, "Downloads")),
		ConnectTimeout:   p.duration(common.ConnectTimeoutEnv, wanlib.DEF_CONNECT_TIMEOUT),
		ReadTimeout:      p.duration(common.ReadTimeoutEnv, wanlib.DEF_READ_TIMEOUT),
		ChunkSize:        p.integer(common.ChunkSizeEnv, int(wanlib.DEF_CHUNK_SIZE)),
		MaxRetries:       p.integer(common.MaxRetriesEnv, wanlib.DEF_MAX_RETRIES),
		RetryDelay:       p.duration(common.RetryDelayEnv, wanlib.DEF_BASE_DELAY),
		AutosaveInterval: p.duration(common.AutosaveIntervalEnv, DEF_AUTOSAVE_INTERVAL),
		BackupKeep:       p.integer(common.BackupKeepEnv, DEF_BACKUP_KEEP),
		ProbeURL:         p.str(common.ProbeURLEnv, DEF_PROBE_URL),
		ProbeTimeout:     p.duration(common.ProbeTimeoutEnv, DEF_PROBE_TIMEOUT),
		DefaultRate:      p.rate(common.DefaultRateEnv),
		Proxy:            os.Getenv(common.ProxyEnv),
		InsecureTLS:      p.boolean(common.InsecureTLSEnv),
		BindDevice:       p.boolean(common.BindDeviceEnv),
		Debug:            p.boolean(common.DebugEnv),
	}
	c.LogFile = os.Getenv(common.LogFileEnv)
	c.ScheduleFile = os.Getenv(common.ScheduleFileEnv)
	if p.err != nil {
		return nil, p.err
	}
	if c.ChunkSize <= 0 {
		return nil, fmt.Errorf("config: %s must be positive", common.ChunkSizeEnv)
	}
	if c.MaxRetries < 0 {
		return nil, fmt.Errorf("config: %s must not be negative", common.MaxRetriesEnv)
	}
	return c, nil
}

// StatePath is the persisted queue snapshot location.
func (c *Config) StatePath() string { return filepath.Join(c.ConfigDir, STATE_FILE_NAME) }

// BackupDir holds timestamped copies of the state file.
func (c *Config) BackupDir() string { return filepath.Join(c.ConfigDir, BACKUP_DIR_NAME) }

// HistoryPath is the sqlite database of finished transfers.
func (c *Config) HistoryPath() string { return filepath.Join(c.ConfigDir, HISTORY_FILE_NAME) }

// ClientOptions maps the network settings onto the bound http client.
func (c *Config) ClientOptions() *wanlib.ClientOptions {
	return &wanlib.ClientOptions{
		ConnectTimeout:     c.ConnectTimeout,
		ReadTimeout:        c.ReadTimeout,
		InsecureSkipVerify: c.InsecureTLS,
		ProxyURL:           c.Proxy,
		BindDevice:         c.BindDevice,
	}
}

// RetryPolicy returns the default policy with the configured limits.
func (c *Config) RetryPolicy() wanlib.RetryPolicy {
	p := wanlib.DefaultRetryPolicy()
	p.MaxRetries = c.MaxRetries
	p.BaseDelay = c.RetryDelay
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// parser keeps the first error so fromEnv can read every key in one pass.
type parser struct {
	err error
}

func (p *parser) fail(key, val string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: invalid %s=%q: %w", key, val, err)
	}
}

func (p *parser) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// bare numbers are seconds
		n, nerr := strconv.Atoi(v)
		if nerr != nil {
			p.fail(key, v, err)
			return def
		}
		d = time.Duration(n) * time.Second
	}
	if d < 0 {
		p.fail(key, v, fmt.Errorf("negative duration"))
		return def
	}
	return d
}

func (p *parser) boolean(key string) bool {
	v := os.Getenv(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return false
	}
	return b
}

func (p *parser) rate(key string) int64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	r, err := wanlib.ParseRate(v)
	if err != nil {
		p.fail(key, v, err)
		return 0
	}
	return r
}
