package common

// RPC method names served by the daemon.
const (
	MethodVersion = "system.getVersion"

	MethodInterfacesList = "interfaces.list"

	MethodDownloadAdd     = "download.add"
	MethodDownloadPause   = "download.pause"
	MethodDownloadResume  = "download.resume"
	MethodDownloadCancel  = "download.cancel"
	MethodDownloadRequeue = "download.requeue"
	MethodDownloadStatus  = "download.status"
	MethodDownloadList    = "download.list"

	MethodQueueList     = "queue.list"
	MethodQueueMove     = "queue.move"
	MethodQueueRemove   = "queue.remove"
	MethodQueueStartAll = "queue.startAll"
	MethodQueuePauseAll = "queue.pauseAll"

	MethodHistoryList  = "history.list"
	MethodHistoryClear = "history.clear"

	MethodTriggerAdd    = "trigger.add"
	MethodTriggerList   = "trigger.list"
	MethodTriggerRemove = "trigger.remove"

	MethodStateSave = "state.save"

	MethodStatsBandwidth = "stats.bandwidth"
)

// NotifyType names a server push sent over the websocket endpoint.
type NotifyType string

const (
	NotifyProgress NotifyType = "transfer.progress"
	NotifyTerminal NotifyType = "transfer.terminal"
	NotifyState    NotifyType = "transfer.state"
)

// HTTP endpoints.
const (
	RPCPath       = "/jsonrpc"
	WebSocketPath = "/jsonrpc/ws"
)

// Trigger actions.
const (
	ActionStartAll = "start_all"
	ActionPauseAll = "pause_all"
)
