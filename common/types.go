package common

import (
	"time"

	"github.com/wanpull/wanpull/pkg/wanlib"
)

type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"build_type,omitempty"`
}

type InterfacesParams struct {
	All bool `json:"all,omitempty"`
}

type InterfacesResponse struct {
	Interfaces []wanlib.Interface `json:"interfaces"`
}

type AddParams struct {
	URL             string `json:"url"`
	InterfaceIP     string `json:"interface_ip"`
	InterfaceName   string `json:"interface_name,omitempty"`
	DestinationPath string `json:"destination_path,omitempty"`
	// RateLimit accepts a human readable rate such as "500K" or "2MB".
	RateLimit string `json:"rate_limit,omitempty"`
}

type AddResponse struct {
	ID      wanlib.TransferID      `json:"id"`
	State   wanlib.TransferState   `json:"state"`
	Request wanlib.TransferRequest `json:"request"`
}

type InputTransferID struct {
	ID wanlib.TransferID `json:"id"`
}

type StateResponse struct {
	ID    wanlib.TransferID    `json:"id"`
	State wanlib.TransferState `json:"state"`
}

type ListResponse struct {
	Transfers []wanlib.TransferRecord `json:"transfers"`
}

type QueueResponse struct {
	Entries []wanlib.QueueEntry `json:"entries"`
}

type QueueMoveParams struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type BoolResponse struct {
	OK bool `json:"ok"`
}

type IDsResponse struct {
	IDs []wanlib.TransferID `json:"ids"`
}

type HistoryParams struct {
	Limit int `json:"limit,omitempty"`
}

// HistoryEntry is one finished transfer as stored by the history database.
type HistoryEntry struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	InterfaceName string    `json:"interface_name,omitempty"`
	InterfaceIP   string    `json:"interface_ip"`
	Path          string    `json:"path,omitempty"`
	Outcome       string    `json:"outcome"`
	Reason        string    `json:"reason,omitempty"`
	Bytes         int64     `json:"bytes"`
	FinishedAt    time.Time `json:"finished_at"`
}

type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

type TriggerAddParams struct {
	Action string `json:"action"`
	// Expr is either a five field cron expression or an RFC 3339 timestamp.
	Expr string `json:"expr"`
}

type TriggerInfo struct {
	ID       string    `json:"id"`
	Action   string    `json:"action"`
	Expr     string    `json:"expr"`
	Cron     bool      `json:"cron"`
	NextFire time.Time `json:"next_fire"`
}

type TriggerListResponse struct {
	Triggers []TriggerInfo `json:"triggers"`
}

type TriggerRemoveParams struct {
	ID string `json:"id"`
}

type SaveResponse struct {
	Path   string `json:"path"`
	Active int    `json:"active"`
	Queued int    `json:"queued"`
}
