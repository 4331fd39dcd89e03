package wanlib

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Interface is a network path identified by its local source ip.
type Interface struct {
	Name      string `json:"name"`
	SourceIP  string `json:"source_ip"`
	Up        bool   `json:"up"`
	Reachable bool   `json:"reachable"`
}

// InterfaceLister supplies a fresh snapshot of usable interfaces.
type InterfaceLister interface {
	ListReachableInterfaces(ctx context.Context) ([]Interface, error)
}

// TransferID identifies a transfer for its whole lifetime.
type TransferID string

// NewTransferID returns a random transfer id.
func NewTransferID() TransferID {
	return TransferID(uuid.NewString())
}

func (id TransferID) String() string { return string(id) }

// Short returns the first 8 characters of the id, for display.
func (id TransferID) Short() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// TransferRequest describes one url-to-file download bound to one interface.
// DestinationPath is either the target file or, when it ends with a path
// separator or names an existing directory, the directory the resolved file
// name is placed in.
type TransferRequest struct {
	ID              TransferID `json:"id"`
	URL             string     `json:"url"`
	InterfaceName   string     `json:"interface_name,omitempty"`
	InterfaceID     string     `json:"interface_ip"`
	DestinationPath string     `json:"destination_path"`
	RateLimit       int64      `json:"rate_limit,omitempty"`
	ResumeOffset    int64      `json:"resume_offset,omitempty"`
	TotalBytes      int64      `json:"total_bytes,omitempty"`
}

// TransferRecord is the registry's view of a transfer that was admitted.
type TransferRecord struct {
	Request          TransferRequest `json:"request"`
	State            TransferState   `json:"state"`
	BytesTransferred int64           `json:"bytes_transferred"`
	TotalBytes       int64           `json:"total_bytes"`
	RateBytesPerSec  float64         `json:"rate_bytes_per_sec"`
	StartedAt        time.Time       `json:"started_at"`
	LastProgressAt   time.Time       `json:"last_progress_at"`
	Path             string          `json:"path,omitempty"`
	Err              string          `json:"error,omitempty"`
}

// QueueEntry is one element of the scheduler's ordered queue.
type QueueEntry struct {
	Request  TransferRequest `json:"request"`
	QueuedAt time.Time       `json:"queued_at"`
}

// Progress is emitted at a bounded cadence while a transfer streams.
type Progress struct {
	ID               TransferID `json:"id"`
	BytesTransferred int64      `json:"bytes_transferred"`
	TotalBytes       int64      `json:"total_bytes"`
	RateBytesPerSec  float64    `json:"rate_bytes_per_sec"`
}

// Outcome is the terminal result of a transfer.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// State maps the outcome to its terminal state.
func (o Outcome) State() TransferState {
	switch o {
	case OutcomeCompleted:
		return StateCompleted
	case OutcomeCancelled:
		return StateCancelled
	}
	return StateFailed
}

// TerminalEvent is reported exactly once per transfer.
type TerminalEvent struct {
	ID               TransferID      `json:"id"`
	Outcome          Outcome         `json:"outcome"`
	Path             string          `json:"path,omitempty"`
	Reason           string          `json:"reason,omitempty"`
	Request          TransferRequest `json:"request"`
	BytesTransferred int64           `json:"bytes_transferred"`
	FinishedAt       time.Time       `json:"finished_at"`
}

// StateChange is emitted whenever a transfer moves between states.
type StateChange struct {
	ID   TransferID    `json:"id"`
	From TransferState `json:"from"`
	To   TransferState `json:"to"`
}
