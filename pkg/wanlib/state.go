package wanlib

import "fmt"

// TransferState is the lifecycle state of a transfer.
type TransferState int

const (
	StateQueued TransferState = iota
	StateActive
	StatePaused
	StateCompleted
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateQueued:    "queued",
	StateActive:    "active",
	StatePaused:    "paused",
	StateCompleted: "completed",
	StateFailed:    "failed",
	StateCancelled: "cancelled",
}

func (s TransferState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("TransferState(%d)", int(s))
	}
	return stateNames[s]
}

// IsTerminal reports whether no further transition is possible.
func (s TransferState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s TransferState) CanTransition(next TransferState) bool {
	switch s {
	case StateQueued:
		return next == StateActive || next == StatePaused || next == StateFailed || next == StateCancelled
	case StateActive:
		return next == StatePaused || next.IsTerminal()
	case StatePaused:
		// a session can still finish its last chunk after being paused
		return next == StateActive || next == StateQueued || next.IsTerminal()
	}
	return false
}

func (s TransferState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TransferState) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = TransferState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown transfer state %q", string(b))
}
