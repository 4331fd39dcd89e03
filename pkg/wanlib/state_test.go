package wanlib

import (
	"encoding/json"
	"testing"
)

func TestTransferStateTransitions(t *testing.T) {
	tests := []struct {
		from, to TransferState
		ok       bool
	}{
		{StateQueued, StateActive, true},
		{StateQueued, StateCompleted, false},
		{StateActive, StatePaused, true},
		{StateActive, StateQueued, false},
		{StatePaused, StateActive, true},
		{StatePaused, StateQueued, true},
		{StatePaused, StateCancelled, true},
		{StateCompleted, StateActive, false},
		{StateCancelled, StateQueued, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestTransferStateJSON(t *testing.T) {
	b, err := json.Marshal(map[string]TransferState{"s": StatePaused})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"s":"paused"}` {
		t.Fatalf("json = %s", b)
	}
	var out map[string]TransferState
	if err := json.Unmarshal(b, &out); err != nil || out["s"] != StatePaused {
		t.Fatalf("Unmarshal = %v, %v", out, err)
	}
	var s TransferState
	if err := s.UnmarshalText([]byte("bogus")); err == nil {
		t.Fatalf("unknown state accepted")
	}
	if !StateFailed.IsTerminal() || StatePaused.IsTerminal() {
		t.Fatalf("IsTerminal mismatch")
	}
}
