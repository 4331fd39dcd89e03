package wanlib

import "sync"

type (
	// ProgressHandlerFunc receives coalesced progress of an active transfer.
	ProgressHandlerFunc func(p Progress)
	// TerminalHandlerFunc receives the single terminal event of a transfer.
	TerminalHandlerFunc func(ev TerminalEvent)
	// StateHandlerFunc receives every state transition.
	StateHandlerFunc func(ch StateChange)
	// WarningHandlerFunc receives non-fatal conditions, e.g. ErrResumeUnsupported.
	WarningHandlerFunc func(id TransferID, err error)
)

// Handlers are invoked outside of the engine lock, so they may call back
// into the engine.
type Handlers struct {
	ProgressHandler ProgressHandlerFunc
	TerminalHandler TerminalHandlerFunc
	StateHandler    StateHandlerFunc
	WarningHandler  WarningHandlerFunc
}

func (h *Handlers) setDefault() {
	if h.ProgressHandler == nil {
		h.ProgressHandler = func(Progress) {}
	}
	if h.TerminalHandler == nil {
		h.TerminalHandler = func(TerminalEvent) {}
	}
	if h.StateHandler == nil {
		h.StateHandler = func(StateChange) {}
	}
	if h.WarningHandler == nil {
		h.WarningHandler = func(TransferID, error) {}
	}
}

// coreLock is the single lock shared by the registry and the scheduler.
// Callbacks registered while holding it run right after unlock, in order,
// on the unlocking goroutine.
type coreLock struct {
	mu      sync.Mutex
	pending []func()
}

func (c *coreLock) lock() { c.mu.Lock() }

func (c *coreLock) unlock() {
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// afterUnlock must be called with the lock held.
func (c *coreLock) afterUnlock(fn func()) {
	c.pending = append(c.pending, fn)
}
