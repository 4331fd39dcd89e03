package wanlib

import (
	"context"
	"sync"
)

// pauseGate is the cooperative pause flag owned by one session.
// While paused, pausedC is closed and wait blocks until resume.
type pauseGate struct {
	mu      sync.Mutex
	paused  bool
	pausedC chan struct{}
	resumeC chan struct{}
}

func newPauseGate() *pauseGate {
	return &pauseGate{
		pausedC: make(chan struct{}),
		resumeC: make(chan struct{}),
	}
}

func (g *pauseGate) pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return false
	}
	g.paused = true
	close(g.pausedC)
	g.resumeC = make(chan struct{})
	return true
}

func (g *pauseGate) resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return false
	}
	g.paused = false
	close(g.resumeC)
	g.pausedC = make(chan struct{})
	return true
}

func (g *pauseGate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// pausing returns a channel that is closed once the gate is paused.
func (g *pauseGate) pausing() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pausedC
}

// wait blocks while the gate is paused. It reports whether it blocked.
func (g *pauseGate) wait(ctx context.Context) (bool, error) {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return false, ctx.Err()
	}
	resumeC := g.resumeC
	g.mu.Unlock()
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-resumeC:
		return true, nil
	}
}
