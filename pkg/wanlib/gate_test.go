package wanlib

import (
	"context"
	"testing"
	"time"
)

func TestPauseGate(t *testing.T) {
	g := newPauseGate()
	if blocked, err := g.wait(context.Background()); blocked || err != nil {
		t.Fatalf("wait on open gate = %v, %v", blocked, err)
	}
	if !g.pause() {
		t.Fatalf("first pause should report a change")
	}
	if g.pause() {
		t.Fatalf("second pause should be a no-op")
	}
	select {
	case <-g.pausing():
	default:
		t.Fatalf("pausing channel not closed while paused")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		blocked, err := g.wait(context.Background())
		if !blocked || err != nil {
			t.Errorf("wait = %v, %v", blocked, err)
		}
	}()
	select {
	case <-done:
		t.Fatalf("wait returned while paused")
	case <-time.After(30 * time.Millisecond):
	}
	g.resume()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("wait did not return after resume")
	}
	if g.isPaused() {
		t.Fatalf("gate still paused")
	}
	select {
	case <-g.pausing():
		t.Fatalf("pausing channel closed after resume")
	default:
	}
}

func TestPauseGateCancel(t *testing.T) {
	g := newPauseGate()
	g.pause()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.wait(ctx); err != context.Canceled {
		t.Fatalf("wait error = %v, want context.Canceled", err)
	}
}
