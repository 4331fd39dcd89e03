package wancli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wanpull/wanpull/common"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

func TestWatchDeliversEvents(t *testing.T) {
	d := newDaemon(t)
	c := newClient(t, d.addr, secret)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ready := make(chan struct{})
	terminal := make(chan wanlib.TerminalEvent, 1)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- c.Watch(ctx, NotifyHandlers{
			Ready: func() { close(ready) },
			Terminal: func(ev wanlib.TerminalEvent) {
				select {
				case terminal <- ev:
				default:
				}
			},
		})
	}()

	select {
	case <-ready:
	case err := <-watchErr:
		t.Fatalf("Watch returned early: %v", err)
	case <-ctx.Done():
		t.Fatal("watch never became ready")
	}

	added, err := c.Add(ctx, &common.AddParams{URL: d.target + "/w.bin", InterfaceIP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := c.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	select {
	case ev := <-terminal:
		if ev.ID != added.ID || ev.Outcome != wanlib.OutcomeCompleted {
			t.Fatalf("unexpected terminal event %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no terminal notification")
	}

	cancel()
	select {
	case err := <-watchErr:
		if err != nil {
			t.Fatalf("Watch after cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchRejectsWrongSecret(t *testing.T) {
	d := newDaemon(t)
	c := newClient(t, d.addr, "nope")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Watch(ctx, NotifyHandlers{})
	if err == nil || errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected dial error, got %v", err)
	}
}
