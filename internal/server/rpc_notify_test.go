package server

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"

	"github.com/wanpull/wanpull/common"
	"github.com/wanpull/wanpull/pkg/logger"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

// newPushServer starts a push-capable jrpc2 server over an in-memory pipe.
// The returned client channel must be drained for pushes to complete.
func newPushServer(t *testing.T) (channel.Channel, *jrpc2.Server) {
	t.Helper()
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	cli := channel.Line(cr, cw)
	srv := jrpc2.NewServer(handler.Map{}, &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(channel.Line(sr, sw))
	t.Cleanup(func() {
		cli.Close()
		_ = srv.Wait()
	})
	return cli, srv
}

func TestRPCNotifierRegister(t *testing.T) {
	n := NewRPCNotifier(nil)
	_, srv := newPushServer(t)
	n.Register(srv)
	if n.Count() != 1 {
		t.Fatalf("expected 1 server, got %d", n.Count())
	}
	n.Unregister(srv)
	n.Unregister(srv)
	if n.Count() != 0 {
		t.Fatalf("expected 0 servers, got %d", n.Count())
	}
}

func TestRPCNotifierBroadcastNoServers(t *testing.T) {
	NewRPCNotifier(nil).Broadcast(common.NotifyProgress, wanlib.Progress{ID: "x"})
}

func TestRPCNotifierHandlersForward(t *testing.T) {
	n := NewRPCNotifier(logger.NewMockLogger())
	cli, srv := newPushServer(t)
	n.Register(srv)

	got := make(chan []byte, 1)
	go func() {
		data, _ := cli.Recv()
		got <- data
	}()

	var seen wanlib.TerminalEvent
	h := n.Handlers(&wanlib.Handlers{
		TerminalHandler: func(ev wanlib.TerminalEvent) { seen = ev },
	})
	h.TerminalHandler(wanlib.TerminalEvent{ID: "t1", Outcome: wanlib.OutcomeCompleted})
	if seen.ID != "t1" {
		t.Fatal("wrapped handler not called")
	}

	select {
	case data := <-got:
		var msg struct {
			Method string               `json:"method"`
			Params wanlib.TerminalEvent `json:"params"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if msg.Method != string(common.NotifyTerminal) || msg.Params.ID != "t1" || msg.Params.Outcome != wanlib.OutcomeCompleted {
			t.Fatalf("unexpected notification %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification not received")
	}
}

func TestRPCNotifierDropsDeadServers(t *testing.T) {
	n := NewRPCNotifier(logger.NewMockLogger())
	cli, srv := newPushServer(t)
	n.Register(srv)
	cli.Close()
	_ = srv.Wait()

	n.Broadcast(common.NotifyState, wanlib.StateChange{ID: "x", From: wanlib.StateQueued, To: wanlib.StateActive})
	if n.Count() != 0 {
		t.Fatalf("dead server still registered: %d", n.Count())
	}
}
