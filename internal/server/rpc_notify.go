package server

import (
	"context"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"

	"github.com/wanpull/wanpull/common"
	"github.com/wanpull/wanpull/pkg/logger"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

const notifyTimeout = 2 * time.Second

// RPCNotifier maintains the set of connected jrpc2 WebSocket servers and
// broadcasts push notifications to all of them.
type RPCNotifier struct {
	mu      sync.RWMutex
	servers map[*jrpc2.Server]struct{}
	log     logger.Logger
}

func NewRPCNotifier(l logger.Logger) *RPCNotifier {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &RPCNotifier{
		servers: make(map[*jrpc2.Server]struct{}),
		log:     l,
	}
}

func (n *RPCNotifier) Register(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[srv] = struct{}{}
}

func (n *RPCNotifier) Unregister(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.servers, srv)
}

// Broadcast sends a push notification to every registered server. Servers
// that fail to receive it are dropped.
func (n *RPCNotifier) Broadcast(method common.NotifyType, params any) {
	n.mu.RLock()
	servers := make([]*jrpc2.Server, 0, len(n.servers))
	for srv := range n.servers {
		servers = append(servers, srv)
	}
	n.mu.RUnlock()

	var failed []*jrpc2.Server
	for _, srv := range servers {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		err := srv.Notify(ctx, string(method), params)
		cancel()
		if err != nil {
			n.log.Warning("rpc push %s failed: %v", method, err)
			failed = append(failed, srv)
		}
	}

	if len(failed) > 0 {
		n.mu.Lock()
		for _, srv := range failed {
			delete(n.servers, srv)
		}
		n.mu.Unlock()
	}
}

// Count returns the number of registered servers.
func (n *RPCNotifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.servers)
}

// Handlers returns engine handlers that forward every event to the
// connected clients. next, when non-nil, is called first for each event.
func (n *RPCNotifier) Handlers(next *wanlib.Handlers) *wanlib.Handlers {
	if next == nil {
		next = &wanlib.Handlers{}
	}
	return &wanlib.Handlers{
		ProgressHandler: func(p wanlib.Progress) {
			if next.ProgressHandler != nil {
				next.ProgressHandler(p)
			}
			n.Broadcast(common.NotifyProgress, p)
		},
		TerminalHandler: func(ev wanlib.TerminalEvent) {
			if next.TerminalHandler != nil {
				next.TerminalHandler(ev)
			}
			n.Broadcast(common.NotifyTerminal, ev)
		},
		StateHandler: func(ch wanlib.StateChange) {
			if next.StateHandler != nil {
				next.StateHandler(ch)
			}
			n.Broadcast(common.NotifyState, ch)
		},
		WarningHandler: next.WarningHandler,
	}
}
