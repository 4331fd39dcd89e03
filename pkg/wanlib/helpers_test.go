package wanlib

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// gatedServer serves a fixed body per path but holds every GET until the
// path is released.
type gatedServer struct {
	*httptest.Server
	mu       sync.Mutex
	gates    map[string]chan struct{}
	body     []byte
	released bool
}

func newGatedServer(t *testing.T, body []byte) *gatedServer {
	t.Helper()
	g := &gatedServer{gates: make(map[string]chan struct{}), body: body}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(func() {
		g.releaseAll()
		g.Close()
	})
	return g
}

func (g *gatedServer) gate(path string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[path]
	if !ok {
		ch = make(chan struct{})
		if g.released {
			close(ch)
		}
		g.gates[path] = ch
	}
	return ch
}

func (g *gatedServer) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Length", strconv.Itoa(len(g.body)))
	if r.Method != http.MethodGet {
		return
	}
	select {
	case <-g.gate(r.URL.Path):
	case <-r.Context().Done():
		return
	}
	w.Write(g.body)
}

func (g *gatedServer) release(path string) {
	ch := g.gate(path)
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func (g *gatedServer) releaseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = true
	for _, ch := range g.gates {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
}

type testEngine struct {
	reg       *Registry
	sched     *Scheduler
	fs        afero.Fs
	terminals chan TerminalEvent
}

func newTestEngine(t *testing.T, client *http.Client) *testEngine {
	t.Helper()
	te := &testEngine{fs: afero.NewMemMapFs(), terminals: make(chan TerminalEvent, 64)}
	te.reg = NewRegistry(RegistryOptions{
		Fs:            te.fs,
		ClientFactory: func(Interface) (*http.Client, error) { return client, nil },
		Retry:         fastRetry(),
		Handlers: &Handlers{
			TerminalHandler: func(ev TerminalEvent) { te.terminals <- ev },
		},
	})
	te.sched = NewScheduler(te.reg)
	return te
}

func (te *testEngine) waitTerminal(t *testing.T, id TransferID) TerminalEvent {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-te.terminals:
			if ev.ID == id {
				return ev
			}
		case <-timeout:
			t.Fatalf("no terminal event for %s", id)
		}
	}
}

// admittedPerInterface counts admitted transfers per interface under the
// engine lock.
func (te *testEngine) admittedPerInterface() map[string]int {
	te.reg.c.lock()
	defer te.reg.c.unlock()
	out := make(map[string]int)
	for _, e := range te.reg.entries {
		if !e.stopped {
			out[e.rec.Request.InterfaceID]++
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func req(base, path, iface string, size int) TransferRequest {
	return TransferRequest{
		URL:             base + path,
		InterfaceID:     iface,
		DestinationPath: "/dl" + path,
		TotalBytes:      int64(size),
	}
}
