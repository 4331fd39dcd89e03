package wanlib

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/wanpull/wanpull/pkg/logger"
)

// ManagerOpts configures a Manager.
type ManagerOpts struct {
	Fs            afero.Fs
	ClientFactory ClientFactory
	// Interfaces, when set, is queried on every Enqueue to validate the
	// target source ip.
	Interfaces       InterfaceLister
	DownloadDir      string
	DefaultRateLimit int64
	ChunkSize        int
	ProgressInterval time.Duration
	Retry            RetryPolicy
	Log              logger.Logger
	Handlers         *Handlers
	Bandwidth        BandwidthOptions
}

// EnqueueParams are the caller inputs of a new transfer.
type EnqueueParams struct {
	URL string
	// InterfaceID is the source ip of the interface to bind.
	InterfaceID     string
	InterfaceName   string
	DestinationPath string
	// RateLimit in bytes per second, 0 uses the default rate limit.
	RateLimit int64
}

// Manager is the caller-facing engine: one Registry and one Scheduler
// sharing one lock.
type Manager struct {
	reg    *Registry
	sched  *Scheduler
	bw     *Bandwidth
	c      *coreLock
	opts   ManagerOpts
	cancel context.CancelFunc
}

// NewManager creates an idle engine with an empty queue.
func NewManager(opts *ManagerOpts) *Manager {
	if opts == nil {
		opts = &ManagerOpts{}
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Log == nil {
		opts.Log = logger.NewNopLogger()
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	ctx, cancel := context.WithCancel(context.Background())
	bw := NewBandwidth(opts.Bandwidth)
	go bw.Run(ctx)
	reg := NewRegistry(RegistryOptions{
		Context:          ctx,
		Fs:               opts.Fs,
		ClientFactory:    opts.ClientFactory,
		ChunkSize:        opts.ChunkSize,
		ProgressInterval: opts.ProgressInterval,
		Retry:            opts.Retry,
		Log:              opts.Log,
		Handlers:         opts.Handlers,
		Bandwidth:        bw,
	})
	return &Manager{
		reg:    reg,
		sched:  NewScheduler(reg),
		bw:     bw,
		c:      reg.c,
		opts:   *opts,
		cancel: cancel,
	}
}

// Registry exposes the underlying registry.
func (m *Manager) Registry() *Registry { return m.reg }

// Scheduler exposes the underlying scheduler.
func (m *Manager) Scheduler() *Scheduler { return m.sched }

// Bandwidth returns per-interface and total throughput over the trailing
// window.
func (m *Manager) Bandwidth() BandwidthStats { return m.bw.Stats() }

// Enqueue validates p and appends a new request to the queue tail.
func (m *Manager) Enqueue(ctx context.Context, p EnqueueParams) (TransferRequest, error) {
	req, err := m.newRequest(ctx, p)
	if err != nil {
		return TransferRequest{}, err
	}
	m.c.lock()
	closed := m.reg.closed
	m.c.unlock()
	if closed {
		return TransferRequest{}, ErrEngineClosed
	}
	req = m.sched.Enqueue(req)
	m.opts.Log.Info("[%s] queued %s on %s, rate %s", req.ID.Short(), req.URL, req.InterfaceID, FormatRate(req.RateLimit))
	return req, nil
}

func (m *Manager) newRequest(ctx context.Context, p EnqueueParams) (TransferRequest, error) {
	if strings.TrimSpace(p.URL) == "" {
		return TransferRequest{}, ErrEmptyURL
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return TransferRequest{}, fmt.Errorf("invalid url: %w", err)
	}
	if !isHTTPScheme(strings.ToLower(u.Scheme)) || u.Host == "" {
		return TransferRequest{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, p.URL)
	}
	if p.RateLimit < 0 {
		return TransferRequest{}, fmt.Errorf("invalid rate limit %d", p.RateLimit)
	}
	name := p.InterfaceName
	if m.opts.Interfaces != nil {
		ifaces, err := m.opts.Interfaces.ListReachableInterfaces(ctx)
		if err != nil {
			return TransferRequest{}, fmt.Errorf("listing interfaces: %w", err)
		}
		found := false
		for _, iface := range ifaces {
			if iface.SourceIP == p.InterfaceID {
				found = true
				name = iface.Name
				break
			}
		}
		if !found {
			return TransferRequest{}, fmt.Errorf("%w: %s", ErrUnknownInterface, p.InterfaceID)
		}
	}
	rate := p.RateLimit
	if rate == 0 {
		rate = m.opts.DefaultRateLimit
	}
	return TransferRequest{
		ID:              NewTransferID(),
		URL:             p.URL,
		InterfaceName:   name,
		InterfaceID:     p.InterfaceID,
		DestinationPath: m.destination(p.DestinationPath),
		RateLimit:       rate,
	}, nil
}

// destination resolves an empty or relative path against the download
// directory. Directory destinations keep their trailing separator.
func (m *Manager) destination(p string) string {
	sep := string(os.PathSeparator)
	if p == "" {
		p = m.opts.DownloadDir
		if p == "" {
			p = "."
		}
		return strings.TrimSuffix(p, sep) + sep
	}
	if filepath.IsAbs(p) || m.opts.DownloadDir == "" {
		return p
	}
	dir := strings.HasSuffix(p, "/") || strings.HasSuffix(p, sep)
	p = filepath.Join(m.opts.DownloadDir, p)
	if dir {
		p += sep
	}
	return p
}

// Pause pauses an active transfer. Queued transfers stay queued.
func (m *Manager) Pause(id TransferID) (TransferState, error) {
	m.c.lock()
	defer m.c.unlock()
	if m.sched.indexLocked(id) >= 0 {
		return StateQueued, nil
	}
	return m.reg.pauseLocked(id)
}

// Resume resumes a paused transfer. Queued transfers wait for StartAll.
func (m *Manager) Resume(id TransferID) (TransferState, error) {
	m.c.lock()
	defer m.c.unlock()
	if m.sched.indexLocked(id) >= 0 {
		return StateQueued, nil
	}
	return m.reg.resumeLocked(id)
}

// Cancel abandons a transfer, whether admitted or still queued.
func (m *Manager) Cancel(id TransferID) (TransferState, error) {
	m.c.lock()
	defer m.c.unlock()
	if i := m.sched.indexLocked(id); i >= 0 {
		req := m.sched.queue[i].Request
		m.sched.removeLocked(id)
		m.reg.cancelQueuedLocked(req)
		return StateCancelled, nil
	}
	return m.reg.cancelLocked(id)
}

// MoveToQueue sends a paused transfer back to the queue tail.
func (m *Manager) MoveToQueue(id TransferID) (TransferState, error) {
	return m.sched.MoveActiveToQueue(id)
}

func (m *Manager) ReorderQueue(from, to int) bool { return m.sched.Reorder(from, to) }
func (m *Manager) StartAll() []TransferID        { return m.sched.StartAll() }
func (m *Manager) PauseAll() []TransferID        { return m.sched.PauseAll() }
func (m *Manager) Queue() []QueueEntry           { return m.sched.Queue() }
func (m *Manager) RemoveQueued(id TransferID) bool {
	return m.sched.Remove(id)
}

// Status returns the record of an admitted, queued or recently finished
// transfer.
func (m *Manager) Status(id TransferID) (TransferRecord, error) {
	m.c.lock()
	defer m.c.unlock()
	if i := m.sched.indexLocked(id); i >= 0 {
		return queuedRecord(m.sched.queue[i]), nil
	}
	return m.reg.queryLocked(id)
}

// List returns admitted transfers followed by queued ones.
func (m *Manager) List() []TransferRecord {
	m.c.lock()
	defer m.c.unlock()
	out := m.reg.listLocked()
	for _, e := range m.sched.queue {
		out = append(out, queuedRecord(e))
	}
	return out
}

func queuedRecord(e QueueEntry) TransferRecord {
	return TransferRecord{
		Request:          e.Request,
		State:            StateQueued,
		BytesTransferred: e.Request.ResumeOffset,
		TotalBytes:       e.Request.TotalBytes,
	}
}

// Snapshot returns the persistable state with current offsets.
func (m *Manager) Snapshot() Snapshot {
	m.c.lock()
	defer m.c.unlock()
	snap := Snapshot{Active: m.reg.snapshotLocked()}
	for _, e := range m.sched.queue {
		snap.Queued = append(snap.Queued, e.Request)
	}
	return snap
}

// Restore queues a persisted snapshot without starting anything.
func (m *Manager) Restore(snap Snapshot) int {
	n := Restore(m.sched, snap)
	if n > 0 {
		m.opts.Log.Info("restored %d transfer(s) (%d previously active)", n, len(snap.Active))
	}
	return n
}

// Shutdown stops every session keeping partial files, and waits for them
// until ctx is done. Snapshot still reports the stopped transfers.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.c.lock()
	done := m.reg.stopAllLocked()
	m.c.unlock()
	defer m.cancel()
	for _, d := range done {
		select {
		case <-d:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
