// Package daemon wires the wanpull components into one long running
// process: the download engine, interface discovery, persisted state,
// history, timed triggers and the RPC listener.
package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/wanpull/wanpull/common"
	"github.com/wanpull/wanpull/internal/config"
	"github.com/wanpull/wanpull/internal/history"
	"github.com/wanpull/wanpull/internal/netif"
	"github.com/wanpull/wanpull/internal/scheduler"
	"github.com/wanpull/wanpull/internal/server"
	"github.com/wanpull/wanpull/internal/state"
	"github.com/wanpull/wanpull/pkg/logger"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

// Sentinel errors for the daemon runner.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running daemon.
	ErrAlreadyRunning = errors.New("daemon is already running")

	// ErrNotRunning is returned when Shutdown() is called on a stopped daemon.
	ErrNotRunning = errors.New("daemon is not running")

	// ErrShutdownTimeout is returned when shutdown exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// DefaultShutdownTimeout bounds how long stopping sessions may take.
const DefaultShutdownTimeout = 10 * time.Second

// BuildInfo is reported by system.getVersion.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildType string
}

// Dependencies holds the replaceable collaborators of the runner.
// Nil fields take the production implementation.
type Dependencies struct {
	// ListenerFactory creates the RPC listener. If nil, net.Listen is used.
	ListenerFactory func(network, address string) (net.Listener, error)

	// Fs backs the state store, the schedule file and the downloads.
	Fs afero.Fs

	Interfaces    *netif.Detector
	ClientFactory wanlib.ClientFactory
	Log           logger.Logger
}

// Runner manages the daemon lifecycle.
type Runner struct {
	cfg   *config.Config
	build BuildInfo
	deps  *Dependencies

	// ShutdownTimeout bounds Shutdown and the session stop on exit.
	ShutdownTimeout time.Duration

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	listener net.Listener
	ownLog   bool

	log      logger.Logger
	manager  *wanlib.Manager
	store    *state.Store
	history  *history.DB
	// archiveClosed tells late terminal events that history is gone.
	archiveClosed *atomic.Bool
	triggers *scheduler.Scheduler
	notifier *server.RPCNotifier
	server   *server.Server
}

// New creates a runner for cfg. Nothing is opened until Start.
func New(cfg *config.Config, build BuildInfo, deps *Dependencies) *Runner {
	return &Runner{
		cfg:             cfg,
		build:           build,
		deps:            applyDependencyDefaults(deps),
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// applyDependencyDefaults returns Dependencies with default values applied.
func applyDependencyDefaults(deps *Dependencies) *Dependencies {
	if deps == nil {
		deps = &Dependencies{}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	return deps
}

// Config returns the runner's configuration.
func (r *Runner) Config() *config.Config {
	return r.cfg
}

// Start opens every component, restores the persisted queue and blocks
// until ctx is canceled or Shutdown is called. Restored transfers stay
// queued until started.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, r.cancel = context.WithCancel(ctx)

	// Create listener BEFORE setting running=true to avoid race condition
	listener, err := r.deps.ListenerFactory("tcp", r.cfg.ListenAddr)
	if err != nil {
		r.cancel()
		r.mu.Unlock()
		return fmt.Errorf("listen %s: %w", r.cfg.ListenAddr, err)
	}
	r.listener = listener
	if err := r.setup(ctx); err != nil {
		r.cancel()
		r.closeListener()
		r.closeResources()
		r.mu.Unlock()
		return err
	}
	r.done = make(chan struct{})
	r.running = true
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.server.Serve(gctx, listener)
	})
	g.Go(func() error {
		r.autosave(gctx)
		return nil
	})
	err = g.Wait()

	r.cleanupOnStop()
	return err
}

// setup builds the components. Caller must hold the mutex.
func (r *Runner) setup(ctx context.Context) error {
	r.log = r.deps.Log
	if r.log == nil {
		r.log = newLogger(r.cfg)
		r.ownLog = true
	}
	if err := os.MkdirAll(r.cfg.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("config dir: %w", err)
	}

	store, err := state.NewStore(state.Options{
		Fs:        r.deps.Fs,
		Path:      r.cfg.StatePath(),
		BackupDir: r.cfg.BackupDir(),
		Keep:      r.cfg.BackupKeep,
		Log:       r.log,
	})
	if err != nil {
		return err
	}
	r.store = store

	r.history, err = history.Open(r.cfg.HistoryPath())
	if err != nil {
		return err
	}
	r.archiveClosed = new(atomic.Bool)

	ifaces := r.deps.Interfaces
	if ifaces == nil {
		ifaces = netif.New(netif.Options{
			ProbeURL:     r.cfg.ProbeURL,
			ProbeTimeout: r.cfg.ProbeTimeout,
			Client:       r.cfg.ClientOptions(),
			Log:          r.log,
		})
	}
	factory := r.deps.ClientFactory
	if factory == nil {
		factory = wanlib.BoundClientFactory(r.cfg.ClientOptions())
	}

	r.notifier = server.NewRPCNotifier(r.log)
	r.manager = wanlib.NewManager(&wanlib.ManagerOpts{
		Fs:               r.deps.Fs,
		ClientFactory:    factory,
		Interfaces:       ifaces,
		DownloadDir:      r.cfg.DownloadDir,
		DefaultRateLimit: r.cfg.DefaultRate,
		ChunkSize:        r.cfg.ChunkSize,
		Retry:            r.cfg.RetryPolicy(),
		Log:              r.log,
		Handlers:         r.notifier.Handlers(r.engineHandlers(r.history)),
	})

	snap, err := r.store.Load()
	if err != nil {
		r.log.Error("restoring state: %v", err)
	} else {
		r.manager.Restore(snap)
	}

	r.triggers = scheduler.New(ctx, r.fire)
	if err := r.loadSchedule(); err != nil {
		return err
	}

	rpc := server.NewRPCServer(&server.RPCConfig{
		Secret:    r.cfg.RPCSecret,
		Version:   r.build.Version,
		Commit:    r.build.Commit,
		BuildType: r.build.BuildType,
	}, server.Deps{
		Manager:    r.manager,
		Interfaces: ifaces,
		History:    r.history,
		Triggers:   r.triggers,
		SaveState:  r.Save,
		Notifier:   r.notifier,
		Log:        r.log,
	})
	r.server = server.NewServer(r.log, r.cfg.ListenAddr, rpc)
	return nil
}

func newLogger(cfg *config.Config) logger.Logger {
	console := logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	if cfg.LogFile == "" {
		return console
	}
	return logger.NewMultiLogger(console, logger.NewFileLogger(logger.FileOptions{Path: cfg.LogFile}))
}

// engineHandlers archives terminal events into hist and logs what the
// engine reports. Sessions may still finish after closeResources, those
// events are logged but not archived. Caller must hold the mutex.
func (r *Runner) engineHandlers(hist *history.DB) *wanlib.Handlers {
	lg, closed, debug := r.log, r.archiveClosed, r.cfg.Debug
	return &wanlib.Handlers{
		TerminalHandler: func(ev wanlib.TerminalEvent) {
			if ev.Outcome == wanlib.OutcomeFailed {
				lg.Error("transfer %s failed: %s", ev.ID, ev.Reason)
			} else {
				lg.Info("transfer %s %s", ev.ID, ev.Outcome)
			}
			if closed.Load() {
				lg.Warning("history closed, not recording %s", ev.ID)
				return
			}
			if err := hist.Record(context.Background(), ev); err != nil {
				lg.Warning("recording history for %s: %v", ev.ID, err)
			}
		},
		StateHandler: func(ch wanlib.StateChange) {
			if debug {
				lg.Info("transfer %s: %s -> %s", ch.ID, ch.From, ch.To)
			}
		},
		WarningHandler: func(id wanlib.TransferID, err error) {
			lg.Warning("transfer %s: %v", id, err)
		},
	}
}

// fire runs a trigger action on the scheduler goroutine.
func (r *Runner) fire(t scheduler.Trigger) {
	var ids []wanlib.TransferID
	switch t.Action {
	case common.ActionStartAll:
		ids = r.manager.StartAll()
	case common.ActionPauseAll:
		ids = r.manager.PauseAll()
	default:
		r.log.Warning("trigger %s: unknown action %q", t.ID, t.Action)
		return
	}
	r.log.Info("trigger %s (%s %s): %d transfer(s)", t.ID, t.Action, t.Expr(), len(ids))
}

func (r *Runner) loadSchedule() error {
	if r.cfg.ScheduleFile == "" {
		return nil
	}
	data, err := afero.ReadFile(r.deps.Fs, r.cfg.ScheduleFile)
	if err != nil {
		return fmt.Errorf("schedule file: %w", err)
	}
	triggers, missed, err := scheduler.ParseFile(bytes.NewReader(data), time.Now())
	if err != nil {
		return fmt.Errorf("schedule file %s: %w", r.cfg.ScheduleFile, err)
	}
	for _, line := range missed {
		r.log.Warning("schedule: skipping past trigger %q", line)
	}
	for _, t := range triggers {
		r.triggers.Add(t)
	}
	r.log.Info("schedule: loaded %d trigger(s)", len(triggers))
	return nil
}

// Save persists the current engine snapshot.
func (r *Runner) Save() (*common.SaveResponse, error) {
	snap := r.manager.Snapshot()
	if err := r.store.Save(snap); err != nil {
		return nil, err
	}
	return &common.SaveResponse{
		Path:   r.store.Path(),
		Active: len(snap.Active),
		Queued: len(snap.Queued),
	}, nil
}

func (r *Runner) autosave(ctx context.Context) {
	if r.cfg.AutosaveInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(r.cfg.AutosaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Save(); err != nil {
				r.log.Error("autosave: %v", err)
			}
		}
	}
}

// cleanupOnStop stops the sessions, writes the final state and releases
// everything Start opened.
func (r *Runner) cleanupOnStop() {
	ctx, cancel := context.WithTimeout(context.Background(), r.ShutdownTimeout)
	defer cancel()
	if err := r.manager.Shutdown(ctx); err != nil {
		r.log.Warning("stopping transfers: %v", err)
	}
	if res, err := r.Save(); err != nil {
		r.log.Error("saving state: %v", err)
	} else {
		r.log.Info("state saved to %s (%d active, %d queued)", res.Path, res.Active, res.Queued)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.cancel()
	r.closeListener()
	r.closeResources()
	close(r.done)
}

// closeListener closes the listener if it exists.
// Caller must hold the mutex.
func (r *Runner) closeListener() {
	if r.listener != nil {
		_ = r.listener.Close()
		r.listener = nil
	}
}

// closeResources closes history and the owned logger.
// Caller must hold the mutex.
func (r *Runner) closeResources() {
	if r.archiveClosed != nil {
		r.archiveClosed.Store(true)
	}
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			r.log.Warning("closing history: %v", err)
		}
		r.history = nil
	}
	if r.ownLog && r.log != nil {
		_ = r.log.Close()
	}
}

// Shutdown stops a running daemon and waits for Start to return.
// Returns ErrShutdownTimeout if cleanup exceeds ShutdownTimeout.
func (r *Runner) Shutdown() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	r.cancel()
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(r.ShutdownTimeout + time.Second):
		return ErrShutdownTimeout
	}
}

// IsRunning returns true if the daemon is currently running.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Addr returns the RPC listener address, nil when not running.
func (r *Runner) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Manager returns the engine, nil before Start.
func (r *Runner) Manager() *wanlib.Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manager
}
