package wanlib

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/wanpull/wanpull/pkg/logger"
)

const maxFinishedRecords = 256

var errAlreadyRegistered = errors.New("transfer already registered")

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Context is the parent of every session context.
	Context          context.Context
	Fs               afero.Fs
	ClientFactory    ClientFactory
	ChunkSize        int
	ProgressInterval time.Duration
	Retry            RetryPolicy
	Log              logger.Logger
	Handlers         *Handlers
	// Bandwidth, when set, is fed with the progress of every session.
	Bandwidth        *Bandwidth
}

// Handle refers to an admitted transfer.
type Handle struct {
	id   TransferID
	done chan struct{}
}

func (h *Handle) ID() TransferID { return h.id }

// Done is closed once the transfer left the registry and its events were
// delivered.
func (h *Handle) Done() <-chan struct{} { return h.done }

type regEntry struct {
	rec     TransferRecord
	session *Session
	handle  *Handle
	// requeue is set by MoveToQueue while the session stops.
	requeue bool
	// cancelled is set by Cancel; it wins over a pending requeue.
	cancelled bool
	// stopped is set once a shutdown stop completed, the entry is kept for
	// the final snapshot.
	stopped bool
}

// Registry owns the sessions of admitted transfers and their records.
type Registry struct {
	c        *coreLock
	opts     RegistryOptions
	handlers *Handlers
	log      logger.Logger

	entries  map[TransferID]*regEntry
	order    []TransferID
	finished map[TransferID]TransferRecord
	finOrder []TransferID
	closed   bool

	// scheduler hooks, called with the lock held
	onTerminal func(rec TransferRecord)
	onRequeue  func(req TransferRequest)
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.ClientFactory == nil {
		opts.ClientFactory = BoundClientFactory(nil)
	}
	if opts.Log == nil {
		opts.Log = logger.NewNopLogger()
	}
	if opts.Handlers == nil {
		opts.Handlers = &Handlers{}
	}
	opts.Handlers.setDefault()
	return &Registry{
		c:          &coreLock{},
		opts:       opts,
		handlers:   opts.Handlers,
		log:        opts.Log,
		entries:    make(map[TransferID]*regEntry),
		finished:   make(map[TransferID]TransferRecord),
		onTerminal: func(TransferRecord) {},
		onRequeue:  func(TransferRequest) {},
	}
}

// StartTransfer admits req and starts its session immediately.
func (r *Registry) StartTransfer(req TransferRequest) (*Handle, error) {
	r.c.lock()
	defer r.c.unlock()
	return r.startLocked(req, false)
}

func (r *Registry) startLocked(req TransferRequest, paused bool) (*Handle, error) {
	if r.closed {
		return nil, ErrEngineClosed
	}
	if req.ID == "" {
		req.ID = NewTransferID()
	}
	if _, ok := r.entries[req.ID]; ok {
		return nil, fmt.Errorf("%w: %s", errAlreadyRegistered, req.ID)
	}
	client, err := r.opts.ClientFactory(Interface{Name: req.InterfaceName, SourceIP: req.InterfaceID})
	if err != nil {
		return nil, err
	}
	id := req.ID
	session := NewSession(r.opts.Context, req, SessionOptions{
		Fs:               r.opts.Fs,
		Client:           client,
		ChunkSize:        r.opts.ChunkSize,
		ProgressInterval: r.opts.ProgressInterval,
		Retry:            r.opts.Retry,
		Log:              r.log,
		OnProgress:       r.progressFunc(req),
		OnWarning:        r.handlers.WarningHandler,
	})
	e := &regEntry{
		rec: TransferRecord{
			Request:    req,
			State:      StateActive,
			TotalBytes: req.TotalBytes,
			StartedAt:  time.Now(),
		},
		session: session,
		handle:  &Handle{id: id, done: make(chan struct{})},
	}
	r.entries[id] = e
	r.order = append(r.order, id)
	if paused {
		e.rec.State = StatePaused
		session.Pause()
	} else {
		session.Start()
	}
	r.stateChangedLocked(id, StateQueued, e.rec.State)
	r.log.Info("[%s] admitted on %s (%s) -> %s, rate %s", id.Short(), req.InterfaceID, req.InterfaceName, req.DestinationPath, FormatRate(req.RateLimit))
	go r.watch(e)
	return e.handle, nil
}

func (r *Registry) progressFunc(req TransferRequest) func(Progress) {
	bw := r.opts.Bandwidth
	if bw == nil {
		return r.handlers.ProgressHandler
	}
	iface := Interface{Name: req.InterfaceName, SourceIP: req.InterfaceID}
	return func(p Progress) {
		bw.Observe(iface, p)
		r.handlers.ProgressHandler(p)
	}
}

func (r *Registry) watch(e *regEntry) {
	<-e.session.Done()
	r.finish(e)
}

// finish retires a session whose run returned.
func (r *Registry) finish(e *regEntry) {
	res := e.session.Result()
	r.c.lock()
	id := e.handle.id
	if cur, ok := r.entries[id]; !ok || cur != e {
		r.c.unlock()
		close(e.handle.done)
		return
	}
	switch {
	case !res.Stopped:
		r.removeLocked(id)
		rec := r.recordLocked(e)
		rec.State = res.Outcome.State()
		if res.Err != nil {
			rec.Err = res.Err.Error()
		}
		r.rememberLocked(rec)
		from := e.rec.State
		ev := TerminalEvent{
			ID:               id,
			Outcome:          res.Outcome,
			Request:          rec.Request,
			BytesTransferred: res.Offset,
			FinishedAt:       time.Now(),
		}
		switch res.Outcome {
		case OutcomeCompleted:
			ev.Path = res.Path
			r.log.Info("[%s] completed: %s (%d bytes)", id.Short(), res.Path, res.Offset)
		case OutcomeFailed:
			ev.Reason = rec.Err
			r.log.Error("[%s] failed: %s", id.Short(), rec.Err)
		default:
			r.log.Info("[%s] cancelled", id.Short())
		}
		r.stateChangedLocked(id, from, rec.State)
		r.c.afterUnlock(func() { r.handlers.TerminalHandler(ev) })
		r.onTerminal(rec)
	case e.requeue && e.cancelled:
		// the stop for the requeue beat the cancel, finish the cancel here
		r.removeLocked(id)
		req := r.resumableRequestLocked(e)
		r.log.Info("[%s] cancelled while moving back to queue", id.Short())
		r.cancelStoppedLocked(req, e.rec.State)
	case e.requeue:
		r.removeLocked(id)
		req := r.resumableRequestLocked(e)
		r.stateChangedLocked(id, e.rec.State, StateQueued)
		r.log.Info("[%s] moved back to queue at offset %d", id.Short(), req.ResumeOffset)
		r.onRequeue(req)
	default:
		e.stopped = true
	}
	r.c.unlock()
	close(e.handle.done)
}

func (r *Registry) removeLocked(id TransferID) {
	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) rememberLocked(rec TransferRecord) {
	id := rec.Request.ID
	if _, ok := r.finished[id]; !ok {
		r.finOrder = append(r.finOrder, id)
	}
	r.finished[id] = rec
	for len(r.finOrder) > maxFinishedRecords {
		delete(r.finished, r.finOrder[0])
		r.finOrder = r.finOrder[1:]
	}
}

func (r *Registry) stateChangedLocked(id TransferID, from, to TransferState) {
	if from == to {
		return
	}
	if !from.CanTransition(to) {
		r.log.Error("[%s] unexpected transition %s -> %s", id.Short(), from, to)
	}
	if to != StateActive && r.opts.Bandwidth != nil {
		r.opts.Bandwidth.Forget(id)
	}
	ch := StateChange{ID: id, From: from, To: to}
	r.c.afterUnlock(func() { r.handlers.StateHandler(ch) })
}

// recordLocked merges live session stats into the stored record.
func (r *Registry) recordLocked(e *regEntry) TransferRecord {
	rec := e.rec
	st := e.session.Stats()
	rec.BytesTransferred = st.Offset
	rec.TotalBytes = st.Total
	rec.RateBytesPerSec = st.Rate
	rec.LastProgressAt = st.LastProgressAt
	rec.Path = st.Path
	if rec.State == StatePaused {
		rec.RateBytesPerSec = 0
	}
	return rec
}

// resumableRequestLocked returns the request with its current offset, the
// form it is persisted or requeued in.
func (r *Registry) resumableRequestLocked(e *regEntry) TransferRequest {
	st := e.session.Stats()
	req := e.rec.Request
	req.ResumeOffset = st.Offset
	req.TotalBytes = st.Total
	if st.Path != "" {
		req.DestinationPath = st.Path
	}
	return req
}

// lookupLocked returns the live entry, or the final state of a transfer
// that already terminated.
func (r *Registry) lookupLocked(id TransferID) (*regEntry, TransferState, error) {
	if e, ok := r.entries[id]; ok {
		return e, e.rec.State, nil
	}
	if rec, ok := r.finished[id]; ok {
		return nil, rec.State, nil
	}
	return nil, 0, ErrNotFound
}

// Pause pauses an active transfer. Paused and terminal transfers are left
// untouched and their state is reported.
func (r *Registry) Pause(id TransferID) (TransferState, error) {
	r.c.lock()
	defer r.c.unlock()
	return r.pauseLocked(id)
}

func (r *Registry) pauseLocked(id TransferID) (TransferState, error) {
	e, state, err := r.lookupLocked(id)
	if e == nil || err != nil {
		return state, err
	}
	if e.rec.State == StateActive && !e.stopped {
		e.session.Pause()
		e.rec.State = StatePaused
		r.stateChangedLocked(id, StateActive, StatePaused)
		r.log.Info("[%s] paused", id.Short())
	}
	return e.rec.State, nil
}

// Resume resumes a paused transfer, starting its session if it never ran.
func (r *Registry) Resume(id TransferID) (TransferState, error) {
	r.c.lock()
	defer r.c.unlock()
	return r.resumeLocked(id)
}

func (r *Registry) resumeLocked(id TransferID) (TransferState, error) {
	e, state, err := r.lookupLocked(id)
	if e == nil || err != nil {
		return state, err
	}
	if e.rec.State == StatePaused && !e.requeue && !e.stopped {
		e.session.Resume()
		e.rec.State = StateActive
		r.stateChangedLocked(id, StatePaused, StateActive)
		r.log.Info("[%s] resumed", id.Short())
	}
	return e.rec.State, nil
}

// Cancel abandons a transfer and deletes its partial file. The terminal
// event follows asynchronously once the session exited.
func (r *Registry) Cancel(id TransferID) (TransferState, error) {
	r.c.lock()
	defer r.c.unlock()
	return r.cancelLocked(id)
}

func (r *Registry) cancelLocked(id TransferID) (TransferState, error) {
	e, state, err := r.lookupLocked(id)
	if e == nil || err != nil {
		return state, err
	}
	if e.stopped {
		// shut down already, nothing left to abandon
		return e.rec.State, nil
	}
	e.cancelled = true
	e.session.Cancel()
	return StateCancelled, nil
}

// requeue stops a paused transfer keeping its file; the request goes back
// to the scheduler once the session exited. The returned channel is closed
// at that point.
func (r *Registry) requeueLocked(id TransferID) (<-chan struct{}, TransferState, error) {
	e, state, err := r.lookupLocked(id)
	if err != nil {
		return nil, state, err
	}
	if e == nil {
		return nil, state, nil
	}
	if e.cancelled {
		return e.handle.done, StateCancelled, nil
	}
	if e.rec.State != StatePaused || e.stopped {
		return nil, e.rec.State, ErrNotPaused
	}
	if !e.requeue {
		e.requeue = true
		e.session.Stop()
	}
	return e.handle.done, StatePaused, nil
}

// QueryStatus returns the record of a live or recently finished transfer.
func (r *Registry) QueryStatus(id TransferID) (TransferRecord, error) {
	r.c.lock()
	defer r.c.unlock()
	return r.queryLocked(id)
}

func (r *Registry) queryLocked(id TransferID) (TransferRecord, error) {
	if e, ok := r.entries[id]; ok {
		return r.recordLocked(e), nil
	}
	if rec, ok := r.finished[id]; ok {
		return rec, nil
	}
	return TransferRecord{}, ErrNotFound
}

// ListActive returns the records of all admitted transfers in admission order.
func (r *Registry) ListActive() []TransferRecord {
	r.c.lock()
	defer r.c.unlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []TransferRecord {
	out := make([]TransferRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.recordLocked(r.entries[id]))
	}
	return out
}

// pausedLocked returns the ids of paused transfers in admission order.
func (r *Registry) pausedLocked() []TransferID {
	var ids []TransferID
	for _, id := range r.order {
		if e := r.entries[id]; e.rec.State == StatePaused && !e.requeue && !e.stopped {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) activeLocked() []TransferID {
	var ids []TransferID
	for _, id := range r.order {
		if e := r.entries[id]; e.rec.State == StateActive && !e.stopped {
			ids = append(ids, id)
		}
	}
	return ids
}

// stopAllLocked closes the registry and stops every session, keeping the
// partial files. It returns the channels to wait on.
func (r *Registry) stopAllLocked() []<-chan struct{} {
	r.closed = true
	var done []<-chan struct{}
	for _, id := range r.order {
		e := r.entries[id]
		if !e.stopped {
			e.session.Stop()
			done = append(done, e.handle.done)
		}
	}
	return done
}

// snapshotLocked returns every admitted transfer as a resumable request.
func (r *Registry) snapshotLocked() []TransferRequest {
	out := make([]TransferRequest, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.resumableRequestLocked(r.entries[id]))
	}
	return out
}

// failUnstartedLocked reports a request that could not be admitted.
func (r *Registry) failUnstartedLocked(req TransferRequest, err error) {
	r.terminateQueuedLocked(req, OutcomeFailed, err.Error())
}

// cancelQueuedLocked reports a waiting request as cancelled and removes any
// partial file it left from an earlier run.
func (r *Registry) cancelQueuedLocked(req TransferRequest) {
	if req.ResumeOffset > 0 {
		r.removePartialLocked(req)
	}
	r.terminateLocked(req, StateQueued, OutcomeCancelled, "")
}

// cancelStoppedLocked finishes a cancel whose session exited through a
// stop, which keeps the file. The interface slot is released.
func (r *Registry) cancelStoppedLocked(req TransferRequest, from TransferState) {
	r.removePartialLocked(req)
	rec := r.terminateLocked(req, from, OutcomeCancelled, "")
	r.onTerminal(rec)
}

func (r *Registry) removePartialLocked(req TransferRequest) {
	if !needsFileName(r.opts.Fs, req.DestinationPath) {
		if err := r.opts.Fs.Remove(req.DestinationPath); err != nil && !os.IsNotExist(err) {
			r.log.Warning("[%s] failed to remove partial file %s: %v", req.ID.Short(), req.DestinationPath, err)
		}
	}
}

func (r *Registry) terminateQueuedLocked(req TransferRequest, outcome Outcome, reason string) {
	r.terminateLocked(req, StateQueued, outcome, reason)
}

func (r *Registry) terminateLocked(req TransferRequest, from TransferState, outcome Outcome, reason string) TransferRecord {
	rec := TransferRecord{
		Request:          req,
		State:            outcome.State(),
		BytesTransferred: req.ResumeOffset,
		TotalBytes:       req.TotalBytes,
		Err:              reason,
	}
	r.rememberLocked(rec)
	ev := TerminalEvent{
		ID:               req.ID,
		Outcome:          outcome,
		Reason:           reason,
		Request:          req,
		BytesTransferred: req.ResumeOffset,
		FinishedAt:       time.Now(),
	}
	r.stateChangedLocked(req.ID, from, rec.State)
	r.c.afterUnlock(func() { r.handlers.TerminalHandler(ev) })
	return rec
}
