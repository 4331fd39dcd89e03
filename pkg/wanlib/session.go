package wanlib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"github.com/wanpull/wanpull/pkg/logger"
)

// SessionOptions configures a Session. Client is required.
type SessionOptions struct {
	Fs               afero.Fs
	Client           *http.Client
	ChunkSize        int
	ProgressInterval time.Duration
	Retry            RetryPolicy
	Log              logger.Logger
	// OnProgress is called from a dedicated goroutine with the latest value,
	// slow handlers only cause intermediate values to be dropped.
	OnProgress func(Progress)
	// OnWarning receives non-fatal conditions such as ErrResumeUnsupported.
	OnWarning func(id TransferID, err error)
}

func (o *SessionOptions) setDefaults() {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = int(DEF_CHUNK_SIZE)
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DEF_PROGRESS_INTERVAL
	}
	if o.Log == nil {
		o.Log = logger.NewNopLogger()
	}
	if o.OnWarning == nil {
		o.OnWarning = func(TransferID, error) {}
	}
}

// Result is the outcome of a finished session run. Stopped is set when the
// session was stopped with its partial file preserved; Outcome is then empty.
type Result struct {
	Outcome Outcome
	Stopped bool
	Path    string
	Offset  int64
	Total   int64
	Err     error
}

// SessionStats is a point-in-time view of a running session.
type SessionStats struct {
	Offset         int64
	Total          int64
	Rate           float64
	Path           string
	StartedAt      time.Time
	LastProgressAt time.Time
}

// Session downloads one TransferRequest through one bound client. All
// control methods are safe for concurrent use.
type Session struct {
	req  TransferRequest
	opts SessionOptions

	ctx    context.Context
	cancel context.CancelFunc
	gate   *pauseGate
	pump   *progressPump

	startOnce sync.Once
	started   atomic.Bool
	abandon   atomic.Bool
	done      chan struct{}

	offset       atomic.Int64
	total        atomic.Int64
	rateBits     atomic.Uint64
	startedAt    atomic.Int64
	lastProgress atomic.Int64

	mu     sync.Mutex
	path   string
	result Result

	// owned by the run goroutine
	file     afero.File
	limiter  *Limiter
	meter    *rateMeter
	lastEmit time.Time
}

// NewSession prepares a session; nothing happens until Start.
func NewSession(parent context.Context, req TransferRequest, opts SessionOptions) *Session {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		req:     req,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		gate:    newPauseGate(),
		done:    make(chan struct{}),
		limiter: NewLimiter(req.RateLimit),
		meter:   newRateMeter(DEF_RATE_WINDOW),
	}
	s.offset.Store(req.ResumeOffset)
	s.total.Store(req.TotalBytes)
	if !needsFileName(opts.Fs, req.DestinationPath) {
		s.path = req.DestinationPath
	}
	if opts.OnProgress != nil {
		s.pump = newProgressPump(opts.OnProgress)
	}
	return s
}

func (s *Session) ID() TransferID           { return s.req.ID }
func (s *Session) Request() TransferRequest { return s.req }
func (s *Session) Done() <-chan struct{}    { return s.done }
func (s *Session) Started() bool            { return s.started.Load() }
func (s *Session) Paused() bool             { return s.gate.isPaused() }

// Start launches the download goroutine. It reports false if the session
// was already started.
func (s *Session) Start() bool {
	launched := false
	s.startOnce.Do(func() {
		launched = true
		s.started.Store(true)
		s.startedAt.Store(time.Now().UnixNano())
		go s.run()
	})
	return launched
}

// Pause blocks the stream at the next chunk boundary. The connection and
// the partial file are kept.
func (s *Session) Pause() bool {
	return s.gate.pause()
}

// Resume clears the pause flag. A session that was never started is started.
func (s *Session) Resume() bool {
	changed := s.gate.resume()
	if s.Start() {
		return true
	}
	return changed
}

// Cancel abandons the transfer: the connection is closed and the partial
// file removed.
func (s *Session) Cancel() {
	s.abandon.Store(true)
	s.cancel()
	s.Start()
}

// Stop ends the transfer but keeps the partial file and its offset.
func (s *Session) Stop() {
	s.cancel()
	s.Start()
}

// Result returns the final result. It is only meaningful after Done is closed.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Path returns the destination file, empty while it is not resolved yet.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Session) Stats() SessionStats {
	st := SessionStats{
		Offset: s.offset.Load(),
		Total:  s.total.Load(),
		Rate:   math.Float64frombits(s.rateBits.Load()),
		Path:   s.Path(),
	}
	if ns := s.startedAt.Load(); ns != 0 {
		st.StartedAt = time.Unix(0, ns)
	}
	if ns := s.lastProgress.Load(); ns != 0 {
		st.LastProgressAt = time.Unix(0, ns)
	}
	return st
}

func (s *Session) run() {
	defer close(s.done)
	res := s.execute()
	if s.file != nil {
		if err := s.file.Close(); err != nil && res.Outcome == OutcomeCompleted {
			res = Result{Outcome: OutcomeFailed, Err: &DestinationError{Path: s.Path(), Err: err}}
		}
	}
	if res.Outcome == OutcomeCancelled {
		s.removePartial()
	}
	res.Path = s.Path()
	res.Offset = s.offset.Load()
	res.Total = s.total.Load()
	s.mu.Lock()
	s.result = res
	s.mu.Unlock()
	if s.pump != nil {
		if res.Outcome != OutcomeCancelled {
			s.pump.offer(s.progress(s.meter.rate(time.Now())))
		}
		s.pump.close()
	}
	s.cancel()
}

func (s *Session) execute() Result {
	if _, err := s.gate.wait(s.ctx); err != nil {
		return s.interrupted()
	}
	path, err := s.resolvePath()
	if err != nil {
		if s.ctx.Err() != nil {
			return s.interrupted()
		}
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	if err := s.openDestination(path); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	attempts := 0
	for {
		if _, err := s.gate.wait(s.ctx); err != nil {
			return s.interrupted()
		}
		completed, progressed, err := s.attempt()
		if s.ctx.Err() != nil {
			return s.interrupted()
		}
		if completed {
			return Result{Outcome: OutcomeCompleted}
		}
		if errors.Is(err, errRestart) {
			continue
		}
		if progressed {
			attempts = 0
		}
		class := ClassifyError(err)
		if class == ClassFatal {
			return Result{Outcome: OutcomeFailed, Err: err}
		}
		attempts++
		if !s.opts.Retry.Allow(attempts, class) {
			return Result{Outcome: OutcomeFailed, Err: &NetworkError{Attempts: attempts, Err: err}}
		}
		delay := s.opts.Retry.Backoff(attempts, class)
		s.opts.Log.Warning("[%s] attempt %d failed (%s): %v, retrying in %s",
			s.req.ID.Short(), attempts, class, err, delay.Round(time.Millisecond))
		if err := sleepCtx(s.ctx, delay); err != nil {
			return s.interrupted()
		}
	}
}

func (s *Session) interrupted() Result {
	if s.abandon.Load() {
		return Result{Outcome: OutcomeCancelled}
	}
	return Result{Stopped: true, Err: errSessionStopped}
}

// resolvePath returns the destination file, probing the server when the
// file name or the size is unknown.
func (s *Session) resolvePath() (string, error) {
	path := s.Path()
	if path != "" && s.total.Load() > 0 {
		return path, nil
	}
	info, err := Probe(s.ctx, s.opts.Client, s.req.URL)
	if err != nil {
		if s.ctx.Err() != nil {
			return "", s.ctx.Err()
		}
		s.opts.Log.Warning("[%s] probe failed: %v", s.req.ID.Short(), err)
	} else if info.TotalBytes > 0 {
		s.total.Store(info.TotalBytes)
	}
	if path == "" {
		name := DEF_FILE_NAME
		if info != nil {
			name = info.FileName
		} else if u, perr := url.Parse(s.req.URL); perr == nil {
			name = FileNameFor(u, "")
		}
		path = joinDest(s.req.DestinationPath, name)
		s.mu.Lock()
		s.path = path
		s.mu.Unlock()
	}
	return path, nil
}

// openDestination opens the file and aligns it with the resume offset.
// The stored offset is only trusted when the file holds at least that many
// bytes; otherwise the transfer starts over.
func (s *Session) openDestination(path string) error {
	fs := s.opts.Fs
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &DestinationError{Path: path, Err: err}
	}
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return &DestinationError{Path: path, Err: err}
	}
	s.file = f
	fi, err := f.Stat()
	if err != nil {
		return &DestinationError{Path: path, Err: err}
	}
	offset := s.offset.Load()
	if offset < 0 || fi.Size() < offset {
		if offset > 0 {
			s.opts.Log.Warning("[%s] %s holds %d bytes, expected %d, starting over",
				s.req.ID.Short(), path, fi.Size(), offset)
		}
		offset = 0
	}
	return s.seekTo(offset)
}

func (s *Session) seekTo(offset int64) error {
	path := s.Path()
	if err := s.file.Truncate(offset); err != nil {
		return &DestinationError{Path: path, Err: err}
	}
	if _, err := s.file.Seek(offset, io.SeekStart); err != nil {
		return &DestinationError{Path: path, Err: err}
	}
	s.offset.Store(offset)
	s.limiter.Reset()
	s.meter.reset()
	return nil
}

var errRestart = errors.New("restart from offset 0")

func (s *Session) restartFromZero(reason error) error {
	s.opts.Log.Warning("[%s] %v", s.req.ID.Short(), reason)
	s.opts.OnWarning(s.req.ID, reason)
	return s.seekTo(0)
}

// attempt runs one request/stream cycle from the current offset.
func (s *Session) attempt() (completed, progressed bool, err error) {
	offset := s.offset.Load()
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.req.URL, nil)
	if err != nil {
		return false, false, err
	}
	req.Header.Set("User-Agent", DEF_USER_AGENT)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := s.opts.Client.Do(req)
	if err != nil {
		return false, false, err
	}
	defer resp.Body.Close()

	switch {
	case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		start, total, perr := parseContentRange(resp.Header.Get("Content-Range"))
		if perr != nil || start != offset {
			if err := s.restartFromZero(fmt.Errorf("%w: content-range %q does not start at %d",
				ErrResumeUnsupported, resp.Header.Get("Content-Range"), offset)); err != nil {
				return false, false, err
			}
			return false, false, errRestart
		}
		if total > 0 {
			s.total.Store(total)
		}
	case offset > 0 && resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		_, total, _ := parseContentRange(resp.Header.Get("Content-Range"))
		if total == offset || (total < 0 && s.total.Load() == offset) {
			s.total.Store(offset)
			return true, false, nil
		}
		if err := s.restartFromZero(fmt.Errorf("%w: range %d- not satisfiable", ErrResumeUnsupported, offset)); err != nil {
			return false, false, err
		}
		return false, false, errRestart
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		if offset > 0 {
			if err := s.restartFromZero(ErrResumeUnsupported); err != nil {
				return false, false, err
			}
		}
		if resp.ContentLength == 0 {
			s.total.Store(0)
			return true, false, nil
		}
		if resp.ContentLength > 0 {
			s.total.Store(resp.ContentLength)
		}
	default:
		return false, false, &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return s.stream(resp.Body)
}

func (s *Session) stream(body io.Reader) (completed, progressed bool, err error) {
	buf := make([]byte, s.opts.ChunkSize)
	for {
		blocked, err := s.gate.wait(s.ctx)
		if err != nil {
			return false, progressed, err
		}
		if blocked {
			s.limiter.Reset()
			s.meter.reset()
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := s.file.Write(buf[:n]); werr != nil {
				return false, progressed, &DestinationError{Path: s.Path(), Err: werr}
			}
			s.offset.Add(int64(n))
			progressed = true
			s.observe(n)
			if err := s.limiter.Wait(s.ctx, n, s.gate.pausing()); err != nil {
				return false, progressed, err
			}
		}
		if rerr == io.EOF {
			if total := s.total.Load(); total > 0 && s.offset.Load() < total {
				return false, progressed, io.ErrUnexpectedEOF
			}
			return true, progressed, nil
		}
		if rerr != nil {
			return false, progressed, rerr
		}
	}
}

func (s *Session) observe(n int) {
	now := time.Now()
	s.lastProgress.Store(now.UnixNano())
	s.meter.observe(now, int64(n))
	if now.Sub(s.lastEmit) < s.opts.ProgressInterval {
		return
	}
	s.lastEmit = now
	rate := s.meter.rate(now)
	s.rateBits.Store(math.Float64bits(rate))
	if s.pump != nil {
		s.pump.offer(s.progress(rate))
	}
}

func (s *Session) progress(rate float64) Progress {
	return Progress{
		ID:               s.req.ID,
		BytesTransferred: s.offset.Load(),
		TotalBytes:       s.total.Load(),
		RateBytesPerSec:  rate,
	}
}

func (s *Session) removePartial() {
	path := s.Path()
	if path == "" {
		return
	}
	if err := s.opts.Fs.Remove(path); err != nil && !os.IsNotExist(err) {
		s.opts.Log.Warning("[%s] failed to remove partial file %s: %v", s.req.ID.Short(), path, err)
	}
}
