package wanlib

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

func queueIDs(s *Scheduler) []TransferID {
	var ids []TransferID
	for _, e := range s.Queue() {
		ids = append(ids, e.Request.ID)
	}
	return ids
}

func TestSchedulerOnePerInterfaceAndAutoChain(t *testing.T) {
	body := []byte("data")
	srv := newGatedServer(t, body)
	te := newTestEngine(t, srv.Client())

	r1 := te.sched.Enqueue(req(srv.URL, "/1", "A", len(body)))
	r2 := te.sched.Enqueue(req(srv.URL, "/2", "B", len(body)))
	r3 := te.sched.Enqueue(req(srv.URL, "/3", "A", len(body)))

	started := te.sched.StartAll()
	if len(started) != 2 || started[0] != r1.ID || started[1] != r2.ID {
		t.Fatalf("StartAll started %v, want [%s %s]", started, r1.ID, r2.ID)
	}
	if q := queueIDs(te.sched); len(q) != 1 || q[0] != r3.ID {
		t.Fatalf("queue = %v, want [%s]", q, r3.ID)
	}
	if again := te.sched.StartAll(); len(again) != 0 {
		t.Fatalf("second StartAll started %v", again)
	}
	if busy := te.sched.BusyInterfaces(); busy["A"] != r1.ID || busy["B"] != r2.ID {
		t.Fatalf("busy interfaces = %v", busy)
	}

	srv.release("/1")
	if ev := te.waitTerminal(t, r1.ID); ev.Outcome != OutcomeCompleted {
		t.Fatalf("r1 outcome = %v (%s)", ev.Outcome, ev.Reason)
	}
	waitFor(t, "r3 admitted", func() bool {
		rec, err := te.reg.QueryStatus(r3.ID)
		return err == nil && rec.State == StateActive
	})
	if q := te.sched.Queue(); len(q) != 0 {
		t.Fatalf("queue not empty after auto-chain: %v", q)
	}
	if busy := te.sched.BusyInterfaces(); busy["A"] != r3.ID {
		t.Fatalf("interface A held by %s, want %s", busy["A"], r3.ID)
	}
	if rec, err := te.reg.QueryStatus(r1.ID); err != nil || rec.State != StateCompleted {
		t.Fatalf("r1 status = %v, %v", rec.State, err)
	}
}

func TestSchedulerStartAllResumesPausedFirst(t *testing.T) {
	srv := newGatedServer(t, []byte("x"))
	te := newTestEngine(t, srv.Client())
	r1 := te.sched.Enqueue(req(srv.URL, "/1", "A", 1))
	r2 := te.sched.Enqueue(req(srv.URL, "/2", "A", 1))
	te.sched.StartAll()
	if st, err := te.reg.Pause(r1.ID); err != nil || st != StatePaused {
		t.Fatalf("Pause = %v, %v", st, err)
	}
	// paused transfer keeps the slot, r2 must not start
	started := te.sched.StartAll()
	if len(started) != 1 || started[0] != r1.ID {
		t.Fatalf("StartAll = %v, want only resumed %s", started, r1.ID)
	}
	if q := queueIDs(te.sched); len(q) != 1 || q[0] != r2.ID {
		t.Fatalf("queue = %v", q)
	}
	if rec, _ := te.reg.QueryStatus(r1.ID); rec.State != StateActive {
		t.Fatalf("r1 state = %v, want active", rec.State)
	}
}

func TestSchedulerPauseAll(t *testing.T) {
	srv := newGatedServer(t, []byte("x"))
	te := newTestEngine(t, srv.Client())
	te.sched.Enqueue(req(srv.URL, "/1", "A", 1))
	te.sched.Enqueue(req(srv.URL, "/2", "B", 1))
	te.sched.StartAll()
	if paused := te.sched.PauseAll(); len(paused) != 2 {
		t.Fatalf("PauseAll = %v", paused)
	}
	for _, rec := range te.reg.ListActive() {
		if rec.State != StatePaused {
			t.Fatalf("%s state = %v", rec.Request.ID, rec.State)
		}
	}
	if paused := te.sched.PauseAll(); len(paused) != 0 {
		t.Fatalf("second PauseAll = %v", paused)
	}
}

func TestSchedulerReorder(t *testing.T) {
	te := newTestEngine(t, nil)
	var ids []TransferID
	for i := 0; i < 4; i++ {
		ids = append(ids, te.sched.Enqueue(TransferRequest{URL: fmt.Sprintf("http://h/%d", i), InterfaceID: "A"}).ID)
	}
	tests := []struct {
		name     string
		from, to int
		ok       bool
		want     []int
	}{
		{"down", 0, 2, true, []int{1, 2, 0, 3}},
		{"up", 3, 0, true, []int{3, 1, 2, 0}},
		{"equal", 1, 1, false, []int{3, 1, 2, 0}},
		{"from out of range", 4, 0, false, []int{3, 1, 2, 0}},
		{"to out of range", 0, -1, false, []int{3, 1, 2, 0}},
		{"adjacent", 1, 2, true, []int{3, 2, 1, 0}},
	}
	for _, tt := range tests {
		if ok := te.sched.Reorder(tt.from, tt.to); ok != tt.ok {
			t.Fatalf("%s: Reorder(%d,%d) = %v", tt.name, tt.from, tt.to, ok)
		}
		got := queueIDs(te.sched)
		for i, w := range tt.want {
			if got[i] != ids[w] {
				t.Fatalf("%s: position %d = %s, want %s", tt.name, i, got[i], ids[w])
			}
		}
	}
}

func TestSchedulerReorderChangesPriority(t *testing.T) {
	srv := newGatedServer(t, []byte("x"))
	te := newTestEngine(t, srv.Client())
	te.sched.Enqueue(req(srv.URL, "/1", "A", 1))
	r2 := te.sched.Enqueue(req(srv.URL, "/2", "A", 1))
	te.sched.Reorder(1, 0)
	if started := te.sched.StartAll(); len(started) != 1 || started[0] != r2.ID {
		t.Fatalf("StartAll = %v, want %s", started, r2.ID)
	}
}

func TestSchedulerMoveActiveToQueue(t *testing.T) {
	data := testData(64 * 1024)
	srv := newFileServer(t, data)
	te := newTestEngine(t, testClient(t))
	r := req(srv.URL, "/big.bin", "A", len(data))
	r.RateLimit = 16 * 1024
	r1 := te.sched.Enqueue(r)
	r2 := te.sched.Enqueue(req(srv.URL, "/other.bin", "B", len(data)))
	te.sched.StartAll()

	if _, err := te.sched.MoveActiveToQueue(r1.ID); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("MoveActiveToQueue on active = %v, want ErrNotPaused", err)
	}
	waitFor(t, "some progress", func() bool {
		rec, _ := te.reg.QueryStatus(r1.ID)
		return rec.BytesTransferred > 0
	})
	te.reg.Pause(r1.ID)
	st, err := te.sched.MoveActiveToQueue(r1.ID)
	if err != nil || st != StateQueued {
		t.Fatalf("MoveActiveToQueue = %v, %v", st, err)
	}
	q := te.sched.Queue()
	if len(q) != 1 || q[0].Request.ID != r1.ID {
		t.Fatalf("queue = %+v", q)
	}
	offset := q[0].Request.ResumeOffset
	b, err := afero.ReadFile(te.fs, "/dl/big.bin")
	if err != nil {
		t.Fatalf("partial file missing: %v", err)
	}
	if offset == 0 || int64(len(b)) != offset {
		t.Fatalf("file holds %d bytes, queued offset %d", len(b), offset)
	}
	if _, ok := te.sched.BusyInterfaces()["A"]; ok {
		t.Fatalf("interface A still held after requeue")
	}
	if _, err := te.reg.QueryStatus(r1.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("requeued transfer still in registry: %v", err)
	}

	// restarting continues from the preserved offset
	te.sched.StartAll()
	te.waitTerminal(t, r2.ID)
	ev := te.waitTerminal(t, r1.ID)
	if ev.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %v (%s)", ev.Outcome, ev.Reason)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	found := false
	for _, rg := range srv.ranges {
		if rg == fmt.Sprintf("bytes=%d-", offset) {
			found = true
		}
	}
	if !found {
		t.Fatalf("no range request from offset %d in %v", offset, srv.ranges)
	}
}

func TestSchedulerInvariantUnderConcurrency(t *testing.T) {
	body := []byte("abcdef")
	srv := newGatedServer(t, body)
	srv.releaseAll()
	te := newTestEngine(t, srv.Client())
	ifaces := []string{"A", "B", "C"}

	stop := make(chan struct{})
	violation := make(chan map[string]int, 1)
	var checker sync.WaitGroup
	checker.Add(1)
	go func() {
		defer checker.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, n := range te.admittedPerInterface() {
				if n > 1 {
					select {
					case violation <- te.admittedPerInterface():
					default:
					}
					return
				}
			}
		}
	}()

	var wg sync.WaitGroup
	const perWorker = 15
	var mu sync.Mutex
	var all []TransferID
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				r := te.sched.Enqueue(req(srv.URL, fmt.Sprintf("/%d-%d", w, i), ifaces[(w+i)%len(ifaces)], len(body)))
				mu.Lock()
				all = append(all, r.ID)
				mu.Unlock()
				if i%3 == 0 {
					te.sched.Reorder(0, 1)
				}
				te.sched.StartAll()
			}
		}(w)
	}
	wg.Wait()
	te.sched.StartAll()
	seen := make(map[TransferID]bool)
	for len(seen) < len(all) {
		select {
		case ev := <-te.terminals:
			if ev.Outcome != OutcomeCompleted {
				t.Fatalf("%s outcome = %v (%s)", ev.ID, ev.Outcome, ev.Reason)
			}
			seen[ev.ID] = true
		case v := <-violation:
			t.Fatalf("more than one admitted transfer on an interface: %v", v)
		}
	}
	close(stop)
	checker.Wait()
	select {
	case v := <-violation:
		t.Fatalf("more than one admitted transfer on an interface: %v", v)
	default:
	}
}

// pausedWithData starts a throttled transfer on A and pauses it once some
// bytes reached the file.
func pausedWithData(t *testing.T, te *testEngine, srv *fileServer, path string, size int) TransferID {
	t.Helper()
	r := req(srv.URL, path, "A", size)
	r.RateLimit = 16 * 1024
	r = te.sched.Enqueue(r)
	te.sched.StartAll()
	waitFor(t, "some progress", func() bool {
		rec, _ := te.reg.QueryStatus(r.ID)
		return rec.BytesTransferred > 0
	})
	if st, _ := te.reg.Pause(r.ID); st != StatePaused {
		t.Fatalf("Pause = %v", st)
	}
	return r.ID
}

func TestSchedulerCancelAfterRequeueStopStillCancels(t *testing.T) {
	data := testData(64 * 1024)
	srv := newFileServer(t, data)
	te := newTestEngine(t, testClient(t))
	id := pausedWithData(t, te, srv, "/raced.bin", len(data))

	// the session exits through the requeue stop before the cancel lands
	te.reg.c.lock()
	done, _, err := te.reg.requeueLocked(id)
	if err != nil {
		te.reg.c.unlock()
		t.Fatalf("requeueLocked: %v", err)
	}
	<-te.reg.entries[id].session.Done()
	st, err := te.reg.cancelLocked(id)
	te.reg.c.unlock()
	if err != nil || st != StateCancelled {
		t.Fatalf("Cancel = %v, %v", st, err)
	}
	<-done

	if ev := te.waitTerminal(t, id); ev.Outcome != OutcomeCancelled {
		t.Fatalf("outcome = %v", ev.Outcome)
	}
	if q := te.sched.Queue(); len(q) != 0 {
		t.Fatalf("cancelled transfer went back to the queue: %+v", q)
	}
	if ok, _ := afero.Exists(te.fs, "/dl/raced.bin"); ok {
		t.Fatalf("partial file kept after cancel")
	}
	if _, busy := te.sched.BusyInterfaces()["A"]; busy {
		t.Fatalf("interface A still held")
	}
	if rec, err := te.reg.QueryStatus(id); err != nil || rec.State != StateCancelled {
		t.Fatalf("status = %v, %v", rec.State, err)
	}
}

func TestSchedulerRequeueAfterCancelReportsCancelled(t *testing.T) {
	data := testData(64 * 1024)
	srv := newFileServer(t, data)
	te := newTestEngine(t, testClient(t))
	id := pausedWithData(t, te, srv, "/late.bin", len(data))

	if st, err := te.reg.Cancel(id); err != nil || st != StateCancelled {
		t.Fatalf("Cancel = %v, %v", st, err)
	}
	st, err := te.sched.MoveActiveToQueue(id)
	if err != nil || st != StateCancelled {
		t.Fatalf("MoveActiveToQueue after cancel = %v, %v", st, err)
	}
	if q := te.sched.Queue(); len(q) != 0 {
		t.Fatalf("queue = %+v", q)
	}
}

func TestManagerConcurrentMoveToQueueAndCancel(t *testing.T) {
	data := testData(64 * 1024)
	srv := newFileServer(t, data)
	f := newManagerFixture(t, testClient(t))
	r, err := f.m.Enqueue(context.Background(), EnqueueParams{
		URL: srv.URL + "/both.bin", InterfaceID: "10.0.0.2", DestinationPath: "/downloads/both.bin", RateLimit: 16 * 1024,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	f.m.StartAll()
	waitFor(t, "some progress", func() bool {
		rec, _ := f.m.Status(r.ID)
		return rec.BytesTransferred > 0
	})
	f.m.Pause(r.ID)

	var wg sync.WaitGroup
	var moveState, cancelState TransferState
	var moveErr, cancelErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		moveState, moveErr = f.m.MoveToQueue(r.ID)
	}()
	go func() {
		defer wg.Done()
		cancelState, cancelErr = f.m.Cancel(r.ID)
	}()
	wg.Wait()

	if cancelErr != nil || cancelState != StateCancelled {
		t.Fatalf("Cancel = %v, %v", cancelState, cancelErr)
	}
	if moveErr != nil || (moveState != StateQueued && moveState != StateCancelled) {
		t.Fatalf("MoveToQueue = %v, %v", moveState, moveErr)
	}
	waitFor(t, "cancel event", func() bool {
		ev, ok := f.terminal(r.ID)
		return ok && ev.Outcome == OutcomeCancelled
	})
	if len(f.m.Queue()) != 0 || len(f.m.List()) != 0 {
		t.Fatalf("cancelled transfer still listed: %+v", f.m.List())
	}
	if rec, _ := f.m.Status(r.ID); rec.State != StateCancelled {
		t.Fatalf("Status = %v", rec.State)
	}
	if ok, _ := afero.Exists(f.fs, "/downloads/both.bin"); ok {
		t.Fatalf("partial file kept after cancel")
	}
}
