package wanlib

import (
	"time"

	"github.com/wanpull/wanpull/pkg/logger"
)

// Scheduler keeps the single ordered queue of waiting transfers and admits
// them into the Registry so that every interface has at most one admitted
// (active or paused) transfer at any instant.
type Scheduler struct {
	c     *coreLock
	reg   *Registry
	log   logger.Logger
	queue []QueueEntry
	// slots maps an interface source ip to the transfer holding it.
	slots map[string]TransferID
}

// NewScheduler creates a scheduler admitting into reg. Both share one lock.
func NewScheduler(reg *Registry) *Scheduler {
	s := &Scheduler{
		c:     reg.c,
		reg:   reg,
		log:   reg.log,
		slots: make(map[string]TransferID),
	}
	reg.onTerminal = s.onTransferTerminal
	reg.onRequeue = s.onRequeued
	return s
}

// Enqueue appends req to the tail of the queue and returns it with its id set.
func (s *Scheduler) Enqueue(req TransferRequest) TransferRequest {
	s.c.lock()
	defer s.c.unlock()
	return s.insertLocked(len(s.queue), req)
}

// EnqueueAtHead inserts req before every waiting entry.
func (s *Scheduler) EnqueueAtHead(req TransferRequest) TransferRequest {
	s.c.lock()
	defer s.c.unlock()
	return s.insertLocked(0, req)
}

func (s *Scheduler) insertLocked(at int, req TransferRequest) TransferRequest {
	if req.ID == "" {
		req.ID = NewTransferID()
	}
	e := QueueEntry{Request: req, QueuedAt: time.Now()}
	s.queue = append(s.queue, QueueEntry{})
	copy(s.queue[at+1:], s.queue[at:])
	s.queue[at] = e
	return req
}

// Reorder moves the entry at from to index to. Out of range or equal
// indexes are rejected with false.
func (s *Scheduler) Reorder(from, to int) bool {
	s.c.lock()
	defer s.c.unlock()
	n := len(s.queue)
	if from == to || from < 0 || to < 0 || from >= n || to >= n {
		return false
	}
	e := s.queue[from]
	if from < to {
		copy(s.queue[from:to], s.queue[from+1:to+1])
	} else {
		copy(s.queue[to+1:from+1], s.queue[to:from])
	}
	s.queue[to] = e
	return true
}

// Remove drops a waiting entry. It reports false if id is not queued.
func (s *Scheduler) Remove(id TransferID) bool {
	s.c.lock()
	defer s.c.unlock()
	return s.removeLocked(id)
}

func (s *Scheduler) removeLocked(id TransferID) bool {
	if i := s.indexLocked(id); i >= 0 {
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		return true
	}
	return false
}

func (s *Scheduler) indexLocked(id TransferID) int {
	for i, e := range s.queue {
		if e.Request.ID == id {
			return i
		}
	}
	return -1
}

// Queue returns a copy of the waiting entries in order.
func (s *Scheduler) Queue() []QueueEntry {
	s.c.lock()
	defer s.c.unlock()
	return append([]QueueEntry(nil), s.queue...)
}

// BusyInterfaces returns the interface slots currently held.
func (s *Scheduler) BusyInterfaces() map[string]TransferID {
	s.c.lock()
	defer s.c.unlock()
	out := make(map[string]TransferID, len(s.slots))
	for k, v := range s.slots {
		out[k] = v
	}
	return out
}

// StartAll resumes every paused transfer, then admits the earliest queued
// entry of every free interface. It returns the ids it resumed or admitted.
// Calling it again without any change in between does nothing.
func (s *Scheduler) StartAll() []TransferID {
	s.c.lock()
	defer s.c.unlock()
	if s.reg.closed {
		return nil
	}
	var started []TransferID
	for _, id := range s.reg.pausedLocked() {
		if st, err := s.reg.resumeLocked(id); err == nil && st == StateActive {
			started = append(started, id)
		}
	}
	for i := 0; i < len(s.queue); {
		req := s.queue[i].Request
		if _, busy := s.slots[req.InterfaceID]; busy {
			i++
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		if s.admitLocked(req) {
			started = append(started, req.ID)
		}
	}
	return started
}

// PauseAll pauses every active transfer and returns their ids.
func (s *Scheduler) PauseAll() []TransferID {
	s.c.lock()
	defer s.c.unlock()
	var paused []TransferID
	for _, id := range s.reg.activeLocked() {
		if st, err := s.reg.pauseLocked(id); err == nil && st == StatePaused {
			paused = append(paused, id)
		}
	}
	return paused
}

// MoveActiveToQueue stops a paused transfer keeping its partial file and
// appends its request, with the reached offset, to the queue tail. It
// returns once the request is back in the queue.
func (s *Scheduler) MoveActiveToQueue(id TransferID) (TransferState, error) {
	s.c.lock()
	done, state, err := s.reg.requeueLocked(id)
	s.c.unlock()
	if err != nil || done == nil {
		return state, err
	}
	<-done
	s.c.lock()
	defer s.c.unlock()
	if s.indexLocked(id) >= 0 {
		return StateQueued, nil
	}
	// a racing Cancel won
	rec, err := s.reg.queryLocked(id)
	if err != nil {
		return 0, err
	}
	return rec.State, nil
}

// admitLocked hands req to the registry and takes its interface slot.
// A request the registry refuses is reported as failed.
func (s *Scheduler) admitLocked(req TransferRequest) bool {
	h, err := s.reg.startLocked(req, false)
	if err != nil {
		s.log.Error("[%s] cannot start on %s: %v", req.ID.Short(), req.InterfaceID, err)
		s.reg.failUnstartedLocked(req, err)
		return false
	}
	s.slots[req.InterfaceID] = h.ID()
	return true
}

// promoteLocked admits the earliest queued entry for iface, if any.
func (s *Scheduler) promoteLocked(iface string) {
	if s.reg.closed {
		return
	}
	for i := 0; i < len(s.queue); i++ {
		req := s.queue[i].Request
		if req.InterfaceID != iface {
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		if s.admitLocked(req) {
			s.log.Info("[%s] auto-started on %s", req.ID.Short(), iface)
			return
		}
		i--
	}
}

func (s *Scheduler) releaseLocked(iface string, id TransferID) {
	if s.slots[iface] == id {
		delete(s.slots, iface)
	}
}

// onTransferTerminal frees the interface of a finished transfer and starts
// the next entry queued for it.
func (s *Scheduler) onTransferTerminal(rec TransferRecord) {
	iface := rec.Request.InterfaceID
	s.releaseLocked(iface, rec.Request.ID)
	s.promoteLocked(iface)
}

func (s *Scheduler) onRequeued(req TransferRequest) {
	s.releaseLocked(req.InterfaceID, req.ID)
	s.insertLocked(len(s.queue), req)
}
