package scheduler

import (
	"container/heap"
	"context"
	"slices"
	"time"
)

const maxSleepCap = 60 * time.Second

type removeReq struct {
	id    string
	reply chan bool
}

// Scheduler runs triggers from a single goroutine. All methods are safe for
// concurrent use and return immediately once ctx is done.
type Scheduler struct {
	addChan    chan Trigger
	removeChan chan removeReq
	listChan   chan chan []Trigger
	ctx        context.Context
	now        func() time.Time
}

// New starts a scheduler. onTrigger runs on the scheduler goroutine for
// every firing; it must not block for long.
func New(ctx context.Context, onTrigger func(Trigger)) *Scheduler {
	s := &Scheduler{
		addChan:    make(chan Trigger),
		removeChan: make(chan removeReq),
		listChan:   make(chan chan []Trigger),
		ctx:        ctx,
		now:        time.Now,
	}
	go s.run(onTrigger)
	return s
}

// Add schedules t. It returns once the scheduler goroutine holds t.
func (s *Scheduler) Add(t Trigger) {
	select {
	case s.addChan <- t:
	case <-s.ctx.Done():
	}
}

// Remove cancels the trigger with id and reports whether it existed.
func (s *Scheduler) Remove(id string) bool {
	r := removeReq{id: id, reply: make(chan bool, 1)}
	select {
	case s.removeChan <- r:
	case <-s.ctx.Done():
		return false
	}
	select {
	case ok := <-r.reply:
		return ok
	case <-s.ctx.Done():
		return false
	}
}

// List returns pending triggers ordered by next firing time.
func (s *Scheduler) List() []Trigger {
	reply := make(chan []Trigger, 1)
	select {
	case s.listChan <- reply:
	case <-s.ctx.Done():
		return nil
	}
	select {
	case l := <-reply:
		return l
	case <-s.ctx.Done():
		return nil
	}
}

func (s *Scheduler) run(onTrigger func(Trigger)) {
	h := &triggerHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			return nil
		}
		dur := (*h)[0].At.Sub(s.now())
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-s.ctx.Done():
			return

		case t := <-s.addChan:
			heapPush(h, t)
			timerCh = resetTimer()

		case r := <-s.removeChan:
			r.reply <- heapRemoveByID(h, r.id)
			timerCh = resetTimer()

		case reply := <-s.listChan:
			l := slices.Clone(*h)
			slices.SortFunc(l, func(a, b Trigger) int { return a.At.Compare(b.At) })
			reply <- l

		case <-timerCh:
			now := s.now()
			for h.Len() > 0 && !(*h)[0].At.After(now) {
				t := heapPop(h)
				onTrigger(t)
				if t.Cron != "" {
					if next, err := nextCronOccurrence(t.Cron, now); err == nil {
						t.At = next
						heapPush(h, t)
					}
				}
			}
			timerCh = resetTimer()
		}
	}
}
