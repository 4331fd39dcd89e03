package wanlib

import (
	"sync"
	"time"
)

type rateSample struct {
	at time.Time
	n  int64
}

// rateMeter computes throughput over a trailing window of byte deltas.
type rateMeter struct {
	window  time.Duration
	first   time.Time
	samples []rateSample
}

func newRateMeter(window time.Duration) *rateMeter {
	if window <= 0 {
		window = DEF_RATE_WINDOW
	}
	return &rateMeter{window: window}
}

func (m *rateMeter) observe(now time.Time, n int64) {
	if m.first.IsZero() {
		m.first = now
	}
	m.samples = append(m.samples, rateSample{at: now, n: n})
	m.trim(now)
}

func (m *rateMeter) trim(now time.Time) {
	cut := 0
	for cut < len(m.samples) && now.Sub(m.samples[cut].at) > m.window {
		cut++
	}
	if cut > 0 {
		m.samples = append(m.samples[:0], m.samples[cut:]...)
	}
}

// rate returns bytes per second over the window ending at now.
func (m *rateMeter) rate(now time.Time) float64 {
	m.trim(now)
	span := m.window
	if since := now.Sub(m.first); since < span {
		span = since
	}
	if span <= 0 || len(m.samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range m.samples {
		sum += s.n
	}
	return float64(sum) / span.Seconds()
}

// reset drops the samples, used when a paused transfer resumes.
func (m *rateMeter) reset() {
	m.first = time.Time{}
	m.samples = m.samples[:0]
}

// progressPump delivers progress to a handler on its own goroutine. Offer
// never blocks: an undelivered value is replaced by the newer one.
type progressPump struct {
	mu      sync.Mutex
	pending *Progress
	wake    chan struct{}
	done    chan struct{}
	handler func(Progress)
}

func newProgressPump(handler func(Progress)) *progressPump {
	p := &progressPump{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		handler: handler,
	}
	go p.loop()
	return p
}

func (p *progressPump) offer(pr Progress) {
	p.mu.Lock()
	p.pending = &pr
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *progressPump) take() *Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr := p.pending
	p.pending = nil
	return pr
}

func (p *progressPump) loop() {
	for {
		select {
		case <-p.wake:
			if pr := p.take(); pr != nil {
				p.handler(*pr)
			}
		case <-p.done:
			if pr := p.take(); pr != nil {
				p.handler(*pr)
			}
			return
		}
	}
}

// close flushes the last pending value and stops the pump.
func (p *progressPump) close() {
	close(p.done)
}
