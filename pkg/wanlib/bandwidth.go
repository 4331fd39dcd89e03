package wanlib

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	DEF_BANDWIDTH_SAMPLE  = 500 * time.Millisecond
	DEF_BANDWIDTH_HISTORY = 5 * time.Minute
	DEF_BANDWIDTH_WINDOW  = time.Minute
)

// BandwidthOptions configures a Bandwidth aggregator.
type BandwidthOptions struct {
	// SampleInterval is the spacing of history points.
	SampleInterval time.Duration
	// History is how long samples are retained.
	History time.Duration
	// Window is the trailing span used for peak and average.
	Window time.Duration
	// StaleAfter drops a transfer's last reported rate when it has not
	// reported since, e.g. after a pause.
	StaleAfter time.Duration
}

func (o *BandwidthOptions) setDefaults() {
	if o.SampleInterval <= 0 {
		o.SampleInterval = DEF_BANDWIDTH_SAMPLE
	}
	if o.History <= 0 {
		o.History = DEF_BANDWIDTH_HISTORY
	}
	if o.Window <= 0 {
		o.Window = DEF_BANDWIDTH_WINDOW
	}
	if o.Window > o.History {
		o.Window = o.History
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 4 * o.SampleInterval
		if o.StaleAfter < 2*time.Second {
			o.StaleAfter = 2 * time.Second
		}
	}
}

// RateStats summarizes a rate series in bytes per second. Peak and Average
// only count non-zero samples of the trailing window.
type RateStats struct {
	Current float64 `json:"current"`
	Peak    float64 `json:"peak"`
	Average float64 `json:"average"`
}

// InterfaceBandwidth is the throughput of one source interface.
type InterfaceBandwidth struct {
	InterfaceID   string `json:"interface_id"`
	InterfaceName string `json:"interface_name"`
	RateStats
	// History holds one rate per sample over the window, oldest first.
	History []float64 `json:"history"`
}

// BandwidthStats is a point-in-time view of the aggregator.
type BandwidthStats struct {
	Interfaces     []InterfaceBandwidth `json:"interfaces"`
	Total          RateStats            `json:"total"`
	TotalHistory   []float64            `json:"total_history"`
	SampleInterval time.Duration        `json:"sample_interval"`
	Window         time.Duration        `json:"window"`
}

type liveRate struct {
	iface Interface
	rate  float64
	at    time.Time
}

type bwSeries struct {
	name   string
	points []float64
}

// Bandwidth aggregates transfer progress into per-interface and total
// throughput series.
type Bandwidth struct {
	opts BandwidthOptions

	mu    sync.Mutex
	live  map[TransferID]liveRate
	stamp []time.Time
	total []float64
	ifs   map[string]*bwSeries
}

func NewBandwidth(opts BandwidthOptions) *Bandwidth {
	opts.setDefaults()
	return &Bandwidth{
		opts: opts,
		live: make(map[TransferID]liveRate),
		ifs:  make(map[string]*bwSeries),
	}
}

// Observe records the latest rate of a transfer bound to iface.
func (b *Bandwidth) Observe(iface Interface, p Progress) {
	b.observe(time.Now(), iface, p)
}

func (b *Bandwidth) observe(now time.Time, iface Interface, p Progress) {
	b.mu.Lock()
	b.live[p.ID] = liveRate{iface: iface, rate: p.RateBytesPerSec, at: now}
	b.mu.Unlock()
}

// Forget drops the rate of a transfer that stopped moving bytes.
func (b *Bandwidth) Forget(id TransferID) {
	b.mu.Lock()
	delete(b.live, id)
	b.mu.Unlock()
}

// Run samples every SampleInterval until ctx is done.
func (b *Bandwidth) Run(ctx context.Context) {
	t := time.NewTicker(b.opts.SampleInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			b.sample(now)
		}
	}
}

// sample appends one point per known interface and one total point.
// Interfaces with no live transfer get a zero point, the buffers are reset
// once nothing has moved for a whole history span.
func (b *Bandwidth) sample(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	per := make(map[string]float64)
	var sum float64
	for id, lr := range b.live {
		if now.Sub(lr.at) > b.opts.StaleAfter {
			delete(b.live, id)
			continue
		}
		key := lr.iface.SourceIP
		per[key] += lr.rate
		sum += lr.rate
		if _, ok := b.ifs[key]; !ok {
			b.ifs[key] = &bwSeries{name: lr.iface.Name, points: make([]float64, len(b.stamp))}
		}
	}
	b.stamp = append(b.stamp, now)
	b.total = append(b.total, sum)
	for key, s := range b.ifs {
		s.points = append(s.points, per[key])
	}
	b.trimLocked(now)
}

func (b *Bandwidth) trimLocked(now time.Time) {
	cut := 0
	for cut < len(b.stamp) && now.Sub(b.stamp[cut]) > b.opts.History {
		cut++
	}
	if cut == 0 {
		return
	}
	b.stamp = append(b.stamp[:0], b.stamp[cut:]...)
	b.total = append(b.total[:0], b.total[cut:]...)
	for key, s := range b.ifs {
		s.points = append(s.points[:0], s.points[cut:]...)
		if allZero(s.points) {
			delete(b.ifs, key)
		}
	}
}

// Stats returns current, peak and average rates over the trailing window.
func (b *Bandwidth) Stats() BandwidthStats {
	return b.stats(time.Now())
}

func (b *Bandwidth) stats(now time.Time) BandwidthStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	from := len(b.stamp)
	for from > 0 && now.Sub(b.stamp[from-1]) <= b.opts.Window {
		from--
	}
	st := BandwidthStats{
		Interfaces:     []InterfaceBandwidth{},
		Total:          summarize(b.total[from:]),
		TotalHistory:   append([]float64{}, b.total[from:]...),
		SampleInterval: b.opts.SampleInterval,
		Window:         b.opts.Window,
	}
	for key, s := range b.ifs {
		pts := s.points[from:]
		if allZero(pts) {
			continue
		}
		st.Interfaces = append(st.Interfaces, InterfaceBandwidth{
			InterfaceID:   key,
			InterfaceName: s.name,
			RateStats:     summarize(pts),
			History:       append([]float64{}, pts...),
		})
	}
	sort.Slice(st.Interfaces, func(i, j int) bool {
		return st.Interfaces[i].InterfaceID < st.Interfaces[j].InterfaceID
	})
	return st
}

func summarize(pts []float64) RateStats {
	var rs RateStats
	if len(pts) == 0 {
		return rs
	}
	rs.Current = pts[len(pts)-1]
	var sum float64
	var n int
	for _, v := range pts {
		if v <= 0 {
			continue
		}
		sum += v
		n++
		if v > rs.Peak {
			rs.Peak = v
		}
	}
	if n > 0 {
		rs.Average = sum / float64(n)
	}
	return rs
}

func allZero(pts []float64) bool {
	for _, v := range pts {
		if v > 0 {
			return false
		}
	}
	return true
}
