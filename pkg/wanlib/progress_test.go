package wanlib

import (
	"sync"
	"testing"
	"time"
)

func TestRateMeterTrailingWindow(t *testing.T) {
	m := newRateMeter(time.Second)
	base := time.Now()
	if r := m.rate(base); r != 0 {
		t.Fatalf("empty meter rate = %v", r)
	}
	for i := 0; i < 10; i++ {
		m.observe(base.Add(time.Duration(i)*100*time.Millisecond), 1000)
	}
	got := m.rate(base.Add(time.Second))
	if got < 8000 || got > 11000 {
		t.Fatalf("rate after steady 10KB/s = %v", got)
	}
	// stall: nothing new for 2 seconds, the window must forget old bytes
	if r := m.rate(base.Add(3 * time.Second)); r != 0 {
		t.Fatalf("rate after stall = %v, want 0", r)
	}
}

func TestRateMeterBurstIsNotAveragedAway(t *testing.T) {
	m := newRateMeter(time.Second)
	base := time.Now()
	m.observe(base, 100)
	m.observe(base.Add(10*time.Second), 50000)
	m.observe(base.Add(10*time.Second+500*time.Millisecond), 50000)
	r := m.rate(base.Add(11 * time.Second))
	if r < 90000 {
		t.Fatalf("rate = %v, want current throughput near 100000", r)
	}
}

func TestProgressPumpNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var got []Progress
	p := newProgressPump(func(pr Progress) {
		<-release
		mu.Lock()
		got = append(got, pr)
		mu.Unlock()
	})
	start := time.Now()
	for i := int64(1); i <= 1000; i++ {
		p.offer(Progress{BytesTransferred: i})
	}
	if el := time.Since(start); el > time.Second {
		t.Fatalf("offer blocked for %v", el)
	}
	close(release)
	p.close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		last := int64(0)
		if n > 0 {
			last = got[n-1].BytesTransferred
		}
		mu.Unlock()
		if last == 1000 {
			if n > 3 {
				t.Fatalf("delivered %d values, want coalesced delivery", n)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("latest value was never delivered")
}
