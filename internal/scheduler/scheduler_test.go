package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wanpull/wanpull/common"
)

type recorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *recorder) onTrigger(t Trigger) {
	r.mu.Lock()
	r.fired = append(r.fired, t.ID)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

func TestSchedulerFiresInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	s := New(ctx, rec.onTrigger)

	s.Add(Trigger{ID: "second", Action: common.ActionPauseAll, At: time.Now().Add(200 * time.Millisecond)})
	s.Add(Trigger{ID: "first", Action: common.ActionStartAll, At: time.Now().Add(100 * time.Millisecond)})

	time.Sleep(500 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("fired %v, want [first second]", got)
	}
	if l := s.List(); len(l) != 0 {
		t.Fatalf("one-shot triggers still pending: %+v", l)
	}
}

func TestSchedulerRemoveBeforeFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	s := New(ctx, rec.onTrigger)

	s.Add(Trigger{ID: "x", Action: common.ActionStartAll, At: time.Now().Add(300 * time.Millisecond)})
	if !s.Remove("x") {
		t.Fatal("Remove reported missing trigger")
	}
	if s.Remove("x") {
		t.Fatal("second Remove should report false")
	}
	time.Sleep(500 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("removed trigger fired: %v", got)
	}
}

func TestSchedulerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	s := New(ctx, rec.onTrigger)
	s.Add(Trigger{ID: "x", Action: common.ActionStartAll, At: time.Now().Add(200 * time.Millisecond)})
	cancel()
	time.Sleep(400 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("trigger fired after cancel: %v", got)
	}
	if s.List() != nil {
		t.Fatal("List after cancel should be nil")
	}
}

func TestSchedulerCronReschedules(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	s := New(ctx, rec.onTrigger)

	// already due, so it fires right away and comes back with a future time
	s.Add(Trigger{ID: "cron", Action: common.ActionStartAll, At: time.Now().Add(-time.Second), Cron: "0 3 * * *"})
	time.Sleep(200 * time.Millisecond)

	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("fired %v, want one firing", got)
	}
	l := s.List()
	if len(l) != 1 || !l[0].At.After(time.Now()) {
		t.Fatalf("cron trigger not rescheduled: %+v", l)
	}
}

func TestListSorted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, func(Trigger) {})
	now := time.Now()
	s.Add(Trigger{ID: "c", Action: common.ActionStartAll, At: now.Add(3 * time.Hour)})
	s.Add(Trigger{ID: "a", Action: common.ActionStartAll, At: now.Add(1 * time.Hour)})
	s.Add(Trigger{ID: "b", Action: common.ActionStartAll, At: now.Add(2 * time.Hour)})
	l := s.List()
	if len(l) != 3 || l[0].ID != "a" || l[1].ID != "b" || l[2].ID != "c" {
		t.Fatalf("unexpected order: %+v", l)
	}
}

func TestNewTrigger(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		action  string
		expr    string
		wantErr error
		cron    bool
	}{
		{"cron", common.ActionStartAll, "30 1 * * *", nil, true},
		{"tag", common.ActionPauseAll, "@hourly", nil, true},
		{"one shot", common.ActionStartAll, "2026-05-01T12:00:00Z", nil, false},
		{"past", common.ActionStartAll, "2026-05-01T09:00:00Z", ErrInPast, false},
		{"bad action", "reboot", "@hourly", ErrUnknownAction, false},
		{"bad expr", common.ActionPauseAll, "tomorrow", ErrBadExpression, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTrigger(tt.action, tt.expr, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTrigger: %v", err)
			}
			if (tr.Cron != "") != tt.cron {
				t.Fatalf("cron = %q, want cron=%v", tr.Cron, tt.cron)
			}
			if !tr.At.After(now) || tr.ID == "" {
				t.Fatalf("bad trigger %+v", tr)
			}
		})
	}
}

func TestNextCronOccurrence(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	next, err := nextCronOccurrence("30 1 * * *", start)
	if err != nil {
		t.Fatalf("nextCronOccurrence: %v", err)
	}
	want := time.Date(2026, 5, 2, 1, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestParseFile(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	src := `
# nightly window
start_all 0 1 * * *
pause_all 0 7 * * *

start_all 2026-04-01T00:00:00Z
pause_all 2026-06-01T00:00:00Z
`
	triggers, missed, err := ParseFile(strings.NewReader(src), now)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(triggers) != 3 {
		t.Fatalf("got %d triggers, want 3: %+v", len(triggers), triggers)
	}
	if triggers[0].Cron != "0 1 * * *" || triggers[1].Action != common.ActionPauseAll {
		t.Fatalf("unexpected triggers: %+v", triggers)
	}
	if len(missed) != 1 || !strings.Contains(missed[0], "2026-04-01") {
		t.Fatalf("missed = %v", missed)
	}

	if _, _, err := ParseFile(strings.NewReader("start_all\n"), now); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line error, got %v", err)
	}
	if _, _, err := ParseFile(strings.NewReader("\nexplode @daily\n"), now); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}
