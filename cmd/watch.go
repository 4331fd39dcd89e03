package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"

	cmdCommon "github.com/wanpull/wanpull/cmd/common"
	"github.com/wanpull/wanpull/pkg/wancli"
	"github.com/wanpull/wanpull/pkg/wanlib"
)

var (
	watchUntilDone bool

	watchFlags = withClientFlags(
		cli.BoolFlag{
			Name:        "until-done, u",
			Usage:       "exit once no transfer is active",
			Destination: &watchUntilDone,
		},
	)
)

// barSet keeps one progress bar per active transfer.
type barSet struct {
	mu   sync.Mutex
	p    *mpb.Progress
	bars map[wanlib.TransferID]*mpb.Bar
	// idle is called when the last bar finishes.
	idle func()
}

func newBarSet(p *mpb.Progress, idle func()) *barSet {
	return &barSet{p: p, bars: make(map[wanlib.TransferID]*mpb.Bar), idle: idle}
}

func (s *barSet) seed(recs []wanlib.TransferRecord) {
	for _, r := range recs {
		if r.State == wanlib.StateActive {
			s.progress(wanlib.Progress{ID: r.Request.ID, BytesTransferred: r.BytesTransferred, TotalBytes: r.TotalBytes})
		}
	}
}

func (s *barSet) progress(p wanlib.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bar, ok := s.bars[p.ID]
	if !ok {
		bar = cmdCommon.NewTransferBar(s.p, cmdCommon.Truncate(string(p.ID), idWidth), p.TotalBytes, p.BytesTransferred)
		s.bars[p.ID] = bar
		return
	}
	if p.TotalBytes > 0 {
		bar.SetTotal(p.TotalBytes, false)
	} else if p.BytesTransferred > bar.Current() {
		// unknown size, keep the bar just ahead of the counter
		bar.SetTotal(p.BytesTransferred+1, false)
	}
	bar.SetCurrent(p.BytesTransferred)
}

func (s *barSet) terminal(ev wanlib.TerminalEvent) {
	s.mu.Lock()
	bar, ok := s.bars[ev.ID]
	if ok {
		if ev.Outcome == wanlib.OutcomeCompleted {
			bar.SetCurrent(ev.BytesTransferred)
			bar.SetTotal(-1, true)
		} else {
			bar.Abort(false)
		}
		delete(s.bars, ev.ID)
	}
	empty := len(s.bars) == 0
	s.mu.Unlock()
	if empty && s.idle != nil {
		s.idle()
	}
}

// state drops the bar of a transfer that left the active state without
// finishing, e.g. paused.
func (s *barSet) state(ch wanlib.StateChange) {
	if ch.From != wanlib.StateActive || ch.To.IsTerminal() {
		return
	}
	s.mu.Lock()
	if bar, ok := s.bars[ch.ID]; ok {
		bar.Abort(false)
		delete(s.bars, ch.ID)
	}
	empty := len(s.bars) == 0
	s.mu.Unlock()
	if empty && s.idle != nil {
		s.idle()
	}
}

func (s *barSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bars)
}

func (s *barSet) abortAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, bar := range s.bars {
		bar.Abort(false)
		delete(s.bars, id)
	}
}

func watch(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	wctx, done := context.WithCancel(sigCtx)
	defer done()

	client := newClient()
	defer client.Close()

	p := mpb.New(mpb.WithWidth(64), mpb.WithRefreshRate(150*time.Millisecond), mpb.WithAutoRefresh())
	var idle func()
	if watchUntilDone {
		idle = done
	}
	bars := newBarSet(p, idle)
	err := client.Watch(wctx, wancli.NotifyHandlers{
		Ready: func() {
			recs, err := client.List(wctx)
			if err != nil {
				return
			}
			bars.seed(recs)
			if watchUntilDone && bars.count() == 0 {
				done()
			}
		},
		Progress: bars.progress,
		Terminal: bars.terminal,
		State:    bars.state,
	})
	bars.abortAll()
	p.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		cmdCommon.PrintRuntimeErr(ctx, "watch", "stream", err)
	}
	return nil
}
