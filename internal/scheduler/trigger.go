package scheduler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/wanpull/wanpull/common"
)

var (
	ErrUnknownAction = errors.New("unknown trigger action")
	ErrBadExpression = errors.New("expression is neither a cron spec nor an RFC 3339 time")
	ErrInPast        = errors.New("trigger time is in the past")
)

// Trigger is one pending action.
type Trigger struct {
	ID     string
	Action string
	// At is the next time the trigger fires.
	At time.Time
	// Cron is the recurrence expression. Empty means one-shot.
	Cron string
}

// Expr returns the expression the trigger was created from.
func (t Trigger) Expr() string {
	if t.Cron != "" {
		return t.Cron
	}
	return t.At.Format(time.RFC3339)
}

func validAction(a string) bool {
	return a == common.ActionStartAll || a == common.ActionPauseAll
}

// NewTrigger validates action and expr. expr is a five or six field cron
// spec, a gronx tag such as @hourly, or an RFC 3339 timestamp after now.
func NewTrigger(action, expr string, now time.Time) (Trigger, error) {
	action = strings.TrimSpace(action)
	expr = strings.TrimSpace(expr)
	if !validAction(action) {
		return Trigger{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	t := Trigger{ID: uuid.NewString()[:8], Action: action}
	if at, err := time.Parse(time.RFC3339, expr); err == nil {
		if !at.After(now) {
			return Trigger{}, fmt.Errorf("%w: %s", ErrInPast, expr)
		}
		t.At = at
		return t, nil
	}
	if !gronx.IsValid(expr) {
		return Trigger{}, fmt.Errorf("%w: %q", ErrBadExpression, expr)
	}
	next, err := nextCronOccurrence(expr, now)
	if err != nil {
		return Trigger{}, fmt.Errorf("%w: %v", ErrBadExpression, err)
	}
	t.At = next
	t.Cron = expr
	return t, nil
}

// ParseFile reads one trigger per line: "<action> <cron spec | RFC 3339>".
// Blank lines and lines starting with # are ignored. One-shot triggers that
// already passed are returned in missed rather than failing the whole file.
func ParseFile(r io.Reader, now time.Time) (triggers []Trigger, missed []string, err error) {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		action, expr, ok := strings.Cut(text, " ")
		if !ok {
			return nil, nil, fmt.Errorf("line %d: expected \"<action> <expression>\"", line)
		}
		t, terr := NewTrigger(action, expr, now)
		if errors.Is(terr, ErrInPast) {
			missed = append(missed, text)
			continue
		}
		if terr != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, terr)
		}
		triggers = append(triggers, t)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return triggers, missed, nil
}

// nextCronOccurrence returns the next time the cron expression fires strictly
// after start.
func nextCronOccurrence(expr string, start time.Time) (time.Time, error) {
	return gronx.NextTickAfter(expr, start, false)
}
