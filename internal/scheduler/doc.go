// Package scheduler fires timed queue-wide actions (start every queued
// transfer, pause every running one). Triggers are either one-shot at a wall
// clock time or recurring on a cron expression.
//
// A single goroutine owns a min-heap of pending triggers and sleeps until
// the earliest one, never longer than 60 seconds at a time so that clock
// steps, DST changes and system sleep are noticed. Triggers are not
// persisted by the scheduler itself; the daemon reloads them from the
// schedule file on start.
package scheduler
