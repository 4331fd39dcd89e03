package wanlib

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

const (
	DEF_MAX_RETRIES    = 3
	DEF_BASE_DELAY     = 5 * time.Second
	DEF_MAX_DELAY      = 60 * time.Second
	DEF_JITTER_FACTOR  = 0.2
	DEF_BACKOFF_FACTOR = 2.0
)

// RetryPolicy bounds how often a transfer reconnects after a network error.
type RetryPolicy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterFactor  float64
	BackoffFactor float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    DEF_MAX_RETRIES,
		BaseDelay:     DEF_BASE_DELAY,
		MaxDelay:      DEF_MAX_DELAY,
		JitterFactor:  DEF_JITTER_FACTOR,
		BackoffFactor: DEF_BACKOFF_FACTOR,
	}
}

// ErrorClass tells the session what to do with a failed attempt.
type ErrorClass int

const (
	ClassFatal ErrorClass = iota
	ClassRetryable
	ClassThrottled
)

func (c ErrorClass) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassThrottled:
		return "throttled"
	}
	return "fatal"
}

var retryablePatterns = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"eof",
	"temporary failure",
	"no such host",
	"network is unreachable",
	"no route to host",
}

// ClassifyError maps an attempt error to an ErrorClass.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ClassFatal
	}
	var dstErr *DestinationError
	if errors.As(err, &dstErr) || errors.Is(err, context.Canceled) || errors.Is(err, errSessionStopped) {
		return ClassFatal
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode == http.StatusServiceUnavailable:
			return ClassThrottled
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode >= 500:
			return ClassRetryable
		}
		return ClassFatal
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassRetryable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassRetryable
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && isRetryableErrno(errno) {
		return ClassRetryable
	}
	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return ClassRetryable
		}
	}
	return ClassFatal
}

// Backoff returns the delay before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int, class ErrorClass) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1))
	if p.JitterFactor > 0 {
		delay *= 1 + p.JitterFactor*(2*rand.Float64()-1)
	}
	if class == ClassThrottled {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if delay < 0 {
		delay = float64(p.BaseDelay)
	}
	return time.Duration(delay)
}

// Allow reports whether attempt number attempt may be retried.
func (p RetryPolicy) Allow(attempt int, class ErrorClass) bool {
	if class == ClassFatal {
		return false
	}
	return attempt <= p.MaxRetries
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
