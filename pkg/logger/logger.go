// Package logger provides the levelled printf-style logging used by every
// wanpull component, with console, rotating file, fan-out and test backends.
package logger

import (
	"fmt"
	"log"
	"sync"
)

// Logger is the logging interface accepted by all components.
type Logger interface {
	Info(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Error(format string, args ...interface{})
	// Close releases the backend. Safe to call more than once.
	Close() error
}

// StandardLogger writes to a stdlib *log.Logger with a level prefix.
type StandardLogger struct {
	logger *log.Logger
}

// NewStandardLogger wraps l.
func NewStandardLogger(l *log.Logger) *StandardLogger {
	return &StandardLogger{logger: l}
}

func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.logger.Printf("[INFO] "+format, args...)
}

func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.logger.Printf("[WARNING] "+format, args...)
}

func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+format, args...)
}

func (s *StandardLogger) Close() error { return nil }

// NopLogger discards everything.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Info(string, ...interface{})    {}
func (*NopLogger) Warning(string, ...interface{}) {}
func (*NopLogger) Error(string, ...interface{})   {}
func (*NopLogger) Close() error                   { return nil }

// MockLogger records formatted messages for assertions in tests.
// It is safe for concurrent use.
type MockLogger struct {
	mu           sync.Mutex
	infoCalls    []string
	warningCalls []string
	errorCalls   []string
	closed       bool
}

func NewMockLogger() *MockLogger { return &MockLogger{} }

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.record(&m.infoCalls, format, args)
}

func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.record(&m.warningCalls, format, args)
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.record(&m.errorCalls, format, args)
}

func (m *MockLogger) record(dst *[]string, format string, args []interface{}) {
	msg := fmt.Sprintf(format, args...)
	m.mu.Lock()
	*dst = append(*dst, msg)
	m.mu.Unlock()
}

func (m *MockLogger) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MockLogger) InfoCalls() []string    { return m.snapshot(m.infoCalls) }
func (m *MockLogger) WarningCalls() []string { return m.snapshot(m.warningCalls) }
func (m *MockLogger) ErrorCalls() []string   { return m.snapshot(m.errorCalls) }

func (m *MockLogger) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockLogger) snapshot(src []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), src...)
}

var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = (*NopLogger)(nil)
	_ Logger = (*MockLogger)(nil)
)
