package logger

import (
	"log"
	"strings"
)

// ToStdLogger adapts l for APIs that require a *log.Logger, such as
// http.Server.ErrorLog. Lines are forwarded at error level.
func ToStdLogger(l Logger) *log.Logger {
	return log.New(stdWriter{l}, "", 0)
}

type stdWriter struct {
	l Logger
}

func (w stdWriter) Write(p []byte) (int, error) {
	w.l.Error("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
