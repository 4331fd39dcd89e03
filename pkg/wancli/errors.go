package wancli

import (
	"errors"

	"github.com/creachadair/jrpc2"
)

// Error codes reported by the daemon.
const (
	CodeNotFound      = -32001
	CodeInvalidParams = -32602
	CodeInternal      = -32000
)

// ErrDisconnected is returned by Watch when the daemon closes the stream.
var ErrDisconnected = errors.New("daemon closed the connection")

// ErrorCode extracts the JSON-RPC error code from err, 0 if err did not
// come from the daemon.
func ErrorCode(err error) int {
	var e *jrpc2.Error
	if errors.As(err, &e) {
		return int(e.Code)
	}
	return 0
}

// ErrorMessage returns the daemon's message for err without the method
// prefix and code decoration, or err.Error() otherwise.
func ErrorMessage(err error) string {
	var e *jrpc2.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func IsNotFound(err error) bool { return ErrorCode(err) == CodeNotFound }
