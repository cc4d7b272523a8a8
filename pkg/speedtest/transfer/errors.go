package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned for invalid size, duration or
	// concurrency parameters. It is reported before any network activity.
	ErrInvalidConfig = errors.New("invalid transfer configuration")

	// ErrUnreachable is returned when a phase ends without moving a single
	// byte and at least one attempt failed.
	ErrUnreachable = errors.New("server unreachable")

	// ErrEmptyBody is returned by a download attempt whose response ended
	// before any byte was read. It is retried like a transport error.
	ErrEmptyBody = errors.New("download: empty response body")
)

// ProtocolError reports a response from the server that does not follow the
// protocol. It fails the whole phase.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func protocolErrorf(format string, args ...interface{}) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

func invalidConfigf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
