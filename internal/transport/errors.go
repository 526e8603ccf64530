package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrGatewayTimeout means the response was not a stream, typically an
	// intermediary's timeout page.
	ErrGatewayTimeout = errors.New("gateway timeout")
	// ErrEmptyResponse means the stream closed without a terminal event.
	ErrEmptyResponse = errors.New("empty response")
	ErrNetwork       = errors.New("network error")
	ErrCancelled     = fmt.Errorf("request cancelled: %w", context.Canceled)
)

// GatewayError carries the status of a non-stream response.
type GatewayError struct {
	StatusCode int
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway timeout (HTTP %d)", e.StatusCode)
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGatewayTimeout
}

// ApplicationError is an error terminal event sent by the relay. It is
// never retried.
type ApplicationError struct {
	Message   string
	ElapsedMs *int64
}

func (e *ApplicationError) Error() string {
	return e.Message
}

// ExhaustedError is returned once every attempt failed transiently.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsTransient reports whether err warrants another attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrGatewayTimeout) ||
		errors.Is(err, ErrEmptyResponse) ||
		errors.Is(err, ErrNetwork)
}

// ReasonLabel is the short operator-facing name of a transient failure.
func ReasonLabel(err error) string {
	var gw *GatewayError
	switch {
	case errors.As(err, &gw):
		return gw.Error()
	case errors.Is(err, ErrEmptyResponse):
		return "empty response"
	case errors.Is(err, ErrNetwork):
		return "network error"
	case err != nil:
		return err.Error()
	default:
		return ""
	}
}

// RetryMessage renders the notice shown while waiting for the next attempt.
func RetryMessage(rs RetryState, reason error) string {
	return fmt.Sprintf("Attempt %d/%d - %s, retrying in %s...",
		rs.Attempt, rs.MaxAttempts, ReasonLabel(reason), rs.Delay)
}
