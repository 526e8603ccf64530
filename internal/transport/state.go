package transport

import "time"

// State is where one action is in its request lifecycle.
type State int

const (
	Idle State = iota
	Sending
	Streaming
	Retrying
	Success
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case Retrying:
		return "retrying"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Active reports whether a request is in flight or waiting to retry.
func (s State) Active() bool {
	return s == Sending || s == Streaming || s == Retrying
}

// Terminal reports whether the action has finished one way or another.
func (s State) Terminal() bool {
	return s == Success || s == Failed || s == Cancelled
}

// RetryState lives for one Do call.
type RetryState struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Cancelled   bool
}
