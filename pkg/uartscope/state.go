package uartscope

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceFailed wraps any error reported by the byte source, including io.EOF at
	// the end of a replay file.
	ErrSourceFailed = errors.New("byte source failed")
	// ErrSinkFailed wraps an error returned by a sink's Write or Flush.
	ErrSinkFailed = errors.New("sink failed")
	// ErrStopped is returned by Next once the acquisition has stopped.
	ErrStopped = errors.New("acquisition stopped")
)

// State is the position of the acquisition loop in its cycle.
type State int32

const (
	StateSearching State = iota
	StateReadingPayload
	StateEmitting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateReadingPayload:
		return "reading_payload"
	case StateEmitting:
		return "emitting"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// StopReason tells why an acquisition ended.
type StopReason int

const (
	StopNone StopReason = iota
	StopLimitReached
	StopCancelled
	StopSourceFailed
	StopSinkFailed
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopLimitReached:
		return "limit_reached"
	case StopCancelled:
		return "cancelled"
	case StopSourceFailed:
		return "source_failed"
	case StopSinkFailed:
		return "sink_failed"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}
