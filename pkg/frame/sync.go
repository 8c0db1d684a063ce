package frame

import (
	"context"
	"time"
)

// TimeoutReader is the byte stream capability consumed by the synchronizer and decoder.
//
// ReadTimeout fills up to len(p) bytes and must return within timeout. Returning fewer
// bytes with a nil error means the timeout expired; it is not a failure.
type TimeoutReader interface {
	ReadTimeout(p []byte, timeout time.Duration) (int, error)
}

// Synchronizer scans a byte stream for the header marker of a FrameLayout.
type Synchronizer struct {
	header  []byte
	timeout time.Duration

	prev     byte
	havePrev bool

	discarded uint64
	timeouts  uint64
	buf       [1]byte
}

// NewSynchronizer creates a Synchronizer for the layout header.
func NewSynchronizer(layout *FrameLayout, timeout time.Duration) *Synchronizer {
	return &Synchronizer{
		header:  append([]byte(nil), layout.Header...),
		timeout: timeout,
	}
}

// Reset clears the sync state and counters for a new acquisition run.
func (s *Synchronizer) Reset() {
	s.prev, s.havePrev = 0, false
	s.discarded, s.timeouts = 0, 0
}

// Discarded returns the number of scanned bytes that were not part of a matched header.
func (s *Synchronizer) Discarded() uint64 {
	return s.discarded
}

// Timeouts returns the number of empty reads seen while scanning.
func (s *Synchronizer) Timeouts() uint64 {
	return s.timeouts
}

// Feed consumes one byte and reports whether it completes the header.
func (s *Synchronizer) Feed(b byte) bool {
	switch len(s.header) {
	case 0:
		return true
	case 1:
		if b == s.header[0] {
			return true
		}
	default:
		if s.havePrev && s.prev == s.header[0] && b == s.header[1] {
			// prev was counted when it arrived; it belongs to the header.
			s.prev, s.havePrev = 0, false
			s.discarded--
			return true
		}
		s.prev, s.havePrev = b, true
	}
	s.discarded++
	return false
}

// Sync reads one byte at a time until the header has been consumed from r.
//
// Timeouts leave the sync state untouched. ctx is only checked between reads, so an
// endless run of noise keeps scanning until the caller cancels.
func (s *Synchronizer) Sync(ctx context.Context, r TimeoutReader) error {
	if len(s.header) == 0 {
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.ReadTimeout(s.buf[:], s.timeout)
		if err != nil {
			return err
		}
		if n == 0 {
			s.timeouts++
			continue
		}
		if s.Feed(s.buf[0]) {
			return nil
		}
	}
}
