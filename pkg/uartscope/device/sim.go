package device

import (
	"math"
	"os"
	"time"

	"github.com/norasector/uartscope/pkg/frame"
)

// SimulatedSource emits frames of a layout carrying slow sine waves, one per field,
// for exercising the pipeline without hardware.
type SimulatedSource struct {
	layout   frame.FrameLayout
	interval time.Duration
	next     time.Time
	pending  []byte
	frames   uint64
	closed   bool
}

// NewSimulatedSource produces rate frames per second. A rate <= 0 produces frames as
// fast as they are read.
func NewSimulatedSource(layout frame.FrameLayout, rate float64) *SimulatedSource {
	s := &SimulatedSource{layout: layout}
	if rate > 0 {
		s.interval = time.Duration(float64(time.Second) / rate)
	}
	return s
}

// Frames returns the number of frames generated so far.
func (s *SimulatedSource) Frames() uint64 {
	return s.frames
}

func (s *SimulatedSource) values() map[string]uint64 {
	values := make(map[string]uint64, len(s.layout.Fields))
	for i, f := range s.layout.Fields {
		phase := 2*math.Pi*float64(s.frames)/64 + float64(i)
		values[f.Name] = uint64((math.Sin(phase) + 1) / 2 * float64(f.MaxValue()))
	}
	return values
}

// ReadTimeout implements Source.
func (s *SimulatedSource) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	deadline := time.Now().Add(timeout)
	got := 0
	for got < len(p) {
		if len(s.pending) == 0 {
			now := time.Now()
			if s.next.IsZero() {
				s.next = now
			}
			if s.next.After(deadline) {
				time.Sleep(time.Until(deadline))
				break
			}
			time.Sleep(s.next.Sub(now))
			s.pending = frame.Encode(&s.layout, s.values())
			s.next = s.next.Add(s.interval)
			s.frames++
		}
		n := copy(p[got:], s.pending)
		s.pending = s.pending[n:]
		got += n
	}
	return got, nil
}

// Close implements Source.
func (s *SimulatedSource) Close() error {
	s.closed = true
	return nil
}
