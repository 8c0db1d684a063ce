package output

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/norasector/uartscope/pkg/frame"
)

// OverflowPolicy decides what a full History does with a new sample.
type OverflowPolicy int

const (
	// DropOldest overwrites the oldest retained sample.
	DropOldest OverflowPolicy = iota
	// DropNewest keeps the retained window and discards the new sample.
	DropNewest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop_newest"
	default:
		return "drop_oldest"
	}
}

// History is a bounded ring of samples. It is safe for concurrent use.
type History struct {
	mu      sync.RWMutex
	buf     []frame.SampleRecord
	head    int
	size    int
	policy  OverflowPolicy
	dropped uint64
}

// NewHistory creates a History retaining at most capacity samples.
func NewHistory(capacity int, policy OverflowPolicy) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		buf:    make([]frame.SampleRecord, capacity),
		policy: policy,
	}
}

// Add stores rec and reports whether it was retained.
func (h *History) Add(rec frame.SampleRecord) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size < len(h.buf) {
		h.buf[(h.head+h.size)%len(h.buf)] = rec
		h.size++
		return true
	}
	h.dropped++
	if h.policy == DropNewest {
		return false
	}
	h.buf[h.head] = rec
	h.head = (h.head + 1) % len(h.buf)
	return true
}

// Write implements Sink.
func (h *History) Write(rec frame.SampleRecord) error {
	h.Add(rec)
	return nil
}

// Flush implements Sink.
func (h *History) Flush() error { return nil }

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

func (h *History) Cap() int {
	return len(h.buf)
}

// Dropped returns how many samples overflowed the ring.
func (h *History) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Reset empties the ring.
func (h *History) Reset() {
	h.mu.Lock()
	h.head, h.size, h.dropped = 0, 0, 0
	h.mu.Unlock()
}

// Records returns the retained samples, oldest first.
func (h *History) Records() []frame.SampleRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]frame.SampleRecord, h.size)
	for i := range out {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

// Series returns elapsed seconds and values of one field, oldest first. Samples that
// lack the field are skipped.
func (h *History) Series(name string) (t, v []float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t = make([]float64, 0, h.size)
	v = make([]float64, 0, h.size)
	for i := 0; i < h.size; i++ {
		rec := &h.buf[(h.head+i)%len(h.buf)]
		val, ok := rec.Fields.Get(name)
		if !ok {
			continue
		}
		t = append(t, rec.ElapsedSeconds())
		v = append(v, float64(val))
	}
	return t, v
}

// FieldSummary describes one field over the retained window.
type FieldSummary struct {
	Name   string  `json:"name" yaml:"name"`
	Count  int     `json:"count" yaml:"count"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"stddev" yaml:"stddev"`
}

// Summary computes FieldSummary values for names, in order.
func (h *History) Summary(names []string) []FieldSummary {
	out := make([]FieldSummary, 0, len(names))
	for _, name := range names {
		_, v := h.Series(name)
		s := FieldSummary{Name: name, Count: len(v)}
		if len(v) > 0 {
			s.Min, s.Max = math.Inf(1), math.Inf(-1)
			for _, x := range v {
				s.Min = math.Min(s.Min, x)
				s.Max = math.Max(s.Max, x)
			}
			s.Mean, s.StdDev = stat.MeanStdDev(v, nil)
			if len(v) == 1 {
				s.StdDev = 0
			}
		}
		out = append(out, s)
	}
	return out
}
