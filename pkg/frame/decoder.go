package frame

import (
	"fmt"
	"time"
)

// FieldValue is one decoded field.
type FieldValue struct {
	Name  string
	Value uint64
}

// Fields holds decoded values in field declaration order.
type Fields []FieldValue

// Get returns the value of the named field.
func (f Fields) Get(name string) (uint64, bool) {
	for _, v := range f {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// Map returns the values keyed by field name.
func (f Fields) Map() map[string]uint64 {
	m := make(map[string]uint64, len(f))
	for _, v := range f {
		m[v.Name] = v.Value
	}
	return m
}

// Decoder reads and interprets the fixed-length payload that follows a header.
type Decoder struct {
	layout  *FrameLayout
	timeout time.Duration
	payload []byte

	incomplete uint64
}

// NewDecoder creates a Decoder. The layout must already be validated.
func NewDecoder(layout *FrameLayout, timeout time.Duration) *Decoder {
	return &Decoder{
		layout:  layout,
		timeout: timeout,
		payload: make([]byte, layout.PayloadLength),
	}
}

// Incomplete returns the number of short payload reads seen so far.
func (d *Decoder) Incomplete() uint64 {
	return d.incomplete
}

// Reset clears the counters.
func (d *Decoder) Reset() {
	d.incomplete = 0
}

// ReadFrame issues one payload read on r and decodes it.
// A short read returns ErrIncompleteFrame and nothing is decoded.
func (d *Decoder) ReadFrame(r TimeoutReader) (Fields, error) {
	n, err := r.ReadTimeout(d.payload, d.timeout)
	if err != nil {
		return nil, err
	}
	if n < len(d.payload) {
		d.incomplete++
		return nil, fmt.Errorf("%w: got %d of %d payload bytes", ErrIncompleteFrame, n, len(d.payload))
	}
	return d.Decode(d.payload)
}

// Decode applies every FieldSpec to a full payload.
func (d *Decoder) Decode(payload []byte) (Fields, error) {
	return Decode(d.layout, payload)
}

// Decode applies every FieldSpec of layout to payload.
func Decode(layout *FrameLayout, payload []byte) (Fields, error) {
	if len(payload) < layout.PayloadLength {
		return nil, fmt.Errorf("%w: got %d of %d payload bytes", ErrIncompleteFrame, len(payload), layout.PayloadLength)
	}
	out := make(Fields, len(layout.Fields))
	for i, f := range layout.Fields {
		out[i] = FieldValue{Name: f.Name, Value: f.extract(payload)}
	}
	return out, nil
}

func (f FieldSpec) extract(payload []byte) uint64 {
	v := uint64(payload[f.Offsets[0]]&f.mask()) << f.shift()
	var low uint64
	for _, off := range f.Offsets[1:] {
		low = low<<8 | uint64(payload[off])
	}
	return v | low
}

// Encode builds a complete frame (header and payload) carrying values.
// Values are masked to the field's ValueMask, missing values encode as zero.
func Encode(layout *FrameLayout, values map[string]uint64) []byte {
	buf := make([]byte, layout.FrameLength())
	copy(buf, layout.Header)
	payload := buf[len(layout.Header):]
	for _, f := range layout.Fields {
		v := values[f.Name] & f.ValueMask()
		payload[f.Offsets[0]] = byte(v>>f.shift()) & f.mask()
		low := v & f.lowMask()
		for i := len(f.Offsets) - 1; i >= 1; i-- {
			payload[f.Offsets[i]] = byte(low)
			low >>= 8
		}
	}
	return buf
}
