// Package frame turns a timeout-prone byte stream into decoded, indexed samples
// according to a declarative FrameLayout.
package frame

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

const (
	// MaxHeaderLength is the longest header marker sequence supported.
	MaxHeaderLength = 2
	// MaxFieldWidth is the widest field that fits a decoded value.
	MaxFieldWidth = 64
)

var (
	// ErrIncompleteFrame is returned when a payload read comes back short.
	// It is recoverable: the caller should resynchronize.
	ErrIncompleteFrame = errors.New("frame: incomplete frame")
	// ErrInvalidLayout is wrapped by every FrameLayout validation error.
	ErrInvalidLayout = errors.New("frame: invalid layout")
)

// FieldSpec describes how one unsigned integer field is rebuilt from payload bytes.
//
// The first offset is the most significant byte. It is masked with Mask and shifted
// left by Shift. The remaining bytes are combined big-endian below it.
type FieldSpec struct {
	Name    string
	Offsets []int
	// Mask applies to the first byte only. Zero means 0xFF.
	Mask byte
	// Shift defaults to 8 bits per trailing byte.
	Shift uint
}

// FrameLayout describes one wire format: header marker, payload length and fields.
type FrameLayout struct {
	Name          string
	Header        []byte
	PayloadLength int
	Fields        []FieldSpec
}

func (f FieldSpec) mask() byte {
	if f.Mask == 0 {
		return 0xff
	}
	return f.Mask
}

func (f FieldSpec) shift() uint {
	if f.Shift == 0 && len(f.Offsets) > 1 {
		return uint(8 * (len(f.Offsets) - 1))
	}
	return f.Shift
}

// lowMask covers the bytes after the first offset.
func (f FieldSpec) lowMask() uint64 {
	n := 8 * (len(f.Offsets) - 1)
	if n <= 0 {
		return 0
	}
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(n) - 1
}

// ValueMask returns the bits of a value that the field carries on the wire. A Shift
// larger than the trailing bytes leaves a gap of bits that are always zero.
func (f FieldSpec) ValueMask() uint64 {
	if len(f.Offsets) == 0 {
		return 0
	}
	var high uint64
	if s := f.shift(); s < 64 {
		high = uint64(f.mask()) << s
	}
	return high | f.lowMask()
}

// Width returns the number of bits the field can carry.
func (f FieldSpec) Width() int {
	return bits.OnesCount64(f.ValueMask())
}

// span is the position of the highest bit plus one.
func (f FieldSpec) span() int {
	if len(f.Offsets) == 0 {
		return 0
	}
	return int(f.shift()) + bits.Len8(f.mask())
}

// MaxValue returns the largest value the field can carry.
func (f FieldSpec) MaxValue() uint64 {
	return f.ValueMask()
}

// FrameLength returns header plus payload length in bytes.
func (l *FrameLayout) FrameLength() int {
	return len(l.Header) + l.PayloadLength
}

// FieldNames returns the field names in declaration order.
func (l *FrameLayout) FieldNames() []string {
	names := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks the layout invariants and fills in defaulted Mask and Shift values.
func (l *FrameLayout) Validate() error {
	if len(l.Header) > MaxHeaderLength {
		return fmt.Errorf("%w: header has %d bytes, at most %d supported", ErrInvalidLayout, len(l.Header), MaxHeaderLength)
	}
	if l.PayloadLength < 1 {
		return fmt.Errorf("%w: payload length %d", ErrInvalidLayout, l.PayloadLength)
	}
	if len(l.Fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidLayout)
	}

	names := make(map[string]struct{}, len(l.Fields))
	used := make(map[int]string, l.PayloadLength)
	for i := range l.Fields {
		f := &l.Fields[i]
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: field %d has no name", ErrInvalidLayout, i)
		}
		if _, ok := names[f.Name]; ok {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidLayout, f.Name)
		}
		names[f.Name] = struct{}{}

		if len(f.Offsets) == 0 {
			return fmt.Errorf("%w: field %q references no bytes", ErrInvalidLayout, f.Name)
		}
		for _, off := range f.Offsets {
			if off < 0 || off >= l.PayloadLength {
				return fmt.Errorf("%w: field %q offset %d outside payload of %d bytes", ErrInvalidLayout, f.Name, off, l.PayloadLength)
			}
			if other, ok := used[off]; ok {
				return fmt.Errorf("%w: field %q overlaps field %q at offset %d", ErrInvalidLayout, f.Name, other, off)
			}
			used[off] = f.Name
		}

		minShift := uint(8 * (len(f.Offsets) - 1))
		f.Mask = f.mask()
		f.Shift = f.shift()
		if f.Shift < minShift {
			return fmt.Errorf("%w: field %q shift %d below %d", ErrInvalidLayout, f.Name, f.Shift, minShift)
		}
		if f.span() > MaxFieldWidth {
			return fmt.Errorf("%w: field %q is %d bits wide", ErrInvalidLayout, f.Name, f.span())
		}
	}
	return nil
}

// String renders the layout as a frame diagram, e.g. "control: [FF FF] mode:8 d_ctrl:12 yk:12 (5 bytes)".
func (l *FrameLayout) String() string {
	var sb strings.Builder
	sb.WriteString(l.Name)
	sb.WriteString(": [")
	for i, b := range l.Header {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	sb.WriteByte(']')
	for _, f := range l.Fields {
		fmt.Fprintf(&sb, " %s:%d", f.Name, f.Width())
	}
	fmt.Fprintf(&sb, " (%d bytes)", l.PayloadLength)
	return sb.String()
}
