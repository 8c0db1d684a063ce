package frame

import (
	"fmt"
	"sort"
)

// Built-in layout names.
const (
	LayoutRaw16   = "raw16"
	LayoutADC12   = "adc12"
	LayoutControl = "control"
	LayoutDual    = "dual"
)

var builtinLayouts = map[string]FrameLayout{
	// [HI][LO], no marker.
	LayoutRaw16: {
		Name:          LayoutRaw16,
		PayloadLength: 2,
		Fields: []FieldSpec{
			{Name: "value_16bit", Offsets: []int{0, 1}},
		},
	},
	// [0xFF][ADRESH][ADRESL]
	LayoutADC12: {
		Name:          LayoutADC12,
		Header:        []byte{0xff},
		PayloadLength: 2,
		Fields: []FieldSpec{
			{Name: "adc_value", Offsets: []int{0, 1}, Mask: 0x0f, Shift: 8},
		},
	},
	// [0xFF][0xFF][MODE][D_ctrl_H][D_ctrl_L][YkH][YkL]
	LayoutControl: {
		Name:          LayoutControl,
		Header:        []byte{0xff, 0xff},
		PayloadLength: 5,
		Fields: []FieldSpec{
			{Name: "mode", Offsets: []int{0}},
			{Name: "d_ctrl", Offsets: []int{1, 2}, Mask: 0x0f, Shift: 8},
			{Name: "yk", Offsets: []int{3, 4}, Mask: 0x0f, Shift: 8},
		},
	},
	// [D_ctrl_H][D_ctrl_L][YkH][YkL], no marker.
	LayoutDual: {
		Name:          LayoutDual,
		PayloadLength: 4,
		Fields: []FieldSpec{
			{Name: "d_ctrl", Offsets: []int{0, 1}},
			{Name: "yk", Offsets: []int{2, 3}, Mask: 0x0f, Shift: 8},
		},
	},
}

// Builtin returns a validated copy of a built-in layout.
func Builtin(name string) (FrameLayout, error) {
	l, ok := builtinLayouts[name]
	if !ok {
		return FrameLayout{}, fmt.Errorf("%w: unknown layout %q", ErrInvalidLayout, name)
	}
	l = l.Clone()
	if err := l.Validate(); err != nil {
		return FrameLayout{}, err
	}
	return l, nil
}

// BuiltinNames lists the built-in layouts in name order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinLayouts))
	for name := range builtinLayouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy that shares no slices with l.
func (l FrameLayout) Clone() FrameLayout {
	out := l
	out.Header = append([]byte(nil), l.Header...)
	out.Fields = make([]FieldSpec, len(l.Fields))
	for i, f := range l.Fields {
		f.Offsets = append([]int(nil), f.Offsets...)
		out.Fields[i] = f
	}
	return out
}
