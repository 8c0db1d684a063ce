package frame

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func syncAndDecode(t *testing.T, l *FrameLayout, stream ...[]byte) []Fields {
	t.Helper()
	r := newScriptedReader(stream...)
	s := NewSynchronizer(l, time.Millisecond)
	d := NewDecoder(l, time.Millisecond)
	var out []Fields
	for {
		if err := s.Sync(context.Background(), r); err != nil {
			require.ErrorIs(t, err, errStreamEnd)
			return out
		}
		fields, err := d.ReadFrame(r)
		if err != nil {
			if errors.Is(err, ErrIncompleteFrame) {
				continue
			}
			require.ErrorIs(t, err, errStreamEnd)
			return out
		}
		out = append(out, fields)
	}
}

func TestDecodeScenarios(t *testing.T) {
	adc := FrameLayout{
		Name:          "adc",
		Header:        []byte{0xaa},
		PayloadLength: 2,
		Fields:        []FieldSpec{{Name: "value_12", Offsets: []int{0, 1}, Mask: 0x0f, Shift: 8}},
	}
	require.NoError(t, adc.Validate())
	control := mustBuiltin(t, LayoutControl)

	tests := []struct {
		name   string
		layout *FrameLayout
		stream []byte
		want   []map[string]uint64
	}{
		{
			"12 bit value",
			&adc,
			[]byte{0xaa, 0x01, 0x23},
			[]map[string]uint64{{"value_12": 291}},
		},
		{
			"12 bit full scale",
			&adc,
			[]byte{0xaa, 0x0f, 0xff},
			[]map[string]uint64{{"value_12": 4095}},
		},
		{
			"high nibble masked",
			&adc,
			[]byte{0xaa, 0xf1, 0x23},
			[]map[string]uint64{{"value_12": 0x123}},
		},
		{
			"control frame",
			&control,
			[]byte{0xff, 0xff, 0x02, 0x01, 0x00, 0x0a, 0x05},
			[]map[string]uint64{{"mode": 2, "d_ctrl": 256, "yk": 0xa05}},
		},
		{
			"leading noise",
			&control,
			[]byte{0x13, 0x37, 0xff, 0x00, 0xff, 0xff, 0x01, 0x00, 0x10, 0x00, 0x20},
			[]map[string]uint64{{"mode": 1, "d_ctrl": 0x010, "yk": 0x020}},
		},
		{
			"false marker inside noise",
			&control,
			[]byte{0x01, 0xff, 0x02, 0xff, 0xff, 0x03, 0x04, 0x05, 0x06, 0x07},
			[]map[string]uint64{{"mode": 3, "d_ctrl": 0x405, "yk": 0x607}},
		},
		{
			"back to back frames",
			&adc,
			[]byte{0xaa, 0x00, 0x01, 0xaa, 0x00, 0x02, 0x99, 0xaa, 0x00, 0x03},
			[]map[string]uint64{{"value_12": 1}, {"value_12": 2}, {"value_12": 3}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := syncAndDecode(t, tt.layout, tt.stream)
			require.Len(t, got, len(tt.want))
			for i := range got {
				require.Equal(t, tt.want[i], got[i].Map())
			}
		})
	}
}

func TestReadFrameIncomplete(t *testing.T) {
	l := mustBuiltin(t, LayoutControl)
	d := NewDecoder(&l, time.Millisecond)

	// payload_length - 1 bytes, then the stream stalls
	r := newScriptedReader([]byte{0x01, 0x02, 0x03, 0x04}, nil)
	fields, err := d.ReadFrame(r)
	require.ErrorIs(t, err, ErrIncompleteFrame)
	require.Nil(t, fields)
	require.EqualValues(t, 1, d.Incomplete())
}

func TestIncompleteFrameResyncs(t *testing.T) {
	l := mustBuiltin(t, LayoutADC12)
	got := syncAndDecode(t, &l,
		[]byte{0xff, 0x01}, nil,
		[]byte{0xff, 0x02, 0x34},
	)
	require.Len(t, got, 1)
	v, ok := got[0].Get("adc_value")
	require.True(t, ok)
	require.EqualValues(t, 0x234, v)
}

func TestDecodeDeterministic(t *testing.T) {
	l := mustBuiltin(t, LayoutDual)
	payload := []byte{0x12, 0x34, 0xab, 0xcd}
	a, err := Decode(&l, payload)
	require.NoError(t, err)
	b, err := Decode(&l, payload)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, Fields{{"d_ctrl", 0x1234}, {"yk", 0xbcd}}, a)
}

func TestEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		layout string
		in     map[string]uint64
		want   map[string]uint64
	}{
		{LayoutRaw16, map[string]uint64{"value_16bit": 0xbeef}, map[string]uint64{"value_16bit": 0xbeef}},
		{LayoutADC12, map[string]uint64{"adc_value": 4095}, map[string]uint64{"adc_value": 4095}},
		{LayoutADC12, map[string]uint64{"adc_value": 0x1234}, map[string]uint64{"adc_value": 0x234}},
		{LayoutControl, map[string]uint64{"mode": 7, "d_ctrl": 100, "yk": 0xfff}, map[string]uint64{"mode": 7, "d_ctrl": 100, "yk": 0xfff}},
		{LayoutDual, map[string]uint64{"d_ctrl": 0x10000, "yk": 1}, map[string]uint64{"d_ctrl": 0, "yk": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.layout, func(t *testing.T) {
			l := mustBuiltin(t, tt.layout)
			buf := Encode(&l, tt.in)
			require.Len(t, buf, l.FrameLength())
			require.True(t, bytes.Equal(l.Header, buf[:len(l.Header)]), "header %X", buf[:len(l.Header)])

			got, err := Decode(&l, buf[len(l.Header):])
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Map())
		})
	}
}

func TestEncodeRoundTripCustomShift(t *testing.T) {
	l := FrameLayout{
		Name:          "gapped",
		PayloadLength: 3,
		Fields: []FieldSpec{
			{Name: "hi", Offsets: []int{0, 1}, Mask: 0x0f, Shift: 12},
			{Name: "lo", Offsets: []int{2}, Shift: 4},
		},
	}
	require.NoError(t, l.Validate())

	tests := []struct {
		name string
		in   map[string]uint64
		want map[string]uint64
	}{
		{"carried bits", map[string]uint64{"hi": 0xf0ab, "lo": 0xff0}, map[string]uint64{"hi": 0xf0ab, "lo": 0xff0}},
		{"max values", map[string]uint64{"hi": l.Fields[0].MaxValue(), "lo": l.Fields[1].MaxValue()}, map[string]uint64{"hi": 0xf0ff, "lo": 0xff0}},
		{"gap bits dropped", map[string]uint64{"hi": 0x0f00, "lo": 0x00f}, map[string]uint64{"hi": 0, "lo": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(&l, Encode(&l, tt.in))
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Map())
			for _, f := range l.Fields {
				require.Equal(t, tt.in[f.Name]&f.ValueMask(), got.Map()[f.Name])
			}
		})
	}
}

func TestDecodeShortPayload(t *testing.T) {
	l := mustBuiltin(t, LayoutRaw16)
	_, err := Decode(&l, []byte{0x01})
	require.ErrorIs(t, err, ErrIncompleteFrame)
}
