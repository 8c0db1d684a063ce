package device

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	data   []byte
	closed bool
}

func (s *sliceSource) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	n := copy(p, s.data)
	s.data = s.data[n:]
	return n, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func TestRecordingSource(t *testing.T) {
	inner := &sliceSource{data: []byte{0xff, 0xff, 0x01, 0x02, 0x03}}
	path := filepath.Join(t.TempDir(), "rec.bin")
	rec, err := NewRecordingSource(inner, path)
	require.NoError(t, err)

	buf := make([]byte, 3)
	n, err := rec.ReadTimeout(buf, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	n, err = rec.ReadTimeout(buf, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	n, err = rec.ReadTimeout(buf, time.Millisecond)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, rec.Close())
	require.True(t, inner.closed)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xff, 0x01, 0x02, 0x03}, got)
}
