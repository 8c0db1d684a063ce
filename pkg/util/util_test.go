package util

import (
	"errors"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/stretchr/testify/require"
)

func TestSampleRate(t *testing.T) {
	require.Zero(t, SampleRate(10, 0))
	require.Equal(t, 20.0, SampleRate(10, 500*time.Millisecond))
}

func TestTimeOperation(t *testing.T) {
	us := TimeOperationMicroseconds(func() { time.Sleep(2 * time.Millisecond) })
	require.GreaterOrEqual(t, us, int64(2000))

	boom := errors.New("boom")
	_, err := TimeOperationErr(func() error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestRecordingWriteAPI(t *testing.T) {
	rec := &RecordingWriteAPI{}
	var w api.WriteAPI = rec
	w.WritePoint(influxdb2.NewPoint("a", nil, map[string]interface{}{"v": 1}, time.Now()))
	w.WritePoint(influxdb2.NewPoint("b", nil, map[string]interface{}{"v": 2}, time.Now()))
	w.Flush()

	require.Len(t, rec.Points(), 2)
	require.Len(t, rec.Named("b"), 1)
	require.Equal(t, 1, rec.Flushes())

	var _ api.WriteAPI = &MockWriteAPI{}
}
