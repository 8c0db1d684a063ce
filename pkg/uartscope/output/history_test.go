package output

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/norasector/uartscope/pkg/frame"
)

func sample(i uint64, fields ...frame.FieldValue) frame.SampleRecord {
	return frame.SampleRecord{
		Index:   i,
		Elapsed: time.Duration(i) * 100 * time.Millisecond,
		Time:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 100 * time.Millisecond),
		Fields:  fields,
	}
}

func indexes(recs []frame.SampleRecord) []uint64 {
	out := make([]uint64, len(recs))
	for i, r := range recs {
		out[i] = r.Index
	}
	return out
}

func TestHistoryDropOldest(t *testing.T) {
	h := NewHistory(3, DropOldest)
	for i := uint64(0); i < 5; i++ {
		require.True(t, h.Add(sample(i)))
	}
	require.Equal(t, 3, h.Len())
	require.Equal(t, 3, h.Cap())
	require.EqualValues(t, 2, h.Dropped())
	require.Equal(t, []uint64{2, 3, 4}, indexes(h.Records()))

	h.Reset()
	require.Zero(t, h.Len())
	require.Empty(t, h.Records())
}

func TestHistoryDropNewest(t *testing.T) {
	h := NewHistory(3, DropNewest)
	for i := uint64(0); i < 5; i++ {
		require.Equal(t, i < 3, h.Add(sample(i)))
	}
	require.Equal(t, []uint64{0, 1, 2}, indexes(h.Records()))
	require.EqualValues(t, 2, h.Dropped())
	require.Equal(t, "drop_newest", DropNewest.String())
}

func TestHistorySeriesAndSummary(t *testing.T) {
	h := NewHistory(10, DropOldest)
	require.NoError(t, h.Write(sample(0, frame.FieldValue{Name: "a", Value: 2})))
	require.NoError(t, h.Write(sample(1, frame.FieldValue{Name: "a", Value: 4}, frame.FieldValue{Name: "b", Value: 7})))
	require.NoError(t, h.Write(sample(2, frame.FieldValue{Name: "a", Value: 6})))

	ts, vs := h.Series("a")
	require.Equal(t, []float64{0, 0.1, 0.2}, ts)
	require.Equal(t, []float64{2, 4, 6}, vs)

	sum := h.Summary([]string{"a", "b", "c"})
	require.Len(t, sum, 3)
	require.Equal(t, FieldSummary{Name: "a", Count: 3, Min: 2, Max: 6, Mean: 4, StdDev: 2}, sum[0])
	require.Equal(t, FieldSummary{Name: "b", Count: 1, Min: 7, Max: 7, Mean: 7}, sum[1])
	require.Equal(t, FieldSummary{Name: "c"}, sum[2])
}
