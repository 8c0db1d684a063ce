package util

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// MockWriteAPI discards everything. It is the default when no InfluxDB is configured.
type MockWriteAPI struct{}

func (m *MockWriteAPI) WriteRecord(line string) {}

func (m *MockWriteAPI) WritePoint(point *write.Point) {}

func (m *MockWriteAPI) Flush() {}

func (m *MockWriteAPI) Close() {}

func (m *MockWriteAPI) Errors() <-chan error { return nil }

// RecordingWriteAPI keeps every point written to it.
type RecordingWriteAPI struct {
	MockWriteAPI

	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (r *RecordingWriteAPI) WritePoint(point *write.Point) {
	r.mu.Lock()
	r.points = append(r.points, point)
	r.mu.Unlock()
}

func (r *RecordingWriteAPI) Flush() {
	r.mu.Lock()
	r.flushes++
	r.mu.Unlock()
}

// Points returns the points written so far.
func (r *RecordingWriteAPI) Points() []*write.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*write.Point(nil), r.points...)
}

// Named returns the points written to measurement name.
func (r *RecordingWriteAPI) Named(name string) []*write.Point {
	var out []*write.Point
	for _, p := range r.Points() {
		if p.Name() == name {
			out = append(out, p)
		}
	}
	return out
}

func (r *RecordingWriteAPI) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}
