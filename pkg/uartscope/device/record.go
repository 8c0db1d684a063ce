package device

import (
	"bufio"
	"fmt"
	"os"
	"time"
)

// RecordingSource tees every byte read from a Source into a capture file that can be
// replayed later with the file source.
type RecordingSource struct {
	Source
	f *os.File
	w *bufio.Writer
}

// NewRecordingSource wraps src and records into path, truncating an existing file.
func NewRecordingSource(src Source, path string) (*RecordingSource, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	return &RecordingSource{
		Source: src,
		f:      f,
		w:      bufio.NewWriter(f),
	}, nil
}

// ReadTimeout implements Source.
func (r *RecordingSource) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	n, err := r.Source.ReadTimeout(p, timeout)
	if n > 0 {
		if _, werr := r.w.Write(p[:n]); werr != nil && err == nil {
			err = fmt.Errorf("write recording: %w", werr)
		}
	}
	return n, err
}

// Close flushes the recording and closes both the file and the wrapped source.
func (r *RecordingSource) Close() error {
	ferr := r.w.Flush()
	if err := r.f.Close(); ferr == nil {
		ferr = err
	}
	if err := r.Source.Close(); err != nil {
		return err
	}
	return ferr
}
