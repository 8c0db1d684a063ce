package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options controls how a capture file is replayed.
type Options struct {
	// Interval paces reads to emulate a slow link. Zero replays as fast as possible.
	Interval time.Duration
	// Follow keeps waiting for new data at the end of the file instead of returning io.EOF.
	Follow bool
}

// FileSource replays a raw byte capture.
type FileSource struct {
	readFile *os.File
	opts     Options
	watcher  *fsnotify.Watcher
	lastRead time.Time
}

// NewFileSource opens a capture file for replay.
func NewFileSource(file string, opts Options) (*FileSource, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	src := &FileSource{readFile: f, opts: opts}
	if opts.Follow {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("watch %s: %w", file, err)
		}
		if err := w.Add(file); err != nil {
			w.Close()
			f.Close()
			return nil, fmt.Errorf("watch %s: %w", file, err)
		}
		src.watcher = w
	}
	return src, nil
}

// ReadTimeout implements device.Source. At the end of the file it returns io.EOF,
// or in follow mode waits up to timeout for the file to grow.
func (f *FileSource) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	if f.opts.Interval > 0 {
		if wait := f.opts.Interval - time.Since(f.lastRead); wait > 0 {
			time.Sleep(wait)
		}
		f.lastRead = time.Now()
	}

	deadline := time.Now().Add(timeout)
	got := 0
	for got < len(p) {
		n, err := f.readFile.Read(p[got:])
		got += n
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			return got, err
		}
		if !f.opts.Follow {
			if got > 0 {
				// short read; io.EOF surfaces on the next call
				return got, nil
			}
			return 0, io.EOF
		}
		if !f.waitForWrite(time.Until(deadline)) {
			break
		}
	}
	return got, nil
}

func (f *FileSource) waitForWrite(d time.Duration) bool {
	if d <= 0 {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return false
			}
			if ev.Has(fsnotify.Write) {
				return true
			}
		case <-f.watcher.Errors:
			return false
		case <-timer.C:
			return false
		}
	}
}

// Close implements device.Source.
func (f *FileSource) Close() error {
	if f.watcher != nil {
		f.watcher.Close()
	}
	return f.readFile.Close()
}
