package output

import (
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/norasector/uartscope/pkg/frame"
)

var ErrClosed = errors.New("sink closed")

type asyncItem struct {
	rec   frame.SampleRecord
	flush chan error
}

// Async decouples a slow sink from the acquisition loop with a bounded queue. Samples
// keep their order; Write blocks while the queue is full. The first error returned by
// the inner sink is reported by every later Write and Flush.
type Async struct {
	inner Sink
	queue chan asyncItem
	eg    errgroup.Group

	sendMu sync.RWMutex
	closed bool

	mu  sync.Mutex
	err error
}

// NewAsync starts the goroutine draining into inner.
func NewAsync(inner Sink, size int) *Async {
	if size < 1 {
		size = 1
	}
	a := &Async{
		inner: inner,
		queue: make(chan asyncItem, size),
	}
	a.eg.Go(a.drain)
	return a
}

func (a *Async) drain() error {
	for item := range a.queue {
		if item.flush != nil {
			err := a.Err()
			if ferr := a.inner.Flush(); err == nil {
				err = ferr
			}
			item.flush <- err
			continue
		}
		if a.Err() != nil {
			continue
		}
		if err := a.inner.Write(item.rec); err != nil {
			a.setErr(err)
		}
	}
	return a.Err()
}

func (a *Async) setErr(err error) {
	a.mu.Lock()
	if a.err == nil {
		a.err = err
	}
	a.mu.Unlock()
}

// Err returns the first error reported by the inner sink.
func (a *Async) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Async) send(item asyncItem) error {
	a.sendMu.RLock()
	defer a.sendMu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	a.queue <- item
	return nil
}

func (a *Async) Write(rec frame.SampleRecord) error {
	if err := a.Err(); err != nil {
		return err
	}
	return a.send(asyncItem{rec: rec})
}

// Flush waits until every queued sample reached the inner sink, then flushes it.
func (a *Async) Flush() error {
	done := make(chan error, 1)
	if err := a.send(asyncItem{flush: done}); err != nil {
		return err
	}
	return <-done
}

// Close flushes and stops the drain goroutine. Writing after Close returns ErrClosed.
func (a *Async) Close() error {
	err := a.Flush()
	a.sendMu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.sendMu.Unlock()
	a.eg.Wait()
	return err
}
