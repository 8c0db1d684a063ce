package output

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/norasector/uartscope/pkg/frame"
)

// Sink consumes samples in acquisition order. Write is called once per sample from the
// acquisition goroutine; Flush is called when the acquisition stops.
type Sink interface {
	Write(rec frame.SampleRecord) error
	Flush() error
}

// FlushAll flushes every sink, even after a failure, and joins the errors.
func FlushAll(sinks ...Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log prints every sample through a zerolog logger.
type Log struct {
	logger zerolog.Logger
	level  zerolog.Level
}

// NewLog creates a sink that logs samples at level.
func NewLog(logger zerolog.Logger, level zerolog.Level) *Log {
	return &Log{logger: logger, level: level}
}

func (l *Log) Write(rec frame.SampleRecord) error {
	ev := l.logger.WithLevel(l.level)
	if ev == nil {
		return nil
	}
	ev = ev.Uint64("index", rec.Index).Float64("t", rec.ElapsedSeconds())
	for _, f := range rec.Fields {
		ev = ev.Uint64(f.Name, f.Value)
	}
	ev.Msg("sample")
	return nil
}

func (l *Log) Flush() error { return nil }
