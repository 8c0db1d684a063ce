package uartscope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/uartscope/pkg/dsp/viz"
	"github.com/norasector/uartscope/pkg/frame"
	"github.com/norasector/uartscope/pkg/uartscope/device"
	"github.com/norasector/uartscope/pkg/uartscope/output"
	"github.com/norasector/uartscope/pkg/util"
)

const (
	DefaultReadTimeout  = 10 * time.Second
	DefaultHistorySize  = 50000
	DefaultMetricsEvery = 100
	DefaultVizWindow    = 256

	MeasurementAcquisition = "uartscope.acquisition"
)

type Options struct {
	Layout      frame.FrameLayout
	ReadTimeout time.Duration
	// MaxSamples stops the run after this many samples. Zero means no limit.
	MaxSamples    uint64
	HistorySize   int
	HistoryPolicy output.OverflowPolicy
	// MetricsEvery is the number of samples between acquisition metric points.
	MetricsEvery uint64
}

// Result summarizes a finished run.
type Result struct {
	Reason         StopReason
	Samples        uint64
	Incomplete     uint64
	DiscardedBytes uint64
	Timeouts       uint64
	Elapsed        time.Duration
	Rate           float64
	Summary        []output.FieldSummary
}

// Acquirer drives a byte source through synchronization, decoding and assembly, and
// hands every sample to its sinks.
type Acquirer struct {
	source    device.Source
	opts      Options
	layout    *frame.FrameLayout
	sync      *frame.Synchronizer
	decoder   *frame.Decoder
	assembler *frame.Assembler
	history   *output.History
	sinks     []output.Sink
	writeAPI  api.WriteAPI
	logger    zerolog.Logger

	state   atomic.Int32
	started bool
	stopped bool
	reason  StopReason
	emitUs  int64

	mu     sync.Mutex
	result Result
}

type AcquirerOption func(a *Acquirer) error

func WithInfluxDB(writeAPI api.WriteAPI) AcquirerOption {
	return func(a *Acquirer) error {
		a.writeAPI = writeAPI
		return nil
	}
}

// WithImageServer registers a time-domain and a spectrum chart per field, each
// showing the last window samples.
func WithImageServer(vizServer *viz.Server, window int) AcquirerOption {
	return func(a *Acquirer) error {
		if window <= 0 {
			window = DefaultVizWindow
		}
		a.sinks = append(a.sinks, output.NewViz(vizServer, a.layout, window))
		return nil
	}
}

func WithLogger(logger zerolog.Logger) AcquirerOption {
	return func(a *Acquirer) error {
		a.logger = logger
		return nil
	}
}

// WithSinks appends sinks. They receive samples in the order given.
func WithSinks(sinks ...output.Sink) AcquirerOption {
	return func(a *Acquirer) error {
		for _, s := range sinks {
			if s == nil {
				return errors.New("nil sink")
			}
		}
		a.sinks = append(a.sinks, sinks...)
		return nil
	}
}

func NewAcquirer(source device.Source, options Options, opts ...AcquirerOption) (*Acquirer, error) {
	if source == nil {
		return nil, errors.New("no byte source")
	}
	layout := options.Layout.Clone()
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if options.ReadTimeout <= 0 {
		options.ReadTimeout = DefaultReadTimeout
	}
	if options.HistorySize <= 0 {
		options.HistorySize = DefaultHistorySize
	}
	if options.MetricsEvery == 0 {
		options.MetricsEvery = DefaultMetricsEvery
	}

	a := &Acquirer{
		source:    source,
		opts:      options,
		layout:    &layout,
		sync:      frame.NewSynchronizer(&layout, options.ReadTimeout),
		decoder:   frame.NewDecoder(&layout, options.ReadTimeout),
		assembler: frame.NewAssembler(),
		history:   output.NewHistory(options.HistorySize, options.HistoryPolicy),
		writeAPI:  &util.MockWriteAPI{}, // overwritten with option
		logger:    log.Logger,
	}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Layout returns the validated layout the Acquirer decodes with.
func (a *Acquirer) Layout() frame.FrameLayout {
	return *a.layout
}

// History returns the retained window of samples.
func (a *Acquirer) History() *output.History {
	return a.history
}

// State is safe to call from any goroutine.
func (a *Acquirer) State() State {
	return State(a.state.Load())
}

func (a *Acquirer) setState(s State) {
	a.state.Store(int32(s))
}

func (a *Acquirer) begin() {
	a.sync.Reset()
	a.decoder.Reset()
	a.history.Reset()
	a.assembler.Reset(time.Now())
	a.started = true
	a.setState(StateSearching)

	a.logger.Info().
		Str("layout", a.layout.String()).
		Uint64("max_samples", a.opts.MaxSamples).
		Msg("acquisition starting")
}

func (a *Acquirer) stop(reason StopReason) {
	if a.stopped {
		return
	}
	a.stopped = true
	a.reason = reason
	a.setState(StateStopped)
	a.snapshot()
}

// Next returns the next decoded sample. Incomplete frames are skipped. It returns io.EOF
// once MaxSamples have been produced, ctx.Err() when cancelled, and an error wrapping
// ErrSourceFailed when the source fails. After any of those the Acquirer is stopped
// and Next returns ErrStopped.
func (a *Acquirer) Next(ctx context.Context) (frame.SampleRecord, error) {
	if a.stopped {
		return frame.SampleRecord{}, ErrStopped
	}
	if !a.started {
		a.begin()
	}
	if a.opts.MaxSamples > 0 && a.assembler.Count() >= a.opts.MaxSamples {
		a.stop(StopLimitReached)
		return frame.SampleRecord{}, io.EOF
	}

	for {
		a.setState(StateSearching)
		if err := ctx.Err(); err != nil {
			a.stop(StopCancelled)
			return frame.SampleRecord{}, err
		}
		if err := a.sync.Sync(ctx, a.source); err != nil {
			return frame.SampleRecord{}, a.failRead(ctx, err)
		}

		a.setState(StateReadingPayload)
		fields, err := a.decoder.ReadFrame(a.source)
		if errors.Is(err, frame.ErrIncompleteFrame) {
			a.logger.Debug().Err(err).Uint64("incomplete", a.decoder.Incomplete()).Msg("dropping frame")
			continue
		}
		if err != nil {
			return frame.SampleRecord{}, a.failRead(ctx, err)
		}

		a.setState(StateEmitting)
		rec := a.assembler.Assemble(fields)
		a.history.Add(rec)
		return rec, nil
	}
}

func (a *Acquirer) failRead(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		a.stop(StopCancelled)
		return err
	}
	a.stop(StopSourceFailed)
	return fmt.Errorf("%w: %w", ErrSourceFailed, err)
}

func (a *Acquirer) dispatch(rec frame.SampleRecord) error {
	for _, s := range a.sinks {
		if err := s.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// Run acquires until the sample limit, cancellation of ctx, or a source or sink
// failure, then flushes every sink. Reaching the limit and cancellation are normal
// stops and return a nil error.
func (a *Acquirer) Run(ctx context.Context) (Result, error) {
	var runErr error
	for runErr == nil {
		rec, err := a.Next(ctx)
		if err != nil {
			if a.reason == StopSourceFailed {
				a.logger.Error().Err(err).Msg("byte source failed")
				runErr = err
			}
			break
		}

		us, err := util.TimeOperationErr(func() error { return a.dispatch(rec) })
		a.emitUs = us
		if err != nil {
			a.stop(StopSinkFailed)
			runErr = fmt.Errorf("%w: sample %d: %w", ErrSinkFailed, rec.Index, err)
			a.logger.Error().Err(err).Uint64("index", rec.Index).Msg("sink failed")
			break
		}

		if (rec.Index+1)%a.opts.MetricsEvery == 0 {
			a.writeMetrics()
		}
	}

	if err := output.FlushAll(a.sinks...); err != nil {
		a.logger.Error().Err(err).Msg("flushing sinks")
		if runErr == nil {
			a.reason = StopSinkFailed
			runErr = fmt.Errorf("%w: flush: %w", ErrSinkFailed, err)
		}
	}
	a.writeMetrics()
	res := a.snapshot()

	a.logger.Info().
		Str("reason", res.Reason.String()).
		Uint64("samples", res.Samples).
		Uint64("incomplete", res.Incomplete).
		Uint64("discarded_bytes", res.DiscardedBytes).
		Dur("elapsed", res.Elapsed).
		Float64("rate_hz", res.Rate).
		Msg("acquisition stopped")
	return res, runErr
}

func (a *Acquirer) snapshot() Result {
	elapsed := time.Since(a.assembler.Start())
	samples := a.assembler.Count()
	res := Result{
		Reason:         a.reason,
		Samples:        samples,
		Incomplete:     a.decoder.Incomplete(),
		DiscardedBytes: a.sync.Discarded(),
		Timeouts:       a.sync.Timeouts(),
		Elapsed:        elapsed,
		Rate:           util.SampleRate(samples, elapsed),
		Summary:        a.history.Summary(a.layout.FieldNames()),
	}
	a.mu.Lock()
	a.result = res
	a.mu.Unlock()
	return res
}

// Result returns the summary of the last stop, or the zero Result while running.
func (a *Acquirer) Result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

func (a *Acquirer) writeMetrics() {
	a.writeAPI.WritePoint(influxdb2.NewPoint(MeasurementAcquisition,
		map[string]string{
			"layout": a.layout.Name,
		},
		map[string]interface{}{
			"samples":         a.assembler.Count(),
			"incomplete":      a.decoder.Incomplete(),
			"discarded_bytes": a.sync.Discarded(),
			"timeouts":        a.sync.Timeouts(),
			"emit_latency_us": a.emitUs,
		}, time.Now()))
}

// Close closes the byte source.
func (a *Acquirer) Close() error {
	return a.source.Close()
}
