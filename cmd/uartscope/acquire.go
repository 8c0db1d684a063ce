package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/norasector/uartscope/pkg/dsp/viz"
	"github.com/norasector/uartscope/pkg/frame"
	"github.com/norasector/uartscope/pkg/uartscope"
	"github.com/norasector/uartscope/pkg/uartscope/config"
	"github.com/norasector/uartscope/pkg/uartscope/device"
	"github.com/norasector/uartscope/pkg/uartscope/device/file"
	"github.com/norasector/uartscope/pkg/uartscope/device/serial"
	"github.com/norasector/uartscope/pkg/uartscope/output"
	"github.com/norasector/uartscope/pkg/util"
)

const (
	defaultConfigFile = "uartscope.yaml"
	plotQueueSize     = 64
)

type acquireFlags struct {
	configFile   string
	port         string
	baud         int
	timeout      time.Duration
	layout       string
	maxSamples   uint64
	outputFile   string
	plotFile     string
	plotEvery    int
	record       string
	playback     string
	follow       bool
	replayRate   time.Duration
	vizPort      int
	echo         bool
	simulate     bool
	simulateRate float64
}

func newAcquireCommand() *cobra.Command {
	var f acquireFlags
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Read frames from a serial port or capture file and record the samples",
		Example: `  uartscope acquire --port /dev/ttyUSB0 --layout control --output run1
  uartscope acquire --config lab.toml --max-samples 1000
  uartscope acquire --playback capture.bin --layout adc12 --plot adc.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			return runAcquire(cmd.Context(), cfg, &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "YAML or TOML config file (default "+defaultConfigFile+" when present)")
	fl.StringVarP(&f.port, "port", "p", config.DefaultPort, "serial port")
	fl.IntVarP(&f.baud, "baud", "b", config.DefaultBaudRate, "baud rate")
	fl.DurationVar(&f.timeout, "timeout", config.DefaultReadTimeout, "read timeout")
	fl.StringVarP(&f.layout, "layout", "l", config.DefaultLayout, "built-in frame layout")
	fl.Uint64VarP(&f.maxSamples, "max-samples", "n", 0, "stop after this many samples (0 = until interrupted)")
	fl.StringVarP(&f.outputFile, "output", "o", config.DefaultOutputFile, "CSV output file")
	fl.StringVar(&f.plotFile, "plot", "", "PNG plot file, re-rendered while acquiring")
	fl.IntVar(&f.plotEvery, "plot-every", config.DefaultPlotEvery, "samples between plot updates")
	fl.StringVar(&f.record, "record", "", "also write the raw byte stream to this file")
	fl.StringVar(&f.playback, "playback", "", "read from a raw capture file instead of a serial port")
	fl.BoolVar(&f.follow, "follow", false, "keep reading the playback file as it grows")
	fl.DurationVar(&f.replayRate, "replay-interval", 0, "pause between playback reads")
	fl.IntVar(&f.vizPort, "viz-port", 0, "serve live charts on this HTTP port")
	fl.BoolVar(&f.echo, "echo", false, "print every sample")
	fl.BoolVar(&f.simulate, "simulate", false, "generate frames instead of opening a port")
	fl.Float64Var(&f.simulateRate, "simulate-rate", 50, "simulated frames per second")
	return cmd
}

// loadConfig reads the config file, then applies flags the user set explicitly.
func loadConfig(cmd *cobra.Command, f *acquireFlags) (config.Config, error) {
	cfg := config.Default()
	path := f.configFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		log.Debug().Str("file", path).Msg("loaded config")
	}

	set := map[string]bool{}
	cmd.Flags().Visit(func(fl *pflag.Flag) {
		set[fl.Name] = true
		log.Debug().Str("flag", fl.Name).Str("value", fl.Value.String()).Msg("config override")
	})
	changed := func(name string) bool { return set[name] }

	if changed("port") {
		cfg.Port = f.port
	}
	if changed("baud") {
		cfg.BaudRate = f.baud
	}
	if changed("timeout") {
		cfg.ReadTimeout = config.Duration(f.timeout)
	}
	if changed("layout") {
		cfg.Layout = f.layout
		cfg.Frame = nil
	}
	if changed("max-samples") {
		cfg.MaxSamples = f.maxSamples
	}
	if changed("output") {
		cfg.OutputFile = f.outputFile
	}
	if changed("plot") {
		cfg.Plot.File = f.plotFile
	}
	if changed("plot-every") {
		cfg.Plot.Every = f.plotEvery
	}
	if changed("record") {
		cfg.RecordLocation = f.record
	}
	if changed("playback") {
		cfg.PlaybackLocation = f.playback
	}
	if changed("follow") {
		cfg.PlaybackFollow = f.follow
	}
	if changed("viz-port") {
		cfg.VizServer.Port = f.vizPort
	}
	if changed("echo") {
		cfg.Echo = f.echo
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func openSource(cfg config.Config, layout frame.FrameLayout, f *acquireFlags) (device.Source, error) {
	var (
		src device.Source
		err error
	)
	switch {
	case f.simulate:
		log.Info().Str("device", "simulator").Float64("rate", f.simulateRate).Msg("initializing device...")
		src = device.NewSimulatedSource(layout, f.simulateRate)
	case cfg.PlaybackLocation != "":
		log.Info().Str("device", "file").Str("file", cfg.PlaybackLocation).Msg("initializing device...")
		src, err = file.NewFileSource(cfg.PlaybackLocation, file.Options{
			Interval: f.replayRate,
			Follow:   cfg.PlaybackFollow,
		})
	default:
		log.Info().Str("device", "serial").Str("port", cfg.Port).Int("baud", cfg.BaudRate).Msg("initializing device...")
		src, err = serial.Open(serial.Config{Name: cfg.Port, BaudRate: cfg.BaudRate})
	}
	if err != nil {
		return nil, err
	}

	if cfg.RecordLocation != "" {
		rec, err := device.NewRecordingSource(src, cfg.RecordLocation)
		if err != nil {
			src.Close()
			return nil, err
		}
		log.Info().Str("file", cfg.RecordLocation).Msg("recording raw stream")
		src = rec
	}
	return src, nil
}

// sinkSet builds the configured sinks and remembers what must be closed afterwards.
type sinkSet struct {
	sinks   []output.Sink
	closers []func() error
}

func (s *sinkSet) add(sink output.Sink, closer func() error) {
	s.sinks = append(s.sinks, sink)
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
}

func (s *sinkSet) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("closing output")
		}
	}
}

func buildSinks(cfg config.Config, layout frame.FrameLayout, writeAPI api.WriteAPI) (*sinkSet, error) {
	set := &sinkSet{}
	fields := layout.FieldNames()

	csvSink, err := output.CreateCSV(cfg.OutputFile, fields)
	if err != nil {
		return nil, err
	}
	set.add(csvSink, csvSink.Close)
	log.Info().Str("file", cfg.OutputFile).Msg("writing samples")

	echoLevel := zerolog.DebugLevel
	if cfg.Echo {
		echoLevel = zerolog.InfoLevel
	}
	set.add(output.NewLog(log.Logger, echoLevel), nil)

	if cfg.Plot.File != "" {
		history := output.NewHistory(cfg.HistorySize, output.DropOldest)
		plot := output.NewAsync(output.NewPlot(cfg.Plot.File, layout.Name, fields, cfg.Plot.Every, history), plotQueueSize)
		set.add(plot, plot.Close)
	}

	if cfg.InfluxDB.Host != "" {
		set.add(output.NewInflux(writeAPI, layout.Name, output.HostID()), nil)
	}

	if cfg.MQTT.Broker != "" {
		client, err := output.DialMQTT(cfg.MQTT.Broker)
		if err != nil {
			set.close()
			return nil, err
		}
		mqttSink, err := output.NewMQTT(client, cfg.MQTT.Topic, layout.Name, 0)
		if err != nil {
			client.Disconnect(250)
			set.close()
			return nil, err
		}
		log.Info().Str("topic", mqttSink.Topic()).Msg("publishing samples")
		set.add(mqttSink, func() error {
			client.Disconnect(250)
			return nil
		})
	}

	if len(cfg.OutputDestinations) > 0 {
		stream, err := output.NewStream(cfg.OutputDestinations, layout.Name, writeAPI, log.Logger)
		if err != nil {
			set.close()
			return nil, err
		}
		set.add(stream, stream.Close)
	}
	return set, nil
}

func runAcquire(ctx context.Context, cfg config.Config, f *acquireFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	layout, err := cfg.FrameLayout()
	if err != nil {
		return err
	}

	src, err := openSource(cfg, layout, f)
	if err != nil {
		return err
	}

	var writeAPI api.WriteAPI = &util.MockWriteAPI{}
	if cfg.InfluxDB.Host != "" {
		client := influxdb2.NewClient(cfg.InfluxDB.Host, cfg.InfluxDB.Token)
		defer client.Close()
		writeAPI = client.WriteAPI(cfg.InfluxDB.Organization, cfg.InfluxDB.Bucket)
	}

	sinks, err := buildSinks(cfg, layout, writeAPI)
	if err != nil {
		src.Close()
		return err
	}
	defer sinks.close()

	opts := []uartscope.AcquirerOption{
		uartscope.WithLogger(log.Logger),
		uartscope.WithInfluxDB(writeAPI),
		uartscope.WithSinks(sinks.sinks...),
	}
	var vizServer *viz.Server
	if cfg.VizServer.Port != 0 {
		vizServer = viz.NewServer(cfg.VizServer.Port, cfg.VizServer.UpdateInterval.D())
		opts = append(opts, uartscope.WithImageServer(vizServer, 0))
	}

	acq, err := uartscope.NewAcquirer(src, uartscope.Options{
		Layout:      layout,
		ReadTimeout: cfg.ReadTimeout.D(),
		MaxSamples:  cfg.MaxSamples,
		HistorySize: cfg.HistorySize,
	}, opts...)
	if err != nil {
		src.Close()
		return fmt.Errorf("failed to create acquirer: %w", err)
	}
	defer acq.Close()

	eg, ctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	eg.Go(func() error {
		select {
		case <-sigChan:
			log.Info().Msg("interrupted, stopping")
		case <-runCtx.Done():
		}
		cancel()
		return nil
	})

	if vizServer != nil {
		eg.Go(func() error {
			log.Info().Int("port", cfg.VizServer.Port).Msg("serving live charts")
			return vizServer.Run(runCtx)
		})
	}

	eg.Go(func() error {
		defer cancel()
		res, err := acq.Run(runCtx)
		printSummary(res)
		if errors.Is(err, io.EOF) && cfg.PlaybackLocation != "" {
			log.Info().Msg("end of playback file")
			return nil
		}
		return err
	})

	return eg.Wait()
}

func printSummary(res uartscope.Result) {
	log.Info().
		Str("reason", res.Reason.String()).
		Uint64("samples", res.Samples).
		Uint64("incomplete", res.Incomplete).
		Uint64("discarded_bytes", res.DiscardedBytes).
		Msg("summary")
	for _, s := range res.Summary {
		if s.Count == 0 {
			continue
		}
		log.Info().
			Str("field", s.Name).
			Float64("min", s.Min).
			Float64("max", s.Max).
			Float64("mean", s.Mean).
			Float64("stddev", s.StdDev).
			Msg("summary")
	}
}
