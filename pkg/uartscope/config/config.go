package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"

	"github.com/norasector/uartscope/pkg/frame"
)

const (
	DefaultPort        = "/dev/ttyUSB0"
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 10 * time.Second
	DefaultLayout      = frame.LayoutControl
	DefaultOutputFile  = "uart_log.csv"
	DefaultPlotEvery   = 10
	DefaultHistorySize = 50000
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Port        string   `yaml:"port" toml:"port"`
	BaudRate    int      `yaml:"baud_rate" toml:"baud_rate"`
	ReadTimeout Duration `yaml:"read_timeout" toml:"read_timeout"`

	// Layout names a built-in layout; Frame overrides it when set.
	Layout string        `yaml:"layout" toml:"layout"`
	Frame  *LayoutConfig `yaml:"frame" toml:"frame"`

	MaxSamples  uint64 `yaml:"max_samples" toml:"max_samples"`
	HistorySize int    `yaml:"history_size" toml:"history_size"`
	Echo        bool   `yaml:"echo" toml:"echo"`

	OutputFile       string `yaml:"output_file" toml:"output_file"`
	RecordLocation   string `yaml:"record_location" toml:"record_location"`
	PlaybackLocation string `yaml:"playback_location" toml:"playback_location"`
	PlaybackFollow   bool   `yaml:"playback_follow" toml:"playback_follow"`

	Plot struct {
		File  string `yaml:"file" toml:"file"`
		Every int    `yaml:"every" toml:"every"`
	} `yaml:"plot" toml:"plot"`

	VizServer struct {
		Port           int      `yaml:"port" toml:"port"`
		UpdateInterval Duration `yaml:"update_interval" toml:"update_interval"`
	} `yaml:"viz_server" toml:"viz_server"`

	InfluxDB struct {
		Host         string `yaml:"host" toml:"host"`
		Token        string `yaml:"token" toml:"token"`
		Organization string `yaml:"organization" toml:"organization"`
		Bucket       string `yaml:"bucket" toml:"bucket"`
	} `yaml:"influxdb" toml:"influxdb"`

	MQTT struct {
		Broker string `yaml:"broker" toml:"broker"`
		Topic  string `yaml:"topic" toml:"topic"`
	} `yaml:"mqtt" toml:"mqtt"`

	OutputDestinations []OutputDestination `yaml:"output_destinations" toml:"output_destinations"`
}

type OutputDestination struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

func (d OutputDestination) String() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// LayoutConfig is the file form of a frame.FrameLayout.
type LayoutConfig struct {
	Name          string        `yaml:"name" toml:"name"`
	Header        []int         `yaml:"header,flow" toml:"header"`
	PayloadLength int           `yaml:"payload_length" toml:"payload_length"`
	Fields        []FieldConfig `yaml:"fields" toml:"fields"`
}

type FieldConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Offsets []int  `yaml:"offsets,flow" toml:"offsets"`
	Mask    int    `yaml:"mask,omitempty" toml:"mask,omitempty"`
	Shift   int    `yaml:"shift,omitempty" toml:"shift,omitempty"`
}

// Default returns a Config with every default applied.
func Default() Config {
	var c Config
	c.Port = DefaultPort
	c.BaudRate = DefaultBaudRate
	c.ReadTimeout = Duration(DefaultReadTimeout)
	c.Layout = DefaultLayout
	c.OutputFile = DefaultOutputFile
	c.HistorySize = DefaultHistorySize
	c.Plot.Every = DefaultPlotEvery
	c.VizServer.UpdateInterval = Duration(500 * time.Millisecond)
	c.MQTT.Topic = "uartscope"
	return c
}

// Load reads a YAML or TOML file (chosen by extension) over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	contents, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(contents, &cfg)
	default:
		err = yaml.Unmarshal(contents, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration and normalizes derived values.
func (c *Config) Validate() error {
	if c.PlaybackLocation == "" && c.Port == "" {
		return fmt.Errorf("%w: no serial port or playback file", ErrInvalidConfig)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate %d", ErrInvalidConfig, c.BaudRate)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: read timeout %s", ErrInvalidConfig, c.ReadTimeout.D())
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.Plot.Every <= 0 {
		c.Plot.Every = DefaultPlotEvery
	}
	c.OutputFile = CSVFileName(c.OutputFile)
	if _, err := c.FrameLayout(); err != nil {
		return err
	}
	return nil
}

// FrameLayout resolves the configured layout.
func (c *Config) FrameLayout() (frame.FrameLayout, error) {
	if c.Frame == nil {
		return frame.Builtin(c.Layout)
	}
	l, err := c.Frame.ToLayout()
	if err != nil {
		return l, err
	}
	return l, l.Validate()
}

// ToLayout converts the file form into a frame.FrameLayout.
func (lc *LayoutConfig) ToLayout() (frame.FrameLayout, error) {
	l := frame.FrameLayout{
		Name:          lc.Name,
		PayloadLength: lc.PayloadLength,
	}
	if l.Name == "" {
		l.Name = "custom"
	}
	for _, b := range lc.Header {
		if b < 0 || b > 0xff {
			return l, fmt.Errorf("%w: header byte %d", frame.ErrInvalidLayout, b)
		}
		l.Header = append(l.Header, byte(b))
	}
	for _, f := range lc.Fields {
		if f.Mask < 0 || f.Mask > 0xff {
			return l, fmt.Errorf("%w: field %q mask %d", frame.ErrInvalidLayout, f.Name, f.Mask)
		}
		if f.Shift < 0 {
			return l, fmt.Errorf("%w: field %q shift %d", frame.ErrInvalidLayout, f.Name, f.Shift)
		}
		l.Fields = append(l.Fields, frame.FieldSpec{
			Name:    f.Name,
			Offsets: append([]int(nil), f.Offsets...),
			Mask:    byte(f.Mask),
			Shift:   uint(f.Shift),
		})
	}
	return l, nil
}

// FromLayout converts a frame.FrameLayout into its file form.
func FromLayout(l frame.FrameLayout) LayoutConfig {
	lc := LayoutConfig{Name: l.Name, PayloadLength: l.PayloadLength}
	for _, b := range l.Header {
		lc.Header = append(lc.Header, int(b))
	}
	for _, f := range l.Fields {
		lc.Fields = append(lc.Fields, FieldConfig{
			Name:    f.Name,
			Offsets: append([]int(nil), f.Offsets...),
			Mask:    int(f.Mask),
			Shift:   int(f.Shift),
		})
	}
	return lc
}

// CSVFileName applies the default file name and the .csv extension.
func CSVFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultOutputFile
	}
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		name += ".csv"
	}
	return name
}
