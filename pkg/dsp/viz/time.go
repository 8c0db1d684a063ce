package viz

import (
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

type PlotType int

const (
	PlotTypeDefault PlotType = iota
	PlotTypeScatter
	PlotTypeLines
)

// TimeDomainPlotter draws the most recent size values of one series.
type TimeDomainPlotter struct {
	mu          sync.Mutex
	buf         []float64
	size        int
	name        string
	plotFunc    func(*plot.Plot, ...interface{}) error
	plotOptions []PlotOptions
}

func NewTimeDomainPlotter(name string, size int) *TimeDomainPlotter {
	return &TimeDomainPlotter{
		buf:      make([]float64, 0, size),
		size:     size,
		name:     name,
		plotFunc: plotutil.AddScatters,
	}
}

func (t *TimeDomainPlotter) Name() string {
	return t.name
}

func (t *TimeDomainPlotter) SetPlotType(tp PlotType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch tp {
	case PlotTypeLines:
		t.plotFunc = plotutil.AddLines
	default:
		t.plotFunc = plotutil.AddScatters
	}
}

func (t *TimeDomainPlotter) Append(v ...float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, v...)
	if len(t.buf) > t.size {
		t.buf = append(t.buf[:0], t.buf[len(t.buf)-t.size:]...)
	}
}

// Len returns the number of buffered values.
func (t *TimeDomainPlotter) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf)
}

func (t *TimeDomainPlotter) AddPlotOption(opt PlotOptions) {
	t.mu.Lock()
	t.plotOptions = append(t.plotOptions, opt)
	t.mu.Unlock()
}

// GetImage renders the buffer, or returns nil until two values have arrived.
func (t *TimeDomainPlotter) GetImage() *ImageContainer {
	t.mu.Lock()
	if len(t.buf) < 2 {
		t.mu.Unlock()
		return nil
	}
	xys := make(plotter.XYs, len(t.buf))
	for i, v := range t.buf {
		xys[i] = plotter.XY{X: float64(i), Y: v}
	}
	plotFunc := t.plotFunc
	opts := append([]PlotOptions(nil), t.plotOptions...)
	t.mu.Unlock()

	p := plotWithDefaults()
	p.Title.Text = t.name
	p.Y.Label.Text = "Value"
	p.X.Label.Text = "Sample"

	for _, opt := range opts {
		opt(p)
	}

	p.Add(plotter.NewGrid())
	if err := plotFunc(p, t.name, xys); err != nil {
		return nil
	}
	return encodePNG(t.name, p)
}
