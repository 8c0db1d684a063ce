package output

import (
	"github.com/norasector/uartscope/pkg/dsp/viz"
	"github.com/norasector/uartscope/pkg/frame"
	"github.com/norasector/uartscope/pkg/util"
)

// Viz feeds a time-domain and a spectrum producer per field into the live view.
type Viz struct {
	fields   []string
	time     []*viz.TimeDomainPlotter
	spectrum []*viz.SpectrumPlotter
}

// NewViz registers the producers of every layout field under the layout name. window
// is the number of samples each chart shows. Time charts span the full field range.
func NewViz(server *viz.Server, layout *frame.FrameLayout, window int) *Viz {
	v := &Viz{fields: layout.FieldNames()}
	for _, f := range layout.Fields {
		tp := viz.NewTimeDomainPlotter(f.Name, window)
		tp.SetPlotType(viz.PlotTypeLines)
		tp.AddPlotOption(viz.YRange(0, float64(f.MaxValue())))
		sp := viz.NewSpectrumPlotter(f.Name+" spectrum", window, 1)
		server.Register(layout.Name, tp)
		server.Register(layout.Name, sp)
		v.time = append(v.time, tp)
		v.spectrum = append(v.spectrum, sp)
	}
	return v
}

func (v *Viz) Write(rec frame.SampleRecord) error {
	rate := util.SampleRate(rec.Index+1, rec.Elapsed)
	for i, name := range v.fields {
		val, ok := rec.Fields.Get(name)
		if !ok {
			continue
		}
		v.time[i].Append(float64(val))
		v.spectrum[i].Append(float64(val))
		if rate > 0 {
			v.spectrum[i].SetSampleRate(rate)
		}
	}
	return nil
}

func (v *Viz) Flush() error { return nil }
