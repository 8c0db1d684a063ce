package output

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/norasector/uartscope/pkg/frame"
)

// Series is one named line of a chart.
type Series struct {
	Name string
	XYs  plotter.XYs
}

// RenderPNG draws series as lines and returns the encoded PNG.
func RenderPNG(title, xLabel, yLabel string, series []Series) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	args := make([]interface{}, 0, 2*len(series))
	for _, s := range series {
		if len(s.XYs) == 0 {
			continue
		}
		args = append(args, s.Name, s.XYs)
	}
	if len(args) > 0 {
		if err := plotutil.AddLines(p, args...); err != nil {
			return nil, fmt.Errorf("add lines: %w", err)
		}
	}

	var imageData bytes.Buffer
	w, err := p.WriterTo(10*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	if _, err := w.WriteTo(&imageData); err != nil {
		return nil, err
	}
	return imageData.Bytes(), nil
}

// WriteFile replaces path with data so viewers never see a half-written image.
func WriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// RenderTable plots column y against column x, skipping rows where either is empty.
func RenderTable(t *Table, x, y string) ([]byte, error) {
	xi, err := t.Column(x)
	if err != nil {
		return nil, err
	}
	yi, err := t.Column(y)
	if err != nil {
		return nil, err
	}
	xys := make(plotter.XYs, 0, len(t.Rows))
	for _, row := range t.Rows {
		if math.IsNaN(row[xi]) || math.IsNaN(row[yi]) {
			continue
		}
		xys = append(xys, plotter.XY{X: row[xi], Y: row[yi]})
	}
	return RenderPNG(fmt.Sprintf("%s vs %s", y, x), x, y, []Series{{Name: y, XYs: xys}})
}

// Plot keeps a History and re-renders a PNG of every field against time every few
// samples and once more on Flush.
type Plot struct {
	path    string
	title   string
	fields  []string
	every   int
	history *History
	pending int
}

// NewPlot creates a plot sink. every <= 0 renders only on Flush.
func NewPlot(path, title string, fields []string, every int, history *History) *Plot {
	return &Plot{
		path:    path,
		title:   title,
		fields:  append([]string(nil), fields...),
		every:   every,
		history: history,
	}
}

func (p *Plot) Write(rec frame.SampleRecord) error {
	p.history.Add(rec)
	p.pending++
	if p.every > 0 && p.pending >= p.every {
		return p.Render()
	}
	return nil
}

func (p *Plot) Flush() error {
	if p.history.Len() == 0 {
		return nil
	}
	return p.Render()
}

// Render draws the retained window to the output file.
func (p *Plot) Render() error {
	p.pending = 0
	series := make([]Series, 0, len(p.fields))
	for _, name := range p.fields {
		t, v := p.history.Series(name)
		xys := make(plotter.XYs, len(t))
		for i := range t {
			xys[i] = plotter.XY{X: t[i], Y: v[i]}
		}
		series = append(series, Series{Name: name, XYs: xys})
	}
	data, err := RenderPNG(p.title, "Time (s)", "Value", series)
	if err != nil {
		return fmt.Errorf("render %s: %w", p.path, err)
	}
	return WriteFile(p.path, data)
}
