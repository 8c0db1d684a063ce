package viz

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

const (
	MIX_AVG     = 0.10 // weight of the newest spectrum in the running average
	PEAK_WINDOW = 13   // bins compared when looking for local maxima
	minPower    = 1e-12
)

// SpectrumPlotter shows the averaged magnitude spectrum of the last n values of a
// real-valued series.
type SpectrumPlotter struct {
	mu           sync.Mutex
	buf          []float64
	filled       int
	n            int
	sampleRate   float64
	win          []float64
	fft          *fourier.FFT
	averagePower []float64
	name         string
}

// NewSpectrumPlotter creates a plotter over n values sampled at sampleRate Hz.
func NewSpectrumPlotter(name string, n int, sampleRate float64) *SpectrumPlotter {
	return &SpectrumPlotter{
		buf:          make([]float64, n),
		n:            n,
		sampleRate:   sampleRate,
		win:          window.Blackman(n),
		fft:          fourier.NewFFT(n),
		averagePower: make([]float64, n/2+1),
		name:         name,
	}
}

func (s *SpectrumPlotter) Name() string {
	return s.name
}

// SetSampleRate updates the rate used to label the frequency axis.
func (s *SpectrumPlotter) SetSampleRate(hz float64) {
	s.mu.Lock()
	s.sampleRate = hz
	s.mu.Unlock()
}

func (s *SpectrumPlotter) Append(v ...float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(v) >= s.n {
		copy(s.buf, v[len(v)-s.n:])
		s.filled = s.n
		return
	}
	copy(s.buf, s.buf[len(v):])
	copy(s.buf[s.n-len(v):], v)
	s.filled += len(v)
	if s.filled > s.n {
		s.filled = s.n
	}
}

// Spectrum folds the current window into the running average and returns bin
// frequencies in Hz with their averaged magnitudes. It returns nil until n values have
// been appended.
func (s *SpectrumPlotter) Spectrum() (freqs, power []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filled < s.n {
		return nil, nil
	}

	var mean float64
	for _, v := range s.buf {
		mean += v
	}
	mean /= float64(s.n)

	data := make([]float64, s.n)
	for i, v := range s.buf {
		data[i] = (v - mean) * s.win[i]
	}
	coeffs := s.fft.Coefficients(nil, data)

	freqs = make([]float64, len(coeffs))
	power = make([]float64, len(coeffs))
	for i, c := range coeffs {
		mag := cmplx.Abs(c) / (0.42 * float64(s.n))
		s.averagePower[i] = ((1.0 - MIX_AVG) * s.averagePower[i]) + (MIX_AVG * mag)
		freqs[i] = s.fft.Freq(i) * s.sampleRate
		power[i] = s.averagePower[i]
	}
	return freqs, power
}

// DominantFrequency returns the frequency of the strongest non-DC bin.
func DominantFrequency(freqs, power []float64) float64 {
	if len(power) < 2 {
		return 0
	}
	if peaks := findPeaks(power, PEAK_WINDOW, 1); len(peaks) > 0 {
		return freqs[peaks[0]]
	}
	best := 1
	for i := 2; i < len(power); i++ {
		if power[i] > power[best] {
			best = i
		}
	}
	return freqs[best]
}

func (s *SpectrumPlotter) GetImage() *ImageContainer {
	freqs, power := s.Spectrum()
	if freqs == nil {
		return nil
	}
	p := plotWithDefaults()
	p.Title.Text = fmt.Sprintf("%s (peak %.3g Hz)", s.name, DominantFrequency(freqs, power))
	p.Y.Label.Text = "Power (dB)"
	p.X.Label.Text = "Frequency (Hz)"

	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(freqs))
	for i := range freqs {
		xys[i] = plotter.XY{X: freqs[i], Y: 20 * math.Log10(math.Max(power[i], minPower))}
	}
	if err := plotutil.AddLines(p, "spectrum", xys); err != nil {
		return nil
	}
	return encodePNG(s.name, p)
}
