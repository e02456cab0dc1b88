// Package meter mengukur level PCM yang sedang diputar: peak, RMS, pita
// spektrum (FFT) dan titik waveform untuk UI/LED.
package meter

import (
	"math"
	"sync"

	"hdxplay/internal/output"
	"hdxplay/pkg/audioengine"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	DefaultBands   = 16
	fftSize        = 1024
	floorDB        = -60.0
	waveformPoints = 64
)

type Snapshot struct {
	Peak     float64   `json:"peak"`
	RMS      float64   `json:"rms"`
	Bands    []float64 `json:"bands"`
	Waveform []byte    `json:"waveform"`
	Frames   int64     `json:"frames"`
}

type Meter struct {
	mu     sync.Mutex
	nbands int
	mono   []float64
	win    []float64
	snap   Snapshot
}

func New(bands int) *Meter {
	if bands <= 0 {
		bands = DefaultBands
	}
	return &Meter{
		nbands: bands,
		mono:   make([]float64, 0, fftSize),
		win:    window.Hann(fftSize),
		snap:   Snapshot{Bands: make([]float64, bands)},
	}
}

// Observe is meant for output.Tap.
func (m *Meter) Observe(f output.Format, pcm []int16) {
	rate, channels := f.SampleRate, f.Channels
	if channels <= 0 || len(pcm) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap.Peak = audioengine.Peak(pcm)
	m.snap.RMS = audioengine.RMS(pcm)
	m.snap.Frames += int64(len(pcm) / channels)
	m.snap.Waveform = audioengine.CollectWaveformPoints(pcm, m.snap.Waveform)
	if len(m.snap.Waveform) > waveformPoints {
		m.snap.Waveform = m.snap.Waveform[len(m.snap.Waveform)-waveformPoints:]
	}

	// Downmix ke mono, kumpulkan sampai satu blok FFT
	for i := 0; i+channels <= len(pcm); i += channels {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(pcm[i+c])
		}
		m.mono = append(m.mono, sum/float64(channels)/32768.0)
		if len(m.mono) == fftSize {
			m.spectrum(rate)
			m.mono = m.mono[:0]
		}
	}
}

func (m *Meter) spectrum(rate int) {
	x := make([]float64, fftSize)
	for i := range x {
		x[i] = m.mono[i] * m.win[i]
	}
	coeffs := fft.FFTReal(x)

	// Pita logaritmik dari 20 Hz sampai Nyquist
	nyq := float64(rate) / 2
	lo := 20.0
	binHz := float64(rate) / fftSize
	for b := 0; b < m.nbands; b++ {
		f0 := lo * math.Pow(nyq/lo, float64(b)/float64(m.nbands))
		f1 := lo * math.Pow(nyq/lo, float64(b+1)/float64(m.nbands))
		i0 := int(f0 / binHz)
		i1 := int(f1 / binHz)
		if i1 <= i0 {
			i1 = i0 + 1
		}
		if i1 > fftSize/2 {
			i1 = fftSize / 2
		}

		var mag float64
		for i := i0; i < i1; i++ {
			c := coeffs[i]
			if v := math.Sqrt(real(c)*real(c)+imag(c)*imag(c)) * 4 / fftSize; v > mag {
				mag = v
			}
		}
		m.snap.Bands[b] = level(mag)
	}
}

// level maps an amplitude to 0..1 over floorDB..0 dB.
func level(a float64) float64 {
	if a <= 0 {
		return 0
	}
	db := 20 * math.Log10(a)
	if db <= floorDB {
		return 0
	}
	if db >= 0 {
		return 1
	}
	return 1 - db/floorDB
}

func (m *Meter) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.snap
	s.Bands = append([]float64(nil), m.snap.Bands...)
	s.Waveform = append([]byte(nil), m.snap.Waveform...)
	return s
}

// Reset clears levels between sessions. Frames keeps counting.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mono = m.mono[:0]
	m.snap.Peak, m.snap.RMS = 0, 0
	clear(m.snap.Bands)
	m.snap.Waveform = nil
}
