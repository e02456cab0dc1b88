package meter

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sync"

	"hdxplay/internal/output"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

var ErrNoColumns = errors.New("meter: spectrogram is empty")

// Spectrogram keeps one column of levels per FFT block of the played audio.
// When maxCols is reached neighbouring columns are merged, so a long stream
// still fits while its time resolution drops.
type Spectrogram struct {
	mu      sync.Mutex
	height  int
	maxCols int
	mono    []float64
	win     []float64
	cols    [][]uint8
	pend    []uint8 // kolom yang sedang dikumpulkan
	npend   int
	stride  int // blok FFT per kolom
}

func NewSpectrogram(height, maxCols int) *Spectrogram {
	if height <= 0 {
		height = 200
	}
	if maxCols < 2 {
		maxCols = 2
	}
	return &Spectrogram{
		height:  height,
		maxCols: maxCols,
		mono:    make([]float64, 0, fftSize),
		win:     window.Hann(fftSize),
		pend:    make([]uint8, height),
		stride:  1,
	}
}

// Observe is meant for output.Tap.
func (s *Spectrogram) Observe(f output.Format, pcm []int16) {
	channels := f.Channels
	if channels <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i+channels <= len(pcm); i += channels {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(pcm[i+c])
		}
		s.mono = append(s.mono, sum/float64(channels)/32768.0)
		if len(s.mono) == fftSize {
			s.column()
			s.mono = s.mono[:0]
		}
	}
}

func (s *Spectrogram) column() {
	x := make([]float64, fftSize)
	for i := range x {
		x[i] = s.mono[i] * s.win[i]
	}
	coeffs := fft.FFTReal(x)

	// baris 0 di atas = frekuensi tertinggi
	for y := 0; y < s.height; y++ {
		b0 := (s.height - 1 - y) * (fftSize / 2) / s.height
		b1 := (s.height - y) * (fftSize / 2) / s.height
		if b1 <= b0 {
			b1 = b0 + 1
		}
		var mag float64
		for b := b0; b < b1; b++ {
			c := coeffs[b]
			if v := math.Sqrt(real(c)*real(c)+imag(c)*imag(c)) * 4 / fftSize; v > mag {
				mag = v
			}
		}
		if v := uint8(level(mag) * 255); v > s.pend[y] {
			s.pend[y] = v
		}
	}

	s.npend++
	if s.npend < s.stride {
		return
	}
	s.cols = append(s.cols, s.pend)
	s.pend = make([]uint8, s.height)
	s.npend = 0

	if len(s.cols) >= s.maxCols {
		s.halve()
	}
}

func (s *Spectrogram) halve() {
	merged := s.cols[:0]
	for i := 0; i+1 < len(s.cols); i += 2 {
		a, b := s.cols[i], s.cols[i+1]
		for y := range a {
			a[y] = max(a[y], b[y])
		}
		merged = append(merged, a)
	}
	if len(s.cols)%2 == 1 {
		merged = append(merged, s.cols[len(s.cols)-1])
	}
	s.cols = merged
	s.stride *= 2
}

// Columns counts the finished columns.
func (s *Spectrogram) Columns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cols)
}

// WritePNG renders the columns stretched or squeezed to width pixels.
func (s *Spectrogram) WritePNG(w io.Writer, width int) error {
	s.mu.Lock()
	cols := make([][]uint8, len(s.cols))
	copy(cols, s.cols)
	height := s.height
	s.mu.Unlock()

	if len(cols) == 0 {
		return ErrNoColumns
	}
	if width <= 0 {
		width = len(cols)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		col := cols[x*len(cols)/width]
		for y := 0; y < height; y++ {
			v := col[y]
			img.Set(x, y, color.RGBA{R: v / 2, G: v, B: v / 2, A: 255})
		}
	}
	return png.Encode(w, img)
}
