package meter

import (
	"bytes"
	"errors"
	"image/png"
	"testing"

	"hdxplay/internal/output"
)

func interleave(mono []int16) []int16 {
	out := make([]int16, 0, len(mono)*2)
	for _, v := range mono {
		out = append(out, v, v)
	}
	return out
}

func TestSpectrogramColumns(t *testing.T) {
	s := NewSpectrogram(200, 100)
	pcm := interleave(sine(1000, 48000, fftSize*10, 0.5))
	s.Observe(output.Format{SampleRate: 48000, Channels: 2}, pcm)
	if got := s.Columns(); got != 10 {
		t.Fatalf("Columns = %d, want 10", got)
	}

	var buf bytes.Buffer
	if err := s.WritePNG(&buf, 40); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 200 {
		t.Fatalf("bounds = %v", b)
	}

	// 1 kHz jatuh di bin 21 dari 512, baris 191 dari atas
	bestY, best := -1, uint32(0)
	for y := 0; y < 200; y++ {
		_, g, _, _ := img.At(5, y).RGBA()
		if g > best {
			bestY, best = y, g
		}
	}
	if bestY < 189 || bestY > 193 {
		t.Fatalf("brightest row = %d, want near 191", bestY)
	}
}

func TestSpectrogramMergesColumns(t *testing.T) {
	s := NewSpectrogram(16, 4)
	f := output.Format{SampleRate: 48000, Channels: 1}
	for i := 0; i < 20; i++ {
		s.Observe(f, sine(440, 48000, fftSize, 0.3))
	}
	if got := s.Columns(); got == 0 || got >= 4 {
		t.Fatalf("Columns = %d, want 1..3", got)
	}
}

func TestSpectrogramEmpty(t *testing.T) {
	s := NewSpectrogram(0, 0)
	s.Observe(output.Format{SampleRate: 48000, Channels: 0}, make([]int16, 4096))
	s.Observe(output.Format{SampleRate: 48000, Channels: 1}, make([]int16, 100))
	if err := s.WritePNG(&bytes.Buffer{}, 10); !errors.Is(err, ErrNoColumns) {
		t.Fatalf("err = %v", err)
	}
}
