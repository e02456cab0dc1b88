package output

import (
	"os"
	"sync"

	"hdxplay/pkg/audioengine"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavFile captures everything played into a 16-bit WAV file. The header is
// written on the first Play, so the file takes the format of the first
// session; a later session with another format gets ErrFormatChanged.
type WavFile struct {
	path string
	gain float64

	mu     sync.Mutex
	f      *os.File
	enc    *wav.Encoder
	format Format
	buf    *audio.IntBuffer
	scr    []int16
	closed bool
	frames int64
}

func NewWavFile(path string) *WavFile {
	return &WavFile{path: path, gain: 1}
}

// SetGain scales captured samples by the given dB, clipped to int16.
func (w *WavFile) SetGain(db float64) {
	w.mu.Lock()
	w.gain = audioengine.DBToFactor(db)
	w.mu.Unlock()
}

func (w *WavFile) Play(f Format, pcm []int16) error {
	if !f.Valid() {
		return ErrBadFormat
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.enc == nil {
		file, err := os.Create(w.path)
		if err != nil {
			return err
		}
		w.f = file
		w.enc = wav.NewEncoder(file, f.SampleRate, 16, f.Channels, 1)
		w.format = f
		w.buf = &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
			SourceBitDepth: 16,
		}
	}
	if f != w.format {
		return ErrFormatChanged
	}

	w.scr = append(w.scr[:0], pcm...)
	audioengine.ApplyQuickGain(w.scr, w.gain)

	if cap(w.buf.Data) < len(w.scr) {
		w.buf.Data = make([]int, len(w.scr))
	}
	w.buf.Data = w.buf.Data[:len(w.scr)]
	for i, v := range w.scr {
		w.buf.Data[i] = int(v)
	}
	if err := w.enc.Write(w.buf); err != nil {
		return err
	}
	w.frames += int64(len(pcm) / f.Channels)
	return nil
}

// Stop does nothing: the capture spans sessions until Close.
func (w *WavFile) Stop() error { return nil }

// Frames returns how many sample frames were written.
func (w *WavFile) Frames() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close finalizes the WAV header.
func (w *WavFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.enc == nil {
		return nil
	}
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
