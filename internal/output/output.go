// Package output holds the PCM sinks the player pushes decoded audio into.
package output

import (
	"errors"
	"fmt"
)

// Format describes interleaved s16 PCM handed to a Sink.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) Valid() bool {
	return f.SampleRate > 0 && (f.Channels == 1 || f.Channels == 2)
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz x %d", f.SampleRate, f.Channels)
}

// Sink plays PCM. Play may block while the device buffer is full; Stop drops
// whatever is still queued.
type Sink interface {
	Play(f Format, pcm []int16) error
	Stop() error
}

var (
	ErrClosed        = errors.New("output: sink closed")
	ErrBadFormat     = errors.New("output: unsupported pcm format")
	ErrFormatChanged = errors.New("output: format changed mid-capture")
)

// Tee forwards every call to all sinks. Semua sink tetap dipanggil walau ada
// yang error.
type Tee []Sink

func (t Tee) Play(f Format, pcm []int16) error {
	var errs []error
	for _, s := range t {
		if err := s.Play(f, pcm); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t Tee) Stop() error {
	var errs []error
	for _, s := range t {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tap shows every PCM block to Observe before passing it on. Next may be nil
// when only the observer is wanted.
type Tap struct {
	Observe func(f Format, pcm []int16)
	Next    Sink
}

func (t *Tap) Play(f Format, pcm []int16) error {
	if t.Observe != nil {
		t.Observe(f, pcm)
	}
	if t.Next == nil {
		return nil
	}
	return t.Next.Play(f, pcm)
}

func (t *Tap) Stop() error {
	if t.Next == nil {
		return nil
	}
	return t.Next.Stop()
}
