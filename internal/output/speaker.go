/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package output

import (
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"github.com/rs/zerolog"
)

type SpeakerConfig struct {
	SampleRate int           // device rate
	Buffer     time.Duration // buffer speaker beep
	MaxQueued  time.Duration // Play blocks above this much pending audio
	VolumeDB   float64
}

// ======================================================
// PCM queue (sumber untuk speaker)
// ======================================================
type pcmQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	samples [][2]float64
	closed  bool
}

// Stream never blocks: kalau antrean kosong, isi dengan silence.
func (q *pcmQueue) Stream(samples [][2]float64) (int, bool) {
	q.mu.Lock()
	n := copy(samples, q.samples)
	q.samples = q.samples[n:]
	if len(q.samples) == 0 {
		q.samples = nil
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (q *pcmQueue) Err() error { return nil }

// Speaker is a Sink on the system audio device through beep/speaker.
// Chain: queue -> resampler -> volume -> speaker.
type Speaker struct {
	rate      beep.SampleRate
	maxQueued int
	q         *pcmQueue
	res       *beep.Resampler
	vol       *effects.Volume
	srcRate   int
	log       zerolog.Logger
}

func NewSpeaker(cfg SpeakerConfig, log zerolog.Logger) (*Speaker, error) {
	sr := beep.SampleRate(cfg.SampleRate)
	if err := speaker.Init(sr, sr.N(cfg.Buffer)); err != nil {
		return nil, err
	}

	q := &pcmQueue{}
	q.cond = sync.NewCond(&q.mu)

	s := &Speaker{
		rate:      sr,
		maxQueued: sr.N(cfg.MaxQueued),
		q:         q,
		srcRate:   cfg.SampleRate,
		log:       log,
	}
	s.res = beep.Resample(4, sr, sr, q)
	s.vol = &effects.Volume{Streamer: s.res, Base: 10}
	s.applyVolume(cfg.VolumeDB)

	speaker.Play(s.vol)
	log.Info().Int("rate", cfg.SampleRate).Dur("buffer", cfg.Buffer).Msg("speaker ready")
	return s, nil
}

func (s *Speaker) applyVolume(db float64) {
	// Base 10 dengan Volume = dB/20 sama dengan gain amplitudo 10^(dB/20)
	s.vol.Volume = db / 20
	s.vol.Silent = db <= -60
}

// SetVolume sets the output gain in dB. -60 or lower mutes.
func (s *Speaker) SetVolume(db float64) {
	speaker.Lock()
	s.applyVolume(db)
	speaker.Unlock()
}

func (s *Speaker) Volume() float64 {
	speaker.Lock()
	defer speaker.Unlock()
	return s.vol.Volume * 20
}

func (s *Speaker) Play(f Format, pcm []int16) error {
	if !f.Valid() {
		return ErrBadFormat
	}

	if f.SampleRate != s.srcRate {
		speaker.Lock()
		s.res.SetRatio(float64(f.SampleRate) / float64(s.rate))
		speaker.Unlock()
		s.log.Debug().Int("from", f.SampleRate).Int("to", int(s.rate)).Msg("resample")
		s.srcRate = f.SampleRate
	}

	frames := len(pcm) / f.Channels
	buf := make([][2]float64, frames)
	for i := 0; i < frames; i++ {
		if f.Channels == 1 {
			v := float64(pcm[i]) / 32768.0
			buf[i] = [2]float64{v, v}
			continue
		}
		buf[i] = [2]float64{
			float64(pcm[i*2]) / 32768.0,
			float64(pcm[i*2+1]) / 32768.0,
		}
	}

	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()
	// Tahan producer selama antrean penuh, seperti buffer DMA hardware
	for !q.closed && len(q.samples) > s.maxQueued {
		q.cond.Wait()
	}
	if q.closed {
		return ErrClosed
	}
	q.samples = append(q.samples, buf...)
	return nil
}

// Stop membuang audio yang masih antre.
func (s *Speaker) Stop() error {
	s.q.mu.Lock()
	s.q.samples = nil
	s.q.cond.Broadcast()
	s.q.mu.Unlock()
	return nil
}

func (s *Speaker) Close() error {
	s.q.mu.Lock()
	s.q.closed = true
	s.q.samples = nil
	s.q.cond.Broadcast()
	s.q.mu.Unlock()

	speaker.Clear()
	speaker.Close()
	return nil
}
