package player

import (
	"context"
	"fmt"
	"time"

	"hdxplay/internal/codec"
	"hdxplay/internal/output"
	"hdxplay/internal/window"
)

type cycleResult int

const (
	cycleOK cycleResult = iota
	cycleNeedMore
)

// run is the only goroutine that changes state.
func (p *Player) run(ctx context.Context) {
	defer close(p.done)

	wait := time.NewTimer(p.cfg.IdleInterval)
	defer wait.Stop()

	for {
		p.mu.Lock()
		d := p.cfg.PollInterval
		if p.state == Idle {
			d = p.cfg.IdleInterval
		}
		p.mu.Unlock()
		wait.Reset(d)

		select {
		case <-ctx.Done():
			return
		case next := <-p.cmd:
			p.transition(next)
		case <-wait.C:
		}

		p.step()
	}
}

// transition enters s and wakes every waiter.
func (p *Player) transition(s State) {
	p.mu.Lock()
	from := p.enter(s)
	p.mu.Unlock()
	p.notify(from, s)
}

// enter must be called with mu held.
func (p *Player) enter(s State) State {
	from := p.state
	p.state = s
	p.entered[s]++
	close(p.changed)
	p.changed = make(chan struct{})
	return from
}

func (p *Player) notify(from, to State) {
	if from != to {
		p.log.Debug().Stringer("from", from).Stringer("to", to).Msg("player state")
	}
	for _, h := range p.hooks {
		h(from, to)
	}
}

// step runs one iteration for the current state.
func (p *Player) step() {
	p.mu.Lock()
	switch p.state {
	case Idle:
		p.stall.Stop()
		p.eof = false
		p.mu.Unlock()

	case Start:
		kind := p.kind
		p.mu.Unlock()
		err := p.openDecoder(kind)
		p.mu.Lock()

		var to State
		if err != nil {
			p.startErr = err
			p.playing.Store(false)
			p.log.Error().Err(err).Str("codec", string(kind)).Msg("decoder init")
			to = Idle
		} else {
			p.firstPlay = true
			to = Playing
		}
		p.startedAt = time.Now()
		from := p.enter(to)
		p.mu.Unlock()
		p.notify(from, to)

	case Playing:
		if p.firstPlay {
			// warm-up: tunggu data cukup supaya tidak langsung stall
			p.rbMu.Lock()
			cached := p.rb.Used()
			p.rbMu.Unlock()
			if cached < p.cfg.WarmupBytes && time.Since(p.startedAt) <= p.cfg.WarmupMax {
				p.mu.Unlock()
				return
			}
			p.firstPlay = false
		}
		p.mu.Unlock()

		res := p.decodeAndPlay()

		p.mu.Lock()
		if res == cycleNeedMore {
			if !p.stall.Running() {
				p.stallGen = p.stall.Start(p.cfg.StallTimeout)
			}
		} else if p.stall.Running() {
			p.stall.Stop()
		}

		p.rbMu.Lock()
		used := p.rb.Used()
		p.rbMu.Unlock()
		if used == 0 && p.win.Len() == 0 && p.eof {
			from := p.enter(Finish)
			p.mu.Unlock()
			p.notify(from, Finish)
			return
		}
		p.mu.Unlock()

	case Finish:
		p.stall.Stop()
		// sisa byte sesi yang selesai tidak boleh terbawa ke sesi berikutnya
		p.rbMu.Lock()
		p.rb.Reset()
		p.rbMu.Unlock()
		p.playing.Store(false)
		from := p.enter(Idle)
		p.eof = false
		id := p.id
		p.mu.Unlock()
		p.log.Info().Str("id", id).Msg("player finished")
		p.notify(from, Idle)

	default: // Paused
		p.mu.Unlock()
	}
}

// openDecoder reuses the decoder of kind or creates it, then clears the
// working set.
func (p *Player) openDecoder(kind codec.Kind) error {
	dec, ok := p.decoders[kind]
	if ok {
		dec.Reset()
	} else {
		d, err := p.newDecoder(kind)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDecoderInit, err)
		}
		p.decoders[kind] = d
		dec = d
	}
	p.dec = dec

	if n := dec.MaxFrameBytes(); p.win.Cap() < n {
		p.win = window.New(n)
	}
	if n := dec.MaxSamples(); len(p.pcm) < n {
		p.pcm = make([]int16, n)
	}
	p.win.Reset()
	return nil
}

// decodeAndPlay moves bytes from the ring buffer into the working set,
// decodes one frame and plays it. Runs without mu.
func (p *Player) decodeAndPlay() cycleResult {
	maxFrame := p.dec.MaxFrameBytes()

	p.rbMu.Lock()
	used := p.rb.Used()
	if used == 0 && p.win.Len() == 0 {
		p.rbMu.Unlock()
		return cycleNeedMore
	}
	if used > 0 && p.win.Len() < maxFrame {
		buf := p.win.Reserve(maxFrame - p.win.Len())
		p.win.Commit(p.rb.Read(buf))
	}
	p.rbMu.Unlock()

	samples, info := p.dec.DecodeFrame(p.win.Peek(), p.pcm)
	if samples <= 0 && info.FrameBytes <= 0 {
		return cycleNeedMore
	}

	p.win.Consume(info.FrameBytes)
	if samples <= 0 {
		p.stats.skipped.Add(int64(info.FrameBytes))
		return cycleOK
	}

	p.stats.frames.Add(1)
	p.stats.samples.Add(int64(samples))
	p.stats.decoded.Add(int64(info.FrameBytes))

	f := output.Format{SampleRate: info.SampleRate, Channels: info.Channels}
	if err := p.sink.Play(f, p.pcm[:samples]); err != nil {
		p.stats.sinkErr.Add(1)
		p.log.Warn().Err(err).Stringer("format", f).Msg("sink play")
	}
	return cycleOK
}
