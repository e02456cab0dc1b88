/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

// Package player drives one compressed audio stream from producers to a PCM
// sink.
//
// Producers call Write to push bytes into a bounded ring buffer and block
// while it is full. A single task goroutine owns the state machine
// (IDLE, START, PLAYING, PAUSED, FINISH): it takes transitions from the
// command channel, decodes at most one frame per iteration and hands PCM to
// the sink. A session ends on Stop, when the stream is drained after an eof
// write, or when nothing decodable arrives for StallTimeout.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hdxplay/internal/codec"
	"hdxplay/internal/output"
	"hdxplay/internal/ringbuf"
	"hdxplay/internal/timer"
	"hdxplay/internal/window"
	"hdxplay/pkg/spec"

	"github.com/rs/zerolog"
)

var (
	ErrInit            = errors.New("player: init failed")
	ErrNotPlaying      = errors.New("player: not playing")
	ErrSessionMismatch = errors.New("player: session id mismatch")
	ErrStartTimeout    = errors.New("player: start timed out")
	ErrDecoderInit     = errors.New("player: decoder init failed")
	ErrClosed          = errors.New("player: closed")
)

// DecoderFactory builds a decoder for a session kind.
type DecoderFactory func(kind codec.Kind) (codec.Decoder, error)

// StateHook is called from the task goroutine after every state entry. It
// must not call Start or Stop.
type StateHook func(from, to State)

type Option func(*Player)

func WithLogger(l zerolog.Logger) Option {
	return func(p *Player) { p.log = l }
}

func WithStateHook(h StateHook) Option {
	return func(p *Player) { p.hooks = append(p.hooks, h) }
}

func WithDecoderFactory(f DecoderFactory) Option {
	return func(p *Player) { p.newDecoder = f }
}

// WithCodecOptions sets the options passed to codec.New by the default
// decoder factory.
func WithCodecOptions(o codec.Options) Option {
	return func(p *Player) { p.codecOpt = o }
}

type Stats struct {
	State     string `json:"state"`
	Session   string `json:"session"`
	Codec     string `json:"codec"`
	Playing   bool   `json:"playing"`
	RingUsed  int    `json:"ring_used"`
	RingFree  int    `json:"ring_free"`
	RingCap   int    `json:"ring_cap"`
	Frames    int64  `json:"frames"`
	Samples   int64  `json:"samples"`
	Decoded   int64  `json:"bytes_decoded"`
	Skipped   int64  `json:"bytes_skipped"`
	Written   int64  `json:"bytes_written"`
	Sessions  int64  `json:"sessions"`
	Stalls    int64  `json:"stalls"`
	Dropped   int64  `json:"dropped_commands"`
	SinkError int64  `json:"sink_errors"`
}

type counters struct {
	frames, samples, decoded, skipped, written atomic.Int64
	sessions, stalls, dropped, sinkErr         atomic.Int64
}

type Player struct {
	cfg        Config
	sink       output.Sink
	log        zerolog.Logger
	hooks      []StateHook
	newDecoder DecoderFactory
	codecOpt   codec.Options

	// dijaga mu
	mu        sync.Mutex
	state     State
	id        string
	kind      codec.Kind
	writers   int
	writeDone *sync.Cond
	eof       bool
	startErr  error
	changed   chan struct{} // ditutup dan diganti tiap kali masuk state
	entered   [numStates]uint64
	closed    bool

	playing atomic.Bool

	// ring buffer punya mutex sendiri
	rbMu sync.Mutex
	rb   *ringbuf.RingBuffer

	// milik task
	win       *window.Window
	pcm       []int16
	decoders  map[codec.Kind]codec.Decoder
	dec       codec.Decoder
	firstPlay bool
	startedAt time.Time

	cmd      chan State
	stall    *timer.Timer
	stallGen uint64 // dijaga mu, generasi stall timer yang terakhir dipasang
	stop  context.CancelFunc
	done  chan struct{}
	stats counters
}

// New allocates the ring buffer, the decode working set, the command
// channel and the stall timer, then starts the task goroutine. Any failure
// is reported as ErrInit and nothing is left running.
func New(cfg Config, sink output.Sink, opts ...Option) (*Player, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: nil sink", ErrInit)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}

	rb, err := ringbuf.New(cfg.RingCapacity, ringbuf.OverflowStop)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}

	p := &Player{
		cfg:      cfg,
		sink:     sink,
		log:      zerolog.Nop(),
		codecOpt: codec.DefaultOptions(),
		state:    Idle,
		changed:  make(chan struct{}),
		rb:       rb,
		win:      window.New(spec.MP3MainBuf),
		pcm:      make([]int16, spec.MP3MaxSamples),
		decoders: make(map[codec.Kind]codec.Decoder),
		cmd:      make(chan State, cfg.QueueDepth),
		done:     make(chan struct{}),
	}
	p.writeDone = sync.NewCond(&p.mu)
	for _, o := range opts {
		o(p)
	}
	if p.newDecoder == nil {
		p.newDecoder = func(kind codec.Kind) (codec.Decoder, error) {
			return codec.New(kind, p.codecOpt)
		}
	}
	p.stall = timer.New(p.onStall)

	ctx, cancel := context.WithCancel(context.Background())
	p.stop = cancel
	go p.run(ctx)

	p.log.Debug().Int("ring", cfg.RingCapacity).Str("codec", string(cfg.Codec)).Msg("player ready")
	return p, nil
}

// Close stops the task and releases the ring buffer. A Player cannot be used
// after Close.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.stop()
	<-p.done
	p.stall.Stop()
	p.playing.Store(false)

	p.mu.Lock()
	p.writeDone.Broadcast()
	p.mu.Unlock()

	p.rbMu.Lock()
	p.rb.Close()
	p.rbMu.Unlock()
	return p.sink.Stop()
}

// ======================================================
// Control API
// ======================================================

// Start begins a session with the configured codec.
func (p *Player) Start(ctx context.Context, id string) error {
	return p.StartAs(ctx, id, p.cfg.Codec)
}

// StartAs begins a session decoded with kind. It returns nil right away when
// a session is already playing. Otherwise it waits up to StartWait for the
// task to reach PLAYING; ErrStartTimeout is advisory and the session may
// still come up later.
func (p *Player) StartAs(ctx context.Context, id string, kind codec.Kind) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.playing.Load() {
		p.mu.Unlock()
		p.log.Debug().Str("id", id).Msg("player already started")
		return nil
	}

	p.id = id
	p.kind = kind
	p.startErr = nil
	p.playing.Store(true)
	seen := p.entered[Playing]
	p.post(Start)
	p.mu.Unlock()

	err := p.waitFor(ctx, p.cfg.StartWait, func() bool {
		return p.entered[Playing] > seen || p.startErr != nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrStartTimeout
		}
		p.log.Warn().Err(err).Str("id", id).Msg("player start not confirmed")
		return err
	}

	p.mu.Lock()
	err = p.startErr
	p.mu.Unlock()
	if err != nil {
		return err
	}

	p.stats.sessions.Add(1)
	p.log.Info().Str("id", id).Str("codec", string(kind)).Msg("player start")
	return nil
}

// Write copies data into the ring buffer, blocking while it is full. It
// returns early without error if the session leaves START/PLAYING while
// waiting. eof is stored as given: a later Write with eof false clears an
// earlier eof.
func (p *Player) Write(id string, data []byte, eof bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if !p.state.active() {
		return ErrNotPlaying
	}
	if id != p.id {
		p.log.Debug().Str("id", id).Str("current", p.id).Msg("write rejected")
		return ErrSessionMismatch
	}

	if len(data) > 0 {
		p.writers++
		for len(data) > 0 && p.state.active() && !p.closed {
			p.rbMu.Lock()
			n := 0
			if p.rb.Free() > 0 {
				n = p.rb.Write(data)
			}
			p.rbMu.Unlock()

			if n == 0 {
				// buffer penuh: lepas mutex sebelum tidur
				p.mu.Unlock()
				time.Sleep(p.cfg.WriteRetry)
				p.mu.Lock()
				continue
			}
			data = data[n:]
			p.stats.written.Add(int64(n))
		}
		p.writers--
		if p.writers == 0 {
			p.writeDone.Broadcast()
		}
	}

	p.eof = eof
	return nil
}

// Stop ends the session: the task is parked in PAUSED, in-flight writes
// drain, the ring buffer and the sink are flushed, then the task goes back
// to IDLE. Stop returns once IDLE is visible. It is a no-op when nothing is
// playing. If ctx ends before PAUSED is reached Stop returns ctx.Err() and
// the rest of the teardown still runs in the background, so the player
// never stays parked in PAUSED.
func (p *Player) Stop(ctx context.Context) error {
	if !p.playing.Load() {
		return nil
	}

	p.mu.Lock()
	seen := p.entered[Paused]
	p.post(Paused)
	p.mu.Unlock()

	paused := func() bool { return p.entered[Paused] > seen }
	if err := p.waitFor(ctx, 0, paused); err != nil {
		go func() {
			bg := context.WithoutCancel(ctx)
			if p.waitFor(bg, 0, paused) == nil {
				_ = p.teardown(bg)
			}
		}()
		return err
	}
	return p.teardown(ctx)
}

// teardown runs once the task is parked in PAUSED.
func (p *Player) teardown(ctx context.Context) error {
	p.mu.Lock()
	id := p.id
	p.id = ""
	for p.writers > 0 && !p.closed {
		p.writeDone.Wait()
	}

	p.rbMu.Lock()
	p.rb.Reset()
	p.rbMu.Unlock()

	err := p.sink.Stop()
	if err != nil {
		p.stats.sinkErr.Add(1)
		p.log.Warn().Err(err).Msg("sink stop")
	}
	p.playing.Store(false)
	seen := p.entered[Idle]
	p.post(Idle)
	p.mu.Unlock()

	if werr := p.waitFor(ctx, 0, func() bool { return p.entered[Idle] > seen }); werr != nil {
		return werr
	}
	p.log.Info().Str("id", id).Msg("player stop")
	return nil
}

// IsPlaying is true from Start until Stop, drain or stall.
func (p *Player) IsPlaying() bool {
	return p.playing.Load()
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Session returns the id of the current session.
func (p *Player) Session() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// Wait blocks until the player is not playing.
func (p *Player) Wait(ctx context.Context) error {
	return p.waitFor(ctx, 0, func() bool { return !p.playing.Load() })
}

func (p *Player) Stats() Stats {
	p.mu.Lock()
	st := Stats{
		State:   p.state.String(),
		Session: p.id,
		Codec:   string(p.kind),
	}
	p.mu.Unlock()

	p.rbMu.Lock()
	st.RingUsed = p.rb.Used()
	st.RingFree = p.rb.Free()
	st.RingCap = p.rb.Cap()
	p.rbMu.Unlock()

	st.Playing = p.playing.Load()
	st.Frames = p.stats.frames.Load()
	st.Samples = p.stats.samples.Load()
	st.Decoded = p.stats.decoded.Load()
	st.Skipped = p.stats.skipped.Load()
	st.Written = p.stats.written.Load()
	st.Sessions = p.stats.sessions.Load()
	st.Stalls = p.stats.stalls.Load()
	st.Dropped = p.stats.dropped.Load()
	st.SinkError = p.stats.sinkErr.Load()
	return st
}

// ======================================================
// Helpers
// ======================================================

// post never blocks. A full queue drops the transition.
func (p *Player) post(s State) {
	select {
	case p.cmd <- s:
	default:
		p.stats.dropped.Add(1)
		p.log.Warn().Stringer("state", s).Msg("command queue full, transition dropped")
	}
}

// onStall posts FINISH only for the timer armed by the current PLAYING
// step. An expiry from an earlier session that ran late is dropped. post is
// done under mu so no new session can start in between.
func (p *Player) onStall(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.stallGen || p.state != Playing {
		p.log.Debug().Uint64("gen", gen).Msg("stale stall ignored")
		return
	}
	p.stats.stalls.Add(1)
	p.log.Debug().Str("id", p.id).Msg("no decodable data, finishing")
	p.post(Finish)
}

// waitFor blocks until cond holds (checked under mu) and is woken on every
// state entry. timeout 0 means no limit besides ctx.
func (p *Player) waitFor(ctx context.Context, timeout time.Duration, cond func() bool) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		p.mu.Lock()
		if cond() {
			p.mu.Unlock()
			return nil
		}
		ch := p.changed
		p.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return ErrClosed
		}
	}
}
