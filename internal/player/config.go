package player

import (
	"errors"
	"fmt"
	"time"

	"hdxplay/internal/codec"
	"hdxplay/pkg/spec"
)

type Config struct {
	RingCapacity int           // compressed bytes buffered ahead of the decoder
	QueueDepth   int           // pending transitions in the command channel
	StallTimeout time.Duration // no decodable data for this long ends the session
	WarmupBytes  int           // first decode waits for this much buffered data...
	WarmupMax    time.Duration // ...or this long, whichever comes first
	PollInterval time.Duration // task wait while START/PLAYING/PAUSED
	IdleInterval time.Duration // task wait while IDLE
	WriteRetry   time.Duration // Write sleep while the ring buffer is full
	StartWait    time.Duration // Start waits this long for PLAYING
	Codec        codec.Kind    // decoder for sessions started without a kind
}

func DefaultConfig() Config {
	return Config{
		RingCapacity: spec.RingCapacity,
		QueueDepth:   spec.QueueDepth,
		StallTimeout: spec.StallTimeout,
		WarmupBytes:  spec.WarmupBytes,
		WarmupMax:    spec.WarmupMax,
		PollInterval: spec.PollBusy,
		IdleInterval: spec.PollIdle,
		WriteRetry:   spec.WriteRetry,
		StartWait:    spec.StartWait,
		Codec:        codec.KindMP3,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.RingCapacity <= 0 {
		errs = append(errs, fmt.Errorf("ring capacity %d", c.RingCapacity))
	}
	if c.QueueDepth < spec.QueueDepth {
		errs = append(errs, fmt.Errorf("queue depth %d, need at least %d", c.QueueDepth, spec.QueueDepth))
	}
	if c.StallTimeout <= 0 {
		errs = append(errs, errors.New("stall timeout must be positive"))
	}
	if c.WarmupBytes < 0 || c.WarmupMax < 0 {
		errs = append(errs, errors.New("warm-up must not be negative"))
	}
	if c.PollInterval <= 0 || c.IdleInterval <= 0 || c.WriteRetry <= 0 {
		errs = append(errs, errors.New("poll and retry intervals must be positive"))
	}
	if c.StartWait <= 0 {
		errs = append(errs, errors.New("start wait must be positive"))
	}
	if _, err := codec.ParseKind(string(c.Codec)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
