/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

// Package codec wraps the frame decoders the player can drive.
//
// Every decoder follows the same contract: DecodeFrame looks at the front of
// in and either
//   - decodes one frame: samples > 0, info.FrameBytes > 0
//   - skips bytes it cannot use (tags, garbage, corrupt frames):
//     samples == 0, info.FrameBytes > 0
//   - asks for more input: samples == 0, info.FrameBytes == 0
//
// samples counts interleaved int16 values written into pcm.
package codec

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"hdxplay/internal/security"
	"hdxplay/pkg/spec"
)

type FrameInfo struct {
	FrameBytes int
	Channels   int
	SampleRate int
}

type Decoder interface {
	DecodeFrame(in []byte, pcm []int16) (samples int, info FrameInfo)
	// MaxFrameBytes is the largest input one frame may need.
	MaxFrameBytes() int
	// MaxSamples is the pcm length DecodeFrame may fill.
	MaxSamples() int
	// Reset drops inter-frame state before a new stream.
	Reset()
}

type Kind string

const (
	KindMP3  Kind = "mp3"
	KindOpus Kind = "opus"
	KindRaw  Kind = "raw"
)

var ErrUnknownKind = errors.New("codec: unknown decoder kind")

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMP3, KindOpus, KindRaw:
		return k, nil
	case "pcm", "s16le":
		return KindRaw, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

var extKinds = map[string]Kind{
	".mp3":  KindMP3,
	".opus": KindOpus,
	".hdxs": KindOpus, // stream hdxplay-pack
	".raw":  KindRaw,
	".pcm":  KindRaw,
}

// KindOf guesses the decoder kind from a file extension.
func KindOf(path string) (Kind, error) {
	if k, ok := extKinds[strings.ToLower(filepath.Ext(path))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: extension of %q", ErrUnknownKind, path)
}

// Extensions lists the file extensions KindOf knows, sorted.
func Extensions() []string {
	out := make([]string, 0, len(extKinds))
	for ext := range extKinds {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

type Options struct {
	SampleRate int // opus and raw
	Channels   int // opus and raw
	// Key membuka paket opus yang disegel. Kosong berarti paket polos.
	Key []byte
	// RawChunk is the raw decoder frame size in bytes.
	RawChunk int
}

func DefaultOptions() Options {
	return Options{
		SampleRate: spec.SampleRate,
		Channels:   spec.Channels,
		RawChunk:   spec.RawChunkBytes,
	}
}

// New builds a decoder of the given kind.
func New(kind Kind, opt Options) (Decoder, error) {
	switch kind {
	case KindMP3:
		return NewMP3Decoder(), nil
	case KindOpus:
		var sealer *security.Sealer
		if len(opt.Key) > 0 {
			s, err := security.NewSealer(opt.Key)
			if err != nil {
				return nil, fmt.Errorf("codec: opus key: %w", err)
			}
			sealer = s
		}
		return NewOpusDecoder(opt.SampleRate, opt.Channels, sealer)
	case KindRaw:
		return NewRawDecoder(opt.SampleRate, opt.Channels, opt.RawChunk)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
