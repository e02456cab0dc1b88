/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package spec

import "time"

const (
	// === IDENTITY & VERSIONING ===
	Version      = "3.0.0"
	VersionMajor = 3
	VersionMinor = 0

	// === SECURITY ===
	Salt = "SALT"

	// === PLAYER BUFFERS ===
	RingCapacity  = 1024 * 64 * 2 // 128 KiB compressed bytes
	QueueDepth    = 16
	MP3MainBuf    = 1940 // max bytes satu frame MP3 di working set
	MP3MaxSamples = 1152 * 2
	WarmupBytes   = 3 * 1024

	// === OPUS (Hardix Standard: 48kHz Stereo) ===
	SampleRate       = 48000
	Channels         = 2
	FrameSize        = 20 // ms
	OpusMaxPacket    = 1275
	OpusMaxFrameSamp = 5760 // 120ms @ 48kHz per channel

	// === RAW PCM ===
	RawChunkBytes = 1920 // 20ms mono s16le @ 48kHz

	// Prefix session id untuk alert lokal, "alert_<type>".
	AlertIDPrefix = "alert_"
)

// Timing dari player asli.
const (
	StallTimeout = 5000 * time.Millisecond
	WarmupMax    = 1000 * time.Millisecond
	PollBusy     = 5 * time.Millisecond
	PollIdle     = 20 * time.Millisecond
	WriteRetry   = 5 * time.Millisecond
	StartWait    = 100 * 10 * time.Millisecond
)
