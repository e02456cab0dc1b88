// Package config loads hdxplay settings: defaults, then an optional JSON
// file, then HDXPLAY_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"hdxplay/internal/codec"
	"hdxplay/internal/player"
	"hdxplay/internal/security"
	"hdxplay/pkg/spec"
)

const EnvPrefix = "HDXPLAY_"

type Config struct {
	Player Player `json:"player"`
	Codec  Codec  `json:"codec"`
	Output Output `json:"output"`
	IPC    IPC    `json:"ipc"`
	Ingest Ingest `json:"ingest"`
	Alerts Alerts `json:"alerts"`
	Log    Log    `json:"log"`
}

// Durations are plain milliseconds so the file stays hand-editable.
type Player struct {
	RingCapacity int `json:"ring_capacity"`
	QueueDepth   int `json:"queue_depth"`
	StallMs      int `json:"stall_ms"`
	WarmupBytes  int `json:"warmup_bytes"`
	WarmupMaxMs  int `json:"warmup_max_ms"`
	PollMs       int `json:"poll_ms"`
	IdleMs       int `json:"idle_ms"`
	WriteRetryMs int `json:"write_retry_ms"`
	StartWaitMs  int `json:"start_wait_ms"`
}

type Codec struct {
	Kind       string `json:"kind"` // mp3 | opus | raw
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	RawChunk   int    `json:"raw_chunk"`
	// Password untuk paket opus yang disegel. Kosong = paket polos.
	Password string `json:"password"`
}

type Output struct {
	Device     bool    `json:"device"` // false: tanpa speaker (headless / capture saja)
	SampleRate int     `json:"sample_rate"`
	BufferMs   int     `json:"buffer_ms"`
	MaxQueueMs int     `json:"max_queue_ms"`
	VolumeDB   float64 `json:"volume_db"`
	WavPath    string  `json:"wav_path"`
	MeterBands int     `json:"meter_bands"`
}

type IPC struct {
	Socket string `json:"socket"`
}

type Ingest struct {
	Listen string `json:"listen"` // kosong = websocket ingest mati
}

type Alerts struct {
	Dir      string `json:"dir"`
	Language string `json:"language"` // subdirektori bahasa, mis. "en" atau "zh"
}

type Log struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

func Default() Config {
	return Config{
		Player: Player{
			RingCapacity: spec.RingCapacity,
			QueueDepth:   spec.QueueDepth,
			StallMs:      int(spec.StallTimeout / time.Millisecond),
			WarmupBytes:  spec.WarmupBytes,
			WarmupMaxMs:  int(spec.WarmupMax / time.Millisecond),
			PollMs:       int(spec.PollBusy / time.Millisecond),
			IdleMs:       int(spec.PollIdle / time.Millisecond),
			WriteRetryMs: int(spec.WriteRetry / time.Millisecond),
			StartWaitMs:  int(spec.StartWait / time.Millisecond),
		},
		Codec: Codec{
			Kind:       string(codec.KindMP3),
			SampleRate: spec.SampleRate,
			Channels:   spec.Channels,
			RawChunk:   spec.RawChunkBytes,
		},
		Output: Output{
			Device:     true,
			SampleRate: spec.SampleRate,
			BufferMs:   100,
			MaxQueueMs: 200,
			MeterBands: 16,
		},
		IPC: IPC{
			Socket: "/tmp/hdxplay.sock",
		},
		Alerts: Alerts{
			Dir:      "alerts",
			Language: "en",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads path on top of the defaults, applies the environment and
// validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		b = stripBOM(b)
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", filepath.Base(path), err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

// ApplyEnv overrides fields from HDXPLAY_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	num("RING_CAPACITY", &c.Player.RingCapacity)
	num("STALL_MS", &c.Player.StallMs)
	num("WARMUP_BYTES", &c.Player.WarmupBytes)
	str("CODEC", &c.Codec.Kind)
	str("KEY", &c.Codec.Password)
	num("SAMPLE_RATE", &c.Codec.SampleRate)
	num("CHANNELS", &c.Codec.Channels)
	flag("DEVICE", &c.Output.Device)
	str("WAV", &c.Output.WavPath)
	if v, ok := lookup(EnvPrefix + "VOLUME_DB"); ok {
		db, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sVOLUME_DB: %w", EnvPrefix, err))
		} else {
			c.Output.VolumeDB = db
		}
	}
	str("SOCKET", &c.IPC.Socket)
	str("LISTEN", &c.Ingest.Listen)
	str("ALERT_DIR", &c.Alerts.Dir)
	str("ALERT_LANG", &c.Alerts.Language)
	str("LOG_LEVEL", &c.Log.Level)
	flag("LOG_PRETTY", &c.Log.Pretty)
	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	if _, err := codec.ParseKind(c.Codec.Kind); err != nil {
		return fmt.Errorf("codec.kind: %w", err)
	}
	if c.Codec.SampleRate <= 0 {
		return errors.New("codec.sample_rate must be positive")
	}
	if c.Codec.Channels != 1 && c.Codec.Channels != 2 {
		return fmt.Errorf("codec.channels must be 1 or 2, got %d", c.Codec.Channels)
	}
	if c.Output.SampleRate <= 0 {
		return errors.New("output.sample_rate must be positive")
	}
	if c.Output.BufferMs <= 0 || c.Output.MaxQueueMs <= 0 {
		return errors.New("output.buffer_ms and output.max_queue_ms must be positive")
	}
	if c.Output.VolumeDB > 24 {
		return fmt.Errorf("output.volume_db %.1f is above +24", c.Output.VolumeDB)
	}
	if strings.TrimSpace(c.IPC.Socket) == "" {
		return errors.New("ipc.socket is required")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if err := c.PlayerConfig().Validate(); err != nil {
		return fmt.Errorf("player: %w", err)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c *Config) PlayerConfig() player.Config {
	kind, _ := codec.ParseKind(c.Codec.Kind)
	return player.Config{
		RingCapacity: c.Player.RingCapacity,
		QueueDepth:   c.Player.QueueDepth,
		StallTimeout: ms(c.Player.StallMs),
		WarmupBytes:  c.Player.WarmupBytes,
		WarmupMax:    ms(c.Player.WarmupMaxMs),
		PollInterval: ms(c.Player.PollMs),
		IdleInterval: ms(c.Player.IdleMs),
		WriteRetry:   ms(c.Player.WriteRetryMs),
		StartWait:    ms(c.Player.StartWaitMs),
		Codec:        kind,
	}
}

// CodecOptions derives the packet key from the password when one is set.
func (c *Config) CodecOptions() codec.Options {
	o := codec.Options{
		SampleRate: c.Codec.SampleRate,
		Channels:   c.Codec.Channels,
		RawChunk:   c.Codec.RawChunk,
	}
	if c.Codec.Password != "" {
		o.Key = security.DeriveKey(c.Codec.Password, []byte(spec.Salt))
	}
	return o
}
