/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hdxplay/internal/codec"
	"hdxplay/internal/config"
	"hdxplay/internal/logging"
	"hdxplay/internal/meter"
	"hdxplay/internal/output"
	"hdxplay/internal/player"
	"hdxplay/internal/progress"
	"hdxplay/internal/security"
	"hdxplay/pkg/spec"

	"github.com/rs/zerolog"
)

const (
	version_minor      = 0
	version_major      = 1
	developer_title    = "Developer Hardiyanto"
	developer_subtitle = "Build 27/12/2025 Ebiet Version"
	app_name           = "HDXPlay"
	general_usage      = "Usage: ./hdxplay [flags] <file .mp3|.opus|.hdxs|.raw>"
)

func main() {
	var (
		kindFlag = flag.String("kind", "", "decoder: mp3, opus, raw (default from extension)")
		wavPath  = flag.String("wav", "", "capture to this wav file instead of the speaker")
		chunk    = flag.Int("chunk", 4096, "bytes per write")
		volume   = flag.Float64("volume", 0, "volume in dB")
		password = flag.String("password", "", "password for sealed opus packets")
		rate     = flag.Int("rate", spec.SampleRate, "sample rate for opus/raw")
		channels = flag.Int("channels", spec.Channels, "channels for opus/raw")
		logLevel = flag.String("log", "warn", "log level")
		specPNG  = flag.String("spectrogram", "", "write a spectrogram png of the played audio")
	)
	flag.Parse()

	fmt.Println("========================================")
	fmt.Printf("%s version %d.%d\n", app_name, version_major, version_minor)
	fmt.Printf("%s - %s\n", developer_title, developer_subtitle)
	fmt.Println("CTR + C stop and exit")

	if flag.NArg() < 1 {
		fmt.Printf("\n%s\n", general_usage)
		flag.PrintDefaults()
		return
	}
	path := flag.Arg(0)

	level, err := config.ParseLevel(*logLevel)
	if err != nil {
		fmt.Printf("[!] %v\n", err)
		os.Exit(2)
	}
	log := logging.New(level, true, os.Stderr)

	kind, err := codec.KindOf(path)
	if *kindFlag != "" {
		kind, err = codec.ParseKind(*kindFlag)
	}
	if err != nil {
		fmt.Printf("[!] %v\n", err)
		os.Exit(2)
	}

	opt := codec.DefaultOptions()
	opt.SampleRate, opt.Channels = *rate, *channels
	if *password != "" {
		opt.Key = security.DeriveKey(*password, []byte(spec.Salt))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var sg *meter.Spectrogram
	if *specPNG != "" {
		sg = meter.NewSpectrogram(200, 4096)
	}

	if err := play(ctx, path, kind, opt, *wavPath, *chunk, *volume, sg, log); err != nil {
		fmt.Printf("\n[!] %v\n", err)
		os.Exit(1)
	}

	if sg != nil {
		if err := writeSpectrogram(sg, *specPNG); err != nil {
			fmt.Printf("[!] spectrogram: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("[OK] spectrogram -> %s\n", *specPNG)
	}
}

func writeSpectrogram(sg *meter.Spectrogram, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := sg.WritePNG(f, 800); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func play(ctx context.Context, path string, kind codec.Kind, opt codec.Options,
	wavPath string, chunk int, volumeDB float64, sg *meter.Spectrogram, log zerolog.Logger) error {

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if chunk <= 0 {
		chunk = 4096
	}

	var sink output.Sink
	if wavPath != "" {
		wf := output.NewWavFile(wavPath)
		wf.SetGain(volumeDB)
		defer func() {
			if err := wf.Close(); err != nil {
				fmt.Printf("[!] wav close: %v\n", err)
				return
			}
			fmt.Printf("[OK] %d frames -> %s\n", wf.Frames(), wavPath)
		}()
		sink = wf
	} else {
		spk, err := output.NewSpeaker(output.SpeakerConfig{
			SampleRate: spec.SampleRate,
			Buffer:     100 * time.Millisecond,
			MaxQueued:  200 * time.Millisecond,
			VolumeDB:   volumeDB,
		}, logging.Component(log, "speaker"))
		if err != nil {
			return err
		}
		defer spk.Close()
		sink = spk
	}

	if sg != nil {
		sink = &output.Tap{Observe: sg.Observe, Next: sink}
	}

	cfg := player.DefaultConfig()
	cfg.Codec = kind
	if wavPath != "" {
		// capture tidak dibatasi waktu nyata, stall hanya berarti data habis
		cfg.StallTimeout = time.Second
	}
	p, err := player.New(cfg, sink,
		player.WithLogger(logging.Component(log, "player")),
		player.WithCodecOptions(opt),
	)
	if err != nil {
		return err
	}
	defer p.Close()

	id := filepath.Base(path)
	if err := p.Start(ctx, id); err != nil {
		return err
	}
	fmt.Printf("▶ Playing %s (%s, %d bytes)\n", id, kind, len(data))

	bar := progress.New(os.Stdout, "FEEDING", len(data), progress.KB)
	go func() {
		for off := 0; off < len(data); off += chunk {
			end := min(off+chunk, len(data))
			if err := p.Write(id, data[off:end], end == len(data)); err != nil {
				if !errors.Is(err, player.ErrNotPlaying) {
					log.Warn().Err(err).Msg("write")
				}
				return
			}
			if !p.IsPlaying() {
				return
			}
			bar.Add(end - off)
		}
	}()

	err = p.Wait(ctx)
	if ctx.Err() != nil {
		fmt.Println("\n[STOP]")
		stop, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return p.Stop(stop)
	}
	if err != nil {
		return err
	}

	st := p.Stats()
	fmt.Printf("[DONE] frames=%d samples=%d decoded=%d skipped=%d stalls=%d\n",
		st.Frames, st.Samples, st.Decoded, st.Skipped, st.Stalls)
	return nil
}
