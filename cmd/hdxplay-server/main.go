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
	"sync/atomic"
	"syscall"
	"time"

	"hdxplay/internal/alert"
	"hdxplay/internal/config"
	"hdxplay/internal/ingest"
	"hdxplay/internal/ipc"
	"hdxplay/internal/logging"
	"hdxplay/internal/meter"
	"hdxplay/internal/output"
	"hdxplay/internal/player"
	"hdxplay/pkg/spec"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	app_name           = "HDXPlay-Server"
	developer_title    = "Developer Hardiyanto"
	developer_subtitle = "Build 27/12/2025 Ebiet Version"
)

func main() {
	cfgPath := flag.String("config", "", "config file (json)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[FAIL] config: %v\n", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.Log.Level)
	log := logging.New(level, cfg.Log.Pretty, os.Stderr)

	log.Info().Msgf("%s V.%s %s %s", app_name, spec.Version, developer_title, developer_subtitle)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
	log.Info().Msg("bye")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	// ======================================================
	// Output: speaker + wav capture, dilihat meter
	// ======================================================
	var (
		sinks output.Tee
		vol   ipc.Volume
	)
	if cfg.Output.Device {
		spk, err := output.NewSpeaker(output.SpeakerConfig{
			SampleRate: cfg.Output.SampleRate,
			Buffer:     time.Duration(cfg.Output.BufferMs) * time.Millisecond,
			MaxQueued:  time.Duration(cfg.Output.MaxQueueMs) * time.Millisecond,
			VolumeDB:   cfg.Output.VolumeDB,
		}, logging.Component(log, "speaker"))
		if err != nil {
			return fmt.Errorf("speaker: %w", err)
		}
		defer spk.Close()
		sinks = append(sinks, spk)
		vol = spk
	}
	if cfg.Output.WavPath != "" {
		wf := output.NewWavFile(cfg.Output.WavPath)
		defer func() {
			if err := wf.Close(); err != nil {
				log.Warn().Err(err).Msg("wav capture close")
			}
		}()
		sinks = append(sinks, wf)
		log.Info().Str("path", cfg.Output.WavPath).Msg("wav capture on")
	}
	if len(sinks) == 0 {
		log.Warn().Msg("no audio output configured, running headless")
	}

	levels := meter.New(cfg.Output.MeterBands)
	sink := &output.Tap{Observe: levels.Observe, Next: sinks}

	// ======================================================
	// Player
	// ======================================================
	var events atomic.Pointer[ipc.Server]
	p, err := player.New(cfg.PlayerConfig(), sink,
		player.WithLogger(logging.Component(log, "player")),
		player.WithCodecOptions(cfg.CodecOptions()),
		player.WithStateHook(func(from, to player.State) {
			if to == player.Idle {
				levels.Reset()
			}
			if s := events.Load(); s != nil {
				s.StateHook(from, to)
			}
		}),
	)
	if err != nil {
		return err
	}
	defer p.Close()

	// ======================================================
	// Alert lokal
	// ======================================================
	alog := logging.Component(log, "alert")
	lib, err := alert.Open(cfg.Alerts.Dir, cfg.Alerts.Language, alog)
	if err != nil {
		alog.Warn().Err(err).Str("dir", cfg.Alerts.Dir).Msg("alerts disabled")
		lib = nil
	}

	// listener yang mati menjatuhkan seluruh server lewat gctx
	g, gctx := errgroup.WithContext(ctx)
	if lib != nil {
		g.Go(func() error {
			// alert opsional: watcher gagal cukup dicatat
			if err := lib.Watch(gctx); err != nil {
				alog.Warn().Err(err).Msg("alert watch")
			}
			return nil
		})
		if err := alert.Play(ctx, p, lib, alert.PowerOn); err != nil && !errors.Is(err, alert.ErrNoClip) {
			alog.Warn().Err(err).Msg("power on alert")
		}
	}

	// ======================================================
	// IPC socket
	// ======================================================
	srv := ipc.New(ipc.Deps{
		Player: p,
		Alerts: lib,
		Volume: vol,
		Meter:  levels,
		Kind:   cfg.PlayerConfig().Codec,
	}, logging.Component(log, "ipc"))
	if err := srv.Listen(cfg.IPC.Socket); err != nil {
		return fmt.Errorf("ipc: %w", err)
	}
	defer os.Remove(cfg.IPC.Socket)
	events.Store(srv)

	g.Go(func() error {
		if err := srv.Serve(gctx); err != nil {
			return fmt.Errorf("ipc serve: %w", err)
		}
		return nil
	})

	// ======================================================
	// Websocket ingest
	// ======================================================
	if cfg.Ingest.Listen != "" {
		in := ingest.New(p, cfg.PlayerConfig().Codec, logging.Component(log, "ingest"))
		g.Go(func() error {
			if err := in.ListenAndServe(gctx, cfg.Ingest.Listen); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		srv.Close()
		stop, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.Stop(stop); err != nil {
			log.Warn().Err(err).Msg("player stop")
		}
		return nil
	})
	return g.Wait()
}
