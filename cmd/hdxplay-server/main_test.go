package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"hdxplay/internal/config"

	"github.com/rs/zerolog"
)

func testServerConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Output.Device = false
	cfg.Output.WavPath = ""
	cfg.Alerts.Dir = filepath.Join(dir, "alerts")
	cfg.IPC.Socket = filepath.Join(dir, "hdx.sock")
	cfg.Ingest.Listen = "127.0.0.1:0"
	return cfg
}

func runAsync(ctx context.Context, cfg config.Config) <-chan error {
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zerolog.Nop()) }()
	return done
}

func TestRunFailsWhenIngestPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := testServerConfig(t)
	cfg.Ingest.Listen = ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	select {
	case err := <-runAsync(ctx, cfg):
		if err == nil {
			t.Fatal("run returned nil with the ingest port in use")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run kept serving without its ingest listener")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, testServerConfig(t))

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
