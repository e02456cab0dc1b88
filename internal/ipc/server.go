/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

// Package ipc serves the line based control socket of hdxplay-server.
//
// Any connection may run read-only commands. The first connection that
// sends a control command becomes the owner; it keeps control until it
// disconnects and receives an EVENT line on every player state change.
package ipc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"hdxplay/internal/alert"
	"hdxplay/internal/codec"
	"hdxplay/internal/meter"
	"hdxplay/internal/player"

	"github.com/rs/zerolog"
)

const (
	// MaxWrite is the largest payload one WRITE may carry.
	MaxWrite    = 1 << 20
	eventQueue  = 64
	maxLineSize = 4096
)

// Player is what the socket drives; *player.Player satisfies it.
type Player interface {
	StartAs(ctx context.Context, id string, kind codec.Kind) error
	Write(id string, data []byte, eof bool) error
	Stop(ctx context.Context) error
	IsPlaying() bool
	Session() string
	Stats() player.Stats
}

type Volume interface {
	SetVolume(db float64)
	Volume() float64
}

type Meter interface {
	Snapshot() meter.Snapshot
}

// Deps are the components behind the commands. Alerts, Volume and Meter
// are optional.
type Deps struct {
	Player Player
	Alerts *alert.Library
	Volume Volume
	Meter  Meter
	Kind   codec.Kind // codec START pakai kalau tidak disebut
}

type Server struct {
	deps Deps
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	ln     net.Listener
	path   string
	owner  *conn
	conns  map[*conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func New(d Deps, log zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		deps:   d,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*conn]struct{}),
	}
}

// Listen binds the unix socket, replacing a stale socket file.
func (s *Server) Listen(path string) error {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.path = path
	s.mu.Unlock()
	s.log.Info().Str("socket", path).Msg("ipc listening")
	return nil
}

func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Serve accepts connections until ctx ends or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("ipc: not listening")
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.ctx.Done():
		}
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("ipc accept")
			continue
		}

		c := newConn(nc)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			nc.Close()
			return nil
		}
		s.conns[c] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.handle(c)
		}()
	}
}

// Close stops accepting, drops every connection and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for c := range s.conns {
		c.nc.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// ======================================================
// Connection
// ======================================================

type conn struct {
	nc      net.Conn
	r       *bufio.Reader
	wmu     sync.Mutex
	events  chan string
	done    chan struct{}
	session string // sesi yang di-START lewat koneksi ini
}

func newConn(nc net.Conn) *conn {
	return &conn{
		nc:     nc,
		r:      bufio.NewReaderSize(nc, maxLineSize),
		events: make(chan string, eventQueue),
		done:   make(chan struct{}),
	}
}

func (c *conn) send(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := io.WriteString(c.nc, line+"\n")
	return err
}

// pump writes queued events so the player task never blocks on a socket.
func (c *conn) pump() {
	for {
		select {
		case ev := <-c.events:
			if err := c.send(ev); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *Server) isOwner(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner == c
}

func (s *Server) claimOwner(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == nil {
		s.owner = c
		s.log.Debug().Msg("ipc owner claimed")
		return true
	}
	return s.owner == c
}

// releaseOwner gives up control. A session the owner started is stopped.
func (s *Server) releaseOwner(c *conn) {
	s.mu.Lock()
	if s.owner != c {
		s.mu.Unlock()
		return
	}
	s.owner = nil
	s.mu.Unlock()

	p := s.deps.Player
	if c.session != "" && p.IsPlaying() && p.Session() == c.session {
		if err := p.Stop(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn().Err(err).Msg("ipc stop on owner release")
		}
	}
}

func (s *Server) handle(c *conn) {
	go c.pump()
	defer func() {
		close(c.done)
		s.releaseOwner(c)
		c.nc.Close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				s.log.Debug().Err(err).Msg("ipc read")
			}
			return
		}
		if err := s.dispatch(c, line); err != nil {
			s.log.Debug().Err(err).Msg("ipc conn closed")
			return
		}
	}
}
