/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"hdxplay/internal/alert"
	"hdxplay/internal/codec"
	"hdxplay/internal/player"
	"hdxplay/pkg/spec"

	"github.com/google/uuid"
)

const serverName = "hdxplay"

func argFloat(parts []string, idx int) (float64, bool) {
	if len(parts) <= idx {
		return 0, false
	}
	v, err := strconv.ParseFloat(parts[idx], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// errCode maps player errors to the reply codes of the protocol.
func errCode(err error) string {
	switch {
	case errors.Is(err, player.ErrNotPlaying):
		return "NOT_PLAYING"
	case errors.Is(err, player.ErrSessionMismatch):
		return "SESSION"
	case errors.Is(err, player.ErrStartTimeout):
		return "START_TIMEOUT"
	case errors.Is(err, player.ErrDecoderInit), errors.Is(err, codec.ErrUnknownKind):
		return "DECODER"
	case errors.Is(err, player.ErrClosed):
		return "CLOSED"
	case errors.Is(err, alert.ErrNoClip):
		return "NO_CLIP"
	case errors.Is(err, alert.ErrUnknownType):
		return "ARG"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	}
	return "INTERNAL"
}

func reply(c *conn, err error) error {
	if err != nil {
		return c.send("ERR " + errCode(err))
	}
	return c.send("OK")
}

func replyJSON(c *conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return c.send("ERR INTERNAL")
	}
	return c.send(string(b))
}

// dispatch runs one command line. A returned error means the connection is
// unusable.
func (s *Server) dispatch(c *conn, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	parts := strings.Fields(line)
	cmd := strings.ToUpper(parts[0])
	p := s.deps.Player

	// ==================================================
	// READ-ONLY COMMANDS (TIDAK BUTUH OWNER)
	// ==================================================
	switch cmd {
	case "ABOUT":
		return c.send(fmt.Sprintf("%s V.%d.%d", serverName, spec.VersionMajor, spec.VersionMinor))

	case "PING":
		return c.send("Pong")

	case "WHOAMI":
		if s.isOwner(c) {
			return c.send("OWNER")
		}
		return c.send("OBSERVER")

	case "STATUS":
		return replyJSON(c, s.status())

	case "METER":
		if s.deps.Meter == nil {
			return c.send("ERR NO_METER")
		}
		return replyJSON(c, s.deps.Meter.Snapshot())

	case "ALERTS":
		var names []string
		if s.deps.Alerts != nil {
			for _, t := range s.deps.Alerts.Available() {
				names = append(names, t.String())
			}
		}
		return replyJSON(c, names)
	}

	// ==================================================
	// CONTROL COMMANDS (BUTUH OWNER)
	// ==================================================
	if !s.claimOwner(c) {
		if cmd == "WRITE" {
			// payload tetap harus dibuang supaya stream baris tidak rusak
			if n, ok := writeLen(parts); ok {
				if _, err := io.CopyN(io.Discard, c.r, int64(n)); err != nil {
					return err
				}
			}
		}
		return c.send("ERR CONTROL_LOCKED")
	}

	switch cmd {
	case "START":
		id := ""
		if len(parts) > 1 && parts[1] != "-" {
			id = parts[1]
		} else {
			id = uuid.NewString()
		}
		kind := s.deps.Kind
		if len(parts) > 2 {
			k, err := codec.ParseKind(parts[2])
			if err != nil {
				return c.send("ERR CODEC")
			}
			kind = k
		}
		if p.IsPlaying() {
			return c.send("ERR BUSY " + p.Session())
		}
		if err := p.StartAs(s.ctx, id, kind); err != nil {
			if errors.Is(err, player.ErrStartTimeout) {
				c.session = id
			}
			return reply(c, err)
		}
		c.session = id
		return c.send("OK " + id)

	case "STOP":
		return reply(c, p.Stop(s.ctx))

	case "WRITE":
		return s.cmdWrite(c, parts)

	case "ALERT":
		if len(parts) != 2 {
			return c.send("ERR ARG")
		}
		if s.deps.Alerts == nil {
			return c.send("ERR NO_CLIP")
		}
		t, err := alert.ParseType(parts[1])
		if err != nil {
			return reply(c, err)
		}
		if p.IsPlaying() {
			if err := p.Stop(s.ctx); err != nil {
				return reply(c, err)
			}
		}
		err = alert.Play(s.ctx, p, s.deps.Alerts, t)
		if err == nil {
			c.session = t.SessionID()
		}
		return reply(c, err)

	case "VOLUME":
		if s.deps.Volume == nil {
			return c.send("ERR NO_OUTPUT")
		}
		if len(parts) == 1 {
			return c.send(strconv.FormatFloat(s.deps.Volume.Volume(), 'f', 1, 64))
		}
		db, ok := argFloat(parts, 1)
		if !ok {
			return c.send("ERR ARG")
		}
		s.deps.Volume.SetVolume(db)
		s.emit(event{Type: "VOLUME", VolumeDB: &db})
		return c.send("OK")
	}

	return c.send("ERR UNKNOWN")
}

func writeLen(parts []string) (int, bool) {
	if len(parts) != 4 {
		return 0, false
	}
	n, err := strconv.Atoi(parts[3])
	if err != nil || n < 0 || n > MaxWrite {
		return 0, false
	}
	return n, true
}

// cmdWrite handles "WRITE <id|-> <eof 0|1> <len>" followed by len raw bytes.
// "-" means the current session.
func (s *Server) cmdWrite(c *conn, parts []string) error {
	n, ok := writeLen(parts)
	if !ok {
		// panjang tidak terbaca, payload tidak bisa dilewati
		c.send("ERR ARG")
		return errors.New("ipc: bad WRITE header")
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return err
	}

	var eof bool
	switch parts[2] {
	case "0":
	case "1":
		eof = true
	default:
		return c.send("ERR ARG")
	}

	p := s.deps.Player
	id := parts[1]
	if id == "-" {
		id = p.Session()
	}
	return reply(c, p.Write(id, buf, eof))
}
