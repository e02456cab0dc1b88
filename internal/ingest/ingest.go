// Package ingest accepts audio streams over websocket and feeds them to the
// player.
//
//	GET /stream?id=<id>&codec=<kind>   websocket, binary messages are data,
//	                                   a text message "eof" ends the stream
//	GET /status                        player stats as JSON
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"hdxplay/internal/codec"
	"hdxplay/internal/player"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Player is the part of *player.Player the ingest needs.
type Player interface {
	StartAs(ctx context.Context, id string, kind codec.Kind) error
	Write(id string, data []byte, eof bool) error
	IsPlaying() bool
	Session() string
	Stats() player.Stats
}

const (
	eofMessage = "eof"
	writeWait  = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Server struct {
	p    Player
	kind codec.Kind
	log  zerolog.Logger
	mux  *http.ServeMux
	http *http.Server
}

// New builds the handlers. kind is used when the client names no codec.
func New(p Player, kind codec.Kind, log zerolog.Logger) *Server {
	s := &Server{p: p, kind: kind, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("/stream", s.handleStream)
	s.mux.HandleFunc("/status", s.handleStatus)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.http = &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("ingest listening")

	go func() {
		<-ctx.Done()
		shut, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.http.Shutdown(shut)
	}()

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.p.Stats())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("id"))
	if id == "" {
		id = uuid.NewString()
	}
	kind := s.kind
	if c := q.Get("codec"); c != "" {
		k, err := codec.ParseKind(c)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kind = k
	}

	if s.p.IsPlaying() && s.p.Session() != id {
		http.Error(w, "player busy with session "+s.p.Session(), http.StatusConflict)
		return
	}
	if err := s.p.StartAs(r.Context(), id, kind); err != nil && !errors.Is(err, player.ErrStartTimeout) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := upgrader.Upgrade(w, r, http.Header{"X-Session-Id": []string{id}})
	if err != nil {
		s.log.Warn().Err(err).Msg("ingest upgrade")
		return
	}
	defer ws.Close()

	log := s.log.With().Str("id", id).Str("codec", string(kind)).Logger()
	log.Info().Msg("ingest stream open")

	var total int64
	eof := false
	for !eof {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			// koneksi putus: tutup stream supaya player bisa drain
			if werr := s.p.Write(id, nil, true); werr != nil {
				log.Debug().Err(werr).Msg("ingest final write")
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("ingest read")
			}
			break
		}

		switch mt {
		case websocket.BinaryMessage:
			err = s.p.Write(id, data, false)
			total += int64(len(data))
		case websocket.TextMessage:
			if strings.TrimSpace(string(data)) != eofMessage {
				continue
			}
			err = s.p.Write(id, nil, true)
			eof = true
		}
		if err != nil {
			log.Warn().Err(err).Msg("ingest write")
			closeWith(ws, websocket.ClosePolicyViolation, err.Error())
			return
		}
	}

	if eof {
		closeWith(ws, websocket.CloseNormalClosure, eofMessage)
	}
	log.Info().Int64("bytes", total).Bool("eof", eof).Msg("ingest stream closed")
}

func closeWith(ws *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
