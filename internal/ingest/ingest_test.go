package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hdxplay/internal/codec"
	"hdxplay/internal/player"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type write struct {
	id   string
	data string
	eof  bool
}

type fakePlayer struct {
	mu       sync.Mutex
	playing  bool
	id       string
	kind     codec.Kind
	writes   []write
	writeErr error
}

func (f *fakePlayer) StartAs(_ context.Context, id string, kind codec.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.playing {
		f.playing, f.id, f.kind = true, id, kind
	}
	return nil
}

func (f *fakePlayer) Write(id string, data []byte, eof bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, write{id, string(data), eof})
	return nil
}

func (f *fakePlayer) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakePlayer) Session() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakePlayer) Stats() player.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return player.Stats{State: "PLAYING", Session: f.id, Playing: f.playing, Codec: string(f.kind)}
}

func (f *fakePlayer) waitWrites(t *testing.T, n int) []write {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		w := append([]write(nil), f.writes...)
		f.mu.Unlock()
		if len(w) >= n {
			return w
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d writes, want %d: %+v", len(w), n, w)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func setup(t *testing.T, p *fakePlayer) string {
	t.Helper()
	srv := New(p, codec.KindOpus, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestStream(t *testing.T) {
	p := &fakePlayer{}
	url := setup(t, p)

	ws, resp, err := websocket.DefaultDialer.Dial(url+"/stream?id=s1&codec=raw", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	if got := resp.Header.Get("X-Session-Id"); got != "s1" {
		t.Fatalf("session header = %q", got)
	}

	for _, chunk := range []string{"abc", "de"} {
		if err := ws.WriteMessage(websocket.BinaryMessage, []byte(chunk)); err != nil {
			t.Fatal(err)
		}
	}
	ws.WriteMessage(websocket.TextMessage, []byte("hello")) // diabaikan
	ws.WriteMessage(websocket.TextMessage, []byte("eof"))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("close = %v", err)
	}

	want := []write{{"s1", "abc", false}, {"s1", "de", false}, {"s1", "", true}}
	got := p.waitWrites(t, len(want))
	if len(got) != len(want) {
		t.Fatalf("writes = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("write %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if p.Stats().Codec != "raw" {
		t.Fatalf("codec = %q", p.Stats().Codec)
	}
}

func TestStreamGeneratedID(t *testing.T) {
	p := &fakePlayer{}
	url := setup(t, p)

	ws, resp, err := websocket.DefaultDialer.Dial(url+"/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	id := resp.Header.Get("X-Session-Id")
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("session id %q: %v", id, err)
	}
	if p.Session() != id {
		t.Fatalf("player session = %q", p.Session())
	}
	if p.Stats().Codec != "opus" {
		t.Fatalf("default codec = %q", p.Stats().Codec)
	}
}

func TestStreamDisconnectSendsEOF(t *testing.T) {
	p := &fakePlayer{}
	url := setup(t, p)

	ws, _, err := websocket.DefaultDialer.Dial(url+"/stream?id=s1", nil)
	if err != nil {
		t.Fatal(err)
	}
	ws.WriteMessage(websocket.BinaryMessage, []byte("x"))
	ws.Close()

	got := p.waitWrites(t, 2)
	if got[1] != (write{"s1", "", true}) {
		t.Fatalf("final write = %+v", got[1])
	}
}

func TestStreamRejected(t *testing.T) {
	p := &fakePlayer{playing: true, id: "other"}
	url := setup(t, p)

	_, resp, err := websocket.DefaultDialer.Dial(url+"/stream?id=s1", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("busy dial err = %v resp = %v", err, resp)
	}

	_, resp, err = websocket.DefaultDialer.Dial(url+"/stream?id=other&codec=flac", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad codec err = %v resp = %v", err, resp)
	}
}

func TestStreamWriteError(t *testing.T) {
	p := &fakePlayer{writeErr: player.ErrSessionMismatch}
	url := setup(t, p)

	ws, _, err := websocket.DefaultDialer.Dial(url+"/stream?id=s1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	ws.WriteMessage(websocket.BinaryMessage, []byte("x"))
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("close = %v", err)
	}
}

func TestStatus(t *testing.T) {
	p := &fakePlayer{playing: true, id: "s9", kind: codec.KindMP3}
	srv := New(p, codec.KindMP3, zerolog.Nop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var st player.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Session != "s9" || !st.Playing || st.Codec != "mp3" {
		t.Fatalf("status = %+v", st)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST code = %d", rec.Code)
	}
}
