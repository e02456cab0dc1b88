package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hdxplay/internal/alert"
	"hdxplay/internal/codec"
	"hdxplay/internal/meter"
	"hdxplay/internal/player"

	"github.com/rs/zerolog"
)

type write struct {
	id   string
	data string
	eof  bool
}

type fakePlayer struct {
	mu      sync.Mutex
	playing bool
	id      string
	kind    codec.Kind
	writes  []write
	stops   int
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
	if !f.playing {
		return player.ErrNotPlaying
	}
	if id != f.id {
		return player.ErrSessionMismatch
	}
	f.writes = append(f.writes, write{id, string(data), eof})
	return nil
}

func (f *fakePlayer) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playing {
		f.stops++
	}
	f.playing, f.id = false, ""
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
	st := player.Stats{Session: f.id, Playing: f.playing, Codec: string(f.kind)}
	if f.playing {
		st.State = player.Playing.String()
	} else {
		st.State = player.Idle.String()
	}
	return st
}

func (f *fakePlayer) snapshot() ([]write, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]write(nil), f.writes...), f.stops
}

type fakeVolume struct {
	mu sync.Mutex
	db float64
}

func (v *fakeVolume) SetVolume(db float64) { v.mu.Lock(); v.db = db; v.mu.Unlock() }
func (v *fakeVolume) Volume() float64      { v.mu.Lock(); defer v.mu.Unlock(); return v.db }

type client struct {
	t      *testing.T
	nc     net.Conn
	r      *bufio.Reader
	events []string
}

func (c *client) send(line string) {
	c.t.Helper()
	if _, err := c.nc.Write([]byte(line + "\n")); err != nil {
		c.t.Fatal(err)
	}
}

// next returns the next reply, collecting EVENT lines on the way.
func (c *client) next() string {
	c.t.Helper()
	for {
		c.nc.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, err := c.r.ReadString('\n')
		if err != nil {
			c.t.Fatalf("read: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "EVENT ") {
			c.events = append(c.events, strings.TrimPrefix(line, "EVENT "))
			continue
		}
		return line
	}
}

func (c *client) do(line string) string {
	c.t.Helper()
	c.send(line)
	return c.next()
}

// waitEvent reads until an EVENT line arrives.
func (c *client) waitEvent() map[string]any {
	c.t.Helper()
	for len(c.events) == 0 {
		c.nc.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, err := c.r.ReadString('\n')
		if err != nil {
			c.t.Fatalf("waiting for event: %v", err)
		}
		if s, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "EVENT "); ok {
			c.events = append(c.events, s)
		}
	}
	ev := map[string]any{}
	if err := json.Unmarshal([]byte(c.events[0]), &ev); err != nil {
		c.t.Fatal(err)
	}
	c.events = c.events[1:]
	return ev
}

type fixture struct {
	srv  *Server
	p    *fakePlayer
	vol  *fakeVolume
	path string
}

func newFixture(t *testing.T, d Deps) *fixture {
	t.Helper()
	f := &fixture{p: &fakePlayer{}, vol: &fakeVolume{}}
	d.Player = f.p
	if d.Volume == nil {
		d.Volume = f.vol
	}
	if d.Kind == "" {
		d.Kind = codec.KindMP3
	}

	dir, err := os.MkdirTemp("", "ipc")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	f.path = filepath.Join(dir, "s.sock")

	f.srv = New(d, zerolog.Nop())
	if err := f.srv.Listen(f.path); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		f.srv.Serve(context.Background())
		close(done)
	}()
	t.Cleanup(func() {
		f.srv.Close()
		<-done
	})
	return f
}

func (f *fixture) dial(t *testing.T) *client {
	t.Helper()
	nc, err := net.Dial("unix", f.path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { nc.Close() })
	return &client{t: t, nc: nc, r: bufio.NewReader(nc)}
}

func TestReadOnlyCommands(t *testing.T) {
	f := newFixture(t, Deps{})
	c := f.dial(t)

	if got := c.do("about"); got != "hdxplay V.3.0" {
		t.Fatalf("ABOUT = %q", got)
	}
	if got := c.do("PING"); got != "Pong" {
		t.Fatalf("PING = %q", got)
	}
	if got := c.do("WHOAMI"); got != "OBSERVER" {
		t.Fatalf("WHOAMI = %q", got)
	}

	var st struct {
		State    string   `json:"state"`
		Owner    bool     `json:"owner"`
		VolumeDB *float64 `json:"volume_db"`
	}
	if err := json.Unmarshal([]byte(c.do("STATUS")), &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "IDLE" || st.Owner || st.VolumeDB == nil {
		t.Fatalf("STATUS = %+v", st)
	}
	if got := c.do("METER"); got != "ERR NO_METER" {
		t.Fatalf("METER = %q", got)
	}
	if got := c.do("ALERTS"); got != "null" {
		t.Fatalf("ALERTS = %q", got)
	}
	// read-only commands do not claim control
	if got := c.do("WHOAMI"); got != "OBSERVER" {
		t.Fatalf("WHOAMI = %q", got)
	}
}

func TestMeterCommand(t *testing.T) {
	f := newFixture(t, Deps{Meter: meter.New(4)})
	c := f.dial(t)

	var snap meter.Snapshot
	if err := json.Unmarshal([]byte(c.do("METER")), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Bands) != 4 {
		t.Fatalf("bands = %v", snap.Bands)
	}
}

func TestOwnership(t *testing.T) {
	f := newFixture(t, Deps{})
	a := f.dial(t)
	b := f.dial(t)

	got := a.do("START s1 raw")
	if got != "OK s1" {
		t.Fatalf("START = %q", got)
	}
	if got := a.do("WHOAMI"); got != "OWNER" {
		t.Fatalf("owner WHOAMI = %q", got)
	}
	if got := b.do("STOP"); got != "ERR CONTROL_LOCKED" {
		t.Fatalf("observer STOP = %q", got)
	}
	// payload of a rejected WRITE is skipped
	b.send("WRITE - 0 3")
	b.send("abc")
	if got := b.next(); got != "ERR CONTROL_LOCKED" {
		t.Fatalf("observer WRITE = %q", got)
	}
	if got := b.do("PING"); got != "Pong" {
		t.Fatalf("PING after WRITE = %q", got)
	}

	if f.p.Stats().Codec != "raw" {
		t.Fatalf("codec = %q", f.p.Stats().Codec)
	}
	if got := a.do("START s2"); got != "ERR BUSY s1" {
		t.Fatalf("second START = %q", got)
	}
	if got := a.do("START s2 flac"); got != "ERR CODEC" {
		t.Fatalf("bad codec = %q", got)
	}

	// owner leaves: session is stopped and control is free
	a.nc.Close()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, stops := f.p.snapshot(); stops == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session not stopped on owner disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := b.do("START"); !strings.HasPrefix(got, "OK ") || len(got) != len("OK ")+36 {
		t.Fatalf("START without id = %q", got)
	}
}

func TestWrite(t *testing.T) {
	f := newFixture(t, Deps{})
	c := f.dial(t)

	if got := c.do("WRITE x 0 2\nhi"); got != "ERR NOT_PLAYING" {
		t.Fatalf("WRITE idle = %q", got)
	}
	if got := c.do("START s1"); got != "OK s1" {
		t.Fatalf("START = %q", got)
	}

	c.send("WRITE s1 0 6")
	c.nc.Write([]byte("hello\n")) // payload boleh berisi newline
	if got := c.next(); got != "OK" {
		t.Fatalf("WRITE = %q", got)
	}
	if got := c.do("WRITE - 1 3\nend"); got != "OK" {
		t.Fatalf("WRITE - = %q", got)
	}
	if got := c.do("WRITE other 0 1\nx"); got != "ERR SESSION" {
		t.Fatalf("WRITE other = %q", got)
	}
	if got := c.do("WRITE s1 2 1\nx"); got != "ERR ARG" {
		t.Fatalf("WRITE bad eof = %q", got)
	}
	if got := c.do("PING"); got != "Pong" {
		t.Fatalf("PING = %q", got)
	}

	writes, _ := f.p.snapshot()
	want := []write{{"s1", "hello\n", false}, {"s1", "end", true}}
	if len(writes) != len(want) {
		t.Fatalf("writes = %+v", writes)
	}
	for i := range want {
		if writes[i] != want[i] {
			t.Fatalf("write %d = %+v, want %+v", i, writes[i], want[i])
		}
	}

	if got := c.do("STOP"); got != "OK" {
		t.Fatalf("STOP = %q", got)
	}
	if got := c.do("FROB"); got != "ERR UNKNOWN" {
		t.Fatalf("unknown = %q", got)
	}
}

func TestBadWriteHeaderClosesConn(t *testing.T) {
	f := newFixture(t, Deps{})
	c := f.dial(t)

	if got := c.do("WRITE s1 0 lots"); got != "ERR ARG" {
		t.Fatalf("WRITE = %q", got)
	}
	c.nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.r.ReadString('\n'); err == nil {
		t.Fatal("connection still open")
	}
}

func TestEvents(t *testing.T) {
	f := newFixture(t, Deps{})
	a := f.dial(t)
	b := f.dial(t)

	// no owner yet: nothing to deliver
	f.srv.StateHook(player.Idle, player.Start)

	if got := a.do("START s1"); got != "OK s1" {
		t.Fatalf("START = %q", got)
	}
	f.srv.StateHook(player.Start, player.Playing)
	f.srv.StateHook(player.Playing, player.Playing) // bukan transisi

	ev := a.waitEvent()
	if ev["type"] != "STATE" || ev["from"] != "START" || ev["to"] != "PLAYING" ||
		ev["session"] != "s1" || ev["playing"] != true {
		t.Fatalf("event = %v", ev)
	}

	if got := a.do("VOLUME -6.5"); got != "OK" {
		t.Fatalf("VOLUME = %q", got)
	}
	ev = a.waitEvent()
	if ev["type"] != "VOLUME" || ev["volume_db"] != -6.5 {
		t.Fatalf("volume event = %v", ev)
	}
	if len(a.events) != 0 {
		t.Fatalf("extra events %v", a.events)
	}
	if got := b.do("PING"); got != "Pong" || len(b.events) != 0 {
		t.Fatalf("observer got events %v", b.events)
	}
}

func TestVolume(t *testing.T) {
	f := newFixture(t, Deps{})
	c := f.dial(t)

	if got := c.do("VOLUME"); got != "0.0" {
		t.Fatalf("VOLUME = %q", got)
	}
	if got := c.do("VOLUME loud"); got != "ERR ARG" {
		t.Fatalf("VOLUME loud = %q", got)
	}
	if got := c.do("VOLUME -12"); got != "OK" {
		t.Fatalf("VOLUME -12 = %q", got)
	}
	if got := c.do("VOLUME"); got != "-12.0" {
		t.Fatalf("VOLUME = %q", got)
	}
	if f.vol.Volume() != -12 {
		t.Fatalf("volume = %v", f.vol.Volume())
	}
}

func TestAlert(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "battery_low.raw"), []byte("beep"), 0o644); err != nil {
		t.Fatal(err)
	}
	lib, err := alert.Open(dir, "", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	f := newFixture(t, Deps{Alerts: lib})
	c := f.dial(t)

	if got := c.do("ALERTS"); got != `["battery_low"]` {
		t.Fatalf("ALERTS = %q", got)
	}
	if got := c.do("START s1"); got != "OK s1" {
		t.Fatalf("START = %q", got)
	}
	// alert memotong sesi yang sedang jalan
	if got := c.do("ALERT battery_low"); got != "OK" {
		t.Fatalf("ALERT = %q", got)
	}
	writes, stops := f.p.snapshot()
	if stops != 1 || len(writes) != 1 || writes[0] != (write{"alert_7", "beep", true}) {
		t.Fatalf("writes = %+v stops = %d", writes, stops)
	}
	if f.p.Stats().Codec != "raw" {
		t.Fatalf("alert codec = %q", f.p.Stats().Codec)
	}

	if got := c.do("ALERT wakeup"); got != "ERR NO_CLIP" {
		t.Fatalf("ALERT wakeup = %q", got)
	}
	if got := c.do("ALERT doorbell"); got != "ERR ARG" {
		t.Fatalf("ALERT doorbell = %q", got)
	}
	if got := c.do("ALERT"); got != "ERR ARG" {
		t.Fatalf("ALERT = %q", got)
	}
}
