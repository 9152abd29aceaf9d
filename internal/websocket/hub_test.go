package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/christianmark/transmit/internal/board"
	"github.com/christianmark/transmit/internal/feed"
	"github.com/christianmark/transmit/internal/models"
	"github.com/christianmark/transmit/internal/render"
	"github.com/christianmark/transmit/internal/session"
	"github.com/christianmark/transmit/internal/store"
)

type recordingReducer struct {
	events chan feed.Event
}

func (r *recordingReducer) Apply(ev feed.Event) {
	r.events <- ev
}

type fixture struct {
	hub    *Hub
	events chan feed.Event
	board  *board.Board
	srv    *httptest.Server

	// released counts page connections that let go of the board
	released atomic.Int32
}

func newFixture(t *testing.T, reducer Reducer) *fixture {
	t.Helper()

	html, err := render.NewHTML(time.UTC)
	if err != nil {
		t.Fatalf("NewHTML failed: %v", err)
	}
	b := board.New(store.NewMemory(), session.New(session.NewMemoryKV()), board.WithHTML(html))
	if reducer == nil {
		reducer = b
	}

	events := make(chan feed.Event)
	hub := NewHub(events, reducer, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	f := &fixture{hub: hub, events: events, board: b}

	h := NewHandler(hub, zerolog.Nop())
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", h.ServeStream)
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		h.ServePage(w, r, b, "device-1", func() { f.released.Add(1) })
	})
	f.srv = httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		f.srv.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s failed: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *fixture) waitClients(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, f.hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("read failed: %v", err)
	}
}

func TestStreamReceivesSnapshots(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.dial(t, "/stream")
	f.waitClients(t, 1)

	msgs := []models.Message{{ID: "1", Author: "ALPHA", Text: "hi"}}
	f.events <- feed.Event{Kind: feed.EventConnected}
	f.events <- feed.Event{Kind: feed.EventSnapshot, Messages: msgs}

	var frame models.SnapshotFrame
	readJSON(t, conn, &frame)
	if frame.Type != models.FrameSnapshot {
		t.Fatalf("expected snapshot frame, got %q", frame.Type)
	}
	if len(frame.Transmissions) != 1 || frame.Transmissions[0].ID != "1" {
		t.Errorf("unexpected transmissions %+v", frame.Transmissions)
	}
	if !f.hub.Connected() {
		t.Error("expected hub to report connected")
	}
}

func TestStreamGetsLatestOnJoin(t *testing.T) {
	f := newFixture(t, nil)
	f.events <- feed.Event{Kind: feed.EventSnapshot, Messages: []models.Message{{ID: "x"}}}

	conn := f.dial(t, "/stream")
	var frame models.SnapshotFrame
	readJSON(t, conn, &frame)
	if len(frame.Transmissions) != 1 || frame.Transmissions[0].ID != "x" {
		t.Errorf("expected latest snapshot on join, got %+v", frame.Transmissions)
	}
}

func TestPageReceivesRenderedFrames(t *testing.T) {
	f := newFixture(t, nil)
	f.board.SetUsername("alpha")

	conn := f.dial(t, "/page")
	f.waitClients(t, 1)

	var initial pageFrame
	readJSON(t, conn, &initial)
	if initial.Type != models.FrameRender {
		t.Fatalf("expected frame type, got %q", initial.Type)
	}
	if !strings.Contains(initial.HTML, "NO TRANSMISSIONS FOUND") {
		t.Errorf("expected empty state in first frame, got %s", initial.HTML)
	}

	f.events <- feed.Event{Kind: feed.EventSnapshot, Messages: []models.Message{
		{ID: "m1", Author: "ALPHA", Text: "<i>mine</i>"},
	}}

	var next pageFrame
	readJSON(t, conn, &next)
	if next.Count != 1 || next.ScrollThreshold != render.ScrollThreshold {
		t.Errorf("unexpected frame meta %+v", next.Frame)
	}
	if !strings.Contains(next.HTML, `id="msg-m1"`) || !strings.Contains(next.HTML, "&lt;i&gt;mine&lt;/i&gt;") {
		t.Errorf("unexpected frame html %s", next.HTML)
	}
}

func TestReducerSeesEventsBeforeClients(t *testing.T) {
	rec := &recordingReducer{events: make(chan feed.Event, 1)}
	f := newFixture(t, rec)

	f.events <- feed.Event{Kind: feed.EventDisconnected}
	select {
	case ev := <-rec.events:
		if ev.Kind != feed.EventDisconnected {
			t.Errorf("unexpected event %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("reducer not called")
	}
}

func TestClientLeaves(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.dial(t, "/stream")
	f.waitClients(t, 1)

	conn.Close()
	f.waitClients(t, 0)
}

func TestPageLeaveReleasesBoard(t *testing.T) {
	f := newFixture(t, nil)
	conn := f.dial(t, "/page")
	f.waitClients(t, 1)
	if got := f.released.Load(); got != 0 {
		t.Fatalf("board released while page open: %d", got)
	}

	conn.Close()
	f.waitClients(t, 0)
	if got := f.released.Load(); got != 1 {
		t.Errorf("expected one release, got %d", got)
	}
}

func TestPageFrameJSONShape(t *testing.T) {
	data, err := json.Marshal(pageFrame{Type: "frame", Frame: render.Frame{HTML: "ok", Count: 2, ScrollThreshold: 100}})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"type":"frame","html":"ok","count":2,"scroll_threshold":100}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}
