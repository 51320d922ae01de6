package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ensui-dev/MusicCompanionWidget/internal/hub"
	"github.com/ensui-dev/MusicCompanionWidget/internal/source"
)

type fixedStore struct{ snap *source.Snapshot }

func (f fixedStore) Current() *source.Snapshot { return f.snap }

func newTestServer(t *testing.T, store TrackStore) (*httptest.Server, *hub.Hub) {
	t.Helper()
	h := hub.New(zerolog.Nop())
	s := New(h, store, zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(h.Close)
	return srv, h
}

func TestTrackEndpoint(t *testing.T) {
	snap := &source.Snapshot{Playing: true, Title: "A", Artist: "X", Progress: 1000, Duration: 200000, Source: "test"}
	srv, _ := newTestServer(t, fixedStore{snap: snap})

	resp, err := http.Get(srv.URL + "/api/track")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var msg hub.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != hub.MessageTypeTrack || msg.Data == nil || msg.Data.Title != "A" {
		t.Errorf("message = %+v", msg)
	}
}

func TestTrackEndpointBeforeFirstPoll(t *testing.T) {
	srv, _ := newTestServer(t, fixedStore{})

	resp, err := http.Get(srv.URL + "/api/track")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var msg hub.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Data != nil {
		t.Errorf("data = %+v, want null", msg.Data)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, fixedStore{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	var body struct {
		Status    string `json:"status"`
		Observers int    `json:"observers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Observers != 0 {
		t.Errorf("body = %+v", body)
	}
}

func TestOverlayPageServed(t *testing.T) {
	srv, _ := newTestServer(t, fixedStore{})

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestWSEndpointJoinsHub(t *testing.T) {
	srv, h := newTestServer(t, fixedStore{})

	h.Publish(hub.TrackMessage(source.Snapshot{Playing: true, Title: "B", Artist: "Y", Source: "test"}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg hub.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Data == nil || msg.Data.Title != "B" {
		t.Errorf("greeting = %+v", msg.Data)
	}
}
