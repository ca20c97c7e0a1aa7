package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestEventsURL(t *testing.T) {
	tests := []struct {
		base, job, want string
		wantErr         bool
	}{
		{"http://localhost:8787", "", "ws://localhost:8787/v1/events", false},
		{"https://time.example.com/", "job-1", "wss://time.example.com/v1/events?job=job-1", false},
		{"https://time.example.com/api", "", "wss://time.example.com/api/v1/events", false},
		{"ftp://x", "", "", true},
	}
	for _, tt := range tests {
		got, err := eventsURL(tt.base, tt.job)
		if tt.wantErr {
			if err == nil {
				t.Errorf("eventsURL(%q) should fail", tt.base)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("eventsURL(%q, %q) = %q, %v; want %q", tt.base, tt.job, got, err, tt.want)
		}
	}
}

func TestNewWebsocketFollowerRejectsUnsafeJobID(t *testing.T) {
	if _, err := NewWebsocketFollower(WebsocketFollowerConfig{BaseURL: "http://x", JobID: "a/b"}); err == nil {
		t.Error("expected error for job ID with a slash")
	}
}

func TestWebsocketFollowerForwardsEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAuth := make(chan string, 1)
	gotJob := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		gotJob <- r.URL.Query().Get("job")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(Event{Type: Started, JobID: "job-1"})
		conn.WriteJSON(Event{Type: Stopped, JobID: "job-1"})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		// wait for the client to go away
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	}))
	defer srv.Close()

	f, err := NewWebsocketFollower(WebsocketFollowerConfig{BaseURL: srv.URL, APIKey: "secret", JobID: "job-1"})
	if err != nil {
		t.Fatal(err)
	}

	var got []Type
	bus := NewBus()
	bus.Subscribe(func(e Event) { got = append(got, e.Type) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.Start(ctx, bus); err != nil {
		t.Fatalf("Start() error = %v, want nil on normal closure", err)
	}

	if a := <-gotAuth; a != "Bearer secret" {
		t.Errorf("Authorization = %q", a)
	}
	if j := <-gotJob; j != "job-1" {
		t.Errorf("job query = %q", j)
	}
	if len(got) != 2 || got[0] != Started || got[1] != Stopped {
		t.Errorf("forwarded %v, want [started stopped]", got)
	}
}

func TestWebsocketFollowerStopsOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer srv.Close()

	f, _ := NewWebsocketFollower(WebsocketFollowerConfig{BaseURL: srv.URL, Reconnect: true})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Start(ctx, Discard) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Start() = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func TestWebsocketFollowerDialError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusUnauthorized)
	}))
	defer srv.Close()

	f, _ := NewWebsocketFollower(WebsocketFollowerConfig{BaseURL: srv.URL})
	if err := f.Start(context.Background(), Discard); err == nil {
		t.Error("Start() should fail when the handshake is rejected")
	}
}
