package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"educheck/internal/logger"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*HubService, *httptest.Server) {
	t.Helper()

	hub := NewHubService(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if !hub.Register(conn) {
			return
		}
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *HubService, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, hub.GetClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Invalid envelope %s: %v", data, err)
	}
	return env
}

func TestHub_BroadcastsStatusAndFrames(t *testing.T) {
	hub, server := startHub(t)
	first := dial(t, server)
	second := dial(t, server)
	waitClients(t, hub, 2)

	hub.PublishStatus(map[string]string{"camera": "scanning"})
	for _, conn := range []*websocket.Conn{first, second} {
		env := readEnvelope(t, conn)
		if env.Type != TypeStatus {
			t.Errorf("Expected status message, got %s", env.Type)
		}
	}

	if !hub.PublishFrame("aGVsbG8=") {
		t.Fatal("Expected frame queued")
	}
	env := readEnvelope(t, first)
	if env.Type != TypeFrame || env.Image != "aGVsbG8=" {
		t.Errorf("Unexpected frame message %+v", env)
	}
}

func TestHub_ReplaysLastStatusToNewViewer(t *testing.T) {
	hub, server := startHub(t)

	hub.PublishStatus(map[string]string{"camera": "no_camera"})

	conn := dial(t, server)
	env := readEnvelope(t, conn)
	if env.Type != TypeStatus {
		t.Fatalf("Expected replayed status, got %s", env.Type)
	}
	data, _ := json.Marshal(env.Data)
	if !strings.Contains(string(data), "no_camera") {
		t.Errorf("Unexpected replay %s", data)
	}
	waitClients(t, hub, 1)
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewHubService(logger.Nop())

	// Run is not started, so the queue fills up.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Broadcast([]byte("x"))
			hub.PublishFrame("x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked with no reader")
	}
}

func TestHub_PublishAfterStopIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	hub := NewHubService(logger.NewWithWriter(&buf, "debug"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	for i := 0; i < 2*cap(hub.broadcast); i++ {
		hub.PublishStatus(map[string]string{"status": "idle"})
	}

	if hub.Broadcast([]byte("x")) {
		t.Error("Expected Broadcast to refuse after the hub stopped")
	}
	if n := len(hub.broadcast); n != 0 {
		t.Errorf("Expected empty queue after stop, got %d", n)
	}
	if strings.Contains(buf.String(), "queue full") {
		t.Errorf("Unexpected queue warning after stop: %s", buf.String())
	}
}
