package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"educheck/internal/logger"
	"educheck/internal/services/websocket"

	gorilla "github.com/gorilla/websocket"
)

func TestViewWebsocketHandler_IdleViewerStaysConnected(t *testing.T) {
	readWait, pingPeriod := viewerReadWait, viewerPingPeriod
	viewerReadWait, viewerPingPeriod = 100*time.Millisecond, 30*time.Millisecond
	defer func() { viewerReadWait, viewerPingPeriod = readWait, pingPeriod }()

	hub := websocket.NewHubService(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(ViewWebsocketHandler(hub, logger.Nop()))
	defer server.Close()

	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	// The viewer never sends anything; reading answers pings with pongs.
	pings := make(chan struct{}, 16)
	conn.SetPingHandler(func(data string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return conn.WriteControl(gorilla.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(4 * viewerReadWait)

	if n := hub.GetClientCount(); n != 1 {
		t.Fatalf("Expected idle viewer still registered, got %d clients", n)
	}
	if len(pings) == 0 {
		t.Error("Expected pings from the server")
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Viewer was not unregistered after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
