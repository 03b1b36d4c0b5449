package handlers

import (
	"net/http"
	"time"

	"educheck/internal/logger"
	"educheck/internal/services/websocket"

	gorilla "github.com/gorilla/websocket"
)

var (
	viewerReadWait = 60 * time.Second
	// Ping musi przyjść przed upływem viewerReadWait
	viewerPingPeriod = viewerReadWait * 9 / 10
	viewerWriteWait  = 5 * time.Second
)

var Upgrader = gorilla.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler registers operator screens with the hub. Viewers only
// listen; anything they send is discarded. The connection is kept alive with
// pings, each pong extending the read deadline.
func ViewWebsocketHandler(hub *websocket.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(512)
		connection.SetReadDeadline(time.Now().Add(viewerReadWait))
		connection.SetPongHandler(func(appData string) error {
			connection.SetReadDeadline(time.Now().Add(viewerReadWait))
			return nil
		})

		if !hub.Register(connection) {
			connection.Close()
			return
		}
		defer hub.Unregister(connection)

		done := make(chan struct{})
		defer close(done)
		go keepAlive(connection, done, logger)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
					logger.Info("Viewer disconnected normally")
				} else {
					logger.Warning("Viewer disconnected: %v", err)
				}
				return
			}
			connection.SetReadDeadline(time.Now().Add(viewerReadWait))
		}
	}
}

// keepAlive pings the viewer until done is closed or a ping fails.
// WriteControl is safe next to the hub's writes.
func keepAlive(connection *gorilla.Conn, done <-chan struct{}, logger *logger.Logger) {
	ticker := time.NewTicker(viewerPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := connection.WriteControl(gorilla.PingMessage, nil, time.Now().Add(viewerWriteWait)); err != nil {
				logger.Debug("Ping failed: %v", err)
				return
			}
		}
	}
}
