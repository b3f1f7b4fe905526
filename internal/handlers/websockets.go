package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"occupancy/internal/logger"
	ws "occupancy/internal/services/websocket"
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler streams metrics snapshots to a viewer. The optional
// camera query parameter limits the feed to one camera.
func ViewWebsocketHandler(hub *ws.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(512)
		connection.SetReadDeadline(time.Now().Add(60 * time.Second))
		connection.SetPongHandler(func(appData string) error {
			connection.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		hub.Register(connection, r.URL.Query().Get("camera"))
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				logger.Debug("Viewer disconnected: %v", err)
				break
			}
		}
	}
}
