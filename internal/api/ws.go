package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/timokroeger/winmsg-executor/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The demo binds to loopback; origin checking is the host
		// application's problem in anything real.
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// handleEvents upgrades the connection and streams executor events to
// the client until it goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	eventCh, cancel := s.broker.Subscribe()

	logger.WithComponent("api").Info().
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket client connected")

	// Read pump: discard client frames, notice the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() {
			cancel()
			_ = conn.Close()
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-closed:
				return
			case event, ok := <-eventCh:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(event); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}
