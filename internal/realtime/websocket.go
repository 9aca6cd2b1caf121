package realtime

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Serve pumps hub events to conn until the peer disconnects. Inbound frames
// are only read to detect closure.
func (h *Hub) Serve(conn *websocket.Conn, userID uuid.UUID) {
	client := NewClient(userID)
	if !h.RegisterClient(client) {
		return
	}
	defer h.UnregisterClient(client)

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-client.Send:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, nil)
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.log.Debugw("websocket write", "client", client.ID, "error", err)
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.log.Debugw("websocket closed", "client", client.ID, "user", userID, "error", err)
			return
		}
	}
}
