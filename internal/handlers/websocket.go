package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/winterden/secret-santa/internal/logger"
	"github.com/winterden/secret-santa/internal/middleware"
	"github.com/winterden/secret-santa/internal/models"
	"github.com/winterden/secret-santa/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by the OriginFilter middleware.
		return true
	},
}

// StreamRooms upgrades the connection and pushes the caller's membership
// snapshot set on every committed change, starting with the current state.
// The stream also fires for changes the caller made themselves.
func (h *Handler) StreamRooms(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	sub, err := h.relay.Subscribe(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	logger.Info("rooms stream opened", zap.String("user", userID))

	go h.writeSnapshots(conn, sub, userID)
	go h.drainReads(conn, sub, userID)
}

// writeSnapshots is the connection's only writer: snapshots from the relay
// plus keepalive pings.
func (h *Handler) writeSnapshots(conn *websocket.Conn, sub *relay.Subscription, userID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case rooms, ok := <-sub.Updates():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			msg := models.SnapshotMessage{
				Type:  models.SnapshotTypeRooms,
				Rooms: rooms,
			}
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("snapshot write failed",
					zap.String("user", userID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainReads discards inbound frames; the stream is one-way. It exists to
// process pongs and notice the peer going away.
func (h *Handler) drainReads(conn *websocket.Conn, sub *relay.Subscription, userID string) {
	defer func() {
		sub.Close()
		conn.Close()
		logger.Info("rooms stream closed", zap.String("user", userID))
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket read error",
					zap.String("user", userID), zap.Error(err))
			}
			return
		}
	}
}
