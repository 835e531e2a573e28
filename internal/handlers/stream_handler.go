package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fullstack-poc/usersview/internal/view"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// timeout for writing a message to the websocket connection.
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the browser.
	pongWait = 60 * time.Second

	// send pings with this period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// the browser never sends payloads, only control frames.
	maxMessageSize = 512
)

// Stream handles GET /ws, pushing a view snapshot to the browser after every state change
func (h *PageHandler) Stream(w http.ResponseWriter, r *http.Request) {
	v, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	// latest snapshot wins: the slot holds at most one pending snapshot
	pending := make(chan view.Snapshot, 1)
	unsubscribe := v.Subscribe(func(s view.Snapshot) {
		select {
		case pending <- s:
		default:
			select {
			case <-pending:
			default:
			}
			pending <- s
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go readPump(conn, closed)

	writePump(conn, pending, closed, v.Done(), h.logger)
}

// readPump consumes control frames until the connection fails, then closes "closed"
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends snapshots and pings until the connection or the view is closed
func writePump(conn *websocket.Conn, pending <-chan view.Snapshot, closed, viewDone <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case snap := <-pending:
			data, err := json.Marshal(snap)
			if err != nil {
				logger.Error("failed to encode snapshot", zap.Error(err))
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("websocket write failed", zap.Error(err))
				}
				return
			}

		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-viewDone:
			// the session expired; the page has to reload to get a new one
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
				time.Now().Add(writeWait))
			return

		case <-closed:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
