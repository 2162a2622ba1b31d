package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// StudentsWS handles GET /ws/students: it pushes the current snapshot on
// connect and then every push interval until the client goes away.
func (h *Handler) StudentsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go h.wsReadPump(conn, done)
	h.wsWritePump(r.Context(), conn, done)
}

// wsReadPump consumes client frames so pongs and close messages are handled.
// It closes done when the client disconnects.
func (h *Handler) wsReadPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (h *Handler) wsWritePump(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	push := time.NewTicker(h.pushInterval)
	ping := time.NewTicker(wsPingPeriod)
	defer func() {
		push.Stop()
		ping.Stop()
	}()

	send := func() error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(h.monitor.CurrentStudents())
	}
	if err := send(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
			return
		case <-done:
			return
		case <-push.C:
			if err := send(); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
