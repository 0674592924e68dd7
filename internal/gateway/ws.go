// ABOUTME: WebSocket streaming endpoint with the same replay-then-live semantics as SSE
// ABOUTME: A read pump detects viewer disconnects and tears the subscription down

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Viewers are trusted local tooling; origin checks are not this
	// gateway's concern.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStreamWS serves GET /ws/stream?sessionId= over WebSocket. Each
// event is one JSON text message, history first, then live, ending with
// a close frame after the terminal event.
func (g *Gateway) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	// Validate the session before upgrading so the client gets a real
	// HTTP status instead of an immediate close frame.
	if _, err := g.registry.Snapshot(sessionID); err != nil {
		g.sendSessionError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read pump: the viewer sends nothing meaningful, but reading is
	// how gorilla surfaces the close handshake and dead connections.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	ch, subID, err := g.registry.SubscribeWithReplay(ctx, sessionID)
	if err != nil {
		// Session evicted between the pre-upgrade check and now; the
		// connection is already hijacked, so just close it.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "session not found"),
			time.Now().Add(wsWriteTimeout))
		return
	}
	defer g.registry.Unsubscribe(sessionID, subID)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, open := <-ch:
			if !open {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				g.logger.Debug("websocket write failed", "session_id", sessionID, "error", err)
				return
			}

			if ev.IsTerminal() {
				deadline := time.Now().Add(wsWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Type)),
					deadline)
				return
			}
		}
	}
}
