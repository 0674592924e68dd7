// ABOUTME: SSE streaming gateway mapping the fan-out bus to a text event stream
// ABOUTME: Replays history first, forwards live events, closes after a terminal event

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleStream serves GET /api/stream?sessionId= as a server-sent event
// stream. The stream opens with a full history replay, continues with
// live events, and ends after the first terminal event. Subscription
// cleanup rides on the request context, so a viewer disconnecting
// releases its sink promptly.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, subID, err := g.registry.SubscribeWithReplay(r.Context(), sessionID)
	if err != nil {
		g.sendSessionError(w, err)
		return
	}
	defer g.registry.Unsubscribe(sessionID, subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	g.logger.Debug("stream attached", "session_id", sessionID, "sub_id", subID)

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, open := <-ch:
			if !open {
				// Session closed, or this subscriber fell too far
				// behind and was evicted. Either way the client must
				// re-attach for a full replay.
				return
			}

			if err := writeSSEData(w, ev); err != nil {
				g.logger.Debug("stream write failed", "session_id", sessionID, "error", err)
				return
			}
			flusher.Flush()

			if ev.IsTerminal() {
				g.logger.Debug("stream closed on terminal event",
					"session_id", sessionID, "type", ev.Type)
				return
			}
		}
	}
}

// writeSSEData writes one event as an SSE data frame.
func writeSSEData(w http.ResponseWriter, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
