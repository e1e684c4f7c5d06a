package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/Abhishek8642/MindPal-1.3/internal/bus"
)

// eventBuffer bounds the per-client backlog; slow readers drop events rather
// than stalling the bus.
const eventBuffer = 64

// serveEvents upgrades to a websocket and streams daemon events to the UI.
// The client may scope the feed with ?namespace=network. or ?namespace=video.
func (h *Handler) serveEvents(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "feed closed") }()

	events, unsub := h.bus.Subscribe(namespace, eventBuffer)
	defer unsub()

	ctx := r.Context()

	// Drain client frames so pings and close handshakes are processed.
	go func() {
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt := <-events:
			if err := writeEvent(ctx, ws, evt); err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					h.logger.Debug("event write failed", zap.Error(err))
				}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, evt bus.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
