package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// streamWriteTimeout bounds a single event write to a slow client.
const streamWriteTimeout = 5 * time.Second

// streamMessage is the JSON shape pushed to matrix clients.
type streamMessage struct {
	Type   string  `json:"type"`
	Change *Change `json:"change,omitempty"`
}

// stream upgrades to a WebSocket and forwards change events so an open matrix
// view can reload. The client never sends anything meaningful.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("rbac stream upgrade", slog.Any("error", err))
		return
	}
	defer conn.CloseNow()

	// CloseRead cancels ctx once the peer goes away.
	ctx := conn.CloseRead(context.WithoutCancel(r.Context()))
	events := make(chan Change, 16)
	if err := h.service.Subscribe(ctx, func(c Change) {
		select {
		case events <- c:
		default:
		}
	}); err != nil {
		h.logger.Error("rbac stream subscribe", slog.Any("error", err))
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}

	if err := h.send(ctx, conn, streamMessage{Type: "ready"}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case c := <-events:
			change := c
			if err := h.send(ctx, conn, streamMessage{Type: "change", Change: &change}); err != nil {
				h.logger.Debug("rbac stream write", slog.Any("error", err))
				return
			}
		}
	}
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}
