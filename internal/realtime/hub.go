package realtime

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/guideworks/livesync/internal/docstore"
)

const subscribeTimeout = 10 * time.Second

// Hub upgrades HTTP requests to websocket subscriptions and fans document
// store notifications out to each connected client. The store applies the
// table and locale filters; the hub only forwards.
type Hub struct {
	store  *docstore.Store
	logger Logger
}

func NewHub(store *docstore.Store, logger Logger) *Hub {
	return &Hub{store: store, logger: logger}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logf("websocket accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx := r.Context()
	readCtx, cancelRead := context.WithTimeout(ctx, subscribeTimeout)
	var req SubscribeRequest
	err = wsjson.Read(readCtx, conn, &req)
	cancelRead()
	if err != nil {
		_ = wsjson.Write(ctx, conn, Frame{Type: FrameError, Message: "expected subscribe request"})
		conn.Close(websocket.StatusPolicyViolation, "bad subscribe")
		return
	}
	if req.Table != docstore.TableLiveDocs && req.Table != docstore.TableOverrides {
		_ = wsjson.Write(ctx, conn, Frame{Type: FrameError, Message: "unknown table"})
		conn.Close(websocket.StatusPolicyViolation, "unknown table")
		return
	}

	notifications, cancel := h.store.Subscribe(req.Table, req.Locale)
	defer cancel()

	if err := wsjson.Write(ctx, conn, Frame{Type: FrameSubscribed}); err != nil {
		return
	}

	// Drain the client side so pings and close frames are processed.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-readDone:
			return
		case n, ok := <-notifications:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "store closed")
				return
			}
			if err := wsjson.Write(ctx, conn, Frame{Type: FrameNotification, Notification: &n}); err != nil {
				return
			}
		}
	}
}

func (h *Hub) logf(format string, args ...any) {
	if h.logger == nil {
		return
	}
	h.logger.Printf(format, args...)
}
