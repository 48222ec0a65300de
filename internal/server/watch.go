package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"psadtagent/internal/pkgstore"
)

const (
	watchWriteWait = 10 * time.Second
	watchPongWait  = 60 * time.Second
	watchPingEvery = (watchPongWait * 9) / 10
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type watchOutbound struct {
	Type      string            `json:"type"`
	PackageID string            `json:"package_id,omitempty"`
	Package   *pkgstore.Package `json:"package,omitempty"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// handleWatch streams package progress over a websocket: "subscribed",
// then one "progress" message per change, then "done" once the package
// completes or fails.
func (a *API) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if a.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "background jobs are disabled")
		return
	}
	if _, err := a.packages.Get(r.Context(), id); err != nil {
		a.storeError(w, err)
		return
	}

	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(watchPongWait)); err != nil {
		a.logger.Warn("watch: set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})

	// The reader only notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sub, err := a.jobs.Subscribe(ctx, id)
	if err != nil {
		code := "internal"
		if errors.Is(err, pkgstore.ErrNotFound) {
			code = "not_found"
		}
		_ = writeWS(conn, watchOutbound{Type: "error", PackageID: id, Code: code, Message: err.Error()})
		return
	}
	if err := writeWS(conn, watchOutbound{Type: "subscribed", PackageID: id}); err != nil {
		return
	}

	ticker := time.NewTicker(watchPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case pkg, ok := <-sub:
			if !ok {
				_ = writeWS(conn, watchOutbound{Type: "done", PackageID: id})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(watchWriteWait))
				return
			}
			if err := writeWS(conn, watchOutbound{Type: "progress", PackageID: id, Package: &pkg}); err != nil {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, out watchOutbound) error {
	if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(out)
}
