package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"roomrelay/internal/app/chat"
	"roomrelay/internal/pkg/logx"
)

// HandleWebSocket upgrades the request and runs the connection until it closes. The
// connection starts unregistered; the client must send registerUser before anything else
// takes effect.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Warn("Failed to upgrade connection to WebSocket", "error", err.Error())
			return
		}

		socketID := uuid.NewString()
		client := chat.NewClient(deps.Hub, conn, socketID, deps.Config.SendQueueSize)

		logx.Info("WebSocket connection established",
			"socket_id", socketID,
			"remote_ip", logx.AnonymizeIP(r.RemoteAddr),
		)

		go client.WritePump()
		client.ReadPump()
	}
}
