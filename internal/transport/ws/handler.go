package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

type TokenParser interface {
	ParseToken(token string) (uuid.UUID, error)
}

type HandlerConfig struct {
	AllowedOrigins    []string
	CommandsPerSecond int
	Burst             int
}

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (WebSocket can't send headers).
func ServeWS(hub *Hub, tokens TokenParser, deps Deps, cfg HandlerConfig, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, `{"error":{"code":"UNAUTHORIZED","message":"Missing token"}}`, http.StatusUnauthorized)
			return
		}

		userID, err := tokens.ParseToken(tokenStr)
		if err != nil {
			http.Error(w, `{"error":{"code":"UNAUTHORIZED","message":"Invalid or expired token"}}`, http.StatusUnauthorized)
			return
		}

		// long-lived connection: drop the server's request timeouts
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, acceptOptions(cfg.AllowedOrigins))
		if err != nil {
			log.Warn("ws_accept_failed", zap.Error(err))
			return
		}

		var limiter *rate.Limiter
		if cfg.CommandsPerSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.CommandsPerSecond), max(cfg.Burst, 1))
		}

		client := NewClient(hub, conn, userID, deps, limiter, log)
		if !hub.Register(client) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		go client.WritePump()
		client.ReadPump(r.Context())
	}
}

// acceptOptions turns CORS origins into nhooyr host patterns.
func acceptOptions(origins []string) *websocket.AcceptOptions {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return &websocket.AcceptOptions{InsecureSkipVerify: true}
		}
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		patterns = append(patterns, o)
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}
