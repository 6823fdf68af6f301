package httpx

import (
	"log/slog"
	"net/http"

	"github.com/jamesbeebe/320-Team-1/internal/app"
	"github.com/jamesbeebe/320-Team-1/internal/store"
	"github.com/jamesbeebe/320-Team-1/internal/ws"
	"github.com/jamesbeebe/320-Team-1/pkg/auth"
	"github.com/jamesbeebe/320-Team-1/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, db *store.Postgres, cache *store.MessageCache) http.Handler {
	mw := NewMiddleware(cfg)

	j := auth.New(cfg.JWTSecret)
	authAPI := &AuthAPI{DB: db, JWT: j}
	chatsAPI := &ChatsAPI{DB: db}
	messagesAPI := &MessagesAPI{DB: db, Cache: cache, Window: cfg.HistoryWindow}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) })
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				http.Error(w, "cache not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(200)
	})
	mux.Handle("GET /metrics", metrics.Handler())

	// WebSocket endpoint; the chat ID is the final path segment
	mux.HandleFunc("/ws/", hub.ServeWS)

	// Auth endpoints
	mux.HandleFunc("POST /api/auth/register", authAPI.Register)
	mux.HandleFunc("POST /api/auth/login", authAPI.Login)
	mux.Handle("GET /api/auth/me", mw.Auth(http.HandlerFunc(authAPI.Me)))

	// Chats endpoints (JWT-protected)
	mux.Handle("GET /api/chats/class/{classID}", mw.Auth(http.HandlerFunc(chatsAPI.List)))
	mux.Handle("POST /api/chats/class/{classID}", mw.Auth(http.HandlerFunc(chatsAPI.Create)))
	mux.Handle("PUT /api/chats/{chatID}", mw.Auth(http.HandlerFunc(chatsAPI.Update)))
	mux.Handle("DELETE /api/chats/{chatID}/members", mw.Auth(http.HandlerFunc(chatsAPI.Leave)))

	// Message history (JWT-protected)
	mux.Handle("GET /api/messages/{chatID}", mw.Auth(http.HandlerFunc(messagesAPI.History)))

	// CORS + rate limit applied globally
	return mw.Wrap(mux)
}
