package httpx

import (
	"net/http"

	"log/slog"
	"score-rooms/internal/app"
	"score-rooms/internal/room"
	"score-rooms/internal/ws"
	"score-rooms/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, svc *room.Service) http.Handler {
	mw := NewMiddleware(cfg)
	api := &RoomsAPI{Svc: svc, Log: logger}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))

	// Room endpoints
	mux.HandleFunc("GET /api/rooms", api.List)
	mux.HandleFunc("POST /api/create_room", api.Create)
	mux.HandleFunc("POST /api/join_room", api.Join)
	mux.HandleFunc("POST /api/score/{room}/{team}/{score}", api.UpdateScore)
	mux.HandleFunc("POST /api/reset/{room}", api.Reset)

	// CORS + rate limit applied globally
	return mw.Wrap(mux)
}
