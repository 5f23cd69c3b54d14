package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	app "score-rooms/internal/app"
	httpx "score-rooms/internal/http"
	room "score-rooms/internal/room"
	store "score-rooms/internal/store"
	ws "score-rooms/internal/ws"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Keyed store + cross-instance bus. The memory driver is for local
	// dev without redis; no bus, single instance only.
	var st store.Store
	var bus *ws.Bus
	if cfg.StoreDriver == "memory" {
		logger.Warn("store.memory", "note", "rooms are process-local and lost on restart")
		st = store.NewMemory()
	} else {
		rd, err := store.NewRedis(ctx, cfg, logger)
		if err != nil {
			logger.Error("redis connect", "err", err)
			log.Fatal(err)
		}
		defer rd.Close()
		st = rd

		bus, err = ws.NewBus(ctx, cfg, logger)
		if err != nil {
			logger.Error("redis bus connect", "err", err)
			log.Fatal(err)
		}
		defer bus.Close()
	}

	// WebSocket hub + room service (the service broadcasts through the hub)
	hub := ws.NewHub(logger, bus)
	svc := room.NewService(st, hub, logger, cfg.RoomTTL)
	hub.SetSession(svc)
	go hub.Run(ctx)

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, hub, svc)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	// shutdown
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}
