package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"

	"github.com/jamesbeebe/320-Team-1/internal/app"
	httpx "github.com/jamesbeebe/320-Team-1/internal/http"
	"github.com/jamesbeebe/320-Team-1/internal/store"
	"github.com/jamesbeebe/320-Team-1/internal/ws"
	"github.com/jamesbeebe/320-Team-1/pkg/auth"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres connection + migrations; bounded retry so a briefly late
	// database doesn't kill the process on boot
	var pg *store.Postgres
	err := dialWithRetry(ctx, func() error {
		var err error
		pg, err = store.NewPostgres(ctx, cfg, logger)
		return err
	})
	if err != nil {
		logger.Error("postgres connect", "err", err)
		log.Fatal(err)
	}
	defer pg.Close()
	if err := store.RunMigrations(ctx, pg, logger); err != nil {
		logger.Error("migrations", "err", err)
		log.Fatal(err)
	}

	// Redis history cache
	var cache *store.MessageCache
	err = dialWithRetry(ctx, func() error {
		var err error
		cache, err = store.NewMessageCache(ctx, cfg, logger)
		return err
	})
	if err != nil {
		logger.Error("redis connect", "err", err)
		log.Fatal(err)
	}
	defer cache.Close()

	// WebSocket hub
	hub := ws.NewHub(logger, pg, cache, auth.New(cfg.JWTSecret), cfg)

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, hub, pg, cache)
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

	// shutdown: stop accepting, then tell live chat sessions to go away
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	hub.CloseAll("server shutting down")

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}

// dialWithRetry runs op with exponential backoff, capped at 5 attempts.
// Startup-only; nothing in the message path retries.
func dialWithRetry(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(op, bo)
}
