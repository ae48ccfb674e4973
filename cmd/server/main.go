package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"tilebound/server"
	"tilebound/server/internal/auth"
	"tilebound/server/internal/httpapi"
	"tilebound/server/internal/store"
	"tilebound/server/internal/ws"
)

func main() {
	_ = godotenv.Load()

	logger := newLogger()

	secret := os.Getenv("TILEBOUND_JWT_SECRET")
	if secret == "" {
		logger.Fatal().Msg("TILEBOUND_JWT_SECRET is required")
	}

	st, err := store.OpenSQLite(envString("TILEBOUND_DB", "data/tilebound.db"), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	cfg := server.Config{
		TickInterval:      envDuration("TILEBOUND_TICK_INTERVAL", 0),
		AutoSaveInterval:  envDuration("TILEBOUND_AUTOSAVE_INTERVAL", 0),
		IdleCheckInterval: envDuration("TILEBOUND_IDLE_CHECK_INTERVAL", 0),
		IdleWarnAfter:     envDuration("TILEBOUND_IDLE_WARN_AFTER", 0),
		IdleKickAfter:     envDuration("TILEBOUND_IDLE_KICK_AFTER", 0),
	}

	decoder := auth.NewHMACDecoder(secret)
	registry := server.NewRegistry(cfg, st, logger)
	gateway := ws.NewHandler(registry, decoder, logger)
	api := httpapi.New(registry, st, decoder, logger)

	router := chi.NewRouter()
	api.Routes(router)
	router.Get("/ws", gateway.Handle)

	addr := envString("TILEBOUND_ADDR", ":8080")
	srv := &http.Server{Addr: addr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(envString("TILEBOUND_LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if envString("TILEBOUND_ENV", "development") != "production" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
