package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"notevault/api/internal/app"
	"notevault/api/internal/cache"
	"notevault/api/internal/config"
	"notevault/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)

	// The service runs without Redis; only the public listing loses its
	// cache.
	var cacheClient *cache.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cacheClient, err = cache.New(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis connection failed, serving without cache")
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	var service *app.Service
	if cacheClient != nil {
		service = app.NewService(cfg, dataStore, cacheClient, logger)
	} else {
		service = app.NewService(cfg, dataStore, nil, logger)
	}

	// Daily history retention sweep, run once at startup and then on a
	// fixed ticker.
	go func() {
		if _, err := service.PruneHistory(ctx); err != nil {
			logger.Warn().Err(err).Msg("history prune failed")
		}
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := service.PruneHistory(ctx); err != nil {
				logger.Warn().Err(err).Msg("history prune failed")
			}
		}
	}()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("notevault api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
