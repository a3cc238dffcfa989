package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/trivia/go/internal/config"
	"github.com/mcdev12/trivia/go/internal/gateway"
	"github.com/mcdev12/trivia/go/internal/room"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().
		Str("store", cfg.StoreBackend).
		Str("catalog", cfg.CatalogBackend).
		Str("nats_url", cfg.NatsURL).
		Str("port", cfg.Port).
		Int("max_rounds", cfg.Game.MaxRounds).
		Dur("turn_duration", cfg.Game.TurnDuration).
		Msg("starting trivia gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Error().Err(err).Msg("failed to release resource")
			}
		}
	}()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open room store")
	}
	closers = append(closers, closeStore)

	cat, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open question catalog")
	}
	closers = append(closers, closeCatalog)

	publisher, closePublisher, err := openPublisher(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect event publisher")
	}
	closers = append(closers, closePublisher)

	machine := room.NewMachine(store, cat,
		room.WithSettings(cfg.Game),
		room.WithPublisher(publisher),
	)
	service := gateway.NewService(gateway.DefaultConfig(), machine, store)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     service.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	service.Shutdown()
	cancel()

	log.Info().Msg("trivia gateway shutdown complete")
}

func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
