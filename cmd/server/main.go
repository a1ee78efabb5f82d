package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sigrelay/sigrelay/internal/adapters/gateway"
	router "github.com/sigrelay/sigrelay/internal/adapters/http"
	wsignal "github.com/sigrelay/sigrelay/internal/adapters/signal"
	"github.com/sigrelay/sigrelay/internal/app"
	"github.com/sigrelay/sigrelay/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	reg := app.NewRegistry(app.PresencePolicy(cfg.Presence))
	sessions := app.NewSessions(reg)
	relay := app.NewRouter(reg, sessions)
	ctl := wsignal.NewController(cfg, relay)

	var validator *gateway.Validator
	if cfg.Auth.Endpoint != "" {
		validator = gateway.NewValidator(cfg.Auth.Endpoint, cfg.Auth.Timeout, cfg.Auth.Attempts, cfg.Auth.Backoff)
	}

	r := router.SetupRouter(ctx, cfg, ctl, validator)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("sigrelay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
