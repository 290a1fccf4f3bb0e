package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"loanscore/internal/api"
	"loanscore/internal/bootstrap"
	"loanscore/internal/cfg"
	"loanscore/internal/metrics"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := bootstrap.SetupLogging(c.LogLevel, c.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("logging setup failed")
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Load(ctx, c)
	if err != nil {
		log.Fatal().Err(err).Msg("startup load failed")
	}

	m := metrics.New()
	service := bootstrap.NewService(components, m)

	server := api.NewServer(service, metrics.NewWrapper(m), c, nil)
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("api server failed to start")
	}

	log.Info().
		Int("port", c.Port).
		Str("model", components.Model.Identity()).
		Str("threshold_policy", components.Thresholds.Policy()).
		Msg("loanscore ready")

	waitForShutdown(ctx, cancel, server)
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, server *api.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
	}
}
