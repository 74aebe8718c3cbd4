package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"hotelops/internal/adapters/observability"
	"hotelops/internal/app"
	"hotelops/internal/shared"
)

func main() {
	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	path := cfg.SeedFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	log.Info().
		Str("file", path).
		Str("store", cfg.StoreDriver).
		Int("workers", cfg.SeedWorkers).
		Msg("seed starting")

	if cfg.StoreDriver == "memory" {
		log.Fatal().Msg("seeding the memory store from a separate process has no effect")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fx, err := app.LoadFixture(path)
	if err != nil {
		log.Fatal().Err(err).Msg("load fixture failed")
	}

	store, closeStore, err := shared.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open store failed")
	}
	defer closeStore()

	rep, err := app.NewSeeder(store, cfg.SeedWorkers).Seed(ctx, fx)
	if err != nil {
		log.Error().Err(err).Msg("seed interrupted")
		return
	}
	if rep.Failed > 0 {
		log.Warn().Int("failed", rep.Failed).Msg("some fixtures were rejected")
	}
}
