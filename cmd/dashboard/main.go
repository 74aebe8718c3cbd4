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

	"github.com/rs/zerolog/log"

	server "hotelops/internal/adapters/http_server"
	"hotelops/internal/adapters/observability"
	"hotelops/internal/aggregate"
	"hotelops/internal/app"
	"hotelops/internal/domain"
	"hotelops/internal/shared"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("dashboard failed")
	}
}

func run() error {
	cfg, err := shared.Load()
	if err != nil {
		return err
	}

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	policy, ok := aggregate.ParseRevenuePolicy(cfg.RevenuePolicy)
	if !ok {
		return fmt.Errorf("unknown revenue policy %q (want all or realized)", cfg.RevenuePolicy)
	}

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := shared.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.StoreDriver == "memory" {
		seedInProcess(ctx, cfg, store)
	}

	sess := app.NewSession(app.SessionConfig{
		Store:            store,
		RevenuePolicy:    policy,
		UpcomingWindow:   cfg.UpcomingWindow,
		ReconcileTimeout: cfg.ReconcileTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		MutationRPS:      cfg.MutationRPS,
		OnError: func(err error) {
			log.Error().Err(err).Msg("live feed degraded; stats may be stale")
		},
	})
	startCtx, cancel := context.WithTimeout(ctx, cfg.StartTimeout)
	err = sess.Start(startCtx)
	cancel()
	if err != nil {
		return err
	}
	// stop feeds before the store is closed
	defer sess.Stop()

	srv := server.New(cfg.HTTPTimeout)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{S: sess})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("dashboard listening")
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// seedInProcess loads SEED_FILE into a fresh in-memory store, if present.
func seedInProcess(ctx context.Context, cfg shared.Config, store domain.DocumentStore) {
	if _, err := os.Stat(cfg.SeedFile); err != nil {
		return
	}
	fx, err := app.LoadFixture(cfg.SeedFile)
	if err != nil {
		log.Warn().Err(err).Msg("seed file ignored")
		return
	}
	if _, err := app.NewSeeder(store, cfg.SeedWorkers).Seed(ctx, fx); err != nil {
		log.Warn().Err(err).Msg("in-process seed interrupted")
	}
}
