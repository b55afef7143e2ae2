package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/app"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/config"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/logging"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/metrics"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger := logging.New(cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open graph store", "backend", cfg.Graph.Backend, "error", err)
		return 1
	}
	defer func() {
		if err := backend.Close(context.Background()); err != nil {
			logger.Warn("closing graph client failed", "error", err)
		}
	}()

	var m *metrics.Collector
	if cfg.HTTP.MetricsEnabled {
		m = metrics.New(metrics.DefaultNamespace)
	}
	comps := app.NewComponents(backend.Store, cfg, logger, m)

	if err := backend.WatchDataset(ctx, cfg.Graph.DatasetPath, comps.Catalog); err != nil {
		logger.Warn("dataset hot reload disabled", "error", err)
	}

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           server.StoreHealthService{Store: backend.Store},
		API:              server.NewAPIHandlers(logger, comps.Finder),
		Metrics:          m,
		AllowedOrigins:   app.ParseAllowedOrigins(cfg.HTTP.AllowedOriginsCSV),
		AllowCredentials: true,
	})

	srv := server.New(logger, cfg.HTTP, router)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped unexpectedly", "error", err)
		return 1
	}
	logger.Info("server stopped")
	return 0
}
