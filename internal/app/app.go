// Package app wires configuration into the graph store, search engine and
// finder shared by the commands.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/config"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/geocode"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/graph"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/memstore"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/metrics"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/repository"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/roadnet"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/search"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/service"
)

// Store is a graph store usable for both searching and importing.
type Store interface {
	service.GraphStore
	service.ImportStore
}

// Backend owns the graph store for the lifetime of a process.
type Backend struct {
	Store Store
	// Memory is set when the in-process store backs the application.
	Memory *memstore.Store
	client graph.Client
	logger *slog.Logger
}

// OpenBackend connects to the configured graph store. For the memory backend
// the configured dataset, if any, is loaded before returning.
func OpenBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Graph.Backend {
	case "memory":
		store := memstore.New(logger)
		b := &Backend{Store: store, Memory: store, logger: logger}
		if cfg.Graph.DatasetPath != "" {
			if _, err := store.LoadFile(ctx, cfg.Graph.DatasetPath); err != nil {
				return nil, err
			}
		}
		return b, nil
	case "neo4j":
		client, err := buildGraphClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to graph", "uri", cfg.Graph.URI, "database", cfg.Graph.Database)
		repo := repository.New(client, repository.Options{BatchSize: cfg.Graph.BatchSize, Logger: logger})
		return &Backend{Store: repo, client: client, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown graph backend %q", cfg.Graph.Backend)
	}
}

func buildGraphClient(ctx context.Context, cfg config.Config) (graph.Client, error) {
	if cfg.Graph.URI == "" {
		return nil, graph.ErrMissingURI
	}

	opts := graph.Options{
		URI:            cfg.Graph.URI,
		Database:       cfg.Graph.Database,
		Username:       cfg.Graph.Username,
		Password:       cfg.Graph.Password,
		MaxConnections: cfg.Graph.MaxConnections,
	}
	return graph.NewNeo4jClient(ctx, opts)
}

// Close releases the graph client. It is safe on a nil Backend.
func (b *Backend) Close(ctx context.Context) error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close(ctx)
}

// WatchDataset reloads the memory store when path changes. It is a no-op for
// other backends or an empty path.
func (b *Backend) WatchDataset(ctx context.Context, path string, catalog *roadnet.Catalog) error {
	if b.Memory == nil || path == "" {
		return nil
	}
	return b.Memory.Watch(ctx, path, func(gen int64) {
		if catalog != nil {
			catalog.Advance(gen)
		}
		b.logger.Info("dataset reloaded", "path", path, "generation", gen)
	})
}

// Components are the search collaborators built from configuration.
type Components struct {
	Catalog  *roadnet.Catalog
	Engine   *search.Engine
	Geocoder *geocode.Client
	Finder   *service.Finder
}

// NewComponents builds the search stack over store.
func NewComponents(store Store, cfg config.Config, logger *slog.Logger, m *metrics.Collector) Components {
	catalog := roadnet.NewCatalog(store, logger)
	engine := search.New(store, search.Options{
		MaxHops: cfg.Search.MaxHops,
		Logger:  logger,
		Metrics: m,
	})
	geocoder := geocode.New(geocode.Options{
		URL:          cfg.Geocoder.URL,
		UserAgent:    cfg.Geocoder.UserAgent,
		Timeout:      cfg.Geocoder.Timeout,
		CacheEnabled: cfg.Geocoder.CacheEnabled,
		CacheTTL:     cfg.Geocoder.CacheTTL,
		Logger:       logger,
		Metrics:      m,
	})
	finder := service.NewFinder(store, catalog, engine, geocoder, service.FinderOptions{
		Limit:         cfg.Search.MaxResults,
		LookupTimeout: cfg.Geocoder.Timeout,
		Logger:        logger,
	})
	return Components{Catalog: catalog, Engine: engine, Geocoder: geocoder, Finder: finder}
}

// ParseAllowedOrigins splits a comma separated origin list.
func ParseAllowedOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	var origins []string
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}
