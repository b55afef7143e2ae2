package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/paulmach/orb"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/app"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/config"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/generator"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/logging"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/memstore"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/metrics"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/osmsource"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/repository"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/service"
)

var errMissingDataset = errors.New("dataset not found")

func main() {
	os.Exit(run())
}

func run() int {
	var (
		input      = flag.String("input", "", "dataset to load: a .json dataset, an .osm.pbf or an .osm extract")
		area       = flag.String("area", "", "area name recorded with the dataset (defaults to DEFAULT_PLACE)")
		bbox       = flag.String("bbox", "", "minLon,minLat,maxLon,maxLat filter for OSM extracts")
		clearFirst = flag.Bool("clear", false, "remove existing data before loading")
		workers    = flag.Int("workers", 4, "Number of concurrent workers for ingestion")
		dump       = flag.String("dump", "", "also write the extracted dataset as JSON to this path")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger := logging.New(cfg.Logging).With("component", "ingest")

	if *input == "" {
		logger.Error("dataset resolution failed", "error", fmt.Errorf("%w: -input is required", errMissingDataset))
		return 1
	}
	if _, err := os.Stat(*input); err != nil {
		logger.Error("dataset resolution failed", "error", fmt.Errorf("%w: %s", errMissingDataset, *input))
		return 1
	}
	bound, err := parseBound(*bbox)
	if err != nil {
		logger.Error("invalid bounding box", "error", err)
		return 1
	}
	if *area == "" {
		*area = cfg.Search.Place
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ds, err := readDataset(ctx, *input, osmsource.Options{Area: *area, Bound: bound, Logger: logger})
	if err != nil {
		logger.Error("failed to read dataset", "error", err, "path", *input)
		return 1
	}
	if ds.Area == "" {
		ds.Area = *area
	}
	if *dump != "" {
		if err := generator.WriteDataset(ds, *dump); err != nil {
			logger.Error("failed to write dataset dump", "error", err, "path", *dump)
			return 1
		}
	}

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create graph client", "error", err)
		return 1
	}
	defer func() {
		if err := backend.Close(context.Background()); err != nil {
			logger.Warn("closing graph client failed", "error", err)
		}
	}()

	importer := service.NewImporter(backend.Store, service.ImporterOptions{
		BatchSize: cfg.Graph.BatchSize,
		Workers:   *workers,
		Logger:    logger,
		Metrics:   metrics.New(metrics.DefaultNamespace),
	})

	logger.Info("ingesting dataset",
		"area", ds.Area,
		"vertices", len(ds.Vertices),
		"edges", len(ds.Edges),
		"pharmacies", len(ds.PointsOfInterest),
		"workers", *workers,
	)
	report, err := importer.Import(ctx, ds, service.ImportOptions{Clear: *clearFirst})
	if err != nil {
		if be, ok := repository.IsBatchError(err); ok {
			logger.Error("ingestion failed", "entity", be.Entity, "batch", be.Batch, "committed_batches", be.Committed, "error", err)
		} else {
			logger.Error("ingestion failed", "error", err)
		}
		return 1
	}

	logger.Info("ingestion complete",
		"duration", report.Duration.String(),
		"generation", report.Generation,
		"vertices", report.Counts.Vertices,
		"edges", report.Counts.Edges,
		"pharmacies", report.Counts.PointsOfInterest,
		"duplicates", report.Duplicates,
	)
	if backend.Memory != nil {
		logger.Warn("memory backend selected; the loaded data is discarded on exit, use -dump to keep it")
	}
	return 0
}

func readDataset(ctx context.Context, path string, opts osmsource.Options) (domain.Dataset, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".json"):
		return memstore.ReadDataset(path)
	case strings.HasSuffix(lower, ".pbf"):
		opts.Format = osmsource.FormatPBF
	case strings.HasSuffix(lower, ".osm"), strings.HasSuffix(lower, ".xml"):
		opts.Format = osmsource.FormatXML
	default:
		return domain.Dataset{}, fmt.Errorf("unsupported dataset type %q", filepath.Ext(path))
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return osmsource.Extract(ctx, file, opts)
}

func parseBound(value string) (orb.Bound, error) {
	if value == "" {
		return orb.Bound{}, nil
	}
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("expected 4 comma separated numbers, got %q", value)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox minimum exceeds maximum: %q", value)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
