package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/metrics"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/repository"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/roadnet"
)

// ImporterOptions configures an Importer.
type ImporterOptions struct {
	BatchSize int
	Workers   int
	Logger    *slog.Logger
	Metrics   *metrics.Collector
	// Catalog, when set, is advanced to the imported generation.
	Catalog *roadnet.Catalog
}

// Importer writes a dataset into a graph store: vertices first, then the
// segments between them, then the pharmacies linked to them.
type Importer struct {
	store     ImportStore
	ingestor  *BulkIngestor
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Collector
	catalog   *roadnet.Catalog
	nowFn     func() time.Time
}

// NewImporter returns an importer over store.
func NewImporter(store ImportStore, opts ImporterOptions) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = repository.DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Importer{
		store:     store,
		ingestor:  NewBulkIngestor(opts.Workers),
		batchSize: opts.BatchSize,
		logger:    opts.Logger.With("component", "importer"),
		metrics:   opts.Metrics,
		catalog:   opts.Catalog,
		nowFn:     time.Now,
	}
}

// Import writes ds. Re-importing the same dataset leaves the store unchanged.
func (im *Importer) Import(ctx context.Context, ds domain.Dataset, opts ImportOptions) (ImportReport, error) {
	started := im.nowFn()
	pois, duplicates := normalizePointsOfInterest(ds.PointsOfInterest, im.logger)
	report := ImportReport{
		Area:             ds.Area,
		Vertices:         len(ds.Vertices),
		Edges:            len(ds.Edges),
		PointsOfInterest: len(pois),
		Duplicates:       duplicates,
	}

	if opts.Clear {
		if err := im.store.ClearAll(ctx); err != nil {
			return report, fmt.Errorf("clear store: %w", err)
		}
		im.logger.Info("store cleared")
	}
	if err := im.store.EnsureIndexes(ctx); err != nil {
		return report, err
	}

	if err := ingestBatches(ctx, im, "vertices", ds.Vertices, im.store.UpsertVertices); err != nil {
		return report, err
	}
	if err := ingestBatches(ctx, im, "edges", ds.Edges, im.store.UpsertEdges); err != nil {
		return report, err
	}
	if err := ingestBatches(ctx, im, "points of interest", pois, im.store.UpsertPointsOfInterest); err != nil {
		return report, err
	}

	gen, err := im.store.MarkDataset(ctx, ds.Area)
	if err != nil {
		return report, err
	}
	report.Generation = gen
	if im.catalog != nil {
		im.catalog.Advance(gen)
	}

	counts, err := im.store.Counts(ctx)
	if err != nil {
		return report, err
	}
	report.Counts = counts
	report.Duration = im.nowFn().Sub(started)

	im.logger.Info("dataset imported",
		"area", ds.Area,
		"generation", gen,
		"vertices", counts.Vertices,
		"edges", counts.Edges,
		"pharmacies", counts.PointsOfInterest,
		"duplicates", duplicates,
		"duration", report.Duration,
	)
	return report, nil
}

// ingestBatches splits items into batches and writes them concurrently.
// Failed batches are reported as *repository.BatchError values collected in
// a TaskError.
func ingestBatches[T any](ctx context.Context, im *Importer, entity string, items []T, write func(context.Context, []T) error) error {
	total := (len(items) + im.batchSize - 1) / im.batchSize
	committed := make([]bool, total)

	err := im.ingestor.Run(ctx, total, func(idx int) error {
		start := idx * im.batchSize
		end := min(start+im.batchSize, len(items))
		batch := items[start:end]
		if err := write(ctx, batch); err != nil {
			return &repository.BatchError{Entity: entity, Batch: idx, Err: err}
		}
		committed[idx] = true
		im.metrics.AddImported(entity, len(batch))
		return nil
	})
	if err == nil {
		im.logger.Debug("batches written", "entity", entity, "batches", total, "records", len(items))
		return nil
	}

	var done []int
	for idx, ok := range committed {
		if ok {
			done = append(done, idx)
		}
	}
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		for _, e := range taskErr.Errors {
			if be, ok := repository.IsBatchError(e); ok {
				be.CommittedBatches = done
				be.Committed = committedBefore(done, be.Batch)
			}
		}
	}
	im.logger.Error("batch import failed", "entity", entity, "committed", len(done), "batches", total, "error", err)
	return fmt.Errorf("import %s: %w", entity, err)
}

// committedBefore counts the committed batch indexes below batch.
func committedBefore(done []int, batch int) int {
	n, _ := slices.BinarySearch(done, batch)
	return n
}
