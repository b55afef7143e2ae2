package roadnet

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
)

// VertexSource is the part of a graph store a Catalog reads from.
type VertexSource interface {
	LoadVertices(ctx context.Context) ([]domain.Vertex, error)
	DatasetGeneration(ctx context.Context) (int64, error)
}

// Snapshot is an immutable road network taken at one dataset generation.
type Snapshot struct {
	generation int64
	resolver   *Resolver
	catalog    *Catalog
}

// NewSnapshot builds a detached snapshot. It never goes stale.
func NewSnapshot(generation int64, vertices []domain.Vertex) *Snapshot {
	return &Snapshot{generation: generation, resolver: NewResolver(vertices)}
}

// Generation returns the dataset generation the snapshot was built from.
func (s *Snapshot) Generation() int64 { return s.generation }

// Len returns the number of vertices in the snapshot.
func (s *Snapshot) Len() int { return s.resolver.Len() }

// HasGraph reports whether the snapshot holds a usable road network.
func (s *Snapshot) HasGraph() bool { return s != nil && s.resolver.Len() > 0 }

// Stale reports whether the owning catalog has moved past this generation.
func (s *Snapshot) Stale() bool {
	return s.catalog != nil && s.catalog.current.Load() > s.generation
}

// Nearest resolves (lat, lon) to a vertex id of this snapshot.
func (s *Snapshot) Nearest(lat, lon float64) (int64, error) {
	if s.Stale() {
		return 0, domain.NewError(domain.KindResolution, "resolve nearest vertex",
			fmt.Errorf("%w: generation %d, current %d", domain.ErrStaleSnapshot, s.generation, s.catalog.current.Load()))
	}
	return s.resolver.Nearest(lat, lon)
}

// Catalog hands out snapshots of the store's road network and rebuilds them
// when the dataset generation changes.
type Catalog struct {
	source  VertexSource
	logger  *slog.Logger
	current atomic.Int64

	mu     sync.Mutex
	latest *Snapshot
}

// NewCatalog returns a catalog reading from source.
func NewCatalog(source VertexSource, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Catalog{source: source, logger: logger.With("component", "roadnet")}
}

// maxLoadAttempts bounds retries when the dataset changes mid-load.
const maxLoadAttempts = 3

// Snapshot returns the snapshot for the store's current generation,
// building it on first use.
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen, err := c.source.DatasetGeneration(ctx)
	if err != nil {
		return nil, fmt.Errorf("read dataset generation: %w", err)
	}
	if c.latest != nil && c.latest.generation == gen {
		return c.latest, nil
	}

	for attempt := 1; ; attempt++ {
		vertices, err := c.source.LoadVertices(ctx)
		if err != nil {
			return nil, fmt.Errorf("load road network: %w", err)
		}
		after, err := c.source.DatasetGeneration(ctx)
		if err != nil {
			return nil, fmt.Errorf("read dataset generation: %w", err)
		}
		if after != gen && attempt < maxLoadAttempts {
			c.logger.Debug("dataset changed during load, retrying", "from", gen, "to", after)
			gen = after
			continue
		}
		gen = after
		snap := &Snapshot{generation: gen, resolver: NewResolver(vertices), catalog: c}
		c.latest = snap
		c.advance(gen)
		c.logger.Info("road network snapshot built", "generation", gen, "vertices", snap.Len())
		return snap, nil
	}
}

// Advance records that the store moved to generation. Snapshots of older
// generations report ErrStaleSnapshot from then on.
func (c *Catalog) Advance(generation int64) {
	c.advance(generation)
}

func (c *Catalog) advance(generation int64) {
	for {
		cur := c.current.Load()
		if generation <= cur || c.current.CompareAndSwap(cur, generation) {
			return
		}
	}
}

// Generation returns the newest generation the catalog has seen.
func (c *Catalog) Generation() int64 { return c.current.Load() }
