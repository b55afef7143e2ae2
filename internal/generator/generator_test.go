package generator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/memstore"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Rows, cfg.Cols = 5, 4
	cfg.NumPharmacies = 6
	cfg.Seed = 7
	return cfg
}

func TestGenerateGrid(t *testing.T) {
	cfg := smallConfig()
	cfg.MissingStreetChance = 0
	cfg.MaxDetour = 1

	ds, err := New(cfg).Generate(context.Background())
	require.NoError(t, err)

	assert.Len(t, ds.Vertices, 20)
	// 5 rows of 3 horizontal segments plus 4 rows of 4 vertical ones.
	assert.Len(t, ds.Edges, 31)
	assert.Len(t, ds.PointsOfInterest, 6)
	for _, e := range ds.Edges {
		assert.InDelta(t, cfg.SpacingMeters, e.Distance, 1, "edge %d-%d", e.From, e.To)
	}
	require.NoError(t, domain.ValidateVertices(ds.Vertices))
	require.NoError(t, domain.ValidateEdges(ds.Edges))
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := New(smallConfig()).Generate(context.Background())
	require.NoError(t, err)
	b, err := New(smallConfig()).Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGeneratePharmaciesLinkToGrid(t *testing.T) {
	ds, err := New(smallConfig()).Generate(context.Background())
	require.NoError(t, err)

	ids := make(map[int64]struct{}, len(ds.Vertices))
	for _, v := range ds.Vertices {
		ids[v.ID] = struct{}{}
	}
	for _, p := range ds.PointsOfInterest {
		_, ok := ids[p.NearVertexID]
		assert.True(t, ok, "pharmacy %q links to unknown vertex %d", p.Name, p.NearVertexID)
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(smallConfig()).Generate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteDatasetRoundTripsThroughStore(t *testing.T) {
	ds, err := New(smallConfig()).Generate(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "dataset.json")
	require.NoError(t, WriteDataset(ds, path))

	store := memstore.New(nil)
	_, err = store.LoadFile(context.Background(), path)
	require.NoError(t, err)
	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(ds.Vertices)), counts.Vertices)
}
