package service

import (
	"context"
	"time"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/roadnet"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/search"
)

// GraphStore is the storage contract the finder needs.
type GraphStore interface {
	search.Store
	roadnet.VertexSource
	QueryRoute(ctx context.Context, sourceID, targetID int64) ([]domain.Coordinate, error)
	Ping(ctx context.Context) error
}

// ImportStore is the storage contract the importer needs.
type ImportStore interface {
	UpsertVertices(ctx context.Context, vertices []domain.Vertex) error
	UpsertEdges(ctx context.Context, edges []domain.Edge) error
	UpsertPointsOfInterest(ctx context.Context, pois []domain.PointOfInterest) error
	ClearAll(ctx context.Context) error
	EnsureIndexes(ctx context.Context) error
	Counts(ctx context.Context) (domain.Counts, error)
	MarkDataset(ctx context.Context, area string) (int64, error)
}

// AddressLookup resolves a coordinate to a display address.
type AddressLookup interface {
	Lookup(ctx context.Context, lat, lon float64) (string, error)
}

// Answer is the outcome of one nearest pharmacy search.
type Answer struct {
	SessionID string              `json:"sessionId"`
	User      domain.UserLocation `json:"user"`
	Tier      domain.Tier         `json:"tier,omitempty"`
	// SourceVertex is the intersection the user was mapped to; Resolved is
	// false when no road network could be used.
	SourceVertex int64               `json:"sourceVertex,omitempty"`
	Resolved     bool                `json:"resolved"`
	Generation   int64               `json:"generation"`
	Results      []domain.PathResult `json:"results"`
}

// Closest returns the best ranked result.
func (a Answer) Closest() (domain.PathResult, bool) {
	if len(a.Results) == 0 {
		return domain.PathResult{}, false
	}
	return a.Results[0], true
}

// ImportOptions controls a dataset import.
type ImportOptions struct {
	// Clear removes existing data before writing.
	Clear bool
}

// ImportReport summarises an import.
type ImportReport struct {
	Area             string        `json:"area"`
	Generation       int64         `json:"generation"`
	Vertices         int           `json:"vertices"`
	Edges            int           `json:"edges"`
	PointsOfInterest int           `json:"pointsOfInterest"`
	Duplicates       int           `json:"duplicates"`
	Counts           domain.Counts `json:"counts"`
	Duration         time.Duration `json:"duration"`
}
