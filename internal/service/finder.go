package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/geo"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/roadnet"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/search"
)

const defaultLookupTimeout = 5 * time.Second

// FinderOptions configures a Finder.
type FinderOptions struct {
	Limit         int
	LookupTimeout time.Duration
	Logger        *slog.Logger
}

// Finder answers nearest pharmacy queries: it maps the user onto the road
// network, runs the search engine and joins each path with its straight-line
// distance, walking time and address.
type Finder struct {
	store         GraphStore
	catalog       *roadnet.Catalog
	engine        *search.Engine
	addresses     AddressLookup
	limit         int
	lookupTimeout time.Duration
	logger        *slog.Logger
	newID         func() string
}

// NewFinder wires a finder. addresses may be nil, in which case every
// address is the formatted coordinate.
func NewFinder(store GraphStore, catalog *roadnet.Catalog, engine *search.Engine, addresses AddressLookup, opts FinderOptions) *Finder {
	if opts.Limit <= 0 {
		opts.Limit = search.DefaultLimit
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = defaultLookupTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Finder{
		store:         store,
		catalog:       catalog,
		engine:        engine,
		addresses:     addresses,
		limit:         opts.Limit,
		lookupTimeout: opts.LookupTimeout,
		logger:        opts.Logger.With("component", "finder"),
		newID:         uuid.NewString,
	}
}

// session is the state of one query: the user, the road network snapshot it
// is resolved against and the resulting source vertex.
type session struct {
	id        string
	user      domain.UserLocation
	snapshot  *roadnet.Snapshot
	source    int64
	sourceErr error
	logger    *slog.Logger
}

// Nearest ranks up to limit pharmacies for user. A zero limit selects the
// configured default. Only connection failures and invalid coordinates are
// returned as errors; "nothing found" is an Answer with no results.
func (f *Finder) Nearest(ctx context.Context, user domain.UserLocation, limit int) (Answer, error) {
	if err := geo.ValidCoordinate(user.Latitude, user.Longitude); err != nil {
		return Answer{}, domain.NewError(domain.KindResolution, "find nearest pharmacies", err)
	}
	if limit <= 0 {
		limit = f.limit
	}

	s, err := f.open(ctx, user)
	if err != nil {
		return Answer{}, err
	}

	out, err := f.engine.Run(ctx, search.Request{
		Source:    s.source,
		SourceErr: s.sourceErr,
		Latitude:  user.Latitude,
		Longitude: user.Longitude,
		HasGraph:  s.snapshot.HasGraph(),
		Limit:     limit,
	})
	if err != nil {
		return Answer{}, err
	}

	answer := Answer{
		SessionID:  s.id,
		User:       user,
		Tier:       out.Tier,
		Resolved:   s.sourceErr == nil,
		Generation: s.snapshot.Generation(),
		Results:    f.assemble(ctx, user, out),
	}
	if answer.Resolved {
		answer.SourceVertex = s.source
	}
	s.logger.Info("search finished", "tier", out.Tier, "results", len(answer.Results))
	return answer, nil
}

func (f *Finder) open(ctx context.Context, user domain.UserLocation) (*session, error) {
	id := f.newID()
	s := &session{id: id, user: user, logger: f.logger.With("session", id)}

	snap, err := f.catalog.Snapshot(ctx)
	if err != nil {
		if domain.IsConnection(err) {
			return nil, err
		}
		s.logger.Warn("road network unavailable", "error", err)
		snap = roadnet.NewSnapshot(0, nil)
	}

	source, err := snap.Nearest(user.Latitude, user.Longitude)
	if errors.Is(err, domain.ErrStaleSnapshot) {
		s.logger.Info("road network reloaded, refreshing snapshot")
		fresh, ferr := f.catalog.Snapshot(ctx)
		if ferr != nil {
			return nil, ferr
		}
		snap = fresh
		source, err = snap.Nearest(user.Latitude, user.Longitude)
	}
	s.snapshot = snap
	if err != nil {
		s.sourceErr = err
		s.logger.Warn("user position not mapped to road network", "kind", domain.KindOf(err), "error", err)
	} else {
		s.source = source
		s.logger.Debug("user mapped to intersection", "vertex", source, "generation", snap.Generation())
	}
	return s, nil
}

// assemble joins raw paths with distance, walking time and address,
// preserving the engine's order.
func (f *Finder) assemble(ctx context.Context, user domain.UserLocation, out search.Outcome) []domain.PathResult {
	results := make([]domain.PathResult, 0, len(out.Paths))
	for _, p := range out.Paths {
		poi := p.PointOfInterest
		km := geo.HaversineKm(user.Latitude, user.Longitude, poi.Latitude, poi.Longitude)
		results = append(results, domain.PathResult{
			PointOfInterest: poi,
			Tier:            out.Tier,
			PathCost:        p.Cost,
			Hops:            p.Hops,
			TargetVertexID:  p.TargetVertexID,
			DistanceKm:      km,
			WalkingMinutes:  geo.WalkingMinutes(km),
			Address:         f.Address(ctx, poi.Latitude, poi.Longitude),
		})
	}
	return results
}

// Address returns the display address of (lat, lon), or the formatted
// coordinate when the lookup fails or is not configured.
func (f *Finder) Address(ctx context.Context, lat, lon float64) string {
	if f.addresses == nil {
		return geo.FormatCoordinate(lat, lon)
	}
	lookupCtx, cancel := context.WithTimeout(ctx, f.lookupTimeout)
	defer cancel()
	addr, err := f.addresses.Lookup(lookupCtx, lat, lon)
	if err != nil || addr == "" {
		f.logger.Debug("address lookup degraded", "kind", domain.KindLookup, "latitude", lat, "longitude", lon, "error", err)
		return geo.FormatCoordinate(lat, lon)
	}
	return addr
}

// Route returns the walking route from the user to result. When the result
// is not linked to the road network or no path exists, the route is the
// straight segment between the two points.
func (f *Finder) Route(ctx context.Context, answer Answer, result domain.PathResult) ([]domain.Coordinate, error) {
	start := answer.User.Coordinate
	end := domain.Coordinate{Latitude: result.PointOfInterest.Latitude, Longitude: result.PointOfInterest.Longitude}
	straight := []domain.Coordinate{start, end}

	if !answer.Resolved || result.TargetVertexID < 0 {
		return straight, nil
	}
	path, err := f.store.QueryRoute(ctx, answer.SourceVertex, result.TargetVertexID)
	if err != nil {
		if domain.IsConnection(err) {
			return nil, fmt.Errorf("route to %s: %w", result.PointOfInterest.Name, err)
		}
		f.logger.Warn("route calculation failed", "session", answer.SessionID, "target", result.TargetVertexID, "error", err)
		return straight, nil
	}
	route := make([]domain.Coordinate, 0, len(path)+2)
	route = append(route, start)
	route = append(route, path...)
	route = append(route, end)
	return route, nil
}

// Ping checks the graph store.
func (f *Finder) Ping(ctx context.Context) error {
	return f.store.Ping(ctx)
}
