// Package memstore is an in-process graph store. It keeps the road network
// as an adjacency multigraph and answers the same path queries as the Cypher
// repository, so the finder can run without a database.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/geo"
)

// DefaultMaxHops bounds hop searches when the caller passes zero.
const DefaultMaxHops = 100

type edgeKey struct {
	from, to int64
	distance float64
}

type arc struct {
	to       int64
	distance float64
}

// Store holds vertices, road segments and points of interest in memory.
// Road segments are traversed in both directions.
type Store struct {
	mu         sync.RWMutex
	vertices   map[int64]domain.Vertex
	edges      map[edgeKey]struct{}
	adjacency  map[int64][]arc
	pois       map[domain.POIKey]domain.PointOfInterest
	generation int64
	area       string
	logger     *slog.Logger
}

// New returns an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Store{logger: logger.With("component", "memstore")}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.setNetwork(newNetwork())
}

// network is one copy of the store contents. Its methods do no locking.
type network struct {
	vertices  map[int64]domain.Vertex
	edges     map[edgeKey]struct{}
	adjacency map[int64][]arc
	pois      map[domain.POIKey]domain.PointOfInterest
}

func newNetwork() network {
	return network{
		vertices:  make(map[int64]domain.Vertex),
		edges:     make(map[edgeKey]struct{}),
		adjacency: make(map[int64][]arc),
		pois:      make(map[domain.POIKey]domain.PointOfInterest),
	}
}

func (s *Store) current() network {
	return network{vertices: s.vertices, edges: s.edges, adjacency: s.adjacency, pois: s.pois}
}

func (s *Store) setNetwork(n network) {
	s.vertices = n.vertices
	s.edges = n.edges
	s.adjacency = n.adjacency
	s.pois = n.pois
}

func (n network) addVertices(vertices []domain.Vertex) {
	for _, v := range vertices {
		n.vertices[v.ID] = v
	}
}

// addEdges links known vertices and returns how many edges were skipped
// for an unknown endpoint.
func (n network) addEdges(edges []domain.Edge) int {
	skipped := 0
	for _, e := range edges {
		_, okFrom := n.vertices[e.From]
		_, okTo := n.vertices[e.To]
		if !okFrom || !okTo {
			skipped++
			continue
		}
		key := edgeKey{from: e.From, to: e.To, distance: e.Distance}
		if _, exists := n.edges[key]; exists {
			continue
		}
		n.edges[key] = struct{}{}
		n.adjacency[e.From] = append(n.adjacency[e.From], arc{to: e.To, distance: e.Distance})
		if e.From != e.To {
			n.adjacency[e.To] = append(n.adjacency[e.To], arc{to: e.From, distance: e.Distance})
		}
	}
	return skipped
}

func (n network) addPointsOfInterest(pois []domain.PointOfInterest) {
	for _, p := range pois {
		n.pois[p.Key()] = p
	}
}

// UpsertVertices inserts or refreshes vertices by id.
func (s *Store) UpsertVertices(ctx context.Context, vertices []domain.Vertex) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := domain.ValidateVertices(vertices); err != nil {
		return domain.NewError(domain.KindDataIntegrity, "upsert vertices", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current().addVertices(vertices)
	return nil
}

// UpsertEdges inserts road segments between known vertices. Identical
// segments collapse; segments with an unknown endpoint are skipped.
func (s *Store) UpsertEdges(ctx context.Context, edges []domain.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := domain.ValidateEdges(edges); err != nil {
		return domain.NewError(domain.KindDataIntegrity, "upsert edges", err)
	}
	s.mu.Lock()
	skipped := s.current().addEdges(edges)
	s.mu.Unlock()
	s.warnSkipped(skipped)
	return nil
}

func (s *Store) warnSkipped(skipped int) {
	if skipped > 0 {
		s.logger.Warn("edges with unknown endpoints skipped", "kind", domain.KindDataIntegrity, "count", skipped)
	}
}

// UpsertPointsOfInterest inserts or relinks points of interest by
// (name, latitude, longitude). Empty names are repaired.
func (s *Store) UpsertPointsOfInterest(ctx context.Context, pois []domain.PointOfInterest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	repaired, err := s.repairPointsOfInterest(pois)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current().addPointsOfInterest(repaired)
	return nil
}

func (s *Store) repairPointsOfInterest(pois []domain.PointOfInterest) ([]domain.PointOfInterest, error) {
	repaired := make([]domain.PointOfInterest, len(pois))
	copy(repaired, pois)
	for i := range repaired {
		if repaired[i].Name == "" {
			repaired[i].Name = domain.UnnamedPharmacy
			s.logger.Warn("point of interest without name",
				"kind", domain.KindDataIntegrity,
				"latitude", repaired[i].Latitude,
				"longitude", repaired[i].Longitude,
			)
		}
	}
	if err := domain.ValidatePointsOfInterest(repaired); err != nil {
		return nil, domain.NewError(domain.KindDataIntegrity, "upsert points of interest", err)
	}
	return repaired, nil
}

// ClearAll drops every entity and bumps the generation.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.generation++
	s.area = ""
	return nil
}

// EnsureIndexes is a no-op; maps are already keyed.
func (s *Store) EnsureIndexes(context.Context) error { return nil }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Counts reports the number of stored entities.
func (s *Store) Counts(context.Context) (domain.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Counts{
		Vertices:         int64(len(s.vertices)),
		Edges:            int64(len(s.edges)),
		PointsOfInterest: int64(len(s.pois)),
	}, nil
}

// LoadVertices returns all vertices ordered by id.
func (s *Store) LoadVertices(context.Context) ([]domain.Vertex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Vertex, 0, len(s.vertices))
	for _, v := range s.vertices {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b domain.Vertex) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// DatasetGeneration returns the current generation.
func (s *Store) DatasetGeneration(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation, nil
}

// MarkDataset records a completed import and returns the new generation.
func (s *Store) MarkDataset(_ context.Context, area string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.area = area
	return s.generation, nil
}

// Area returns the area of the last marked dataset.
func (s *Store) Area() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.area
}

// QueryShortestWeightedPath runs Dijkstra from sourceID over segment
// distances and ranks reachable points of interest by path meters.
func (s *Store) QueryShortestWeightedPath(ctx context.Context, sourceID int64, limit int) ([]domain.RawPath, error) {
	const op = "weighted path query"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.vertices[sourceID]; !ok {
		return nil, domain.NewError(domain.KindResolution, op, fmt.Errorf("%w: %d", domain.ErrSourceNotFound, sourceID))
	}
	if len(s.edges) == 0 {
		return nil, domain.NewError(domain.KindQuery, op, domain.ErrNoEdgeWeights)
	}
	tree := s.dijkstra(sourceID, -1)
	return s.rank(tree, limit, func(v int64) float64 { return tree.cost[v] }), nil
}

// QueryShortestHopPath ranks points of interest by the number of segments
// on the shortest unweighted path from sourceID, up to maxHops.
func (s *Store) QueryShortestHopPath(ctx context.Context, sourceID int64, maxHops, limit int) ([]domain.RawPath, error) {
	const op = "hop path query"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.vertices[sourceID]; !ok {
		return nil, domain.NewError(domain.KindResolution, op, fmt.Errorf("%w: %d", domain.ErrSourceNotFound, sourceID))
	}
	tree := s.bfs(sourceID, maxHops)
	return s.rank(tree, limit, func(v int64) float64 { return float64(tree.hops[v]) }), nil
}

// QueryFlatProximity ranks every point of interest by planar distance.
func (s *Store) QueryFlatProximity(ctx context.Context, lat, lon float64, limit int) ([]domain.RawPath, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := geo.ValidCoordinate(lat, lon); err != nil {
		return nil, domain.NewError(domain.KindResolution, "flat proximity query", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RawPath, 0, len(s.pois))
	for _, p := range s.pois {
		target := int64(-1)
		if _, ok := s.vertices[p.NearVertexID]; ok {
			target = p.NearVertexID
		}
		out = append(out, domain.RawPath{
			PointOfInterest: p,
			Cost:            geo.FlatDistanceKm(lat, lon, p.Latitude, p.Longitude),
			TargetVertexID:  target,
		})
	}
	return sortAndLimit(out, limit), nil
}

// QueryRoute returns the coordinates along the cheapest path from sourceID
// to targetID, source first.
func (s *Store) QueryRoute(ctx context.Context, sourceID, targetID int64) ([]domain.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, okSource := s.vertices[sourceID]
	_, okTarget := s.vertices[targetID]
	if !okSource || !okTarget {
		return nil, domain.NewError(domain.KindResolution, "route query", fmt.Errorf("%w: %d->%d", domain.ErrSourceNotFound, sourceID, targetID))
	}
	tree := s.dijkstra(sourceID, targetID)
	if _, ok := tree.cost[targetID]; !ok {
		return nil, domain.NewError(domain.KindResolution, "route query", fmt.Errorf("no path from %d to %d", sourceID, targetID))
	}
	var ids []int64
	for v := targetID; ; v = tree.prev[v] {
		ids = append(ids, v)
		if v == sourceID {
			break
		}
	}
	slices.Reverse(ids)
	route := make([]domain.Coordinate, 0, len(ids))
	for _, id := range ids {
		v := s.vertices[id]
		route = append(route, domain.Coordinate{Latitude: v.Latitude, Longitude: v.Longitude})
	}
	return route, nil
}

// rank joins reached vertices with the points of interest linked to them.
func (s *Store) rank(tree searchTree, limit int, cost func(int64) float64) []domain.RawPath {
	out := make([]domain.RawPath, 0)
	for _, p := range s.pois {
		if _, linked := s.vertices[p.NearVertexID]; !linked {
			continue
		}
		if _, reached := tree.hops[p.NearVertexID]; !reached {
			continue
		}
		out = append(out, domain.RawPath{
			PointOfInterest: p,
			Cost:            cost(p.NearVertexID),
			Hops:            tree.hops[p.NearVertexID],
			TargetVertexID:  p.NearVertexID,
		})
	}
	return sortAndLimit(out, limit)
}

func sortAndLimit(paths []domain.RawPath, limit int) []domain.RawPath {
	slices.SortStableFunc(paths, func(a, b domain.RawPath) int {
		if c := cmp.Compare(a.Cost, b.Cost); c != 0 {
			return c
		}
		if c := cmp.Compare(a.PointOfInterest.Name, b.PointOfInterest.Name); c != 0 {
			return c
		}
		if c := cmp.Compare(a.PointOfInterest.Latitude, b.PointOfInterest.Latitude); c != 0 {
			return c
		}
		return cmp.Compare(a.PointOfInterest.Longitude, b.PointOfInterest.Longitude)
	})
	if limit >= 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths
}
