package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/geo"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/graph"
)

// DefaultBatchSize is the number of records written per transaction.
const DefaultBatchSize = 1000

// DefaultMaxHops bounds the variable-length pattern of hop searches.
const DefaultMaxHops = 100

// projectionPrefix names the GDS in-memory projection; the dataset
// generation is appended so a reload never reuses a stale projection.
const projectionPrefix = "roadnet_g"

// Options configures a Repository.
type Options struct {
	BatchSize int
	Logger    *slog.Logger
}

// Repository is the Cypher graph store adapter. Intersections are stored as
// (:Intersection {id, latitude, longitude}), road segments as
// [:CONNECTED {distance}] and pharmacies as (:Pharmacy)-[:NEAR]->(:Intersection).
type Repository struct {
	client    graph.Client
	batchSize int
	logger    *slog.Logger
}

// New instantiates a Repository backed by the supplied graph client.
func New(client graph.Client, opts Options) *Repository {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Repository{
		client:    client,
		batchSize: opts.BatchSize,
		logger:    logger.With("component", "repository"),
	}
}

// BatchError reports the batch that failed during a bulk upsert. Committed
// counts the batches with a lower index than Batch that were written, and
// CommittedBatches lists every written batch index in ascending order.
// Batches are independent, so with concurrent writers later batches may be
// committed too. Resuming is up to the caller.
type BatchError struct {
	Entity           string
	Batch            int
	Committed        int
	CommittedBatches []int
	Err              error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upsert %s batch %d (%d committed): %v", e.Entity, e.Batch, e.Committed, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// UpsertVertices merges intersections by id, refreshing their coordinates.
func (r *Repository) UpsertVertices(ctx context.Context, vertices []domain.Vertex) error {
	if err := domain.ValidateVertices(vertices); err != nil {
		return domain.NewError(domain.KindDataIntegrity, "upsert vertices", err)
	}
	return writeBatches(ctx, r, "vertices", vertices, upsertVerticesCypher, func(v domain.Vertex) map[string]any {
		return map[string]any{"id": v.ID, "latitude": v.Latitude, "longitude": v.Longitude}
	})
}

// UpsertEdges merges road segments between existing intersections. Segments
// with identical endpoints and distance collapse into one; parallel segments
// of different lengths are kept.
func (r *Repository) UpsertEdges(ctx context.Context, edges []domain.Edge) error {
	if err := domain.ValidateEdges(edges); err != nil {
		return domain.NewError(domain.KindDataIntegrity, "upsert edges", err)
	}
	return writeBatches(ctx, r, "edges", edges, upsertEdgesCypher, func(e domain.Edge) map[string]any {
		return map[string]any{"from": e.From, "to": e.To, "distance": e.Distance}
	})
}

// UpsertPointsOfInterest merges pharmacies on (name, latitude, longitude) and
// links each one to exactly one intersection.
func (r *Repository) UpsertPointsOfInterest(ctx context.Context, pois []domain.PointOfInterest) error {
	repaired := RepairNames(pois, r.logger)
	if err := domain.ValidatePointsOfInterest(repaired); err != nil {
		return domain.NewError(domain.KindDataIntegrity, "upsert points of interest", err)
	}
	return writeBatches(ctx, r, "points of interest", repaired, upsertPointsOfInterestCypher, func(p domain.PointOfInterest) map[string]any {
		return map[string]any{
			"name":      p.Name,
			"latitude":  p.Latitude,
			"longitude": p.Longitude,
			"nodeId":    p.NearVertexID,
		}
	})
}

// RepairNames returns a copy of pois with empty names replaced by
// domain.UnnamedPharmacy. Each repair is logged as a data-integrity warning.
func RepairNames(pois []domain.PointOfInterest, logger *slog.Logger) []domain.PointOfInterest {
	out := make([]domain.PointOfInterest, len(pois))
	copy(out, pois)
	for i := range out {
		if out[i].Name != "" {
			continue
		}
		out[i].Name = domain.UnnamedPharmacy
		if logger != nil {
			logger.Warn("point of interest without name",
				"kind", domain.KindDataIntegrity,
				"latitude", out[i].Latitude,
				"longitude", out[i].Longitude,
			)
		}
	}
	return out
}

func writeBatches[T any](ctx context.Context, r *Repository, entity string, items []T, cypher string, toParam func(T) map[string]any) error {
	var done []int
	for batch, start := 0, 0; start < len(items); batch, start = batch+1, start+r.batchSize {
		end := min(start+r.batchSize, len(items))
		rows := make([]map[string]any, 0, end-start)
		for _, item := range items[start:end] {
			rows = append(rows, toParam(item))
		}
		if _, err := r.client.ExecuteWrite(ctx, cypher, map[string]any{"rows": rows}); err != nil {
			return &BatchError{Entity: entity, Batch: batch, Committed: len(done), CommittedBatches: done, Err: err}
		}
		done = append(done, batch)
	}
	return nil
}

// ClearAll removes every road-network and pharmacy node and bumps the dataset
// generation so open snapshots become stale.
func (r *Repository) ClearAll(ctx context.Context) error {
	gen, err := r.DatasetGeneration(ctx)
	if err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	if _, err := r.client.ExecuteWrite(ctx, clearAllCypher, nil); err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	r.dropProjection(ctx, gen)
	if _, err := r.client.ExecuteWrite(ctx, bumpGenerationCypher, nil); err != nil {
		return fmt.Errorf("bump dataset generation: %w", err)
	}
	return nil
}

func (r *Repository) dropProjection(ctx context.Context, generation int64) {
	name := projectionName(generation)
	if _, err := r.client.ExecuteWrite(ctx, dropProjectionCypher, map[string]any{"graphName": name}); err != nil {
		r.logger.Debug("drop projection skipped", "projection", name, "error", err)
	}
}

// EnsureIndexes creates the uniqueness constraints and point indexes. A
// failing statement is logged and skipped; only connection failures are
// returned.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	for _, stmt := range indexStatements {
		if _, err := r.client.ExecuteWrite(ctx, stmt, nil); err != nil {
			if domain.IsConnection(err) {
				return fmt.Errorf("ensure indexes: %w", err)
			}
			r.logger.Warn("index creation failed", "statement", stmt, "error", err)
		}
	}
	return nil
}

// Counts returns the number of stored intersections, road segments and pharmacies.
func (r *Repository) Counts(ctx context.Context) (domain.Counts, error) {
	res, err := r.client.ExecuteRead(ctx, countsCypher, nil)
	if err != nil {
		return domain.Counts{}, fmt.Errorf("count graph: %w", err)
	}
	if len(res.Records) == 0 {
		return domain.Counts{}, nil
	}
	rec := res.Records[0]
	return domain.Counts{
		Vertices:         toInt64(rec["vertices"]),
		Edges:            toInt64(rec["edges"]),
		PointsOfInterest: toInt64(rec["pharmacies"]),
	}, nil
}

// LoadVertices returns every intersection ordered by id.
func (r *Repository) LoadVertices(ctx context.Context) ([]domain.Vertex, error) {
	res, err := r.client.ExecuteRead(ctx, loadVerticesCypher, nil)
	if err != nil {
		return nil, fmt.Errorf("load vertices: %w", err)
	}
	vertices := make([]domain.Vertex, 0, len(res.Records))
	for _, rec := range res.Records {
		vertices = append(vertices, domain.Vertex{
			ID:        toInt64(rec["id"]),
			Latitude:  toFloat64(rec["latitude"]),
			Longitude: toFloat64(rec["longitude"]),
		})
	}
	return vertices, nil
}

// DatasetGeneration returns the current dataset generation, zero when no
// dataset has been marked yet.
func (r *Repository) DatasetGeneration(ctx context.Context) (int64, error) {
	res, err := r.client.ExecuteRead(ctx, datasetGenerationCypher, nil)
	if err != nil {
		return 0, fmt.Errorf("read dataset generation: %w", err)
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	return toInt64(res.Records[0]["generation"]), nil
}

// MarkDataset records a completed import for area and returns the new
// generation. The projection of the previous generation is dropped.
func (r *Repository) MarkDataset(ctx context.Context, area string) (int64, error) {
	res, err := r.client.ExecuteWrite(ctx, markDatasetCypher, map[string]any{"area": area})
	if err != nil {
		return 0, fmt.Errorf("mark dataset %s: %w", area, err)
	}
	if len(res.Records) == 0 {
		return 0, fmt.Errorf("mark dataset %s: no generation returned", area)
	}
	gen := toInt64(res.Records[0]["generation"])
	if gen > 1 {
		r.dropProjection(ctx, gen-1)
	}
	return gen, nil
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.VerifyConnectivity(ctx)
}

// QueryShortestWeightedPath runs single-source Dijkstra from sourceID over
// CONNECTED distances and returns the cheapest paths to pharmacy-linked
// intersections.
func (r *Repository) QueryShortestWeightedPath(ctx context.Context, sourceID int64, limit int) ([]domain.RawPath, error) {
	const op = "weighted path query"
	if err := r.checkSource(ctx, op, sourceID); err != nil {
		return nil, err
	}

	res, err := r.client.ExecuteRead(ctx, weightedEdgeProbeCypher, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(res.Records) == 0 {
		return nil, domain.NewError(domain.KindQuery, op, domain.ErrNoEdgeWeights)
	}

	name, err := r.ensureProjection(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err = r.client.ExecuteRead(ctx, weightedPathCypher, map[string]any{
		"graphName": name,
		"sourceId":  sourceID,
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	paths := make([]domain.RawPath, 0, len(res.Records))
	for _, rec := range res.Records {
		p := rawPath(rec)
		p.Cost = toFloat64(rec["cost"])
		p.Hops = int(toInt64(rec["hops"]))
		paths = append(paths, p)
	}
	return paths, nil
}

func (r *Repository) ensureProjection(ctx context.Context) (string, error) {
	gen, err := r.DatasetGeneration(ctx)
	if err != nil {
		return "", err
	}
	name := projectionName(gen)
	res, err := r.client.ExecuteRead(ctx, projectionExistsCypher, map[string]any{"graphName": name})
	if err != nil {
		return "", fmt.Errorf("check projection %s: %w", name, err)
	}
	if len(res.Records) > 0 && toBool(res.Records[0]["exists"]) {
		return name, nil
	}
	if _, err := r.client.ExecuteWrite(ctx, projectCypher, map[string]any{"graphName": name}); err != nil {
		return "", fmt.Errorf("project %s: %w", name, err)
	}
	r.logger.Info("road network projected", "projection", name)
	return name, nil
}

// QueryShortestHopPath ranks pharmacies by the number of road segments on
// the shortest unweighted path from sourceID, bounded by maxHops.
func (r *Repository) QueryShortestHopPath(ctx context.Context, sourceID int64, maxHops, limit int) ([]domain.RawPath, error) {
	const op = "hop path query"
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	if err := r.checkSource(ctx, op, sourceID); err != nil {
		return nil, err
	}
	res, err := r.client.ExecuteRead(ctx, fmt.Sprintf(hopPathCypherTemplate, maxHops), map[string]any{
		"sourceId": sourceID,
		"limit":    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	paths := make([]domain.RawPath, 0, len(res.Records))
	for _, rec := range res.Records {
		p := rawPath(rec)
		p.Hops = int(toInt64(rec["hops"]))
		p.Cost = float64(p.Hops)
		paths = append(paths, p)
	}
	return paths, nil
}

// QueryFlatProximity ranks pharmacies by planar degree distance scaled to
// kilometers. It needs no road network.
func (r *Repository) QueryFlatProximity(ctx context.Context, lat, lon float64, limit int) ([]domain.RawPath, error) {
	if err := geo.ValidCoordinate(lat, lon); err != nil {
		return nil, domain.NewError(domain.KindResolution, "flat proximity query", err)
	}
	res, err := r.client.ExecuteRead(ctx, flatProximityCypher, map[string]any{
		"latitude":  lat,
		"longitude": lon,
		"kmPerDeg":  geo.KmPerDegree,
		"limit":     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("flat proximity query: %w", err)
	}
	paths := make([]domain.RawPath, 0, len(res.Records))
	for _, rec := range res.Records {
		p := rawPath(rec)
		p.Cost = toFloat64(rec["distanceKm"])
		paths = append(paths, p)
	}
	return paths, nil
}

// QueryRoute returns the coordinates of the intersections on the shortest
// path between two intersections, source first.
func (r *Repository) QueryRoute(ctx context.Context, sourceID, targetID int64) ([]domain.Coordinate, error) {
	res, err := r.client.ExecuteRead(ctx, fmt.Sprintf(routeCypherTemplate, DefaultMaxHops), map[string]any{
		"sourceId": sourceID,
		"targetId": targetID,
	})
	if err != nil {
		return nil, fmt.Errorf("route %d->%d: %w", sourceID, targetID, err)
	}
	if len(res.Records) == 0 {
		return nil, domain.NewError(domain.KindResolution, "route query", fmt.Errorf("no path from %d to %d", sourceID, targetID))
	}
	points, _ := res.Records[0]["points"].([]any)
	route := make([]domain.Coordinate, 0, len(points))
	for _, raw := range points {
		pt, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		route = append(route, domain.Coordinate{
			Latitude:  toFloat64(pt["latitude"]),
			Longitude: toFloat64(pt["longitude"]),
		})
	}
	return route, nil
}

func (r *Repository) checkSource(ctx context.Context, op string, sourceID int64) error {
	res, err := r.client.ExecuteRead(ctx, sourceExistsCypher, map[string]any{"sourceId": sourceID})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(res.Records) == 0 || toInt64(res.Records[0]["total"]) == 0 {
		return domain.NewError(domain.KindResolution, op, fmt.Errorf("%w: %d", domain.ErrSourceNotFound, sourceID))
	}
	return nil
}

func projectionName(generation int64) string {
	return fmt.Sprintf("%s%d", projectionPrefix, generation)
}

func rawPath(rec graph.Record) domain.RawPath {
	return domain.RawPath{
		PointOfInterest: domain.PointOfInterest{
			Name:         toString(rec["name"]),
			Latitude:     toFloat64(rec["latitude"]),
			Longitude:    toFloat64(rec["longitude"]),
			NearVertexID: toInt64(rec["targetId"]),
		},
		TargetVertexID: toInt64(rec["targetId"]),
	}
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func toFloat64(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func toInt64(val any) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func toBool(val any) bool {
	b, _ := val.(bool)
	return b
}

// IsBatchError reports whether err carries a *BatchError and returns it.
func IsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

const upsertVerticesCypher = `
UNWIND $rows AS row
MERGE (n:Intersection {id: row.id})
SET n.latitude = row.latitude,
    n.longitude = row.longitude,
    n.location = point({latitude: row.latitude, longitude: row.longitude})
`

const upsertEdgesCypher = `
UNWIND $rows AS row
MATCH (a:Intersection {id: row.from})
MATCH (b:Intersection {id: row.to})
MERGE (a)-[:CONNECTED {distance: row.distance}]->(b)
`

const upsertPointsOfInterestCypher = `
UNWIND $rows AS row
MERGE (p:Pharmacy {name: row.name, latitude: row.latitude, longitude: row.longitude})
SET p.location = point({latitude: row.latitude, longitude: row.longitude})
WITH p, row
OPTIONAL MATCH (p)-[old:NEAR]->(prev:Intersection)
WHERE prev.id <> row.nodeId
DELETE old
WITH DISTINCT p, row
MATCH (n:Intersection {id: row.nodeId})
MERGE (p)-[:NEAR]->(n)
`

const clearAllCypher = `
MATCH (n)
WHERE n:Intersection OR n:Pharmacy
DETACH DELETE n
`

const bumpGenerationCypher = `
MERGE (d:Dataset {key: "current"})
SET d.generation = coalesce(d.generation, 0) + 1,
    d.area = null,
    d.updatedAt = datetime()
RETURN d.generation AS generation
`

const markDatasetCypher = `
MERGE (d:Dataset {key: "current"})
SET d.generation = coalesce(d.generation, 0) + 1,
    d.area = $area,
    d.updatedAt = datetime()
RETURN d.generation AS generation
`

const datasetGenerationCypher = `
MATCH (d:Dataset {key: "current"})
RETURN d.generation AS generation
`

var indexStatements = []string{
	`CREATE CONSTRAINT intersection_id IF NOT EXISTS FOR (n:Intersection) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT pharmacy_key IF NOT EXISTS FOR (p:Pharmacy) REQUIRE (p.name, p.latitude, p.longitude) IS UNIQUE`,
	`CREATE POINT INDEX intersection_location IF NOT EXISTS FOR (n:Intersection) ON (n.location)`,
	`CREATE POINT INDEX pharmacy_location IF NOT EXISTS FOR (p:Pharmacy) ON (p.location)`,
}

const countsCypher = `
CALL { MATCH (n:Intersection) RETURN count(n) AS vertices }
CALL { MATCH (:Intersection)-[r:CONNECTED]->(:Intersection) RETURN count(r) AS edges }
CALL { MATCH (p:Pharmacy) RETURN count(p) AS pharmacies }
RETURN vertices, edges, pharmacies
`

const loadVerticesCypher = `
MATCH (n:Intersection)
RETURN n.id AS id, n.latitude AS latitude, n.longitude AS longitude
ORDER BY id
`

const sourceExistsCypher = `
MATCH (n:Intersection {id: $sourceId})
RETURN count(n) AS total
`

const weightedEdgeProbeCypher = `
MATCH (:Intersection)-[r:CONNECTED]->(:Intersection)
WHERE r.distance IS NOT NULL
RETURN 1 AS found
LIMIT 1
`

const projectionExistsCypher = `
CALL gds.graph.exists($graphName) YIELD exists
RETURN exists
`

const projectCypher = `
CALL gds.graph.project(
  $graphName,
  'Intersection',
  {CONNECTED: {orientation: 'UNDIRECTED', properties: 'distance'}}
)
YIELD graphName
RETURN graphName
`

const dropProjectionCypher = `
CALL gds.graph.drop($graphName, false) YIELD graphName
RETURN graphName
`

const weightedPathCypher = `
MATCH (source:Intersection {id: $sourceId})
CALL gds.allShortestPaths.dijkstra.stream($graphName, {
  sourceNode: source,
  relationshipWeightProperty: 'distance'
})
YIELD targetNode, totalCost, nodeIds
WITH gds.util.asNode(targetNode) AS target, totalCost, size(nodeIds) - 1 AS hops
MATCH (p:Pharmacy)-[:NEAR]->(target)
RETURN p.name AS name,
       p.latitude AS latitude,
       p.longitude AS longitude,
       target.id AS targetId,
       totalCost AS cost,
       hops
ORDER BY cost ASC, name ASC
LIMIT $limit
`

// The upper bound of a variable-length pattern cannot be a parameter.
const hopPathCypherTemplate = `
MATCH (start:Intersection {id: $sourceId})
MATCH (p:Pharmacy)-[:NEAR]->(target:Intersection)
MATCH path = shortestPath((start)-[:CONNECTED*0..%d]-(target))
RETURN p.name AS name,
       p.latitude AS latitude,
       p.longitude AS longitude,
       target.id AS targetId,
       length(path) AS hops
ORDER BY hops ASC, name ASC
LIMIT $limit
`

const flatProximityCypher = `
MATCH (p:Pharmacy)
OPTIONAL MATCH (p)-[:NEAR]->(n:Intersection)
WITH p, n, sqrt((p.latitude - $latitude)^2 + (p.longitude - $longitude)^2) * $kmPerDeg AS distanceKm
RETURN p.name AS name,
       p.latitude AS latitude,
       p.longitude AS longitude,
       coalesce(n.id, -1) AS targetId,
       distanceKm
ORDER BY distanceKm ASC, name ASC
LIMIT $limit
`

const routeCypherTemplate = `
MATCH (source:Intersection {id: $sourceId}), (target:Intersection {id: $targetId})
MATCH path = shortestPath((source)-[:CONNECTED*0..%d]-(target))
RETURN [n IN nodes(path) | {latitude: n.latitude, longitude: n.longitude}] AS points
`
