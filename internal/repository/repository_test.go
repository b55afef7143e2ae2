package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/graph"
)

func TestRepository_UpsertVerticesBatches(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem, Options{BatchSize: 2})

	vertices := []domain.Vertex{
		{ID: 1, Latitude: 34.03, Longitude: -4.97},
		{ID: 2, Latitude: 34.04, Longitude: -4.98},
		{ID: 3, Latitude: 34.05, Longitude: -4.99},
		{ID: 4, Latitude: 34.06, Longitude: -5.00},
		{ID: 5, Latitude: 34.07, Longitude: -5.01},
	}
	if err := repo.UpsertVertices(context.Background(), vertices); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	calls := mem.WriteCalls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(calls))
	}
	wantSizes := []int{2, 2, 1}
	for i, call := range calls {
		if !strings.Contains(call.Query, "MERGE (n:Intersection {id: row.id})") {
			t.Fatalf("unexpected query: %s", call.Query)
		}
		rows, ok := call.Params["rows"].([]map[string]any)
		if !ok {
			t.Fatalf("expected rows param, got %T", call.Params["rows"])
		}
		if len(rows) != wantSizes[i] {
			t.Fatalf("batch %d: expected %d rows, got %d", i, wantSizes[i], len(rows))
		}
	}
	first := calls[0].Params["rows"].([]map[string]any)[0]
	if first["id"] != int64(1) || first["latitude"] != 34.03 {
		t.Fatalf("unexpected first row %+v", first)
	}
}

func TestRepository_UpsertVerticesRejectsInvalidCoordinates(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem, Options{})

	err := repo.UpsertVertices(context.Background(), []domain.Vertex{{ID: 1, Latitude: 91, Longitude: 0}})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if domain.KindOf(err) != domain.KindDataIntegrity {
		t.Fatalf("expected data integrity kind, got %s", domain.KindOf(err))
	}
	if len(mem.WriteCalls()) != 0 {
		t.Fatal("nothing should be written for invalid input")
	}
}

type failingWriteClient struct {
	*graph.MemoryClient
	mu     sync.Mutex
	writes int
	failAt int
	err    error
}

func (c *failingWriteClient) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (graph.Result, error) {
	c.mu.Lock()
	c.writes++
	n := c.writes
	c.mu.Unlock()
	if n == c.failAt {
		return graph.Result{}, c.err
	}
	return c.MemoryClient.ExecuteWrite(ctx, cypher, params)
}

func TestRepository_UpsertEdgesReportsFailingBatch(t *testing.T) {
	boom := errors.New("transaction rolled back")
	client := &failingWriteClient{MemoryClient: graph.NewMemoryClient(), failAt: 2, err: boom}
	repo := New(client, Options{BatchSize: 1})

	edges := []domain.Edge{{From: 1, To: 2, Distance: 10}, {From: 2, To: 3, Distance: 20}, {From: 3, To: 4, Distance: 30}}
	err := repo.UpsertEdges(context.Background(), edges)

	batchErr, ok := IsBatchError(err)
	if !ok {
		t.Fatalf("expected batch error, got %v", err)
	}
	if batchErr.Batch != 1 || batchErr.Committed != 1 {
		t.Fatalf("expected failure at batch 1 after 1 commit, got %+v", batchErr)
	}
	if len(batchErr.CommittedBatches) != 1 || batchErr.CommittedBatches[0] != 0 {
		t.Fatalf("expected batch 0 listed as committed, got %v", batchErr.CommittedBatches)
	}
	if !errors.Is(err, boom) {
		t.Fatal("batch error must wrap the cause")
	}
	if got := len(client.WriteCalls()); got != 1 {
		t.Fatalf("expected 1 committed write, got %d", got)
	}
}

func TestRepository_UpsertEdgesMergesOnDistance(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem, Options{})

	if err := repo.UpsertEdges(context.Background(), []domain.Edge{{From: 1, To: 2, Distance: 12.5}}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	calls := mem.WriteCalls()
	if len(calls) != 1 || !strings.Contains(calls[0].Query, "MERGE (a)-[:CONNECTED {distance: row.distance}]->(b)") {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestRepository_UpsertPointsOfInterestRepairsNames(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem, Options{})

	pois := []domain.PointOfInterest{
		{Name: "", Latitude: 34.03, Longitude: -4.97, NearVertexID: 7},
		{Name: "Pharmacie Atlas", Latitude: 34.04, Longitude: -4.98, NearVertexID: 8},
	}
	if err := repo.UpsertPointsOfInterest(context.Background(), pois); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if pois[0].Name != "" {
		t.Fatal("caller slice must not be modified")
	}

	rows := mem.WriteCalls()[0].Params["rows"].([]map[string]any)
	if rows[0]["name"] != domain.UnnamedPharmacy {
		t.Fatalf("expected repaired name, got %v", rows[0]["name"])
	}
	if rows[1]["nodeId"] != int64(8) {
		t.Fatalf("expected nodeId 8, got %v", rows[1]["nodeId"])
	}
}

func TestRepository_EnsureIndexesIsNotFatal(t *testing.T) {
	mem := graph.NewMemoryClient().WithQueryError("POINT INDEX", errors.New("unsupported index type"))
	repo := New(mem, Options{})

	if err := repo.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("index failures must not be fatal, got %v", err)
	}
	if got := len(mem.WriteCalls()); got != len(indexStatements) {
		t.Fatalf("expected every statement attempted, got %d", got)
	}
}

func TestRepository_EnsureIndexesReturnsConnectionError(t *testing.T) {
	connErr := domain.NewError(domain.KindConnection, "graph session", errors.New("connection refused"))
	repo := New(graph.NewMemoryClient().WithError(connErr), Options{})

	if err := repo.EnsureIndexes(context.Background()); !domain.IsConnection(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestRepository_QueryShortestWeightedPath(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"total": int64(1)}}})
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"found": int64(1)}}})
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"generation": int64(3)}}})
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"exists": false}}})
	mem.PushReadResult(graph.Result{Records: []graph.Record{
		{"name": "Pharmacie Centrale", "latitude": 34.031, "longitude": -4.975, "targetId": int64(12), "cost": 420.5, "hops": int64(6)},
		{"name": "Pharmacie du Nord", "latitude": 34.040, "longitude": -4.980, "targetId": int64(19), "cost": 910.0, "hops": int64(11)},
	}})
	repo := New(mem, Options{})

	paths, err := repo.QueryShortestWeightedPath(context.Background(), 5, 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0].PointOfInterest.Name != "Pharmacie Centrale" || paths[0].Cost != 420.5 || paths[0].Hops != 6 || paths[0].TargetVertexID != 12 {
		t.Fatalf("unexpected first path %+v", paths[0])
	}

	writes := mem.WriteCalls()
	if len(writes) != 1 || !strings.Contains(writes[0].Query, "gds.graph.project") {
		t.Fatalf("expected projection to be created, got %+v", writes)
	}
	if writes[0].Params["graphName"] != "roadnet_g3" {
		t.Fatalf("unexpected projection name %v", writes[0].Params["graphName"])
	}

	reads := mem.ReadCalls()
	last := reads[len(reads)-1]
	if !strings.Contains(last.Query, "gds.allShortestPaths.dijkstra.stream") {
		t.Fatalf("unexpected path query %s", last.Query)
	}
	if last.Params["sourceId"] != int64(5) || last.Params["limit"] != 5 {
		t.Fatalf("unexpected params %+v", last.Params)
	}
}

func TestRepository_QueryShortestWeightedPathUnknownSource(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"total": int64(0)}}})
	repo := New(mem, Options{})

	_, err := repo.QueryShortestWeightedPath(context.Background(), 99, 5)
	if !errors.Is(err, domain.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
	if domain.KindOf(err) != domain.KindResolution {
		t.Fatalf("expected resolution kind, got %s", domain.KindOf(err))
	}
}

func TestRepository_QueryShortestWeightedPathWithoutWeights(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"total": int64(1)}}})
	repo := New(mem, Options{})

	_, err := repo.QueryShortestWeightedPath(context.Background(), 5, 5)
	if !errors.Is(err, domain.ErrNoEdgeWeights) {
		t.Fatalf("expected ErrNoEdgeWeights, got %v", err)
	}
}

func TestRepository_QueryShortestWeightedPathProcedureUnavailable(t *testing.T) {
	missing := domain.NewError(domain.KindQuery, "graph query", domain.ErrProcedureUnavailable)
	mem := graph.NewMemoryClient().WithQueryError("gds.graph.exists", missing)
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"total": int64(1)}}})
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"found": int64(1)}}})
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"generation": int64(1)}}})
	repo := New(mem, Options{})

	_, err := repo.QueryShortestWeightedPath(context.Background(), 5, 5)
	if !errors.Is(err, domain.ErrProcedureUnavailable) {
		t.Fatalf("expected ErrProcedureUnavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrNoEdgeWeights) {
		t.Fatal("missing procedure must be distinct from missing weights")
	}
}

func TestRepository_QueryShortestHopPath(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"total": int64(1)}}})
	mem.PushReadResult(graph.Result{Records: []graph.Record{
		{"name": "Pharmacie Atlas", "latitude": 34.03, "longitude": -4.97, "targetId": int64(4), "hops": int64(3)},
	}})
	repo := New(mem, Options{})

	paths, err := repo.QueryShortestHopPath(context.Background(), 1, 7, 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(paths) != 1 || paths[0].Hops != 3 || paths[0].Cost != 3 {
		t.Fatalf("unexpected paths %+v", paths)
	}
	reads := mem.ReadCalls()
	if !strings.Contains(reads[1].Query, "[:CONNECTED*0..7]") {
		t.Fatalf("expected hop bound in query, got %s", reads[1].Query)
	}
}

func TestRepository_QueryShortestHopPathDefaultsMaxHops(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"total": int64(1)}}})
	repo := New(mem, Options{})

	if _, err := repo.QueryShortestHopPath(context.Background(), 1, 0, 5); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(mem.ReadCalls()[1].Query, "[:CONNECTED*0..100]") {
		t.Fatal("expected default hop bound of 100")
	}
}

func TestRepository_QueryFlatProximity(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{
		{"name": "Pharmacie Atlas", "latitude": 34.03, "longitude": -4.97, "targetId": int64(-1), "distanceKm": 0.42},
	}})
	repo := New(mem, Options{})

	paths, err := repo.QueryFlatProximity(context.Background(), 34.0349, -4.9764, 3)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(paths) != 1 || paths[0].Cost != 0.42 || paths[0].Hops != 0 {
		t.Fatalf("unexpected paths %+v", paths)
	}
	params := mem.ReadCalls()[0].Params
	if params["kmPerDeg"] != 111.32 || params["limit"] != 3 {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestRepository_QueryFlatProximityRejectsInvalidCoordinate(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem, Options{})

	if _, err := repo.QueryFlatProximity(context.Background(), 120, 0, 3); domain.KindOf(err) != domain.KindResolution {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if len(mem.ReadCalls()) != 0 {
		t.Fatal("invalid coordinates must not reach the store")
	}
}

func TestRepository_CountsAndGeneration(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"vertices": int64(10), "edges": int64(18), "pharmacies": int64(3)}}})
	mem.PushWriteResult(graph.Result{Records: []graph.Record{{"generation": int64(2)}}})
	repo := New(mem, Options{})

	counts, err := repo.Counts(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if counts != (domain.Counts{Vertices: 10, Edges: 18, PointsOfInterest: 3}) {
		t.Fatalf("unexpected counts %+v", counts)
	}

	gen, err := repo.MarkDataset(context.Background(), "Fes, Morocco")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gen != 2 {
		t.Fatalf("expected generation 2, got %d", gen)
	}
	if mem.WriteCalls()[0].Params["area"] != "Fes, Morocco" {
		t.Fatal("expected area param")
	}
}

func TestRepository_QueryRoute(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"points": []any{
		map[string]any{"latitude": 34.0, "longitude": -5.0},
		map[string]any{"latitude": 34.1, "longitude": -5.1},
	}}}})
	repo := New(mem, Options{})

	route, err := repo.QueryRoute(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(route) != 2 || route[1] != (domain.Coordinate{Latitude: 34.1, Longitude: -5.1}) {
		t.Fatalf("unexpected route %+v", route)
	}
}

func TestRepository_QueryRouteNoPath(t *testing.T) {
	repo := New(graph.NewMemoryClient(), Options{})

	if _, err := repo.QueryRoute(context.Background(), 1, 2); domain.KindOf(err) != domain.KindResolution {
		t.Fatalf("expected resolution error, got %v", err)
	}
}

func TestRepository_ClearAllBumpsGeneration(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"generation": int64(4)}}})
	repo := New(mem, Options{})

	if err := repo.ClearAll(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	writes := mem.WriteCalls()
	if len(writes) != 3 {
		t.Fatalf("expected delete, drop and bump, got %d writes", len(writes))
	}
	if !strings.Contains(writes[0].Query, "DETACH DELETE") {
		t.Fatalf("unexpected first write %s", writes[0].Query)
	}
	if writes[1].Params["graphName"] != "roadnet_g4" {
		t.Fatalf("expected projection of generation 4 dropped, got %v", writes[1].Params["graphName"])
	}
	if !strings.Contains(writes[2].Query, "coalesce(d.generation, 0) + 1") {
		t.Fatalf("unexpected bump query %s", writes[2].Query)
	}
}

func TestRepository_MarkDatasetDropsPreviousProjection(t *testing.T) {
	mem := graph.NewMemoryClient()
	searchAt := func(gen int64) {
		mem.PushReadResult(graph.Result{Records: []graph.Record{{"total": int64(1)}}})
		mem.PushReadResult(graph.Result{Records: []graph.Record{{"found": int64(1)}}})
		mem.PushReadResult(graph.Result{Records: []graph.Record{{"generation": gen}}})
		mem.PushReadResult(graph.Result{Records: []graph.Record{{"exists": false}}})
		mem.PushReadResult(graph.Result{})
	}
	repo := New(mem, Options{})
	ctx := context.Background()

	searchAt(1)
	if _, err := repo.QueryShortestWeightedPath(ctx, 5, 5); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	mem.PushWriteResult(graph.Result{Records: []graph.Record{{"generation": int64(2)}}})
	if _, err := repo.MarkDataset(ctx, "Fes, Morocco"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	searchAt(2)
	if _, err := repo.QueryShortestWeightedPath(ctx, 5, 5); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var created, dropped []any
	for _, call := range mem.WriteCalls() {
		switch {
		case strings.Contains(call.Query, "gds.graph.project"):
			created = append(created, call.Params["graphName"])
		case strings.Contains(call.Query, "gds.graph.drop"):
			dropped = append(dropped, call.Params["graphName"])
		}
	}
	if len(created) != 2 || created[0] != "roadnet_g1" || created[1] != "roadnet_g2" {
		t.Fatalf("unexpected projections %v", created)
	}
	if len(dropped) != 1 || dropped[0] != "roadnet_g1" {
		t.Fatalf("expected roadnet_g1 dropped once, got %v", dropped)
	}
}

func TestRepository_FirstMarkDatasetDropsNothing(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushWriteResult(graph.Result{Records: []graph.Record{{"generation": int64(1)}}})
	repo := New(mem, Options{})

	if _, err := repo.MarkDataset(context.Background(), "Fes, Morocco"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if writes := mem.WriteCalls(); len(writes) != 1 {
		t.Fatalf("expected only the mark write, got %d writes", len(writes))
	}
}

func TestRepository_UpsertsSendEntityRows(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem, Options{})
	ctx := context.Background()

	if err := repo.UpsertVertices(ctx, []domain.Vertex{{ID: 7, Latitude: 34.0, Longitude: -5.0}}); err != nil {
		t.Fatalf("upsert vertices: %v", err)
	}
	if err := repo.UpsertEdges(ctx, []domain.Edge{{From: 7, To: 8, Distance: 42.5}}); err != nil {
		t.Fatalf("upsert edges: %v", err)
	}
	if err := repo.UpsertPointsOfInterest(ctx, []domain.PointOfInterest{{Name: "Atlas", Latitude: 34.0, Longitude: -5.0, NearVertexID: 7}}); err != nil {
		t.Fatalf("upsert points of interest: %v", err)
	}

	calls := mem.WriteCalls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(calls))
	}
	want := []struct {
		query string
		key   string
		value any
	}{
		{query: upsertVerticesCypher, key: "id", value: int64(7)},
		{query: upsertEdgesCypher, key: "distance", value: 42.5},
		{query: upsertPointsOfInterestCypher, key: "nodeId", value: int64(7)},
	}
	for i, w := range want {
		if calls[i].Query != w.query {
			t.Fatalf("write %d: unexpected query %s", i, calls[i].Query)
		}
		rows, ok := calls[i].Params["rows"].([]map[string]any)
		if !ok || len(rows) != 1 || rows[0][w.key] != w.value {
			t.Fatalf("write %d: unexpected rows %+v", i, calls[i].Params["rows"])
		}
	}
}
