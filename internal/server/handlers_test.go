package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/metrics"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/service"
)

type stubFinder struct {
	answer    service.Answer
	err       error
	route     []domain.Coordinate
	lastLimit int
}

func (s *stubFinder) Nearest(ctx context.Context, user domain.UserLocation, limit int) (service.Answer, error) {
	s.lastLimit = limit
	if s.err != nil {
		return service.Answer{}, s.err
	}
	a := s.answer
	a.User = user
	return a, nil
}

func (s *stubFinder) Route(ctx context.Context, answer service.Answer, result domain.PathResult) ([]domain.Coordinate, error) {
	return s.route, nil
}

type stubHealth struct{ err error }

func (s stubHealth) Probe(context.Context) error { return s.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleAnswer() service.Answer {
	return service.Answer{
		SessionID:    "abc",
		Tier:         domain.TierWeighted,
		Resolved:     true,
		SourceVertex: 1,
		Generation:   3,
		Results: []domain.PathResult{
			{
				PointOfInterest: domain.PointOfInterest{Name: "Pharmacie Atlas", Latitude: 34.03, Longitude: -4.97},
				Tier:            domain.TierWeighted,
				PathCost:        420,
				Hops:            4,
				DistanceKm:      0.39,
				WalkingMinutes:  4,
				Address:         "Avenue Hassan II, Fes",
			},
		},
	}
}

func newTestRouter(finder Finder, health HealthService, m *metrics.Collector) http.Handler {
	return NewRouter(discardLogger(), RouterDependencies{
		Health:  health,
		API:     NewAPIHandlers(discardLogger(), finder),
		Metrics: m,
	})
}

func TestHandleNearest(t *testing.T) {
	finder := &stubFinder{answer: sampleAnswer()}
	router := newTestRouter(finder, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/pharmacies/nearest?lat=34.0349&lon=-4.9764&limit=3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var payload nearestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if finder.lastLimit != 3 {
		t.Fatalf("expected limit 3, got %d", finder.lastLimit)
	}
	if payload.Tier != "weighted" || len(payload.Results) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	got := payload.Results[0]
	if got.Rank != 1 || got.Name != "Pharmacie Atlas" || got.WalkingMinutes != 4 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestHandleNearestEmpty(t *testing.T) {
	finder := &stubFinder{answer: service.Answer{SessionID: "abc", Results: []domain.PathResult{}}}
	router := newTestRouter(finder, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/pharmacies/nearest?lat=0&lon=0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Fatalf("expected empty results array, got %s", rec.Body.String())
	}
}

func TestHandleNearestRejectsBadInput(t *testing.T) {
	router := newTestRouter(&stubFinder{}, nil, nil)

	for _, query := range []string{
		"lat=abc&lon=1",
		"lon=1",
		"lat=91&lon=0",
		"lat=0&lon=181",
		"lat=0&lon=0&limit=0",
		"lat=0&lon=0&limit=x",
	} {
		req := httptest.NewRequest(http.MethodGet, "/pharmacies/nearest?"+query, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", query, rec.Code)
		}
	}
}

func TestHandleNearestConnectionError(t *testing.T) {
	finder := &stubFinder{err: domain.NewError(domain.KindConnection, "weighted query", errors.New("connection refused"))}
	router := newTestRouter(finder, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/pharmacies/nearest?lat=0&lon=0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
}

func TestHandleRoute(t *testing.T) {
	finder := &stubFinder{
		answer: sampleAnswer(),
		route: []domain.Coordinate{
			{Latitude: 34.0349, Longitude: -4.9764},
			{Latitude: 34.031, Longitude: -4.972},
			{Latitude: 34.03, Longitude: -4.97},
		},
	}
	router := newTestRouter(finder, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/pharmacies/route?lat=34.0349&lon=-4.9764", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var payload routeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(payload.Points))
	}
	if payload.Points[1] != [2]float64{34.031, -4.972} {
		t.Fatalf("unexpected point order: %v", payload.Points)
	}
	if payload.Pharmacy.Name != "Pharmacie Atlas" {
		t.Fatalf("unexpected pharmacy %q", payload.Pharmacy.Name)
	}
}

func TestHandleRouteUnknownRank(t *testing.T) {
	router := newTestRouter(&stubFinder{answer: sampleAnswer()}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/pharmacies/route?lat=0&lon=0&target=2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	cases := []struct {
		name   string
		health HealthService
		status int
	}{
		{name: "ok", health: stubHealth{}, status: http.StatusOK},
		{name: "degraded", health: stubHealth{err: errors.New("bolt: connection refused")}, status: http.StatusServiceUnavailable},
		{name: "no probe", health: nil, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubFinder{}, tc.health, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	m := metrics.New("")
	router := newTestRouter(&stubFinder{answer: sampleAnswer()}, nil, m)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pharmacies/nearest?lat=0&lon=0", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `route="/pharmacies/nearest"`) {
		t.Fatalf("expected request counter for nearest route, got:\n%s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := NewRouter(discardLogger(), RouterDependencies{
		API:            NewAPIHandlers(discardLogger(), &stubFinder{}),
		AllowedOrigins: []string{"http://localhost:3000"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/pharmacies/nearest", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
}

func TestStoreHealthService(t *testing.T) {
	if err := (StoreHealthService{}).Probe(context.Background()); err != nil {
		t.Fatalf("expected nil store to be healthy, got %v", err)
	}
}
