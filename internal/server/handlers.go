package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/geo"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/service"
)

// Finder is the search surface the API exposes.
type Finder interface {
	Nearest(ctx context.Context, user domain.UserLocation, limit int) (service.Answer, error)
	Route(ctx context.Context, answer service.Answer, result domain.PathResult) ([]domain.Coordinate, error)
}

// maxLimit caps the limit query parameter.
const maxLimit = 50

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger *slog.Logger
	finder Finder
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, finder Finder) *APIHandlers {
	return &APIHandlers{
		logger: logger,
		finder: finder,
	}
}

type pharmacyResult struct {
	Rank           int     `json:"rank"`
	Name           string  `json:"name"`
	Latitude       float64 `json:"lat"`
	Longitude      float64 `json:"lon"`
	Tier           string  `json:"tier"`
	PathCost       float64 `json:"pathCost"`
	Hops           int     `json:"hops,omitempty"`
	DistanceKm     float64 `json:"distanceKm"`
	WalkingMinutes int     `json:"walkingMinutes"`
	Address        string  `json:"address"`
}

type nearestResponse struct {
	SessionID  string           `json:"sessionId"`
	Latitude   float64          `json:"lat"`
	Longitude  float64          `json:"lon"`
	Tier       string           `json:"tier,omitempty"`
	Resolved   bool             `json:"resolved"`
	Generation int64            `json:"generation"`
	Results    []pharmacyResult `json:"results"`
}

type routeResponse struct {
	SessionID string            `json:"sessionId"`
	Pharmacy  pharmacyResult    `json:"pharmacy"`
	Points    [][2]float64      `json:"points"`
	Start     domain.Coordinate `json:"start"`
}

func (h *APIHandlers) handleNearest(w http.ResponseWriter, r *http.Request) {
	user, ok := parseUser(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	answer, err := h.finder.Nearest(r.Context(), user, limit)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}

	response := nearestResponse{
		SessionID:  answer.SessionID,
		Latitude:   user.Latitude,
		Longitude:  user.Longitude,
		Tier:       string(answer.Tier),
		Resolved:   answer.Resolved,
		Generation: answer.Generation,
		Results:    make([]pharmacyResult, 0, len(answer.Results)),
	}
	for i, res := range answer.Results {
		response.Results = append(response.Results, toPharmacyResult(i+1, res))
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *APIHandlers) handleRoute(w http.ResponseWriter, r *http.Request) {
	user, ok := parseUser(w, r)
	if !ok {
		return
	}
	target := 1
	if raw := r.URL.Query().Get("target"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxLimit {
			writeError(w, http.StatusBadRequest, "target must be a rank between 1 and 50")
			return
		}
		target = v
	}

	answer, err := h.finder.Nearest(r.Context(), user, target)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}
	if target > len(answer.Results) {
		writeError(w, http.StatusNotFound, "no pharmacy at the requested rank")
		return
	}
	result := answer.Results[target-1]

	points, err := h.finder.Route(r.Context(), answer, result)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}
	response := routeResponse{
		SessionID: answer.SessionID,
		Pharmacy:  toPharmacyResult(target, result),
		Points:    make([][2]float64, 0, len(points)),
		Start:     user.Coordinate,
	}
	for _, p := range points {
		response.Points = append(response.Points, [2]float64{p.Latitude, p.Longitude})
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *APIHandlers) writeSearchError(w http.ResponseWriter, err error) {
	switch domain.KindOf(err) {
	case domain.KindConnection:
		h.logger.Error("graph store unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "graph store unavailable")
	case domain.KindResolution:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
	}
}

func parseUser(w http.ResponseWriter, r *http.Request) (domain.UserLocation, bool) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required numbers")
		return domain.UserLocation{}, false
	}
	if err := geo.ValidCoordinate(lat, lon); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.UserLocation{}, false
	}
	return domain.UserLocation{
		Coordinate: domain.Coordinate{Latitude: lat, Longitude: lon},
		Method:     domain.MethodManual,
	}, true
}

func parseLimit(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil || v < 1 || v > maxLimit {
		return 0, errors.New("limit must be between 1 and 50")
	}
	return v, nil
}

func toPharmacyResult(rank int, res domain.PathResult) pharmacyResult {
	return pharmacyResult{
		Rank:           rank,
		Name:           res.PointOfInterest.Name,
		Latitude:       res.PointOfInterest.Latitude,
		Longitude:      res.PointOfInterest.Longitude,
		Tier:           string(res.Tier),
		PathCost:       res.PathCost,
		Hops:           res.Hops,
		DistanceKm:     res.DistanceKm,
		WalkingMinutes: res.WalkingMinutes,
		Address:        res.Address,
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}
