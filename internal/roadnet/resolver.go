// Package roadnet holds the in-process view of the road network: a spatial
// index over intersections and the generation-stamped snapshots built from it.
package roadnet

import (
	"math"

	"github.com/tidwall/rtree"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
)

// Resolver maps coordinates to the closest intersection. It is immutable
// after construction and safe for concurrent use.
type Resolver struct {
	tree  rtree.RTreeG[int64]
	count int
}

// NewResolver indexes vertices. Duplicate ids keep the last position.
func NewResolver(vertices []domain.Vertex) *Resolver {
	r := &Resolver{}
	latest := make(map[int64]domain.Vertex, len(vertices))
	for _, v := range vertices {
		latest[v.ID] = v
	}
	for id, v := range latest {
		pt := [2]float64{v.Longitude, v.Latitude}
		r.tree.Insert(pt, pt, id)
	}
	r.count = len(latest)
	return r
}

// Len returns the number of indexed vertices.
func (r *Resolver) Len() int { return r.count }

// Nearest returns the id of the vertex closest to (lat, lon) under an
// equirectangular projection centred on the query latitude. Equidistant
// vertices resolve to the lowest id.
func (r *Resolver) Nearest(lat, lon float64) (int64, error) {
	if r.count == 0 {
		return 0, domain.NewError(domain.KindResolution, "resolve nearest vertex", domain.ErrNoVerticesAvailable)
	}

	metric := newMetric(lat, lon)
	best := int64(0)
	bestDist := math.Inf(1)
	found := false
	r.tree.Nearby(
		func(lo, hi [2]float64, _ int64, _ bool) float64 {
			return metric.boxDist(lo, hi)
		},
		func(_, _ [2]float64, id int64, dist float64) bool {
			if found && dist > bestDist {
				return false
			}
			if !found || id < best {
				best, bestDist, found = id, dist, true
			}
			return true
		},
	)
	return best, nil
}

// metric is the squared equirectangular distance in degrees around a query
// point. Box distances are lower bounds of point distances inside the box.
type metric struct {
	lat, lon float64
	lonScale float64
}

func newMetric(lat, lon float64) metric {
	return metric{lat: lat, lon: lon, lonScale: math.Cos(lat * math.Pi / 180)}
}

func (m metric) boxDist(lo, hi [2]float64) float64 {
	dx := axisGap(m.lon, lo[0], hi[0]) * m.lonScale
	dy := axisGap(m.lat, lo[1], hi[1])
	return dx*dx + dy*dy
}

func axisGap(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo - v
	case v > hi:
		return v - hi
	default:
		return 0
	}
}
