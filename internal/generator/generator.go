package generator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/geo"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/roadnet"
)

const metersPerDegree = 111320.0

// Generator produces a synthetic street grid with pharmacies linked to it.
type Generator struct {
	cfg           Config
	rand          *rand.Rand
	nameFragments nameFragments
}

// New returns a configured Generator instance.
func New(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.Rows <= 0 {
		cfg.Rows = def.Rows
	}
	if cfg.Cols <= 0 {
		cfg.Cols = def.Cols
	}
	if cfg.SpacingMeters <= 0 {
		cfg.SpacingMeters = def.SpacingMeters
	}
	if cfg.MaxDetour < 1 {
		cfg.MaxDetour = 1
	}
	if cfg.NumPharmacies < 0 {
		cfg.NumPharmacies = 0
	}
	if cfg.Area == "" {
		cfg.Area = def.Area
	}
	if cfg.CenterLatitude == 0 && cfg.CenterLongitude == 0 {
		cfg.CenterLatitude, cfg.CenterLongitude = def.CenterLatitude, def.CenterLongitude
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return &Generator{
		cfg:           cfg,
		rand:          rand.New(rand.NewSource(cfg.Seed)),
		nameFragments: defaultNameFragments(),
	}
}

// Generate builds the grid, removes random segments and scatters pharmacies.
// It respects context cancellation.
func (g *Generator) Generate(ctx context.Context) (domain.Dataset, error) {
	cfg := g.cfg
	if err := geo.ValidCoordinate(cfg.CenterLatitude, cfg.CenterLongitude); err != nil {
		return domain.Dataset{}, fmt.Errorf("grid centre: %w", err)
	}

	dLat := cfg.SpacingMeters / metersPerDegree
	dLon := dLat / math.Cos(cfg.CenterLatitude*math.Pi/180)
	originLat := cfg.CenterLatitude - dLat*float64(cfg.Rows-1)/2
	originLon := cfg.CenterLongitude - dLon*float64(cfg.Cols-1)/2

	ds := domain.Dataset{
		Area:             cfg.Area,
		Vertices:         make([]domain.Vertex, 0, cfg.Rows*cfg.Cols),
		Edges:            make([]domain.Edge, 0, 2*cfg.Rows*cfg.Cols),
		PointsOfInterest: make([]domain.PointOfInterest, 0, cfg.NumPharmacies),
	}
	id := func(r, c int) int64 { return int64(r*cfg.Cols + c + 1) }

	for r := 0; r < cfg.Rows; r++ {
		if err := ctx.Err(); err != nil {
			return domain.Dataset{}, err
		}
		for c := 0; c < cfg.Cols; c++ {
			ds.Vertices = append(ds.Vertices, domain.Vertex{
				ID:        id(r, c),
				Latitude:  originLat + float64(r)*dLat,
				Longitude: originLon + float64(c)*dLon,
			})
		}
	}

	vertex := func(v int64) domain.Vertex { return ds.Vertices[v-1] }
	link := func(a, b int64) {
		if g.rand.Float64() < cfg.MissingStreetChance {
			return
		}
		va, vb := vertex(a), vertex(b)
		meters := geo.HaversineKm(va.Latitude, va.Longitude, vb.Latitude, vb.Longitude) * 1000
		detour := 1 + g.rand.Float64()*(cfg.MaxDetour-1)
		ds.Edges = append(ds.Edges, domain.Edge{From: a, To: b, Distance: math.Round(meters*detour*100) / 100})
	}
	for r := 0; r < cfg.Rows; r++ {
		for c := 0; c < cfg.Cols; c++ {
			if c+1 < cfg.Cols {
				link(id(r, c), id(r, c+1))
			}
			if r+1 < cfg.Rows {
				link(id(r, c), id(r+1, c))
			}
		}
	}

	resolver := roadnet.NewResolver(ds.Vertices)
	for i := 0; i < cfg.NumPharmacies; i++ {
		if err := ctx.Err(); err != nil {
			return domain.Dataset{}, err
		}
		lat := originLat + g.rand.Float64()*dLat*float64(cfg.Rows-1)
		lon := originLon + g.rand.Float64()*dLon*float64(cfg.Cols-1)
		near, err := resolver.Nearest(lat, lon)
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("link pharmacy: %w", err)
		}
		name := ""
		if g.rand.Float64() >= cfg.UnnamedChance {
			name = g.randomPharmacyName(i)
		}
		ds.PointsOfInterest = append(ds.PointsOfInterest, domain.PointOfInterest{
			Name:         name,
			Latitude:     round6(lat),
			Longitude:    round6(lon),
			NearVertexID: near,
		})
	}
	return ds, nil
}

func (g *Generator) randomPharmacyName(i int) string {
	prefix := g.nameFragments.prefixes[g.rand.Intn(len(g.nameFragments.prefixes))]
	name := g.nameFragments.names[g.rand.Intn(len(g.nameFragments.names))]
	return fmt.Sprintf("%s %s %d", prefix, name, i+1)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

type nameFragments struct {
	prefixes []string
	names    []string
}

func defaultNameFragments() nameFragments {
	return nameFragments{
		prefixes: []string{"Pharmacie", "Pharmacie de", "Pharmacie du", "Parapharmacie"},
		names: []string{
			"Atlas", "Centrale", "Batha", "Bab Boujloud", "Saiss", "Zitoune",
			"Agdal", "Narjiss", "Oued Fes", "Talaa", "Andalous", "Medina",
			"Hassan II", "Mohammed V", "Al Qods", "Ennour",
		},
	}
}
