// Package osmsource builds a walkable road network dataset, with the
// pharmacies linked to it, from an OpenStreetMap extract.
package osmsource

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/geo"
	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/roadnet"
)

// Format is the encoding of an extract.
type Format int

const (
	FormatPBF Format = iota
	FormatXML
)

// Options configures Extract.
type Options struct {
	// Area names the dataset.
	Area   string
	Format Format
	// Bound, when non-zero, drops everything outside it.
	Bound  orb.Bound
	Logger *slog.Logger
}

// scanner is the part of osmpbf.Scanner and osmxml.Scanner Extract uses.
type scanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

func newScanner(ctx context.Context, r io.Reader, format Format, skipNodes, skipWays bool) scanner {
	if format == FormatXML {
		return osmxml.New(ctx, r)
	}
	s := osmpbf.New(ctx, r, runtime.GOMAXPROCS(-1))
	s.SkipNodes = skipNodes
	s.SkipWays = skipWays
	s.SkipRelations = true
	return s
}

// pharmacyWay is a pharmacy mapped as a building outline.
type pharmacyWay struct {
	name  string
	nodes []osm.NodeID
}

// collected is what the two passes gather before the dataset is built.
type collected struct {
	ways          [][]osm.NodeID
	uses          map[osm.NodeID]int
	coords        map[osm.NodeID]orb.Point
	pharmacies    []domain.PointOfInterest
	pharmacyWays  []pharmacyWay
	bound         orb.Bound
	filterByBound bool
}

func newCollected(bound orb.Bound) *collected {
	return &collected{
		uses:          make(map[osm.NodeID]int),
		coords:        make(map[osm.NodeID]orb.Point),
		bound:         bound,
		filterByBound: bound != orb.Bound{},
	}
}

// Extract reads rs twice: ways first to find walkable streets and the nodes
// they reference, then nodes for coordinates and pharmacies. Streets are
// collapsed to intersection-to-intersection edges whose length is the
// haversine length of the underlying polyline.
func Extract(ctx context.Context, rs io.ReadSeeker, opts Options) (domain.Dataset, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "osmsource", "area", opts.Area)
	c := newCollected(opts.Bound)

	s := newScanner(ctx, rs, opts.Format, true, false)
	for s.Scan() {
		if w, ok := s.Object().(*osm.Way); ok {
			c.addWay(w)
		}
	}
	if err := s.Err(); err != nil {
		s.Close()
		return domain.Dataset{}, fmt.Errorf("pass 1 (ways): %w", err)
	}
	s.Close()
	logger.Info("pass 1 complete", "ways", len(c.ways), "referenced_nodes", len(c.uses), "pharmacy_ways", len(c.pharmacyWays))

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return domain.Dataset{}, fmt.Errorf("seek for pass 2: %w", err)
	}

	s = newScanner(ctx, rs, opts.Format, false, true)
	for s.Scan() {
		if n, ok := s.Object().(*osm.Node); ok {
			c.addNode(n)
		}
	}
	if err := s.Err(); err != nil {
		s.Close()
		return domain.Dataset{}, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	s.Close()
	logger.Info("pass 2 complete", "coordinates", len(c.coords), "pharmacy_nodes", len(c.pharmacies))

	ds, err := c.build(opts.Area)
	if err != nil {
		return domain.Dataset{}, err
	}
	logger.Info("dataset extracted",
		"vertices", len(ds.Vertices),
		"edges", len(ds.Edges),
		"pharmacies", len(ds.PointsOfInterest),
	)
	return ds, nil
}

func (c *collected) addWay(w *osm.Way) {
	if len(w.Nodes) == 0 {
		return
	}
	if isPharmacy(w.Tags) {
		ids := w.Nodes.NodeIDs()
		for _, id := range ids {
			if _, ok := c.uses[id]; !ok {
				c.uses[id] = 0
			}
		}
		c.pharmacyWays = append(c.pharmacyWays, pharmacyWay{name: pharmacyName(w.Tags), nodes: ids})
	}
	if len(w.Nodes) < 2 || !isWalkable(w.Tags) {
		return
	}
	ids := w.Nodes.NodeIDs()
	for _, id := range ids {
		c.uses[id]++
	}
	// Way ends are always intersections.
	c.uses[ids[0]]++
	c.uses[ids[len(ids)-1]]++
	c.ways = append(c.ways, ids)
}

func (c *collected) addNode(n *osm.Node) {
	p := orb.Point{n.Lon, n.Lat}
	if c.filterByBound && !c.bound.Contains(p) {
		return
	}
	if _, needed := c.uses[n.ID]; needed {
		c.coords[n.ID] = p
	}
	if isPharmacy(n.Tags) {
		c.pharmacies = append(c.pharmacies, domain.PointOfInterest{
			Name:      pharmacyName(n.Tags),
			Latitude:  n.Lat,
			Longitude: n.Lon,
		})
	}
}

// build collapses the collected ways into a dataset and links every pharmacy
// to its nearest intersection.
func (c *collected) build(area string) (domain.Dataset, error) {
	ds := domain.Dataset{Area: area}
	used := make(map[osm.NodeID]struct{})

	for _, way := range c.ways {
		var (
			start  osm.NodeID
			open   bool
			length float64
			prev   orb.Point
		)
		for _, id := range way {
			p, ok := c.coords[id]
			if !ok {
				// Missing or out of bound: the segment is broken here.
				open = false
				continue
			}
			if !open {
				if c.uses[id] > 1 {
					start, open, length, prev = id, true, 0, p
				}
				continue
			}
			length += geo.HaversineKm(prev.Lat(), prev.Lon(), p.Lat(), p.Lon()) * 1000
			prev = p
			if c.uses[id] > 1 {
				if id != start {
					ds.Edges = append(ds.Edges, domain.Edge{
						From:     int64(start),
						To:       int64(id),
						Distance: math.Round(length*100) / 100,
					})
					used[start] = struct{}{}
					used[id] = struct{}{}
				}
				start, length = id, 0
			}
		}
	}

	ds.Vertices = make([]domain.Vertex, 0, len(used))
	for id := range used {
		p := c.coords[id]
		ds.Vertices = append(ds.Vertices, domain.Vertex{ID: int64(id), Latitude: p.Lat(), Longitude: p.Lon()})
	}
	slices.SortFunc(ds.Vertices, func(a, b domain.Vertex) int { return cmp.Compare(a.ID, b.ID) })

	pois := slices.Clone(c.pharmacies)
	for _, pw := range c.pharmacyWays {
		if centre, ok := c.centroid(pw.nodes); ok {
			pois = append(pois, domain.PointOfInterest{Name: pw.name, Latitude: centre.Lat(), Longitude: centre.Lon()})
		}
	}
	if len(pois) == 0 {
		ds.PointsOfInterest = []domain.PointOfInterest{}
		return ds, nil
	}

	resolver := roadnet.NewResolver(ds.Vertices)
	for i := range pois {
		id, err := resolver.Nearest(pois[i].Latitude, pois[i].Longitude)
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("link pharmacies: %w", err)
		}
		pois[i].NearVertexID = id
	}
	ds.PointsOfInterest = pois
	return ds, nil
}

// centroid averages the known coordinates of nodes, ignoring a repeated
// closing node.
func (c *collected) centroid(nodes []osm.NodeID) (orb.Point, bool) {
	if len(nodes) > 1 && nodes[0] == nodes[len(nodes)-1] {
		nodes = nodes[:len(nodes)-1]
	}
	var sumLat, sumLon float64
	n := 0
	for _, id := range nodes {
		if p, ok := c.coords[id]; ok {
			sumLat += p.Lat()
			sumLon += p.Lon()
			n++
		}
	}
	if n == 0 {
		return orb.Point{}, false
	}
	return orb.Point{sumLon / float64(n), sumLat / float64(n)}, true
}
