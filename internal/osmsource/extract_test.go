package osmsource

import (
	"context"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="0" lon="0"/>
  <node id="2" lat="0" lon="0.005"/>
  <node id="3" lat="0" lon="0.01"/>
  <node id="4" lat="0.01" lon="0.01"/>
  <node id="5" lat="0.001" lon="0.0101">
    <tag k="amenity" v="pharmacy"/>
    <tag k="name" v="Pharmacie Centrale"/>
  </node>
  <node id="6" lat="0.02" lon="0.02"/>
  <node id="7" lat="0.0002" lon="-0.0002"/>
  <node id="8" lat="0.0004" lon="-0.0002"/>
  <node id="9" lat="0.0003" lon="-0.0004"/>
  <way id="10">
    <nd ref="1"/><nd ref="2"/><nd ref="3"/>
    <tag k="highway" v="residential"/>
  </way>
  <way id="11">
    <nd ref="3"/><nd ref="4"/>
    <tag k="highway" v="footway"/>
  </way>
  <way id="12">
    <nd ref="4"/><nd ref="6"/>
    <tag k="highway" v="motorway"/>
  </way>
  <way id="13">
    <nd ref="7"/><nd ref="8"/><nd ref="9"/><nd ref="7"/>
    <tag k="building" v="yes"/>
    <tag k="amenity" v="pharmacy"/>
    <tag k="name:fr" v="Pharmacie Atlas"/>
  </way>
</osm>`

func extractSample(t *testing.T, bound orb.Bound) domain.Dataset {
	t.Helper()
	ds, err := Extract(context.Background(), strings.NewReader(sampleXML), Options{
		Area:   "sample",
		Format: FormatXML,
		Bound:  bound,
	})
	require.NoError(t, err)
	return ds
}

func TestExtractCollapsesToIntersections(t *testing.T) {
	ds := extractSample(t, orb.Bound{})

	assert.Equal(t, "sample", ds.Area)
	require.Len(t, ds.Vertices, 3)
	assert.Equal(t, []int64{1, 3, 4}, []int64{ds.Vertices[0].ID, ds.Vertices[1].ID, ds.Vertices[2].ID})

	require.Len(t, ds.Edges, 2)
	assert.Equal(t, int64(1), ds.Edges[0].From)
	assert.Equal(t, int64(3), ds.Edges[0].To)
	assert.InDelta(t, 1111.95, ds.Edges[0].Distance, 0.05)
	assert.Equal(t, int64(3), ds.Edges[1].From)
	assert.Equal(t, int64(4), ds.Edges[1].To)
}

func TestExtractLinksPharmacies(t *testing.T) {
	ds := extractSample(t, orb.Bound{})

	require.Len(t, ds.PointsOfInterest, 2)
	byName := map[string]domain.PointOfInterest{}
	for _, p := range ds.PointsOfInterest {
		byName[p.Name] = p
	}

	centrale := byName["Pharmacie Centrale"]
	assert.Equal(t, int64(3), centrale.NearVertexID)

	atlas, ok := byName["Pharmacie Atlas"]
	require.True(t, ok, "building outline pharmacies are kept")
	assert.Equal(t, int64(1), atlas.NearVertexID)
	assert.InDelta(t, 0.0003, atlas.Latitude, 1e-9)
	assert.InDelta(t, -0.000266667, atlas.Longitude, 1e-6)
}

func TestExtractBound(t *testing.T) {
	ds := extractSample(t, orb.Bound{Min: orb.Point{-0.001, -0.001}, Max: orb.Point{0.01, 0.005}})

	require.Len(t, ds.Edges, 1)
	assert.Equal(t, int64(1), ds.Edges[0].From)
	assert.Equal(t, int64(3), ds.Edges[0].To)
	require.Len(t, ds.PointsOfInterest, 1)
	assert.Equal(t, "Pharmacie Atlas", ds.PointsOfInterest[0].Name)
}

func TestExtractWithoutPharmacies(t *testing.T) {
	xml := `<osm version="0.6">
  <node id="1" lat="0" lon="0"/>
  <node id="2" lat="0" lon="0.001"/>
  <way id="1"><nd ref="1"/><nd ref="2"/><tag k="highway" v="path"/></way>
</osm>`
	ds, err := Extract(context.Background(), strings.NewReader(xml), Options{Format: FormatXML})
	require.NoError(t, err)
	assert.Len(t, ds.Vertices, 2)
	assert.NotNil(t, ds.PointsOfInterest)
	assert.Empty(t, ds.PointsOfInterest)
}

func TestExtractPharmaciesWithoutRoads(t *testing.T) {
	xml := `<osm version="0.6">
  <node id="1" lat="0" lon="0"><tag k="amenity" v="pharmacy"/></node>
</osm>`
	_, err := Extract(context.Background(), strings.NewReader(xml), Options{Format: FormatXML})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoVerticesAvailable)
}

func TestIsWalkable(t *testing.T) {
	tests := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{name: "residential", tags: osm.Tags{{Key: "highway", Value: "residential"}}, want: true},
		{name: "footway", tags: osm.Tags{{Key: "highway", Value: "footway"}}, want: true},
		{name: "steps", tags: osm.Tags{{Key: "highway", Value: "steps"}}, want: true},
		{name: "motorway", tags: osm.Tags{{Key: "highway", Value: "motorway"}}, want: false},
		{name: "cycleway", tags: osm.Tags{{Key: "highway", Value: "cycleway"}}, want: false},
		{name: "not a road", tags: osm.Tags{{Key: "building", Value: "yes"}}, want: false},
		{
			name: "private",
			tags: osm.Tags{{Key: "highway", Value: "service"}, {Key: "access", Value: "private"}},
			want: false,
		},
		{
			name: "private but foot allowed",
			tags: osm.Tags{{Key: "highway", Value: "service"}, {Key: "access", Value: "no"}, {Key: "foot", Value: "yes"}},
			want: true,
		},
		{
			name: "foot=no",
			tags: osm.Tags{{Key: "highway", Value: "primary"}, {Key: "foot", Value: "no"}},
			want: false,
		},
		{
			name: "pedestrian area",
			tags: osm.Tags{{Key: "highway", Value: "pedestrian"}, {Key: "area", Value: "yes"}},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isWalkable(tt.tags))
		})
	}
}

func TestPharmacyTags(t *testing.T) {
	assert.True(t, isPharmacy(osm.Tags{{Key: "amenity", Value: "pharmacy"}}))
	assert.True(t, isPharmacy(osm.Tags{{Key: "shop", Value: "pharmacy"}}))
	assert.False(t, isPharmacy(osm.Tags{{Key: "amenity", Value: "hospital"}}))

	assert.Equal(t, "Atlas", pharmacyName(osm.Tags{{Key: "name:en", Value: "Atlas"}}))
	assert.Equal(t, "", pharmacyName(osm.Tags{{Key: "amenity", Value: "pharmacy"}}))
}
