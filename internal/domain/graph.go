package domain

// UnnamedPharmacy replaces a missing point-of-interest name during ingestion.
const UnnamedPharmacy = "Unnamed pharmacy"

// Vertex is a road-network intersection.
type Vertex struct {
	ID        int64   `json:"id"`
	Latitude  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Edge links two intersections. Distance is the walking length in meters.
// Parallel edges between the same pair are allowed.
type Edge struct {
	From     int64   `json:"u"`
	To       int64   `json:"v"`
	Distance float64 `json:"length" validate:"gte=0"`
}

// PointOfInterest is a pharmacy linked to its nearest road-network vertex.
// Name, Latitude and Longitude together identify it.
type PointOfInterest struct {
	Name         string  `json:"name"`
	Latitude     float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude    float64 `json:"lon" validate:"gte=-180,lte=180"`
	NearVertexID int64   `json:"nearestNode"`
}

// Key returns the identity triple used for merges.
func (p PointOfInterest) Key() POIKey {
	return POIKey{Name: p.Name, Latitude: p.Latitude, Longitude: p.Longitude}
}

// POIKey identifies a point of interest.
type POIKey struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Dataset is the unit handed over by a graph data source for a named area.
type Dataset struct {
	Area             string            `json:"area"`
	Vertices         []Vertex          `json:"vertices"`
	Edges            []Edge            `json:"edges"`
	PointsOfInterest []PointOfInterest `json:"pointsOfInterest"`
}

// Counts reports how many entities a store holds.
type Counts struct {
	Vertices         int64 `json:"vertices"`
	Edges            int64 `json:"edges"`
	PointsOfInterest int64 `json:"pointsOfInterest"`
}
