package domain

import "fmt"

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"lon" validate:"gte=-180,lte=180"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Latitude, c.Longitude)
}

// LocationMethod tags how a user location was acquired. It is informational only.
type LocationMethod string

const (
	MethodBrowser  LocationMethod = "browser"
	MethodIP       LocationMethod = "ip"
	MethodFallback LocationMethod = "fallback"
	MethodManual   LocationMethod = "manual"
)

// UserLocation is the position a search session starts from.
type UserLocation struct {
	Coordinate
	Address string         `json:"address"`
	Method  LocationMethod `json:"method"`
}
