// Package render turns search answers into a console report and an
// interactive Leaflet map.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
)

const ruleWidth = 80

// Console writes the text report for one search: the user's position, then
// the ranked pharmacies with the closest one marked.
func Console(w io.Writer, user domain.UserLocation, results []domain.PathResult) error {
	cw := &consoleWriter{w: w}
	rule := strings.Repeat("=", ruleWidth)

	cw.printf("\n%s\n", rule)
	cw.printf("YOUR CURRENT LOCATION\n")
	cw.printf("%s\n", rule)
	cw.printf("Latitude:  %.6f\n", user.Latitude)
	cw.printf("Longitude: %.6f\n", user.Longitude)
	if user.Address != "" {
		cw.printf("Address:   %s\n", user.Address)
	}
	cw.printf("Method:    %s\n", methodOrUnknown(user.Method))

	if len(results) == 0 {
		cw.printf("\nNo pharmacy found in the database.\n")
		cw.printf("Make sure data has been loaded into the graph store.\n")
		return cw.err
	}

	cw.printf("\n%s\n", rule)
	cw.printf("TOP %d NEAREST PHARMACIES\n", len(results))
	cw.printf("%s\n", rule)
	for i, res := range results {
		p := res.PointOfInterest
		cw.printf("\n%d. %s\n", i+1, p.Name)
		cw.printf("   Distance: %.2f km\n", res.DistanceKm)
		cw.printf("   Estimated walking time: %d minutes\n", res.WalkingMinutes)
		cw.printf("   Coordinates: %.6f, %.6f\n", p.Latitude, p.Longitude)
		if res.Hops > 0 {
			cw.printf("   Route steps: %d\n", res.Hops)
		}
		if res.Address != "" {
			cw.printf("   Address: %s\n", res.Address)
		}
		cw.printf("   Ranked by: %s\n", tierLabel(res.Tier))
		if i == 0 {
			cw.printf("   * CLOSEST PHARMACY *\n")
		}
		cw.printf("%s\n", strings.Repeat("-", ruleWidth-10))
	}
	return cw.err
}

// consoleWriter keeps the first write error so the report reads as a
// sequence of printf calls.
type consoleWriter struct {
	w   io.Writer
	err error
}

func (c *consoleWriter) printf(format string, args ...any) {
	if c.err != nil {
		return
	}
	_, c.err = fmt.Fprintf(c.w, format, args...)
}

func methodOrUnknown(m domain.LocationMethod) string {
	if m == "" {
		return "unknown"
	}
	return string(m)
}

func tierLabel(t domain.Tier) string {
	switch t {
	case domain.TierWeighted:
		return "walking distance along roads"
	case domain.TierHops:
		return "number of road segments"
	case domain.TierFlat:
		return "straight-line proximity"
	default:
		return "unknown"
	}
}
