package service

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// sanitizeString collapses whitespace and trims the result.
func sanitizeString(value string) string {
	value = whitespaceRegex.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// normalizePointsOfInterest cleans names, repairs missing ones and drops
// duplicates by (name, latitude, longitude), keeping the first occurrence.
// It returns the cleaned list and the number of duplicates dropped.
func normalizePointsOfInterest(pois []domain.PointOfInterest, logger *slog.Logger) ([]domain.PointOfInterest, int) {
	seen := make(map[domain.POIKey]struct{}, len(pois))
	out := make([]domain.PointOfInterest, 0, len(pois))
	duplicates := 0
	for _, p := range pois {
		p.Name = sanitizeString(p.Name)
		if p.Name == "" {
			p.Name = domain.UnnamedPharmacy
			logger.Warn("point of interest without name",
				"kind", domain.KindDataIntegrity,
				"latitude", p.Latitude,
				"longitude", p.Longitude,
			)
		}
		if _, dup := seen[p.Key()]; dup {
			duplicates++
			logger.Warn("duplicate point of interest dropped",
				"kind", domain.KindDataIntegrity,
				"name", p.Name,
				"latitude", p.Latitude,
				"longitude", p.Longitude,
			)
			continue
		}
		seen[p.Key()] = struct{}{}
		out = append(out, p)
	}
	return out, duplicates
}
