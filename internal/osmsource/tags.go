package osmsource

import "github.com/paulmach/osm"

// walkExcluded lists highway values a pedestrian cannot use.
var walkExcluded = map[string]bool{
	"motorway":      true,
	"motorway_link": true,
	"bus_guideway":  true,
	"raceway":       true,
	"construction":  true,
	"proposed":      true,
	"planned":       true,
	"abandoned":     true,
	"platform":      true,
	"cycleway":      true,
	"escape":        true,
	"no":            true,
}

// isWalkable reports whether a way is part of the walking network.
func isWalkable(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if hw == "" || walkExcluded[hw] {
		return false
	}
	if tags.Find("area") == "yes" {
		return false
	}
	switch tags.Find("access") {
	case "no", "private":
		if foot := tags.Find("foot"); foot != "yes" && foot != "designated" {
			return false
		}
	}
	if tags.Find("foot") == "no" || tags.Find("service") == "private" {
		return false
	}
	return true
}

func isPharmacy(tags osm.Tags) bool {
	return tags.Find("amenity") == "pharmacy" || tags.Find("shop") == "pharmacy" || tags.Find("healthcare") == "pharmacy"
}

// pharmacyName prefers the local name, then French and English variants.
// An empty result is repaired at import.
func pharmacyName(tags osm.Tags) string {
	for _, key := range []string{"name", "name:fr", "name:en", "name:ar", "brand"} {
		if v := tags.Find(key); v != "" {
			return v
		}
	}
	return ""
}
