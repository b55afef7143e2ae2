package render

import (
	"fmt"
	"html/template"
	"io"
	"os"

	"github.com/YassineElALAMI/GeoSpatial-Pharmacy-Finder/internal/domain"
)

// DefaultMapFile is where the finder writes its map.
const DefaultMapFile = "pharmacy_map.html"

const popupAddressLimit = 100

// markerColors are used for the first ranked pharmacies; the rest are gray.
var markerColors = []string{"green", "blue", "orange", "purple"}

// MapData is everything the map page shows.
type MapData struct {
	User    domain.UserLocation
	Results []domain.PathResult
	// Route is the polyline to the closest pharmacy. It may be empty.
	Route []domain.Coordinate
}

type mapMarker struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Label   string  `json:"label"`
	Popup   string  `json:"popup"`
	Color   string  `json:"color"`
	Ranking int     `json:"rank"`
}

type mapView struct {
	Title   string
	Center  [2]float64
	User    mapMarker
	Markers []mapMarker
	Route   [][2]float64
}

// MapHTML renders data as a standalone Leaflet page.
func MapHTML(w io.Writer, data MapData) error {
	view := mapView{
		Title:  "Nearest pharmacies",
		Center: [2]float64{data.User.Latitude, data.User.Longitude},
		User: mapMarker{
			Lat:   data.User.Latitude,
			Lon:   data.User.Longitude,
			Label: "You are here",
			Popup: "Your position\n" + data.User.Address,
			Color: "red",
		},
		Markers: make([]mapMarker, 0, len(data.Results)),
		Route:   make([][2]float64, 0, len(data.Route)),
	}
	for i, res := range data.Results {
		color := "gray"
		if i < len(markerColors) {
			color = markerColors[i]
		}
		p := res.PointOfInterest
		view.Markers = append(view.Markers, mapMarker{
			Lat:     p.Latitude,
			Lon:     p.Longitude,
			Label:   fmt.Sprintf("%d. %s", i+1, p.Name),
			Popup:   fmt.Sprintf("%s\nDistance: %.2f km\nWalking time: %d min\n%s", p.Name, res.DistanceKm, res.WalkingMinutes, truncate(res.Address, popupAddressLimit)),
			Color:   color,
			Ranking: i + 1,
		})
	}
	for _, c := range data.Route {
		view.Route = append(view.Route, [2]float64{c.Latitude, c.Longitude})
	}
	return mapTemplate.Execute(w, view)
}

// WriteMapFile renders data into path.
func WriteMapFile(path string, data MapData) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create map file: %w", err)
	}
	if err := MapHTML(f, data); err != nil {
		f.Close()
		return fmt.Errorf("render map: %w", err)
	}
	return f.Close()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
html, body, #map { height: 100%; margin: 0; }
.pin { width: 14px; height: 14px; border-radius: 50%; border: 2px solid #fff; box-shadow: 0 0 3px #333; }
</style>
</head>
<body>
<div id="map"></div>
<script>
const center = {{.Center}};
const user = {{.User}};
const markers = {{.Markers}};
const route = {{.Route}};

const map = L.map("map").setView(center, 14);
L.tileLayer("https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", {
  maxZoom: 19,
  attribution: "&copy; OpenStreetMap contributors"
}).addTo(map);

function pin(color) {
  return L.divIcon({className: "", html: '<div class="pin" style="background:' + color + '"></div>'});
}

function addMarker(m) {
  const popup = document.createElement("div");
  popup.innerText = m.popup;
  L.marker([m.lat, m.lon], {icon: pin(m.color)}).bindTooltip(m.label).bindPopup(popup).addTo(map);
}

addMarker(user);
markers.forEach(addMarker);
if (route.length > 1) {
  L.polyline(route, {color: "red", weight: 4, opacity: 0.8}).addTo(map);
}
</script>
</body>
</html>
`))
