package geo

import (
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name             string
		lat1, lon1       float64
		lat2, lon2       float64
		wantKm           float64
		tolerancePercent float64
	}{
		{
			name: "Fes medina to Fes train station",
			lat1: 34.0648, lon1: -4.9733,
			lat2: 34.0472, lon2: -4.9981,
			wantKm:           3.0,
			tolerancePercent: 5,
		},
		{
			name: "London to Paris",
			lat1: 51.5074, lon1: -0.1278,
			lat2: 48.8566, lon2: 2.3522,
			wantKm:           343.5,
			tolerancePercent: 1,
		},
		{
			name: "0.01 degree of longitude at the equator",
			lat1: 0, lon1: 0,
			lat2: 0, lon2: 0.01,
			wantKm:           1.112,
			tolerancePercent: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			diff := math.Abs(got-tt.wantKm) / tt.wantKm * 100
			if diff > tt.tolerancePercent {
				t.Errorf("HaversineKm = %f km, want ~%f km (diff %.2f%%)", got, tt.wantKm, diff)
			}
		})
	}
}

func TestHaversineKmSymmetryAndIdentity(t *testing.T) {
	points := [][2]float64{
		{34.0349, -4.9764},
		{-33.8688, 151.2093},
		{89.9, 179.9},
		{-90, -180},
		{0, 0},
	}
	for _, a := range points {
		if d := HaversineKm(a[0], a[1], a[0], a[1]); d != 0 {
			t.Errorf("distance from %v to itself = %f, want 0", a, d)
		}
		for _, b := range points {
			ab := HaversineKm(a[0], a[1], b[0], b[1])
			ba := HaversineKm(b[0], b[1], a[0], a[1])
			if math.IsNaN(ab) {
				t.Fatalf("NaN distance between %v and %v", a, b)
			}
			if math.Abs(ab-ba) > 1e-9 {
				t.Errorf("asymmetric distance %v<->%v: %f vs %f", a, b, ab, ba)
			}
		}
	}
}

func TestWalkingMinutes(t *testing.T) {
	tests := []struct {
		km   float64
		want int
	}{
		{0, 0},
		{-1, 0},
		{0.08, 0},
		{0.1, 1},
		{1, 12},
		{2.5, 30},
		{5, 60},
	}
	for _, tt := range tests {
		if got := WalkingMinutes(tt.km); got != tt.want {
			t.Errorf("WalkingMinutes(%v) = %d, want %d", tt.km, got, tt.want)
		}
	}
}

func TestWalkingMinutesMonotonic(t *testing.T) {
	prev := WalkingMinutes(0)
	for km := 0.0; km <= 20; km += 0.013 {
		got := WalkingMinutes(km)
		if got < 0 {
			t.Fatalf("negative minutes for %f km", km)
		}
		if got < prev {
			t.Fatalf("WalkingMinutes decreased at %f km: %d < %d", km, got, prev)
		}
		prev = got
	}
}

func TestFlatDistanceKm(t *testing.T) {
	got := FlatDistanceKm(0, 0, 0.03, 0.04)
	want := 0.05 * KmPerDegree
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("FlatDistanceKm = %f, want %f", got, want)
	}
}

func TestValidCoordinate(t *testing.T) {
	valid := [][2]float64{{0, 0}, {90, 180}, {-90, -180}, {34.03, -4.97}}
	for _, c := range valid {
		if err := ValidCoordinate(c[0], c[1]); err != nil {
			t.Errorf("ValidCoordinate(%v) unexpected error: %v", c, err)
		}
	}
	invalid := [][2]float64{{90.1, 0}, {0, -180.5}, {math.NaN(), 0}, {0, math.Inf(1)}}
	for _, c := range invalid {
		if err := ValidCoordinate(c[0], c[1]); err == nil {
			t.Errorf("ValidCoordinate(%v) expected error", c)
		}
	}
}

func TestFormatCoordinate(t *testing.T) {
	if got := FormatCoordinate(34.0349, -4.9764); got != "34.034900, -4.976400" {
		t.Errorf("FormatCoordinate = %q", got)
	}
}
