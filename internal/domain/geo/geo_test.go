package geo

import (
	"math"
	"testing"
)

func almost(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func TestHaversineKm_SamePoint(t *testing.T) {
	d := HaversineKm(40.7128, -74.0060, 40.7128, -74.0060)
	if d != 0 {
		t.Fatalf("want 0, got %f", d)
	}
}

func TestHaversineKm_NewYork_London(t *testing.T) {
	// NYC to London: ~5,570 km
	d := HaversineKm(40.7128, -74.0060, 51.5074, -0.1278)
	if !almost(d, 5570, 30) {
		t.Fatalf("want ~5570km, got %.0fkm", d)
	}
}

func TestHaversineKm_Antipodal(t *testing.T) {
	d := HaversineKm(0, 0, 0, 180)
	if !almost(d, math.Pi*EarthRadiusKm, 0.001) {
		t.Fatalf("want ~%.0fkm, got %.0fkm", math.Pi*EarthRadiusKm, d)
	}
}

func TestNearest(t *testing.T) {
	boston := Point{Lat: 42.3601, Lon: -71.0589}
	points := []Point{
		{Lat: 51.5074, Lon: -0.1278},  // London
		{Lat: 42.3736, Lon: -71.1097}, // Cambridge, MA
		{Lat: 40.7128, Lon: -74.0060}, // NYC
	}

	km, ok := Nearest(boston, points)
	if !ok {
		t.Fatal("expected ok")
	}
	if km > 10 {
		t.Errorf("expected Cambridge within 10km, got %.1fkm", km)
	}

	if _, ok := Nearest(boston, nil); ok {
		t.Error("expected !ok for no points")
	}
}

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		lat, lon float64
		valid    bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{91, 0, false},
		{0, 181, false},
		{-91, 0, false},
		{0, -181, false},
	}
	for _, tt := range tests {
		if got := ValidateCoordinates(tt.lat, tt.lon); got != tt.valid {
			t.Errorf("ValidateCoordinates(%f, %f) = %v, want %v", tt.lat, tt.lon, got, tt.valid)
		}
		if got := (Point{Lat: tt.lat, Lon: tt.lon}).Valid(); got != tt.valid {
			t.Errorf("Point.Valid(%f, %f) = %v, want %v", tt.lat, tt.lon, got, tt.valid)
		}
	}
}
