package cog

import "testing"

func TestWebMercatorRoundTrip(t *testing.T) {
	tests := []struct{ lon, lat float64 }{
		{0, 0},
		{-122.4194, 37.7749},
		{174.7633, -36.8485},
		{0, 85},
	}
	for _, tt := range tests {
		x, y := fromWGS84(3857, tt.lon, tt.lat)
		lon, lat := toWGS84(3857, x, y)
		if diff := lon - tt.lon; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("lon round trip: got %v, want %v", lon, tt.lon)
		}
		if diff := lat - tt.lat; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("lat round trip: got %v, want %v", lat, tt.lat)
		}
	}
}

func TestWebMercatorOriginIsZero(t *testing.T) {
	x, y := fromWGS84(3857, 0, 0)
	if x != 0 || y != 0 {
		t.Errorf("fromWGS84(0,0) = (%v,%v), want (0,0)", x, y)
	}
}

func TestUnknownEPSGTreatedAsIdentity(t *testing.T) {
	lon, lat := toWGS84(4326, 12.5, 47.5)
	if lon != 12.5 || lat != 47.5 {
		t.Errorf("toWGS84(4326) = (%v,%v), want identity (12.5,47.5)", lon, lat)
	}
	x, y := fromWGS84(0, 12.5, 47.5)
	if x != 12.5 || y != 47.5 {
		t.Errorf("fromWGS84(0) = (%v,%v), want identity (12.5,47.5)", x, y)
	}
}
