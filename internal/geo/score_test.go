package geo

import "testing"

func TestScoreForDistanceBands(t *testing.T) {
	tests := []struct {
		km   float64
		want float64
	}{
		{0, 20},
		{5, 20},
		{10, 20},
		{10.01, 15},
		{20, 15},
		{30, 15},
		{30.01, 10},
		{45, 10},
		{50, 10},
		{50.01, 5},
		{100, 5},
		{5000, 5},
	}
	for _, tt := range tests {
		if got := ScoreForDistance(tt.km); got != tt.want {
			t.Errorf("ScoreForDistance(%f) = %f, expected %f", tt.km, got, tt.want)
		}
	}
}

func TestBandsOverride(t *testing.T) {
	b := Bands{NearKm: 5, MidKm: 15, FarKm: 25, NearPts: 30, MidPts: 20, FarPts: 10, FloorPts: 1}
	if got := b.Score(5); got != 30 {
		t.Errorf("expected 30 at upper edge of near band, got %f", got)
	}
	if got := b.Score(26); got != 1 {
		t.Errorf("expected floor score, got %f", got)
	}
}
