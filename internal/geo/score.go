package geo

// Bands maps a resolved distance onto a fixed score step function.
// Each threshold is inclusive on the upper edge of its band.
type Bands struct {
	NearKm   float64 `yaml:"near_km"`
	MidKm    float64 `yaml:"mid_km"`
	FarKm    float64 `yaml:"far_km"`
	NearPts  float64 `yaml:"near_pts"`
	MidPts   float64 `yaml:"mid_pts"`
	FarPts   float64 `yaml:"far_pts"`
	FloorPts float64 `yaml:"floor_pts"`
}

// DefaultBands returns the standard banding:
// [0,10]→20, (10,30]→15, (30,50]→10, (50,∞)→5.
func DefaultBands() Bands {
	return Bands{
		NearKm:   10,
		MidKm:    30,
		FarKm:    50,
		NearPts:  20,
		MidPts:   15,
		FarPts:   10,
		FloorPts: 5,
	}
}

// Score returns the band score for a distance in km.
func (b Bands) Score(km float64) float64 {
	switch {
	case km <= b.NearKm:
		return b.NearPts
	case km <= b.MidKm:
		return b.MidPts
	case km <= b.FarKm:
		return b.FarPts
	default:
		return b.FloorPts
	}
}

// ScoreForDistance applies the default bands.
func ScoreForDistance(km float64) float64 {
	return DefaultBands().Score(km)
}
