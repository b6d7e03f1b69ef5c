package funnel

// Factor names.
const (
	FactorDistance          = "distance"
	FactorZonePriority      = "zone_priority"
	FactorCapacityHeadroom  = "capacity_headroom"
	FactorSpecialtyPriority = "specialty_priority"
	FactorCertification     = "certification_validity"
	FactorRiskPenalty       = "risk_penalty"
)

// ConfigurationError reports unusable factor weights.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "scoring configuration: " + e.Msg
}

// Weights defines the relative importance of each scoring factor. They are
// normalized to sum to 1.0 before aggregation.
type Weights struct {
	Distance          float64 `yaml:"distance"`
	ZonePriority      float64 `yaml:"zone_priority"`
	CapacityHeadroom  float64 `yaml:"capacity_headroom"`
	SpecialtyPriority float64 `yaml:"specialty_priority"`
	Certification     float64 `yaml:"certification_validity"`
	RiskPenalty       float64 `yaml:"risk_penalty"`
}

// DefaultWeights returns the standard weight distribution.
func DefaultWeights() Weights {
	return Weights{
		Distance:          0.30,
		ZonePriority:      0.15,
		CapacityHeadroom:  0.15,
		SpecialtyPriority: 0.20,
		Certification:     0.10,
		RiskPenalty:       0.10,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Distance + w.ZonePriority + w.CapacityHeadroom +
		w.SpecialtyPriority + w.Certification + w.RiskPenalty
}

// Normalize scales the weights to sum to 1.0. It fails with
// ConfigurationError when any weight is negative or all weights are zero.
func (w Weights) Normalize() (Weights, error) {
	for _, v := range w.asList() {
		if v < 0 {
			return Weights{}, &ConfigurationError{Msg: "negative factor weight"}
		}
	}
	sum := w.Sum()
	if sum == 0 {
		return Weights{}, &ConfigurationError{Msg: "all factor weights are zero"}
	}
	return Weights{
		Distance:          w.Distance / sum,
		ZonePriority:      w.ZonePriority / sum,
		CapacityHeadroom:  w.CapacityHeadroom / sum,
		SpecialtyPriority: w.SpecialtyPriority / sum,
		Certification:     w.Certification / sum,
		RiskPenalty:       w.RiskPenalty / sum,
	}, nil
}

// For returns the weight configured for a named factor.
func (w Weights) For(name string) float64 {
	switch name {
	case FactorDistance:
		return w.Distance
	case FactorZonePriority:
		return w.ZonePriority
	case FactorCapacityHeadroom:
		return w.CapacityHeadroom
	case FactorSpecialtyPriority:
		return w.SpecialtyPriority
	case FactorCertification:
		return w.Certification
	case FactorRiskPenalty:
		return w.RiskPenalty
	default:
		return 0
	}
}

func (w Weights) asList() []float64 {
	return []float64{
		w.Distance, w.ZonePriority, w.CapacityHeadroom,
		w.SpecialtyPriority, w.Certification, w.RiskPenalty,
	}
}
