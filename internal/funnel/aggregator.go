package funnel

import (
	"math"
	"sort"
)

// ScoredCandidate pairs a surviving candidate with its raw factor results
// before weighting.
type ScoredCandidate struct {
	Candidate *Candidate
	Factors   []FactorResult
}

// Aggregator turns scored candidates into the final ranked list.
type Aggregator struct {
	weights Weights
}

func NewAggregator(weights Weights) *Aggregator {
	return &Aggregator{weights: weights}
}

// Aggregate normalizes the configured weights to sum to 1.0, computes
// totalScore = Σ score·weight per candidate, and returns a strictly ordered
// list. Ties break by ascending distance, then provider creation date (oldest
// first), then provider id, so the ordering is fully deterministic.
func (a *Aggregator) Aggregate(scored []ScoredCandidate) ([]RankedCandidate, error) {
	weights, err := a.weights.Normalize()
	if err != nil {
		return nil, err
	}

	type entry struct {
		sc    ScoredCandidate
		total float64
		dist  float64
	}
	entries := make([]entry, 0, len(scored))
	for _, sc := range scored {
		var total float64
		for i := range sc.Factors {
			w := weights.For(sc.Factors[i].Name)
			sc.Factors[i].Weight = w
			sc.Factors[i].Weighted = sc.Factors[i].Score * w
			total += sc.Factors[i].Weighted
		}
		dist := math.Inf(1)
		if sc.Candidate.Distance != nil {
			dist = sc.Candidate.Distance.DistanceKm
		}
		entries = append(entries, entry{sc: sc, total: total, dist: dist})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].total != entries[j].total {
			return entries[i].total > entries[j].total
		}
		if entries[i].dist != entries[j].dist {
			return entries[i].dist < entries[j].dist
		}
		ci := entries[i].sc.Candidate.Provider.CreatedAt
		cj := entries[j].sc.Candidate.Provider.CreatedAt
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return entries[i].sc.Candidate.Provider.ID.String() < entries[j].sc.Candidate.Provider.ID.String()
	})

	ranked := make([]RankedCandidate, 0, len(entries))
	for _, e := range entries {
		c := e.sc.Candidate
		rc := RankedCandidate{
			Provider: ProviderSummary{
				ID:     c.Provider.ID,
				Name:   c.Provider.Name,
				Email:  c.Provider.Email,
				Phone:  c.Provider.Phone,
				Status: c.Provider.Status,
			},
			TeamID:     c.Team.ID,
			TotalScore: e.total,
			Factors:    e.sc.Factors,
		}
		if c.Distance != nil {
			km := c.Distance.DistanceKm
			rc.DistanceKm = &km
			rc.DistanceMethod = c.Distance.Method
		}
		ranked = append(ranked, rc)
	}
	return ranked, nil
}
