package funnel

import (
	"fmt"
	"math"
	"time"

	"github.com/fieldops/funnel/internal/catalog"
	"github.com/fieldops/funnel/internal/geo"
)

// FactorResult captures one factor's contribution to a candidate's total
// score. Rationale is a human-readable explanation suitable for direct
// display in a transparency UI.
type FactorResult struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Weighted  float64 `json:"weighted"`
	Rationale string  `json:"rationale"`
}

// ScoringContext bundles the order and scoring configuration passed to every
// factor.
type ScoringContext struct {
	Order               *catalog.ServiceOrder
	Now                 time.Time
	Bands               geo.Bands
	RiskPenaltyPerLevel float64
}

// FactorScorer is one pure, side-effect-free scoring strategy. New factors
// plug in without touching the aggregator.
type FactorScorer interface {
	Name() string
	Score(c *Candidate, sc *ScoringContext) FactorResult
}

// DefaultScorers returns the standard factor set in display order.
func DefaultScorers() []FactorScorer {
	return []FactorScorer{
		DistanceScorer{},
		ZonePriorityScorer{},
		CapacityScorer{},
		SpecialtyPriorityScorer{},
		CertificationScorer{},
		RiskPenaltyScorer{},
	}
}

// DistanceScorer maps the resolved distance onto the fixed score bands.
type DistanceScorer struct{}

func (DistanceScorer) Name() string { return FactorDistance }

func (DistanceScorer) Score(c *Candidate, sc *ScoringContext) FactorResult {
	if c.Distance == nil {
		return FactorResult{
			Name:      FactorDistance,
			Score:     0,
			Rationale: "no geocoded location for provider or order, distance not scored",
		}
	}
	score := sc.Bands.Score(c.Distance.DistanceKm)
	return FactorResult{
		Name:  FactorDistance,
		Score: score,
		Rationale: fmt.Sprintf("%.1f km (%s) falls in the %.0f-point band",
			c.Distance.DistanceKm, c.Distance.Method, score),
	}
}

// ZonePriorityScorer rewards zones the provider ranked higher, honouring
// per-team overrides. Priority 1 is the best and scores 10.
type ZonePriorityScorer struct{}

func (ZonePriorityScorer) Name() string { return FactorZonePriority }

func (ZonePriorityScorer) Score(c *Candidate, _ *ScoringContext) FactorResult {
	priority := c.Zone.PriorityFor(c.Team.ID)
	if priority < 1 {
		priority = 1
	}
	score := 10.0 / float64(priority)
	return FactorResult{
		Name:      FactorZonePriority,
		Score:     score,
		Rationale: fmt.Sprintf("zone assignment priority %d gives %.1f of 10 points", priority, score),
	}
}

// CapacityScorer rewards remaining headroom under the team's daily/weekly
// maxima and the zone's daily cap.
type CapacityScorer struct{}

func (CapacityScorer) Name() string { return FactorCapacityHeadroom }

func (CapacityScorer) Score(c *Candidate, _ *ScoringContext) FactorResult {
	counts := c.teamCounts[c.Team.ID]
	remaining, capped := headroomFor(c.Team, c.Zone, counts, c.zoneCount)
	if !capped {
		return FactorResult{
			Name:      FactorCapacityHeadroom,
			Score:     10,
			Rationale: "no capacity limits configured for this team",
		}
	}
	score := math.Min(float64(remaining), 10)
	return FactorResult{
		Name:      FactorCapacityHeadroom,
		Score:     score,
		Rationale: fmt.Sprintf("%d remaining slot(s) under the tightest daily/weekly/zone cap", remaining),
	}
}

// SpecialtyPriorityScorer scores the provider's configured rank for the
// order's specialty, with a bonus when the specialty ships in a bundle of two
// or more.
type SpecialtyPriorityScorer struct{}

func (SpecialtyPriorityScorer) Name() string { return FactorSpecialtyPriority }

func (SpecialtyPriorityScorer) Score(c *Candidate, sc *ScoringContext) FactorResult {
	priority := c.Config.Priority
	if priority < 1 {
		priority = 1
	}
	score := math.Max(0, 10-2*float64(priority-1))
	rationale := fmt.Sprintf("specialty priority rank %d gives %.1f of 10 points", priority, score)

	if len(c.Config.BundledSpecialties) >= 2 && containsString(c.Config.BundledSpecialties, sc.Order.Specialty) {
		score += 5
		rationale += fmt.Sprintf(", +5 bundle bonus (%d bundled specialties)", len(c.Config.BundledSpecialties))
	}
	return FactorResult{Name: FactorSpecialtyPriority, Score: score, Rationale: rationale}
}

// CertificationScorer is the binary certification gate. Survivors of the
// certification stage always carry a valid credential, so this factor mostly
// documents that the gate passed; an invalid credential still scores 0.
type CertificationScorer struct{}

func (CertificationScorer) Name() string { return FactorCertification }

func (CertificationScorer) Score(c *Candidate, sc *ScoringContext) FactorResult {
	if c.Cert != nil && c.Cert.ValidAt(sc.Now) {
		return FactorResult{
			Name:      FactorCertification,
			Score:     10,
			Rationale: "required certification approved and unexpired",
		}
	}
	return FactorResult{
		Name:      FactorCertification,
		Score:     0,
		Rationale: "required certification missing, unapproved, or expired",
	}
}

// RiskPenaltyScorer subtracts a configured amount per provider risk level.
type RiskPenaltyScorer struct{}

func (RiskPenaltyScorer) Name() string { return FactorRiskPenalty }

func (RiskPenaltyScorer) Score(c *Candidate, sc *ScoringContext) FactorResult {
	penalty := sc.RiskPenaltyPerLevel * float64(c.Provider.RiskLevel)
	return FactorResult{
		Name:      FactorRiskPenalty,
		Score:     -penalty,
		Rationale: fmt.Sprintf("risk level %d subtracts %.1f points", c.Provider.RiskLevel, penalty),
	}
}

// headroomFor returns the tightest remaining slot count across the team's
// daily cap, weekly cap, and the zone's per-team daily cap. capped is false
// when no limit is configured at all.
func headroomFor(team *catalog.WorkTeam, zone *catalog.InterventionZone, counts catalog.TeamJobCounts, zoneCount int) (remaining int, capped bool) {
	remaining = math.MaxInt32

	if team.MaxDailyJobs > 0 {
		capped = true
		if rem := team.MaxDailyJobs - counts.Daily; rem < remaining {
			remaining = rem
		}
	}
	if team.MaxWeeklyJobs > 0 {
		capped = true
		if rem := team.MaxWeeklyJobs - counts.Weekly; rem < remaining {
			remaining = rem
		}
	}
	if zone != nil {
		if cap := zone.DailyCapFor(team.ID); cap > 0 {
			capped = true
			if rem := cap - zoneCount; rem < remaining {
				remaining = rem
			}
		}
	}
	if !capped {
		return 0, false
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
