package funnel

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/funnel/internal/catalog"
	"github.com/fieldops/funnel/internal/geo"
)

func intPtr(v int) *int         { return &v }
func floatPtr(v float64) *float64 { return &v }

func scoringCtx() *ScoringContext {
	return &ScoringContext{
		Order:               &catalog.ServiceOrder{Specialty: "ELECTRICAL"},
		Now:                 time.Now(),
		Bands:               geo.DefaultBands(),
		RiskPenaltyPerLevel: 2,
	}
}

func TestDistanceScorer(t *testing.T) {
	sc := scoringCtx()

	t.Run("no geocode", func(t *testing.T) {
		c := &Candidate{Provider: &catalog.Provider{}}
		r := DistanceScorer{}.Score(c, sc)
		if r.Score != 0 {
			t.Errorf("expected 0 without distance, got %f", r.Score)
		}
		if r.Rationale == "" {
			t.Error("expected rationale")
		}
	})

	t.Run("banded", func(t *testing.T) {
		c := &Candidate{
			Provider: &catalog.Provider{},
			Distance: &geo.Result{DistanceKm: 25, Method: geo.MethodHaversine},
		}
		r := DistanceScorer{}.Score(c, sc)
		if r.Score != 15 {
			t.Errorf("expected 15 for 25 km, got %f", r.Score)
		}
		if !strings.Contains(r.Rationale, "25.0 km") {
			t.Errorf("rationale missing distance: %s", r.Rationale)
		}
	})
}

func TestZonePriorityScorer(t *testing.T) {
	teamID := uuid.New()
	team := &catalog.WorkTeam{ID: teamID}

	t.Run("base priority", func(t *testing.T) {
		c := &Candidate{
			Provider: &catalog.Provider{},
			Zone:     &catalog.InterventionZone{AssignmentPriority: 2},
			Team:     team,
		}
		r := ZonePriorityScorer{}.Score(c, scoringCtx())
		if r.Score != 5 {
			t.Errorf("expected 5 for priority 2, got %f", r.Score)
		}
	})

	t.Run("team override wins", func(t *testing.T) {
		c := &Candidate{
			Provider: &catalog.Provider{},
			Zone: &catalog.InterventionZone{
				AssignmentPriority: 5,
				TeamOverrides:      map[uuid.UUID]catalog.ZoneOverride{teamID: {AssignmentPriority: intPtr(1)}},
			},
			Team: team,
		}
		r := ZonePriorityScorer{}.Score(c, scoringCtx())
		if r.Score != 10 {
			t.Errorf("expected 10 for overridden priority 1, got %f", r.Score)
		}
	})
}

func TestCapacityScorer(t *testing.T) {
	teamID := uuid.New()

	t.Run("uncapped", func(t *testing.T) {
		c := &Candidate{
			Provider:   &catalog.Provider{},
			Zone:       &catalog.InterventionZone{},
			Team:       &catalog.WorkTeam{ID: teamID},
			teamCounts: map[uuid.UUID]catalog.TeamJobCounts{teamID: {}},
		}
		r := CapacityScorer{}.Score(c, scoringCtx())
		if r.Score != 10 {
			t.Errorf("expected 10 for uncapped team, got %f", r.Score)
		}
	})

	t.Run("tightest cap wins", func(t *testing.T) {
		c := &Candidate{
			Provider:   &catalog.Provider{},
			Zone:       &catalog.InterventionZone{MaxDailyJobsInZone: 3},
			Team:       &catalog.WorkTeam{ID: teamID, MaxDailyJobs: 8, MaxWeeklyJobs: 40},
			teamCounts: map[uuid.UUID]catalog.TeamJobCounts{teamID: {Daily: 2, Weekly: 10}},
			zoneCount:  2,
		}
		// Remaining: daily 6, weekly 30, zone 1 — zone is tightest.
		r := CapacityScorer{}.Score(c, scoringCtx())
		if r.Score != 1 {
			t.Errorf("expected 1 from zone cap, got %f", r.Score)
		}
	})
}

func TestSpecialtyPriorityScorer(t *testing.T) {
	t.Run("rank one", func(t *testing.T) {
		c := &Candidate{
			Provider: &catalog.Provider{},
			Config:   &catalog.ServicePriorityConfig{Priority: 1},
		}
		r := SpecialtyPriorityScorer{}.Score(c, scoringCtx())
		if r.Score != 10 {
			t.Errorf("expected 10 for rank 1, got %f", r.Score)
		}
	})

	t.Run("bundle bonus", func(t *testing.T) {
		c := &Candidate{
			Provider: &catalog.Provider{},
			Config: &catalog.ServicePriorityConfig{
				Priority:           1,
				BundledSpecialties: []string{"ELECTRICAL", "HVAC"},
			},
		}
		r := SpecialtyPriorityScorer{}.Score(c, scoringCtx())
		if r.Score != 15 {
			t.Errorf("expected 15 with bundle bonus, got %f", r.Score)
		}
		if !strings.Contains(r.Rationale, "bundle") {
			t.Errorf("rationale should mention bundle: %s", r.Rationale)
		}
	})

	t.Run("no bonus for single bundle", func(t *testing.T) {
		c := &Candidate{
			Provider: &catalog.Provider{},
			Config: &catalog.ServicePriorityConfig{
				Priority:           1,
				BundledSpecialties: []string{"ELECTRICAL"},
			},
		}
		r := SpecialtyPriorityScorer{}.Score(c, scoringCtx())
		if r.Score != 10 {
			t.Errorf("expected no bonus for bundle of one, got %f", r.Score)
		}
	})
}

func TestCertificationScorer(t *testing.T) {
	now := time.Now()
	sc := scoringCtx()

	valid := &Candidate{
		Provider: &catalog.Provider{},
		Cert:     &catalog.Certification{Status: catalog.CertApproved, ExpiresAt: now.Add(24 * time.Hour)},
	}
	if r := (CertificationScorer{}).Score(valid, sc); r.Score != 10 {
		t.Errorf("expected 10 for valid certification, got %f", r.Score)
	}

	missing := &Candidate{Provider: &catalog.Provider{}}
	if r := (CertificationScorer{}).Score(missing, sc); r.Score != 0 {
		t.Errorf("expected 0 for missing certification, got %f", r.Score)
	}
}

func TestRiskPenaltyScorer(t *testing.T) {
	c := &Candidate{Provider: &catalog.Provider{RiskLevel: 3}}
	r := RiskPenaltyScorer{}.Score(c, scoringCtx())
	if r.Score != -6 {
		t.Errorf("expected -6 for risk level 3 at 2/level, got %f", r.Score)
	}

	clean := &Candidate{Provider: &catalog.Provider{RiskLevel: 0}}
	if r := (RiskPenaltyScorer{}).Score(clean, scoringCtx()); r.Score != 0 {
		t.Errorf("expected 0 for risk level 0, got %f", r.Score)
	}
}

func TestAllScorersProduceRationale(t *testing.T) {
	teamID := uuid.New()
	c := &Candidate{
		Provider:   &catalog.Provider{RiskLevel: 1},
		Zone:       &catalog.InterventionZone{AssignmentPriority: 1},
		Team:       &catalog.WorkTeam{ID: teamID, MaxDailyJobs: 5},
		Config:     &catalog.ServicePriorityConfig{Priority: 1},
		Cert:       &catalog.Certification{Status: catalog.CertApproved},
		Distance:   &geo.Result{DistanceKm: 3, Method: geo.MethodHaversine},
		teamCounts: map[uuid.UUID]catalog.TeamJobCounts{teamID: {Daily: 1}},
	}
	for _, s := range DefaultScorers() {
		r := s.Score(c, scoringCtx())
		if r.Name != s.Name() {
			t.Errorf("scorer %s reported name %s", s.Name(), r.Name)
		}
		if r.Rationale == "" {
			t.Errorf("scorer %s produced empty rationale", s.Name())
		}
	}
}
