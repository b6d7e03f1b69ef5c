package funnel

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/funnel/internal/catalog"
	"github.com/fieldops/funnel/internal/geo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// 2026-09-07 is a Monday.
var testMonday = time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)

type fixture struct {
	reader   *catalog.MemoryReader
	order    *catalog.ServiceOrder
	pipeline *Pipeline
	created  time.Time
}

func newFixture() *fixture {
	reader := catalog.NewMemoryReader()
	order := &catalog.ServiceOrder{
		ID:          uuid.New(),
		PostalCode:  "28001",
		Specialty:   "ELECTRICAL",
		Latitude:    floatPtr(40.4168),
		Longitude:   floatPtr(-3.7038),
		WindowStart: testMonday,
		WindowEnd:   testMonday.Add(2 * time.Hour),
	}
	reader.PutServiceOrder(order)
	resolver := geo.NewResolver(nil, time.Second, testLogger())
	return &fixture{
		reader:   reader,
		order:    order,
		pipeline: NewPipeline(reader, resolver, Config{Weights: DefaultWeights()}, testLogger()),
		created:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// addProvider registers a fully eligible provider for the fixture order and
// returns it so tests can break individual eligibility dimensions.
func (f *fixture) addProvider(name string, lat, lng float64) *catalog.Provider {
	teamID := uuid.New()
	p := &catalog.Provider{
		ID:        uuid.New(),
		Name:      name,
		Email:     name + "@example.com",
		Phone:     "+34600000000",
		Status:    catalog.ProviderActive,
		Latitude:  floatPtr(lat),
		Longitude: floatPtr(lng),
		Zones: []catalog.InterventionZone{{
			ID:                 uuid.New(),
			PostalCodes:        []string{"28001", "28002"},
			AssignmentPriority: 1,
			MaxDailyJobsInZone: 10,
		}},
		Teams: []catalog.WorkTeam{{
			ID:            teamID,
			Name:          name + "-crew",
			Skills:        []string{"ELECTRICAL"},
			MaxDailyJobs:  8,
			MaxWeeklyJobs: 40,
			Schedule: catalog.WorkSchedule{
				WorkingDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
				Shifts:      []catalog.Shift{{Start: "08:00", End: "17:00"}},
			},
		}},
		CreatedAt: f.created,
	}
	f.created = f.created.Add(24 * time.Hour)
	f.reader.PutProvider(p)
	f.reader.PutPriorityConfig(&catalog.ServicePriorityConfig{
		ProviderID: p.ID,
		Specialty:  "ELECTRICAL",
		Priority:   1,
	})
	f.reader.PutCertification(&catalog.Certification{
		ProviderID: p.ID,
		Specialty:  "ELECTRICAL",
		Status:     catalog.CertApproved,
		ExpiresAt:  time.Now().Add(365 * 24 * time.Hour),
	})
	return p
}

func (f *fixture) run(t *testing.T, providers []*catalog.Provider, opts Options) *Outcome {
	t.Helper()
	out, err := f.pipeline.Run(context.Background(), f.order, providers, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return out
}

func TestScenarioElectricalOrder(t *testing.T) {
	f := newFixture()
	noZone := f.addProvider("no-zone", 40.42, -3.70)
	noZone.Zones = []catalog.InterventionZone{{ID: uuid.New(), PostalCodes: []string{"08001"}, AssignmentPriority: 1}}
	badCert := f.addProvider("bad-cert", 40.43, -3.71)
	f.reader.PutCertification(&catalog.Certification{
		ProviderID: badCert.ID, Specialty: "ELECTRICAL", Status: catalog.CertPending,
	})
	eligible := f.addProvider("eligible", 40.44, -3.69)

	out := f.run(t, []*catalog.Provider{noZone, badCert, eligible}, Options{})

	if out.Terminal != "" {
		t.Fatalf("unexpected terminal: %s", out.Terminal)
	}
	if len(out.Ranked) != 1 {
		t.Fatalf("expected exactly 1 ranked candidate, got %d", len(out.Ranked))
	}
	if out.Ranked[0].Provider.ID != eligible.ID {
		t.Errorf("expected eligible provider ranked, got %s", out.Ranked[0].Provider.Name)
	}
	if len(out.Ranked[0].Factors) != 6 {
		t.Errorf("expected full 6-factor breakdown, got %d", len(out.Ranked[0].Factors))
	}
	if len(out.Log) != 6 {
		t.Fatalf("expected 6 log entries, got %d", len(out.Log))
	}

	if out.Log[0].Stage != StageZone || len(out.Log[0].Exclusions) != 1 ||
		out.Log[0].Exclusions[0].ProviderID != noZone.ID ||
		out.Log[0].Exclusions[0].Reason != ReasonZoneMismatch {
		t.Errorf("stage 1 log unexpected: %+v", out.Log[0])
	}
	if out.Log[2].Stage != StageCertification || len(out.Log[2].Exclusions) != 1 ||
		out.Log[2].Exclusions[0].ProviderID != badCert.ID ||
		out.Log[2].Exclusions[0].Reason != ReasonCertificationInvalid {
		t.Errorf("stage 3 log unexpected: %+v", out.Log[2])
	}
}

func TestMonotonicExclusion(t *testing.T) {
	f := newFixture()
	noZone := f.addProvider("no-zone", 40.42, -3.70)
	noZone.Zones = nil
	optedOut := f.addProvider("opted-out", 40.43, -3.71)
	f.reader.PutPriorityConfig(&catalog.ServicePriorityConfig{
		ProviderID: optedOut.ID, Specialty: "ELECTRICAL", Priority: 1, OptedOut: true,
	})
	eligible := f.addProvider("eligible", 40.44, -3.69)

	out := f.run(t, []*catalog.Provider{noZone, optedOut, eligible}, Options{})

	// Counts must be conserved between consecutive stages.
	for i := 1; i < len(out.Log); i++ {
		if out.Log[i].CandidatesIn != out.Log[i-1].CandidatesOut {
			t.Errorf("stage %s candidatesIn=%d, previous candidatesOut=%d",
				out.Log[i].Stage, out.Log[i].CandidatesIn, out.Log[i-1].CandidatesOut)
		}
	}

	// Each excluded provider appears in exactly one stage's exclusions and
	// never in the ranked output.
	seen := make(map[uuid.UUID]int)
	for _, entry := range out.Log {
		for _, e := range entry.Exclusions {
			seen[e.ProviderID]++
		}
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("provider %s excluded %d times, expected once", id, n)
		}
		for _, rc := range out.Ranked {
			if rc.Provider.ID == id {
				t.Errorf("excluded provider %s reappeared in ranked output", id)
			}
		}
	}
	if seen[noZone.ID] != 1 || seen[optedOut.ID] != 1 {
		t.Error("expected both ineligible providers to be excluded")
	}
	if len(out.Ranked) != 1 || out.Ranked[0].Provider.ID != eligible.ID {
		t.Fatalf("expected only the eligible provider ranked")
	}
}

func TestShortCircuitHaltsPipeline(t *testing.T) {
	f := newFixture()
	p := f.addProvider("outsider", 40.42, -3.70)
	p.Zones = []catalog.InterventionZone{{ID: uuid.New(), PostalCodes: []string{"99999"}}}

	out := f.run(t, []*catalog.Provider{p}, Options{})

	if out.Terminal != TerminalNoEligibleProviders {
		t.Errorf("expected NO_ELIGIBLE_PROVIDERS terminal, got %q", out.Terminal)
	}
	if len(out.Log) != 1 {
		t.Errorf("expected exactly 1 log entry after stage-1 short-circuit, got %d", len(out.Log))
	}
	if len(out.Ranked) != 0 {
		t.Errorf("expected empty ranked list, got %d", len(out.Ranked))
	}
}

func TestSpecialtyStageReasons(t *testing.T) {
	f := newFixture()

	t.Run("no skilled team", func(t *testing.T) {
		p := f.addProvider("plumber", 40.42, -3.70)
		p.Teams[0].Skills = []string{"PLUMBING"}
		out := f.run(t, []*catalog.Provider{p}, Options{})
		if out.Log[1].Exclusions[0].Reason != ReasonSpecialtyMismatch {
			t.Errorf("expected SPECIALTY_MISMATCH, got %s", out.Log[1].Exclusions[0].Reason)
		}
	})

	t.Run("opted out", func(t *testing.T) {
		p := f.addProvider("opted", 40.42, -3.70)
		f.reader.PutPriorityConfig(&catalog.ServicePriorityConfig{
			ProviderID: p.ID, Specialty: "ELECTRICAL", Priority: 1, OptedOut: true,
		})
		out := f.run(t, []*catalog.Provider{p}, Options{})
		if out.Log[1].Exclusions[0].Reason != ReasonSpecialtyOptedOut {
			t.Errorf("expected SPECIALTY_OPTED_OUT, got %s", out.Log[1].Exclusions[0].Reason)
		}
	})

	t.Run("missing config counts as opt-out", func(t *testing.T) {
		// Built by hand so no priority config exists for the specialty.
		p := &catalog.Provider{
			ID:     uuid.New(),
			Name:   "unconfigured",
			Status: catalog.ProviderActive,
			Zones: []catalog.InterventionZone{{
				ID: uuid.New(), PostalCodes: []string{"28001"}, AssignmentPriority: 1,
			}},
			Teams: []catalog.WorkTeam{{ID: uuid.New(), Skills: []string{"ELECTRICAL"}}},
		}
		f.reader.PutProvider(p)
		out := f.run(t, []*catalog.Provider{p}, Options{})
		if out.Log[1].Exclusions[0].Reason != ReasonSpecialtyOptedOut {
			t.Errorf("expected SPECIALTY_OPTED_OUT for missing config, got %s", out.Log[1].Exclusions[0].Reason)
		}
	})
}

func TestCertificationExpiredReason(t *testing.T) {
	f := newFixture()
	p := f.addProvider("expired", 40.42, -3.70)
	f.reader.PutCertification(&catalog.Certification{
		ProviderID: p.ID, Specialty: "ELECTRICAL",
		Status: catalog.CertApproved, ExpiresAt: time.Now().Add(-time.Hour),
	})
	out := f.run(t, []*catalog.Provider{p}, Options{})
	if out.Log[2].Exclusions[0].Reason != ReasonCertificationExpired {
		t.Errorf("expected CERTIFICATION_EXPIRED, got %s", out.Log[2].Exclusions[0].Reason)
	}
}

func TestCapacityExhausted(t *testing.T) {
	f := newFixture()
	p := f.addProvider("full", 40.42, -3.70)
	f.reader.SetTeamJobCounts(p.Teams[0].ID, catalog.TeamJobCounts{Daily: 8, Weekly: 20})

	out := f.run(t, []*catalog.Provider{p}, Options{})
	if out.Terminal != TerminalNoEligibleProviders {
		t.Fatalf("expected terminal, got %q", out.Terminal)
	}
	last := out.Log[len(out.Log)-1]
	if last.Stage != StageCapacity || last.Exclusions[0].Reason != ReasonCapacityExhausted {
		t.Errorf("expected CAPACITY_EXHAUSTED at capacity stage, got %+v", last)
	}
}

func TestZoneCapOverrideExhausts(t *testing.T) {
	f := newFixture()
	p := f.addProvider("zone-capped", 40.42, -3.70)
	teamID := p.Teams[0].ID
	p.Zones[0].TeamOverrides = map[uuid.UUID]catalog.ZoneOverride{
		teamID: {MaxDailyJobsInZone: intPtr(2)},
	}
	f.reader.SetZoneJobCount(p.Zones[0].ID, 2)

	out := f.run(t, []*catalog.Provider{p}, Options{})
	last := out.Log[len(out.Log)-1]
	if last.Stage != StageCapacity || last.Exclusions[0].Reason != ReasonCapacityExhausted {
		t.Errorf("expected zone override to exhaust capacity, got %+v", last)
	}
}

func TestMonthlyVolumeCapExhausts(t *testing.T) {
	f := newFixture()
	p := f.addProvider("monthly-capped", 40.42, -3.70)
	f.reader.PutPriorityConfig(&catalog.ServicePriorityConfig{
		ProviderID:       p.ID,
		Specialty:        "ELECTRICAL",
		Priority:         1,
		MonthlyVolumeCap: 20,
	})
	f.reader.SetMonthlyJobCount(p.ID, "ELECTRICAL", 20)

	out := f.run(t, []*catalog.Provider{p}, Options{})
	if out.Terminal != TerminalNoEligibleProviders {
		t.Fatalf("expected terminal, got %q", out.Terminal)
	}
	last := out.Log[len(out.Log)-1]
	if last.Stage != StageCapacity || last.Exclusions[0].Reason != ReasonCapacityExhausted {
		t.Errorf("expected monthly cap to exhaust capacity, got %+v", last)
	}
}

func TestScheduleConflict(t *testing.T) {
	f := newFixture()
	// Shift to Sunday; the fixture teams work Monday through Friday.
	sunday := time.Date(2026, 9, 6, 9, 0, 0, 0, time.UTC)
	f.order.WindowStart = sunday
	f.order.WindowEnd = sunday.Add(2 * time.Hour)
	p := f.addProvider("weekdays-only", 40.42, -3.70)

	out := f.run(t, []*catalog.Provider{p}, Options{})
	last := out.Log[len(out.Log)-1]
	if last.Stage != StageSchedule || last.Exclusions[0].Reason != ReasonScheduleConflict {
		t.Errorf("expected SCHEDULE_CONFLICT at schedule stage, got %+v", last)
	}
}

func TestEligibilityOnlyStopsBeforeScoring(t *testing.T) {
	f := newFixture()
	p := f.addProvider("eligible", 40.42, -3.70)

	out := f.run(t, []*catalog.Provider{p}, Options{EligibilityOnly: true})
	if out.Terminal != "" {
		t.Errorf("unexpected terminal: %s", out.Terminal)
	}
	if len(out.Log) != 5 {
		t.Errorf("expected 5 log entries without scoring stage, got %d", len(out.Log))
	}
	if len(out.Ranked) != 0 {
		t.Errorf("expected no ranking in eligibility-only mode, got %d", len(out.Ranked))
	}
	if len(out.Eligible) != 1 || out.Eligible[0].ProviderID != p.ID {
		t.Fatalf("expected the surviving candidate in Eligible, got %+v", out.Eligible)
	}
	if out.Eligible[0].TeamID != p.Teams[0].ID {
		t.Errorf("eligible team = %s, want %s", out.Eligible[0].TeamID, p.Teams[0].ID)
	}
}

func TestExcludeOptionRemovesProvider(t *testing.T) {
	f := newFixture()
	a := f.addProvider("a", 40.42, -3.70)
	b := f.addProvider("b", 40.43, -3.71)

	out := f.run(t, []*catalog.Provider{a, b}, Options{Exclude: map[uuid.UUID]bool{a.ID: true}})
	if len(out.Ranked) != 1 || out.Ranked[0].Provider.ID != b.ID {
		t.Fatalf("expected only provider b ranked")
	}
	if out.Log[0].CandidatesIn != 1 {
		t.Errorf("expected excluded provider to be absent from the initial pool, in=%d", out.Log[0].CandidatesIn)
	}
}

func TestWeightedAggregationProperty(t *testing.T) {
	f := newFixture()
	providers := []*catalog.Provider{
		f.addProvider("a", 40.42, -3.70),
		f.addProvider("b", 40.55, -3.90),
		f.addProvider("c", 41.00, -4.20),
	}

	out := f.run(t, providers, Options{})
	if len(out.Ranked) != 3 {
		t.Fatalf("expected 3 ranked, got %d", len(out.Ranked))
	}
	for _, rc := range out.Ranked {
		var sum, weightSum float64
		for _, fr := range rc.Factors {
			sum += fr.Score * fr.Weight
			weightSum += fr.Weight
			if math.Abs(fr.Weighted-fr.Score*fr.Weight) > 1e-9 {
				t.Errorf("factor %s weighted mismatch", fr.Name)
			}
		}
		if math.Abs(rc.TotalScore-sum) > 1e-6 {
			t.Errorf("totalScore %f differs from factor sum %f", rc.TotalScore, sum)
		}
		if math.Abs(weightSum-1.0) > 1e-6 {
			t.Errorf("weights sum to %f, expected 1.0 after normalization", weightSum)
		}
	}
	// Strict descending order.
	for i := 1; i < len(out.Ranked); i++ {
		if out.Ranked[i].TotalScore > out.Ranked[i-1].TotalScore {
			t.Errorf("ranking not descending at index %d", i)
		}
	}
}

func TestTieBreakByDistanceThenAge(t *testing.T) {
	f := newFixture()
	// Both within the 20-point band so totals tie; "near" is closer.
	far := f.addProvider("far", 40.48, -3.7038)
	near := f.addProvider("near", 40.45, -3.7038)

	out := f.run(t, []*catalog.Provider{far, near}, Options{})
	if len(out.Ranked) != 2 {
		t.Fatalf("expected 2 ranked, got %d", len(out.Ranked))
	}
	if out.Ranked[0].TotalScore != out.Ranked[1].TotalScore {
		t.Fatalf("expected a score tie, got %f vs %f", out.Ranked[0].TotalScore, out.Ranked[1].TotalScore)
	}
	if out.Ranked[0].Provider.ID != near.ID {
		t.Errorf("expected closer provider first on tie")
	}

	// Identical coordinates: the older provider wins.
	f2 := newFixture()
	older := f2.addProvider("older", 40.45, -3.7038)
	newer := f2.addProvider("newer", 40.45, -3.7038)
	out2 := f2.run(t, []*catalog.Provider{newer, older}, Options{})
	if out2.Ranked[0].Provider.ID != older.ID {
		t.Errorf("expected older provider first on full tie")
	}
}

func TestZeroWeightsSurfaceConfigurationError(t *testing.T) {
	f := newFixture()
	f.pipeline = NewPipeline(f.reader, geo.NewResolver(nil, time.Second, testLogger()), Config{Weights: Weights{}}, testLogger())
	p := f.addProvider("eligible", 40.42, -3.70)

	_, err := f.pipeline.Run(context.Background(), f.order, []*catalog.Provider{p}, Options{})
	if err == nil {
		t.Fatal("expected ConfigurationError")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("expected ConfigurationError, got %T: %v", err, err)
	}
}

func TestProviderWithoutGeocodeStillRanked(t *testing.T) {
	f := newFixture()
	p := f.addProvider("no-geo", 0, 0)
	p.Latitude = nil
	p.Longitude = nil

	out := f.run(t, []*catalog.Provider{p}, Options{})
	if len(out.Ranked) != 1 {
		t.Fatalf("expected ungeocoded provider to survive, got %d ranked", len(out.Ranked))
	}
	if out.Ranked[0].DistanceKm != nil {
		t.Error("expected no distance for ungeocoded provider")
	}
	for _, fr := range out.Ranked[0].Factors {
		if fr.Name == FactorDistance && fr.Score != 0 {
			t.Errorf("expected zero distance score, got %f", fr.Score)
		}
	}
}
