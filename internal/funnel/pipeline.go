package funnel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/funnel/internal/catalog"
	"github.com/fieldops/funnel/internal/geo"
	"github.com/fieldops/funnel/internal/metrics"
)

// Config tunes one pipeline instance.
type Config struct {
	Weights             Weights
	Bands               geo.Bands
	RiskPenaltyPerLevel float64
	DistanceMethod      string
	DistanceTimeout     time.Duration
	DistanceConcurrency int
}

// Options select per-run behaviour.
type Options struct {
	// Exclude removes providers from the initial pool, e.g. after a refusal.
	Exclude map[uuid.UUID]bool
	// EligibilityOnly stops after stage 5 without scoring (DIRECT validation).
	EligibilityOnly bool
}

// Pipeline is the six-stage candidate filter funnel. Stages run in the fixed
// StageOrder; a stage that empties the candidate set halts the run.
type Pipeline struct {
	catalog    catalog.Reader
	resolver   *geo.Resolver
	scorers    []FactorScorer
	aggregator *Aggregator
	cfg        Config
	logger     *slog.Logger
}

func NewPipeline(cat catalog.Reader, resolver *geo.Resolver, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.Bands == (geo.Bands{}) {
		cfg.Bands = geo.DefaultBands()
	}
	if cfg.RiskPenaltyPerLevel <= 0 {
		cfg.RiskPenaltyPerLevel = 2
	}
	if cfg.DistanceConcurrency <= 0 {
		cfg.DistanceConcurrency = 4
	}
	return &Pipeline{
		catalog:    cat,
		resolver:   resolver,
		scorers:    DefaultScorers(),
		aggregator: NewAggregator(cfg.Weights),
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes the funnel for one order against the given provider pool.
// The returned Outcome is a complete, immutable audit of this execution.
func (p *Pipeline) Run(ctx context.Context, order *catalog.ServiceOrder, providers []*catalog.Provider, opts Options) (*Outcome, error) {
	now := time.Now()
	out := &Outcome{OrderID: order.ID, ExecutedAt: now}

	cands := make([]*Candidate, 0, len(providers))
	for _, prov := range providers {
		if opts.Exclude[prov.ID] {
			continue
		}
		cands = append(cands, &Candidate{Provider: prov})
	}

	stages := []struct {
		name string
		fn   func(ctx context.Context, order *catalog.ServiceOrder, cands []*Candidate, now time.Time) ([]*Candidate, []Exclusion, error)
	}{
		{StageZone, p.zoneStage},
		{StageSpecialty, p.specialtyStage},
		{StageCertification, p.certificationStage},
		{StageCapacity, p.capacityStage},
		{StageSchedule, p.scheduleStage},
	}

	for _, stage := range stages {
		in := len(cands)
		survivors, exclusions, err := stage.fn(ctx, order, cands, now)
		if err != nil {
			return nil, err
		}
		out.Log = append(out.Log, LogEntry{
			Stage:         stage.name,
			Timestamp:     time.Now(),
			CandidatesIn:  in,
			CandidatesOut: len(survivors),
			Exclusions:    exclusions,
		})
		for _, e := range exclusions {
			metrics.StageExclusions.WithLabelValues(stage.name, e.Reason).Inc()
		}
		cands = survivors

		if len(cands) == 0 {
			out.Terminal = TerminalNoEligibleProviders
			metrics.FunnelRuns.WithLabelValues("no_eligible_providers").Inc()
			p.logger.Info("funnel short-circuited", "order_id", order.ID, "stage", stage.name)
			return out, nil
		}
	}

	if opts.EligibilityOnly {
		for _, c := range cands {
			out.Eligible = append(out.Eligible, EligibleCandidate{ProviderID: c.Provider.ID, TeamID: c.Team.ID})
		}
		metrics.FunnelRuns.WithLabelValues("eligibility_only").Inc()
		return out, nil
	}

	p.resolveDistances(ctx, order, cands)

	sctx := &ScoringContext{
		Order:               order,
		Now:                 now,
		Bands:               p.cfg.Bands,
		RiskPenaltyPerLevel: p.cfg.RiskPenaltyPerLevel,
	}
	scored := make([]ScoredCandidate, 0, len(cands))
	for _, c := range cands {
		factors := make([]FactorResult, 0, len(p.scorers))
		for _, s := range p.scorers {
			factors = append(factors, s.Score(c, sctx))
		}
		scored = append(scored, ScoredCandidate{Candidate: c, Factors: factors})
	}

	ranked, err := p.aggregator.Aggregate(scored)
	if err != nil {
		return nil, err
	}
	out.Ranked = ranked
	out.Log = append(out.Log, LogEntry{
		Stage:         StageScoring,
		Timestamp:     time.Now(),
		CandidatesIn:  len(cands),
		CandidatesOut: len(ranked),
	})
	metrics.FunnelRuns.WithLabelValues("ranked").Inc()
	p.logger.Info("funnel ranked candidates", "order_id", order.ID, "candidates", len(ranked))
	return out, nil
}

// zoneStage keeps providers whose intervention zones cover the order's postal
// code, binding the best-priority covering zone.
func (p *Pipeline) zoneStage(_ context.Context, order *catalog.ServiceOrder, cands []*Candidate, _ time.Time) ([]*Candidate, []Exclusion, error) {
	var survivors []*Candidate
	var exclusions []Exclusion
	for _, c := range cands {
		var best *catalog.InterventionZone
		for i := range c.Provider.Zones {
			z := &c.Provider.Zones[i]
			if !z.Covers(order.PostalCode) {
				continue
			}
			if best == nil || z.AssignmentPriority < best.AssignmentPriority {
				best = z
			}
		}
		if best == nil {
			exclusions = append(exclusions, Exclusion{ProviderID: c.Provider.ID, Reason: ReasonZoneMismatch})
			continue
		}
		c.Zone = best
		survivors = append(survivors, c)
	}
	return survivors, exclusions, nil
}

// specialtyStage keeps providers with at least one team skilled in the
// order's specialty and a valid, non-opted-out priority config for it.
func (p *Pipeline) specialtyStage(ctx context.Context, order *catalog.ServiceOrder, cands []*Candidate, now time.Time) ([]*Candidate, []Exclusion, error) {
	var survivors []*Candidate
	var exclusions []Exclusion
	for _, c := range cands {
		var teams []catalog.WorkTeam
		for _, t := range c.Provider.Teams {
			if t.HasSkill(order.Specialty) {
				teams = append(teams, t)
			}
		}
		if len(teams) == 0 {
			exclusions = append(exclusions, Exclusion{ProviderID: c.Provider.ID, Reason: ReasonSpecialtyMismatch})
			continue
		}

		cfg, err := p.catalog.GetPriorityConfig(ctx, c.Provider.ID, order.Specialty)
		if err != nil {
			return nil, nil, err
		}
		if cfg == nil || cfg.OptedOut || !cfg.ValidAt(now) {
			exclusions = append(exclusions, Exclusion{ProviderID: c.Provider.ID, Reason: ReasonSpecialtyOptedOut})
			continue
		}
		c.Teams = teams
		c.Config = cfg
		survivors = append(survivors, c)
	}
	return survivors, exclusions, nil
}

// certificationStage keeps providers holding an approved, unexpired
// certification for the order's specialty.
func (p *Pipeline) certificationStage(ctx context.Context, order *catalog.ServiceOrder, cands []*Candidate, now time.Time) ([]*Candidate, []Exclusion, error) {
	var survivors []*Candidate
	var exclusions []Exclusion
	for _, c := range cands {
		cert, err := p.catalog.GetCertification(ctx, c.Provider.ID, order.Specialty)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case cert == nil, cert.Status == catalog.CertPending, cert.Status == catalog.CertRejected:
			exclusions = append(exclusions, Exclusion{ProviderID: c.Provider.ID, Reason: ReasonCertificationInvalid})
		case !cert.ValidAt(now):
			exclusions = append(exclusions, Exclusion{ProviderID: c.Provider.ID, Reason: ReasonCertificationExpired})
		default:
			c.Cert = cert
			survivors = append(survivors, c)
		}
	}
	return survivors, exclusions, nil
}

// capacityStage keeps teams with headroom under their daily/weekly maxima
// and the zone's per-team daily cap.
func (p *Pipeline) capacityStage(ctx context.Context, order *catalog.ServiceOrder, cands []*Candidate, _ time.Time) ([]*Candidate, []Exclusion, error) {
	day := order.WindowStart
	var survivors []*Candidate
	var exclusions []Exclusion
	for _, c := range cands {
		if c.Config != nil && c.Config.MonthlyVolumeCap > 0 {
			monthly, err := p.catalog.GetMonthlyJobCount(ctx, c.Provider.ID, order.Specialty, day)
			if err != nil {
				return nil, nil, err
			}
			if monthly >= c.Config.MonthlyVolumeCap {
				exclusions = append(exclusions, Exclusion{ProviderID: c.Provider.ID, Reason: ReasonCapacityExhausted})
				continue
			}
		}
		zoneCount, err := p.catalog.GetZoneJobCount(ctx, c.Provider.ID, c.Zone.ID, day)
		if err != nil {
			return nil, nil, err
		}
		c.zoneCount = zoneCount
		c.teamCounts = make(map[uuid.UUID]catalog.TeamJobCounts, len(c.Teams))

		var kept []catalog.WorkTeam
		for i := range c.Teams {
			team := &c.Teams[i]
			counts, err := p.catalog.GetTeamJobCounts(ctx, team.ID, day)
			if err != nil {
				return nil, nil, err
			}
			if counts == nil {
				counts = &catalog.TeamJobCounts{}
			}
			c.teamCounts[team.ID] = *counts
			remaining, capped := headroomFor(team, c.Zone, *counts, zoneCount)
			if !capped || remaining > 0 {
				kept = append(kept, *team)
			}
		}
		if len(kept) == 0 {
			exclusions = append(exclusions, Exclusion{ProviderID: c.Provider.ID, Reason: ReasonCapacityExhausted})
			continue
		}
		c.Teams = kept
		survivors = append(survivors, c)
	}
	return survivors, exclusions, nil
}

// scheduleStage keeps teams whose shifts and working days, minus planned
// absences, cover the order's requested window, and binds the first surviving
// team as the candidate's match.
func (p *Pipeline) scheduleStage(_ context.Context, order *catalog.ServiceOrder, cands []*Candidate, _ time.Time) ([]*Candidate, []Exclusion, error) {
	var survivors []*Candidate
	var exclusions []Exclusion
	for _, c := range cands {
		var kept []catalog.WorkTeam
		for i := range c.Teams {
			if c.Teams[i].Schedule.Covers(order.WindowStart, order.WindowEnd) {
				kept = append(kept, c.Teams[i])
			}
		}
		if len(kept) == 0 {
			exclusions = append(exclusions, Exclusion{ProviderID: c.Provider.ID, Reason: ReasonScheduleConflict})
			continue
		}
		c.Teams = kept
		c.Team = &c.Teams[0]
		survivors = append(survivors, c)
	}
	return survivors, exclusions, nil
}

// resolveDistances fans distance lookups out across a bounded worker pool.
// One candidate's lookup failure never touches its siblings: each worker
// writes only its own candidate, and external failures already degraded to
// Haversine inside the resolver.
func (p *Pipeline) resolveDistances(ctx context.Context, order *catalog.ServiceOrder, cands []*Candidate) {
	origin := geo.DecimalToCoordinates(order.Latitude, order.Longitude)
	if origin == nil {
		p.logger.Warn("order has no geocoded location, skipping distance scoring", "order_id", order.ID)
		return
	}

	jobs := make(chan *Candidate)
	var wg sync.WaitGroup
	for w := 0; w < p.cfg.DistanceConcurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				dest := geo.DecimalToCoordinates(c.Provider.Latitude, c.Provider.Longitude)
				if dest == nil {
					continue
				}
				res, err := p.resolver.Resolve(ctx, *origin, *dest, geo.ResolveOptions{
					Method:  p.cfg.DistanceMethod,
					Timeout: p.cfg.DistanceTimeout,
				})
				if err != nil {
					p.logger.Warn("distance resolution failed", "provider_id", c.Provider.ID, "error", err)
					continue
				}
				if res.FallbackReason != "" {
					metrics.DistanceFallbacks.Inc()
				}
				c.Distance = &res
			}
		}()
	}
	for _, c := range cands {
		jobs <- c
	}
	close(jobs)
	wg.Wait()
}
