package funnel

import (
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/funnel/internal/catalog"
	"github.com/fieldops/funnel/internal/geo"
)

// Stage names, in execution order.
const (
	StageZone          = "geographic_eligibility"
	StageSpecialty     = "specialty_eligibility"
	StageCertification = "certification_eligibility"
	StageCapacity      = "capacity_eligibility"
	StageSchedule      = "schedule_eligibility"
	StageScoring       = "scoring_ranking"
)

// StageOrder is the fixed, documented stage sequence. A provider excluded at
// stage k never reappears at any later stage.
var StageOrder = []string{
	StageZone,
	StageSpecialty,
	StageCertification,
	StageCapacity,
	StageSchedule,
	StageScoring,
}

// Exclusion reason codes.
const (
	ReasonZoneMismatch         = "ZONE_MISMATCH"
	ReasonSpecialtyMismatch    = "SPECIALTY_MISMATCH"
	ReasonSpecialtyOptedOut    = "SPECIALTY_OPTED_OUT"
	ReasonCertificationInvalid = "CERTIFICATION_INVALID"
	ReasonCertificationExpired = "CERTIFICATION_EXPIRED"
	ReasonCapacityExhausted    = "CAPACITY_EXHAUSTED"
	ReasonScheduleConflict     = "SCHEDULE_CONFLICT"
)

// TerminalNoEligibleProviders marks a funnel run that eliminated every
// candidate before ranking.
const TerminalNoEligibleProviders = "NO_ELIGIBLE_PROVIDERS"

// Candidate is a provider still under consideration, together with the zone
// and teams that matched so far. Fields fill in as stages run.
type Candidate struct {
	Provider *catalog.Provider
	Zone     *catalog.InterventionZone
	Teams    []catalog.WorkTeam
	Team     *catalog.WorkTeam
	Config   *catalog.ServicePriorityConfig
	Cert     *catalog.Certification
	Distance *geo.Result

	teamCounts map[uuid.UUID]catalog.TeamJobCounts
	zoneCount  int
}

// Exclusion records one provider dropped by a stage.
type Exclusion struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Reason     string    `json:"reason"`
}

// LogEntry is one append-only audit record per executed stage.
type LogEntry struct {
	Stage         string      `json:"stage"`
	Timestamp     time.Time   `json:"timestamp"`
	CandidatesIn  int         `json:"candidates_in"`
	CandidatesOut int         `json:"candidates_out"`
	Exclusions    []Exclusion `json:"exclusions,omitempty"`
}

// ProviderSummary is the provider surface exposed through candidates and
// transparency payloads.
type ProviderSummary struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Phone  string    `json:"phone"`
	Status string    `json:"status"`
}

// RankedCandidate is one entry of the funnel's final ordered output.
type RankedCandidate struct {
	Provider       ProviderSummary `json:"provider"`
	TeamID         uuid.UUID       `json:"team_id"`
	TotalScore     float64         `json:"total_score"`
	DistanceKm     *float64        `json:"distance_km,omitempty"`
	DistanceMethod string          `json:"distance_method,omitempty"`
	Factors        []FactorResult  `json:"factors"`
}

// EligibleCandidate records an eligibility-only survivor and the team that
// would serve the order.
type EligibleCandidate struct {
	ProviderID uuid.UUID `json:"provider_id"`
	TeamID     uuid.UUID `json:"team_id"`
}

// Outcome is one immutable funnel execution: the ranked survivors plus the
// full ordered audit log. Re-running the funnel creates a new Outcome, never
// mutates a prior one. Eligibility-only runs carry Eligible instead of Ranked.
type Outcome struct {
	OrderID    uuid.UUID           `json:"order_id"`
	Ranked     []RankedCandidate   `json:"ranked"`
	Eligible   []EligibleCandidate `json:"eligible,omitempty"`
	Log        []LogEntry          `json:"log"`
	Terminal   string              `json:"terminal,omitempty"`
	ExecutedAt time.Time           `json:"executed_at"`
}
