package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Provider lifecycle statuses as exposed by the providers service.
const (
	ProviderActive    = "active"
	ProviderSuspended = "suspended"
	ProviderInactive  = "inactive"
)

// ServiceOrder is the read model of an order waiting for assignment.
type ServiceOrder struct {
	ID          uuid.UUID  `json:"id"`
	PostalCode  string     `json:"postal_code"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Specialty   string     `json:"specialty"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	Priority    int        `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Provider is the read model of a service provider and everything the funnel
// needs to judge it. Owned and mutated by the providers subsystem; the funnel
// only reads it.
type Provider struct {
	ID        uuid.UUID          `json:"id"`
	Name      string             `json:"name"`
	Email     string             `json:"email"`
	Phone     string             `json:"phone"`
	Status    string             `json:"status"`
	RiskLevel int                `json:"risk_level"`
	Latitude  *float64           `json:"latitude,omitempty"`
	Longitude *float64           `json:"longitude,omitempty"`
	Zones     []InterventionZone `json:"zones"`
	Teams     []WorkTeam         `json:"teams"`
	CreatedAt time.Time          `json:"created_at"`
}

// InterventionZone is a geographic coverage area with priority and capacity
// attributes. Lower AssignmentPriority means higher priority.
type InterventionZone struct {
	ID                 uuid.UUID                  `json:"id"`
	PostalCodes        []string                   `json:"postal_codes"`
	AssignmentPriority int                        `json:"assignment_priority"`
	MaxDailyJobsInZone int                        `json:"max_daily_jobs_in_zone"`
	TeamOverrides      map[uuid.UUID]ZoneOverride `json:"team_overrides,omitempty"`
}

// ZoneOverride carries per-work-team overrides of zone fields.
type ZoneOverride struct {
	AssignmentPriority *int `json:"assignment_priority,omitempty"`
	MaxDailyJobsInZone *int `json:"max_daily_jobs_in_zone,omitempty"`
}

// Covers reports whether the zone's postal-code set includes the given code.
func (z *InterventionZone) Covers(postalCode string) bool {
	for _, pc := range z.PostalCodes {
		if pc == postalCode {
			return true
		}
	}
	return false
}

// PriorityFor returns the zone's assignment priority for a team, honouring
// per-team overrides.
func (z *InterventionZone) PriorityFor(teamID uuid.UUID) int {
	if o, ok := z.TeamOverrides[teamID]; ok && o.AssignmentPriority != nil {
		return *o.AssignmentPriority
	}
	return z.AssignmentPriority
}

// DailyCapFor returns the zone's daily job cap for a team, honouring per-team
// overrides. Zero means uncapped.
func (z *InterventionZone) DailyCapFor(teamID uuid.UUID) int {
	if o, ok := z.TeamOverrides[teamID]; ok && o.MaxDailyJobsInZone != nil {
		return *o.MaxDailyJobsInZone
	}
	return z.MaxDailyJobsInZone
}

// WorkTeam is a provider's crew with skills, capacity, and a working schedule.
type WorkTeam struct {
	ID             uuid.UUID    `json:"id"`
	Name           string       `json:"name"`
	Skills         []string     `json:"skills"`
	MaxDailyJobs   int          `json:"max_daily_jobs"`
	MaxWeeklyJobs  int          `json:"max_weekly_jobs"`
	MinTechnicians int          `json:"min_technicians"`
	MaxTechnicians int          `json:"max_technicians"`
	Schedule       WorkSchedule `json:"schedule"`
}

// HasSkill reports whether the team can perform the given specialty.
func (t *WorkTeam) HasSkill(specialty string) bool {
	for _, s := range t.Skills {
		if s == specialty {
			return true
		}
	}
	return false
}

// ServicePriorityConfig ranks a (provider, specialty) pair. Absence of a
// config or an explicit opt-out removes the provider from eligibility for
// that specialty.
type ServicePriorityConfig struct {
	ProviderID         uuid.UUID `json:"provider_id"`
	Specialty          string    `json:"specialty"`
	Priority           int       `json:"priority"`
	BundledSpecialties []string  `json:"bundled_specialties,omitempty"`
	MonthlyVolumeCap   int       `json:"monthly_volume_cap"`
	ValidFrom          time.Time `json:"valid_from"`
	ValidUntil         time.Time `json:"valid_until"`
	OptedOut           bool      `json:"opted_out"`
}

// ValidAt reports whether the config's validity window contains t.
func (c *ServicePriorityConfig) ValidAt(t time.Time) bool {
	if !c.ValidFrom.IsZero() && t.Before(c.ValidFrom) {
		return false
	}
	if !c.ValidUntil.IsZero() && t.After(c.ValidUntil) {
		return false
	}
	return true
}

type CertificationStatus string

const (
	CertPending  CertificationStatus = "pending"
	CertApproved CertificationStatus = "approved"
	CertRejected CertificationStatus = "rejected"
	CertExpired  CertificationStatus = "expired"
)

// Certification is a provider's credential for one specialty.
type Certification struct {
	ProviderID uuid.UUID           `json:"provider_id"`
	Specialty  string              `json:"specialty"`
	Status     CertificationStatus `json:"status"`
	ExpiresAt  time.Time           `json:"expires_at"`
}

// ValidAt reports whether the certification is approved and unexpired at t.
func (c *Certification) ValidAt(t time.Time) bool {
	if c.Status != CertApproved {
		return false
	}
	if !c.ExpiresAt.IsZero() && !t.Before(c.ExpiresAt) {
		return false
	}
	return true
}

// TeamJobCounts are the booked job counts a headroom check runs against.
type TeamJobCounts struct {
	Daily  int `json:"daily"`
	Weekly int `json:"weekly"`
}

// Reader is the read-only view of the providers/catalog subsystem the funnel
// consumes. Implementations: HTTPClient against the providers service,
// MemoryReader for tests and local runs.
type Reader interface {
	GetServiceOrder(ctx context.Context, id uuid.UUID) (*ServiceOrder, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListActiveProviders(ctx context.Context) ([]*Provider, error)
	GetPriorityConfig(ctx context.Context, providerID uuid.UUID, specialty string) (*ServicePriorityConfig, error)
	GetCertification(ctx context.Context, providerID uuid.UUID, specialty string) (*Certification, error)
	GetTeamJobCounts(ctx context.Context, teamID uuid.UUID, day time.Time) (*TeamJobCounts, error)
	GetZoneJobCount(ctx context.Context, providerID, zoneID uuid.UUID, day time.Time) (int, error)
	GetMonthlyJobCount(ctx context.Context, providerID uuid.UUID, specialty string, month time.Time) (int, error)
}
