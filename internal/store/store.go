package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/funnel/internal/funnel"
)

type AssignmentMode string

const (
	ModeDirect    AssignmentMode = "DIRECT"
	ModeOffer     AssignmentMode = "OFFER"
	ModeBroadcast AssignmentMode = "BROADCAST"
)

type AssignmentStatus string

const (
	StatusCreated   AssignmentStatus = "CREATED"
	StatusOffered   AssignmentStatus = "OFFERED"
	StatusAccepted  AssignmentStatus = "ACCEPTED"
	StatusRefused   AssignmentStatus = "REFUSED"
	StatusExpired   AssignmentStatus = "EXPIRED"
	StatusCancelled AssignmentStatus = "CANCELLED"
)

// ErrAcceptConflict is returned by AcceptAssignment to the loser of a
// first-accept-wins race: some sibling already holds the order.
var ErrAcceptConflict = errors.New("service order already has an accepted assignment")

// ErrNotFound is returned when an assignment id does not exist.
var ErrNotFound = errors.New("assignment not found")

// ErrStaleStatus is returned by UpdateAssignmentStatus when the
// assignment is no longer offered, so the decision it carries wins
// over the requested transition.
var ErrStaleStatus = errors.New("assignment already decided")

// Assignment binds a service order to a provider. FunnelData is a frozen
// snapshot of the funnel execution that produced the decision; it never
// changes after creation regardless of later provider or zone edits.
type Assignment struct {
	ID             uuid.UUID        `json:"id"`
	ServiceOrderID uuid.UUID        `json:"service_order_id"`
	ProviderID     uuid.UUID        `json:"provider_id"`
	TeamID         uuid.UUID        `json:"team_id"`
	Mode           AssignmentMode   `json:"mode"`
	Status         AssignmentStatus `json:"status"`
	FunnelData     *funnel.Outcome  `json:"funnel_data,omitempty"`
	OfferExpiresAt *time.Time       `json:"offer_expires_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	DecidedAt      *time.Time       `json:"decided_at,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Stats summarizes the assignment funnel for operators.
type Stats struct {
	ByStatus      map[AssignmentStatus]int `json:"by_status"`
	ByMode        map[AssignmentMode]int   `json:"by_mode"`
	AvgDecisionMs float64                  `json:"avg_decision_ms"`
}

// Store persists assignments and resolves the broadcast accept race.
type Store interface {
	CreateAssignment(ctx context.Context, a *Assignment) error
	GetAssignment(ctx context.Context, id uuid.UUID) (*Assignment, error)
	ListAssignmentsForOrder(ctx context.Context, orderID uuid.UUID) ([]*Assignment, error)
	ListOffered(ctx context.Context) ([]*Assignment, error)
	// UpdateAssignmentStatus transitions an assignment out of OFFERED.
	// Assignments that already reached a final status stay as they are
	// and the call fails with ErrStaleStatus.
	UpdateAssignmentStatus(ctx context.Context, id uuid.UUID, status AssignmentStatus, decidedAt *time.Time) error

	// AcceptAssignment atomically marks one assignment ACCEPTED, claims the
	// order's single active-assignment slot, and cancels all still-OFFERED
	// siblings. A second accept for the same order fails with
	// ErrAcceptConflict and changes nothing.
	AcceptAssignment(ctx context.Context, orderID, assignmentID uuid.UUID) error

	GetStats(ctx context.Context) (*Stats, error)

	Close() error
}
