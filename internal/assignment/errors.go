package assignment

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fieldops/funnel/internal/funnel"
)

// NoEligibleProvidersError carries the audit trail of the funnel run that
// excluded every candidate, so callers can explain the outcome.
type NoEligibleProvidersError struct {
	OrderID uuid.UUID
	Log     []funnel.LogEntry
}

func (e *NoEligibleProvidersError) Error() string {
	return fmt.Sprintf("no eligible providers for service order %s", e.OrderID)
}

// IneligibleProviderError reports a direct assignment to a provider the
// funnel excluded, naming the stage that rejected them.
type IneligibleProviderError struct {
	ProviderID uuid.UUID
	Stage      string
	Reason     string
}

func (e *IneligibleProviderError) Error() string {
	return fmt.Sprintf("provider %s is not eligible: excluded at %s (%s)", e.ProviderID, e.Stage, e.Reason)
}

// ConcurrentAssignmentConflictError is returned to the loser of a
// first-accept-wins race on a broadcast order.
type ConcurrentAssignmentConflictError struct {
	OrderID      uuid.UUID
	AssignmentID uuid.UUID
}

func (e *ConcurrentAssignmentConflictError) Error() string {
	return fmt.Sprintf("assignment %s lost the accept race for order %s", e.AssignmentID, e.OrderID)
}

// InvalidTransitionError reports an action that the assignment's current
// status does not allow.
type InvalidTransitionError struct {
	AssignmentID uuid.UUID
	From         string
	Action       string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s assignment %s in status %s", e.Action, e.AssignmentID, e.From)
}
