package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore backs tests and single-node development runs. The accept path
// mirrors the Postgres CAS: one active-assignment slot per order, first
// accept claims it, later accepts get ErrAcceptConflict.
type MemoryStore struct {
	mu          sync.Mutex
	assignments map[uuid.UUID]*Assignment
	activeSlots map[uuid.UUID]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assignments: make(map[uuid.UUID]*Assignment),
		activeSlots: make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateAssignment(ctx context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	s.assignments[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAssignment(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAssignmentsForOrder(ctx context.Context, orderID uuid.UUID) ([]*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Assignment
	for _, a := range s.assignments {
		if a.ServiceOrderID == orderID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *MemoryStore) ListOffered(ctx context.Context) ([]*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Assignment
	for _, a := range s.assignments {
		if a.Status == StatusOffered {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *MemoryStore) UpdateAssignmentStatus(ctx context.Context, id uuid.UUID, status AssignmentStatus, decidedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != StatusOffered {
		return ErrStaleStatus
	}
	a.Status = status
	a.DecidedAt = decidedAt
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AcceptAssignment(ctx context.Context, orderID, assignmentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, claimed := s.activeSlots[orderID]; claimed {
		return ErrAcceptConflict
	}
	a, ok := s.assignments[assignmentID]
	if !ok {
		return ErrNotFound
	}
	if a.Status != StatusOffered && a.Status != StatusCreated {
		return ErrAcceptConflict
	}

	s.activeSlots[orderID] = assignmentID
	now := time.Now().UTC()
	a.Status = StatusAccepted
	a.DecidedAt = &now
	a.UpdatedAt = now

	for _, sib := range s.assignments {
		if sib.ServiceOrderID == orderID && sib.ID != assignmentID && sib.Status == StatusOffered {
			sib.Status = StatusCancelled
			sib.DecidedAt = &now
			sib.UpdatedAt = now
		}
	}
	return nil
}

func (s *MemoryStore) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{
		ByStatus: make(map[AssignmentStatus]int),
		ByMode:   make(map[AssignmentMode]int),
	}
	var totalMs float64
	decided := 0
	for _, a := range s.assignments {
		stats.ByStatus[a.Status]++
		stats.ByMode[a.Mode]++
		if a.DecidedAt != nil {
			totalMs += float64(a.DecidedAt.Sub(a.CreatedAt).Milliseconds())
			decided++
		}
	}
	if decided > 0 {
		stats.AvgDecisionMs = totalMs / float64(decided)
	}
	return stats, nil
}

func sortByCreation(as []*Assignment) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].CreatedAt.Equal(as[j].CreatedAt) {
			return as[i].ID.String() < as[j].ID.String()
		}
		return as[i].CreatedAt.Before(as[j].CreatedAt)
	})
}
