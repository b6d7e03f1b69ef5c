package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/funnel/internal/funnel"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const assignmentColumns = `id, service_order_id, provider_id, team_id, mode, status,
	funnel_data, offer_expires_at, created_at, decided_at, updated_at`

func (s *PostgresStore) CreateAssignment(ctx context.Context, a *Assignment) error {
	funnelJSON, err := json.Marshal(a.FunnelData)
	if err != nil {
		return fmt.Errorf("marshal funnel data: %w", err)
	}

	// Ensure the order's active-assignment slot exists for the accept CAS.
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO order_active_assignments (service_order_id)
		VALUES ($1) ON CONFLICT DO NOTHING`, a.ServiceOrderID); err != nil {
		return err
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO assignments (service_order_id, provider_id, team_id, mode, status,
			funnel_data, offer_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		a.ServiceOrderID, a.ProviderID, a.TeamID, a.Mode, a.Status,
		funnelJSON, a.OfferExpiresAt,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (s *PostgresStore) GetAssignment(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
	a, err := scanAssignment(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *PostgresStore) ListAssignmentsForOrder(ctx context.Context, orderID uuid.UUID) ([]*Assignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE service_order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func (s *PostgresStore) ListOffered(ctx context.Context) ([]*Assignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE status = $1 ORDER BY created_at`, StatusOffered)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func (s *PostgresStore) UpdateAssignmentStatus(ctx context.Context, id uuid.UUID, status AssignmentStatus, decidedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE assignments SET status = $2, decided_at = $3, updated_at = now()
		WHERE id = $1 AND status = $4`, id, status, decidedAt, StatusOffered)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM assignments WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStaleStatus
	}
	return nil
}

// AcceptAssignment wins or loses the whole race in one transaction: the CAS
// on order_active_assignments serializes concurrent accepts for the same
// order, and sibling cancellation rides the same commit.
func (s *PostgresStore) AcceptAssignment(ctx context.Context, orderID, assignmentID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE order_active_assignments
		SET active_assignment_id = $2, updated_at = now()
		WHERE service_order_id = $1 AND active_assignment_id IS NULL`,
		orderID, assignmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAcceptConflict
	}

	tag, err = tx.Exec(ctx, `
		UPDATE assignments SET status = $2, decided_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)`,
		assignmentID, StatusAccepted, StatusOffered, StatusCreated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAcceptConflict
	}

	if _, err := tx.Exec(ctx, `
		UPDATE assignments SET status = $3, decided_at = now(), updated_at = now()
		WHERE service_order_id = $1 AND id <> $2 AND status = $4`,
		orderID, assignmentID, StatusCancelled, StatusOffered); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByStatus: make(map[AssignmentStatus]int),
		ByMode:   make(map[AssignmentMode]int),
	}

	rows, err := s.pool.Query(ctx, `
		SELECT status, mode, count(*) FROM assignments GROUP BY status, mode`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status AssignmentStatus
		var mode AssignmentMode
		var count int
		if err := rows.Scan(&status, &mode, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[status] += count
		stats.ByMode[mode] += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var avgMs *float64
	if err := s.pool.QueryRow(ctx, `
		SELECT avg(extract(epoch FROM (decided_at - created_at)) * 1000)
		FROM assignments WHERE decided_at IS NOT NULL`).Scan(&avgMs); err != nil {
		return nil, err
	}
	if avgMs != nil {
		stats.AvgDecisionMs = *avgMs
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (*Assignment, error) {
	a := &Assignment{}
	var funnelJSON []byte
	err := row.Scan(
		&a.ID, &a.ServiceOrderID, &a.ProviderID, &a.TeamID, &a.Mode, &a.Status,
		&funnelJSON, &a.OfferExpiresAt, &a.CreatedAt, &a.DecidedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(funnelJSON) > 0 {
		var outcome funnel.Outcome
		if err := json.Unmarshal(funnelJSON, &outcome); err != nil {
			return nil, fmt.Errorf("unmarshal funnel data: %w", err)
		}
		a.FunnelData = &outcome
	}
	return a, nil
}

func collectAssignments(rows pgx.Rows) ([]*Assignment, error) {
	var out []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
