package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

// StatusRepository handles task status database operations.
type StatusRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStatusRepository creates a new status repository.
func NewStatusRepository(db *sql.DB, logger *slog.Logger) *StatusRepository {
	return &StatusRepository{db: db, logger: logger}
}

// Get retrieves a single status row.
func (r *StatusRepository) Get(ctx context.Context, key models.StatusKey) (*models.TaskStatus, error) {
	query := `
		SELECT flow_id, tenant_id, user_id, task_id, status, created_at, updated_at
		FROM task_statuses
		WHERE flow_id = $1 AND tenant_id = $2 AND user_id = $3 AND task_id = $4
	`

	var status models.TaskStatus

	err := r.db.QueryRowContext(ctx, query, key.FlowID, key.TenantID, key.UserID, key.TaskID).Scan(
		&status.FlowID,
		&status.TenantID,
		&status.UserID,
		&status.TaskID,
		&status.Status,
		&status.CreatedAt,
		&status.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStatusNotFound
		}

		return nil, fmt.Errorf("failed to scan status: %w", err)
	}

	return &status, nil
}

// Upsert writes a status row. The primary key makes the write idempotent: the
// same key and status twice leaves one row, and updated_at only moves when
// the status actually changes.
func (r *StatusRepository) Upsert(ctx context.Context, status *models.TaskStatus) error {
	now := time.Now().UTC()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}

	status.UpdatedAt = now

	query := `
		INSERT INTO task_statuses (flow_id, tenant_id, user_id, task_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (flow_id, tenant_id, user_id, task_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = CASE
				WHEN task_statuses.status = EXCLUDED.status THEN task_statuses.updated_at
				ELSE EXCLUDED.updated_at
			END
	`

	_, err := r.db.ExecContext(ctx, query,
		status.FlowID,
		status.TenantID,
		status.UserID,
		status.TaskID,
		status.Status,
		status.CreatedAt,
		status.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert status: %w", err)
	}

	return nil
}

// ListByScope returns statuses for a flow and tenant, narrowed to one user
// when userID is non-empty.
func (r *StatusRepository) ListByScope(ctx context.Context, flowID, tenantID, userID string) ([]*models.TaskStatus, error) {
	query := `
		SELECT flow_id, tenant_id, user_id, task_id, status, created_at, updated_at
		FROM task_statuses
		WHERE flow_id = $1 AND tenant_id = $2 AND ($3 = '' OR user_id = $3)
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, flowID, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	statuses := make([]*models.TaskStatus, 0)

	for rows.Next() {
		var status models.TaskStatus

		err := rows.Scan(
			&status.FlowID,
			&status.TenantID,
			&status.UserID,
			&status.TaskID,
			&status.Status,
			&status.CreatedAt,
			&status.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}

		statuses = append(statuses, &status)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statuses: %w", err)
	}

	return statuses, nil
}

// CountByTask aggregates status rows per task for a flow at the database.
func (r *StatusRepository) CountByTask(ctx context.Context, flowID string, window persistence.TimeWindow) ([]models.TaskStatusCount, error) {
	query := `
		SELECT
			task_id
		  , COUNT(*)
		  , COUNT(*) FILTER (WHERE status = 'complete')
		FROM task_statuses
		WHERE flow_id = $1
		  AND ($2::timestamptz IS NULL OR updated_at >= $2)
		  AND ($3::timestamptz IS NULL OR updated_at <= $3)
		GROUP BY task_id
		ORDER BY task_id
	`

	rows, err := r.db.QueryContext(ctx, query, flowID, nullableTime(window.From), nullableTime(window.To))
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	counts := make([]models.TaskStatusCount, 0)

	for rows.Next() {
		var count models.TaskStatusCount

		if err := rows.Scan(&count.TaskID, &count.Total, &count.Complete); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}

		counts = append(counts, count)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// ResetForUser removes all status rows and the wizard state for one
// (tenant, user) pair in a single transaction. The returned count covers
// status rows only.
func (r *StatusRepository) ResetForUser(ctx context.Context, tenantID, userID string) (int64, error) {
	deletes := []resetDelete{
		{`DELETE FROM task_statuses WHERE tenant_id = $1 AND user_id = $2`, true},
		{`DELETE FROM user_states WHERE tenant_id = $1 AND user_id = $2`, false},
	}

	return r.reset(ctx, deletes, tenantID, userID)
}

// ResetForTenant removes all status rows, user states, and the workspace
// state for a tenant in a single transaction.
func (r *StatusRepository) ResetForTenant(ctx context.Context, tenantID string) (int64, error) {
	deletes := []resetDelete{
		{`DELETE FROM task_statuses WHERE tenant_id = $1`, true},
		{`DELETE FROM user_states WHERE tenant_id = $1`, false},
		{`DELETE FROM workspace_states WHERE tenant_id = $1`, false},
	}

	return r.reset(ctx, deletes, tenantID)
}

type resetDelete struct {
	query   string
	counted bool
}

func (r *StatusRepository) reset(ctx context.Context, deletes []resetDelete, args ...any) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin reset transaction: %w", err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.ErrorContext(ctx, "failed to rollback reset transaction", "error", err)
		}
	}()

	var removed int64

	for _, del := range deletes {
		result, err := tx.ExecContext(ctx, del.query, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to reset statuses: %w", err)
		}

		if !del.counted {
			continue
		}

		count, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}

		removed += count
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reset transaction: %w", err)
	}

	return removed, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}
