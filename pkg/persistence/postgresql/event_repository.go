package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
	"github.com/google/uuid"
)

// EventRepository handles append-only interaction event database operations.
// Aggregations are grouped in SQL rather than replaying rows in memory, so
// accuracy does not degrade with event volume.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger}
}

// Append stores an interaction event. There is no update or delete path.
func (r *EventRepository) Append(ctx context.Context, event *models.InteractionEvent) error {
	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate event ID: %w", err)
		}

		event.ID = id.String()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO interaction_events (id, type, flow_id, tenant_id, user_id, task_id, time_spent_seconds, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.FlowID,
		event.TenantID,
		event.UserID,
		event.TaskID,
		event.TimeSpentSeconds,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// SeenTypes returns the distinct interaction types observed for a (tenant,
// user) pair.
func (r *EventRepository) SeenTypes(ctx context.Context, tenantID, userID string) ([]models.InteractionType, error) {
	query := `
		SELECT DISTINCT type
		FROM interaction_events
		WHERE tenant_id = $1 AND user_id = $2
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query seen event types: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	types := make([]models.InteractionType, 0)

	for rows.Next() {
		var t models.InteractionType

		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan event type: %w", err)
		}

		types = append(types, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event types: %w", err)
	}

	return types, nil
}

// ListRecent returns a tenant's most recent events, newest first.
func (r *EventRepository) ListRecent(ctx context.Context, tenantID string, limit int) ([]*models.InteractionEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, type, flow_id, tenant_id, user_id, task_id, time_spent_seconds, occurred_at
		FROM interaction_events
		WHERE tenant_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	events := make([]*models.InteractionEvent, 0)

	for rows.Next() {
		var event models.InteractionEvent

		err := rows.Scan(
			&event.ID,
			&event.Type,
			&event.FlowID,
			&event.TenantID,
			&event.UserID,
			&event.TaskID,
			&event.TimeSpentSeconds,
			&event.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// CountByTaskAndType aggregates event counts per (task, type) for a flow.
func (r *EventRepository) CountByTaskAndType(ctx context.Context, flowID string, window persistence.TimeWindow) ([]models.TaskEventCount, error) {
	query := `
		SELECT task_id, type, COUNT(*)
		FROM interaction_events
		WHERE flow_id = $1
		  AND task_id != ''
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at <= $3)
		GROUP BY task_id, type
		ORDER BY task_id, type
	`

	rows, err := r.db.QueryContext(ctx, query, flowID, nullableTime(window.From), nullableTime(window.To))
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	counts := make([]models.TaskEventCount, 0)

	for rows.Next() {
		var count models.TaskEventCount

		if err := rows.Scan(&count.TaskID, &count.Type, &count.Count); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}

		counts = append(counts, count)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event counts: %w", err)
	}

	return counts, nil
}

// AvgTimeSpent returns the mean recorded time per task for a flow.
func (r *EventRepository) AvgTimeSpent(ctx context.Context, flowID string, window persistence.TimeWindow) ([]models.TaskTimeSpent, error) {
	query := `
		SELECT task_id, AVG(time_spent_seconds)
		FROM interaction_events
		WHERE flow_id = $1
		  AND task_id != ''
		  AND time_spent_seconds > 0
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at <= $3)
		GROUP BY task_id
		ORDER BY task_id
	`

	rows, err := r.db.QueryContext(ctx, query, flowID, nullableTime(window.From), nullableTime(window.To))
	if err != nil {
		return nil, fmt.Errorf("failed to query time spent: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	times := make([]models.TaskTimeSpent, 0)

	for rows.Next() {
		var spent models.TaskTimeSpent

		if err := rows.Scan(&spent.TaskID, &spent.AvgSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan time spent: %w", err)
		}

		times = append(times, spent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating time spent: %w", err)
	}

	return times, nil
}
