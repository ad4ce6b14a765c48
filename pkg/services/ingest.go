package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

// CounterSink receives counter bumps as interaction events arrive. Satisfied
// by the redis counters package; nil disables the fast path.
type CounterSink interface {
	RecordInteraction(ctx context.Context, event *models.InteractionEvent) error
}

// Ingest validates and stores wizard interaction events. Events are
// append-only; the same pipeline also bumps incremental counters and
// auto-completes tasks with auto completion.
type Ingest struct {
	persistence persistence.Persistence
	status      *Status
	counters    CounterSink
	logger      *slog.Logger
}

// NewIngest creates a new interaction ingest service. counters may be nil.
func NewIngest(persistence persistence.Persistence, status *Status, counters CounterSink, logger *slog.Logger) *Ingest {
	return &Ingest{
		persistence: persistence,
		status:      status,
		counters:    counters,
		logger:      logger.With("module", "ingest"),
	}
}

// Record appends one interaction event. Missing IDs and timestamps are
// filled in; a task completion event on an auto-completing task also marks
// the task complete for the user.
func (i *Ingest) Record(ctx context.Context, event *models.InteractionEvent) error {
	if !models.ValidInteractionType(event.Type) {
		return NewValidationError(
			"Record",
			"INVALID_INTERACTION",
			fmt.Sprintf("invalid interaction type '%s'", event.Type),
			ErrInvalidInteraction,
		)
	}

	if event.TenantID == "" {
		return ErrEmptyTenantID
	}

	if event.UserID == "" {
		return ErrEmptyUserID
	}

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

	if err := i.persistence.EventRepository().Append(ctx, event); err != nil {
		return fmt.Errorf("failed to append interaction event: %w", err)
	}

	if i.counters != nil {
		if err := i.counters.RecordInteraction(ctx, event); err != nil {
			// Counters are a derived fast path, not the source of truth.
			i.logger.Warn("Failed to bump interaction counters", "error", err, "event_id", event.ID)
		}
	}

	if event.Type == models.InteractionTaskCompleted && event.TaskID != "" {
		i.autoComplete(ctx, event)
	}

	return nil
}

// autoComplete marks a task complete when the flow defines it as
// auto-completing. Manual tasks only change through the status API.
func (i *Ingest) autoComplete(ctx context.Context, event *models.InteractionEvent) {
	flow, err := i.persistence.FlowRepository().GetByID(ctx, event.FlowID)
	if err != nil || flow == nil {
		i.logger.Warn("Failed to load flow for auto-completion", "error", err, "flow_id", event.FlowID)

		return
	}

	task := flow.TaskByID(event.TaskID)
	if task == nil || task.CompletionType != models.CompletionTypeAuto {
		return
	}

	status := &models.TaskStatus{
		FlowID:   event.FlowID,
		TenantID: event.TenantID,
		UserID:   event.UserID,
		TaskID:   event.TaskID,
		Status:   models.TaskStateComplete,
	}

	if err := i.status.SetStatus(ctx, status); err != nil {
		i.logger.Error("Failed to auto-complete task", "error", err, "task_id", event.TaskID)
	}
}

// SeenTypes returns the distinct interaction types observed for a user. Used
// by event_based activation.
func (i *Ingest) SeenTypes(ctx context.Context, tenantID, userID string) ([]models.InteractionType, error) {
	return i.persistence.EventRepository().SeenTypes(ctx, tenantID, userID)
}

// RecentEvents returns a tenant's most recent interaction events, newest
// first. Intended for debugging an event pipeline, not for analytics.
func (i *Ingest) RecentEvents(ctx context.Context, tenantID string, limit int) ([]*models.InteractionEvent, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return i.persistence.EventRepository().ListRecent(ctx, tenantID, limit)
}
