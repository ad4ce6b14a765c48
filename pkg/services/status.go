package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gangplankhq/gangplank/pkg/eventbus"
	"github.com/gangplankhq/gangplank/pkg/events"
	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

// Status tracks per-user task progress and handles administrative resets.
type Status struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewStatus creates a new task status service. The publisher may be nil when
// no event bus is configured.
func NewStatus(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Status {
	return &Status{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "status"),
	}
}

// SetStatus records a task state for one user. The write is idempotent:
// setting the same state twice is a no-op. A task completed event is emitted
// only when the state actually transitions to complete.
func (s *Status) SetStatus(ctx context.Context, status *models.TaskStatus) error {
	if !models.ValidTaskState(status.Status) {
		return NewValidationError(
			"SetStatus",
			"INVALID_TASK_STATE",
			fmt.Sprintf("invalid task state '%s'", status.Status),
			ErrInvalidTaskState,
		)
	}

	if status.TenantID == "" {
		return ErrEmptyTenantID
	}

	if status.UserID == "" {
		return ErrEmptyUserID
	}

	flow, err := s.persistence.FlowRepository().GetByID(ctx, status.FlowID)
	if err != nil {
		return fmt.Errorf("failed to check flow: %w", err)
	}

	if flow == nil {
		return ErrFlowNotFound
	}

	if flow.TaskByID(status.TaskID) == nil {
		return NewValidationError(
			"SetStatus",
			"UNKNOWN_TASK",
			fmt.Sprintf("task '%s' does not exist in flow '%s'", status.TaskID, status.FlowID),
			ErrInvalidRequest,
		)
	}

	existing, err := s.persistence.StatusRepository().Get(ctx, status.Key())
	if err != nil && !persistence.IsStatusNotFound(err) {
		return fmt.Errorf("failed to load task status: %w", err)
	}

	now := time.Now().UTC()
	status.UpdatedAt = now

	if existing != nil {
		status.CreatedAt = existing.CreatedAt
	} else {
		status.CreatedAt = now
	}

	if err := s.persistence.StatusRepository().Upsert(ctx, status); err != nil {
		return fmt.Errorf("failed to save task status: %w", err)
	}

	completed := status.Status == models.TaskStateComplete &&
		(existing == nil || existing.Status != models.TaskStateComplete)
	if completed {
		s.notifyCompleted(ctx, status)
	}

	return nil
}

// Progress returns statuses for a flow and tenant; userID narrows to one user
// when non-empty.
func (s *Status) Progress(ctx context.Context, flowID, tenantID, userID string) ([]*models.TaskStatus, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return s.persistence.StatusRepository().ListByScope(ctx, flowID, tenantID, userID)
}

// UserCompletionRate returns the fraction of a flow's tasks one user has
// completed, counted against the flow definition. A flow with no tasks has a
// rate of zero.
func (s *Status) UserCompletionRate(ctx context.Context, flowID, tenantID, userID string) (float64, error) {
	flow, err := s.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return 0, fmt.Errorf("failed to load flow: %w", err)
	}

	if flow == nil {
		return 0, ErrFlowNotFound
	}

	total := len(flow.Tasks())
	if total == 0 {
		return 0, nil
	}

	statuses, err := s.persistence.StatusRepository().ListByScope(ctx, flowID, tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load task statuses: %w", err)
	}

	var complete int

	for _, status := range statuses {
		if status.Status == models.TaskStateComplete {
			complete++
		}
	}

	return float64(complete) / float64(total), nil
}

// ResetForUser removes all onboarding progress for one user: task statuses
// and user state, deleted together by the repository. The operation is
// idempotent; resetting an already clean user removes zero rows. A partial
// reset error from storage passes through so the caller can retry.
func (s *Status) ResetForUser(ctx context.Context, tenantID, userID, actor string) (int64, error) {
	if tenantID == "" {
		return 0, ErrEmptyTenantID
	}

	if userID == "" {
		return 0, ErrEmptyUserID
	}

	removed, err := s.persistence.StatusRepository().ResetForUser(ctx, tenantID, userID)
	if err != nil {
		return removed, err
	}

	s.audit(ctx, models.AuditActionResetUser, tenantID, userID, actor, removed)
	s.notifyReset(ctx, tenantID, userID, removed)

	return removed, nil
}

// ResetForTenant removes onboarding progress for every user of a tenant:
// task statuses, user states, and the workspace state, deleted together by
// the repository.
func (s *Status) ResetForTenant(ctx context.Context, tenantID, actor string) (int64, error) {
	if tenantID == "" {
		return 0, ErrEmptyTenantID
	}

	removed, err := s.persistence.StatusRepository().ResetForTenant(ctx, tenantID)
	if err != nil {
		return removed, err
	}

	s.audit(ctx, models.AuditActionResetTenant, tenantID, "", actor, removed)
	s.notifyReset(ctx, tenantID, "", removed)

	return removed, nil
}

func (s *Status) audit(ctx context.Context, action, tenantID, userID, actor string, removed int64) {
	entry := &models.AuditEntry{
		ID:       uuid.New().String(),
		Action:   action,
		TenantID: tenantID,
		UserID:   userID,
		Actor:    actor,
		Detail: map[string]any{
			"rows_removed": removed,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := s.persistence.AuditRepository().Append(ctx, entry); err != nil {
		s.logger.Error("Failed to write reset audit entry", "error", err, "tenant_id", tenantID)
	}
}

func (s *Status) notifyCompleted(ctx context.Context, status *models.TaskStatus) {
	if s.publisher == nil {
		return
	}

	event := events.TaskCompleted{
		BaseEvent: events.NewBaseEvent(events.TaskCompletedEvent, status.TenantID),
		FlowID:    status.FlowID,
		UserID:    status.UserID,
		TaskID:    status.TaskID,
	}

	if err := s.publisher.Publish(ctx, status.TenantID, event); err != nil {
		s.logger.Error("Failed to publish task completed event", "error", err, "task_id", status.TaskID)
	}
}

func (s *Status) notifyReset(ctx context.Context, tenantID, userID string, removed int64) {
	if s.publisher == nil {
		return
	}

	event := events.StatusReset{
		BaseEvent:   events.NewBaseEvent(events.StatusResetEvent, tenantID),
		UserID:      userID,
		RowsRemoved: removed,
	}

	if err := s.publisher.Publish(ctx, tenantID, event); err != nil {
		s.logger.Error("Failed to publish status reset event", "error", err, "tenant_id", tenantID)
	}
}
