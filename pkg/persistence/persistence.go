// Package persistence provides the data storage abstraction layer for flows,
// overrides, task statuses, interaction events, and audit entries.
package persistence

import (
	"context"
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
)

type Persistence interface {
	FlowRepository() FlowRepository
	OverrideRepository() OverrideRepository
	StatusRepository() StatusRepository
	StateRepository() StateRepository
	EventRepository() EventRepository
	AuditRepository() AuditRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListFlowsOptions controls filtering, sorting, and pagination of flow lists.
type ListFlowsOptions struct {
	Limit  int
	Offset int

	OwnerID  string
	TenantID string
	Status   *models.FlowStatus
	Scope    *models.FlowScope

	SortBy    string
	SortOrder string
}

// FlowListResult is a page of flows plus pagination metadata.
type FlowListResult struct {
	Flows       []*models.Flow
	TotalCount  int64
	HasNextPage bool
}

// TimeWindow bounds analytics queries. Zero values mean unbounded on that
// side.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}

	if !w.To.IsZero() && t.After(w.To) {
		return false
	}

	return true
}

type FlowRepository interface {
	ListFlows(ctx context.Context, opts ListFlowsOptions) (*FlowListResult, error)
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error
	Delete(ctx context.Context, id string) error

	// GetPublishedFlow returns the published flow for a scope. For tenant
	// scope the tenantID selects the tenant; for global scope it is ignored.
	// When several published flows exist in a scope the most recently
	// published wins, so the result is stable across runs.
	GetPublishedFlow(ctx context.Context, scope models.FlowScope, tenantID string) (*models.Flow, error)

	// PublishFlow transitions a draft to published, bumps its version, and
	// unpublishes any previously published flow in the same scope as part of
	// the same operation. Single active flow per scope is a write-time
	// invariant, not a read-time tie-break.
	PublishFlow(ctx context.Context, id string) error

	GetDraftFlow(ctx context.Context, flowGroupID string) (*models.Flow, error)
	CreateDraftFromPublished(ctx context.Context, flowGroupID string) (*models.Flow, error)
}

type OverrideRepository interface {
	GetByFlowAndTenant(ctx context.Context, flowID, tenantID string) (*models.Override, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.Override, error)

	// ListAll returns every override across tenants. The activation sweep
	// uses it to find date_based tenants that crossed their threshold.
	ListAll(ctx context.Context) ([]*models.Override, error)

	// Create fails with ErrOverrideAlreadyExists when an override for the
	// same (flow, tenant) pair exists.
	Create(ctx context.Context, override *models.Override) error
	Update(ctx context.Context, override *models.Override) error
	Delete(ctx context.Context, flowID, tenantID string) error
}

type StatusRepository interface {
	Get(ctx context.Context, key models.StatusKey) (*models.TaskStatus, error)

	// Upsert is idempotent: writing the same (key, status) twice leaves a
	// single row with identical stored state.
	Upsert(ctx context.Context, status *models.TaskStatus) error

	// ListByScope returns statuses for a flow and tenant; userID narrows to
	// one user when non-empty.
	ListByScope(ctx context.Context, flowID, tenantID, userID string) ([]*models.TaskStatus, error)

	// CountByTask returns aggregated per-task totals for a flow, grouped at
	// the storage layer.
	CountByTask(ctx context.Context, flowID string, window TimeWindow) ([]models.TaskStatusCount, error)

	// ResetForUser removes all statuses and the wizard state for one
	// (tenant, user) pair and returns the number of status rows removed.
	// Implementations either apply the deletes atomically or report a
	// PartialResetError so the caller can retry.
	ResetForUser(ctx context.Context, tenantID, userID string) (int64, error)

	// ResetForTenant removes all statuses, user states, and the workspace
	// state for a tenant across users.
	ResetForTenant(ctx context.Context, tenantID string) (int64, error)
}

// StateRepository stores wizard state. Deletion happens only through the
// StatusRepository resets, which cover state rows alongside statuses.
type StateRepository interface {
	GetUserState(ctx context.Context, tenantID, userID string) (*models.UserState, error)
	SaveUserState(ctx context.Context, state *models.UserState) error

	GetWorkspaceState(ctx context.Context, tenantID string) (*models.WorkspaceState, error)
	SaveWorkspaceState(ctx context.Context, state *models.WorkspaceState) error
}

type EventRepository interface {
	// Append stores an interaction event. Events are write-once; there is no
	// update or delete path.
	Append(ctx context.Context, event *models.InteractionEvent) error

	// SeenTypes returns the distinct interaction types observed for a
	// (tenant, user) pair.
	SeenTypes(ctx context.Context, tenantID, userID string) ([]models.InteractionType, error)

	// CountByTaskAndType returns per-(task, type) event counts for a flow,
	// grouped at the storage layer.
	CountByTaskAndType(ctx context.Context, flowID string, window TimeWindow) ([]models.TaskEventCount, error)

	// AvgTimeSpent returns the mean recorded time_spent_seconds per task.
	AvgTimeSpent(ctx context.Context, flowID string, window TimeWindow) ([]models.TaskTimeSpent, error)

	// ListRecent returns a tenant's most recent events, newest first,
	// bounded by limit.
	ListRecent(ctx context.Context, tenantID string, limit int) ([]*models.InteractionEvent, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*models.AuditEntry, error)
}
