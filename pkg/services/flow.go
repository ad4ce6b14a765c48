package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

var (
	// ErrFlowNotFound is returned when a flow is not found.
	ErrFlowNotFound = persistence.ErrFlowNotFound
)

type Flow struct {
	persistence persistence.Persistence
}

// NewFlow creates a new flow service.
func NewFlow(persistence persistence.Persistence) *Flow {
	return &Flow{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (f *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if f.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := f.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListFlowsRequest contains options for listing flows.
type ListFlowsRequest struct {
	// Pagination
	Limit  int `validate:"min=1,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	OwnerID  string
	TenantID string
	Status   *models.FlowStatus
	Scope    *models.FlowScope

	// Sorting
	SortBy    string `validate:"oneof=created_at updated_at published_at name"`
	SortOrder string `validate:"oneof=asc desc"`
}

// ListFlowsResponse contains the result of listing flows.
type ListFlowsResponse struct {
	Flows       []*models.Flow `json:"flows"`
	TotalCount  int64          `json:"total_count"`
	HasNextPage bool           `json:"has_next_page"`
}

// ListFlows retrieves flows with filtering, sorting, and pagination.
func (f *Flow) ListFlows(ctx context.Context, req ListFlowsRequest) (*ListFlowsResponse, error) {
	if err := f.validateListFlowsRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	opts := persistence.ListFlowsOptions{
		Limit:     req.Limit,
		Offset:    req.Offset,
		OwnerID:   req.OwnerID,
		TenantID:  req.TenantID,
		Status:    req.Status,
		Scope:     req.Scope,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}

	result, err := f.persistence.FlowRepository().ListFlows(ctx, opts)
	if err != nil {
		if persistence.IsInvalidSortField(err) {
			return nil, ErrInvalidSortField
		}

		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	return &ListFlowsResponse{
		Flows:       result.Flows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// validateListFlowsRequest validates and sets defaults for the request.
func (f *Flow) validateListFlowsRequest(req *ListFlowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at", "published_at", "name"}

	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListFlowsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListFlowsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.Status != nil {
		allowedStatuses := []models.FlowStatus{
			models.FlowStatusDraft,
			models.FlowStatusPublished,
			models.FlowStatusUnpublished,
		}

		if !slices.Contains(allowedStatuses, *req.Status) {
			return NewValidationError(
				"validateListFlowsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	if req.Scope != nil && *req.Scope != models.FlowScopeGlobal && *req.Scope != models.FlowScopeTenant {
		return NewValidationError(
			"validateListFlowsRequest",
			"INVALID_SCOPE",
			fmt.Sprintf("invalid scope '%s'", *req.Scope),
			ErrInvalidScope,
		)
	}

	return nil
}

// FetchByID retrieves a flow by its ID.
func (f *Flow) FetchByID(ctx context.Context, id string) (*models.Flow, error) {
	flow, err := f.persistence.FlowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if flow == nil {
		return nil, ErrFlowNotFound
	}

	return flow, nil
}

// Create adds a new flow to the repository as a draft.
func (f *Flow) Create(ctx context.Context, flow *models.Flow) (*models.Flow, error) {
	if flow == nil {
		return nil, ErrFlowNil
	}

	if flow.Scope == models.FlowScopeTenant && flow.TenantID == "" {
		return nil, ErrTenantScopeRequiresID
	}

	now := time.Now().UTC()
	flow.ID = uuid.New().String()
	flow.CreatedAt = now
	flow.UpdatedAt = now
	flow.Version = 1
	flow.PublishedAt = nil

	// New flows always start as drafts; publishing is a separate operation.
	flow.Status = models.FlowStatusDraft

	if flow.FlowGroupID == "" {
		flow.FlowGroupID = uuid.New().String()
	}

	if flow.Scope == "" {
		flow.Scope = models.FlowScopeGlobal
	}

	err := f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow: %w", err)
	}

	return flow, nil
}

// CreateFromConfig validates a raw flow configuration document against the
// flow schema and creates a draft from it.
func (f *Flow) CreateFromConfig(ctx context.Context, document []byte) (*models.Flow, error) {
	if err := models.ValidateFlowConfig(document); err != nil {
		return nil, NewValidationError(
			"CreateFromConfig",
			"INVALID_FLOW_CONFIG",
			err.Error(),
			ErrInvalidFlowConfig,
		)
	}

	var flow models.Flow
	if err := json.Unmarshal(document, &flow); err != nil {
		return nil, NewValidationError(
			"CreateFromConfig",
			"INVALID_FLOW_CONFIG",
			err.Error(),
			ErrInvalidFlowConfig,
		)
	}

	return f.Create(ctx, &flow)
}

// Update modifies an existing flow by its ID. Only drafts can be modified;
// published versions change through the publish cycle.
func (f *Flow) Update(
	ctx context.Context,
	flowID string,
	flow *models.Flow,
) (*models.Flow, error) {
	existing, err := f.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return nil, ErrFlowNotFound
	}

	switch existing.Status {
	case models.FlowStatusPublished:
		return nil, ErrCannotModifyPublished
	case models.FlowStatusUnpublished:
		return nil, ErrCannotModifyUnpublished
	}

	flow.ID = flowID
	flow.FlowGroupID = existing.FlowGroupID
	flow.Status = existing.Status
	flow.Version = existing.Version
	flow.CreatedAt = existing.CreatedAt
	flow.UpdatedAt = time.Now().UTC()
	flow.PublishedAt = existing.PublishedAt

	err = f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to update flow: %w", err)
	}

	return flow, nil
}

// Delete removes a flow by its ID. Published flows cannot be deleted while
// they are live.
func (f *Flow) Delete(ctx context.Context, flowID string) error {
	existing, err := f.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return err
	}

	if existing == nil {
		return ErrFlowNotFound
	}

	if existing.Status == models.FlowStatusPublished {
		return ErrCannotDeletePublished
	}

	err = f.persistence.FlowRepository().Delete(ctx, flowID)
	if err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}

	return nil
}
