package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

// FlowRepository handles flow-related file operations.
type FlowRepository struct {
	root string
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(root string) *FlowRepository {
	return &FlowRepository{root: root}
}

// ListFlows returns paginated and filtered flows with in-memory operations.
func (fr *FlowRepository) ListFlows(ctx context.Context, opts persistence.ListFlowsOptions) (*persistence.FlowListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at":   true,
		"updated_at":   true,
		"published_at": true,
		"name":         true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	root := os.DirFS(fr.root + "/flows")

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list flow files: %w", err)
	}

	allFlows := make([]*models.Flow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		flowID := file[:len(file)-5] // Remove .json extension

		flow, err := fr.GetByID(ctx, flowID)
		if err != nil {
			return nil, fmt.Errorf("failed to load flow %s: %w", flowID, err)
		}

		if flow != nil {
			allFlows = append(allFlows, flow)
		}
	}

	filtered := make([]*models.Flow, 0)

	for _, flow := range allFlows {
		if opts.OwnerID != "" && flow.Owner != opts.OwnerID {
			continue
		}

		if opts.TenantID != "" && flow.TenantID != opts.TenantID {
			continue
		}

		if opts.Status != nil && flow.Status != *opts.Status {
			continue
		}

		if opts.Scope != nil && flow.Scope != *opts.Scope {
			continue
		}

		filtered = append(filtered, flow)
	}

	fr.sortFlows(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))
	startIdx := opts.Offset
	endIdx := opts.Offset + opts.Limit

	if startIdx >= len(filtered) {
		return &persistence.FlowListResult{
			Flows:       make([]*models.Flow, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	if endIdx > len(filtered) {
		endIdx = len(filtered)
	}

	return &persistence.FlowListResult{
		Flows:       filtered[startIdx:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(filtered),
	}, nil
}

// sortFlows sorts flows in-place based on the specified field and order.
func (fr *FlowRepository) sortFlows(flows []*models.Flow, sortBy, sortOrder string) {
	sort.Slice(flows, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "updated_at":
			less = flows[i].UpdatedAt.Before(flows[j].UpdatedAt)
		case "published_at":
			less = publishedAtOrZero(flows[i]).Before(publishedAtOrZero(flows[j]))
		case "name":
			less = flows[i].Name < flows[j].Name
		default:
			less = flows[i].CreatedAt.Before(flows[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

func publishedAtOrZero(flow *models.Flow) time.Time {
	if flow.PublishedAt == nil {
		return time.Time{}
	}

	return *flow.PublishedAt
}

// GetByID retrieves a flow by its ID from the file system. Soft-deleted
// flows are treated as not found, matching the PostgreSQL implementation.
func (fr *FlowRepository) GetByID(ctx context.Context, flowID string) (*models.Flow, error) {
	flow, err := fr.readFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if flow == nil || flow.DeletedAt != nil {
		return nil, nil
	}

	return flow, nil
}

// readFlow loads the raw record, soft-deleted or not.
func (fr *FlowRepository) readFlow(_ context.Context, flowID string) (*models.Flow, error) {
	filePath := filepath.Clean(path.Join(fr.root, "flows", flowID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch flow %s: %w", flowID, err)
	}

	var flow models.Flow

	err = json.Unmarshal(body, &flow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow %s: %w", flowID, err)
	}

	return &flow, nil
}

// Save saves a flow to the file system.
func (fr *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	err := os.MkdirAll(fr.root+"/flows", 0750)
	if err != nil {
		return fmt.Errorf("failed to create flows directory: %w", err)
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flow %s: %w", flow.ID, err)
	}

	filePath := path.Join(fr.root+"/flows", flow.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// Delete soft deletes a flow by setting its deleted_at timestamp.
func (fr *FlowRepository) Delete(ctx context.Context, id string) error {
	flow, err := fr.readFlow(ctx, id)
	if err != nil {
		return err
	}

	if flow == nil || flow.DeletedAt != nil {
		return nil
	}

	now := time.Now().UTC()
	flow.DeletedAt = &now

	return fr.Save(ctx, flow)
}

// GetPublishedFlow returns the published flow for a scope. When more than one
// published flow exists the most recently published wins, so the selection is
// deterministic regardless of file listing order.
func (fr *FlowRepository) GetPublishedFlow(ctx context.Context, scope models.FlowScope, tenantID string) (*models.Flow, error) {
	status := models.FlowStatusPublished

	opts := persistence.ListFlowsOptions{
		Limit:  100,
		Status: &status,
		Scope:  &scope,
	}
	if scope == models.FlowScopeTenant {
		opts.TenantID = tenantID
	}

	result, err := fr.ListFlows(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	var current *models.Flow

	for _, flow := range result.Flows {
		if current == nil || publishedAtOrZero(flow).After(publishedAtOrZero(current)) {
			current = flow
		}
	}

	if current == nil {
		return nil, persistence.ErrPublishedFlowNotFound
	}

	return current, nil
}

// GetDraftFlow returns the draft version of a flow group.
func (fr *FlowRepository) GetDraftFlow(ctx context.Context, flowGroupID string) (*models.Flow, error) {
	result, err := fr.ListFlows(ctx, persistence.ListFlowsOptions{
		Limit:     100,
		SortBy:    "created_at",
		SortOrder: "desc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	var latestDraft *models.Flow

	for _, flow := range result.Flows {
		if flow.FlowGroupID == flowGroupID && flow.Status == models.FlowStatusDraft {
			if latestDraft == nil || flow.CreatedAt.After(latestDraft.CreatedAt) {
				latestDraft = flow
			}
		}
	}

	if latestDraft == nil {
		return nil, persistence.NewFlowGroupError("GetDraftFlow", flowGroupID, persistence.ErrDraftFlowNotFound)
	}

	return latestDraft, nil
}

// PublishFlow publishes a flow and unpublishes any other published flow in
// the same scope. File persistence applies the writes sequentially; the
// PostgreSQL implementation does this in one transaction.
func (fr *FlowRepository) PublishFlow(ctx context.Context, flowID string) error {
	flow, err := fr.GetByID(ctx, flowID)
	if err != nil {
		return fmt.Errorf("failed to get flow: %w", err)
	}

	if flow == nil {
		return persistence.NewFlowError("PublishFlow", flowID, persistence.ErrFlowNotFound)
	}

	result, err := fr.ListFlows(ctx, persistence.ListFlowsOptions{Limit: 100})
	if err != nil {
		return fmt.Errorf("failed to list flows: %w", err)
	}

	// Unpublish every other published flow occupying the same scope slot.
	for _, other := range result.Flows {
		if other.ID == flow.ID || other.Status != models.FlowStatusPublished {
			continue
		}

		sameSlot := other.Scope == flow.Scope &&
			(flow.Scope == models.FlowScopeGlobal || other.TenantID == flow.TenantID)
		if !sameSlot {
			continue
		}

		other.Status = models.FlowStatusUnpublished
		if err := fr.Save(ctx, other); err != nil {
			return fmt.Errorf("failed to unpublish flow %s: %w", other.ID, err)
		}
	}

	now := time.Now().UTC()
	flow.Status = models.FlowStatusPublished
	flow.Version++
	flow.PublishedAt = &now

	return fr.Save(ctx, flow)
}

// CreateDraftFromPublished creates a draft copy from the published version.
func (fr *FlowRepository) CreateDraftFromPublished(ctx context.Context, flowGroupID string) (*models.Flow, error) {
	existingDraft, err := fr.GetDraftFlow(ctx, flowGroupID)
	if err == nil {
		return existingDraft, nil
	}

	if !persistence.IsDraftFlowNotFound(err) {
		return nil, fmt.Errorf("failed to check existing draft: %w", err)
	}

	result, err := fr.ListFlows(ctx, persistence.ListFlowsOptions{Limit: 100})
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	var published *models.Flow

	for _, flow := range result.Flows {
		if flow.FlowGroupID == flowGroupID && flow.Status == models.FlowStatusPublished {
			if published == nil || publishedAtOrZero(flow).After(publishedAtOrZero(published)) {
				published = flow
			}
		}
	}

	if published == nil {
		return nil, persistence.NewFlowGroupError("CreateDraftFromPublished", flowGroupID, persistence.ErrPublishedFlowNotFound)
	}

	draft := *published
	draft.ID = flowGroupID + "-draft-" + strconv.FormatInt(time.Now().Unix(), 10)
	draft.Status = models.FlowStatusDraft
	draft.CreatedAt = time.Now().UTC()
	draft.UpdatedAt = time.Now().UTC()
	draft.PublishedAt = nil

	if err := fr.Save(ctx, &draft); err != nil {
		return nil, fmt.Errorf("failed to save draft flow: %w", err)
	}

	return &draft, nil
}
