package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
	"github.com/google/uuid"
)

// FlowRepository handles flow-related database operations.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

const flowColumns = `
	id
  , flow_group_id
  , name
  , description
  , version
  , status
  , scope
  , tenant_id
  , categories
  , metadata
  , owner
  , created_at
  , updated_at
  , published_at
  , deleted_at
`

// ListFlows returns paginated and filtered flows.
func (r *FlowRepository) ListFlows(ctx context.Context, opts persistence.ListFlowsOptions) (*persistence.FlowListResult, error) {
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

	sortOrder := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		sortOrder = "ASC"
	}

	conditions := []string{"deleted_at IS NULL"}
	args := make([]any, 0)

	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if opts.OwnerID != "" {
		addCondition("owner = $%d", opts.OwnerID)
	}

	if opts.TenantID != "" {
		addCondition("tenant_id = $%d", opts.TenantID)
	}

	if opts.Status != nil {
		addCondition("status = $%d", string(*opts.Status))
	}

	if opts.Scope != nil {
		addCondition("scope = $%d", string(*opts.Scope))
	}

	where := strings.Join(conditions, " AND ")

	var totalCount int64

	countQuery := "SELECT COUNT(*) FROM flows WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count flows: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM flows WHERE %s ORDER BY %s %s NULLS LAST LIMIT $%d OFFSET $%d",
		flowColumns, where, opts.SortBy, sortOrder, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := r.scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return &persistence.FlowListResult{
		Flows:       flows,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(flows)) < totalCount,
	}, nil
}

// GetByID retrieves a flow by its ID, nil when not found.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	query := "SELECT " + flowColumns + " FROM flows WHERE id = $1 AND deleted_at IS NULL"

	flow, err := r.scanFlow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}

	return flow, nil
}

// Save upserts a flow.
func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	if flow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate flow ID: %w", err)
		}

		flow.ID = id.String()
	}

	categoriesJSON, err := json.Marshal(flow.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}

	metadataJSON, err := json.Marshal(flow.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO flows (id, flow_group_id, name, description, version,
status, scope, tenant_id, categories, metadata, owner, created_at, updated_at, published_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			version = EXCLUDED.version,
			status = EXCLUDED.status,
			scope = EXCLUDED.scope,
			tenant_id = EXCLUDED.tenant_id,
			categories = EXCLUDED.categories,
			metadata = EXCLUDED.metadata,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID,
		flow.FlowGroupID,
		flow.Name,
		flow.Description,
		flow.Version,
		flow.Status,
		flow.Scope,
		flow.TenantID,
		categoriesJSON,
		metadataJSON,
		flow.Owner,
		flow.CreatedAt,
		flow.UpdatedAt,
		flow.PublishedAt,
		flow.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}

	return nil
}

// Delete soft deletes a flow by setting deleted_at timestamp.
func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE flows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}

	return nil
}

// GetPublishedFlow returns the published flow for a scope. The published_at
// ordering keeps the result deterministic even if the single-published
// invariant is ever violated by out-of-band writes.
func (r *FlowRepository) GetPublishedFlow(ctx context.Context, scope models.FlowScope, tenantID string) (*models.Flow, error) {
	query := "SELECT " + flowColumns + `
		FROM flows
		WHERE deleted_at IS NULL
		  AND status = 'published'
		  AND scope = $1
		  AND ($2 = '' OR tenant_id = $2)
		ORDER BY published_at DESC NULLS LAST
		LIMIT 1
	`

	if scope == models.FlowScopeGlobal {
		tenantID = ""
	}

	flow, err := r.scanFlow(r.db.QueryRowContext(ctx, query, scope, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrPublishedFlowNotFound
		}

		return nil, fmt.Errorf("failed to scan published flow: %w", err)
	}

	return flow, nil
}

// GetDraftFlow returns the draft version of a flow group.
func (r *FlowRepository) GetDraftFlow(ctx context.Context, flowGroupID string) (*models.Flow, error) {
	query := "SELECT " + flowColumns + `
		FROM flows
		WHERE deleted_at IS NULL
		  AND status = 'draft'
		  AND flow_group_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	flow, err := r.scanFlow(r.db.QueryRowContext(ctx, query, flowGroupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowGroupError("GetDraftFlow", flowGroupID, persistence.ErrDraftFlowNotFound)
		}

		return nil, fmt.Errorf("failed to scan draft flow: %w", err)
	}

	return flow, nil
}

// PublishFlow publishes a flow, bumping its version and unpublishing the
// current occupant of the same scope slot, all in one transaction.
func (r *FlowRepository) PublishFlow(ctx context.Context, id string) error {
	flow, err := r.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get flow: %w", err)
	}

	if flow == nil {
		return persistence.NewFlowError("PublishFlow", id, persistence.ErrFlowNotFound)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	unpublish := `
		UPDATE flows SET status = 'unpublished', updated_at = NOW()
		WHERE deleted_at IS NULL
		  AND status = 'published'
		  AND scope = $1
		  AND tenant_id = $2
		  AND id != $3
	`

	_, err = tx.ExecContext(ctx, unpublish, flow.Scope, flow.TenantID, flow.ID)
	if err != nil {
		return fmt.Errorf("failed to unpublish current flow: %w", err)
	}

	publish := `
		UPDATE flows SET status = 'published', version = version + 1,
			published_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	_, err = tx.ExecContext(ctx, publish, flow.ID)
	if err != nil {
		return fmt.Errorf("failed to publish flow: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CreateDraftFromPublished creates a draft copy from the published version.
func (r *FlowRepository) CreateDraftFromPublished(ctx context.Context, flowGroupID string) (*models.Flow, error) {
	existing, err := r.GetDraftFlow(ctx, flowGroupID)
	if err == nil {
		return existing, nil
	}

	if !persistence.IsDraftFlowNotFound(err) {
		return nil, fmt.Errorf("failed to check existing draft: %w", err)
	}

	query := "SELECT " + flowColumns + `
		FROM flows
		WHERE deleted_at IS NULL
		  AND status = 'published'
		  AND flow_group_id = $1
		ORDER BY published_at DESC NULLS LAST
		LIMIT 1
	`

	published, err := r.scanFlow(r.db.QueryRowContext(ctx, query, flowGroupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowGroupError("CreateDraftFromPublished", flowGroupID, persistence.ErrPublishedFlowNotFound)
		}

		return nil, fmt.Errorf("failed to scan published flow: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate draft flow ID: %w", err)
	}

	draft := *published
	draft.ID = id.String()
	draft.Status = models.FlowStatusDraft
	draft.CreatedAt = time.Time{}
	draft.PublishedAt = nil

	if err := r.Save(ctx, &draft); err != nil {
		return nil, fmt.Errorf("failed to save draft flow: %w", err)
	}

	return &draft, nil
}

func (r *FlowRepository) scanFlow(scanner interface {
	Scan(dest ...any) error
}) (*models.Flow, error) {
	var (
		flow                         models.Flow
		categoriesJSON, metadataJSON []byte
	)

	err := scanner.Scan(
		&flow.ID,
		&flow.FlowGroupID,
		&flow.Name,
		&flow.Description,
		&flow.Version,
		&flow.Status,
		&flow.Scope,
		&flow.TenantID,
		&categoriesJSON,
		&metadataJSON,
		&flow.Owner,
		&flow.CreatedAt,
		&flow.UpdatedAt,
		&flow.PublishedAt,
		&flow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if categoriesJSON != nil {
		if err := json.Unmarshal(categoriesJSON, &flow.Categories); err != nil {
			return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
		}
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &flow.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &flow, nil
}
