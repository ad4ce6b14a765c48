package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// OverrideRepository handles tenant override database operations.
type OverrideRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewOverrideRepository creates a new override repository.
func NewOverrideRepository(db *sql.DB, logger *slog.Logger) *OverrideRepository {
	return &OverrideRepository{db: db, logger: logger}
}

const overrideColumns = `
	id
  , flow_id
  , tenant_id
  , enabled
  , gating
  , activation
  , task_overrides
  , integration_preference
  , task_order
  , created_at
  , updated_at
`

// GetByFlowAndTenant retrieves the override for a (flow, tenant) pair.
func (r *OverrideRepository) GetByFlowAndTenant(ctx context.Context, flowID, tenantID string) (*models.Override, error) {
	query := "SELECT " + overrideColumns + " FROM overrides WHERE flow_id = $1 AND tenant_id = $2"

	override, err := r.scanOverride(r.db.QueryRowContext(ctx, query, flowID, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrOverrideNotFound
		}

		return nil, fmt.Errorf("failed to scan override: %w", err)
	}

	return override, nil
}

// ListByTenant returns every override configured for a tenant.
func (r *OverrideRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.Override, error) {
	query := "SELECT " + overrideColumns + " FROM overrides WHERE tenant_id = $1 ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	overrides := make([]*models.Override, 0)

	for rows.Next() {
		override, err := r.scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}

		overrides = append(overrides, override)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating overrides: %w", err)
	}

	return overrides, nil
}

// ListAll returns every override across tenants. Used by the activation
// sweep.
func (r *OverrideRepository) ListAll(ctx context.Context) ([]*models.Override, error) {
	query := "SELECT " + overrideColumns + " FROM overrides ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	overrides := make([]*models.Override, 0)

	for rows.Next() {
		override, err := r.scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}

		overrides = append(overrides, override)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating overrides: %w", err)
	}

	return overrides, nil
}

// Create stores a new override. The unique constraint on (flow_id, tenant_id)
// rejects duplicates.
func (r *OverrideRepository) Create(ctx context.Context, override *models.Override) error {
	now := time.Now().UTC()
	override.CreatedAt = now
	override.UpdatedAt = now

	if override.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate override ID: %w", err)
		}

		override.ID = id.String()
	}

	gatingJSON, activationJSON, taskOverridesJSON, taskOrderJSON, err := marshalOverrideFields(override)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO overrides (id, flow_id, tenant_id, enabled, gating, activation,
task_overrides, integration_preference, task_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		override.ID,
		override.FlowID,
		override.TenantID,
		override.Enabled,
		gatingJSON,
		activationJSON,
		taskOverridesJSON,
		override.IntegrationPreference,
		taskOrderJSON,
		override.CreatedAt,
		override.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return persistence.ErrOverrideAlreadyExists
		}

		return fmt.Errorf("failed to create override: %w", err)
	}

	return nil
}

// Update replaces an existing override for the (flow, tenant) pair.
func (r *OverrideRepository) Update(ctx context.Context, override *models.Override) error {
	override.UpdatedAt = time.Now().UTC()

	gatingJSON, activationJSON, taskOverridesJSON, taskOrderJSON, err := marshalOverrideFields(override)
	if err != nil {
		return err
	}

	query := `
		UPDATE overrides SET
			enabled = $3,
			gating = $4,
			activation = $5,
			task_overrides = $6,
			integration_preference = $7,
			task_order = $8,
			updated_at = $9
		WHERE flow_id = $1 AND tenant_id = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		override.FlowID,
		override.TenantID,
		override.Enabled,
		gatingJSON,
		activationJSON,
		taskOverridesJSON,
		override.IntegrationPreference,
		taskOrderJSON,
		override.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update override: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrOverrideNotFound
	}

	return nil
}

// Delete removes the override for a (flow, tenant) pair.
func (r *OverrideRepository) Delete(ctx context.Context, flowID, tenantID string) error {
	query := `DELETE FROM overrides WHERE flow_id = $1 AND tenant_id = $2`

	if _, err := r.db.ExecContext(ctx, query, flowID, tenantID); err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}

	return nil
}

func marshalOverrideFields(override *models.Override) (gating, activation, taskOverrides, taskOrder []byte, err error) {
	gating, err = json.Marshal(override.Gating)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal gating config: %w", err)
	}

	activation, err = json.Marshal(override.Activation)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal activation conditions: %w", err)
	}

	taskOverrides, err = json.Marshal(override.TaskOverrides)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal task overrides: %w", err)
	}

	taskOrder, err = json.Marshal(override.TaskOrder)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal task order: %w", err)
	}

	return gating, activation, taskOverrides, taskOrder, nil
}

func (r *OverrideRepository) scanOverride(scanner interface {
	Scan(dest ...any) error
}) (*models.Override, error) {
	var (
		override                                              models.Override
		gatingJSON, activationJSON, overridesJSON, orderJSON []byte
	)

	err := scanner.Scan(
		&override.ID,
		&override.FlowID,
		&override.TenantID,
		&override.Enabled,
		&gatingJSON,
		&activationJSON,
		&overridesJSON,
		&override.IntegrationPreference,
		&orderJSON,
		&override.CreatedAt,
		&override.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(gatingJSON, &override.Gating); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gating config: %w", err)
	}

	if err := json.Unmarshal(activationJSON, &override.Activation); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activation conditions: %w", err)
	}

	if err := json.Unmarshal(overridesJSON, &override.TaskOverrides); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task overrides: %w", err)
	}

	if err := json.Unmarshal(orderJSON, &override.TaskOrder); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task order: %w", err)
	}

	return &override, nil
}
