package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
)

// StateRepository handles user and workspace wizard state database operations.
type StateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStateRepository creates a new state repository.
func NewStateRepository(db *sql.DB, logger *slog.Logger) *StateRepository {
	return &StateRepository{db: db, logger: logger}
}

// GetUserState retrieves wizard state for a user, nil when none exists.
func (r *StateRepository) GetUserState(ctx context.Context, tenantID, userID string) (*models.UserState, error) {
	query := `
		SELECT tenant_id, user_id, wizard_shown_at, dismissed_at, created_at, updated_at
		FROM user_states
		WHERE tenant_id = $1 AND user_id = $2
	`

	var state models.UserState

	err := r.db.QueryRowContext(ctx, query, tenantID, userID).Scan(
		&state.TenantID,
		&state.UserID,
		&state.WizardShownAt,
		&state.DismissedAt,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan user state: %w", err)
	}

	return &state, nil
}

// SaveUserState upserts wizard state for a user.
func (r *StateRepository) SaveUserState(ctx context.Context, state *models.UserState) error {
	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}

	state.UpdatedAt = now

	query := `
		INSERT INTO user_states (tenant_id, user_id, wizard_shown_at, dismissed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			wizard_shown_at = EXCLUDED.wizard_shown_at,
			dismissed_at = EXCLUDED.dismissed_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		state.TenantID,
		state.UserID,
		state.WizardShownAt,
		state.DismissedAt,
		state.CreatedAt,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save user state: %w", err)
	}

	return nil
}

// GetWorkspaceState retrieves tenant-wide state, nil when none exists.
func (r *StateRepository) GetWorkspaceState(ctx context.Context, tenantID string) (*models.WorkspaceState, error) {
	query := `
		SELECT tenant_id, activated_at, completed_at, integration_preference, created_at, updated_at
		FROM workspace_states
		WHERE tenant_id = $1
	`

	var state models.WorkspaceState

	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&state.TenantID,
		&state.ActivatedAt,
		&state.CompletedAt,
		&state.IntegrationPreference,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan workspace state: %w", err)
	}

	return &state, nil
}

// SaveWorkspaceState upserts tenant-wide state.
func (r *StateRepository) SaveWorkspaceState(ctx context.Context, state *models.WorkspaceState) error {
	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}

	state.UpdatedAt = now

	query := `
		INSERT INTO workspace_states (tenant_id, activated_at, completed_at, integration_preference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE SET
			activated_at = EXCLUDED.activated_at,
			completed_at = EXCLUDED.completed_at,
			integration_preference = EXCLUDED.integration_preference,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		state.TenantID,
		state.ActivatedAt,
		state.CompletedAt,
		state.IntegrationPreference,
		state.CreatedAt,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workspace state: %w", err)
	}

	return nil
}
