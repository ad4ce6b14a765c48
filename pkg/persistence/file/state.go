package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
)

// StateRepository handles user and workspace wizard state file operations.
type StateRepository struct {
	root string
}

// NewStateRepository creates a new state repository.
func NewStateRepository(root string) *StateRepository {
	return &StateRepository{root: root}
}

func (sr *StateRepository) userPath(tenantID, userID string) string {
	return filepath.Clean(path.Join(sr.root, "user_states", tenantID+"__"+userID+".json"))
}

func (sr *StateRepository) workspacePath(tenantID string) string {
	return filepath.Clean(path.Join(sr.root, "workspace_states", tenantID+".json"))
}

// GetUserState retrieves wizard state for a user, nil when none exists.
func (sr *StateRepository) GetUserState(_ context.Context, tenantID, userID string) (*models.UserState, error) {
	body, err := os.ReadFile(sr.userPath(tenantID, userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch user state %s/%s: %w", tenantID, userID, err)
	}

	var state models.UserState

	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user state %s/%s: %w", tenantID, userID, err)
	}

	return &state, nil
}

// SaveUserState writes wizard state for a user.
func (sr *StateRepository) SaveUserState(_ context.Context, state *models.UserState) error {
	if err := os.MkdirAll(sr.root+"/user_states", 0750); err != nil {
		return fmt.Errorf("failed to create user_states directory: %w", err)
	}

	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}

	state.UpdatedAt = now

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user state: %w", err)
	}

	return os.WriteFile(sr.userPath(state.TenantID, state.UserID), data, 0600)
}

// GetWorkspaceState retrieves tenant-wide state, nil when none exists.
func (sr *StateRepository) GetWorkspaceState(_ context.Context, tenantID string) (*models.WorkspaceState, error) {
	body, err := os.ReadFile(sr.workspacePath(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch workspace state %s: %w", tenantID, err)
	}

	var state models.WorkspaceState

	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workspace state %s: %w", tenantID, err)
	}

	return &state, nil
}

// SaveWorkspaceState writes tenant-wide state.
func (sr *StateRepository) SaveWorkspaceState(_ context.Context, state *models.WorkspaceState) error {
	if err := os.MkdirAll(sr.root+"/workspace_states", 0750); err != nil {
		return fmt.Errorf("failed to create workspace_states directory: %w", err)
	}

	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}

	state.UpdatedAt = now

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workspace state: %w", err)
	}

	return os.WriteFile(sr.workspacePath(state.TenantID), data, 0600)
}

