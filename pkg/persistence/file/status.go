package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

// StatusRepository handles task status file operations. One file per
// (flow, tenant, user, task) key keeps upserts idempotent by construction.
type StatusRepository struct {
	root string
}

// NewStatusRepository creates a new status repository.
func NewStatusRepository(root string) *StatusRepository {
	return &StatusRepository{root: root}
}

func statusFileName(key models.StatusKey) string {
	return key.FlowID + "__" + key.TenantID + "__" + key.UserID + "__" + key.TaskID + ".json"
}

func (sr *StatusRepository) filePath(key models.StatusKey) string {
	return filepath.Clean(path.Join(sr.root, "statuses", statusFileName(key)))
}

// Get retrieves a single status row.
func (sr *StatusRepository) Get(_ context.Context, key models.StatusKey) (*models.TaskStatus, error) {
	body, err := os.ReadFile(sr.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrStatusNotFound
		}

		return nil, fmt.Errorf("failed to fetch status %s: %w", statusFileName(key), err)
	}

	var status models.TaskStatus

	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status %s: %w", statusFileName(key), err)
	}

	return &status, nil
}

// Upsert writes a status row. Writing the same key and status twice leaves a
// single row with identical stored state.
func (sr *StatusRepository) Upsert(ctx context.Context, status *models.TaskStatus) error {
	if err := os.MkdirAll(sr.root+"/statuses", 0750); err != nil {
		return fmt.Errorf("failed to create statuses directory: %w", err)
	}

	now := time.Now().UTC()

	existing, err := sr.Get(ctx, status.Key())
	if err == nil {
		if existing.Status == status.Status {
			// Same key, same status: nothing changes.
			*status = *existing

			return nil
		}

		status.CreatedAt = existing.CreatedAt
	} else {
		status.CreatedAt = now
	}

	status.UpdatedAt = now

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	return os.WriteFile(sr.filePath(status.Key()), data, 0600)
}

// ListByScope returns statuses for a flow and tenant, narrowed to one user
// when userID is non-empty.
func (sr *StatusRepository) ListByScope(ctx context.Context, flowID, tenantID, userID string) ([]*models.TaskStatus, error) {
	pattern := flowID + "__" + tenantID + "__*.json"
	if userID != "" {
		pattern = flowID + "__" + tenantID + "__" + userID + "__*.json"
	}

	return sr.glob(pattern)
}

func (sr *StatusRepository) glob(pattern string) ([]*models.TaskStatus, error) {
	root := os.DirFS(sr.root + "/statuses")

	jsonFiles, err := fs.Glob(root, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list status files: %w", err)
	}

	statuses := make([]*models.TaskStatus, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		body, err := os.ReadFile(filepath.Clean(path.Join(sr.root, "statuses", file)))
		if err != nil {
			return nil, fmt.Errorf("failed to read status %s: %w", file, err)
		}

		var status models.TaskStatus

		if err := json.Unmarshal(body, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status %s: %w", file, err)
		}

		statuses = append(statuses, &status)
	}

	return statuses, nil
}

// CountByTask aggregates status rows per task for a flow.
func (sr *StatusRepository) CountByTask(_ context.Context, flowID string, window persistence.TimeWindow) ([]models.TaskStatusCount, error) {
	statuses, err := sr.glob(flowID + "__*.json")
	if err != nil {
		return nil, err
	}

	byTask := make(map[string]*models.TaskStatusCount)
	order := make([]string, 0)

	for _, status := range statuses {
		if !window.Contains(status.UpdatedAt) {
			continue
		}

		count, ok := byTask[status.TaskID]
		if !ok {
			count = &models.TaskStatusCount{TaskID: status.TaskID}
			byTask[status.TaskID] = count
			order = append(order, status.TaskID)
		}

		count.Total++

		if status.Status == models.TaskStateComplete {
			count.Complete++
		}
	}

	counts := make([]models.TaskStatusCount, 0, len(order))
	for _, taskID := range order {
		counts = append(counts, *byTask[taskID])
	}

	return counts, nil
}

// ResetForUser removes all status rows and the wizard state for one
// (tenant, user) pair. The deletes are applied file by file; a failure
// mid-sequence returns a PartialResetError so the caller knows a retry is
// needed. Each delete is idempotent, so retrying is safe. The returned count
// covers status rows only.
func (sr *StatusRepository) ResetForUser(_ context.Context, tenantID, userID string) (int64, error) {
	return sr.removeMatching("*__"+tenantID+"__"+userID+"__*.json", tenantID, userID)
}

// ResetForTenant removes all status rows, user states, and the workspace
// state for a tenant.
func (sr *StatusRepository) ResetForTenant(_ context.Context, tenantID string) (int64, error) {
	return sr.removeMatching("*__"+tenantID+"__*.json", tenantID, "")
}

func (sr *StatusRepository) removeMatching(pattern, tenantID, userID string) (int64, error) {
	root := os.DirFS(sr.root + "/statuses")

	jsonFiles, err := fs.Glob(root, pattern)
	if err != nil {
		return 0, fmt.Errorf("failed to list status files: %w", err)
	}

	targets := make([]string, 0, len(jsonFiles)+2)

	for _, file := range jsonFiles {
		targets = append(targets, path.Join("statuses", file))
	}

	stateFiles, err := sr.stateFiles(tenantID, userID)
	if err != nil {
		return 0, err
	}

	targets = append(targets, stateFiles...)

	var removed int64

	removedNames := make([]string, 0, len(targets))

	for i, file := range targets {
		err := os.Remove(filepath.Clean(path.Join(sr.root, file)))
		if err != nil && !os.IsNotExist(err) {
			return removed, &persistence.PartialResetError{
				TenantID: tenantID,
				UserID:   userID,
				Removed:  removedNames,
				Failed:   targets[i:],
				Err:      err,
			}
		}

		if err == nil {
			if path.Dir(file) == "statuses" {
				removed++
			}

			removedNames = append(removedNames, file)
		}
	}

	return removed, nil
}

// stateFiles lists the wizard state files a reset covers: one user state for
// a user-scoped reset, every user state plus the workspace state for a
// tenant-scoped one.
func (sr *StatusRepository) stateFiles(tenantID, userID string) ([]string, error) {
	if userID != "" {
		return []string{path.Join("user_states", tenantID+"__"+userID+".json")}, nil
	}

	files, err := fs.Glob(os.DirFS(sr.root+"/user_states"), tenantID+"__*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list user state files: %w", err)
	}

	states := make([]string, 0, len(files)+1)

	for _, file := range files {
		states = append(states, path.Join("user_states", file))
	}

	return append(states, path.Join("workspace_states", tenantID+".json")), nil
}
