package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

// OverrideRepository handles tenant override file operations. Overrides are
// stored one file per (flow, tenant) pair, which makes the uniqueness
// constraint structural.
type OverrideRepository struct {
	root string
}

// NewOverrideRepository creates a new override repository.
func NewOverrideRepository(root string) *OverrideRepository {
	return &OverrideRepository{root: root}
}

func (or *OverrideRepository) filePath(flowID, tenantID string) string {
	return filepath.Clean(path.Join(or.root, "overrides", flowID+"__"+tenantID+".json"))
}

// GetByFlowAndTenant retrieves the override for a (flow, tenant) pair.
func (or *OverrideRepository) GetByFlowAndTenant(_ context.Context, flowID, tenantID string) (*models.Override, error) {
	body, err := os.ReadFile(or.filePath(flowID, tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrOverrideNotFound
		}

		return nil, fmt.Errorf("failed to fetch override %s/%s: %w", flowID, tenantID, err)
	}

	var override models.Override

	if err := json.Unmarshal(body, &override); err != nil {
		return nil, fmt.Errorf("failed to unmarshal override %s/%s: %w", flowID, tenantID, err)
	}

	return &override, nil
}

// ListByTenant returns every override configured for a tenant.
func (or *OverrideRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.Override, error) {
	root := os.DirFS(or.root + "/overrides")

	jsonFiles, err := fs.Glob(root, "*__"+tenantID+".json")
	if err != nil {
		return nil, fmt.Errorf("failed to list override files: %w", err)
	}

	overrides := make([]*models.Override, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		flowID := strings.TrimSuffix(file, "__"+tenantID+".json")

		override, err := or.GetByFlowAndTenant(ctx, flowID, tenantID)
		if err != nil {
			return nil, err
		}

		overrides = append(overrides, override)
	}

	return overrides, nil
}

// ListAll returns every override across tenants. Used by the activation
// sweep.
func (or *OverrideRepository) ListAll(_ context.Context) ([]*models.Override, error) {
	root := os.DirFS(or.root + "/overrides")

	jsonFiles, err := fs.Glob(root, "*__*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list override files: %w", err)
	}

	overrides := make([]*models.Override, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		body, err := os.ReadFile(filepath.Clean(path.Join(or.root, "overrides", file)))
		if err != nil {
			return nil, fmt.Errorf("failed to read override file %s: %w", file, err)
		}

		var override models.Override

		if err := json.Unmarshal(body, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal override file %s: %w", file, err)
		}

		overrides = append(overrides, &override)
	}

	return overrides, nil
}

// Create stores a new override, failing when one exists for the pair.
func (or *OverrideRepository) Create(ctx context.Context, override *models.Override) error {
	if _, err := os.Stat(or.filePath(override.FlowID, override.TenantID)); err == nil {
		return persistence.ErrOverrideAlreadyExists
	}

	return or.write(override)
}

// Update replaces an existing override.
func (or *OverrideRepository) Update(_ context.Context, override *models.Override) error {
	if _, err := os.Stat(or.filePath(override.FlowID, override.TenantID)); os.IsNotExist(err) {
		return persistence.ErrOverrideNotFound
	}

	return or.write(override)
}

func (or *OverrideRepository) write(override *models.Override) error {
	if err := os.MkdirAll(or.root+"/overrides", 0750); err != nil {
		return fmt.Errorf("failed to create overrides directory: %w", err)
	}

	now := time.Now().UTC()
	if override.CreatedAt.IsZero() {
		override.CreatedAt = now
	}

	override.UpdatedAt = now

	data, err := json.MarshalIndent(override, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal override %s: %w", override.ID, err)
	}

	return os.WriteFile(or.filePath(override.FlowID, override.TenantID), data, 0600)
}

// Delete removes the override for a (flow, tenant) pair.
func (or *OverrideRepository) Delete(_ context.Context, flowID, tenantID string) error {
	err := os.Remove(or.filePath(flowID, tenantID))
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete override %s/%s: %w", flowID, tenantID, err)
	}

	return nil
}
