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
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/google/uuid"
)

// AuditRepository handles audit log file operations.
type AuditRepository struct {
	root string
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(root string) *AuditRepository {
	return &AuditRepository{root: root}
}

// Append stores an audit entry.
func (ar *AuditRepository) Append(_ context.Context, entry *models.AuditEntry) error {
	if err := os.MkdirAll(ar.root+"/audit", 0750); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate audit entry ID: %w", err)
		}

		entry.ID = id.String()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry %s: %w", entry.ID, err)
	}

	filePath := filepath.Clean(path.Join(ar.root, "audit", entry.ID+".json"))

	return os.WriteFile(filePath, data, 0600)
}

// ListByTenant returns recent audit entries for a tenant, newest first.
func (ar *AuditRepository) ListByTenant(_ context.Context, tenantID string, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	root := os.DirFS(ar.root + "/audit")

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list audit files: %w", err)
	}

	entries := make([]*models.AuditEntry, 0)

	for _, file := range jsonFiles {
		body, err := os.ReadFile(filepath.Clean(path.Join(ar.root, "audit", file)))
		if err != nil {
			return nil, fmt.Errorf("failed to read audit entry %s: %w", file, err)
		}

		var entry models.AuditEntry

		if err := json.Unmarshal(body, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit entry %s: %w", file, err)
		}

		if entry.TenantID == tenantID {
			entries = append(entries, &entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}
