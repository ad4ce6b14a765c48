package services

import (
	"context"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

// Audit exposes the administrative audit trail.
type Audit struct {
	persistence persistence.Persistence
}

// NewAudit creates a new audit service.
func NewAudit(persistence persistence.Persistence) *Audit {
	return &Audit{
		persistence: persistence,
	}
}

// ListByTenant returns recent audit entries for a tenant, newest first.
func (a *Audit) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*models.AuditEntry, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return a.persistence.AuditRepository().ListByTenant(ctx, tenantID, limit)
}
