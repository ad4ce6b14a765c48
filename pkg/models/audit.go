package models

import "time"

// Audit actions recorded by administrative operations.
const (
	AuditActionResetUser     = "onboarding.reset.user"
	AuditActionResetTenant   = "onboarding.reset.tenant"
	AuditActionFlowPublished = "onboarding.flow.published"
)

// AuditEntry records an administrative action against tenant onboarding data.
type AuditEntry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"    validate:"required"`
	TenantID  string         `json:"tenant_id" validate:"required"`
	UserID    string         `json:"user_id,omitempty"`
	Actor     string         `json:"actor"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
