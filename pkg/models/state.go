package models

import "time"

// UserState tracks whether the wizard has been shown or dismissed for one
// user. Deleted wholesale on reset.
type UserState struct {
	TenantID      string     `json:"tenant_id" validate:"required"`
	UserID        string     `json:"user_id"   validate:"required"`
	WizardShownAt *time.Time `json:"wizard_shown_at,omitempty"`
	DismissedAt   *time.Time `json:"dismissed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// WorkspaceState tracks tenant-wide onboarding state. ActivatedAt marks that
// date_based activation has fired for the tenant, so the sweep announces it
// once.
type WorkspaceState struct {
	TenantID              string     `json:"tenant_id" validate:"required"`
	ActivatedAt           *time.Time `json:"activated_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	IntegrationPreference string     `json:"integration_preference,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}
