// Package web provides HTTP request and response types for the onboarding API.
package web

import "github.com/gangplankhq/gangplank/pkg/models"

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateFlowRequest represents the request body for creating a new flow.
type CreateFlowRequest struct {
	Name        string             `json:"name"        validate:"required,min=3"`
	Description string             `json:"description"`
	Scope       string             `json:"scope"       validate:"omitempty,oneof=global tenant"`
	TenantID    string             `json:"tenant_id,omitempty"`
	Categories  []*models.Category `json:"categories"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Owner       string             `json:"owner"       validate:"required"`
}

// UpdateFlowRequest represents the request body for updating a draft flow.
// All fields are optional to support partial updates.
type UpdateFlowRequest struct {
	Name        *string            `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string            `json:"description,omitempty"`
	Categories  []*models.Category `json:"categories,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
}

// UpsertOverrideRequest represents the request body for creating or updating
// a tenant override.
type UpsertOverrideRequest struct {
	FlowID                string                      `json:"flow_id"   validate:"required"`
	Enabled               bool                        `json:"enabled"`
	Gating                models.GatingConfig         `json:"gating"`
	Activation            models.ActivationConditions `json:"activation"`
	TaskOverrides         []models.TaskOverride       `json:"task_overrides,omitempty"`
	IntegrationPreference string                      `json:"integration_preference,omitempty"`
	TaskOrder             []string                    `json:"task_order,omitempty"`
}

// SetStatusRequest represents the request body for setting one task status.
type SetStatusRequest struct {
	FlowID string `json:"flow_id" validate:"required"`
	TaskID string `json:"task_id" validate:"required"`
	Status string `json:"status"  validate:"required,oneof=not_started in_progress complete"`
}

// RecordEventRequest represents the request body for ingesting one wizard
// interaction event.
type RecordEventRequest struct {
	Type             string  `json:"type"      validate:"required,oneof=task_viewed task_started task_completed wizard_opened wizard_skipped"`
	FlowID           string  `json:"flow_id"   validate:"required"`
	TenantID         string  `json:"tenant_id" validate:"required"`
	UserID           string  `json:"user_id"   validate:"required"`
	TaskID           string  `json:"task_id,omitempty"`
	TimeSpentSeconds float64 `json:"time_spent_seconds,omitempty" validate:"min=0"`
}

// ResetResponse reports the outcome of an administrative reset.
type ResetResponse struct {
	TenantID    string `json:"tenant_id"`
	UserID      string `json:"user_id,omitempty"`
	RowsRemoved int64  `json:"rows_removed"`
}
