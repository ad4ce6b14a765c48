package models

import "time"

// ShowOn controls when within a session an already-activated wizard is shown.
type ShowOn string

const (
	ShowOnFirstLogin ShowOn = "first_login" // Once, until dismissed
	ShowOnDaySeven   ShowOn = "day_7"       // From the seventh day of the account
	ShowOnAlways     ShowOn = "always"      // Every session
)

// ActivationType selects how activation conditions are evaluated.
type ActivationType string

const (
	ActivationAlways     ActivationType = "always"
	ActivationDateBased  ActivationType = "date_based"
	ActivationEventBased ActivationType = "event_based"
)

// GatingConfig controls display frequency of the wizard. Orthogonal to
// activation: gating decides when to show, activation decides whether the
// flow applies at all.
type GatingConfig struct {
	Enabled bool   `json:"enabled"`
	ShowOn  ShowOn `json:"show_on" validate:"omitempty,oneof=first_login day_7 always"`
}

// ActivationConditions decide whether an onboarding flow applies to a
// tenant/user.
type ActivationConditions struct {
	Type ActivationType `json:"type" validate:"required,oneof=always date_based event_based"`
	// MinDaysActive applies to date_based activation.
	MinDaysActive int `json:"min_days_active,omitempty" validate:"min=0"`
	// RequiredEvents applies to event_based activation. Every listed event
	// type must have been observed at least once.
	RequiredEvents []string `json:"required_events,omitempty"`
}

// TaskOverride flips the required flag of a single task for one tenant.
type TaskOverride struct {
	TaskID   string `json:"task_id" validate:"required"`
	Required bool   `json:"required"`
}

// Override is a tenant-specific modification layered onto a flow. At most
// one override exists per (flow, tenant) pair.
type Override struct {
	ID                    string               `json:"id"`
	FlowID                string               `json:"flow_id"   validate:"required"`
	TenantID              string               `json:"tenant_id" validate:"required"`
	Enabled               bool                 `json:"enabled"`
	Gating                GatingConfig         `json:"gating"`
	Activation            ActivationConditions `json:"activation"`
	TaskOverrides         []TaskOverride       `json:"task_overrides,omitempty"`
	IntegrationPreference string               `json:"integration_preference,omitempty"`
	// TaskOrder replaces the flow's natural task ordering when set. Task IDs
	// not listed keep their natural order after the listed ones; unknown IDs
	// are ignored.
	TaskOrder []string  `json:"task_order,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
