package models

// EffectiveTask is a task as the tenant sees it after override resolution.
type EffectiveTask struct {
	Task

	// OverriddenRequired is true when the required flag came from a tenant
	// override rather than the base definition.
	OverriddenRequired bool `json:"overridden_required,omitempty"`
}

// EffectiveFlow is the resolved, per-tenant view of a published flow: the
// base definition with any tenant override merged in. It is a read model
// with no write path.
type EffectiveFlow struct {
	Flow                  *Flow            `json:"flow"`
	TenantID              string           `json:"tenant_id"`
	OverrideApplied       bool             `json:"override_applied"`
	IntegrationPreference string           `json:"integration_preference,omitempty"`
	Gating                GatingConfig     `json:"gating"`
	Activation            ActivationConditions `json:"activation"`
	// Tasks is the merged, ordered task list across all categories.
	Tasks []*EffectiveTask `json:"tasks"`
}
