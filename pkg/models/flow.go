// Package models defines the core domain models for onboarding flow configuration.
package models

import "time"

// FlowStatus represents the lifecycle state of a flow definition.
type FlowStatus string

const (
	FlowStatusDraft       FlowStatus = "draft"       // Editable, not served to tenants
	FlowStatusPublished   FlowStatus = "published"   // Current active version
	FlowStatusUnpublished FlowStatus = "unpublished" // Historical, replaced by a newer publish
)

// FlowScope determines which tenants a flow definition applies to.
type FlowScope string

const (
	FlowScopeGlobal FlowScope = "global" // Default for every tenant without a tenant-scoped flow
	FlowScopeTenant FlowScope = "tenant" // Applies to a single tenant only
)

// Flow represents a versioned onboarding flow template. All versions of the
// same logical flow share a FlowGroupID; at most one version per (scope,
// tenant) is published at a time.
type Flow struct {
	ID          string      `json:"id"`
	FlowGroupID string      `json:"flow_group_id"` // Stable ID linking all versions
	Name        string      `json:"name"           validate:"required,min=3"`
	Description string      `json:"description"`
	Version     int         `json:"version"`
	Status      FlowStatus  `json:"status"    validate:"required,oneof=draft published unpublished"`
	Scope       FlowScope   `json:"scope"     validate:"required,oneof=global tenant"`
	TenantID    string      `json:"tenant_id,omitempty" validate:"required_if=Scope tenant"`
	Categories  []*Category `json:"categories"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Owner       string         `json:"owner"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}

// Category groups ordered tasks within a flow.
type Category struct {
	ID          string  `json:"id"          validate:"required"`
	Name        string  `json:"name"        validate:"required"`
	Description string  `json:"description"`
	Order       int     `json:"order"`
	Tasks       []*Task `json:"tasks"`
}

// Tasks returns every task in the flow, categories in order, tasks in their
// natural per-category order.
func (f *Flow) Tasks() []*Task {
	var tasks []*Task
	for _, category := range f.Categories {
		tasks = append(tasks, category.Tasks...)
	}

	return tasks
}

// TaskByID returns the task with the given ID, or nil.
func (f *Flow) TaskByID(id string) *Task {
	for _, task := range f.Tasks() {
		if task.ID == id {
			return task
		}
	}

	return nil
}
