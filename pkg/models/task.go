package models

// CompletionType controls how a task transitions to complete.
type CompletionType string

const (
	CompletionTypeManual CompletionType = "manual" // User marks the task done
	CompletionTypeAuto   CompletionType = "auto"   // Completed by an observed product event
)

// Task is a single onboarding step inside a category.
type Task struct {
	ID             string         `json:"id"              validate:"required"`
	Title          string         `json:"title"           validate:"required"`
	Description    string         `json:"description"`
	Required       bool           `json:"required"`
	CompletionType CompletionType `json:"completion_type" validate:"required,oneof=manual auto"`
	EstimatedTime  string         `json:"estimated_time,omitempty"`
	CTALabel       string         `json:"cta_label,omitempty"`
	CTATarget      string         `json:"cta_target,omitempty"`
	Order          int            `json:"order"`
	// DependsOn lists task IDs within the same flow that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`
}
