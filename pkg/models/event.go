package models

import "time"

// InteractionType classifies a user interaction with the onboarding wizard.
type InteractionType string

const (
	InteractionTaskViewed    InteractionType = "task_viewed"
	InteractionTaskStarted   InteractionType = "task_started"
	InteractionTaskCompleted InteractionType = "task_completed"
	InteractionWizardOpened  InteractionType = "wizard_opened"
	InteractionWizardSkipped InteractionType = "wizard_skipped"
)

// ValidInteractionType reports whether t is a known interaction type.
func ValidInteractionType(t InteractionType) bool {
	switch t {
	case InteractionTaskViewed, InteractionTaskStarted, InteractionTaskCompleted,
		InteractionWizardOpened, InteractionWizardSkipped:
		return true
	default:
		return false
	}
}

// InteractionEvent is one append-only record of wizard usage. Events are
// write-once, read-many; analytics is derived from them.
type InteractionEvent struct {
	ID               string          `json:"id"`
	Type             InteractionType `json:"type"      validate:"required,oneof=task_viewed task_started task_completed wizard_opened wizard_skipped"`
	FlowID           string          `json:"flow_id"   validate:"required"`
	TenantID         string          `json:"tenant_id" validate:"required"`
	UserID           string          `json:"user_id"   validate:"required"`
	TaskID           string          `json:"task_id,omitempty"`
	TimeSpentSeconds float64         `json:"time_spent_seconds,omitempty" validate:"min=0"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// TaskEventCount is an aggregated event count for one (task, type) pair.
type TaskEventCount struct {
	TaskID string          `json:"task_id"`
	Type   InteractionType `json:"type"`
	Count  int64           `json:"count"`
}

// TaskTimeSpent is the mean recorded time for one task.
type TaskTimeSpent struct {
	TaskID     string  `json:"task_id"`
	AvgSeconds float64 `json:"avg_seconds"`
}
