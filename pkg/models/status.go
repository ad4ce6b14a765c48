package models

import "time"

// TaskState is the completion state of one task for one user.
type TaskState string

const (
	TaskStateNotStarted TaskState = "not_started"
	TaskStateInProgress TaskState = "in_progress"
	TaskStateComplete   TaskState = "complete"
)

// ValidTaskState reports whether s is a known task state.
func ValidTaskState(s TaskState) bool {
	switch s {
	case TaskStateNotStarted, TaskStateInProgress, TaskStateComplete:
		return true
	default:
		return false
	}
}

// TaskStatus records per-user task progress, keyed by (flow, tenant, user,
// task). Statuses are user-scoped; tenant-level figures are aggregates over
// users. Status rows survive flow edits because they reference task IDs, not
// flow structure.
type TaskStatus struct {
	FlowID    string    `json:"flow_id"   validate:"required"`
	TenantID  string    `json:"tenant_id" validate:"required"`
	UserID    string    `json:"user_id"   validate:"required"`
	TaskID    string    `json:"task_id"   validate:"required"`
	Status    TaskState `json:"status"    validate:"required,oneof=not_started in_progress complete"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusKey identifies a status row.
type StatusKey struct {
	FlowID   string
	TenantID string
	UserID   string
	TaskID   string
}

// Key returns the row identity of the status.
func (s *TaskStatus) Key() StatusKey {
	return StatusKey{FlowID: s.FlowID, TenantID: s.TenantID, UserID: s.UserID, TaskID: s.TaskID}
}

// TaskStatusCount is an aggregated status row count for a single task.
type TaskStatusCount struct {
	TaskID   string `json:"task_id"`
	Total    int64  `json:"total"`
	Complete int64  `json:"complete"`
}
