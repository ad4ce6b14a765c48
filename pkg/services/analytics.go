package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

// CounterSource reads incremental per-task counters. Satisfied by the redis
// counters package; nil means aggregates always come from the event store.
type CounterSource interface {
	TaskCounts(ctx context.Context, flowID, tenantID, taskID string) (viewed, completed int64, err error)
	AvgTimeSpentSeconds(ctx context.Context, flowID, tenantID, taskID string) (float64, error)
}

// TaskMetrics is the aggregated view of one task's usage.
type TaskMetrics struct {
	TaskID         string  `json:"task_id"`
	Views          int64   `json:"views"`
	Completions    int64   `json:"completions"`
	CompletionRate float64 `json:"completion_rate"`
	// DropOff is views minus completions. It can go negative when tasks are
	// completed without a recorded view, which is a signal in itself.
	DropOff        int64   `json:"drop_off"`
	AvgTimeSeconds float64 `json:"avg_time_seconds"`
}

// FlowAnalytics is the aggregated usage report for one flow.
type FlowAnalytics struct {
	FlowID string        `json:"flow_id"`
	Tasks  []TaskMetrics `json:"tasks"`
}

// Analytics derives usage metrics for flows from the interaction event store
// and the task status store. Grouping happens at the storage layer; this
// service only joins the aggregates.
type Analytics struct {
	persistence persistence.Persistence
	counters    CounterSource
	logger      *slog.Logger
}

// NewAnalytics creates a new analytics service. counters may be nil.
func NewAnalytics(persistence persistence.Persistence, counters CounterSource, logger *slog.Logger) *Analytics {
	return &Analytics{
		persistence: persistence,
		counters:    counters,
		logger:      logger.With("module", "analytics"),
	}
}

// ForFlow computes per-task metrics for a flow within a time window. Tasks
// with no recorded events or statuses report zeroes, never a synthetic
// nonzero rate.
func (a *Analytics) ForFlow(ctx context.Context, flowID string, window persistence.TimeWindow) (*FlowAnalytics, error) {
	flow, err := a.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow: %w", err)
	}

	if flow == nil {
		return nil, ErrFlowNotFound
	}

	statusCounts, err := a.persistence.StatusRepository().CountByTask(ctx, flowID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate task statuses: %w", err)
	}

	eventCounts, err := a.persistence.EventRepository().CountByTaskAndType(ctx, flowID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate interaction events: %w", err)
	}

	timeSpent, err := a.persistence.EventRepository().AvgTimeSpent(ctx, flowID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate time spent: %w", err)
	}

	statusByTask := make(map[string]models.TaskStatusCount, len(statusCounts))
	for _, c := range statusCounts {
		statusByTask[c.TaskID] = c
	}

	viewsByTask := make(map[string]int64)
	completionsByTask := make(map[string]int64)

	for _, c := range eventCounts {
		switch c.Type {
		case models.InteractionTaskViewed:
			viewsByTask[c.TaskID] += c.Count
		case models.InteractionTaskCompleted:
			completionsByTask[c.TaskID] += c.Count
		}
	}

	timeByTask := make(map[string]float64, len(timeSpent))
	for _, t := range timeSpent {
		timeByTask[t.TaskID] = t.AvgSeconds
	}

	result := &FlowAnalytics{FlowID: flowID}

	for _, task := range flow.Tasks() {
		metrics := TaskMetrics{
			TaskID:         task.ID,
			Views:          viewsByTask[task.ID],
			Completions:    completionsByTask[task.ID],
			AvgTimeSeconds: timeByTask[task.ID],
		}

		metrics.DropOff = metrics.Views - metrics.Completions

		if counts, ok := statusByTask[task.ID]; ok && counts.Total > 0 {
			metrics.CompletionRate = float64(counts.Complete) / float64(counts.Total)
		}

		result.Tasks = append(result.Tasks, metrics)
	}

	return result, nil
}

// ForTask returns metrics for a single task of a flow within a tenant. When
// a counter source is configured its live tallies serve the request; storage
// aggregates are the fallback.
func (a *Analytics) ForTask(ctx context.Context, flowID, tenantID, taskID string) (*TaskMetrics, error) {
	if a.counters != nil {
		metrics, err := a.fromCounters(ctx, flowID, tenantID, taskID)
		if err == nil {
			return metrics, nil
		}

		a.logger.Warn("Counter read failed, falling back to event store", "error", err, "task_id", taskID)
	}

	report, err := a.ForFlow(ctx, flowID, persistence.TimeWindow{})
	if err != nil {
		return nil, err
	}

	for i := range report.Tasks {
		if report.Tasks[i].TaskID == taskID {
			return &report.Tasks[i], nil
		}
	}

	return nil, NewValidationError(
		"ForTask",
		"UNKNOWN_TASK",
		fmt.Sprintf("task '%s' does not exist in flow '%s'", taskID, flowID),
		ErrInvalidRequest,
	)
}

func (a *Analytics) fromCounters(ctx context.Context, flowID, tenantID, taskID string) (*TaskMetrics, error) {
	viewed, completed, err := a.counters.TaskCounts(ctx, flowID, tenantID, taskID)
	if err != nil {
		return nil, err
	}

	avgTime, err := a.counters.AvgTimeSpentSeconds(ctx, flowID, tenantID, taskID)
	if err != nil {
		return nil, err
	}

	metrics := &TaskMetrics{
		TaskID:         taskID,
		Views:          viewed,
		Completions:    completed,
		DropOff:        viewed - completed,
		AvgTimeSeconds: avgTime,
	}

	if viewed > 0 {
		metrics.CompletionRate = float64(completed) / float64(viewed)
	}

	return metrics, nil
}
