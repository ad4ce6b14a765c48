package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
	"github.com/gangplankhq/gangplank/pkg/persistence/file"
)

// stubCounters is a CounterSource with canned values.
type stubCounters struct {
	viewed    int64
	completed int64
	avgTime   float64
	err       error
}

func (s *stubCounters) TaskCounts(_ context.Context, _, _, _ string) (int64, int64, error) {
	return s.viewed, s.completed, s.err
}

func (s *stubCounters) AvgTimeSpentSeconds(_ context.Context, _, _, _ string) (float64, error) {
	return s.avgTime, s.err
}

type analyticsFixture struct {
	persistence persistence.Persistence
	status      *Status
	analytics   *Analytics
	flowID      string
}

func newAnalyticsFixture(t *testing.T, counters CounterSource) *analyticsFixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	created, err := NewFlow(p).Create(t.Context(), testFlow("Analytics Test Flow"))
	require.NoError(t, err)

	return &analyticsFixture{
		persistence: p,
		status:      NewStatus(p, nil, slog.Default()),
		analytics:   NewAnalytics(p, counters, slog.Default()),
		flowID:      created.ID,
	}
}

func (f *analyticsFixture) appendEvent(t *testing.T, id string, eventType models.InteractionType, userID, taskID string, timeSpent float64, occurredAt time.Time) {
	t.Helper()

	err := f.persistence.EventRepository().Append(t.Context(), &models.InteractionEvent{
		ID:               id,
		Type:             eventType,
		FlowID:           f.flowID,
		TenantID:         "acme",
		UserID:           userID,
		TaskID:           taskID,
		TimeSpentSeconds: timeSpent,
		OccurredAt:       occurredAt,
	})
	require.NoError(t, err)
}

func TestAnalytics_ForFlow_NoData(t *testing.T) {
	f := newAnalyticsFixture(t, nil)

	report, err := f.analytics.ForFlow(t.Context(), f.flowID, persistence.TimeWindow{})
	require.NoError(t, err)

	require.Len(t, report.Tasks, 2)

	for _, metrics := range report.Tasks {
		assert.Zero(t, metrics.Views)
		assert.Zero(t, metrics.Completions)
		assert.Zero(t, metrics.CompletionRate)
		assert.Zero(t, metrics.DropOff)
		assert.Zero(t, metrics.AvgTimeSeconds)
	}
}

func TestAnalytics_ForFlow(t *testing.T) {
	f := newAnalyticsFixture(t, nil)
	now := time.Now().UTC()

	f.appendEvent(t, "e1", models.InteractionTaskViewed, "user-1", "task-1", 10, now)
	f.appendEvent(t, "e2", models.InteractionTaskViewed, "user-2", "task-1", 30, now)
	f.appendEvent(t, "e3", models.InteractionTaskViewed, "user-3", "task-1", 0, now)
	f.appendEvent(t, "e4", models.InteractionTaskCompleted, "user-1", "task-1", 0, now)

	for _, userID := range []string{"user-1", "user-2"} {
		state := models.TaskStateInProgress
		if userID == "user-1" {
			state = models.TaskStateComplete
		}

		err := f.status.SetStatus(t.Context(), &models.TaskStatus{
			FlowID: f.flowID, TenantID: "acme", UserID: userID, TaskID: "task-1", Status: state,
		})
		require.NoError(t, err)
	}

	report, err := f.analytics.ForFlow(t.Context(), f.flowID, persistence.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, report.Tasks, 2)

	task1 := report.Tasks[0]
	assert.Equal(t, "task-1", task1.TaskID)
	assert.EqualValues(t, 3, task1.Views)
	assert.EqualValues(t, 1, task1.Completions)
	assert.EqualValues(t, 2, task1.DropOff)
	assert.InDelta(t, 0.5, task1.CompletionRate, 0.001)
	assert.InDelta(t, 20, task1.AvgTimeSeconds, 0.001)

	task2 := report.Tasks[1]
	assert.Zero(t, task2.Views)
	assert.Zero(t, task2.CompletionRate)
}

func TestAnalytics_ForFlow_NegativeDropOff(t *testing.T) {
	f := newAnalyticsFixture(t, nil)
	now := time.Now().UTC()

	// Completions without recorded views drive drop-off below zero
	f.appendEvent(t, "e1", models.InteractionTaskCompleted, "user-1", "task-1", 0, now)
	f.appendEvent(t, "e2", models.InteractionTaskCompleted, "user-2", "task-1", 0, now)

	report, err := f.analytics.ForFlow(t.Context(), f.flowID, persistence.TimeWindow{})
	require.NoError(t, err)

	assert.EqualValues(t, -2, report.Tasks[0].DropOff)
}

func TestAnalytics_ForFlow_TimeWindow(t *testing.T) {
	f := newAnalyticsFixture(t, nil)
	now := time.Now().UTC()

	f.appendEvent(t, "e1", models.InteractionTaskViewed, "user-1", "task-1", 0, now.Add(-48*time.Hour))
	f.appendEvent(t, "e2", models.InteractionTaskViewed, "user-2", "task-1", 0, now)

	report, err := f.analytics.ForFlow(t.Context(), f.flowID, persistence.TimeWindow{
		From: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, report.Tasks[0].Views)
}

func TestAnalytics_ForFlow_NotFound(t *testing.T) {
	f := newAnalyticsFixture(t, nil)

	_, err := f.analytics.ForFlow(t.Context(), "missing-flow", persistence.TimeWindow{})
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestAnalytics_ForTask_FromCounters(t *testing.T) {
	f := newAnalyticsFixture(t, &stubCounters{viewed: 10, completed: 4, avgTime: 12.5})

	metrics, err := f.analytics.ForTask(t.Context(), f.flowID, "acme", "task-1")
	require.NoError(t, err)

	assert.EqualValues(t, 10, metrics.Views)
	assert.EqualValues(t, 4, metrics.Completions)
	assert.EqualValues(t, 6, metrics.DropOff)
	assert.InDelta(t, 0.4, metrics.CompletionRate, 0.001)
	assert.InDelta(t, 12.5, metrics.AvgTimeSeconds, 0.001)
}

func TestAnalytics_ForTask_CounterFailureFallsBack(t *testing.T) {
	f := newAnalyticsFixture(t, &stubCounters{err: errors.New("redis down")})
	now := time.Now().UTC()

	f.appendEvent(t, "e1", models.InteractionTaskViewed, "user-1", "task-1", 0, now)

	metrics, err := f.analytics.ForTask(t.Context(), f.flowID, "acme", "task-1")
	require.NoError(t, err)

	assert.EqualValues(t, 1, metrics.Views)
}

func TestAnalytics_ForTask_UnknownTask(t *testing.T) {
	f := newAnalyticsFixture(t, nil)

	_, err := f.analytics.ForTask(t.Context(), f.flowID, "acme", "ghost-task")
	assert.True(t, IsValidationError(err))
}
