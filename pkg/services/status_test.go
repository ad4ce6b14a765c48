package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gangplankhq/gangplank/pkg/eventbus"
	"github.com/gangplankhq/gangplank/pkg/events"
	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
	"github.com/gangplankhq/gangplank/pkg/persistence/file"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	published []eventbus.Event
}

func (c *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	c.published = append(c.published, event)

	return nil
}

func (c *capturePublisher) countByType(eventType events.EventType) int {
	var count int

	for _, event := range c.published {
		if event.GetType() == eventType {
			count++
		}
	}

	return count
}

type statusFixture struct {
	persistence persistence.Persistence
	flow        *Flow
	status      *Status
	publisher   *capturePublisher
	flowID      string
}

func newStatusFixture(t *testing.T) *statusFixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	publisher := &capturePublisher{}
	flowService := NewFlow(p)

	created, err := flowService.Create(t.Context(), testFlow("Status Test Flow"))
	require.NoError(t, err)

	return &statusFixture{
		persistence: p,
		flow:        flowService,
		status:      NewStatus(p, publisher, slog.Default()),
		publisher:   publisher,
		flowID:      created.ID,
	}
}

func (f *statusFixture) setStatus(t *testing.T, userID, taskID string, state models.TaskState) {
	t.Helper()

	err := f.status.SetStatus(t.Context(), &models.TaskStatus{
		FlowID:   f.flowID,
		TenantID: "acme",
		UserID:   userID,
		TaskID:   taskID,
		Status:   state,
	})
	require.NoError(t, err)
}

func TestStatus_SetStatus(t *testing.T) {
	f := newStatusFixture(t)

	f.setStatus(t, "user-1", "task-1", models.TaskStateInProgress)

	stored, err := f.persistence.StatusRepository().Get(t.Context(), models.StatusKey{
		FlowID: f.flowID, TenantID: "acme", UserID: "user-1", TaskID: "task-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateInProgress, stored.Status)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.Equal(t, 0, f.publisher.countByType(events.TaskCompletedEvent))
}

func TestStatus_SetStatus_CompletionEventOnlyOnTransition(t *testing.T) {
	f := newStatusFixture(t)

	f.setStatus(t, "user-1", "task-1", models.TaskStateInProgress)
	f.setStatus(t, "user-1", "task-1", models.TaskStateComplete)
	assert.Equal(t, 1, f.publisher.countByType(events.TaskCompletedEvent))

	// Repeating the complete write is a no-op
	f.setStatus(t, "user-1", "task-1", models.TaskStateComplete)
	assert.Equal(t, 1, f.publisher.countByType(events.TaskCompletedEvent))

	// Moving away and back completes again
	f.setStatus(t, "user-1", "task-1", models.TaskStateInProgress)
	f.setStatus(t, "user-1", "task-1", models.TaskStateComplete)
	assert.Equal(t, 2, f.publisher.countByType(events.TaskCompletedEvent))
}

func TestStatus_SetStatus_PreservesCreatedAt(t *testing.T) {
	f := newStatusFixture(t)

	f.setStatus(t, "user-1", "task-1", models.TaskStateInProgress)

	key := models.StatusKey{FlowID: f.flowID, TenantID: "acme", UserID: "user-1", TaskID: "task-1"}

	first, err := f.persistence.StatusRepository().Get(t.Context(), key)
	require.NoError(t, err)

	f.setStatus(t, "user-1", "task-1", models.TaskStateComplete)

	second, err := f.persistence.StatusRepository().Get(t.Context(), key)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestStatus_SetStatus_Validation(t *testing.T) {
	f := newStatusFixture(t)

	err := f.status.SetStatus(t.Context(), &models.TaskStatus{
		FlowID: f.flowID, TenantID: "acme", UserID: "user-1", TaskID: "task-1",
		Status: "finished",
	})
	assert.True(t, IsValidationError(err))

	err = f.status.SetStatus(t.Context(), &models.TaskStatus{
		FlowID: f.flowID, TenantID: "acme", UserID: "user-1", TaskID: "ghost-task",
		Status: models.TaskStateComplete,
	})
	assert.True(t, IsValidationError(err))

	err = f.status.SetStatus(t.Context(), &models.TaskStatus{
		FlowID: "missing-flow", TenantID: "acme", UserID: "user-1", TaskID: "task-1",
		Status: models.TaskStateComplete,
	})
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestStatus_SetStatus_DeletedFlowRejected(t *testing.T) {
	f := newStatusFixture(t)

	require.NoError(t, f.flow.Delete(t.Context(), f.flowID))

	err := f.status.SetStatus(t.Context(), &models.TaskStatus{
		FlowID: f.flowID, TenantID: "acme", UserID: "user-1", TaskID: "task-1",
		Status: models.TaskStateComplete,
	})
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestStatus_Progress(t *testing.T) {
	f := newStatusFixture(t)

	f.setStatus(t, "user-1", "task-1", models.TaskStateComplete)
	f.setStatus(t, "user-1", "task-2", models.TaskStateInProgress)
	f.setStatus(t, "user-2", "task-1", models.TaskStateComplete)

	statuses, err := f.status.Progress(t.Context(), f.flowID, "acme", "user-1")
	require.NoError(t, err)
	assert.Len(t, statuses, 2)

	statuses, err = f.status.Progress(t.Context(), f.flowID, "acme", "")
	require.NoError(t, err)
	assert.Len(t, statuses, 3)
}

func TestStatus_UserCompletionRate(t *testing.T) {
	f := newStatusFixture(t)

	rate, err := f.status.UserCompletionRate(t.Context(), f.flowID, "acme", "user-1")
	require.NoError(t, err)
	assert.Zero(t, rate)

	f.setStatus(t, "user-1", "task-1", models.TaskStateComplete)
	f.setStatus(t, "user-1", "task-2", models.TaskStateInProgress)

	rate, err = f.status.UserCompletionRate(t.Context(), f.flowID, "acme", "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rate, 0.001)
}

func TestStatus_UserCompletionRate_NoTasks(t *testing.T) {
	f := newStatusFixture(t)

	empty := testFlow("Empty Flow")
	empty.Categories = nil

	created, err := f.flow.Create(t.Context(), empty)
	require.NoError(t, err)

	rate, err := f.status.UserCompletionRate(t.Context(), created.ID, "acme", "user-1")
	require.NoError(t, err)
	assert.Zero(t, rate)
}

func TestStatus_ResetForUser(t *testing.T) {
	f := newStatusFixture(t)

	f.setStatus(t, "user-1", "task-1", models.TaskStateComplete)
	f.setStatus(t, "user-1", "task-2", models.TaskStateInProgress)
	f.setStatus(t, "user-2", "task-1", models.TaskStateComplete)

	err := f.persistence.StateRepository().SaveUserState(t.Context(), &models.UserState{
		TenantID: "acme", UserID: "user-1",
	})
	require.NoError(t, err)

	removed, err := f.status.ResetForUser(t.Context(), "acme", "user-1", "admin")
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	statuses, err := f.status.Progress(t.Context(), f.flowID, "acme", "user-1")
	require.NoError(t, err)
	assert.Empty(t, statuses)

	state, err := f.persistence.StateRepository().GetUserState(t.Context(), "acme", "user-1")
	require.NoError(t, err)
	assert.Nil(t, state)

	// Other users are untouched
	statuses, err = f.status.Progress(t.Context(), f.flowID, "acme", "user-2")
	require.NoError(t, err)
	assert.Len(t, statuses, 1)

	entries, err := f.persistence.AuditRepository().ListByTenant(t.Context(), "acme", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionResetUser, entries[0].Action)
	assert.Equal(t, "admin", entries[0].Actor)

	// Resetting an already clean user removes nothing
	removed, err = f.status.ResetForUser(t.Context(), "acme", "user-1", "admin")
	require.NoError(t, err)
	assert.Zero(t, removed)

	assert.Equal(t, 2, f.publisher.countByType(events.StatusResetEvent))
}

func TestStatus_ResetForTenant(t *testing.T) {
	f := newStatusFixture(t)

	f.setStatus(t, "user-1", "task-1", models.TaskStateComplete)
	f.setStatus(t, "user-2", "task-1", models.TaskStateComplete)

	err := f.status.SetStatus(t.Context(), &models.TaskStatus{
		FlowID: f.flowID, TenantID: "globex", UserID: "user-3", TaskID: "task-1",
		Status: models.TaskStateComplete,
	})
	require.NoError(t, err)

	err = f.persistence.StateRepository().SaveWorkspaceState(t.Context(), &models.WorkspaceState{TenantID: "acme"})
	require.NoError(t, err)

	removed, err := f.status.ResetForTenant(t.Context(), "acme", "admin")
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	statuses, err := f.status.Progress(t.Context(), f.flowID, "acme", "")
	require.NoError(t, err)
	assert.Empty(t, statuses)

	state, err := f.persistence.StateRepository().GetWorkspaceState(t.Context(), "acme")
	require.NoError(t, err)
	assert.Nil(t, state)

	// Other tenants are untouched
	statuses, err = f.status.Progress(t.Context(), f.flowID, "globex", "")
	require.NoError(t, err)
	assert.Len(t, statuses, 1)

	entries, err := f.persistence.AuditRepository().ListByTenant(t.Context(), "acme", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionResetTenant, entries[0].Action)
}
