package services

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
	"github.com/gangplankhq/gangplank/pkg/persistence/file"
)

func newPublishingFixture(t *testing.T) (persistence.Persistence, *Flow, *Publishing) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	flowService := NewFlow(p)
	publishing := NewPublishing(p, nil, slog.Default())

	return p, flowService, publishing
}

func TestPublishing_PublishFlow(t *testing.T) {
	p, flowService, publishing := newPublishingFixture(t)

	created, err := flowService.Create(t.Context(), testFlow("Publish Test Flow"))
	require.NoError(t, err)

	published, err := publishing.PublishFlow(t.Context(), created.ID, "admin")
	require.NoError(t, err)

	assert.Equal(t, models.FlowStatusPublished, published.Status)
	assert.Equal(t, 2, published.Version)
	require.NotNil(t, published.PublishedAt)

	// Publishing writes an audit entry
	entries, err := p.AuditRepository().ListByTenant(t.Context(), "*", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionFlowPublished, entries[0].Action)
	assert.Equal(t, "admin", entries[0].Actor)
}

func TestPublishing_GetPublishedByGroup(t *testing.T) {
	_, flowService, publishing := newPublishingFixture(t)

	created, err := flowService.Create(t.Context(), testFlow("Grouped Flow"))
	require.NoError(t, err)

	_, err = publishing.GetPublishedByGroup(t.Context(), created.FlowGroupID)
	assert.True(t, persistence.IsPublishedFlowNotFound(err))

	_, err = publishing.PublishFlow(t.Context(), created.ID, "admin")
	require.NoError(t, err)

	published, err := publishing.GetPublishedByGroup(t.Context(), created.FlowGroupID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, published.ID)
	assert.Equal(t, models.FlowStatusPublished, published.Status)
}

func TestPublishing_PublishFlow_ReplacesCurrentPublished(t *testing.T) {
	p, flowService, publishing := newPublishingFixture(t)

	first, err := flowService.Create(t.Context(), testFlow("First Global Flow"))
	require.NoError(t, err)

	_, err = publishing.PublishFlow(t.Context(), first.ID, "admin")
	require.NoError(t, err)

	second, err := flowService.Create(t.Context(), testFlow("Second Global Flow"))
	require.NoError(t, err)

	_, err = publishing.PublishFlow(t.Context(), second.ID, "admin")
	require.NoError(t, err)

	// The earlier published flow moved to unpublished
	reloaded, err := p.FlowRepository().GetByID(t.Context(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusUnpublished, reloaded.Status)

	// Exactly one published flow per scope
	current, err := publishing.GetPublishedFlow(t.Context(), models.FlowScopeGlobal, "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
}

func TestPublishing_PublishFlow_TenantScopeSeparateSlot(t *testing.T) {
	_, flowService, publishing := newPublishingFixture(t)

	global, err := flowService.Create(t.Context(), testFlow("Global Flow"))
	require.NoError(t, err)

	tenantFlow := testFlow("Acme Flow")
	tenantFlow.Scope = models.FlowScopeTenant
	tenantFlow.TenantID = "acme"

	tenant, err := flowService.Create(t.Context(), tenantFlow)
	require.NoError(t, err)

	_, err = publishing.PublishFlow(t.Context(), global.ID, "admin")
	require.NoError(t, err)
	_, err = publishing.PublishFlow(t.Context(), tenant.ID, "admin")
	require.NoError(t, err)

	// Tenant publish does not displace the global one
	currentGlobal, err := publishing.GetPublishedFlow(t.Context(), models.FlowScopeGlobal, "")
	require.NoError(t, err)
	assert.Equal(t, global.ID, currentGlobal.ID)

	currentTenant, err := publishing.GetPublishedFlow(t.Context(), models.FlowScopeTenant, "acme")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, currentTenant.ID)
}

func TestPublishing_PublishFlow_ValidationFailures(t *testing.T) {
	_, flowService, publishing := newPublishingFixture(t)

	tests := []struct {
		name    string
		mutate  func(*models.Flow)
		wantErr error
	}{
		{
			name:    "no tasks",
			mutate:  func(f *models.Flow) { f.Categories = nil },
			wantErr: ErrTasksRequired,
		},
		{
			name: "unknown dependency",
			mutate: func(f *models.Flow) {
				f.Categories[0].Tasks[0].DependsOn = []string{"missing-task"}
			},
			wantErr: ErrInvalidDependencies,
		},
		{
			name: "dependency cycle",
			mutate: func(f *models.Flow) {
				f.Categories[0].Tasks[0].DependsOn = []string{"task-2"}
				f.Categories[0].Tasks[1].DependsOn = []string{"task-1"}
			},
			wantErr: ErrInvalidDependencies,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := testFlow("Validation " + tt.name)
			tt.mutate(flow)

			created, err := flowService.Create(t.Context(), flow)
			require.NoError(t, err)

			_, err = publishing.PublishFlow(t.Context(), created.ID, "admin")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestPublishing_PublishFlow_NotFound(t *testing.T) {
	_, _, publishing := newPublishingFixture(t)

	_, err := publishing.PublishFlow(t.Context(), "non-existent", "admin")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestPublishing_CreateDraftFromPublished(t *testing.T) {
	_, flowService, publishing := newPublishingFixture(t)

	created, err := flowService.Create(t.Context(), testFlow("Draft Cycle Flow"))
	require.NoError(t, err)

	published, err := publishing.PublishFlow(t.Context(), created.ID, "admin")
	require.NoError(t, err)

	draft, err := publishing.CreateDraftFromPublished(t.Context(), published.FlowGroupID)
	require.NoError(t, err)

	assert.NotEqual(t, published.ID, draft.ID)
	assert.Equal(t, published.FlowGroupID, draft.FlowGroupID)
	assert.Equal(t, models.FlowStatusDraft, draft.Status)
	assert.Len(t, draft.Tasks(), len(published.Tasks()))

	// The published version stays live
	current, err := publishing.GetPublishedFlow(t.Context(), models.FlowScopeGlobal, "")
	require.NoError(t, err)
	assert.Equal(t, published.ID, current.ID)

	// And the draft is retrievable by group
	fetched, err := publishing.GetDraftFlow(t.Context(), published.FlowGroupID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, fetched.ID)
}

func TestPublishing_GetPublishedFlow_NotFound(t *testing.T) {
	_, _, publishing := newPublishingFixture(t)

	_, err := publishing.GetPublishedFlow(t.Context(), models.FlowScopeGlobal, "")
	require.Error(t, err)
	assert.True(t, persistence.IsPublishedFlowNotFound(err))
}
