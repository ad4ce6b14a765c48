package services

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence/file"
)

type resolverFixture struct {
	flow       *Flow
	publishing *Publishing
	override   *Override
	resolver   *Resolver
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return &resolverFixture{
		flow:       NewFlow(p),
		publishing: NewPublishing(p, nil, slog.Default()),
		override:   NewOverride(p, nil, slog.Default()),
		resolver:   NewResolver(p),
	}
}

// publishFlow creates and publishes a flow, returning the published version.
func (f *resolverFixture) publishFlow(t *testing.T, flow *models.Flow) *models.Flow {
	t.Helper()

	created, err := f.flow.Create(t.Context(), flow)
	require.NoError(t, err)

	published, err := f.publishing.PublishFlow(t.Context(), created.ID, "admin")
	require.NoError(t, err)

	return published
}

func TestResolver_ResolveFlow_GlobalFallback(t *testing.T) {
	f := newResolverFixture(t)

	published := f.publishFlow(t, testFlow("Global Flow"))

	resolved, err := f.resolver.ResolveFlow(t.Context(), "acme")
	require.NoError(t, err)
	assert.Equal(t, published.ID, resolved.ID)
	assert.Equal(t, models.FlowScopeGlobal, resolved.Scope)
}

func TestResolver_ResolveFlow_TenantScopedWins(t *testing.T) {
	f := newResolverFixture(t)

	global := f.publishFlow(t, testFlow("Global Flow"))

	tenantFlow := testFlow("Acme Flow")
	tenantFlow.Scope = models.FlowScopeTenant
	tenantFlow.TenantID = "acme"
	scoped := f.publishFlow(t, tenantFlow)

	resolved, err := f.resolver.ResolveFlow(t.Context(), "acme")
	require.NoError(t, err)
	assert.Equal(t, scoped.ID, resolved.ID)

	// Other tenants still get the global flow
	resolved, err = f.resolver.ResolveFlow(t.Context(), "other")
	require.NoError(t, err)
	assert.Equal(t, global.ID, resolved.ID)
}

func TestResolver_ResolveFlow_NoPublishedFlow(t *testing.T) {
	f := newResolverFixture(t)

	_, err := f.resolver.ResolveFlow(t.Context(), "acme")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPublishedFlow)
}

func TestResolver_ResolveFlow_EmptyTenantID(t *testing.T) {
	f := newResolverFixture(t)

	_, err := f.resolver.ResolveFlow(t.Context(), "")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestResolver_EffectiveFlow_NoOverride(t *testing.T) {
	f := newResolverFixture(t)

	published := f.publishFlow(t, testFlow("Global Flow"))

	effective, err := f.resolver.EffectiveFlow(t.Context(), "acme")
	require.NoError(t, err)

	assert.Equal(t, published.ID, effective.Flow.ID)
	assert.Equal(t, "acme", effective.TenantID)
	assert.False(t, effective.OverrideApplied)
	assert.False(t, effective.Gating.Enabled)
	assert.Equal(t, models.ActivationAlways, effective.Activation.Type)

	require.Len(t, effective.Tasks, 2)
	assert.Equal(t, "task-1", effective.Tasks[0].ID)
	assert.Equal(t, "task-2", effective.Tasks[1].ID)
	assert.False(t, effective.Tasks[0].OverriddenRequired)
}

func TestResolver_EffectiveFlow_OverrideMerged(t *testing.T) {
	f := newResolverFixture(t)

	published := f.publishFlow(t, testFlow("Global Flow"))

	_, err := f.override.Create(t.Context(), &models.Override{
		FlowID:   published.ID,
		TenantID: "acme",
		Enabled:  true,
		Gating: models.GatingConfig{
			Enabled: true,
			ShowOn:  models.ShowOnFirstLogin,
		},
		Activation: models.ActivationConditions{
			Type:          models.ActivationDateBased,
			MinDaysActive: 3,
		},
		TaskOverrides: []models.TaskOverride{
			{TaskID: "task-1", Required: false},
			{TaskID: "task-2", Required: true},
		},
		IntegrationPreference: "slack",
	})
	require.NoError(t, err)

	effective, err := f.resolver.EffectiveFlow(t.Context(), "acme")
	require.NoError(t, err)

	assert.True(t, effective.OverrideApplied)
	assert.True(t, effective.Gating.Enabled)
	assert.Equal(t, models.ShowOnFirstLogin, effective.Gating.ShowOn)
	assert.Equal(t, models.ActivationDateBased, effective.Activation.Type)
	assert.Equal(t, 3, effective.Activation.MinDaysActive)
	assert.Equal(t, "slack", effective.IntegrationPreference)

	require.Len(t, effective.Tasks, 2)
	assert.False(t, effective.Tasks[0].Required)
	assert.True(t, effective.Tasks[0].OverriddenRequired)
	assert.True(t, effective.Tasks[1].Required)
	assert.True(t, effective.Tasks[1].OverriddenRequired)
}

func TestResolver_EffectiveFlow_DisabledOverrideIgnored(t *testing.T) {
	f := newResolverFixture(t)

	published := f.publishFlow(t, testFlow("Global Flow"))

	_, err := f.override.Create(t.Context(), &models.Override{
		FlowID:   published.ID,
		TenantID: "acme",
		Enabled:  false,
		TaskOverrides: []models.TaskOverride{
			{TaskID: "task-1", Required: false},
		},
	})
	require.NoError(t, err)

	effective, err := f.resolver.EffectiveFlow(t.Context(), "acme")
	require.NoError(t, err)

	assert.False(t, effective.OverrideApplied)
	assert.True(t, effective.Tasks[0].Required)
	assert.False(t, effective.Tasks[0].OverriddenRequired)
}

func TestResolver_EffectiveFlow_TaskOrder(t *testing.T) {
	f := newResolverFixture(t)

	published := f.publishFlow(t, testFlow("Global Flow"))

	// Unknown IDs are ignored, unlisted tasks keep natural order after the
	// listed ones.
	_, err := f.override.Create(t.Context(), &models.Override{
		FlowID:    published.ID,
		TenantID:  "acme",
		Enabled:   true,
		TaskOrder: []string{"task-2", "ghost-task"},
	})
	require.NoError(t, err)

	effective, err := f.resolver.EffectiveFlow(t.Context(), "acme")
	require.NoError(t, err)

	require.Len(t, effective.Tasks, 2)
	assert.Equal(t, "task-2", effective.Tasks[0].ID)
	assert.Equal(t, "task-1", effective.Tasks[1].ID)
}
