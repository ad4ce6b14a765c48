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

func newOverrideFixture(t *testing.T) (*Override, string) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	created, err := NewFlow(p).Create(t.Context(), testFlow("Override Test Flow"))
	require.NoError(t, err)

	return NewOverride(p, nil, slog.Default()), created.ID
}

func TestOverride_Create(t *testing.T) {
	service, flowID := newOverrideFixture(t)

	created, err := service.Create(t.Context(), &models.Override{
		FlowID:   flowID,
		TenantID: "acme",
		Enabled:  true,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.ActivationAlways, created.Activation.Type)
	assert.False(t, created.CreatedAt.IsZero())

	fetched, err := service.Fetch(t.Context(), flowID, "acme")
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
}

func TestOverride_Create_FlowNotFound(t *testing.T) {
	service, _ := newOverrideFixture(t)

	_, err := service.Create(t.Context(), &models.Override{
		FlowID:   "missing-flow",
		TenantID: "acme",
	})
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestOverride_Create_Duplicate(t *testing.T) {
	service, flowID := newOverrideFixture(t)

	_, err := service.Create(t.Context(), &models.Override{FlowID: flowID, TenantID: "acme"})
	require.NoError(t, err)

	// One override per (flow, tenant) pair
	_, err = service.Create(t.Context(), &models.Override{FlowID: flowID, TenantID: "acme"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverrideExists)
	assert.True(t, IsConflictError(err))
}

func TestOverride_Update(t *testing.T) {
	service, flowID := newOverrideFixture(t)

	created, err := service.Create(t.Context(), &models.Override{FlowID: flowID, TenantID: "acme"})
	require.NoError(t, err)

	updated, err := service.Update(t.Context(), flowID, "acme", &models.Override{
		Enabled:               true,
		IntegrationPreference: "slack",
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.Enabled)
	assert.Equal(t, "slack", updated.IntegrationPreference)
}

func TestOverride_Delete(t *testing.T) {
	service, flowID := newOverrideFixture(t)

	_, err := service.Create(t.Context(), &models.Override{FlowID: flowID, TenantID: "acme"})
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), flowID, "acme"))

	_, err = service.Fetch(t.Context(), flowID, "acme")
	assert.True(t, persistence.IsOverrideNotFound(err))
}

func TestOverride_ListByTenant(t *testing.T) {
	service, flowID := newOverrideFixture(t)

	_, err := service.Create(t.Context(), &models.Override{FlowID: flowID, TenantID: "acme"})
	require.NoError(t, err)

	overrides, err := service.ListByTenant(t.Context(), "acme")
	require.NoError(t, err)
	assert.Len(t, overrides, 1)

	overrides, err = service.ListByTenant(t.Context(), "globex")
	require.NoError(t, err)
	assert.Empty(t, overrides)
}
