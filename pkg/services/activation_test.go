package services

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
	"github.com/gangplankhq/gangplank/pkg/persistence/file"
)

type activationFixture struct {
	persistence persistence.Persistence
	resolver    *resolverFixture
	activation  *Activation
	now         time.Time
}

func newActivationFixture(t *testing.T) *activationFixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	resolver := NewResolver(p)
	activation := NewActivation(p, resolver)
	activation.now = func() time.Time { return now }

	return &activationFixture{
		persistence: p,
		resolver: &resolverFixture{
			flow:       NewFlow(p),
			publishing: NewPublishing(p, nil, slog.Default()),
			override:   NewOverride(p, nil, slog.Default()),
			resolver:   resolver,
		},
		activation: activation,
		now:        now,
	}
}

// workspaceCreatedDaysAgo seeds a workspace state so the tenant counts as
// active for the given number of days.
func (f *activationFixture) workspaceCreatedDaysAgo(t *testing.T, tenantID string, days int) {
	t.Helper()

	err := f.persistence.StateRepository().SaveWorkspaceState(t.Context(), &models.WorkspaceState{
		TenantID:  tenantID,
		CreatedAt: f.now.Add(-time.Duration(days) * 24 * time.Hour),
		UpdatedAt: f.now,
	})
	require.NoError(t, err)
}

func (f *activationFixture) overrideWith(t *testing.T, flowID string, activation models.ActivationConditions, gating models.GatingConfig) {
	t.Helper()

	_, err := f.resolver.override.Create(t.Context(), &models.Override{
		FlowID:     flowID,
		TenantID:   "acme",
		Enabled:    true,
		Activation: activation,
		Gating:     gating,
	})
	require.NoError(t, err)
}

func TestActivation_Evaluate_NoPublishedFlow(t *testing.T) {
	f := newActivationFixture(t)

	result, err := f.activation.Evaluate(t.Context(), "acme", "user-1")
	require.NoError(t, err)

	assert.False(t, result.Activated)
	assert.Equal(t, "no_published_flow", result.Reason)
	assert.False(t, result.ShouldDisplay)
}

func TestActivation_Evaluate_AlwaysActive(t *testing.T) {
	f := newActivationFixture(t)

	published := f.resolver.publishFlow(t, testFlow("Global Flow"))

	result, err := f.activation.Evaluate(t.Context(), "acme", "user-1")
	require.NoError(t, err)

	assert.True(t, result.Activated)
	assert.Equal(t, "always", result.Reason)
	assert.True(t, result.ShouldDisplay)
	assert.Equal(t, published.ID, result.FlowID)
}

func TestActivation_Evaluate_DateBased(t *testing.T) {
	f := newActivationFixture(t)

	published := f.resolver.publishFlow(t, testFlow("Global Flow"))
	f.overrideWith(t, published.ID, models.ActivationConditions{
		Type:          models.ActivationDateBased,
		MinDaysActive: 7,
	}, models.GatingConfig{})

	// Tenant without workspace state counts as zero days active
	result, err := f.activation.Evaluate(t.Context(), "acme", "user-1")
	require.NoError(t, err)
	assert.False(t, result.Activated)
	assert.Equal(t, "min_days_not_reached", result.Reason)

	f.workspaceCreatedDaysAgo(t, "acme", 10)

	result, err = f.activation.Evaluate(t.Context(), "acme", "user-1")
	require.NoError(t, err)
	assert.True(t, result.Activated)
	assert.Equal(t, "date_based", result.Reason)
	assert.True(t, result.ShouldDisplay)
}

func TestActivation_Evaluate_EventBased(t *testing.T) {
	f := newActivationFixture(t)

	published := f.resolver.publishFlow(t, testFlow("Global Flow"))
	f.overrideWith(t, published.ID, models.ActivationConditions{
		Type:           models.ActivationEventBased,
		RequiredEvents: []string{"wizard_opened", "task_viewed"},
	}, models.GatingConfig{})

	result, err := f.activation.Evaluate(t.Context(), "acme", "user-1")
	require.NoError(t, err)
	assert.False(t, result.Activated)
	assert.Equal(t, "required_events_missing", result.Reason)

	for _, eventType := range []models.InteractionType{models.InteractionWizardOpened, models.InteractionTaskViewed} {
		err = f.persistence.EventRepository().Append(t.Context(), &models.InteractionEvent{
			ID:         string(eventType) + "-1",
			Type:       eventType,
			FlowID:     published.ID,
			TenantID:   "acme",
			UserID:     "user-1",
			OccurredAt: f.now,
		})
		require.NoError(t, err)
	}

	result, err = f.activation.Evaluate(t.Context(), "acme", "user-1")
	require.NoError(t, err)
	assert.True(t, result.Activated)
	assert.Equal(t, "event_based", result.Reason)
}

func TestActivation_Evaluate_EventBased_NoRequiredEvents(t *testing.T) {
	f := newActivationFixture(t)

	published := f.resolver.publishFlow(t, testFlow("Global Flow"))
	f.overrideWith(t, published.ID, models.ActivationConditions{
		Type: models.ActivationEventBased,
	}, models.GatingConfig{})

	// An empty required event list is trivially satisfied
	result, err := f.activation.Evaluate(t.Context(), "acme", "user-1")
	require.NoError(t, err)
	assert.True(t, result.Activated)
}

func TestActivation_Evaluate_FirstLoginGating(t *testing.T) {
	f := newActivationFixture(t)

	published := f.resolver.publishFlow(t, testFlow("Global Flow"))
	f.overrideWith(t, published.ID, models.ActivationConditions{
		Type: models.ActivationAlways,
	}, models.GatingConfig{
		Enabled: true,
		ShowOn:  models.ShowOnFirstLogin,
	})

	result, err := f.activation.Evaluate(t.Context(), "acme", "user-1")
	require.NoError(t, err)
	assert.True(t, result.Activated)
	assert.True(t, result.ShouldDisplay)

	// Marking shown does not hide the wizard, dismissing does
	require.NoError(t, f.activation.MarkWizardShown(t.Context(), "acme", "user-1"))

	result, err = f.activation.Evaluate(t.Context(), "acme", "user-1")
	require.NoError(t, err)
	assert.True(t, result.ShouldDisplay)

	require.NoError(t, f.activation.DismissWizard(t.Context(), "acme", "user-1"))

	result, err = f.activation.Evaluate(t.Context(), "acme", "user-1")
	require.NoError(t, err)
	assert.True(t, result.Activated)
	assert.False(t, result.ShouldDisplay)
}

func TestActivation_Evaluate_DaySevenGating(t *testing.T) {
	f := newActivationFixture(t)

	published := f.resolver.publishFlow(t, testFlow("Global Flow"))
	f.overrideWith(t, published.ID, models.ActivationConditions{
		Type: models.ActivationAlways,
	}, models.GatingConfig{
		Enabled: true,
		ShowOn:  models.ShowOnDaySeven,
	})

	f.workspaceCreatedDaysAgo(t, "acme", 3)

	result, err := f.activation.Evaluate(t.Context(), "acme", "user-1")
	require.NoError(t, err)
	assert.True(t, result.Activated)
	assert.False(t, result.ShouldDisplay)

	f.workspaceCreatedDaysAgo(t, "acme", 8)

	result, err = f.activation.Evaluate(t.Context(), "acme", "user-1")
	require.NoError(t, err)
	assert.True(t, result.ShouldDisplay)
}

func TestActivation_Evaluate_EmptyIDs(t *testing.T) {
	f := newActivationFixture(t)

	_, err := f.activation.Evaluate(t.Context(), "", "user-1")
	assert.True(t, IsValidationError(err))

	_, err = f.activation.Evaluate(t.Context(), "acme", "")
	assert.True(t, IsValidationError(err))
}
