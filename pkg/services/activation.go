package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

// Activation evaluates whether onboarding applies to a tenant and whether the
// wizard should be displayed in the current session. Activation and gating
// are orthogonal: activation decides if the flow applies at all, gating
// decides when an activated wizard is shown.
type Activation struct {
	persistence persistence.Persistence
	resolver    *Resolver

	// now is swappable for tests.
	now func() time.Time
}

// NewActivation creates a new activation service.
func NewActivation(persistence persistence.Persistence, resolver *Resolver) *Activation {
	return &Activation{
		persistence: persistence,
		resolver:    resolver,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ActivationResult is the outcome of evaluating a tenant/user pair.
type ActivationResult struct {
	Activated     bool   `json:"activated"`
	Reason        string `json:"reason"`
	ShouldDisplay bool   `json:"should_display"`
	FlowID        string `json:"flow_id,omitempty"`
}

// Evaluate resolves the effective flow for the tenant and reports whether
// onboarding is active and whether the wizard should be shown now.
func (a *Activation) Evaluate(ctx context.Context, tenantID, userID string) (*ActivationResult, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	if userID == "" {
		return nil, ErrEmptyUserID
	}

	effective, err := a.resolver.EffectiveFlow(ctx, tenantID)
	if err != nil {
		if persistence.IsPublishedFlowNotFound(err) {
			return &ActivationResult{Activated: false, Reason: "no_published_flow"}, nil
		}

		return nil, err
	}

	activated, reason, err := a.evaluateConditions(ctx, tenantID, userID, effective.Activation)
	if err != nil {
		return nil, err
	}

	result := &ActivationResult{
		Activated: activated,
		Reason:    reason,
		FlowID:    effective.Flow.ID,
	}

	if !activated {
		return result, nil
	}

	display, err := a.shouldDisplay(ctx, tenantID, userID, effective.Gating)
	if err != nil {
		return nil, err
	}

	result.ShouldDisplay = display

	return result, nil
}

// evaluateConditions applies the activation conditions. All conditions must
// hold; an empty required event list is trivially satisfied.
func (a *Activation) evaluateConditions(
	ctx context.Context,
	tenantID, userID string,
	conditions models.ActivationConditions,
) (bool, string, error) {
	switch conditions.Type {
	case models.ActivationAlways, "":
		return true, string(models.ActivationAlways), nil

	case models.ActivationDateBased:
		days, err := a.tenantDaysActive(ctx, tenantID)
		if err != nil {
			return false, "", err
		}

		if days < conditions.MinDaysActive {
			return false, "min_days_not_reached", nil
		}

		return true, string(models.ActivationDateBased), nil

	case models.ActivationEventBased:
		if len(conditions.RequiredEvents) == 0 {
			return true, string(models.ActivationEventBased), nil
		}

		seen, err := a.persistence.EventRepository().SeenTypes(ctx, tenantID, userID)
		if err != nil {
			return false, "", fmt.Errorf("failed to load seen event types: %w", err)
		}

		seenNames := make([]string, 0, len(seen))
		for _, t := range seen {
			seenNames = append(seenNames, string(t))
		}

		for _, required := range conditions.RequiredEvents {
			if !slices.Contains(seenNames, required) {
				return false, "required_events_missing", nil
			}
		}

		return true, string(models.ActivationEventBased), nil

	default:
		return false, "", fmt.Errorf("%w: unknown activation type %q", ErrInvalidRequest, conditions.Type)
	}
}

// shouldDisplay applies gating. Disabled gating shows the wizard whenever it
// is activated.
func (a *Activation) shouldDisplay(ctx context.Context, tenantID, userID string, gating models.GatingConfig) (bool, error) {
	if !gating.Enabled {
		return true, nil
	}

	switch gating.ShowOn {
	case models.ShowOnAlways, "":
		return true, nil

	case models.ShowOnFirstLogin:
		state, err := a.persistence.StateRepository().GetUserState(ctx, tenantID, userID)
		if err != nil {
			return false, fmt.Errorf("failed to load user state: %w", err)
		}

		// Shown until the user dismisses it.
		return state == nil || state.DismissedAt == nil, nil

	case models.ShowOnDaySeven:
		days, err := a.tenantDaysActive(ctx, tenantID)
		if err != nil {
			return false, err
		}

		return days >= 7, nil

	default:
		return false, fmt.Errorf("%w: unknown show_on %q", ErrInvalidRequest, gating.ShowOn)
	}
}

// tenantDaysActive counts whole days since the tenant's workspace state was
// created. A tenant without workspace state counts as zero days active.
func (a *Activation) tenantDaysActive(ctx context.Context, tenantID string) (int, error) {
	state, err := a.persistence.StateRepository().GetWorkspaceState(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to load workspace state: %w", err)
	}

	if state == nil {
		return 0, nil
	}

	return int(a.now().Sub(state.CreatedAt).Hours() / 24), nil
}

// MarkWizardShown records that the wizard was displayed to a user.
func (a *Activation) MarkWizardShown(ctx context.Context, tenantID, userID string) error {
	state, err := a.persistence.StateRepository().GetUserState(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to load user state: %w", err)
	}

	now := a.now()

	if state == nil {
		state = &models.UserState{
			TenantID:  tenantID,
			UserID:    userID,
			CreatedAt: now,
		}
	}

	state.WizardShownAt = &now
	state.UpdatedAt = now

	return a.persistence.StateRepository().SaveUserState(ctx, state)
}

// DismissWizard records that a user dismissed the wizard. With first_login
// gating the wizard stays hidden afterwards.
func (a *Activation) DismissWizard(ctx context.Context, tenantID, userID string) error {
	state, err := a.persistence.StateRepository().GetUserState(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to load user state: %w", err)
	}

	now := a.now()

	if state == nil {
		state = &models.UserState{
			TenantID:  tenantID,
			UserID:    userID,
			CreatedAt: now,
		}
	}

	state.DismissedAt = &now
	state.UpdatedAt = now

	return a.persistence.StateRepository().SaveUserState(ctx, state)
}
