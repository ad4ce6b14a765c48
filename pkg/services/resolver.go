package services

import (
	"context"
	"fmt"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

var (
	// ErrNoPublishedFlow is returned when neither a tenant-scoped nor a
	// global published flow exists.
	ErrNoPublishedFlow = persistence.ErrPublishedFlowNotFound

	// ErrOverrideNotFound is returned when no override exists for the pair.
	ErrOverrideNotFound = persistence.ErrOverrideNotFound
)

// Resolver computes the effective onboarding flow for a tenant: the published
// flow definition with the tenant's override merged in.
type Resolver struct {
	persistence persistence.Persistence
}

// NewResolver creates a new flow resolver service.
func NewResolver(persistence persistence.Persistence) *Resolver {
	return &Resolver{
		persistence: persistence,
	}
}

// ResolveFlow selects the published flow that applies to a tenant. A
// tenant-scoped published flow wins over the global one.
func (r *Resolver) ResolveFlow(ctx context.Context, tenantID string) (*models.Flow, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	flow, err := r.persistence.FlowRepository().GetPublishedFlow(ctx, models.FlowScopeTenant, tenantID)
	if err == nil {
		return flow, nil
	}

	if !persistence.IsPublishedFlowNotFound(err) {
		return nil, fmt.Errorf("failed to resolve tenant flow: %w", err)
	}

	flow, err = r.persistence.FlowRepository().GetPublishedFlow(ctx, models.FlowScopeGlobal, "")
	if err != nil {
		if persistence.IsPublishedFlowNotFound(err) {
			return nil, ErrNoPublishedFlow
		}

		return nil, fmt.Errorf("failed to resolve global flow: %w", err)
	}

	return flow, nil
}

// EffectiveFlow resolves the flow for a tenant and merges its override, when
// one exists and is enabled.
func (r *Resolver) EffectiveFlow(ctx context.Context, tenantID string) (*models.EffectiveFlow, error) {
	flow, err := r.ResolveFlow(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	override, err := r.persistence.OverrideRepository().GetByFlowAndTenant(ctx, flow.ID, tenantID)
	if err != nil && !persistence.IsOverrideNotFound(err) {
		return nil, fmt.Errorf("failed to load override: %w", err)
	}

	effective := &models.EffectiveFlow{
		Flow:     flow,
		TenantID: tenantID,
		Gating:   models.GatingConfig{Enabled: false},
		Activation: models.ActivationConditions{
			Type: models.ActivationAlways,
		},
		Tasks: effectiveTasks(flow),
	}

	if override == nil || !override.Enabled {
		return effective, nil
	}

	applyOverride(effective, override)

	return effective, nil
}

// effectiveTasks flattens the flow's categories into an ordered task list.
func effectiveTasks(flow *models.Flow) []*models.EffectiveTask {
	tasks := flow.Tasks()

	result := make([]*models.EffectiveTask, 0, len(tasks))
	for _, task := range tasks {
		result = append(result, &models.EffectiveTask{Task: *task})
	}

	return result
}

// applyOverride merges a tenant override into the effective flow. Required
// flags from the override win over the base definition. Task reordering
// ignores unknown IDs; tasks the order does not mention keep their natural
// order after the listed ones.
func applyOverride(effective *models.EffectiveFlow, override *models.Override) {
	effective.OverrideApplied = true
	effective.Gating = override.Gating
	effective.Activation = override.Activation
	effective.IntegrationPreference = override.IntegrationPreference

	if effective.Activation.Type == "" {
		effective.Activation.Type = models.ActivationAlways
	}

	if len(override.TaskOverrides) > 0 {
		required := make(map[string]bool, len(override.TaskOverrides))
		for _, to := range override.TaskOverrides {
			required[to.TaskID] = to.Required
		}

		for _, task := range effective.Tasks {
			if flag, ok := required[task.ID]; ok {
				task.Required = flag
				task.OverriddenRequired = true
			}
		}
	}

	if len(override.TaskOrder) > 0 {
		effective.Tasks = reorderTasks(effective.Tasks, override.TaskOrder)
	}
}

func reorderTasks(tasks []*models.EffectiveTask, order []string) []*models.EffectiveTask {
	byID := make(map[string]*models.EffectiveTask, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	result := make([]*models.EffectiveTask, 0, len(tasks))
	placed := make(map[string]bool, len(order))

	for _, id := range order {
		task, ok := byID[id]
		if !ok || placed[id] {
			continue
		}

		result = append(result, task)
		placed[id] = true
	}

	for _, task := range tasks {
		if !placed[task.ID] {
			result = append(result, task)
		}
	}

	return result
}
