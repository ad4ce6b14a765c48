package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gangplankhq/gangplank/pkg/eventbus"
	"github.com/gangplankhq/gangplank/pkg/events"
	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

// Override manages tenant-specific flow overrides.
type Override struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewOverride creates a new override service. The publisher may be nil when
// no event bus is configured.
func NewOverride(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Override {
	return &Override{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "override"),
	}
}

// Fetch returns the override for a (flow, tenant) pair.
func (o *Override) Fetch(ctx context.Context, flowID, tenantID string) (*models.Override, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return o.persistence.OverrideRepository().GetByFlowAndTenant(ctx, flowID, tenantID)
}

// ListByTenant returns every override a tenant has configured.
func (o *Override) ListByTenant(ctx context.Context, tenantID string) ([]*models.Override, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return o.persistence.OverrideRepository().ListByTenant(ctx, tenantID)
}

// Create stores a new override. The referenced flow must exist, and only one
// override per (flow, tenant) pair is allowed.
func (o *Override) Create(ctx context.Context, override *models.Override) (*models.Override, error) {
	if override.TenantID == "" {
		return nil, ErrEmptyTenantID
	}

	flow, err := o.persistence.FlowRepository().GetByID(ctx, override.FlowID)
	if err != nil {
		return nil, fmt.Errorf("failed to check flow: %w", err)
	}

	if flow == nil {
		return nil, ErrFlowNotFound
	}

	now := time.Now().UTC()
	override.ID = uuid.New().String()
	override.CreatedAt = now
	override.UpdatedAt = now

	if override.Activation.Type == "" {
		override.Activation.Type = models.ActivationAlways
	}

	err = o.persistence.OverrideRepository().Create(ctx, override)
	if err != nil {
		if persistence.IsOverrideAlreadyExists(err) {
			return nil, ErrOverrideExists
		}

		return nil, fmt.Errorf("failed to create override: %w", err)
	}

	o.notifyUpdated(ctx, override)

	return override, nil
}

// Update modifies an existing override.
func (o *Override) Update(ctx context.Context, flowID, tenantID string, override *models.Override) (*models.Override, error) {
	existing, err := o.persistence.OverrideRepository().GetByFlowAndTenant(ctx, flowID, tenantID)
	if err != nil {
		return nil, err
	}

	override.ID = existing.ID
	override.FlowID = flowID
	override.TenantID = tenantID
	override.CreatedAt = existing.CreatedAt
	override.UpdatedAt = time.Now().UTC()

	if override.Activation.Type == "" {
		override.Activation.Type = models.ActivationAlways
	}

	err = o.persistence.OverrideRepository().Update(ctx, override)
	if err != nil {
		return nil, fmt.Errorf("failed to update override: %w", err)
	}

	o.notifyUpdated(ctx, override)

	return override, nil
}

// Delete removes the override for a (flow, tenant) pair. The tenant falls
// back to the unmodified flow definition.
func (o *Override) Delete(ctx context.Context, flowID, tenantID string) error {
	return o.persistence.OverrideRepository().Delete(ctx, flowID, tenantID)
}

func (o *Override) notifyUpdated(ctx context.Context, override *models.Override) {
	if o.publisher == nil {
		return
	}

	event := events.OverrideUpdated{
		BaseEvent:  events.NewBaseEvent(events.OverrideUpdatedEvent, override.TenantID),
		FlowID:     override.FlowID,
		OverrideID: override.ID,
	}

	if err := o.publisher.Publish(ctx, override.TenantID, event); err != nil {
		o.logger.Error("Failed to publish override updated event", "error", err, "override_id", override.ID)
	}
}
