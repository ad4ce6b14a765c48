// Package services provides flow publishing functionality with simplified versioning.
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

// Publishing handles flow publishing operations with simplified versioning.
type Publishing struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewPublishing creates a new flow publishing service. The publisher may be
// nil when no event bus is configured.
func NewPublishing(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Publishing {
	return &Publishing{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "publishing"),
	}
}

// PublishFlow validates a draft and transitions it to published. Any
// previously published flow in the same scope is unpublished by the
// repository as part of the same operation.
func (p *Publishing) PublishFlow(ctx context.Context, flowID, actor string) (*models.Flow, error) {
	flow, err := p.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	if flow == nil {
		return nil, ErrFlowNotFound
	}

	if err := p.validateForPublishing(flow); err != nil {
		return nil, fmt.Errorf("flow validation failed: %w", err)
	}

	if err := p.persistence.FlowRepository().PublishFlow(ctx, flowID); err != nil {
		return nil, fmt.Errorf("failed to publish flow: %w", err)
	}

	published, err := p.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload published flow: %w", err)
	}

	p.audit(ctx, published, actor)
	p.notifyPublished(ctx, published)

	return published, nil
}

// GetPublishedFlow returns the published flow occupying a scope slot.
func (p *Publishing) GetPublishedFlow(ctx context.Context, scope models.FlowScope, tenantID string) (*models.Flow, error) {
	return p.persistence.FlowRepository().GetPublishedFlow(ctx, scope, tenantID)
}

// GetPublishedByGroup returns the published version of a flow group.
func (p *Publishing) GetPublishedByGroup(ctx context.Context, flowGroupID string) (*models.Flow, error) {
	status := models.FlowStatusPublished

	result, err := p.persistence.FlowRepository().ListFlows(ctx, persistence.ListFlowsOptions{
		Limit:  100,
		Status: &status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list published flows: %w", err)
	}

	for _, flow := range result.Flows {
		if flow.FlowGroupID == flowGroupID {
			return flow, nil
		}
	}

	return nil, persistence.NewFlowGroupError("GetPublishedByGroup", flowGroupID, persistence.ErrPublishedFlowNotFound)
}

// GetDraftFlow returns the draft version of a flow group.
func (p *Publishing) GetDraftFlow(ctx context.Context, flowGroupID string) (*models.Flow, error) {
	return p.persistence.FlowRepository().GetDraftFlow(ctx, flowGroupID)
}

// CreateDraftFromPublished creates a draft copy from the published version of
// a flow group.
func (p *Publishing) CreateDraftFromPublished(ctx context.Context, flowGroupID string) (*models.Flow, error) {
	draft, err := p.persistence.FlowRepository().CreateDraftFromPublished(ctx, flowGroupID)
	if err != nil {
		return nil, err
	}

	if p.publisher != nil {
		event := events.FlowDraftCreated{
			BaseEvent:   events.NewBaseEvent(events.FlowDraftCreatedEvent, draft.TenantID),
			FlowID:      draft.ID,
			FlowGroupID: draft.FlowGroupID,
		}

		if err := p.publisher.Publish(ctx, draft.FlowGroupID, event); err != nil {
			p.logger.Error("Failed to publish draft created event", "error", err, "flow_id", draft.ID)
		}
	}

	return draft, nil
}

// validateForPublishing ensures a flow is ready to be published.
func (p *Publishing) validateForPublishing(flow *models.Flow) error {
	if flow == nil {
		return ErrFlowNil
	}

	if flow.Name == "" {
		return ErrFlowNameRequired
	}

	if len(flow.Tasks()) == 0 {
		return ErrTasksRequired
	}

	if flow.Scope == models.FlowScopeTenant && flow.TenantID == "" {
		return ErrTenantScopeRequiresID
	}

	if err := flow.ValidateDependencies(); err != nil {
		return NewValidationError(
			"validateForPublishing",
			"INVALID_DEPENDENCIES",
			err.Error(),
			ErrInvalidDependencies,
		)
	}

	return nil
}

func (p *Publishing) audit(ctx context.Context, flow *models.Flow, actor string) {
	tenantID := flow.TenantID
	if tenantID == "" {
		tenantID = "*"
	}

	entry := &models.AuditEntry{
		ID:       uuid.New().String(),
		Action:   models.AuditActionFlowPublished,
		TenantID: tenantID,
		Actor:    actor,
		Detail: map[string]any{
			"flow_id":       flow.ID,
			"flow_group_id": flow.FlowGroupID,
			"version":       flow.Version,
			"scope":         string(flow.Scope),
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := p.persistence.AuditRepository().Append(ctx, entry); err != nil {
		p.logger.Error("Failed to write publish audit entry", "error", err, "flow_id", flow.ID)
	}
}

func (p *Publishing) notifyPublished(ctx context.Context, flow *models.Flow) {
	if p.publisher == nil {
		return
	}

	event := events.FlowPublished{
		BaseEvent:   events.NewBaseEvent(events.FlowPublishedEvent, flow.TenantID),
		FlowID:      flow.ID,
		FlowGroupID: flow.FlowGroupID,
		Version:     flow.Version,
		Scope:       string(flow.Scope),
	}

	if err := p.publisher.Publish(ctx, flow.FlowGroupID, event); err != nil {
		p.logger.Error("Failed to publish flow published event", "error", err, "flow_id", flow.ID)
	}
}
