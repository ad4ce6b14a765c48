// Package events defines event types and structures for onboarding lifecycle
// notifications and wizard interaction ingestion.
package events

import (
	"time"

	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const Topic = "gangplank.events"                       // Lifecycle events
const InteractionTopic = "gangplank.interactions"      // Raw wizard interaction events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Flow lifecycle events.
	FlowPublishedEvent     EventType = "flow.published"
	FlowDraftCreatedEvent  EventType = "flow.draft.created"
	OverrideUpdatedEvent   EventType = "override.updated"

	// Per-tenant onboarding lifecycle events.
	OnboardingActivatedEvent EventType = "onboarding.activated"
	TaskCompletedEvent       EventType = "onboarding.task.completed"
	StatusResetEvent         EventType = "onboarding.status.reset"

	// Raw wizard interaction, carried on InteractionTopic.
	InteractionRecordedEvent EventType = "onboarding.interaction"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates a base event with a fresh ID and timestamp.
func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
	}
}

type FlowPublished struct {
	BaseEvent

	FlowID      string `json:"flow_id"`
	FlowGroupID string `json:"flow_group_id"`
	Version     int    `json:"version"`
	Scope       string `json:"scope"`
}

func (e FlowPublished) GetType() EventType {
	return FlowPublishedEvent
}

type FlowDraftCreated struct {
	BaseEvent

	FlowID      string `json:"flow_id"`
	FlowGroupID string `json:"flow_group_id"`
}

func (e FlowDraftCreated) GetType() EventType {
	return FlowDraftCreatedEvent
}

type OverrideUpdated struct {
	BaseEvent

	FlowID     string `json:"flow_id"`
	OverrideID string `json:"override_id"`
}

func (e OverrideUpdated) GetType() EventType {
	return OverrideUpdatedEvent
}

type OnboardingActivated struct {
	BaseEvent

	FlowID string `json:"flow_id"`
	UserID string `json:"user_id,omitempty"`
	Reason string `json:"reason"` // always, date_based, event_based
}

func (e OnboardingActivated) GetType() EventType {
	return OnboardingActivatedEvent
}

type TaskCompleted struct {
	BaseEvent

	FlowID string `json:"flow_id"`
	UserID string `json:"user_id"`
	TaskID string `json:"task_id"`
}

func (e TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

type StatusReset struct {
	BaseEvent

	UserID       string `json:"user_id,omitempty"` // empty for tenant-wide resets
	RowsRemoved  int64  `json:"rows_removed"`
	Partial      bool   `json:"partial"`
}

func (e StatusReset) GetType() EventType {
	return StatusResetEvent
}

// InteractionRecorded wraps a single wizard interaction for transport. The
// ingestor consumes these and appends them to the event store.
type InteractionRecorded struct {
	BaseEvent

	Interaction models.InteractionEvent `json:"interaction"`
}

func (e InteractionRecorded) GetType() EventType {
	return InteractionRecordedEvent
}
