// Package main provides the Gangplank interaction ingestor service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gangplankhq/gangplank/pkg/eventbus"
	"github.com/gangplankhq/gangplank/pkg/events"
	"github.com/gangplankhq/gangplank/pkg/services"
)

// Ingestor consumes wizard interaction events from the bus and appends them
// to the event store. Appends are idempotent on event ID, so redelivery
// after a crash is harmless.
type Ingestor struct {
	id       string
	eventBus eventbus.EventBus
	ingest   *services.Ingest
	logger   *slog.Logger
}

func NewIngestor(id string, eventBus eventbus.EventBus, ingest *services.Ingest, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		id:       id,
		eventBus: eventBus,
		ingest:   ingest,
		logger:   logger,
	}
}

// Start registers the interaction handler and blocks until the context is
// cancelled or a shutdown signal arrives.
func (i *Ingestor) Start(ctx context.Context) error {
	err := i.eventBus.Handle(events.InteractionRecordedEvent, i.handleInteraction)
	if err != nil {
		return fmt.Errorf("failed to register interaction handler: %w", err)
	}

	if err := i.eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	i.logger.InfoContext(ctx, "Ingestor started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		i.logger.InfoContext(ctx, "Received shutdown signal", "signal", sig.String())
	}

	return nil
}

func (i *Ingestor) handleInteraction(ctx context.Context, event any) error {
	recorded, ok := event.(*events.InteractionRecorded)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	interaction := recorded.Interaction

	err := i.ingest.Record(ctx, &interaction)
	if err != nil {
		if services.IsValidationError(err) {
			// Malformed events would fail forever; drop them.
			i.logger.WarnContext(ctx, "Dropping invalid interaction event",
				"error", err, "event_id", recorded.ID)

			return nil
		}

		return err
	}

	i.logger.DebugContext(ctx, "Recorded interaction",
		"event_id", interaction.ID,
		"type", string(interaction.Type),
		"tenant_id", interaction.TenantID,
	)

	return nil
}
