// Package main provides the Gangplank activation sweep service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gangplankhq/gangplank/pkg/eventbus"
	"github.com/gangplankhq/gangplank/pkg/events"
	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/otelhelper"
	"github.com/gangplankhq/gangplank/pkg/persistence"
)

// Activator periodically scans tenants with date_based activation and
// announces the ones that crossed their min-days threshold since the last
// sweep. Each tenant is announced once; the workspace state carries the
// marker.
type Activator struct {
	id          string
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	logger      *slog.Logger
	cron        *cron.Cron
}

func NewActivator(id string, persistence persistence.Persistence, eventBus eventbus.EventBus, tracer trace.Tracer, logger *slog.Logger) *Activator {
	return &Activator{
		id:          id,
		persistence: persistence,
		eventBus:    eventBus,
		tracer:      tracer,
		logger:      logger,
		cron:        cron.New(),
	}
}

// Start schedules the sweep and blocks until the context is cancelled or a
// shutdown signal arrives.
func (a *Activator) Start(ctx context.Context, schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule: %w", err)
	}

	_, err := a.cron.AddFunc(schedule, func() {
		if err := a.Sweep(ctx); err != nil {
			a.logger.ErrorContext(ctx, "Activation sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	a.cron.Start()
	a.logger.InfoContext(ctx, "Activator started", "schedule", schedule)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		a.logger.InfoContext(ctx, "Received shutdown signal", "signal", sig.String())
	}

	stopCtx := a.cron.Stop()
	<-stopCtx.Done()

	return nil
}

// Sweep runs one pass over all overrides with date_based activation.
func (a *Activator) Sweep(ctx context.Context) error {
	ctx, span := otelhelper.StartSpan(ctx, a.tracer, "activator.sweep",
		attribute.String(otelhelper.ServiceIDKey, a.id))
	defer span.End()

	overrides, err := a.persistence.OverrideRepository().ListAll(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to list overrides: %w", err)
	}

	now := time.Now().UTC()

	var activated int

	for _, override := range overrides {
		if !override.Enabled || override.Activation.Type != models.ActivationDateBased {
			continue
		}

		ok, err := a.activateTenant(ctx, override, now)
		if err != nil {
			otelhelper.SetError(span, err,
				attribute.String(otelhelper.TenantIDKey, override.TenantID))
			a.logger.ErrorContext(ctx, "Failed to evaluate tenant activation",
				"error", err, "tenant_id", override.TenantID)

			continue
		}

		if ok {
			activated++
		}
	}

	span.SetAttributes(attribute.Int("gangplank.sweep.activated", activated))
	a.logger.InfoContext(ctx, "Activation sweep complete",
		"overrides", len(overrides), "activated", activated)

	return nil
}

// activateTenant checks one tenant's threshold and announces activation when
// it has newly been reached. Returns true when an announcement was made.
func (a *Activator) activateTenant(ctx context.Context, override *models.Override, now time.Time) (bool, error) {
	state, err := a.persistence.StateRepository().GetWorkspaceState(ctx, override.TenantID)
	if err != nil {
		return false, fmt.Errorf("failed to load workspace state: %w", err)
	}

	if state == nil || state.ActivatedAt != nil {
		return false, nil
	}

	days := int(now.Sub(state.CreatedAt).Hours() / 24)
	if days < override.Activation.MinDaysActive {
		return false, nil
	}

	event := events.OnboardingActivated{
		BaseEvent: events.NewBaseEvent(events.OnboardingActivatedEvent, override.TenantID),
		FlowID:    override.FlowID,
		Reason:    string(models.ActivationDateBased),
	}

	if err := a.eventBus.Publish(ctx, override.TenantID, event); err != nil {
		return false, fmt.Errorf("failed to publish activation event: %w", err)
	}

	state.ActivatedAt = &now

	if err := a.persistence.StateRepository().SaveWorkspaceState(ctx, state); err != nil {
		return false, fmt.Errorf("failed to record activation: %w", err)
	}

	a.logger.InfoContext(ctx, "Tenant activated",
		"tenant_id", override.TenantID, "flow_id", override.FlowID, "days_active", days)

	return true, nil
}
