// Package main provides the Gangplank API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/gangplankhq/gangplank/pkg/counters"
	"github.com/gangplankhq/gangplank/pkg/eventbus"
	"github.com/gangplankhq/gangplank/pkg/persistence"
	"github.com/gangplankhq/gangplank/pkg/services"
	"github.com/gangplankhq/gangplank/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	counters    *counters.Counters
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	counterStore *counters.Counters,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		counters:    counterStore,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	flowService := services.NewFlow(a.persistence)
	publishingService := services.NewPublishing(a.persistence, a.publisher(), a.logger)
	resolverService := services.NewResolver(a.persistence)
	overrideService := services.NewOverride(a.persistence, a.publisher(), a.logger)
	activationService := services.NewActivation(a.persistence, resolverService)
	statusService := services.NewStatus(a.persistence, a.publisher(), a.logger)
	analyticsService := services.NewAnalytics(a.persistence, a.counterSource(), a.logger)
	ingestService := services.NewIngest(a.persistence, statusService, a.counterSink(), a.logger)
	auditService := services.NewAudit(a.persistence)

	handlers := web.NewAPIHandlers(
		flowService,
		publishingService,
		resolverService,
		overrideService,
		activationService,
		statusService,
		analyticsService,
		ingestService,
		auditService,
		a.publisher(),
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Gangplank API")
	})

	f := app.Group("/flows")
	f.Get("/", handlers.GetFlows)
	f.Post("/", handlers.CreateFlow)
	f.Post("/import", handlers.ImportFlow)
	f.Get("/:id", handlers.GetFlow)
	f.Patch("/:id", handlers.UpdateFlow)
	f.Delete("/:id", handlers.DeleteFlow)
	f.Post("/:id/publish", handlers.PublishFlow)
	f.Get("/:id/analytics", handlers.GetFlowAnalytics)
	f.Get("/:id/analytics/tasks/:taskId", handlers.GetTaskAnalytics)
	f.Post("/groups/:groupId/create-draft", handlers.CreateDraftFromPublished)
	f.Get("/groups/:groupId/draft", handlers.GetDraftFlow)
	f.Get("/groups/:groupId/published", handlers.GetPublishedFlowByGroup)

	t := app.Group("/tenants/:tenantId")
	t.Get("/overrides", handlers.GetOverrides)
	t.Post("/overrides", handlers.CreateOverride)
	t.Patch("/overrides/:flowId", handlers.UpdateOverride)
	t.Delete("/overrides/:flowId", handlers.DeleteOverride)
	t.Get("/effective-flow", handlers.GetEffectiveFlow)
	t.Get("/audit", handlers.GetAuditLog)
	t.Get("/events", handlers.GetRecentEvents)
	t.Post("/reset", handlers.ResetTenant)

	u := t.Group("/users/:userId")
	u.Get("/activation", handlers.GetActivation)
	u.Post("/wizard/shown", handlers.MarkWizardShown)
	u.Post("/wizard/dismiss", handlers.DismissWizard)
	u.Get("/statuses", handlers.GetStatuses)
	u.Put("/statuses", handlers.SetStatus)
	u.Post("/reset", handlers.ResetUser)

	app.Post("/events", handlers.RecordEvent)

	app.Get("/health", handlers.HealthCheck)

	return app
}

// publisher returns the event bus as a publisher, or nil when no bus is
// configured. A typed nil interface would defeat the nil checks downstream.
func (a *API) publisher() eventbus.EventPublisher {
	if a.eventBus == nil {
		return nil
	}

	return a.eventBus
}

// counterSource returns the redis counters as an analytics read source, or
// nil when redis is not configured.
func (a *API) counterSource() services.CounterSource {
	if a.counters == nil {
		return nil
	}

	return a.counters
}

// counterSink returns the redis counters as an ingest sink. The synchronous
// ingest path bumps counters directly; with an event bus the ingestor binary
// does it instead.
func (a *API) counterSink() services.CounterSink {
	if a.counters == nil {
		return nil
	}

	return a.counters
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
