// Package web provides HTTP handlers and REST API endpoints for onboarding
// flow management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/gangplankhq/gangplank/pkg/eventbus"
	"github.com/gangplankhq/gangplank/pkg/events"
	"github.com/gangplankhq/gangplank/pkg/models"
	"github.com/gangplankhq/gangplank/pkg/persistence"
	"github.com/gangplankhq/gangplank/pkg/services"
)

type APIHandlers struct {
	flowService       *services.Flow
	publishingService *services.Publishing
	resolverService   *services.Resolver
	overrideService   *services.Override
	activationService *services.Activation
	statusService     *services.Status
	analyticsService  *services.Analytics
	ingestService     *services.Ingest
	auditService      *services.Audit
	publisher         eventbus.EventPublisher
	validator         *validator.Validate
}

func NewAPIHandlers(
	flowService *services.Flow,
	publishingService *services.Publishing,
	resolverService *services.Resolver,
	overrideService *services.Override,
	activationService *services.Activation,
	statusService *services.Status,
	analyticsService *services.Analytics,
	ingestService *services.Ingest,
	auditService *services.Audit,
	publisher eventbus.EventPublisher,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		flowService:       flowService,
		publishingService: publishingService,
		resolverService:   resolverService,
		overrideService:   overrideService,
		activationService: activationService,
		statusService:     statusService,
		analyticsService:  analyticsService,
		ingestService:     ingestService,
		auditService:      auditService,
		publisher:         publisher,
		validator:         validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Gangplank API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Gangplank API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// ---- Flow administration ----

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	req, err := h.parseListFlowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.flowService.ListFlows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"flows":         result.Flows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListFlowsRequest parses and validates query parameters for listing flows.
func (h *APIHandlers) parseListFlowsRequest(c fiber.Ctx) (*services.ListFlowsRequest, error) {
	req := &services.ListFlowsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.OwnerID = c.Query("owner_id")
	req.TenantID = c.Query("tenant_id")

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.FlowStatus(statusStr)
		req.Status = &status
	}

	if scopeStr := c.Query("scope"); scopeStr != "" {
		scope := models.FlowScope(scopeStr)
		req.Scope = &scope
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	flow, err := h.flowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsFlowNotFound(err) {
			return notFound(c, "Flow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	flow := &models.Flow{
		Name:        req.Name,
		Description: req.Description,
		Scope:       models.FlowScope(req.Scope),
		TenantID:    req.TenantID,
		Categories:  req.Categories,
		Metadata:    req.Metadata,
		Owner:       req.Owner,
	}

	created, err := h.flowService.Create(c.Context(), flow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// ImportFlow creates a draft from a raw flow configuration document after
// schema validation.
func (h *APIHandlers) ImportFlow(c fiber.Ctx) error {
	created, err := h.flowService.CreateFromConfig(c.Context(), c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	var req UpdateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.flowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsFlowNotFound(err) {
			return notFound(c, "Flow not found")
		}

		return internalError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Categories != nil {
		existing.Categories = req.Categories
	}

	if req.Metadata != nil {
		existing.Metadata = req.Metadata
	}

	updated, err := h.flowService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	err := h.flowService.Delete(c.Context(), id)
	if err != nil {
		if persistence.IsFlowNotFound(err) {
			return notFound(c, "Flow not found")
		}

		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	published, err := h.publishingService.PublishFlow(c.Context(), id, c.Get("X-Actor"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) CreateDraftFromPublished(c fiber.Ctx) error {
	groupID := c.Params("groupId")
	if groupID == "" {
		return badRequest(c, "Flow group ID is required")
	}

	draft, err := h.publishingService.CreateDraftFromPublished(c.Context(), groupID)
	if err != nil {
		if persistence.IsPublishedFlowNotFound(err) {
			return notFound(c, "Published flow not found")
		}

		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(draft)
}

func (h *APIHandlers) GetPublishedFlowByGroup(c fiber.Ctx) error {
	groupID := c.Params("groupId")
	if groupID == "" {
		return badRequest(c, "Flow group ID is required")
	}

	published, err := h.publishingService.GetPublishedByGroup(c.Context(), groupID)
	if err != nil {
		if persistence.IsPublishedFlowNotFound(err) {
			return notFound(c, "Published flow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) GetDraftFlow(c fiber.Ctx) error {
	groupID := c.Params("groupId")
	if groupID == "" {
		return badRequest(c, "Flow group ID is required")
	}

	draft, err := h.publishingService.GetDraftFlow(c.Context(), groupID)
	if err != nil {
		if persistence.IsDraftFlowNotFound(err) {
			return notFound(c, "Draft flow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(draft)
}

// ---- Tenant overrides and resolution ----

func (h *APIHandlers) GetOverrides(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	if tenantID == "" {
		return badRequest(c, "Tenant ID is required")
	}

	overrides, err := h.overrideService.ListByTenant(c.Context(), tenantID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"overrides": overrides})
}

func (h *APIHandlers) CreateOverride(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	if tenantID == "" {
		return badRequest(c, "Tenant ID is required")
	}

	var req UpsertOverrideRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	override := &models.Override{
		FlowID:                req.FlowID,
		TenantID:              tenantID,
		Enabled:               req.Enabled,
		Gating:                req.Gating,
		Activation:            req.Activation,
		TaskOverrides:         req.TaskOverrides,
		IntegrationPreference: req.IntegrationPreference,
		TaskOrder:             req.TaskOrder,
	}

	created, err := h.overrideService.Create(c.Context(), override)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateOverride(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	flowID := c.Params("flowId")

	if tenantID == "" || flowID == "" {
		return badRequest(c, "Tenant ID and flow ID are required")
	}

	var req UpsertOverrideRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	override := &models.Override{
		Enabled:               req.Enabled,
		Gating:                req.Gating,
		Activation:            req.Activation,
		TaskOverrides:         req.TaskOverrides,
		IntegrationPreference: req.IntegrationPreference,
		TaskOrder:             req.TaskOrder,
	}

	updated, err := h.overrideService.Update(c.Context(), flowID, tenantID, override)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteOverride(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	flowID := c.Params("flowId")

	if tenantID == "" || flowID == "" {
		return badRequest(c, "Tenant ID and flow ID are required")
	}

	err := h.overrideService.Delete(c.Context(), flowID, tenantID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetEffectiveFlow returns the resolved per-tenant view of the published
// flow. Not-found resolves to 404, never a masked success.
func (h *APIHandlers) GetEffectiveFlow(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	if tenantID == "" {
		return badRequest(c, "Tenant ID is required")
	}

	effective, err := h.resolverService.EffectiveFlow(c.Context(), tenantID)
	if err != nil {
		if persistence.IsPublishedFlowNotFound(err) {
			return notFound(c, "No published flow for tenant")
		}

		return handleServiceError(c, err)
	}

	return c.JSON(effective)
}

// ---- Activation and display ----

func (h *APIHandlers) GetActivation(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	userID := c.Params("userId")

	if tenantID == "" || userID == "" {
		return badRequest(c, "Tenant ID and user ID are required")
	}

	result, err := h.activationService.Evaluate(c.Context(), tenantID, userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) MarkWizardShown(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	userID := c.Params("userId")

	if tenantID == "" || userID == "" {
		return badRequest(c, "Tenant ID and user ID are required")
	}

	if err := h.activationService.MarkWizardShown(c.Context(), tenantID, userID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DismissWizard(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	userID := c.Params("userId")

	if tenantID == "" || userID == "" {
		return badRequest(c, "Tenant ID and user ID are required")
	}

	if err := h.activationService.DismissWizard(c.Context(), tenantID, userID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ---- Task statuses ----

func (h *APIHandlers) GetStatuses(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	userID := c.Params("userId")
	flowID := c.Query("flow_id")

	if tenantID == "" || userID == "" {
		return badRequest(c, "Tenant ID and user ID are required")
	}

	if flowID == "" {
		return badRequest(c, "flow_id query parameter is required")
	}

	statuses, err := h.statusService.Progress(c.Context(), flowID, tenantID, userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	rate, err := h.statusService.UserCompletionRate(c.Context(), flowID, tenantID, userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"statuses":        statuses,
		"completion_rate": rate,
	})
}

func (h *APIHandlers) SetStatus(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	userID := c.Params("userId")

	if tenantID == "" || userID == "" {
		return badRequest(c, "Tenant ID and user ID are required")
	}

	var req SetStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	status := &models.TaskStatus{
		FlowID:   req.FlowID,
		TenantID: tenantID,
		UserID:   userID,
		TaskID:   req.TaskID,
		Status:   models.TaskState(req.Status),
	}

	if err := h.statusService.SetStatus(c.Context(), status); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) ResetUser(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	userID := c.Params("userId")

	if tenantID == "" || userID == "" {
		return badRequest(c, "Tenant ID and user ID are required")
	}

	removed, err := h.statusService.ResetForUser(c.Context(), tenantID, userID, c.Get("X-Actor"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ResetResponse{TenantID: tenantID, UserID: userID, RowsRemoved: removed})
}

func (h *APIHandlers) ResetTenant(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	if tenantID == "" {
		return badRequest(c, "Tenant ID is required")
	}

	removed, err := h.statusService.ResetForTenant(c.Context(), tenantID, c.Get("X-Actor"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ResetResponse{TenantID: tenantID, RowsRemoved: removed})
}

// ---- Interaction events ----

// RecordEvent ingests one wizard interaction. With an event bus configured
// the event goes through the bus and the ingestor appends it; otherwise it
// is stored synchronously.
func (h *APIHandlers) RecordEvent(c fiber.Ctx) error {
	var req RecordEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	interaction := models.InteractionEvent{
		Type:             models.InteractionType(req.Type),
		FlowID:           req.FlowID,
		TenantID:         req.TenantID,
		UserID:           req.UserID,
		TaskID:           req.TaskID,
		TimeSpentSeconds: req.TimeSpentSeconds,
		OccurredAt:       time.Now().UTC(),
	}

	if h.publisher != nil {
		event := events.InteractionRecorded{
			BaseEvent:   events.NewBaseEvent(events.InteractionRecordedEvent, req.TenantID),
			Interaction: interaction,
		}
		// Reusing the envelope ID keeps redelivery idempotent downstream.
		event.Interaction.ID = event.ID

		if err := h.publisher.Publish(c.Context(), req.TenantID, event); err != nil {
			return internalError(c, err)
		}

		return c.SendStatus(fiber.StatusAccepted)
	}

	if err := h.ingestService.Record(c.Context(), &interaction); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(interaction)
}

// ---- Analytics ----

func (h *APIHandlers) GetFlowAnalytics(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	window, err := parseTimeWindow(c)
	if err != nil {
		return badRequest(c, "Invalid time window: "+err.Error())
	}

	report, err := h.analyticsService.ForFlow(c.Context(), id, window)
	if err != nil {
		if persistence.IsFlowNotFound(err) {
			return notFound(c, "Flow not found")
		}

		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) GetTaskAnalytics(c fiber.Ctx) error {
	id := c.Params("id")
	taskID := c.Params("taskId")
	tenantID := c.Query("tenant_id")

	if id == "" || taskID == "" {
		return badRequest(c, "Flow ID and task ID are required")
	}

	metrics, err := h.analyticsService.ForTask(c.Context(), id, tenantID, taskID)
	if err != nil {
		if persistence.IsFlowNotFound(err) {
			return notFound(c, "Flow not found")
		}

		return handleServiceError(c, err)
	}

	return c.JSON(metrics)
}

func parseTimeWindow(c fiber.Ctx) (persistence.TimeWindow, error) {
	var window persistence.TimeWindow

	if fromStr := c.Query("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return window, err
		}

		window.From = from
	}

	if toStr := c.Query("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return window, err
		}

		window.To = to
	}

	return window, nil
}

// ---- Audit ----

// GetRecentEvents exposes the tail of a tenant's event stream for debugging
// ingestion problems.
func (h *APIHandlers) GetRecentEvents(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	if tenantID == "" {
		return badRequest(c, "Tenant ID is required")
	}

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit")
		}

		limit = parsed
	}

	recent, err := h.ingestService.RecentEvents(c.Context(), tenantID, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"events": recent})
}

func (h *APIHandlers) GetAuditLog(c fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	if tenantID == "" {
		return badRequest(c, "Tenant ID is required")
	}

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit")
		}

		limit = parsed
	}

	entries, err := h.auditService.ListByTenant(c.Context(), tenantID, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries})
}
