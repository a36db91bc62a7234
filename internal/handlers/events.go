package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/telemetra/device-event-svc/internal/config"
	"github.com/telemetra/device-event-svc/internal/models"
	"github.com/telemetra/device-event-svc/internal/repository"
	"github.com/telemetra/device-event-svc/internal/service"
)

// EventService is the core the handlers delegate to. Validation happens here,
// before the core is invoked; the core only ever sees well-formed input.
type EventService interface {
	StoreEvent(ctx context.Context, in service.StoreEventInput) (*service.StoredEvent, error)
	QueryEvents(ctx context.Context, q service.EventQuery) (*repository.EventPage, error)
}

// EventsHandler exposes the ingest and query endpoints.
type EventsHandler struct {
	svc    EventService
	cfg    *config.IngestConfig
	logger *zap.Logger
}

func NewEventsHandler(svc EventService, cfg *config.IngestConfig, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
	}
}

// ingestRequest is the POST /events body. Payload stays raw until validated
// so it can be stored verbatim.
type ingestRequest struct {
	TenantKey  string          `json:"tenant_key"`
	TenantName string          `json:"tenant_name,omitempty"`
	DeviceUID  string          `json:"device_uid"`
	EventUID   string          `json:"event_uid"`
	Type       string          `json:"type"`
	OccurredAt string          `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type tenantSummary struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type deviceSummary struct {
	DeviceUID  string     `json:"device_uid"`
	LastSeenAt *time.Time `json:"last_seen_at"`
}

type eventResource struct {
	ID         int64          `json:"id"`
	EventUID   string         `json:"event_uid"`
	Type       string         `json:"type"`
	OccurredAt string         `json:"occurred_at"`
	Payload    models.JSONMap `json:"payload"`
	CreatedAt  string         `json:"created_at"`
	Tenant     tenantSummary  `json:"tenant"`
	Device     deviceSummary  `json:"device"`
}

// StoreEvent handles POST /api/v1/events.
//
// 201 when the event is newly created, 200 when it already existed; both
// return the stored row. A duplicate is expected steady-state behavior, not
// an error.
func (h *EventsHandler) StoreEvent(c *fiber.Ctx) error {
	var req ingestRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid JSON body", err.Error())
	}

	if errs := h.validate(&req); len(errs) > 0 {
		return errorResponse(c, fiber.StatusUnprocessableEntity, "Validation failed", errs)
	}

	occurredAt, err := time.Parse(time.RFC3339, req.OccurredAt)
	if err != nil {
		return errorResponse(c, fiber.StatusUnprocessableEntity, "Validation failed",
			map[string]string{"occurred_at": "must be an ISO-8601 timestamp"})
	}

	// a JSON null unmarshals into a nil map without error, so check both
	var payload models.JSONMap
	if err := json.Unmarshal(req.Payload, &payload); err != nil || payload == nil {
		return errorResponse(c, fiber.StatusUnprocessableEntity, "Validation failed",
			map[string]string{"payload": "must be a JSON object"})
	}

	result, err := h.svc.StoreEvent(c.Context(), service.StoreEventInput{
		TenantKey:  req.TenantKey,
		NameHint:   req.TenantName,
		DeviceUID:  req.DeviceUID,
		EventUID:   req.EventUID,
		Type:       req.Type,
		OccurredAt: occurredAt.UTC(),
		Payload:    payload,
	})
	if err != nil {
		h.logger.Error("Failed to store event",
			zap.String("tenant_key", req.TenantKey),
			zap.String("event_uid", req.EventUID),
			zap.Error(err),
		)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to store event", nil)
	}

	message := "Event already exists"
	statusCode := fiber.StatusOK
	if result.Created {
		message = "Event created successfully"
		statusCode = fiber.StatusCreated
	}

	return successResponse(c, statusCode, message, toEventResource(result))
}

// validate checks required fields and the payload constraints. All failures
// are collected so the caller sees every problem at once.
func (h *EventsHandler) validate(req *ingestRequest) map[string]string {
	errs := map[string]string{}

	if req.TenantKey == "" {
		errs["tenant_key"] = "required"
	}
	if req.DeviceUID == "" {
		errs["device_uid"] = "required"
	}
	if req.EventUID == "" {
		errs["event_uid"] = "required"
	}
	if req.Type == "" {
		errs["type"] = "required"
	}
	if req.OccurredAt == "" {
		errs["occurred_at"] = "required"
	}
	if len(req.Payload) == 0 {
		errs["payload"] = "required"
	} else if len(req.Payload) > h.cfg.MaxPayloadBytes {
		errs["payload"] = "exceeds maximum size"
	}

	return errs
}

func toEventResource(result *service.StoredEvent) eventResource {
	return eventResource{
		ID:         result.Event.ID,
		EventUID:   result.Event.EventUID,
		Type:       result.Event.Type,
		OccurredAt: result.Event.OccurredAt.UTC().Format(time.RFC3339),
		Payload:    result.Event.Payload,
		CreatedAt:  result.Event.CreatedAt.UTC().Format(time.RFC3339),
		Tenant: tenantSummary{
			Key:  result.Tenant.Key,
			Name: result.Tenant.Name,
		},
		Device: deviceSummary{
			DeviceUID:  result.Device.DeviceUID,
			LastSeenAt: result.Device.LastSeenAt,
		},
	}
}

// GetEvents handles GET /api/v1/events.
//
// Optional query parameters: tenant_key, device_uid, type (exact-match AND
// filters) and page (1-indexed). A page past the end returns an empty page.
func (h *EventsHandler) GetEvents(c *fiber.Ctx) error {
	page := 1
	if pageStr := c.Query("page"); pageStr != "" {
		parsed, err := strconv.Atoi(pageStr)
		if err != nil || parsed < 1 {
			return errorResponse(c, fiber.StatusBadRequest, "page must be a positive integer", nil)
		}
		page = parsed
	}

	result, err := h.svc.QueryEvents(c.Context(), service.EventQuery{
		TenantKey: c.Query("tenant_key"),
		DeviceUID: c.Query("device_uid"),
		Type:      c.Query("type"),
		Page:      page,
	})
	if err != nil {
		h.logger.Error("Failed to query events", zap.Error(err))
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve events", nil)
	}

	return successResponse(c, fiber.StatusOK, "Events retrieved successfully", result)
}
