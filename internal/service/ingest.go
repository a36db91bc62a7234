package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/telemetra/device-event-svc/internal/models"
	"github.com/telemetra/device-event-svc/internal/repository"
)

// ActivityPublisher hands a device-activity task to the side-effect queue.
// Implementations must not require the caller to wait for the task to be
// processed.
type ActivityPublisher interface {
	PublishDeviceActivity(msg models.DeviceActivityMessage) error
}

// StoreEventInput is a validated ingestion request. Field presence and types
// are guaranteed by the handler layer before the service is invoked.
type StoreEventInput struct {
	TenantKey  string
	NameHint   string
	DeviceUID  string
	EventUID   string
	Type       string
	OccurredAt time.Time
	Payload    models.JSONMap
}

// StoredEvent is the outcome of an ingestion call. Created distinguishes a
// first-time insert from an idempotent replay of an existing event.
type StoredEvent struct {
	Event   *models.Event
	Tenant  *models.Tenant
	Device  *models.Device
	Created bool
}

// EventQuery is the read-path request.
type EventQuery struct {
	TenantKey string
	DeviceUID string
	Type      string
	Page      int
}

// IngestService composes tenant resolution, device resolution and the
// idempotent event insert into one transaction, and triggers the last-seen
// side effect on first insertion only.
type IngestService struct {
	db        *gorm.DB
	tenants   *repository.TenantRepository
	devices   *repository.DeviceRepository
	events    *repository.EventRepository
	publisher ActivityPublisher
	pageSize  int
	logger    *zap.Logger
}

func NewIngestService(
	db *gorm.DB,
	tenants *repository.TenantRepository,
	devices *repository.DeviceRepository,
	events *repository.EventRepository,
	publisher ActivityPublisher,
	pageSize int,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		db:        db,
		tenants:   tenants,
		devices:   devices,
		events:    events,
		publisher: publisher,
		pageSize:  pageSize,
		logger:    logger,
	}
}

// StoreEvent resolves the tenant and device and inserts the event exactly once
// per (tenant, event_uid), all inside one transaction: either all three
// effects commit together or none do. The activity task is handed off only
// after the transaction commits and only when the event was newly created, so
// a rolled-back transaction can never trigger the side effect.
func (s *IngestService) StoreEvent(ctx context.Context, in StoreEventInput) (*StoredEvent, error) {
	var result StoredEvent

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := s.tenants.Resolve(tx, in.TenantKey, in.NameHint)
		if err != nil {
			return err
		}

		device, err := s.devices.Resolve(tx, tenant.ID, in.DeviceUID)
		if err != nil {
			return err
		}

		event, created, err := s.events.InsertOrFetch(tx, &models.Event{
			TenantID:   tenant.ID,
			DeviceID:   device.ID,
			EventUID:   in.EventUID,
			Type:       in.Type,
			OccurredAt: in.OccurredAt,
			Payload:    in.Payload,
		})
		if err != nil {
			return err
		}

		result = StoredEvent{
			Event:   event,
			Tenant:  tenant,
			Device:  device,
			Created: created,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store event %q failed: %w", in.EventUID, err)
	}

	if result.Created {
		s.publishActivity(result.Device.ID.String(), in.OccurredAt)
	}

	return &result, nil
}

// publishActivity is fire-and-forget: the last-seen timestamp is best-effort
// derived state, so a publish failure is logged and never surfaced to the
// ingestion caller.
func (s *IngestService) publishActivity(deviceID string, occurredAt time.Time) {
	msg := models.DeviceActivityMessage{
		DeviceID:   deviceID,
		OccurredAt: occurredAt,
	}
	if err := s.publisher.PublishDeviceActivity(msg); err != nil {
		s.logger.Error("Failed to publish device activity task",
			zap.String("device_id", deviceID),
			zap.Time("occurred_at", occurredAt),
			zap.Error(err),
		)
	}
}

// QueryEvents returns one fixed-size page of events matching the query.
func (s *IngestService) QueryEvents(ctx context.Context, q EventQuery) (*repository.EventPage, error) {
	filter := repository.EventFilter{
		TenantKey: q.TenantKey,
		DeviceUID: q.DeviceUID,
		Type:      q.Type,
	}

	page, err := s.events.QueryFiltered(s.db.WithContext(ctx), filter, q.Page, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("query events failed: %w", err)
	}
	return page, nil
}
