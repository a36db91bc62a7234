package repository

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/telemetra/device-event-svc/internal/models"
)

// EventRepository performs the idempotent insert-or-fetch of events and serves
// the filtered, paginated read path.
type EventRepository struct {
	logger *zap.Logger
}

func NewEventRepository(logger *zap.Logger) *EventRepository {
	return &EventRepository{logger: logger}
}

// InsertOrFetch attempts to create the event row. If a row already exists for
// (tenant_id, event_uid) the existing row is returned untouched and created is
// false; the new attempt's type, occurred_at and payload are discarded. That
// makes retried and duplicate submissions cheap and safe. The database's
// unique constraint is what decides the race: under concurrent duplicate
// submissions exactly one insert lands.
func (r *EventRepository) InsertOrFetch(tx *gorm.DB, event *models.Event) (*models.Event, bool, error) {
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "event_uid"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to insert event %q: %w", event.EventUID, res.Error)
	}

	if res.RowsAffected > 0 {
		return event, true, nil
	}

	var existing models.Event
	err := tx.Where("tenant_id = ? AND event_uid = ?", event.TenantID, event.EventUID).First(&existing).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch existing event %q: %w", event.EventUID, err)
	}
	return &existing, false, nil
}

// EventFilter holds the optional, independently omittable read-path filters.
// Empty fields are skipped; set fields combine with AND semantics.
type EventFilter struct {
	TenantKey string
	DeviceUID string
	Type      string
}

// EventRecord is a stored event joined with its tenant and device summaries.
type EventRecord struct {
	ID               int64          `json:"id"`
	EventUID         string         `json:"event_uid"`
	Type             string         `json:"type"`
	OccurredAt       time.Time      `json:"occurred_at"`
	Payload          models.JSONMap `json:"payload"`
	CreatedAt        time.Time      `json:"created_at"`
	TenantKey        string         `json:"tenant_key"`
	TenantName       string         `json:"tenant_name"`
	DeviceUID        string         `json:"device_uid"`
	DeviceLastSeenAt *time.Time     `json:"device_last_seen_at"`
}

// EventPage is one page of the filtered result set. TotalCount covers the
// whole filtered set, not just this page.
type EventPage struct {
	Records    []EventRecord `json:"events"`
	TotalCount int64         `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}

// QueryFiltered returns one page of events matching filter, newest first by
// occurred_at with ties broken by insertion order. page is 1-indexed; a page
// past the end of the result set yields an empty page, not an error.
func (r *EventRepository) QueryFiltered(db *gorm.DB, filter EventFilter, page, pageSize int) (*EventPage, error) {
	if page < 1 {
		page = 1
	}

	var total int64
	if err := r.filtered(db, filter).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	var records []EventRecord
	err := r.filtered(db, filter).
		Select(`events.id, events.event_uid, events.type, events.occurred_at, events.payload, events.created_at,
			tenants.key AS tenant_key, tenants.name AS tenant_name,
			devices.device_uid AS device_uid, devices.last_seen_at AS device_last_seen_at`).
		Order("events.occurred_at DESC, events.id ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Scan(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	if records == nil {
		records = []EventRecord{}
	}

	return &EventPage{
		Records:    records,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// filtered builds the joined base query with the AND-combined filters applied.
func (r *EventRepository) filtered(db *gorm.DB, filter EventFilter) *gorm.DB {
	query := db.Table("events").
		Joins("JOIN tenants ON tenants.id = events.tenant_id").
		Joins("JOIN devices ON devices.id = events.device_id")

	if filter.TenantKey != "" {
		query = query.Where("tenants.key = ?", filter.TenantKey)
	}
	if filter.DeviceUID != "" {
		query = query.Where("devices.device_uid = ?", filter.DeviceUID)
	}
	if filter.Type != "" {
		query = query.Where("events.type = ?", filter.Type)
	}

	return query
}
