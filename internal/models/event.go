package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is an immutable fact reported by a device. The (tenant_id, event_uid)
// pair is the idempotency key: the unique constraint on it is what guarantees
// at most one row per logical event, regardless of how often the same event is
// submitted. Rows are never mutated or deleted after creation.
type Event struct {
	ID         int64     `gorm:"primary_key;autoIncrement" json:"id"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:events_tenant_uid_unique" json:"tenant_id"`
	Tenant     Tenant    `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
	DeviceID   uuid.UUID `gorm:"type:uuid;not null" json:"device_id"`
	Device     Device    `gorm:"foreignKey:DeviceID" json:"device,omitempty"`
	EventUID   string    `gorm:"not null;uniqueIndex:events_tenant_uid_unique" json:"event_uid"`
	Type       string    `gorm:"not null" json:"type"`
	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
	Payload    JSONMap   `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Event) TableName() string {
	return "events"
}
