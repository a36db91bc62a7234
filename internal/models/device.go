package models

import (
	"time"

	"github.com/google/uuid"
)

// Device belongs to exactly one tenant. DeviceUID is unique per tenant, not
// globally. LastSeenAt is derived state written only by the activity worker
// after an event commits.
type Device struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	TenantID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:devices_tenant_uid_unique" json:"tenant_id"`
	Tenant     Tenant     `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
	DeviceUID  string     `gorm:"not null;uniqueIndex:devices_tenant_uid_unique" json:"device_uid"`
	LastSeenAt *time.Time `json:"last_seen_at"`
	CreatedAt  time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Device) TableName() string {
	return "devices"
}
