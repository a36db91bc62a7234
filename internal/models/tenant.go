package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an isolated owner of devices and events, identified by an
// externally supplied key. Rows are created lazily on first reference and
// never deleted by this service.
type Tenant struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Key       string    `gorm:"not null;uniqueIndex" json:"key"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}
