package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/telemetra/device-event-svc/internal/models"
)

// DeviceRepository resolves (tenant, device_uid) pairs to device rows and
// maintains the derived last_seen_at attribute.
type DeviceRepository struct {
	logger *zap.Logger
}

func NewDeviceRepository(logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{logger: logger}
}

// Resolve returns the device for (tenantID, deviceUID), creating it on first
// sight. Uniqueness is enforced on the pair, so two tenants can use the same
// device identifier independently. Same race handling as tenant resolution:
// insert with ON CONFLICT DO NOTHING, re-fetch the winner when the insert
// affected no rows.
func (r *DeviceRepository) Resolve(tx *gorm.DB, tenantID uuid.UUID, deviceUID string) (*models.Device, error) {
	var device models.Device

	err := tx.Where("tenant_id = ? AND device_uid = ?", tenantID, deviceUID).First(&device).Error
	if err == nil {
		return &device, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up device %q: %w", deviceUID, err)
	}

	device = models.Device{
		ID:        uuid.New(),
		TenantID:  tenantID,
		DeviceUID: deviceUID,
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "device_uid"}},
		DoNothing: true,
	}).Create(&device)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create device %q: %w", deviceUID, res.Error)
	}

	if res.RowsAffected == 0 {
		if err := tx.Where("tenant_id = ? AND device_uid = ?", tenantID, deviceUID).First(&device).Error; err != nil {
			return nil, fmt.Errorf("failed to fetch device %q after conflict: %w", deviceUID, err)
		}
		return &device, nil
	}

	r.logger.Info("Created device",
		zap.String("device_id", device.ID.String()),
		zap.String("device_uid", deviceUID),
		zap.String("tenant_id", tenantID.String()),
	)
	return &device, nil
}

// MarkSeen advances the device's last_seen_at to seenAt, but never backward:
// the update is guarded so an out-of-order activity message cannot regress
// the value. A missing device or an already-newer timestamp affects zero rows
// and is not an error.
func (r *DeviceRepository) MarkSeen(db *gorm.DB, deviceID uuid.UUID, seenAt time.Time) error {
	res := db.Model(&models.Device{}).
		Where("id = ? AND (last_seen_at IS NULL OR last_seen_at < ?)", deviceID, seenAt).
		Updates(map[string]interface{}{
			"last_seen_at": seenAt,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update last_seen_at for device %s: %w", deviceID, res.Error)
	}

	if res.RowsAffected == 0 {
		r.logger.Debug("last_seen_at unchanged",
			zap.String("device_id", deviceID.String()),
			zap.Time("seen_at", seenAt),
		)
	}
	return nil
}
