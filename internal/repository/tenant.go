package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/telemetra/device-event-svc/internal/models"
)

// TenantRepository resolves external tenant keys to tenant rows.
//
// Methods take the unit of work (a *gorm.DB, usually a transaction) explicitly
// so the ingestion path can compose tenant, device and event effects inside a
// single transaction.
type TenantRepository struct {
	logger *zap.Logger
}

func NewTenantRepository(logger *zap.Logger) *TenantRepository {
	return &TenantRepository{logger: logger}
}

// Resolve returns the tenant for key, creating it on first sight.
//
// An existing tenant is returned unchanged; nameHint only applies at creation
// time (and defaults to the key itself). Concurrent creators race through the
// unique constraint on key: the loser's insert affects zero rows and the
// winner's row is fetched instead, so exactly one tenant results and nobody
// sees an error.
func (r *TenantRepository) Resolve(tx *gorm.DB, key, nameHint string) (*models.Tenant, error) {
	var tenant models.Tenant

	err := tx.Where("key = ?", key).First(&tenant).Error
	if err == nil {
		return &tenant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up tenant %q: %w", key, err)
	}

	name := nameHint
	if name == "" {
		name = key
	}

	tenant = models.Tenant{
		ID:   uuid.New(),
		Key:  key,
		Name: name,
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&tenant)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create tenant %q: %w", key, res.Error)
	}

	if res.RowsAffected == 0 {
		// Lost the insert race; fetch the winner.
		if err := tx.Where("key = ?", key).First(&tenant).Error; err != nil {
			return nil, fmt.Errorf("failed to fetch tenant %q after conflict: %w", key, err)
		}
		return &tenant, nil
	}

	r.logger.Info("Created tenant",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("tenant_key", key),
	)
	return &tenant, nil
}

// FindByKey returns the tenant for key, or gorm.ErrRecordNotFound.
func (r *TenantRepository) FindByKey(tx *gorm.DB, key string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := tx.Where("key = ?", key).First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}
