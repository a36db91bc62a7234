package main

import (
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/telemetra/device-event-svc/internal/config"
	"github.com/telemetra/device-event-svc/internal/database"
	"github.com/telemetra/device-event-svc/internal/logger"
	"github.com/telemetra/device-event-svc/internal/models"
	"github.com/telemetra/device-event-svc/internal/repository"
)

// Seeds a demo tenant with two devices and three events. Intended for local
// development; reruns are idempotent since everything goes through
// get-or-create.
func main() {
	log, err := logger.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := database.Connect(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db, log)

	if err := database.RunMigrations(&cfg.Database, log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	tenants := repository.NewTenantRepository(log)
	devices := repository.NewDeviceRepository(log)
	events := repository.NewEventRepository(log)

	err = db.Transaction(func(tx *gorm.DB) error {
		tenant, err := tenants.Resolve(tx, "acme", "ACME Corporation")
		if err != nil {
			return err
		}

		dev1, err := devices.Resolve(tx, tenant.ID, "DEV-001")
		if err != nil {
			return err
		}
		dev2, err := devices.Resolve(tx, tenant.ID, "DEV-002")
		if err != nil {
			return err
		}

		seedEvents := []models.Event{
			{
				TenantID:   tenant.ID,
				DeviceID:   dev1.ID,
				EventUID:   "evt_000001",
				Type:       "location",
				OccurredAt: time.Date(2026, 1, 28, 8, 12, 11, 0, time.UTC),
				Payload:    models.JSONMap{"lat": 48.1486, "lng": 17.1077, "accuracy": 12},
			},
			{
				TenantID:   tenant.ID,
				DeviceID:   dev1.ID,
				EventUID:   "evt_000002",
				Type:       "battery",
				OccurredAt: time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC),
				Payload:    models.JSONMap{"level": 75},
			},
			{
				TenantID:   tenant.ID,
				DeviceID:   dev2.ID,
				EventUID:   "evt_000003",
				Type:       "location",
				OccurredAt: time.Date(2026, 1, 28, 10, 30, 0, 0, time.UTC),
				Payload:    models.JSONMap{"lat": 40.7128, "lng": -74.0060, "accuracy": 8},
			},
		}

		for i := range seedEvents {
			if _, _, err := events.InsertOrFetch(tx, &seedEvents[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Failed to seed database", zap.Error(err))
	}

	log.Info("Seed data applied")
}
