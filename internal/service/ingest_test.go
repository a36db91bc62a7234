package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/telemetra/device-event-svc/internal/models"
	"github.com/telemetra/device-event-svc/internal/repository"
)

type fakePublisher struct {
	published []models.DeviceActivityMessage
	err       error
}

func (f *fakePublisher) PublishDeviceActivity(msg models.DeviceActivityMessage) error {
	f.published = append(f.published, msg)
	return f.err
}

func setupService(t *testing.T) (*IngestService, sqlmock.Sqlmock, *fakePublisher, *sql.DB) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	logger := zap.NewNop()
	pub := &fakePublisher{}
	svc := NewIngestService(
		db,
		repository.NewTenantRepository(logger),
		repository.NewDeviceRepository(logger),
		repository.NewEventRepository(logger),
		pub,
		25,
		logger,
	)
	return svc, mock, pub, sqlDB
}

func storeInput() StoreEventInput {
	return StoreEventInput{
		TenantKey:  "acme",
		DeviceUID:  "DEV-001",
		EventUID:   "evt_1",
		Type:       "battery",
		OccurredAt: time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC),
		Payload:    models.JSONMap{"level": 75},
	}
}

func TestStoreEvent_FirstSubmissionCreatesAndPublishes(t *testing.T) {
	svc, mock, pub, sqlDB := setupService(t)
	defer sqlDB.Close()

	mock.ExpectBegin()

	// tenant created lazily, insert returns the defaulted timestamps
	mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE key = \$1`).
		WithArgs("acme", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "created_at", "updated_at"}))
	mock.ExpectQuery(`INSERT INTO "tenants"`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))

	// device created lazily
	mock.ExpectQuery(`SELECT \* FROM "devices" WHERE tenant_id = \$1 AND device_uid = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "device_uid", "last_seen_at", "created_at", "updated_at"}))
	mock.ExpectQuery(`INSERT INTO "devices"`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))

	// event inserted for the first time
	mock.ExpectQuery(`INSERT INTO "events"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	mock.ExpectCommit()

	result, err := svc.StoreEvent(context.Background(), storeInput())
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.Equal(t, int64(7), result.Event.ID)
	assert.Equal(t, "acme", result.Tenant.Key)
	assert.Equal(t, "DEV-001", result.Device.DeviceUID)

	// exactly one task handed off, only after commit
	require.Len(t, pub.published, 1)
	assert.Equal(t, result.Device.ID.String(), pub.published[0].DeviceID)
	assert.Equal(t, storeInput().OccurredAt, pub.published[0].OccurredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreEvent_DuplicateReturnsExistingWithoutPublishing(t *testing.T) {
	svc, mock, pub, sqlDB := setupService(t)
	defer sqlDB.Close()

	tenantID := uuid.New()
	deviceID := uuid.New()

	mock.ExpectBegin()

	mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE key = \$1`).
		WithArgs("acme", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "created_at", "updated_at"}).
			AddRow(tenantID, "acme", "acme", time.Now(), time.Now()))

	mock.ExpectQuery(`SELECT \* FROM "devices" WHERE tenant_id = \$1 AND device_uid = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "device_uid", "last_seen_at", "created_at", "updated_at"}).
			AddRow(deviceID, tenantID, "DEV-001", nil, time.Now(), time.Now()))

	// conflict: the row already exists, insert affects nothing
	mock.ExpectQuery(`INSERT INTO "events"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "events" WHERE tenant_id = \$1 AND event_uid = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "device_id", "event_uid", "type", "occurred_at", "payload", "created_at"}).
			AddRow(int64(7), tenantID, deviceID, "evt_1", "battery", time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC), []byte(`{"level":75}`), time.Now()))

	mock.ExpectCommit()

	result, err := svc.StoreEvent(context.Background(), storeInput())
	require.NoError(t, err)

	assert.False(t, result.Created)
	assert.Equal(t, int64(7), result.Event.ID)
	assert.Empty(t, pub.published, "duplicate submission must not enqueue a task")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreEvent_FailureRollsBackAndNeverPublishes(t *testing.T) {
	svc, mock, pub, sqlDB := setupService(t)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE key = \$1`).
		WithArgs("acme", 1).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := svc.StoreEvent(context.Background(), storeInput())
	require.Error(t, err)

	assert.Empty(t, pub.published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreEvent_PublishFailureDoesNotFailIngestion(t *testing.T) {
	svc, mock, pub, sqlDB := setupService(t)
	defer sqlDB.Close()

	pub.err = errors.New("broker unavailable")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE key = \$1`).
		WithArgs("acme", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "created_at", "updated_at"}))
	mock.ExpectQuery(`INSERT INTO "tenants"`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))
	mock.ExpectQuery(`SELECT \* FROM "devices" WHERE tenant_id = \$1 AND device_uid = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "device_uid", "last_seen_at", "created_at", "updated_at"}))
	mock.ExpectQuery(`INSERT INTO "devices"`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))
	mock.ExpectQuery(`INSERT INTO "events"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	result, err := svc.StoreEvent(context.Background(), storeInput())
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEvents_DelegatesWithFixedPageSize(t *testing.T) {
	svc, mock, _, sqlDB := setupService(t)
	defer sqlDB.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "events"`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(`SELECT events\.id, events\.event_uid`).
		WithArgs("acme", 25).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_uid", "type", "occurred_at", "payload", "created_at",
			"tenant_key", "tenant_name", "device_uid", "device_last_seen_at",
		}))

	page, err := svc.QueryEvents(context.Background(), EventQuery{TenantKey: "acme", Page: 1})
	require.NoError(t, err)

	assert.Equal(t, int64(0), page.TotalCount)
	assert.Equal(t, 25, page.PageSize)
	assert.Empty(t, page.Records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
