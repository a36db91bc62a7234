package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantResolve_ExistingReturnedUnchanged(t *testing.T) {
	db, mock, sqlDB := setupMockDB(t)
	defer sqlDB.Close()

	repo := NewTenantRepository(testLogger())
	existingID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE key = \$1`).
		WithArgs("acme", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "created_at", "updated_at"}).
			AddRow(existingID, "acme", "ACME Corporation", time.Now(), time.Now()))

	tenant, err := repo.Resolve(db, "acme", "Some Other Name")
	require.NoError(t, err)

	// displayNameHint is ignored for existing tenants
	assert.Equal(t, existingID, tenant.ID)
	assert.Equal(t, "ACME Corporation", tenant.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantResolve_CreatesOnFirstSight(t *testing.T) {
	db, mock, sqlDB := setupMockDB(t)
	defer sqlDB.Close()

	repo := NewTenantRepository(testLogger())

	mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE key = \$1`).
		WithArgs("acme", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "created_at", "updated_at"}))

	// the insert returns the defaulted timestamps on success
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "tenants"`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))
	mock.ExpectCommit()

	tenant, err := repo.Resolve(db, "acme", "")
	require.NoError(t, err)

	// empty hint defaults the name to the key
	assert.Equal(t, "acme", tenant.Key)
	assert.Equal(t, "acme", tenant.Name)
	assert.NotEqual(t, uuid.Nil, tenant.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantResolve_LostInsertRaceFetchesWinner(t *testing.T) {
	db, mock, sqlDB := setupMockDB(t)
	defer sqlDB.Close()

	repo := NewTenantRepository(testLogger())
	winnerID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE key = \$1`).
		WithArgs("acme", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "created_at", "updated_at"}))

	// ON CONFLICT DO NOTHING: a concurrent creator won, nothing returned
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "tenants"`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}))
	mock.ExpectCommit()

	mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE key = \$1`).
		WithArgs("acme", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "created_at", "updated_at"}).
			AddRow(winnerID, "acme", "acme", time.Now(), time.Now()))

	tenant, err := repo.Resolve(db, "acme", "")
	require.NoError(t, err)

	assert.Equal(t, winnerID, tenant.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
