package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teresa-solution/clinic-registry-service/internal/model"
)

func TestInsertClinic_SetsInitialStates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO clinics`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	clinic := &model.Clinic{Name: "Cabinet Ndiaye", Phone: "+221770000000"}
	require.NoError(t, InsertClinic(context.Background(), db, clinic))
	assert.NotEqual(t, uuid.Nil, clinic.ID)
	assert.Equal(t, model.LifecycleDraft, clinic.LifecycleState)
	assert.Equal(t, model.ProvisioningPending, clinic.Provisioning)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertClinic_NameCollisionBecomesConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO clinics`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	err = InsertClinic(context.Background(), db, &model.Clinic{Name: "Cabinet Ndiaye"})
	assert.ErrorIs(t, err, ErrClinicExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
