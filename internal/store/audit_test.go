package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/teresa-solution/clinic-registry-service/internal/model"
)

// The audit logger must return normally whatever breaks on its way to
// the clinic database; the recorded operation already committed.
func TestRecordAction_SwallowsUnknownClinic(t *testing.T) {
	reg, mock := newMockRegistry(t)
	clinicID := uuid.New()

	mock.ExpectQuery(`SELECT db_name FROM clinics`).
		WithArgs(clinicID).
		WillReturnRows(sqlmock.NewRows([]string{"db_name"}))

	assert.NotPanics(t, func() {
		reg.RecordAction(context.Background(), clinicID, nil, model.ActionInsert, "rdv", "1", nil)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAction_SwallowsUnconfiguredClinic(t *testing.T) {
	reg, mock := newMockRegistry(t)
	clinicID := uuid.New()
	actor := uuid.New()

	mock.ExpectQuery(`SELECT db_name FROM clinics`).
		WithArgs(clinicID).
		WillReturnRows(sqlmock.NewRows([]string{"db_name"}).AddRow(""))

	assert.NotPanics(t, func() {
		reg.RecordAction(context.Background(), clinicID, &actor, model.ActionUpdate, "rdv", "2",
			map[string]interface{}{"state": 1})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
