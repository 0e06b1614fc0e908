package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teresa-solution/clinic-registry-service/internal/model"
)

// The queue number is computed inside the insert so the database, not
// the process, serializes concurrent same-day bookings. With two active
// same-day rows the subselect yields MAX+1 = 3; with none it defaults
// to 1; any future date takes the ELSE branch and gets 0.
func TestInsertAppointmentSQL_SameDayNumbering(t *testing.T) {
	assert.Contains(t, insertAppointmentSQL, "CASE WHEN $2::date = CURRENT_DATE")
	assert.Contains(t, insertAppointmentSQL,
		"COALESCE((SELECT MAX(seq_num) + 1 FROM rdv WHERE rdv_date = $2::date AND state = $5), 1)")
	assert.Contains(t, insertAppointmentSQL, "ELSE 0 END")
}

func TestUpdateAppointmentSQL_KeepsAssignedSameDaySeq(t *testing.T) {
	// An already-assigned number on an unchanged date is kept.
	assert.Contains(t, updateAppointmentSQL, "WHEN seq_num <> 0 AND rdv_date = $2::date THEN seq_num")
	// Moving to today numbers over the other rows, never counting the
	// row being moved.
	assert.Contains(t, updateAppointmentSQL, "r2.state = $6 AND r2.id <> $5")
	assert.Contains(t, updateAppointmentSQL, "ELSE 0 END")
}

func TestInsertAppointment_ScansReturnedRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	patientID := uuid.New()
	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	at := "09:30:00"

	mock.ExpectQuery(`INSERT INTO rdv`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "rdv_date", "rdv_time", "arrival_time",
			"seq_num", "reason", "state", "created_at",
		}).AddRow(int64(1), patientID, "2026-09-01", "09:30:00", "08:58:12", 3, "checkup", int16(1), time.Now()))

	appt, err := InsertAppointment(context.Background(), db, patientID, date, &at, "checkup")
	require.NoError(t, err)
	assert.Equal(t, int64(1), appt.ID)
	assert.Equal(t, 3, appt.SeqNum)
	assert.Equal(t, model.AppointmentActive, appt.State)
	assert.Equal(t, "2026-09-01", appt.Date.Format("2006-01-02"))
	require.NotNil(t, appt.ArrivalTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAppointment_FutureDateKeepsSeqZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	patientID := uuid.New()
	date := time.Now().AddDate(0, 0, 7)

	mock.ExpectQuery(`INSERT INTO rdv`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "rdv_date", "rdv_time", "arrival_time",
			"seq_num", "reason", "state", "created_at",
		}).AddRow(int64(2), patientID, date.Format("2006-01-02"), nil, nil, 0, "", int16(0), time.Now()))

	appt, err := InsertAppointment(context.Background(), db, patientID, date, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, appt.SeqNum)
	assert.Equal(t, model.AppointmentScheduled, appt.State)
	assert.Nil(t, appt.ArrivalTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAppointment_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`UPDATE rdv SET`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "rdv_date", "rdv_time", "arrival_time",
			"seq_num", "reason", "state", "created_at",
		}))

	_, err = UpdateAppointment(context.Background(), db, 42, uuid.New(), time.Now(), nil, "")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelAppointment_AlreadyGone(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE rdv SET state`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = CancelAppointment(context.Background(), db, 42)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestActiveAppointment_NoneIsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM rdv`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "rdv_date", "rdv_time", "arrival_time",
			"seq_num", "reason", "state", "created_at",
		}))

	appt, err := LatestActiveAppointment(context.Background(), db, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, appt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenDays_ScansWeek(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"weekday", "open"})
	for d := 0; d < 7; d++ {
		rows.AddRow(d, d != 0)
	}
	mock.ExpectQuery(`FROM open_day`).WillReturnRows(rows)

	days, err := OpenDays(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, days, 7)
	assert.False(t, days[0].Open)
	assert.True(t, days[6].Open)
	assert.NoError(t, mock.ExpectationsWereMet())
}
