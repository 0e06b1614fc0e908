package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/teresa-solution/clinic-registry-service/internal/model"
)

func TestBookAppointment_UnaffiliatedActor(t *testing.T) {
	reg, mock := newTestRegistry(t)
	svc := NewAppointmentService(reg)

	expectModernCaps(mock)
	mock.ExpectQuery(`FROM clinic_members`).
		WillReturnRows(sqlmock.NewRows(affiliationColumns))

	_, err := svc.BookAppointment(context.Background(), uuid.New(), uuid.New(), uuid.New(), time.Now(), nil, "checkup")
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.PermissionDenied, st.Code())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookAppointment_PendingActorIsNotStaff(t *testing.T) {
	reg, mock := newTestRegistry(t)
	svc := NewAppointmentService(reg)
	clinicID := uuid.New()
	actorID := uuid.New()

	expectModernCaps(mock)
	mock.ExpectQuery(`FROM clinic_members`).
		WillReturnRows(sqlmock.NewRows(affiliationColumns).
			AddRow(int64(3), clinicID, actorID, int16(1), model.StatusPending, time.Now(), nil, nil, nil, nil))

	_, err := svc.BookAppointment(context.Background(), clinicID, actorID, uuid.New(), time.Now(), nil, "")
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.PermissionDenied, st.Code())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookAppointment_UnknownPatient(t *testing.T) {
	reg, mock := newTestRegistry(t)
	svc := NewAppointmentService(reg)
	clinicID := uuid.New()
	actorID := uuid.New()

	expectModernCaps(mock)
	mock.ExpectQuery(`FROM clinic_members`).
		WillReturnRows(sqlmock.NewRows(affiliationColumns).
			AddRow(int64(3), clinicID, actorID, int16(1), model.StatusApproved, time.Now(), time.Now(), actorID, nil, nil))
	mock.ExpectQuery(`FROM clinic_patients`).
		WillReturnRows(sqlmock.NewRows([]string{"one"}))

	_, err := svc.BookAppointment(context.Background(), clinicID, actorID, uuid.New(), time.Now(), nil, "")
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetOpenDay_InvalidWeekday(t *testing.T) {
	reg, _ := newTestRegistry(t)
	svc := NewAppointmentService(reg)

	err := svc.SetOpenDay(context.Background(), uuid.New(), uuid.New(), 7, true)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
}
