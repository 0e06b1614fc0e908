package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/teresa-solution/clinic-registry-service/internal/model"
	"github.com/teresa-solution/clinic-registry-service/internal/store"
)

// AppointmentService operates on a clinic's own database: appointments,
// consultations, the weekly schedule and the feature-flag row. Every
// call routes a fresh handle to the clinic database and releases it
// before returning.
type AppointmentService struct {
	reg *store.Registry
}

func NewAppointmentService(reg *store.Registry) *AppointmentService {
	return &AppointmentService{reg: reg}
}

// requireStaff verifies the actor holds an approved affiliation with the
// clinic. The ids were authenticated upstream; rights are re-checked
// here regardless.
func (s *AppointmentService) requireStaff(ctx context.Context, clinicID, actorID uuid.UUID) error {
	caps, err := store.ResolveCaps(ctx, s.reg.DB())
	if err != nil {
		return err
	}
	ok, err := store.HasApprovedAffiliation(ctx, s.reg.DB(), caps, clinicID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return status.Error(codes.PermissionDenied, "Not affiliated with this clinic")
	}
	return nil
}

// BookAppointment books an appointment for a patient on the clinic's
// roster. Same-day bookings are activated with the next queue number;
// future ones stay scheduled with number 0.
func (s *AppointmentService) BookAppointment(ctx context.Context, clinicID, actorID, patientID uuid.UUID, date time.Time, at *string, reason string) (*model.Appointment, error) {
	if err := s.requireStaff(ctx, clinicID, actorID); err != nil {
		return nil, statusFromErr(err)
	}

	linked, err := s.reg.IsPatientLinked(ctx, clinicID, patientID)
	if err != nil {
		return nil, statusFromErr(err)
	}
	if !linked {
		return nil, status.Error(codes.NotFound, "Patient not found in this clinic")
	}

	conn, err := s.reg.Route(ctx, clinicID)
	if err != nil {
		return nil, statusFromErr(err)
	}
	defer conn.Close()

	appt, err := store.InsertAppointment(ctx, conn.DB, patientID, date, at, reason)
	if err != nil {
		return nil, statusFromErr(err)
	}
	if err := store.TouchPatient(ctx, conn.DB, patientID); err != nil {
		return nil, statusFromErr(err)
	}

	s.reg.RecordAction(ctx, clinicID, &actorID, model.ActionInsert, "rdv", strconv.FormatInt(appt.ID, 10),
		map[string]interface{}{"patient_id": patientID.String(), "date": date.Format("2006-01-02"), "state": appt.State})
	return appt, nil
}

// RescheduleAppointment moves an appointment to a new date/time.
func (s *AppointmentService) RescheduleAppointment(ctx context.Context, clinicID, actorID uuid.UUID, apptID int64, patientID uuid.UUID, date time.Time, at *string, reason string) (*model.Appointment, error) {
	if err := s.requireStaff(ctx, clinicID, actorID); err != nil {
		return nil, statusFromErr(err)
	}

	conn, err := s.reg.Route(ctx, clinicID)
	if err != nil {
		return nil, statusFromErr(err)
	}
	defer conn.Close()

	appt, err := store.UpdateAppointment(ctx, conn.DB, apptID, patientID, date, at, reason)
	if err != nil {
		return nil, statusFromErr(err)
	}

	s.reg.RecordAction(ctx, clinicID, &actorID, model.ActionUpdate, "rdv", strconv.FormatInt(apptID, 10),
		map[string]interface{}{"patient_id": patientID.String(), "date": date.Format("2006-01-02"), "state": appt.State})
	return appt, nil
}

// CancelAppointment flags an appointment cancelled.
func (s *AppointmentService) CancelAppointment(ctx context.Context, clinicID, actorID uuid.UUID, apptID int64) error {
	if err := s.requireStaff(ctx, clinicID, actorID); err != nil {
		return statusFromErr(err)
	}

	conn, err := s.reg.Route(ctx, clinicID)
	if err != nil {
		return statusFromErr(err)
	}
	defer conn.Close()

	if err := store.CancelAppointment(ctx, conn.DB, apptID); err != nil {
		return statusFromErr(err)
	}

	s.reg.RecordAction(ctx, clinicID, &actorID, model.ActionCancel, "rdv", strconv.FormatInt(apptID, 10), nil)
	return nil
}

// ListAppointments returns the clinic's scheduled and active
// appointments.
func (s *AppointmentService) ListAppointments(ctx context.Context, clinicID, actorID uuid.UUID) ([]*model.Appointment, error) {
	if err := s.requireStaff(ctx, clinicID, actorID); err != nil {
		return nil, statusFromErr(err)
	}

	conn, err := s.reg.Route(ctx, clinicID)
	if err != nil {
		return nil, statusFromErr(err)
	}
	defer conn.Close()

	appts, err := store.ActiveAppointments(ctx, conn.DB)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return appts, nil
}

// LatestAppointment returns the patient's most recent live appointment,
// or nil.
func (s *AppointmentService) LatestAppointment(ctx context.Context, clinicID, actorID, patientID uuid.UUID) (*model.Appointment, error) {
	if err := s.requireStaff(ctx, clinicID, actorID); err != nil {
		return nil, statusFromErr(err)
	}

	conn, err := s.reg.Route(ctx, clinicID)
	if err != nil {
		return nil, statusFromErr(err)
	}
	defer conn.Close()

	appt, err := store.LatestActiveAppointment(ctx, conn.DB, patientID)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return appt, nil
}

// RecordConsultation writes a consultation and bumps the patient's
// clinic-local linkage.
func (s *AppointmentService) RecordConsultation(ctx context.Context, clinicID, actorID, patientID uuid.UUID, reason, note string) (*model.Consultation, error) {
	if err := s.requireStaff(ctx, clinicID, actorID); err != nil {
		return nil, statusFromErr(err)
	}

	linked, err := s.reg.IsPatientLinked(ctx, clinicID, patientID)
	if err != nil {
		return nil, statusFromErr(err)
	}
	if !linked {
		return nil, status.Error(codes.NotFound, "Patient not found in this clinic")
	}

	conn, err := s.reg.Route(ctx, clinicID)
	if err != nil {
		return nil, statusFromErr(err)
	}
	defer conn.Close()

	cons, err := store.InsertConsultation(ctx, conn.DB, patientID, reason, note)
	if err != nil {
		return nil, statusFromErr(err)
	}
	if err := store.TouchPatient(ctx, conn.DB, patientID); err != nil {
		return nil, statusFromErr(err)
	}

	s.reg.RecordAction(ctx, clinicID, &actorID, model.ActionInsert, "consultation", strconv.FormatInt(cons.ID, 10),
		map[string]interface{}{"patient_id": patientID.String()})
	return cons, nil
}

// OpenDays returns the clinic's weekly open/closed schedule.
func (s *AppointmentService) OpenDays(ctx context.Context, clinicID, actorID uuid.UUID) ([]model.OpenDay, error) {
	if err := s.requireStaff(ctx, clinicID, actorID); err != nil {
		return nil, statusFromErr(err)
	}

	conn, err := s.reg.Route(ctx, clinicID)
	if err != nil {
		return nil, statusFromErr(err)
	}
	defer conn.Close()

	days, err := store.OpenDays(ctx, conn.DB)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return days, nil
}

// SetOpenDay flips one weekday; clinic-admin rights required.
func (s *AppointmentService) SetOpenDay(ctx context.Context, clinicID, actorID uuid.UUID, weekday int, open bool) error {
	if weekday < 0 || weekday > 6 {
		return status.Error(codes.InvalidArgument, "weekday must be 0..6")
	}
	if err := requireAdmin(ctx, s.reg.DB(), clinicID, actorID); err != nil {
		return statusFromErr(err)
	}

	conn, err := s.reg.Route(ctx, clinicID)
	if err != nil {
		return statusFromErr(err)
	}
	defer conn.Close()

	if err := store.SetOpenDay(ctx, conn.DB, weekday, open); err != nil {
		return statusFromErr(err)
	}
	s.reg.RecordAction(ctx, clinicID, &actorID, model.ActionUpdate, "open_day", strconv.Itoa(weekday),
		map[string]interface{}{"open": open})
	return nil
}

// ConsultationFlags reads the clinic's feature-flag row.
func (s *AppointmentService) ConsultationFlags(ctx context.Context, clinicID, actorID uuid.UUID) (*model.ConsultationFlags, error) {
	if err := s.requireStaff(ctx, clinicID, actorID); err != nil {
		return nil, statusFromErr(err)
	}

	conn, err := s.reg.Route(ctx, clinicID)
	if err != nil {
		return nil, statusFromErr(err)
	}
	defer conn.Close()

	flags, err := store.ConsultationFlags(ctx, conn.DB)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return flags, nil
}

// LinkPatient puts a patient on the clinic's roster.
func (s *AppointmentService) LinkPatient(ctx context.Context, clinicID, actorID, patientID uuid.UUID) error {
	if err := s.requireStaff(ctx, clinicID, actorID); err != nil {
		return statusFromErr(err)
	}
	if err := s.reg.LinkPatient(ctx, clinicID, patientID); err != nil {
		return statusFromErr(err)
	}
	return nil
}
