package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teresa-solution/clinic-registry-service/internal/model"
)

const appointmentSelect = `SELECT id, patient_id, rdv_date::text, rdv_time::text, arrival_time::text,
	seq_num, reason, state, created_at FROM rdv`

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	appt := &model.Appointment{}
	var date string
	err := row.Scan(&appt.ID, &appt.PatientID, &date, &appt.Time, &appt.ArrivalTime,
		&appt.SeqNum, &appt.Reason, &appt.State, &appt.CreatedAt)
	if err != nil {
		return nil, err
	}
	appt.Date, err = time.Parse("2006-01-02", date)
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// insertAppointmentSQL assigns the per-day queue number inside the
// statement: MAX(seq_num)+1 over today's active rows, defaulting to 1,
// and 0 for any future date.
const insertAppointmentSQL = `INSERT INTO rdv (patient_id, rdv_date, rdv_time, arrival_time, seq_num, reason, state)
	 VALUES (
		$1,
		$2::date,
		$3,
		CASE WHEN $2::date = CURRENT_DATE THEN CURRENT_TIME ELSE NULL END,
		CASE WHEN $2::date = CURRENT_DATE THEN
			COALESCE((SELECT MAX(seq_num) + 1 FROM rdv WHERE rdv_date = $2::date AND state = $5), 1)
		ELSE 0 END,
		$4,
		CASE WHEN $2::date = CURRENT_DATE THEN $5 ELSE $6 END
	 )
	 RETURNING id, patient_id, rdv_date::text, rdv_time::text, arrival_time::text, seq_num, reason, state, created_at`

// updateAppointmentSQL keeps a queue number already assigned for the
// same day, assigns the next free one when moving to today (excluding
// the row being moved from the maximum), and clears it for future dates.
const updateAppointmentSQL = `UPDATE rdv SET
		patient_id = $1,
		rdv_date = $2::date,
		rdv_time = $3,
		arrival_time = CASE WHEN $2::date = CURRENT_DATE THEN CURRENT_TIME ELSE NULL END,
		seq_num = CASE
			WHEN seq_num <> 0 AND rdv_date = $2::date THEN seq_num
			WHEN $2::date = CURRENT_DATE THEN
				COALESCE((SELECT MAX(r2.seq_num) + 1 FROM rdv r2
					WHERE r2.rdv_date = $2::date AND r2.state = $6 AND r2.id <> $5), 1)
			ELSE 0 END,
		reason = $4,
		state = CASE WHEN $2::date = CURRENT_DATE THEN $6 ELSE $7 END
	 WHERE id = $5
	 RETURNING id, patient_id, rdv_date::text, rdv_time::text, arrival_time::text, seq_num, reason, state, created_at`

// InsertAppointment books an appointment in the clinic database. A
// same-day booking is activated immediately: arrival time stamped and
// the next free queue number over today's active appointments assigned.
// Future bookings stay scheduled with queue number 0 until their day.
// The numbering runs inside the insert statement so two concurrent
// same-day bookings cannot both read the same maximum.
func InsertAppointment(ctx context.Context, q Querier, patientID uuid.UUID, date time.Time, at *string, reason string) (*model.Appointment, error) {
	day := date.Format("2006-01-02")
	row := q.QueryRowContext(ctx, insertAppointmentSQL,
		patientID, day, at, reason, model.AppointmentActive, model.AppointmentScheduled,
	)
	appt, err := scanAppointment(row)
	if err != nil {
		return nil, classifyConnErr(err)
	}
	return appt, nil
}

// UpdateAppointment reschedules an appointment. A queue number already
// assigned for the same day is kept; moving to today assigns the next
// free number, moving to a future date clears it. Returns sql.ErrNoRows
// when the appointment does not exist.
func UpdateAppointment(ctx context.Context, q Querier, id int64, patientID uuid.UUID, date time.Time, at *string, reason string) (*model.Appointment, error) {
	day := date.Format("2006-01-02")
	row := q.QueryRowContext(ctx, updateAppointmentSQL,
		patientID, day, at, reason, id, model.AppointmentActive, model.AppointmentScheduled,
	)
	appt, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, classifyConnErr(err)
	}
	return appt, nil
}

// ActiveAppointments lists scheduled and active appointments, most
// recent first.
func ActiveAppointments(ctx context.Context, q Querier) ([]*model.Appointment, error) {
	rows, err := q.QueryContext(ctx,
		appointmentSelect+` WHERE state IN ($1, $2) ORDER BY rdv_date DESC, rdv_time DESC, id DESC`,
		model.AppointmentScheduled, model.AppointmentActive,
	)
	if err != nil {
		return nil, classifyConnErr(err)
	}
	defer rows.Close()

	var appts []*model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

// LatestActiveAppointment returns the patient's most recent scheduled or
// active appointment, or nil when none exists.
func LatestActiveAppointment(ctx context.Context, q Querier, patientID uuid.UUID) (*model.Appointment, error) {
	row := q.QueryRowContext(ctx,
		appointmentSelect+` WHERE patient_id = $1 AND state IN ($2, $3)
		 ORDER BY rdv_date DESC, rdv_time DESC, id DESC LIMIT 1`,
		patientID, model.AppointmentScheduled, model.AppointmentActive,
	)
	appt, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classifyConnErr(err)
	}
	return appt, nil
}

// CancelAppointment marks an appointment cancelled. Rows are never
// deleted from the clinic database.
func CancelAppointment(ctx context.Context, q Querier, id int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE rdv SET state = $2 WHERE id = $1 AND state IN ($3, $4)`,
		id, model.AppointmentCancelled, model.AppointmentScheduled, model.AppointmentActive,
	)
	if err != nil {
		return classifyConnErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TouchPatient upserts the clinic-local patient linkage row, bumping
// last_seen_at.
func TouchPatient(ctx context.Context, q Querier, patientID uuid.UUID) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO clinic_patient (patient_id) VALUES ($1)
		 ON CONFLICT (patient_id) DO UPDATE SET last_seen_at = now()`,
		patientID,
	)
	return classifyConnErr(err)
}

// OpenDays returns the seven-row weekly schedule.
func OpenDays(ctx context.Context, q Querier) ([]model.OpenDay, error) {
	rows, err := q.QueryContext(ctx, `SELECT weekday, open FROM open_day ORDER BY weekday`)
	if err != nil {
		return nil, classifyConnErr(err)
	}
	defer rows.Close()

	var days []model.OpenDay
	for rows.Next() {
		var d model.OpenDay
		if err := rows.Scan(&d.Weekday, &d.Open); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// SetOpenDay flips one weekday of the schedule.
func SetOpenDay(ctx context.Context, q Querier, weekday int, open bool) error {
	_, err := q.ExecContext(ctx, `UPDATE open_day SET open = $2 WHERE weekday = $1`, weekday, open)
	return classifyConnErr(err)
}

// ConsultationFlags reads the singleton feature-flag row.
func ConsultationFlags(ctx context.Context, q Querier) (*model.ConsultationFlags, error) {
	flags := &model.ConsultationFlags{}
	err := q.QueryRowContext(ctx,
		`SELECT show_vitals, show_prescription, show_history FROM consultation_flags WHERE id = 1`,
	).Scan(&flags.ShowVitals, &flags.ShowPrescription, &flags.ShowHistory)
	if err != nil {
		return nil, classifyConnErr(err)
	}
	return flags, nil
}

// InsertConsultation records a consultation for a linked patient.
func InsertConsultation(ctx context.Context, q Querier, patientID uuid.UUID, reason, note string) (*model.Consultation, error) {
	c := &model.Consultation{}
	err := q.QueryRowContext(ctx,
		`INSERT INTO consultation (patient_id, reason, note) VALUES ($1, $2, $3)
		 RETURNING id, patient_id, consultation_date, reason, note, created_at`,
		patientID, reason, note,
	).Scan(&c.ID, &c.PatientID, &c.Date, &c.Reason, &c.Note, &c.CreatedAt)
	if err != nil {
		return nil, classifyConnErr(err)
	}
	return c, nil
}
