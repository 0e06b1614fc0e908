package model

import (
	"time"

	"github.com/google/uuid"
)

// Appointment states in a clinic database.
const (
	AppointmentScheduled int16 = 0 // booked for a future date, no queue number
	AppointmentActive    int16 = 1 // same-day, holds a queue number
	AppointmentDone      int16 = 2
	AppointmentCancelled int16 = 3
)

// Appointment represents one rdv row in a clinic database. SeqNum is the
// per-day queue number, assigned only for same-day bookings.
type Appointment struct {
	ID          int64     `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	Date        time.Time `json:"date"`
	Time        *string   `json:"time,omitempty"`
	ArrivalTime *string   `json:"arrival_time,omitempty"`
	SeqNum      int       `json:"seq_num"`
	Reason      string    `json:"reason"`
	State       int16     `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
}

// Consultation represents one consultation row in a clinic database.
type Consultation struct {
	ID        int64     `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      time.Time `json:"date"`
	Reason    string    `json:"reason"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// PatientLink marks a platform patient as seen by a clinic.
type PatientLink struct {
	PatientID   uuid.UUID `json:"patient_id"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// OpenDay is one row of the seven-row weekly schedule table.
type OpenDay struct {
	Weekday int  `json:"weekday"` // 0=Sunday .. 6=Saturday
	Open    bool `json:"open"`
}

// ConsultationFlags is the singleton feature-flag row of a clinic
// database. Columns are added additively over time and backfilled with
// defaults.
type ConsultationFlags struct {
	ShowVitals       bool `json:"show_vitals"`
	ShowPrescription bool `json:"show_prescription"`
	ShowHistory      bool `json:"show_history"`
}

// Audit action kinds accepted by the per-clinic log table.
const (
	ActionInsert = "insert"
	ActionUpdate = "update"
	ActionCancel = "cancel"
	ActionDelete = "delete"
)

// AuditEntry is one append-only row of a clinic's log table.
type AuditEntry struct {
	ID        int64      `json:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Action    string     `json:"action"`
	TableName string     `json:"table_name,omitempty"`
	RowID     string     `json:"row_id,omitempty"`
	Details   []byte     `json:"details,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
