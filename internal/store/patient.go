package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// LinkPatient records in the registry that a patient belongs to a
// clinic's roster. Idempotent.
func (r *Registry) LinkPatient(ctx context.Context, clinicID, patientID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clinic_patients (clinic_id, patient_id, linked_at) VALUES ($1, $2, now())
		 ON CONFLICT (clinic_id, patient_id) DO NOTHING`,
		clinicID, patientID,
	)
	return classifyConnErr(err)
}

// IsPatientLinked reports whether the patient is on the clinic's roster.
func (r *Registry) IsPatientLinked(ctx context.Context, clinicID, patientID uuid.UUID) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM clinic_patients WHERE clinic_id = $1 AND patient_id = $2 LIMIT 1`,
		clinicID, patientID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, classifyConnErr(err)
	}
	return true, nil
}
