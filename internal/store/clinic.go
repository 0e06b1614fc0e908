package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teresa-solution/clinic-registry-service/internal/crypto"
	"github.com/teresa-solution/clinic-registry-service/internal/model"
)

func clinicCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("clinic:%s", id.String())
}

// InsertClinic writes a new clinic row in draft lifecycle state with
// provisioning pending. It runs on a Querier so creation can share one
// transaction with the creator's admin grant and pending affiliation.
// The contact email is encrypted at rest. Losing a race on the
// case-insensitive name index surfaces as ErrClinicExists.
func InsertClinic(ctx context.Context, q Querier, clinic *model.Clinic) error {
	clinic.ID = uuid.New()
	clinic.LifecycleState = model.LifecycleDraft
	clinic.Provisioning = model.ProvisioningPending
	clinic.CreatedAt = time.Now()
	clinic.UpdatedAt = clinic.CreatedAt

	if clinic.ContactEmail != "" {
		encrypted, iv, err := crypto.Encrypt(clinic.ContactEmail)
		if err != nil {
			return err
		}
		clinic.EncryptedEmail = encrypted
		clinic.EmailIV = iv
	}

	query := `INSERT INTO clinics (id, name, address, speciality, phone, encrypted_email, email_iv,
	              lifecycle_state, db_name, provisioning_state, last_error, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9, '', $10, $11)`
	_, err := q.ExecContext(ctx, query,
		clinic.ID, clinic.Name, clinic.Address, clinic.Speciality, clinic.Phone,
		clinic.EncryptedEmail, clinic.EmailIV,
		clinic.LifecycleState, clinic.Provisioning, clinic.CreatedAt, clinic.UpdatedAt,
	)
	if isDuplicate(err) {
		return ErrClinicExists
	}
	return classifyConnErr(err)
}

// GetClinic retrieves a clinic by ID, read-through cached.
func (r *Registry) GetClinic(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, clinicCacheKey(id)).Result(); err == nil {
			clinic := &model.Clinic{}
			if err := json.Unmarshal([]byte(cached), clinic); err == nil {
				return clinic, nil
			}
		}
	}

	clinic, err := scanClinic(r.db.QueryRowContext(ctx, clinicSelect+` WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if data, err := json.Marshal(clinic); err == nil {
			r.cache.SetEx(ctx, clinicCacheKey(id), data, time.Hour)
		}
	}
	return clinic, nil
}

// ClinicExistsByName reports whether a clinic with the given name exists,
// case-insensitively.
func (r *Registry) ClinicExistsByName(ctx context.Context, name string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM clinics WHERE LOWER(name) = LOWER($1) LIMIT 1`, name,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, classifyConnErr(err)
	}
	return true, nil
}

const clinicSelect = `SELECT id, name, address, speciality, phone, encrypted_email, email_iv,
	lifecycle_state, db_name, provisioning_state, last_error, created_at, updated_at
	FROM clinics`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClinic(row rowScanner) (*model.Clinic, error) {
	clinic := &model.Clinic{}
	err := row.Scan(
		&clinic.ID, &clinic.Name, &clinic.Address, &clinic.Speciality, &clinic.Phone,
		&clinic.EncryptedEmail, &clinic.EmailIV,
		&clinic.LifecycleState, &clinic.DBName, &clinic.Provisioning, &clinic.LastError,
		&clinic.CreatedAt, &clinic.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrClinicNotFound
	}
	if err != nil {
		return nil, classifyConnErr(err)
	}

	if len(clinic.EncryptedEmail) > 0 && len(clinic.EmailIV) > 0 {
		email, err := crypto.Decrypt(clinic.EncryptedEmail, clinic.EmailIV)
		if err != nil {
			return nil, err
		}
		clinic.ContactEmail = email
	}
	return clinic, nil
}

// SearchClinics returns clinics matching q against name, address or
// speciality. An empty query returns the first five clinics by name.
func (r *Registry) SearchClinics(ctx context.Context, q string) ([]*model.Clinic, error) {
	var rows *sql.Rows
	var err error
	if q == "" {
		rows, err = r.db.QueryContext(ctx, clinicSelect+` ORDER BY name ASC LIMIT 5`)
	} else {
		like := "%" + q + "%"
		rows, err = r.db.QueryContext(ctx,
			clinicSelect+` WHERE name ILIKE $1 OR address ILIKE $1 OR speciality ILIKE $1 ORDER BY name ASC`,
			like,
		)
	}
	if err != nil {
		return nil, classifyConnErr(err)
	}
	defer rows.Close()

	var clinics []*model.Clinic
	for rows.Next() {
		clinic, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		clinics = append(clinics, clinic)
	}
	return clinics, rows.Err()
}

// ClinicsByUser lists every clinic the user has a current affiliation
// with, ordered by name.
func (r *Registry) ClinicsByUser(ctx context.Context, userID uuid.UUID) ([]*model.Clinic, error) {
	rows, err := r.db.QueryContext(ctx,
		clinicSelect+` WHERE id IN (SELECT clinic_id FROM clinic_members WHERE user_id = $1) ORDER BY name ASC`,
		userID,
	)
	if err != nil {
		return nil, classifyConnErr(err)
	}
	defer rows.Close()

	var clinics []*model.Clinic
	for rows.Next() {
		clinic, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		clinics = append(clinics, clinic)
	}
	return clinics, rows.Err()
}

// SetClinicDatabase records the provisioned database name and flips
// provisioning_state to ready.
func (r *Registry) SetClinicDatabase(ctx context.Context, id uuid.UUID, dbName string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE clinics SET db_name = $2, provisioning_state = $3, last_error = '', updated_at = now() WHERE id = $1`,
		id, dbName, model.ProvisioningReady,
	)
	if err != nil {
		return classifyConnErr(err)
	}
	if r.cache != nil {
		r.cache.Del(ctx, clinicCacheKey(id))
	}
	return nil
}

// SetProvisioningFailed records a provisioning failure on the clinic row.
// The clinic record itself is kept; provisioning can be retried later.
func (r *Registry) SetProvisioningFailed(ctx context.Context, id uuid.UUID, cause string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE clinics SET provisioning_state = $2, last_error = $3, updated_at = now() WHERE id = $1`,
		id, model.ProvisioningFailed, cause,
	)
	if err != nil {
		return classifyConnErr(err)
	}
	if r.cache != nil {
		r.cache.Del(ctx, clinicCacheKey(id))
	}
	return nil
}

// ClinicsWithDatabase lists (id, db_name) for every clinic whose database
// name is recorded, for the heal sweep on process start.
func (r *Registry) ClinicsWithDatabase(ctx context.Context) (map[uuid.UUID]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, db_name FROM clinics WHERE db_name <> ''`)
	if err != nil {
		return nil, classifyConnErr(err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]string)
	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

// InvalidateClinic drops the cached copy of a clinic, for callers that
// mutate clinic rows inside their own transaction.
func (r *Registry) InvalidateClinic(ctx context.Context, id uuid.UUID) {
	if r.cache != nil {
		r.cache.Del(ctx, clinicCacheKey(id))
	}
}

// CreateProvisioningLog appends one provisioning-attempt record for later
// inspection.
func (r *Registry) CreateProvisioningLog(ctx context.Context, clinicID uuid.UUID, step, outcome string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO clinic_provisioning_logs (clinic_id, step, outcome, details, created_at) VALUES ($1, $2, $3, $4, $5)`,
		clinicID, step, outcome, detailsJSON, time.Now(),
	)
	return classifyConnErr(err)
}
