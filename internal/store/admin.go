package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/teresa-solution/clinic-registry-service/internal/model"
)

// IsClinicAdmin reports whether the user holds an active admin grant on
// the clinic.
func IsClinicAdmin(ctx context.Context, q Querier, clinicID, userID uuid.UUID) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM clinic_admins WHERE clinic_id = $1 AND user_id = $2 AND active LIMIT 1`,
		clinicID, userID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, classifyConnErr(err)
	}
	return true, nil
}

// GrantAdmin creates or reactivates an admin grant.
func GrantAdmin(ctx context.Context, q Querier, clinicID, userID uuid.UUID) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO clinic_admins (clinic_id, user_id, active, granted_at) VALUES ($1, $2, TRUE, now())
		 ON CONFLICT (clinic_id, user_id) DO UPDATE SET active = TRUE`,
		clinicID, userID,
	)
	return classifyConnErr(err)
}

// ActiveAdmins lists the user ids of every active admin of the clinic,
// locking their rows for the remainder of the transaction. Callers doing
// a check-then-act on the admin count must run this inside a transaction
// so two concurrent revocations cannot both observe count > 1.
func ActiveAdmins(ctx context.Context, q Querier, clinicID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id FROM clinic_admins WHERE clinic_id = $1 AND active ORDER BY user_id FOR UPDATE`,
		clinicID,
	)
	if err != nil {
		return nil, classifyConnErr(err)
	}
	defer rows.Close()

	var admins []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		admins = append(admins, id)
	}
	return admins, rows.Err()
}

// DeactivateAdmin flips an active grant off. Returns ErrAdminNotFound
// when no active grant exists for the pair.
func DeactivateAdmin(ctx context.Context, q Querier, clinicID, userID uuid.UUID) error {
	res, err := q.ExecContext(ctx,
		`UPDATE clinic_admins SET active = FALSE WHERE clinic_id = $1 AND user_id = $2 AND active`,
		clinicID, userID,
	)
	if err != nil {
		return classifyConnErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAdminNotFound
	}
	return nil
}

// AdminsOf returns the admin grants of a clinic, active first.
func AdminsOf(ctx context.Context, q Querier, clinicID uuid.UUID) ([]*model.ClinicAdmin, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT clinic_id, user_id, active, granted_at FROM clinic_admins
		 WHERE clinic_id = $1 ORDER BY active DESC, granted_at ASC`,
		clinicID,
	)
	if err != nil {
		return nil, classifyConnErr(err)
	}
	defer rows.Close()

	var admins []*model.ClinicAdmin
	for rows.Next() {
		admin := &model.ClinicAdmin{}
		if err := rows.Scan(&admin.ClinicID, &admin.UserID, &admin.Active, &admin.GrantedAt); err != nil {
			return nil, err
		}
		admins = append(admins, admin)
	}
	return admins, rows.Err()
}
