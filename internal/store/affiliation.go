package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teresa-solution/clinic-registry-service/internal/model"
)

// Affiliation writers. Every function here runs on a Querier so the
// service layer can hold a single transaction across a multi-step
// transition (select-then-update, archive-then-reinsert, bulk grant).
// The capability descriptor decides which columns each statement may
// touch; caps.StatusColumn is always one of the two known names, never
// user input.

// statusValue encodes a tri-state status for the deployed column type.
// Legacy boolean schemas can only express approved/not-approved; pending
// and denied both collapse to false there.
func statusValue(caps model.SchemaCaps, status int16) any {
	if caps.StatusBoolean {
		return status == model.StatusApproved
	}
	return status
}

// CurrentAffiliation selects the one authoritative row for the pair: the
// most recent by audit timestamps when the schema records them, else by
// insertion order. Pre-constraint data may hold several rows for a pair;
// the ordering tie-break is best-effort compatibility, not identity
// resolution. Returns ErrAffiliationNotFound when no row exists.
func CurrentAffiliation(ctx context.Context, q Querier, caps model.SchemaCaps, clinicID, userID uuid.UUID) (*model.Affiliation, error) {
	order := "id DESC"
	if caps.AuditColumns {
		order = "requested_at DESC NULLS LAST, id DESC"
	}

	query := fmt.Sprintf(
		`SELECT id, clinic_id, user_id, access_level, %s FROM clinic_members
		 WHERE clinic_id = $1 AND user_id = $2 ORDER BY %s LIMIT 1`,
		affiliationColumns(caps), order,
	)

	aff := &model.Affiliation{}
	dest := []any{&aff.ID, &aff.ClinicID, &aff.UserID, &aff.AccessLevel}
	var rawStatus any
	if caps.StatusBoolean {
		var approved bool
		rawStatus = &approved
	} else {
		rawStatus = &aff.Status
	}
	dest = append(dest, rawStatus)
	if caps.AuditColumns {
		dest = append(dest, &aff.RequestedAt, &aff.ApprovedAt, &aff.ApprovedBy)
	}
	if caps.DenialColumns {
		dest = append(dest, &aff.DeniedAt, &aff.DeniedBy)
	}

	err := q.QueryRowContext(ctx, query, clinicID, userID).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, ErrAffiliationNotFound
	}
	if err != nil {
		return nil, classifyConnErr(err)
	}

	if caps.StatusBoolean {
		if *(rawStatus.(*bool)) {
			aff.Status = model.StatusApproved
		} else {
			aff.Status = model.StatusPending
		}
	}
	return aff, nil
}

func affiliationColumns(caps model.SchemaCaps) string {
	cols := caps.StatusColumn
	if caps.AuditColumns {
		cols += ", requested_at, approved_at, approved_by"
	}
	if caps.DenialColumns {
		cols += ", denied_at, denied_by"
	}
	return cols
}

// InsertPending writes a fresh pending affiliation row.
func InsertPending(ctx context.Context, q Querier, caps model.SchemaCaps, clinicID, userID uuid.UUID, accessLevel int16) error {
	var err error
	if caps.AuditColumns {
		_, err = q.ExecContext(ctx,
			`INSERT INTO clinic_members (clinic_id, user_id, access_level, status, requested_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			clinicID, userID, accessLevel, model.StatusPending, time.Now(),
		)
	} else {
		query := fmt.Sprintf(
			`INSERT INTO clinic_members (clinic_id, user_id, access_level, %s) VALUES ($1, $2, $3, $4)`,
			caps.StatusColumn,
		)
		_, err = q.ExecContext(ctx, query, clinicID, userID, accessLevel, statusValue(caps, model.StatusPending))
	}
	if isDuplicate(err) {
		return ErrDuplicateRequest
	}
	return classifyConnErr(err)
}

// ResetPending reuses an existing row for a resubmission: back to
// pending, prior approval and denial stamps cleared. Used when no
// uniqueness constraint exists and delete-then-insert could race another
// writer into two current rows.
func ResetPending(ctx context.Context, q Querier, caps model.SchemaCaps, id int64, accessLevel int16) error {
	set := fmt.Sprintf("access_level = $2, %s = $3", caps.StatusColumn)
	args := []any{id, accessLevel, statusValue(caps, model.StatusPending)}
	if caps.AuditColumns {
		set += ", requested_at = now(), approved_at = NULL, approved_by = NULL"
	}
	if caps.DenialColumns {
		set += ", denied_at = NULL, denied_by = NULL"
	}
	_, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE clinic_members SET %s WHERE id = $1`, set), args...)
	return classifyConnErr(err)
}

// ArchiveAffiliation snapshots a row into clinic_members_history before
// the live row is deleted or reused.
func ArchiveAffiliation(ctx context.Context, q Querier, aff *model.Affiliation, reason string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO clinic_members_history (clinic_id, user_id, access_level, status, reason, archived_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		aff.ClinicID, aff.UserID, aff.AccessLevel, aff.Status, reason, time.Now(),
	)
	return classifyConnErr(err)
}

// DeleteAffiliation removes the physical row so a fresh insert can pass
// the uniqueness constraint.
func DeleteAffiliation(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM clinic_members WHERE id = $1`, id)
	return classifyConnErr(err)
}

// SetApproved transitions a row to approved, stamping approver and time
// where the schema can hold them and clearing any denial stamps.
func SetApproved(ctx context.Context, q Querier, caps model.SchemaCaps, id int64, approver uuid.UUID) error {
	set := fmt.Sprintf("%s = $2", caps.StatusColumn)
	args := []any{id, statusValue(caps, model.StatusApproved)}
	if caps.AuditColumns {
		set += fmt.Sprintf(", approved_at = now(), approved_by = $%d", len(args)+1)
		args = append(args, approver)
	}
	if caps.DenialColumns {
		set += ", denied_at = NULL, denied_by = NULL"
	}
	_, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE clinic_members SET %s WHERE id = $1`, set), args...)
	return classifyConnErr(err)
}

// SetDenied transitions a row to denied, stamping the denier where the
// schema can hold it and clearing approval stamps.
func SetDenied(ctx context.Context, q Querier, caps model.SchemaCaps, id int64, denier uuid.UUID) error {
	set := fmt.Sprintf("%s = $2", caps.StatusColumn)
	args := []any{id, statusValue(caps, model.StatusDenied)}
	if caps.AuditColumns {
		set += ", approved_at = NULL, approved_by = NULL"
	}
	if caps.DenialColumns {
		set += fmt.Sprintf(", denied_at = now(), denied_by = $%d", len(args)+1)
		args = append(args, denier)
	}
	_, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE clinic_members SET %s WHERE id = $1`, set), args...)
	return classifyConnErr(err)
}

// UpsertApproved writes an approved affiliation directly, bypassing the
// pending path. Used by the bulk grant when a clinic goes live. With a
// uniqueness constraint this is a plain ON CONFLICT upsert; without one
// it emulates with a read-modify-write inside the caller's transaction.
func UpsertApproved(ctx context.Context, q Querier, caps model.SchemaCaps, clinicID, userID, approver uuid.UUID, accessLevel int16) error {
	if caps.UniquePair {
		var err error
		if caps.AuditColumns {
			_, err = q.ExecContext(ctx,
				`INSERT INTO clinic_members (clinic_id, user_id, access_level, status, requested_at, approved_at, approved_by)
				 VALUES ($1, $2, $3, $4, now(), now(), $5)
				 ON CONFLICT (clinic_id, user_id) DO UPDATE
				 SET status = EXCLUDED.status, approved_at = now(), approved_by = EXCLUDED.approved_by`,
				clinicID, userID, accessLevel, model.StatusApproved, approver,
			)
		} else {
			query := fmt.Sprintf(
				`INSERT INTO clinic_members (clinic_id, user_id, access_level, %[1]s) VALUES ($1, $2, $3, $4)
				 ON CONFLICT (clinic_id, user_id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s`,
				caps.StatusColumn,
			)
			_, err = q.ExecContext(ctx, query, clinicID, userID, accessLevel, statusValue(caps, model.StatusApproved))
		}
		return classifyConnErr(err)
	}

	current, err := CurrentAffiliation(ctx, q, caps, clinicID, userID)
	if err == ErrAffiliationNotFound {
		if err := InsertPending(ctx, q, caps, clinicID, userID, accessLevel); err != nil {
			return err
		}
		current, err = CurrentAffiliation(ctx, q, caps, clinicID, userID)
	}
	if err != nil {
		return err
	}
	return SetApproved(ctx, q, caps, current.ID, approver)
}

// DetachAffiliation removes the pair's rows outright (all of them, since
// pre-constraint data may hold several). Returns ErrAffiliationNotFound
// when nothing was removed.
func DetachAffiliation(ctx context.Context, q Querier, clinicID, userID uuid.UUID) error {
	res, err := q.ExecContext(ctx,
		`DELETE FROM clinic_members WHERE clinic_id = $1 AND user_id = $2`,
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
		return ErrAffiliationNotFound
	}
	return nil
}

// HasApprovedAffiliation reports whether the user currently holds an
// approved affiliation with the clinic.
func HasApprovedAffiliation(ctx context.Context, q Querier, caps model.SchemaCaps, clinicID, userID uuid.UUID) (bool, error) {
	aff, err := CurrentAffiliation(ctx, q, caps, clinicID, userID)
	if err == ErrAffiliationNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return aff.Status == model.StatusApproved, nil
}
