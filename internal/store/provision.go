package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

// ClinicDatabaseName derives the deterministic database name for a
// clinic.
func ClinicDatabaseName(clinicID uuid.UUID) string {
	return "clinic_" + strings.ReplaceAll(clinicID.String(), "-", "")
}

// openDatabase opens a fresh handle to one database on the configured
// host. The caller owns the handle and must close it.
func (r *Registry) openDatabase(database string) (*sql.DB, error) {
	pgcfg, err := pgx.ParseConfig(r.cfg.DSN(database))
	if err != nil {
		return nil, err
	}
	return stdlib.OpenDB(*pgcfg), nil
}

// clinicSchema is the fixed set of schema objects every clinic database
// carries. Every statement is re-runnable so provisioning can heal a
// partially-applied schema on retry.
var clinicSchema = []string{
	`CREATE TABLE IF NOT EXISTS clinic_patient (
		patient_id UUID PRIMARY KEY,
		first_seen_at TIMESTAMP NOT NULL DEFAULT now(),
		last_seen_at TIMESTAMP NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS rdv (
		id BIGSERIAL PRIMARY KEY,
		patient_id UUID NOT NULL,
		rdv_date DATE NOT NULL,
		rdv_time TIME NULL,
		arrival_time TIME NULL,
		seq_num INTEGER NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		state SMALLINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS rdv_patient_idx ON rdv (patient_id)`,
	`CREATE INDEX IF NOT EXISTS rdv_date_idx ON rdv (rdv_date)`,
	`CREATE TABLE IF NOT EXISTS consultation (
		id BIGSERIAL PRIMARY KEY,
		patient_id UUID NOT NULL,
		consultation_date TIMESTAMP NOT NULL DEFAULT now(),
		reason TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS consultation_patient_idx ON consultation (patient_id)`,
	`CREATE TABLE IF NOT EXISTS log (
		id BIGSERIAL PRIMARY KEY,
		user_id UUID NULL,
		action_type TEXT NOT NULL CHECK (action_type IN ('insert', 'update', 'cancel', 'delete')),
		table_name TEXT NULL,
		row_id TEXT NULL,
		details JSONB NULL,
		created_at TIMESTAMP NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS open_day (
		weekday SMALLINT PRIMARY KEY CHECK (weekday BETWEEN 0 AND 6),
		open BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`INSERT INTO open_day (weekday, open)
		SELECT d, TRUE FROM generate_series(0, 6) AS d
		ON CONFLICT (weekday) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS consultation_flags (
		id SMALLINT PRIMARY KEY CHECK (id = 1)
	)`,
	// Feature flag columns are only ever added, with defaults backfilled;
	// existing clinic databases pick new flags up on the next heal sweep.
	`ALTER TABLE consultation_flags ADD COLUMN IF NOT EXISTS show_vitals BOOLEAN NOT NULL DEFAULT TRUE`,
	`ALTER TABLE consultation_flags ADD COLUMN IF NOT EXISTS show_prescription BOOLEAN NOT NULL DEFAULT TRUE`,
	`ALTER TABLE consultation_flags ADD COLUMN IF NOT EXISTS show_history BOOLEAN NOT NULL DEFAULT FALSE`,
	`INSERT INTO consultation_flags (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
}

// renameLegacyLog renames the pre-split journal table to log, guarded by
// existence checks on both names so the rename never runs twice and
// never fights the CREATE TABLE above.
const renameLegacyLog = `DO $$
BEGIN
	IF to_regclass('journal') IS NOT NULL AND to_regclass('log') IS NULL THEN
		ALTER TABLE journal RENAME TO log;
	END IF;
END
$$`

// Provision creates the clinic's dedicated database if absent and applies
// the clinic schema to it. Idempotent: safe to call repeatedly and
// concurrently with itself. Returns the database name; recording the
// outcome on the clinic row is the caller's job, so a failed attempt
// never rolls back the clinic record.
func (r *Registry) Provision(ctx context.Context, clinicID uuid.UUID) (string, error) {
	dbName := ClinicDatabaseName(clinicID)

	if err := r.ensureDatabase(ctx, dbName); err != nil {
		return "", err
	}

	clinicDB, err := r.openDatabase(dbName)
	if err != nil {
		return "", err
	}
	defer clinicDB.Close()

	if _, err := clinicDB.ExecContext(ctx, renameLegacyLog); err != nil {
		return "", fmt.Errorf("rename legacy log table: %w", classifyConnErr(err))
	}
	for _, stmt := range clinicSchema {
		if _, err := clinicDB.ExecContext(ctx, stmt); err != nil {
			return "", fmt.Errorf("apply clinic schema: %w", classifyConnErr(err))
		}
	}
	return dbName, nil
}

// ensureDatabase creates the physical database when it does not exist.
// A concurrent creator winning the race surfaces as duplicate_database,
// which is success here.
func (r *Registry) ensureDatabase(ctx context.Context, dbName string) error {
	admin, err := r.openDatabase(r.cfg.AdminDB)
	if err != nil {
		return err
	}
	defer admin.Close()

	var one int
	err = admin.QueryRowContext(ctx,
		`SELECT 1 FROM pg_database WHERE datname = $1 LIMIT 1`, dbName,
	).Scan(&one)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return classifyConnErr(err)
	}

	// CREATE DATABASE cannot take bound parameters.
	_, err = admin.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName))
	if err != nil && !isDuplicateDatabase(err) {
		return classifyConnErr(err)
	}
	return nil
}
