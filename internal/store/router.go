package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// ClinicConn is a lent handle to one clinic's dedicated database. The
// caller must Close it on every exit path.
type ClinicConn struct {
	DB     *sql.DB
	Name   string
	Clinic uuid.UUID
}

// Close releases the handle.
func (c *ClinicConn) Close() error {
	return c.DB.Close()
}

// Route resolves a clinic's database and opens a fresh handle to it.
//
// Outcomes: ErrClinicNotFound when the clinic does not exist,
// ErrNotConfigured when no database name is recorded (provisioning never
// completed), ErrUnavailable when the database is unreachable or has
// been dropped since provisioning. Each clinic database is its own
// failure domain; an unreachable clinic never affects registry-scoped
// work or another clinic's handle.
func (r *Registry) Route(ctx context.Context, clinicID uuid.UUID) (*ClinicConn, error) {
	var dbName string
	err := r.db.QueryRowContext(ctx,
		`SELECT db_name FROM clinics WHERE id = $1`, clinicID,
	).Scan(&dbName)
	if err == sql.ErrNoRows {
		return nil, ErrClinicNotFound
	}
	if err != nil {
		return nil, classifyConnErr(err)
	}
	if dbName == "" {
		return nil, ErrNotConfigured
	}

	clinicDB, err := r.openDatabase(dbName)
	if err != nil {
		return nil, err
	}
	if err := clinicDB.PingContext(ctx); err != nil {
		clinicDB.Close()
		return nil, classifyConnErr(err)
	}
	return &ClinicConn{DB: clinicDB, Name: dbName, Clinic: clinicID}, nil
}
