package store

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrClinicNotFound is returned when the clinic does not exist in the
	// registry.
	ErrClinicNotFound = errors.New("clinic not found")

	// ErrNotConfigured is returned when the clinic exists but its database
	// name is blank, i.e. provisioning never completed.
	ErrNotConfigured = errors.New("clinic database not configured")

	// ErrUnavailable is returned when a database is unreachable, dropped,
	// or refusing connections. Retryable.
	ErrUnavailable = errors.New("database unavailable")

	// ErrClinicExists is returned when a clinic with the same name,
	// compared case-insensitively, already exists.
	ErrClinicExists = errors.New("clinic name already exists")

	// ErrAffiliationNotFound is returned when no clinic_members row exists
	// for the (clinic, user) pair.
	ErrAffiliationNotFound = errors.New("affiliation not found")

	// ErrDuplicateRequest is returned when a pending or approved
	// affiliation already exists for the pair.
	ErrDuplicateRequest = errors.New("affiliation already requested")

	// ErrClinicNotValidated is returned when an affiliation is requested
	// against a clinic that is not yet validated.
	ErrClinicNotValidated = errors.New("clinic not validated")

	// ErrNotAdmin is returned when the acting user lacks an active admin
	// grant on the clinic.
	ErrNotAdmin = errors.New("user is not a clinic admin")

	// ErrLastAdmin is returned when a mutation would leave the clinic with
	// zero active admins.
	ErrLastAdmin = errors.New("cannot remove the last active admin")

	// ErrSelfRevoke is returned when an admin tries to revoke their own
	// grant.
	ErrSelfRevoke = errors.New("admins cannot revoke themselves")

	// ErrStatusColumn is returned by the schema resolver when the
	// clinic_members table has neither a status nor an etat column. This
	// is a deployment configuration error, never defaulted around.
	ErrStatusColumn = errors.New("clinic_members has no status or etat column")

	// ErrAdminNotFound is returned when the targeted admin grant does not
	// exist or is already inactive.
	ErrAdminNotFound = errors.New("admin grant not found")
)

// unavailableCodes lists SQLSTATE values meaning the target database is
// down or refusing work, as opposed to rejecting a statement.
var unavailableCodes = map[string]bool{
	pgerrcode.ConnectionException:                           true, // 08000
	pgerrcode.SQLClientUnableToEstablishSQLConnection:       true, // 08001
	pgerrcode.ConnectionDoesNotExist:                        true, // 08003
	pgerrcode.SQLServerRejectedEstablishmentOfSQLConnection: true, // 08004
	pgerrcode.ConnectionFailure:                             true, // 08006
	pgerrcode.ProtocolViolation:                             true, // 08P01
	pgerrcode.AdminShutdown:                                 true, // 57P01
	pgerrcode.CrashShutdown:                                 true, // 57P02
	pgerrcode.CannotConnectNow:                              true, // 57P03
	pgerrcode.TooManyConnections:                            true, // 53300
}

// classifyConnErr folds driver errors into ErrUnavailable where the
// SQLSTATE (or the absence of one, for dial failures) says the database
// itself is unreachable. A missing database (3D000) is unavailable too:
// the clinic record points at something that no longer exists.
func classifyConnErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgerrcode.InvalidCatalogName || unavailableCodes[pgErr.Code] {
			return errors.Join(ErrUnavailable, err)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}

// isDuplicate reports whether err is a unique_violation.
func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// isDuplicateDatabase reports whether err means the database already
// exists, which provisioning treats as success.
func isDuplicateDatabase(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.DuplicateDatabase
}
