package store

import (
	"context"

	"github.com/teresa-solution/clinic-registry-service/internal/model"
)

// membersTable is the affiliation table of the registry database. Its
// physical layout differs between deployments: older registries carry a
// boolean etat column and no audit or uniqueness metadata, newer ones a
// smallint status plus actor/timestamp columns and a uniqueness
// constraint over the (clinic, user) pair.
const membersTable = "clinic_members"

const capsColumnsQuery = `SELECT column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = current_schema() AND table_name = $1`

const capsUniqueQuery = `SELECT tc.constraint_name, kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON kcu.constraint_name = tc.constraint_name
	 AND kcu.table_schema = tc.table_schema
	WHERE tc.table_schema = current_schema()
	  AND tc.table_name = $1
	  AND tc.constraint_type IN ('UNIQUE', 'PRIMARY KEY')`

// ResolveCaps introspects the live layout of clinic_members and reports
// which writes the schema can express. It is called on every affiliation
// write and never cached: different registry deployments differ, and a
// migration may land while the process is running.
func ResolveCaps(ctx context.Context, q Querier) (model.SchemaCaps, error) {
	caps := model.SchemaCaps{}

	rows, err := q.QueryContext(ctx, capsColumnsQuery, membersTable)
	if err != nil {
		return caps, classifyConnErr(err)
	}
	defer rows.Close()

	types := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return caps, err
		}
		types[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return caps, err
	}

	switch {
	case types["status"] != "":
		caps.StatusColumn = "status"
		caps.StatusBoolean = types["status"] == "boolean"
	case types["etat"] != "":
		caps.StatusColumn = "etat"
		caps.StatusBoolean = types["etat"] == "boolean"
	default:
		return caps, ErrStatusColumn
	}

	// Audit-aware writes need the modern status column as well: a legacy
	// boolean cannot hold tri-state status next to actor attribution.
	hasAudit := types["requested_at"] != "" && types["approved_at"] != "" && types["approved_by"] != ""
	caps.AuditColumns = hasAudit && caps.StatusColumn == "status" && !caps.StatusBoolean
	caps.DenialColumns = types["denied_at"] != "" && types["denied_by"] != ""

	caps.UniquePair, err = resolveUniquePair(ctx, q)
	if err != nil {
		return caps, err
	}
	return caps, nil
}

// resolveUniquePair reports whether some constraint covers exactly
// {clinic_id, user_id}, in either column order.
func resolveUniquePair(ctx context.Context, q Querier) (bool, error) {
	rows, err := q.QueryContext(ctx, capsUniqueQuery, membersTable)
	if err != nil {
		return false, classifyConnErr(err)
	}
	defer rows.Close()

	constraints := make(map[string]map[string]bool)
	for rows.Next() {
		var constraint, column string
		if err := rows.Scan(&constraint, &column); err != nil {
			return false, err
		}
		if constraints[constraint] == nil {
			constraints[constraint] = make(map[string]bool)
		}
		constraints[constraint][column] = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, cols := range constraints {
		if len(cols) == 2 && cols["clinic_id"] && cols["user_id"] {
			return true, nil
		}
	}
	return false, nil
}
