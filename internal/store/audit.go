package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/teresa-solution/clinic-registry-service/internal/monitoring"
)

const ensureLogTable = `CREATE TABLE IF NOT EXISTS log (
	id BIGSERIAL PRIMARY KEY,
	user_id UUID NULL,
	action_type TEXT NOT NULL CHECK (action_type IN ('insert', 'update', 'cancel', 'delete')),
	table_name TEXT NULL,
	row_id TEXT NULL,
	details JSONB NULL,
	created_at TIMESTAMP NOT NULL DEFAULT now()
)`

// RecordAction appends one audit row to the clinic's own log table.
// Best-effort by contract: every failure on the way (clinic unknown,
// database down, insert rejected) is reported as a diagnostic and
// swallowed, so the operation being recorded can never be failed by its
// own audit trail. Call it only after the primary mutation committed.
func (r *Registry) RecordAction(ctx context.Context, clinicID uuid.UUID, actorID *uuid.UUID, action, tableName, rowID string, details any) {
	conn, err := r.Route(ctx, clinicID)
	if err != nil {
		monitoring.AuditLogDrops.Inc()
		log.Warn().Err(err).Str("clinic_id", clinicID.String()).Msg("audit log skipped: clinic database not routable")
		return
	}
	defer conn.Close()

	if _, err := conn.DB.ExecContext(ctx, ensureLogTable); err != nil {
		monitoring.AuditLogDrops.Inc()
		log.Warn().Err(err).Str("clinic_id", clinicID.String()).Msg("audit log skipped: log table not available")
		return
	}

	var detailsJSON any
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			log.Warn().Err(err).Str("clinic_id", clinicID.String()).Msg("audit log details dropped")
		} else {
			detailsJSON = data
		}
	}

	var tbl, row any
	if tableName != "" {
		tbl = tableName
	}
	if rowID != "" {
		row = rowID
	}

	_, err = conn.DB.ExecContext(ctx,
		`INSERT INTO log (user_id, action_type, table_name, row_id, details) VALUES ($1, $2, $3, $4, $5)`,
		actorID, action, tbl, row, detailsJSON,
	)
	if err != nil {
		monitoring.AuditLogDrops.Inc()
		log.Warn().Err(err).Str("clinic_id", clinicID.String()).Str("action", action).Msg("audit log insert failed")
	}
}
