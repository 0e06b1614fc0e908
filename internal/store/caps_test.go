package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectColumns(mock sqlmock.Sqlmock, cols map[string]string) {
	rows := sqlmock.NewRows([]string{"column_name", "data_type"})
	for name, dataType := range cols {
		rows.AddRow(name, dataType)
	}
	mock.ExpectQuery(`information_schema.columns`).
		WithArgs(membersTable).
		WillReturnRows(rows)
}

func expectConstraints(mock sqlmock.Sqlmock, constraints map[string][]string) {
	rows := sqlmock.NewRows([]string{"constraint_name", "column_name"})
	for name, cols := range constraints {
		for _, col := range cols {
			rows.AddRow(name, col)
		}
	}
	mock.ExpectQuery(`information_schema.table_constraints`).
		WithArgs(membersTable).
		WillReturnRows(rows)
}

func TestResolveCaps_ModernSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectColumns(mock, map[string]string{
		"id":           "bigint",
		"clinic_id":    "uuid",
		"user_id":      "uuid",
		"access_level": "smallint",
		"status":       "smallint",
		"requested_at": "timestamp without time zone",
		"approved_at":  "timestamp without time zone",
		"approved_by":  "uuid",
		"denied_at":    "timestamp without time zone",
		"denied_by":    "uuid",
	})
	expectConstraints(mock, map[string][]string{
		"clinic_members_pkey":     {"id"},
		"clinic_members_pair_key": {"clinic_id", "user_id"},
	})

	caps, err := ResolveCaps(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, "status", caps.StatusColumn)
	assert.False(t, caps.StatusBoolean)
	assert.True(t, caps.AuditColumns)
	assert.True(t, caps.DenialColumns)
	assert.True(t, caps.UniquePair)
	assert.True(t, caps.Modern())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveCaps_LegacyEtatSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectColumns(mock, map[string]string{
		"id":           "bigint",
		"clinic_id":    "uuid",
		"user_id":      "uuid",
		"access_level": "smallint",
		"etat":         "boolean",
	})
	expectConstraints(mock, map[string][]string{
		"clinic_members_pkey": {"id"},
	})

	caps, err := ResolveCaps(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, "etat", caps.StatusColumn)
	assert.True(t, caps.StatusBoolean)
	assert.False(t, caps.AuditColumns)
	assert.False(t, caps.DenialColumns)
	assert.False(t, caps.UniquePair)
	assert.False(t, caps.Modern())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveCaps_AuditColumnsNeedModernStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Audit columns exist but the status column is the legacy boolean:
	// audit-aware writes must stay off.
	expectColumns(mock, map[string]string{
		"etat":         "boolean",
		"requested_at": "timestamp without time zone",
		"approved_at":  "timestamp without time zone",
		"approved_by":  "uuid",
	})
	expectConstraints(mock, map[string][]string{})

	caps, err := ResolveCaps(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, "etat", caps.StatusColumn)
	assert.False(t, caps.AuditColumns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveCaps_NoStatusColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectColumns(mock, map[string]string{"id": "bigint"})

	_, err = ResolveCaps(context.Background(), db)
	assert.ErrorIs(t, err, ErrStatusColumn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveCaps_UniquePairEitherOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectColumns(mock, map[string]string{"status": "smallint"})
	expectConstraints(mock, map[string][]string{
		"members_unique": {"user_id", "clinic_id"},
	})

	caps, err := ResolveCaps(context.Background(), db)
	require.NoError(t, err)
	assert.True(t, caps.UniquePair)
	assert.NoError(t, mock.ExpectationsWereMet())
}
