package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyConnErr(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		unavailable bool
	}{
		{"database dropped", pgerrcode.InvalidCatalogName, true},
		{"connection failure", pgerrcode.ConnectionFailure, true},
		{"server shutting down", pgerrcode.AdminShutdown, true},
		{"cannot connect now", pgerrcode.CannotConnectNow, true},
		{"too many connections", pgerrcode.TooManyConnections, true},
		{"unique violation", pgerrcode.UniqueViolation, false},
		{"undefined table", pgerrcode.UndefinedTable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyConnErr(&pgconn.PgError{Code: tt.code})
			if tt.unavailable {
				assert.ErrorIs(t, err, ErrUnavailable)
			} else {
				assert.NotErrorIs(t, err, ErrUnavailable)
			}
		})
	}
}

func TestClassifyConnErr_KeepsOriginalError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.ConnectionFailure}
	err := classifyConnErr(pgErr)
	var got *pgconn.PgError
	assert.True(t, errors.As(err, &got))
	assert.Equal(t, pgerrcode.ConnectionFailure, got.Code)
}

func TestClassifyConnErr_Nil(t *testing.T) {
	assert.NoError(t, classifyConnErr(nil))
}

func TestIsDuplicateDatabase(t *testing.T) {
	assert.True(t, isDuplicateDatabase(&pgconn.PgError{Code: pgerrcode.DuplicateDatabase}))
	assert.False(t, isDuplicateDatabase(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, isDuplicateDatabase(errors.New("boom")))
}
