package store

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClinicDatabaseName_Deterministic(t *testing.T) {
	id := uuid.MustParse("3f1c2a9e-0b4d-4f6a-8f0e-5a6b7c8d9e0f")
	name := ClinicDatabaseName(id)
	assert.Equal(t, "clinic_3f1c2a9e0b4d4f6a8f0e5a6b7c8d9e0f", name)
	assert.Equal(t, name, ClinicDatabaseName(id))
}

func TestClinicDatabaseName_DistinctPerClinic(t *testing.T) {
	assert.NotEqual(t, ClinicDatabaseName(uuid.New()), ClinicDatabaseName(uuid.New()))
}

// Every provisioning statement must be re-runnable: a retry or a
// concurrent run against an already-provisioned database may not fail
// and may not duplicate seeded rows.
func TestClinicSchema_EveryStatementRerunnable(t *testing.T) {
	for _, stmt := range clinicSchema {
		upper := strings.ToUpper(stmt)
		switch {
		case strings.HasPrefix(upper, "CREATE TABLE"),
			strings.HasPrefix(upper, "CREATE INDEX"):
			assert.Contains(t, upper, "IF NOT EXISTS", stmt)
		case strings.HasPrefix(upper, "ALTER TABLE"):
			assert.Contains(t, upper, "ADD COLUMN IF NOT EXISTS", stmt)
		case strings.HasPrefix(upper, "INSERT"):
			assert.Contains(t, upper, "ON CONFLICT", stmt)
		default:
			t.Fatalf("unexpected statement kind: %s", stmt)
		}
	}
}

func TestClinicSchema_SeedsSevenOpenDays(t *testing.T) {
	var seed string
	for _, stmt := range clinicSchema {
		if strings.Contains(stmt, "INSERT INTO open_day") {
			seed = stmt
		}
	}
	require.NotEmpty(t, seed)
	assert.Contains(t, seed, "generate_series(0, 6)")
	assert.Contains(t, seed, "ON CONFLICT (weekday) DO NOTHING")
}

func TestRenameLegacyLog_GuardedOnBothNames(t *testing.T) {
	assert.Contains(t, renameLegacyLog, "to_regclass('journal') IS NOT NULL")
	assert.Contains(t, renameLegacyLog, "to_regclass('log') IS NULL")
}
