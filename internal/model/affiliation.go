package model

import (
	"time"

	"github.com/google/uuid"
)

// Affiliation statuses. Stored as a smallint on modern schemas; legacy
// deployments carry a boolean etat column instead (false=pending,
// true=approved, no way to express denial).
const (
	StatusPending  int16 = 0
	StatusApproved int16 = 1
	StatusDenied   int16 = 2
)

// Affiliation represents one clinic_members row: a user's relationship
// with a clinic.
type Affiliation struct {
	ID          int64      `json:"id"`
	ClinicID    uuid.UUID  `json:"clinic_id"`
	UserID      uuid.UUID  `json:"user_id"`
	AccessLevel int16      `json:"access_level"`
	Status      int16      `json:"status"`
	RequestedAt *time.Time `json:"requested_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ApprovedBy  *uuid.UUID `json:"approved_by,omitempty"`
	DeniedAt    *time.Time `json:"denied_at,omitempty"`
	DeniedBy    *uuid.UUID `json:"denied_by,omitempty"`
}

// AffiliationHistory is an immutable snapshot of a clinic_members row,
// written before the live row is reused or replaced.
type AffiliationHistory struct {
	ID         int64     `json:"id"`
	ClinicID   uuid.UUID `json:"clinic_id"`
	UserID     uuid.UUID `json:"user_id"`
	Status     int16     `json:"status"`
	Reason     string    `json:"reason"`
	ArchivedAt time.Time `json:"archived_at"`
}

// SchemaCaps describes which historical clinic_members layout a registry
// deployment actually has. Computed per call, never persisted.
type SchemaCaps struct {
	StatusColumn  string // "status" or legacy "etat"
	StatusBoolean bool   // legacy boolean column instead of smallint
	AuditColumns  bool   // requested_at/approved_at/approved_by present, modern status
	DenialColumns bool   // denied_at/denied_by present
	UniquePair    bool   // uniqueness constraint over (clinic_id, user_id)
}

// Modern reports whether tri-state status plus actor attribution can be
// expressed on this schema.
func (c SchemaCaps) Modern() bool {
	return c.AuditColumns && !c.StatusBoolean && c.StatusColumn == "status"
}
