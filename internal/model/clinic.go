package model

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle states of a clinic on the platform.
const (
	LifecycleDraft     = "draft"
	LifecycleValidated = "validated"
	LifecycleRejected  = "rejected"
)

// Provisioning states of a clinic's dedicated database.
const (
	ProvisioningPending = "pending"
	ProvisioningReady   = "ready"
	ProvisioningFailed  = "failed"
)

// Clinic represents the clinics table in the registry database.
type Clinic struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Speciality     string    `json:"speciality"`
	Phone          string    `json:"phone"`
	ContactEmail   string    // Plaintext (transient, not stored in DB)
	EncryptedEmail []byte    // Stored in DB
	EmailIV        []byte    // Stored in DB
	LifecycleState string    `json:"lifecycle_state"`
	DBName         string    `json:"db_name"`
	Provisioning   string    `json:"provisioning_state"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ClinicAdmin represents the clinic_admins table. A clinic must always
// retain at least one active admin.
type ClinicAdmin struct {
	ClinicID  uuid.UUID `json:"clinic_id"`
	UserID    uuid.UUID `json:"user_id"`
	Active    bool      `json:"active"`
	GrantedAt time.Time `json:"granted_at"`
}
