package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/teresa-solution/clinic-registry-service/internal/model"
	"github.com/teresa-solution/clinic-registry-service/internal/store"
)

// ClinicService owns the clinic lifecycle: creation, platform
// validation/rejection and registry-side reads.
type ClinicService struct {
	reg          *store.Registry
	provisioning *ProvisioningService
}

func NewClinicService(reg *store.Registry, provisioning *ProvisioningService) *ClinicService {
	return &ClinicService{
		reg:          reg,
		provisioning: provisioning,
	}
}

// CreateClinicRequest carries the fields of a clinic-creation request.
// CreatorID has been authenticated upstream; the creator becomes the
// clinic's first admin and holds a pending affiliation until the clinic
// is validated.
type CreateClinicRequest struct {
	Name         string
	Address      string
	Speciality   string
	Phone        string
	ContactEmail string
	CreatorID    uuid.UUID
}

func validateCreateClinicRequest(req CreateClinicRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return errors.New("phone is required")
	}
	if req.ContactEmail != "" && !isValidEmail(req.ContactEmail) {
		return errors.New("invalid email format")
	}
	if req.CreatorID == uuid.Nil {
		return errors.New("creator id is required")
	}
	return nil
}

// isValidEmail performs a basic email validation
func isValidEmail(email string) bool {
	if len(email) < 3 || !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return false
	}
	return true
}

// CreateClinic registers a clinic in draft state, grants the creator the
// first admin seat with a pending affiliation, and queues database
// provisioning. The clinic row, the admin grant and the affiliation
// commit in one transaction: a failed creation leaves no clinic behind,
// and a clinic is never observable without its first admin. Provisioning
// is decoupled; its failure never rolls the clinic record back.
func (s *ClinicService) CreateClinic(ctx context.Context, req CreateClinicRequest) (*model.Clinic, error) {
	if err := validateCreateClinicRequest(req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	exists, err := s.reg.ClinicExistsByName(ctx, strings.TrimSpace(req.Name))
	if err != nil {
		log.Error().Err(err).Msg("Failed to check clinic name uniqueness")
		return nil, statusFromErr(err)
	}
	if exists {
		return nil, statusFromErr(store.ErrClinicExists)
	}

	clinic := &model.Clinic{
		Name:         strings.TrimSpace(req.Name),
		Address:      strings.TrimSpace(req.Address),
		Speciality:   strings.TrimSpace(req.Speciality),
		Phone:        strings.TrimSpace(req.Phone),
		ContactEmail: strings.TrimSpace(req.ContactEmail),
	}

	tx, err := s.reg.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, statusFromErr(err)
	}
	defer tx.Rollback()

	if err := store.InsertClinic(ctx, tx, clinic); err != nil {
		log.Error().Err(err).Msg("Failed to create clinic")
		return nil, statusFromErr(err)
	}
	if err := store.GrantAdmin(ctx, tx, clinic.ID, req.CreatorID); err != nil {
		return nil, statusFromErr(err)
	}
	caps, err := store.ResolveCaps(ctx, tx)
	if err != nil {
		return nil, statusFromErr(err)
	}
	if err := store.InsertPending(ctx, tx, caps, clinic.ID, req.CreatorID, 1); err != nil {
		return nil, statusFromErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, statusFromErr(err)
	}

	if s.provisioning != nil {
		s.provisioning.QueueForProvisioning(clinic.ID)
	}
	return clinic, nil
}

// GetClinic retrieves a clinic by ID.
func (s *ClinicService) GetClinic(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	clinic, err := s.reg.GetClinic(ctx, id)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return clinic, nil
}

// SearchClinics returns clinics matching q by name, address or
// speciality; an empty query returns the first five by name.
func (s *ClinicService) SearchClinics(ctx context.Context, q string) ([]*model.Clinic, error) {
	clinics, err := s.reg.SearchClinics(ctx, strings.TrimSpace(q))
	if err != nil {
		return nil, statusFromErr(err)
	}
	return clinics, nil
}

// ClinicsByUser lists the clinics the user is affiliated with.
func (s *ClinicService) ClinicsByUser(ctx context.Context, userID uuid.UUID) ([]*model.Clinic, error) {
	clinics, err := s.reg.ClinicsByUser(ctx, userID)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return clinics, nil
}

// ValidateClinic flips a draft clinic to validated and, in the same
// transaction, grants every currently-active admin an approved
// affiliation, so a validated clinic is never observed without approved
// admins. Admins granted after validation go through the normal
// request/approve path.
func (s *ClinicService) ValidateClinic(ctx context.Context, clinicID uuid.UUID) error {
	tx, err := s.reg.DB().BeginTx(ctx, nil)
	if err != nil {
		return statusFromErr(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE clinics SET lifecycle_state = $2, updated_at = now() WHERE id = $1 AND lifecycle_state = $3`,
		clinicID, model.LifecycleValidated, model.LifecycleDraft,
	)
	if err != nil {
		return statusFromErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return statusFromErr(err)
	}
	if n == 0 {
		// Either the clinic is unknown or it already left draft.
		if _, err := s.reg.GetClinic(ctx, clinicID); err != nil {
			return statusFromErr(err)
		}
		return status.Error(codes.FailedPrecondition, "Clinic is not in draft state")
	}

	admins, err := store.ActiveAdmins(ctx, tx, clinicID)
	if err != nil {
		return statusFromErr(err)
	}
	caps, err := store.ResolveCaps(ctx, tx)
	if err != nil {
		return statusFromErr(err)
	}
	for _, adminID := range admins {
		if err := store.UpsertApproved(ctx, tx, caps, clinicID, adminID, adminID, 1); err != nil {
			return statusFromErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return statusFromErr(err)
	}
	s.reg.InvalidateClinic(ctx, clinicID)
	log.Info().Str("clinic_id", clinicID.String()).Int("admins", len(admins)).Msg("Clinic validated")
	return nil
}

// RejectClinic flips a draft clinic to rejected.
func (s *ClinicService) RejectClinic(ctx context.Context, clinicID uuid.UUID) error {
	res, err := s.reg.DB().ExecContext(ctx,
		`UPDATE clinics SET lifecycle_state = $2, updated_at = now() WHERE id = $1 AND lifecycle_state = $3`,
		clinicID, model.LifecycleRejected, model.LifecycleDraft,
	)
	if err != nil {
		return statusFromErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return statusFromErr(err)
	}
	if n == 0 {
		if _, err := s.reg.GetClinic(ctx, clinicID); err != nil {
			return statusFromErr(err)
		}
		return status.Error(codes.FailedPrecondition, "Clinic is not in draft state")
	}
	s.reg.InvalidateClinic(ctx, clinicID)
	return nil
}
