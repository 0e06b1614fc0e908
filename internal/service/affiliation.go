package service

import (
	"context"
	"database/sql"
	"slices"

	"github.com/google/uuid"

	"github.com/teresa-solution/clinic-registry-service/internal/model"
	"github.com/teresa-solution/clinic-registry-service/internal/monitoring"
	"github.com/teresa-solution/clinic-registry-service/internal/store"
)

// ReasonResubmitted is recorded on history rows archived because a
// denied affiliation was requested again.
const ReasonResubmitted = "resubmitted_after_denial"

// AffiliationService runs the user-clinic affiliation state machine.
// Every multi-step transition executes inside one registry transaction
// so concurrent approve/deny/resubmit on the same pair serialize on the
// affiliation row rather than interleaving.
type AffiliationService struct {
	reg *store.Registry
}

func NewAffiliationService(reg *store.Registry) *AffiliationService {
	return &AffiliationService{reg: reg}
}

// withTx runs fn inside a transaction, rolling back on error or
// cancellation so no partial transition is ever observed.
func (s *AffiliationService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.reg.DB().BeginTx(ctx, nil)
	if err != nil {
		return statusFromErr(err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return statusFromErr(err)
	}
	if err := tx.Commit(); err != nil {
		return statusFromErr(err)
	}
	return nil
}

// Request proposes an affiliation between a user and a validated clinic.
// A pending or approved current row is a duplicate request; a denied one
// is archived and resubmitted as pending.
func (s *AffiliationService) Request(ctx context.Context, clinicID, userID uuid.UUID, accessLevel int16) error {
	clinic, err := s.reg.GetClinic(ctx, clinicID)
	if err != nil {
		return statusFromErr(err)
	}
	if clinic.LifecycleState != model.LifecycleValidated {
		return statusFromErr(store.ErrClinicNotValidated)
	}

	var transition string
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		caps, err := store.ResolveCaps(ctx, tx)
		if err != nil {
			return err
		}

		current, err := store.CurrentAffiliation(ctx, tx, caps, clinicID, userID)
		switch {
		case err == store.ErrAffiliationNotFound:
			transition = "request"
			return store.InsertPending(ctx, tx, caps, clinicID, userID, accessLevel)
		case err != nil:
			return err
		}

		switch current.Status {
		case model.StatusPending, model.StatusApproved:
			return store.ErrDuplicateRequest
		}

		// Denied before: archive the old row, then resubmit. With a
		// uniqueness constraint the archived row must go away before a
		// fresh insert can land; without one the row is reused in place.
		if err := store.ArchiveAffiliation(ctx, tx, current, ReasonResubmitted); err != nil {
			return err
		}
		transition = "resubmit"
		if caps.UniquePair {
			if err := store.DeleteAffiliation(ctx, tx, current.ID); err != nil {
				return err
			}
			return store.InsertPending(ctx, tx, caps, clinicID, userID, accessLevel)
		}
		return store.ResetPending(ctx, tx, caps, current.ID, accessLevel)
	})
	if err != nil {
		return err
	}

	monitoring.AffiliationTransitions.WithLabelValues(transition).Inc()
	s.reg.RecordAction(ctx, clinicID, &userID, model.ActionInsert, "clinic_members", userID.String(),
		map[string]interface{}{"transition": transition})
	return nil
}

// Approve transitions the authoritative row for the pair to approved.
// The actor must hold an active admin grant on the clinic.
func (s *AffiliationService) Approve(ctx context.Context, clinicID, userID, actorID uuid.UUID) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireAdmin(ctx, tx, clinicID, actorID); err != nil {
			return err
		}
		caps, err := store.ResolveCaps(ctx, tx)
		if err != nil {
			return err
		}
		current, err := store.CurrentAffiliation(ctx, tx, caps, clinicID, userID)
		if err != nil {
			return err
		}
		return store.SetApproved(ctx, tx, caps, current.ID, actorID)
	})
	if err != nil {
		return err
	}

	monitoring.AffiliationTransitions.WithLabelValues("approve").Inc()
	s.reg.RecordAction(ctx, clinicID, &actorID, model.ActionUpdate, "clinic_members", userID.String(),
		map[string]interface{}{"status": model.StatusApproved})
	return nil
}

// Deny transitions the authoritative row for the pair to denied. Also
// the revocation path for an approved affiliation.
func (s *AffiliationService) Deny(ctx context.Context, clinicID, userID, actorID uuid.UUID) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireAdmin(ctx, tx, clinicID, actorID); err != nil {
			return err
		}
		caps, err := store.ResolveCaps(ctx, tx)
		if err != nil {
			return err
		}
		current, err := store.CurrentAffiliation(ctx, tx, caps, clinicID, userID)
		if err != nil {
			return err
		}
		return store.SetDenied(ctx, tx, caps, current.ID, actorID)
	})
	if err != nil {
		return err
	}

	monitoring.AffiliationTransitions.WithLabelValues("deny").Inc()
	s.reg.RecordAction(ctx, clinicID, &actorID, model.ActionUpdate, "clinic_members", userID.String(),
		map[string]interface{}{"status": model.StatusDenied})
	return nil
}

// Current returns the authoritative affiliation for the pair.
func (s *AffiliationService) Current(ctx context.Context, clinicID, userID uuid.UUID) (*model.Affiliation, error) {
	caps, err := store.ResolveCaps(ctx, s.reg.DB())
	if err != nil {
		return nil, statusFromErr(err)
	}
	aff, err := store.CurrentAffiliation(ctx, s.reg.DB(), caps, clinicID, userID)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return aff, nil
}

// GrantAdmin lets an existing admin grant another user an admin seat.
func (s *AffiliationService) GrantAdmin(ctx context.Context, clinicID, userID, actorID uuid.UUID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireAdmin(ctx, tx, clinicID, actorID); err != nil {
			return err
		}
		return store.GrantAdmin(ctx, tx, clinicID, userID)
	})
}

// RevokeAdmin deactivates another admin's grant. Self-revocation is
// rejected outright; revoking the last active admin is rejected so a
// clinic never ends up unmanaged. The active-admin rows are locked for
// the whole check-then-act so two concurrent revocations cannot both
// pass the count check.
func (s *AffiliationService) RevokeAdmin(ctx context.Context, clinicID, targetID, actorID uuid.UUID) error {
	if targetID == actorID {
		return statusFromErr(store.ErrSelfRevoke)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireAdmin(ctx, tx, clinicID, actorID); err != nil {
			return err
		}
		admins, err := store.ActiveAdmins(ctx, tx, clinicID)
		if err != nil {
			return err
		}
		if !slices.Contains(admins, targetID) {
			return store.ErrAdminNotFound
		}
		if len(admins) <= 1 {
			return store.ErrLastAdmin
		}
		return store.DeactivateAdmin(ctx, tx, clinicID, targetID)
	})
}

// Detach removes a user's affiliation rows entirely. When the user holds
// an active admin seat it is deactivated too, subject to the last-admin
// invariant.
func (s *AffiliationService) Detach(ctx context.Context, clinicID, userID, actorID uuid.UUID) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireAdmin(ctx, tx, clinicID, actorID); err != nil {
			return err
		}
		admins, err := store.ActiveAdmins(ctx, tx, clinicID)
		if err != nil {
			return err
		}
		if slices.Contains(admins, userID) {
			if len(admins) <= 1 {
				return store.ErrLastAdmin
			}
			if err := store.DeactivateAdmin(ctx, tx, clinicID, userID); err != nil {
				return err
			}
		}
		return store.DetachAffiliation(ctx, tx, clinicID, userID)
	})
	if err != nil {
		return err
	}

	monitoring.AffiliationTransitions.WithLabelValues("detach").Inc()
	s.reg.RecordAction(ctx, clinicID, &actorID, model.ActionDelete, "clinic_members", userID.String(), nil)
	return nil
}

// requireAdmin folds the admin check into ErrNotAdmin.
func requireAdmin(ctx context.Context, q store.Querier, clinicID, actorID uuid.UUID) error {
	ok, err := store.IsClinicAdmin(ctx, q, clinicID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotAdmin
	}
	return nil
}
