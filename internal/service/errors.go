package service

import (
	"context"
	"database/sql"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/teresa-solution/clinic-registry-service/internal/store"
)

// statusFromErr maps store errors onto the classified error surface.
// Retryable outcomes (Unavailable) must stay distinguishable from
// permanent ones, so the unavailable checks run before the catch-all.
func statusFromErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, store.ErrNotConfigured):
		return status.Error(codes.Unavailable, "Clinic database unavailable")
	case errors.Is(err, store.ErrClinicNotFound):
		return status.Error(codes.NotFound, "Clinic not found")
	case errors.Is(err, store.ErrAffiliationNotFound):
		return status.Error(codes.NotFound, "Affiliation not found")
	case errors.Is(err, store.ErrAdminNotFound):
		return status.Error(codes.NotFound, "Admin grant not found")
	case errors.Is(err, sql.ErrNoRows):
		return status.Error(codes.NotFound, "Not found")
	case errors.Is(err, store.ErrNotAdmin):
		return status.Error(codes.PermissionDenied, "Clinic admin rights required")
	case errors.Is(err, store.ErrSelfRevoke):
		return status.Error(codes.PermissionDenied, "Admins cannot revoke their own grant")
	case errors.Is(err, store.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, "Affiliation already requested")
	case errors.Is(err, store.ErrClinicExists):
		return status.Error(codes.AlreadyExists, "Clinic name already exists")
	case errors.Is(err, store.ErrLastAdmin):
		return status.Error(codes.FailedPrecondition, "A clinic must keep at least one active admin")
	case errors.Is(err, store.ErrClinicNotValidated):
		return status.Error(codes.FailedPrecondition, "Clinic is not validated")
	case errors.Is(err, store.ErrStatusColumn):
		return status.Error(codes.Internal, "Registry schema misconfigured: no affiliation status column")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.Canceled, "Operation cancelled")
	default:
		return status.Error(codes.Internal, "Internal server error")
	}
}
