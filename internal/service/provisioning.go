package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/teresa-solution/clinic-registry-service/internal/monitoring"
	"github.com/teresa-solution/clinic-registry-service/internal/store"
)

// ProvisioningService creates clinic databases in the background and
// heals partially-applied schemas on process start.
type ProvisioningService struct {
	reg   *store.Registry
	queue chan uuid.UUID
}

// NewProvisioningService starts the background provisioning worker.
func NewProvisioningService(reg *store.Registry) *ProvisioningService {
	ps := &ProvisioningService{
		reg:   reg,
		queue: make(chan uuid.UUID, 10),
	}
	go ps.startProvisioningWorker()
	return ps
}

func (ps *ProvisioningService) startProvisioningWorker() {
	for clinicID := range ps.queue {
		log.Info().Str("clinic_id", clinicID.String()).Msg("Starting provisioning process")
		if err := ps.provisionClinic(context.Background(), clinicID); err != nil {
			log.Error().Err(err).Str("clinic_id", clinicID.String()).Msg("Provisioning failed")
		}
	}
}

// provisionClinic runs one idempotent provisioning attempt and records
// its outcome on the clinic row so a failure can be inspected and
// retried later without replaying the creation request.
func (ps *ProvisioningService) provisionClinic(ctx context.Context, clinicID uuid.UUID) error {
	start := time.Now()
	if err := ps.reg.CreateProvisioningLog(ctx, clinicID, "db_setup", "pending", nil); err != nil {
		log.Warn().Err(err).Msg("Failed to record provisioning start")
	}

	dbName, err := ps.reg.Provision(ctx, clinicID)
	monitoring.ProvisioningDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		monitoring.ClinicsProvisioned.WithLabelValues("failed").Inc()
		monitoring.MockAlert("clinic provisioning failed", map[string]string{
			"clinic_id": clinicID.String(),
		})
		if recErr := ps.reg.SetProvisioningFailed(ctx, clinicID, err.Error()); recErr != nil {
			log.Error().Err(recErr).Str("clinic_id", clinicID.String()).Msg("Failed to record provisioning failure")
		}
		ps.reg.CreateProvisioningLog(ctx, clinicID, "db_setup", "failed", map[string]interface{}{"error": err.Error()})
		return err
	}

	if err := ps.reg.SetClinicDatabase(ctx, clinicID, dbName); err != nil {
		return err
	}
	monitoring.ClinicsProvisioned.WithLabelValues("ready").Inc()
	ps.reg.CreateProvisioningLog(ctx, clinicID, "db_setup", "success", map[string]interface{}{"db_name": dbName})
	return nil
}

// QueueForProvisioning schedules a provisioning attempt for the clinic.
func (ps *ProvisioningService) QueueForProvisioning(clinicID uuid.UUID) {
	ps.queue <- clinicID
}

// HealAll re-runs provisioning for every clinic with a recorded database
// name. Called on process start; provisioning is idempotent, so this
// only repairs schemas left half-applied by an earlier crash or rolls
// out additive schema changes.
func (ps *ProvisioningService) HealAll(ctx context.Context) {
	clinics, err := ps.reg.ClinicsWithDatabase(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Heal sweep aborted: cannot list clinics")
		return
	}
	for clinicID := range clinics {
		if err := ps.provisionClinic(ctx, clinicID); err != nil {
			log.Error().Err(err).Str("clinic_id", clinicID.String()).Msg("Heal sweep: provisioning failed")
		}
	}
	log.Info().Int("clinics", len(clinics)).Msg("Provisioning heal sweep finished")
}
