package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	ClinicsProvisioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinics_provisioned_total",
			Help: "Total number of clinic provisioning attempts by outcome",
		},
		[]string{"outcome"},
	)
	ProvisioningDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clinic_provisioning_duration_seconds",
			Help:    "Duration of clinic database provisioning in seconds",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		},
	)
	AffiliationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliation_transitions_total",
			Help: "Affiliation state transitions by kind",
		},
		[]string{"transition"},
	)
	AuditLogDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_log_drops_total",
			Help: "Audit records dropped because the clinic database was not writable",
		},
	)
)

func InitMetrics() {
	for _, c := range []prometheus.Collector{
		ClinicsProvisioned, ProvisioningDuration, AffiliationTransitions, AuditLogDrops,
	} {
		if err := prometheus.Register(c); err != nil {
			log.Error().Err(err).Msg("Failed to register metric")
		}
	}
}
