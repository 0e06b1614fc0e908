package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/teresa-solution/clinic-registry-service/internal/monitoring"
	"github.com/teresa-solution/clinic-registry-service/internal/service"
	"github.com/teresa-solution/clinic-registry-service/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		httpPort  = flag.Int("http-port", 8081, "Port for the HTTP API, health checks and metrics")
		dbHost    = flag.String("db-host", "localhost", "Database host")
		dbPort    = flag.Int("db-port", 5432, "Database port")
		dbUser    = flag.String("db-user", "admin", "Database user")
		dbPass    = flag.String("db-pass", "securepassword", "Database password")
		dbName    = flag.String("db-name", "clinic_registry", "Registry database name")
		adminDB   = flag.String("admin-db", "postgres", "Maintenance database used to create clinic databases")
		redisAddr = flag.String("redis-addr", "", "Redis address for the clinic cache (empty disables caching)")
	)
	flag.Parse()

	reg, err := store.Open(store.Config{
		Host:      *dbHost,
		Port:      *dbPort,
		User:      *dbUser,
		Password:  *dbPass,
		Database:  *dbName,
		AdminDB:   *adminDB,
		RedisAddr: *redisAddr,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to registry database")
	}
	defer reg.Close()

	monitoring.InitMetrics()

	provisioning := service.NewProvisioningService(reg)
	clinicSvc := service.NewClinicService(reg, provisioning)
	affiliationSvc := service.NewAffiliationService(reg)
	appointmentSvc := service.NewAppointmentService(reg)

	log.Info().Msg("Starting Clinic Registry Service")

	// Re-run provisioning for every clinic with a recorded database so
	// half-applied schemas and new additive columns converge on start.
	go provisioning.HealAll(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /clinics", func(w http.ResponseWriter, r *http.Request) {
		clinics, err := clinicSvc.SearchClinics(r.Context(), r.URL.Query().Get("q"))
		respond(w, clinics, err)
	})
	mux.HandleFunc("GET /clinics/{id}", func(w http.ResponseWriter, r *http.Request) {
		clinicID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid clinic id", http.StatusBadRequest)
			return
		}
		clinic, err := clinicSvc.GetClinic(r.Context(), clinicID)
		respond(w, clinic, err)
	})
	mux.HandleFunc("GET /clinics/{id}/members/{user}", func(w http.ResponseWriter, r *http.Request) {
		clinicID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid clinic id", http.StatusBadRequest)
			return
		}
		userID, err := uuid.Parse(r.PathValue("user"))
		if err != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}
		aff, err := affiliationSvc.Current(r.Context(), clinicID, userID)
		respond(w, aff, err)
	})
	mux.HandleFunc("GET /clinics/{id}/open-days", func(w http.ResponseWriter, r *http.Request) {
		clinicID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid clinic id", http.StatusBadRequest)
			return
		}
		actorID, err := uuid.Parse(r.URL.Query().Get("actor"))
		if err != nil {
			http.Error(w, "invalid actor id", http.StatusBadRequest)
			return
		}
		days, err := appointmentSvc.OpenDays(r.Context(), clinicID, actorID)
		respond(w, days, err)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *httpPort),
		Handler: mux,
	}

	go func() {
		log.Info().Msgf("HTTP server started on port %d", *httpPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	httpServer.Shutdown(context.Background())
	log.Info().Msg("Server exiting")
}

// respond renders a service result as JSON, translating the classified
// error codes to HTTP statuses.
func respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		http.Error(w, status.Convert(err).Message(), httpStatus(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func httpStatus(err error) int {
	switch status.Code(err) {
	case codes.NotFound:
		return http.StatusNotFound
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.AlreadyExists, codes.FailedPrecondition:
		return http.StatusConflict
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
