package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/clinic-ops-platform/internal/appointments"
	"github.com/wolfman30/clinic-ops-platform/internal/audit"
	"github.com/wolfman30/clinic-ops-platform/internal/calendarfeed"
	"github.com/wolfman30/clinic-ops-platform/internal/catalog"
	"github.com/wolfman30/clinic-ops-platform/internal/clinic"
	httpmiddleware "github.com/wolfman30/clinic-ops-platform/internal/http/middleware"
	"github.com/wolfman30/clinic-ops-platform/internal/patients"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	AppointmentsHandler *appointments.Handler
	PatientsHandler     *patients.Handler
	CatalogHandler      *catalog.Handler
	ClinicHandler       *clinic.Handler
	ClinicStatsHandler  *clinic.StatsHandler
	ClinicDashboard     *clinic.DashboardHandler
	AuditHandler        *audit.Handler
	CalendarFeed        *calendarfeed.Hub
	MetricsHandler      http.Handler
	AdminAuthSecret     string
	CORSAllowedOrigins  []string

	// Optional request throttling.
	RateLimiter  *httpmiddleware.RateLimiter
	WriteLimiter *httpmiddleware.WriteLimiter

	// Ready reports dependency health for /ready. Nil means always ready.
	Ready func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimiter != nil {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
	}

	// Public endpoints (health checks, metrics, live calendar)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		public.Get("/ready", readyCheck(cfg.Ready))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		// Browsers cannot set headers on websocket upgrades, so the org comes from ?org=.
		if cfg.CalendarFeed != nil {
			public.Get("/ws/calendar", cfg.CalendarFeed.HandleWebSocket)
		}
	})

	// Admin routes (HMAC JWT; clinic-scoped tokens only reach their own clinic)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Route("/clinics/{orgID}", func(clinicRoutes chi.Router) {
				clinicRoutes.Use(httpmiddleware.RequireClinicScope)
				if cfg.ClinicHandler != nil {
					clinicRoutes.Get("/settings", cfg.ClinicHandler.GetSettings)
					clinicRoutes.Put("/settings", cfg.ClinicHandler.UpdateSettings)
				}
				if cfg.ClinicStatsHandler != nil {
					clinicRoutes.Get("/stats", cfg.ClinicStatsHandler.GetStats)
				}
				if cfg.ClinicDashboard != nil {
					clinicRoutes.Get("/dashboard", cfg.ClinicDashboard.GetDashboard)
				}
				if cfg.AuditHandler != nil {
					clinicRoutes.Get("/audit", cfg.AuditHandler.ListEvents)
				}
				if cfg.CatalogHandler != nil {
					clinicRoutes.Post("/services", cfg.CatalogHandler.CreateService)
					clinicRoutes.Post("/sub-services", cfg.CatalogHandler.CreateSubService)
					clinicRoutes.Post("/professionals", cfg.CatalogHandler.CreateProfessional)
					clinicRoutes.Post("/resources", cfg.CatalogHandler.CreateResource)
				}
			})
		})
	}

	// Tenant-scoped API routes
	r.Group(func(tenant chi.Router) {
		tenant.Use(requireOrgID)
		tenant.Use(httpmiddleware.LimitWrites(cfg.WriteLimiter))

		if cfg.CatalogHandler != nil {
			tenant.Route("/catalog", func(r chi.Router) {
				r.Get("/services", cfg.CatalogHandler.ListServices)
				r.Get("/services/{serviceID}/sub-services", cfg.CatalogHandler.ListSubServices)
				r.Get("/professionals", cfg.CatalogHandler.ListProfessionals)
				r.Get("/resources", cfg.CatalogHandler.ListResources)
			})
		}

		if cfg.PatientsHandler != nil {
			tenant.Route("/patients", func(r chi.Router) {
				r.Post("/", cfg.PatientsHandler.CreatePatient)
				r.Get("/", cfg.PatientsHandler.ListPatients)
				r.Get("/{patientID}", cfg.PatientsHandler.GetPatient)
			})
		}

		if cfg.AppointmentsHandler != nil {
			cfg.AppointmentsHandler.Routes(tenant)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func readyCheck(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}
