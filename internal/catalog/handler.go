package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-ops-platform/internal/scheduling"
	"github.com/wolfman30/clinic-ops-platform/internal/tenancy"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

// Handler serves catalog reads for tenants and writes for admins.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new catalog handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// ListServices handles GET /catalog/services
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	services, err := h.repo.ListServices(r.Context(), orgID)
	if err != nil {
		h.logger.Error("failed to list services", "org_id", orgID, "error", err)
		http.Error(w, "failed to list services", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

// ListSubServices handles GET /catalog/services/{serviceID}/sub-services
func (h *Handler) ListSubServices(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	subs, err := h.repo.ListSubServices(r.Context(), orgID, chi.URLParam(r, "serviceID"))
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("failed to list sub-services", "org_id", orgID, "error", err)
		http.Error(w, "failed to list sub-services", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sub_services": subs})
}

// ListProfessionals handles GET /catalog/professionals
func (h *Handler) ListProfessionals(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	pros, err := h.repo.ListProfessionals(r.Context(), orgID)
	if err != nil {
		h.logger.Error("failed to list professionals", "org_id", orgID, "error", err)
		http.Error(w, "failed to list professionals", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"professionals": pros})
}

// ListResources handles GET /catalog/resources?kind=
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing org context", http.StatusBadRequest)
		return
	}
	var kind scheduling.Kind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		parsed, err := scheduling.ParseKind(raw)
		if err != nil {
			http.Error(w, ErrInvalidServiceLine.Error(), http.StatusBadRequest)
			return
		}
		kind = parsed
	}
	resources, err := h.repo.ListResources(r.Context(), orgID, kind)
	if err != nil {
		h.logger.Error("failed to list resources", "org_id", orgID, "error", err)
		http.Error(w, "failed to list resources", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

// CreateService handles POST /admin/clinics/{orgID}/services
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.OrgID = chi.URLParam(r, "orgID")
	svc, err := h.repo.CreateService(r.Context(), &req)
	if err != nil {
		h.writeCreateError(w, "service", req.OrgID, err)
		return
	}
	h.logger.Info("service created", "org_id", req.OrgID, "id", svc.ID, "service_line", svc.ServiceLine)
	writeJSON(w, http.StatusCreated, svc)
}

// CreateSubService handles POST /admin/clinics/{orgID}/sub-services
func (h *Handler) CreateSubService(w http.ResponseWriter, r *http.Request) {
	var req CreateSubServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.OrgID = chi.URLParam(r, "orgID")
	sub, err := h.repo.CreateSubService(r.Context(), &req)
	if err != nil {
		h.writeCreateError(w, "sub-service", req.OrgID, err)
		return
	}
	h.logger.Info("sub-service created", "org_id", req.OrgID, "id", sub.ID, "duration_minutes", sub.DurationMinutes)
	writeJSON(w, http.StatusCreated, sub)
}

// CreateProfessional handles POST /admin/clinics/{orgID}/professionals
func (h *Handler) CreateProfessional(w http.ResponseWriter, r *http.Request) {
	var req CreateProfessionalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.OrgID = chi.URLParam(r, "orgID")
	p, err := h.repo.CreateProfessional(r.Context(), &req)
	if err != nil {
		h.writeCreateError(w, "professional", req.OrgID, err)
		return
	}
	h.logger.Info("professional created", "org_id", req.OrgID, "id", p.ID)
	writeJSON(w, http.StatusCreated, p)
}

// CreateResource handles POST /admin/clinics/{orgID}/resources
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var req CreateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.OrgID = chi.URLParam(r, "orgID")
	res, err := h.repo.CreateResource(r.Context(), &req)
	if err != nil {
		h.writeCreateError(w, "resource", req.OrgID, err)
		return
	}
	h.logger.Info("resource created", "org_id", req.OrgID, "id", res.ID, "kind", res.Kind)
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) writeCreateError(w http.ResponseWriter, what, orgID string, err error) {
	switch {
	case errors.Is(err, ErrServiceNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrMissingOrgID), errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrInvalidServiceLine), errors.Is(err, ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("failed to create "+what, "org_id", orgID, "error", err)
		http.Error(w, "failed to create "+what, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
