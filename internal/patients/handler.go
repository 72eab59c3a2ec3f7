package patients

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-ops-platform/internal/tenancy"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

// Handler handles HTTP requests for patients
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new patients handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// CreatePatient handles POST /patients requests
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "missing org context"}`, http.StatusBadRequest)
		return
	}
	req.OrgID = orgID

	patient, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidName) || errors.Is(err, ErrMissingContact) || errors.Is(err, ErrInvalidBirthDate) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("failed to create patient", "org_id", orgID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("patient created", "org_id", orgID, "patient_id", patient.ID)
	writeJSON(w, http.StatusCreated, patient)
}

// GetPatient handles GET /patients/{patientID} requests
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "missing org context"}`, http.StatusBadRequest)
		return
	}

	patient, err := h.repo.GetByID(r.Context(), orgID, chi.URLParam(r, "patientID"))
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			http.Error(w, `{"error": "patient not found"}`, http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get patient", "org_id", orgID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

// ListPatientsResponse is the response for listing patients
type ListPatientsResponse struct {
	Patients []*Patient `json:"patients"`
	Count    int        `json:"count"`
	Offset   int        `json:"offset"`
	Limit    int        `json:"limit"`
}

// ListPatients handles GET /patients?q=&limit=&offset= requests
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "missing org context"}`, http.StatusBadRequest)
		return
	}

	filter := ListFilter{
		Query:  r.URL.Query().Get("q"),
		Limit:  50,
		Offset: 0,
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	patients, err := h.repo.List(r.Context(), orgID, filter)
	if err != nil {
		h.logger.Error("failed to list patients", "error", err, "org_id", orgID)
		http.Error(w, `{"error": "failed to list patients"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ListPatientsResponse{
		Patients: patients,
		Count:    len(patients),
		Offset:   filter.Offset,
		Limit:    filter.Limit,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
