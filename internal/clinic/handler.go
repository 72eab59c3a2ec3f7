package clinic

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

// Handler provides HTTP endpoints for clinic settings management.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a new clinic settings HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Routes returns a chi router with clinic admin routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{orgID}/settings", h.GetSettings)
	r.Put("/{orgID}/settings", h.UpdateSettings)
	return r
}

// GetSettings returns the clinic settings for an org.
// GET /admin/clinics/{orgID}/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if orgID == "" {
		http.Error(w, `{"error": "org_id required"}`, http.StatusBadRequest)
		return
	}

	settings, err := h.store.Get(r.Context(), orgID)
	if err != nil {
		h.logger.Error("failed to get clinic settings", "org_id", orgID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(settings); err != nil {
		h.logger.Error("failed to encode clinic settings", "org_id", orgID, "error", err)
	}
}

// UpdateSettingsRequest is the request body for a partial settings update.
type UpdateSettingsRequest struct {
	Name                   string             `json:"name,omitempty"`
	Timezone               string             `json:"timezone,omitempty"`
	Open                   string             `json:"open,omitempty"`
	Close                  string             `json:"close,omitempty"`
	StepMinutes            *int               `json:"step_minutes,omitempty"`
	TrailingSlot           *string            `json:"trailing_slot,omitempty"`
	ClosingCutoff          string             `json:"closing_cutoff,omitempty"`
	DefaultDurationMinutes *int               `json:"default_duration_minutes,omitempty"`
	DripsStations          *int               `json:"drips_stations,omitempty"`
	BusinessHours          *BusinessHours     `json:"business_hours,omitempty"`
	Notifications          *NotificationPrefs `json:"notifications,omitempty"`
}

// UpdateSettings creates or updates the clinic settings for an org.
// PUT /admin/clinics/{orgID}/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if orgID == "" {
		http.Error(w, `{"error": "org_id required"}`, http.StatusBadRequest)
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	settings, err := h.store.Get(r.Context(), orgID)
	if err != nil {
		h.logger.Error("failed to get clinic settings", "org_id", orgID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	if req.Name != "" {
		settings.Name = req.Name
	}
	if req.Timezone != "" {
		settings.Timezone = req.Timezone
	}
	if req.Open != "" {
		settings.Open = req.Open
	}
	if req.Close != "" {
		settings.Close = req.Close
	}
	if req.StepMinutes != nil {
		settings.StepMinutes = *req.StepMinutes
	}
	if req.TrailingSlot != nil {
		settings.TrailingSlot = *req.TrailingSlot
	}
	if req.ClosingCutoff != "" {
		settings.ClosingCutoff = req.ClosingCutoff
	}
	if req.DefaultDurationMinutes != nil {
		settings.DefaultDurationMinutes = *req.DefaultDurationMinutes
	}
	if req.DripsStations != nil {
		settings.DripsStations = *req.DripsStations
	}
	if req.BusinessHours != nil {
		settings.BusinessHours = *req.BusinessHours
	}
	if req.Notifications != nil {
		settings.Notifications = *req.Notifications
	}

	if err := settings.Validate(); err != nil {
		http.Error(w, `{"error": "`+jsonSafe(err.Error())+`"}`, http.StatusBadRequest)
		return
	}

	if err := h.store.Set(r.Context(), settings); err != nil {
		h.logger.Error("failed to save clinic settings", "org_id", orgID, "error", err)
		http.Error(w, `{"error": "failed to save settings"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("clinic settings updated", "org_id", orgID, "name", settings.Name)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(settings); err != nil {
		h.logger.Error("failed to encode clinic settings", "org_id", orgID, "error", err)
	}
}

func jsonSafe(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}
