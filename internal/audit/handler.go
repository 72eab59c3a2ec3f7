package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

type eventQuerier interface {
	QueryEvents(ctx context.Context, filter Filter) ([]Event, error)
}

// Handler exposes the audit trail to admins.
type Handler struct {
	svc    eventQuerier
	logger *logging.Logger
}

func NewHandler(svc eventQuerier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// ListEvents returns audit rows for a clinic.
// GET /admin/clinics/{orgID}/audit?appointment_id=&event_type=&limit=&offset=
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if orgID == "" {
		http.Error(w, `{"error": "org_id required"}`, http.StatusBadRequest)
		return
	}
	if h.svc == nil {
		http.Error(w, `{"error": "audit disabled (db not configured)"}`, http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	filter := Filter{
		OrgID:         orgID,
		AppointmentID: q.Get("appointment_id"),
		EventType:     EventType(q.Get("event_type")),
		Limit:         100,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, `{"error": "invalid limit"}`, http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, `{"error": "invalid offset"}`, http.StatusBadRequest)
			return
		}
		filter.Offset = n
	}

	events, err := h.svc.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", "org_id", orgID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"events": events}); err != nil {
		h.logger.Error("failed to encode audit events", "org_id", orgID, "error", err)
	}
}
