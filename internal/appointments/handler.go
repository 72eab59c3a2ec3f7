package appointments

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-ops-platform/internal/scheduling"
	"github.com/wolfman30/clinic-ops-platform/internal/tenancy"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
	"go.opentelemetry.io/otel/trace"
)

// Handler serves availability and appointment endpoints for one tenant.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts under the tenant router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/availability", h.CheckAvailability)
	r.Get("/availability/slots", h.DaySlots)
	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Book)
		r.Get("/{appointmentID}", h.Get)
		r.Put("/{appointmentID}", h.Reschedule)
		r.Post("/{appointmentID}/cancel", h.Cancel)
		r.Post("/{appointmentID}/status", h.UpdateStatus)
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusFor(code string) int {
	switch code {
	case "validation":
		return http.StatusBadRequest
	case "past_closing", "no_resources", "clinic_closed":
		return http.StatusUnprocessableEntity
	case "resource_conflict", "professional_conflict", "invalid_transition":
		return http.StatusConflict
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, orgID string, err error) {
	code := ErrorCode(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		trace.SpanFromContext(r.Context()).RecordError(err)
		h.logger.Error("appointments request failed", "org_id", orgID, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func orgFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrMissingOrgID.Error(), Code: "validation"})
		return "", false
	}
	return orgID, true
}

func intParam(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// CheckAvailability answers whether one candidate is free.
// GET /availability?service_line=&date=&start=&duration=&sub_service_id=&resource_id=&professional_id=&exclude=
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	duration, ok := intParam(r, "duration")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid duration", Code: "validation"})
		return
	}
	q := r.URL.Query()
	res, err := h.svc.checker.Check(r.Context(), CheckRequest{
		OrgID:           orgID,
		ServiceLine:     q.Get("service_line"),
		SubServiceID:    q.Get("sub_service_id"),
		DurationMinutes: duration,
		Date:            q.Get("date"),
		StartTime:       q.Get("start"),
		ResourceID:      q.Get("resource_id"),
		ProfessionalID:  q.Get("professional_id"),
		ExcludeID:       q.Get("exclude"),
	})
	if err != nil {
		h.writeError(w, r, orgID, err)
		return
	}
	h.svc.metrics.ObserveCheck(string(res.Kind), res.IsAvailable)
	writeJSON(w, http.StatusOK, res)
}

// DaySlots renders a day grid with per-slot availability.
// GET /availability/slots?service_line=&date=&duration=&sub_service_id=&professional_id=&exclude=
func (h *Handler) DaySlots(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	duration, ok := intParam(r, "duration")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid duration", Code: "validation"})
		return
	}
	q := r.URL.Query()
	res, err := h.svc.checker.DaySlots(r.Context(), SlotsRequest{
		OrgID:           orgID,
		ServiceLine:     q.Get("service_line"),
		SubServiceID:    q.Get("sub_service_id"),
		DurationMinutes: duration,
		Date:            q.Get("date"),
		ProfessionalID:  q.Get("professional_id"),
		ExcludeID:       q.Get("exclude"),
	})
	if err != nil {
		h.writeError(w, r, orgID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// List returns appointments.
// GET /appointments?date=&service_line=&professional_id=&patient_id=&include_cancelled=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		Date:             q.Get("date"),
		ProfessionalID:   q.Get("professional_id"),
		PatientID:        q.Get("patient_id"),
		IncludeCancelled: q.Get("include_cancelled") == "true",
	}
	if v := q.Get("service_line"); v != "" {
		kind, err := scheduling.ParseKind(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation"})
			return
		}
		filter.ServiceLine = kind
	}
	limit, ok := intParam(r, "limit")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit", Code: "validation"})
		return
	}
	filter.Limit = limit

	appts, err := h.svc.List(r.Context(), orgID, filter)
	if err != nil {
		h.writeError(w, r, orgID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts, "count": len(appts)})
}

// Book creates an appointment.
// POST /appointments
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Code: "validation"})
		return
	}
	req.OrgID = orgID

	appt, err := h.svc.Book(r.Context(), req)
	if err != nil {
		h.writeError(w, r, orgID, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// Get returns one appointment.
// GET /appointments/{appointmentID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), orgID, chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.writeError(w, r, orgID, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Reschedule edits date, time, unit, professional, sub-service or notes.
// PUT /appointments/{appointmentID}
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Code: "validation"})
		return
	}
	req.OrgID = orgID
	req.ID = chi.URLParam(r, "appointmentID")

	appt, err := h.svc.Reschedule(r.Context(), req)
	if err != nil {
		h.writeError(w, r, orgID, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel cancels an appointment. The body is optional.
// POST /appointments/{appointmentID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Code: "validation"})
			return
		}
	}
	appt, err := h.svc.Cancel(r.Context(), orgID, chi.URLParam(r, "appointmentID"), req.Reason)
	if err != nil {
		h.writeError(w, r, orgID, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// UpdateStatus moves an appointment to another lifecycle state.
// POST /appointments/{appointmentID}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFrom(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Code: "validation"})
		return
	}
	appt, err := h.svc.UpdateStatus(r.Context(), orgID, chi.URLParam(r, "appointmentID"), req.Status, req.Reason)
	if err != nil {
		h.writeError(w, r, orgID, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}
