package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

const (
	defaultDashboardDays = 7
	maxDashboardDays     = 90
)

type dashboardDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type dashboardRepo interface {
	DailyByServiceLine(ctx context.Context, orgID string, start, end time.Time) ([]DailyAppointments, error)
}

// DailyAppointments counts one day's appointments per service line.
type DailyAppointments struct {
	Day       time.Time `json:"-"`
	DayLabel  string    `json:"day"`
	Room      int64     `json:"room"`
	Chamber   int64     `json:"chamber"`
	Drips     int64     `json:"drips"`
	Cancelled int64     `json:"cancelled"`
}

// Total is the number of non-cancelled appointments on the day.
func (d DailyAppointments) Total() int64 {
	return d.Room + d.Chamber + d.Drips
}

// ClinicDashboard is the payload of GET /admin/clinics/{orgID}/dashboard.
// Appointments counts every booking in the window, cancelled ones included.
type ClinicDashboard struct {
	OrgID               string                     `json:"org_id"`
	PeriodStart         string                     `json:"period_start"`
	PeriodEnd           string                     `json:"period_end"`
	Appointments        int64                      `json:"appointments"`
	Cancelled           int64                      `json:"cancelled"`
	CancellationRatePct float64                    `json:"cancellation_rate_pct"`
	ByServiceLine       map[string]int64           `json:"by_service_line"`
	BookingLatency      LatencySnapshot            `json:"booking_latency"`
	LatencyByLine       map[string]LatencySnapshot `json:"booking_latency_by_service_line,omitempty"`
	Daily               []DailyAppointments        `json:"daily"`
}

// DashboardRepository aggregates appointments per day and service line.
type DashboardRepository struct {
	db dashboardDB
}

func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	if pool == nil {
		panic("clinic: pgx pool required for dashboard")
	}
	return &DashboardRepository{db: pool}
}

func NewDashboardRepositoryWithDB(db dashboardDB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

const dailyByServiceLineSQL = `
	SELECT date,
	       COUNT(*) FILTER (WHERE status <> 'cancelled' AND service_line = 'room'),
	       COUNT(*) FILTER (WHERE status <> 'cancelled' AND service_line = 'chamber'),
	       COUNT(*) FILTER (WHERE status <> 'cancelled' AND service_line = 'drips'),
	       COUNT(*) FILTER (WHERE status = 'cancelled')
	FROM appointments
	WHERE org_id = $1 AND date >= $2::date AND date < $3::date
	GROUP BY date
	ORDER BY date`

// DailyByServiceLine returns only days with at least one appointment in [start, end).
func (r *DashboardRepository) DailyByServiceLine(ctx context.Context, orgID string, start, end time.Time) ([]DailyAppointments, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, errors.New("clinic dashboard: org_id required")
	}
	if !end.After(start) {
		return nil, errors.New("clinic dashboard: invalid time range")
	}

	rows, err := r.db.Query(ctx, dailyByServiceLineSQL, orgID, start.Format(time.DateOnly), end.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("clinic dashboard: query daily: %w", err)
	}
	days, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailyAppointments, error) {
		var d DailyAppointments
		err := row.Scan(&d.Day, &d.Room, &d.Chamber, &d.Drips, &d.Cancelled)
		d.Day = d.Day.UTC()
		d.DayLabel = d.Day.Format(time.DateOnly)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("clinic dashboard: scan daily: %w", err)
	}
	return days, nil
}

// DashboardHandler serves operational dashboard JSON for a clinic.
type DashboardHandler struct {
	repo     dashboardRepo
	gatherer prometheus.Gatherer
	logger   *logging.Logger
	now      func() time.Time
}

func NewDashboardHandler(repo dashboardRepo, gatherer prometheus.Gatherer, logger *logging.Logger) *DashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &DashboardHandler{repo: repo, gatherer: gatherer, logger: logger, now: time.Now}
}

// GetDashboard handles GET /admin/clinics/{orgID}/dashboard.
// The window is start/end (RFC3339 or YYYY-MM-DD, both or neither) or the
// trailing ?days=N ending tomorrow at 00:00 UTC.
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	orgID := strings.TrimSpace(chi.URLParam(r, "orgID"))
	if orgID == "" {
		writeDashboardError(w, http.StatusBadRequest, "org_id required")
		return
	}
	if h.repo == nil {
		writeDashboardError(w, http.StatusServiceUnavailable, "dashboard disabled (db not configured)")
		return
	}

	start, end, err := dashboardWindow(r, h.now().UTC())
	if err != nil {
		writeDashboardError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.repo.DailyByServiceLine(r.Context(), orgID, start, end)
	if err != nil {
		h.logger.Error("failed to query dashboard daily counts", "org_id", orgID, "error", err)
		writeDashboardError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ClinicDashboard{
		OrgID:         orgID,
		PeriodStart:   start.Format(time.RFC3339),
		PeriodEnd:     end.Format(time.RFC3339),
		ByServiceLine: map[string]int64{"room": 0, "chamber": 0, "drips": 0},
		Daily:         denseDays(rows, start, end),
	}
	for _, d := range resp.Daily {
		resp.ByServiceLine["room"] += d.Room
		resp.ByServiceLine["chamber"] += d.Chamber
		resp.ByServiceLine["drips"] += d.Drips
		resp.Cancelled += d.Cancelled
		resp.Appointments += d.Total() + d.Cancelled
	}
	if resp.Appointments > 0 {
		resp.CancellationRatePct = 100 * float64(resp.Cancelled) / float64(resp.Appointments)
	}
	resp.BookingLatency, resp.LatencyByLine = gatherBookingLatency(h.gatherer)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeDashboardError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func parseWindowBound(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}

func dashboardWindow(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	q := r.URL.Query()
	startRaw, endRaw := strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end"))

	switch {
	case startRaw != "" && endRaw != "":
		start, err := parseWindowBound(startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid start; use RFC3339 or YYYY-MM-DD")
		}
		end, err := parseWindowBound(endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid end; use RFC3339 or YYYY-MM-DD")
		}
		if !end.After(start) {
			return time.Time{}, time.Time{}, errors.New("end must be after start")
		}
		return start, end, nil
	case startRaw != "" || endRaw != "":
		return time.Time{}, time.Time{}, errors.New("both start and end must be provided, or neither")
	}

	days := defaultDashboardDays
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDashboardDays {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid days; must be 1-%d", maxDashboardDays)
		}
		days = n
	}
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return end.AddDate(0, 0, -days), end, nil
}

// denseDays returns one row per calendar day in [start, end), zero-filled.
func denseDays(rows []DailyAppointments, start, end time.Time) []DailyAppointments {
	byDay := make(map[string]DailyAppointments, len(rows))
	for _, d := range rows {
		byDay[d.Day.Format(time.DateOnly)] = d
	}
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	var out []DailyAppointments
	for day := first; day.Before(end); day = day.AddDate(0, 0, 1) {
		label := day.Format(time.DateOnly)
		d, ok := byDay[label]
		if !ok {
			d = DailyAppointments{Day: day, DayLabel: label}
		}
		out = append(out, d)
	}
	return out
}
