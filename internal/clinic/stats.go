package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

// Stats represents per-clinic appointment metrics. Revenue counts completed
// appointments only; ByServiceLine and AvgDurationMinutes skip cancelled ones.
type Stats struct {
	OrgID               string           `json:"org_id"`
	Appointments        int64            `json:"appointments"`
	Completed           int64            `json:"completed"`
	Cancelled           int64            `json:"cancelled"`
	RevenueCents        int64            `json:"revenue_cents"`
	AvgDurationMinutes  float64          `json:"avg_duration_minutes"`
	CancellationRatePct float64          `json:"cancellation_rate_pct"`
	ByServiceLine       map[string]int64 `json:"by_service_line"`
	PeriodStart         string           `json:"period_start"`
	PeriodEnd           string           `json:"period_end"`
}

type statsDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// StatsRepository queries clinic metrics from the database.
type StatsRepository struct {
	db statsDB
}

func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	if pool == nil {
		panic("clinic: pgx pool required for stats")
	}
	return &StatsRepository{db: pool}
}

// NewStatsRepositoryWithDB allows injecting a mock database for testing.
func NewStatsRepositoryWithDB(db statsDB) *StatsRepository {
	return &StatsRepository{db: db}
}

const statsTotalsSQL = `
	SELECT COUNT(*),
	       COUNT(*) FILTER (WHERE status = 'completed'),
	       COUNT(*) FILTER (WHERE status = 'cancelled'),
	       COALESCE(SUM(price_cents) FILTER (WHERE status = 'completed'), 0),
	       COALESCE(AVG(duration_minutes) FILTER (WHERE status <> 'cancelled'), 0)::float8
	FROM appointments
	WHERE org_id = $1`

const statsByLineSQL = `
	SELECT service_line, COUNT(*)
	FROM appointments
	WHERE org_id = $1 AND status <> 'cancelled'`

// GetStats aggregates a clinic's appointments. start and end are appointment
// dates (end exclusive); nil means all time.
func (r *StatsRepository) GetStats(ctx context.Context, orgID string, start, end *time.Time) (*Stats, error) {
	stats := &Stats{OrgID: orgID, ByServiceLine: map[string]int64{}, PeriodStart: "all-time", PeriodEnd: "now"}

	args := []any{orgID}
	var window string
	if start != nil && end != nil {
		window = ` AND date >= $2 AND date < $3`
		stats.PeriodStart, stats.PeriodEnd = start.Format(time.DateOnly), end.Format(time.DateOnly)
		args = append(args, stats.PeriodStart, stats.PeriodEnd)
	}

	err := r.db.QueryRow(ctx, statsTotalsSQL+window, args...).Scan(
		&stats.Appointments, &stats.Completed, &stats.Cancelled, &stats.RevenueCents, &stats.AvgDurationMinutes,
	)
	if err != nil {
		return nil, fmt.Errorf("clinic stats: totals: %w", err)
	}

	rows, err := r.db.Query(ctx, statsByLineSQL+window+` GROUP BY service_line`, args...)
	if err != nil {
		return nil, fmt.Errorf("clinic stats: by service line: %w", err)
	}
	var line string
	var count int64
	if _, err := pgx.ForEachRow(rows, []any{&line, &count}, func() error {
		stats.ByServiceLine[line] = count
		return nil
	}); err != nil {
		return nil, fmt.Errorf("clinic stats: scan service lines: %w", err)
	}

	if stats.Appointments > 0 {
		stats.CancellationRatePct = 100 * float64(stats.Cancelled) / float64(stats.Appointments)
	}
	return stats, nil
}

// StatsHandler serves GET /admin/clinics/{orgID}/stats.
type StatsHandler struct {
	repo   *StatsRepository
	logger *logging.Logger
}

func NewStatsHandler(repo *StatsRepository, logger *logging.Logger) *StatsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StatsHandler{repo: repo, logger: logger}
}

// GetStats accepts optional ?start=YYYY-MM-DD&end=YYYY-MM-DD (both or neither).
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	orgID := strings.TrimSpace(chi.URLParam(r, "orgID"))
	if orgID == "" {
		writeDashboardError(w, http.StatusBadRequest, "org_id required")
		return
	}
	if h.repo == nil {
		writeDashboardError(w, http.StatusServiceUnavailable, "stats disabled (db not configured)")
		return
	}

	start, end, err := statsWindow(r)
	if err != nil {
		writeDashboardError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.repo.GetStats(r.Context(), orgID, start, end)
	if err != nil {
		h.logger.Error("failed to get clinic stats", "org_id", orgID, "error", err)
		writeDashboardError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.logger.Error("failed to encode clinic stats", "org_id", orgID, "error", err)
	}
}

func statsWindow(r *http.Request) (*time.Time, *time.Time, error) {
	parse := func(name string) (*time.Time, error) {
		raw := strings.TrimSpace(r.URL.Query().Get(name))
		if raw == "" {
			return nil, nil
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s date, use YYYY-MM-DD", name)
		}
		return &t, nil
	}
	start, err := parse("start")
	if err != nil {
		return nil, nil, err
	}
	end, err := parse("end")
	if err != nil {
		return nil, nil, err
	}
	if (start == nil) != (end == nil) {
		return nil, nil, errors.New("both start and end must be provided, or neither")
	}
	return start, end, nil
}
