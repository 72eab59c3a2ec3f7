package clinic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

type stubDashboardRepo struct {
	daily []DailyAppointments
	err   error

	gotOrg   string
	gotStart time.Time
	gotEnd   time.Time
}

func (s *stubDashboardRepo) DailyByServiceLine(_ context.Context, orgID string, start, end time.Time) ([]DailyAppointments, error) {
	s.gotOrg = orgID
	s.gotStart = start
	s.gotEnd = end
	return s.daily, s.err
}

type stubGatherer struct {
	families []*dto.MetricFamily
	err      error
}

func (s stubGatherer) Gather() ([]*dto.MetricFamily, error) {
	return s.families, s.err
}

func TestDashboardHandler_FillsMissingDaysAndCountsCancellations(t *testing.T) {
	orgID := "default-org"
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)

	repo := &stubDashboardRepo{
		daily: []DailyAppointments{
			{Day: start, DayLabel: "2025-01-01", Room: 2, Chamber: 1, Drips: 4, Cancelled: 1},
			{Day: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), DayLabel: "2025-01-03", Drips: 2},
		},
	}

	familyName := BookingLatencyMetric
	metricType := dto.MetricType_HISTOGRAM
	lineLabel := "service_line"
	statusLabel := "status"
	ok := "ok"

	gatherer := stubGatherer{
		families: []*dto.MetricFamily{
			{
				Name: &familyName,
				Type: &metricType,
				Metric: []*dto.Metric{
					{
						Label: []*dto.LabelPair{
							{Name: &lineLabel, Value: ptrString("drips")},
							{Name: &statusLabel, Value: &ok},
						},
						Histogram: &dto.Histogram{
							SampleCount: ptrUint64(10),
							Bucket: []*dto.Bucket{
								{UpperBound: ptrFloat64(0.05), CumulativeCount: ptrUint64(5)},
								{UpperBound: ptrFloat64(0.1), CumulativeCount: ptrUint64(9)},
								{UpperBound: ptrFloat64(0.25), CumulativeCount: ptrUint64(10)},
							},
						},
					},
				},
			},
		},
	}

	handler := NewDashboardHandler(repo, gatherer, logging.Default())

	r := chi.NewRouter()
	r.Get("/admin/clinics/{orgID}/dashboard", handler.GetDashboard)

	req := httptest.NewRequest(http.MethodGet, "/admin/clinics/"+orgID+"/dashboard?start=2025-01-01T00:00:00Z&end=2025-01-04T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ClinicDashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.OrgID != orgID {
		t.Fatalf("org_id = %q, want %q", resp.OrgID, orgID)
	}
	if resp.Appointments != 10 {
		t.Fatalf("appointments = %d, want 10", resp.Appointments)
	}
	if resp.Cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", resp.Cancelled)
	}
	if resp.CancellationRatePct < 9.99 || resp.CancellationRatePct > 10.01 {
		t.Fatalf("cancellation_rate_pct = %f, want 10", resp.CancellationRatePct)
	}

	if len(resp.Daily) != 3 {
		t.Fatalf("daily length = %d, want 3", len(resp.Daily))
	}
	if resp.Daily[1].DayLabel != "2025-01-02" || resp.Daily[1].Total() != 0 {
		t.Fatalf("expected missing day 2025-01-02 to be filled with zeros, got %#v", resp.Daily[1])
	}

	if resp.BookingLatency.Total != 10 {
		t.Fatalf("booking_latency.total = %d, want 10", resp.BookingLatency.Total)
	}
	if resp.BookingLatency.P90Ms < 99.9 || resp.BookingLatency.P90Ms > 100.1 {
		t.Fatalf("booking_latency.p90_ms = %f, want ~100", resp.BookingLatency.P90Ms)
	}
	if resp.LatencyByLine["drips"].Total != 10 {
		t.Fatalf("expected drips latency breakdown, got %#v", resp.LatencyByLine)
	}
	if resp.ByServiceLine["drips"] != 6 || resp.ByServiceLine["room"] != 2 || resp.ByServiceLine["chamber"] != 1 {
		t.Fatalf("unexpected per-line totals %v", resp.ByServiceLine)
	}

	if repo.gotOrg != orgID || !repo.gotStart.Equal(start) || !repo.gotEnd.Equal(end) {
		t.Fatalf("repo called with (%q, %s, %s); want (%q, %s, %s)", repo.gotOrg, repo.gotStart, repo.gotEnd, orgID, start, end)
	}
}

func TestDashboardHandler_RejectsHalfWindow(t *testing.T) {
	handler := NewDashboardHandler(&stubDashboardRepo{}, stubGatherer{}, logging.Default())
	r := chi.NewRouter()
	r.Get("/admin/clinics/{orgID}/dashboard", handler.GetDashboard)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/clinics/org/dashboard?start=2025-01-01T00:00:00Z", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDashboardRepository_DailyByServiceLine(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM appointments").
		WithArgs("org-1", "2025-03-01", "2025-03-08").
		WillReturnRows(pgxmock.NewRows([]string{"date", "room", "chamber", "drips", "cancelled"}).
			AddRow(day, int64(3), int64(1), int64(5), int64(2)))

	repo := NewDashboardRepositoryWithDB(mock)
	got, err := repo.DailyByServiceLine(context.Background(), "org-1",
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].DayLabel != "2025-03-04" || got[0].Total() != 9 {
		t.Fatalf("unexpected rows %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDashboardHandler_DaysWindow(t *testing.T) {
	repo := &stubDashboardRepo{}
	handler := NewDashboardHandler(repo, stubGatherer{}, logging.Default())
	handler.now = func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Get("/admin/clinics/{orgID}/dashboard", handler.GetDashboard)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/clinics/org-1/dashboard?days=3", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	wantStart := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	if !repo.gotStart.Equal(wantStart) || !repo.gotEnd.Equal(wantEnd) {
		t.Fatalf("window = [%s, %s), want [%s, %s)", repo.gotStart, repo.gotEnd, wantStart, wantEnd)
	}

	var resp ClinicDashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Daily) != 3 || resp.Daily[0].DayLabel != "2026-03-08" {
		t.Fatalf("unexpected daily rows %#v", resp.Daily)
	}

	for _, bad := range []string{"days=0", "days=91", "days=abc", "start=2026-03-01&end=2026-02-01"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/clinics/org-1/dashboard?"+bad, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", bad, rec.Code)
		}
	}
}

func TestDashboardHandler_AcceptsPlainDates(t *testing.T) {
	repo := &stubDashboardRepo{}
	handler := NewDashboardHandler(repo, stubGatherer{}, logging.Default())
	r := chi.NewRouter()
	r.Get("/admin/clinics/{orgID}/dashboard", handler.GetDashboard)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/clinics/org-1/dashboard?start=2026-03-01&end=2026-03-02", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if repo.gotStart.Format(time.DateOnly) != "2026-03-01" {
		t.Fatalf("unexpected start %s", repo.gotStart)
	}
}

func TestDashboardHandler_NoRepo(t *testing.T) {
	handler := NewDashboardHandler(nil, stubGatherer{}, logging.Default())
	r := chi.NewRouter()
	r.Get("/admin/clinics/{orgID}/dashboard", handler.GetDashboard)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/clinics/org-1/dashboard", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestLatencyHistogram_Overflow(t *testing.T) {
	h := newLatencyHistogram()
	h.add(&dto.Histogram{
		SampleCount: ptrUint64(4),
		Bucket: []*dto.Bucket{
			{UpperBound: ptrFloat64(0.1), CumulativeCount: ptrUint64(2)},
			{UpperBound: ptrFloat64(1), CumulativeCount: ptrUint64(3)},
		},
	})
	snap := h.snapshot()
	if len(snap.Buckets) != 3 {
		t.Fatalf("expected 3 buckets, got %#v", snap.Buckets)
	}
	overflow := snap.Buckets[2]
	if overflow.Label != ">1.0s" || overflow.Count != 1 {
		t.Fatalf("unexpected overflow bucket %#v", overflow)
	}
	if snap.P95Ms != 1000 {
		t.Fatalf("p95 past the last bound should clamp to it, got %f", snap.P95Ms)
	}
	if snap.P50Ms != 100 {
		t.Fatalf("p50 = %f, want 100", snap.P50Ms)
	}
}

func TestGatherBookingLatency_NoMetrics(t *testing.T) {
	lat, byLine := gatherBookingLatency(stubGatherer{families: nil})
	if lat.Total != 0 || byLine != nil {
		t.Fatalf("expected empty snapshot, got %#v %#v", lat, byLine)
	}
}

var _ prometheus.Gatherer = stubGatherer{}

func ptrString(v string) *string { return &v }

func ptrUint64(v uint64) *uint64 { return &v }

func ptrFloat64(v float64) *float64 { return &v }
