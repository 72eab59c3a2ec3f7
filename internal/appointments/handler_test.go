package appointments

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-ops-platform/internal/tenancy"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if org := req.Header.Get("X-Org-Id"); org != "" {
				req = req.WithContext(tenancy.WithOrgID(req.Context(), org))
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(f.svc, nil).Routes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Org-Id", testOrg)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHandler_BookAndConflict(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	req := BookRequest{PatientID: f.patient, ProfessionalID: f.pros[0], SubServiceID: f.chamber, Date: testDate, StartTime: "10:00"}
	rec := doJSON(t, h, http.MethodPost, "/appointments", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var appt Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&appt))
	assert.Equal(t, "chamber-1", appt.ResourceID)
	assert.Equal(t, StatusConfirmed, appt.Status)

	req.ProfessionalID = f.pros[1]
	req.ResourceID = "chamber-1"
	rec = doJSON(t, h, http.MethodPost, "/appointments", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "resource_conflict", decodeError(t, rec).Code)

	req.ResourceID = ""
	req.StartTime = "18:15"
	rec = doJSON(t, h, http.MethodPost, "/appointments", req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "past_closing", decodeError(t, rec).Code)

	req.PatientID = ""
	rec = doJSON(t, h, http.MethodPost, "/appointments", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeError(t, rec).Code)

	rec = doJSON(t, h, http.MethodGet, "/appointments/"+appt.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/appointments/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Availability(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	_, err := f.book(t, f.drips30, "10:00", f.pros[0], "")
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodGet, "/availability?service_line=drips&date="+testDate+"&start=10:00&duration=45", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Summary   string   `json:"summary"`
		EndTime   string   `json:"end_time"`
		Available bool     `json:"available"`
		Occupied  []string `json:"occupied_resources"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "4/5 available", res.Summary)
	assert.Equal(t, "10:45:00", res.EndTime)
	assert.True(t, res.Available)
	assert.Equal(t, []string{"station-1"}, res.Occupied)

	rec = doJSON(t, h, http.MethodGet, "/availability?service_line=chamber&date="+testDate+"&start=18:15", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var warn struct {
		Warning   string `json:"warning"`
		Available bool   `json:"available"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&warn))
	assert.Equal(t, WarningPastClosing, warn.Warning)
	assert.False(t, warn.Available)

	rec = doJSON(t, h, http.MethodGet, "/availability/slots?service_line=drips&date="+testDate+"&duration=30", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var day DaySlots
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&day))
	assert.Len(t, day.Slots, 42)

	rec = doJSON(t, h, http.MethodGet, "/availability?service_line=drips&date="+testDate+"&start=10:00&duration=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_CancelStatusAndList(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	a, err := f.book(t, f.chamber, "10:00", f.pros[0], "")
	require.NoError(t, err)
	b, err := f.book(t, f.chamber, "12:00", f.pros[0], "")
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodPost, "/appointments/"+a.ID+"/cancel", map[string]string{"reason": "rain"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/appointments/"+a.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Code)

	rec = doJSON(t, h, http.MethodPost, "/appointments/"+b.ID+"/status", map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/appointments/"+b.ID, map[string]string{"start_time": "13:00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/appointments?date="+testDate, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Appointments []Appointment `json:"appointments"`
		Count        int           `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)

	rec = doJSON(t, h, http.MethodGet, "/appointments?date="+testDate+"&include_cancelled=true", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 2, list.Count)

	rec = doJSON(t, h, http.MethodGet, "/appointments?service_line=sauna", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_MissingOrg(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
