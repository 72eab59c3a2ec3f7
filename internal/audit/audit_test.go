package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_LogEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db)

	tests := []struct {
		name    string
		event   Event
		execErr error
		wantErr bool
	}{
		{
			name: "booked",
			event: Event{
				EventType:     EventAppointmentBooked,
				OrgID:         "org-1",
				AppointmentID: "appt-1",
				ChangedFields: []string{"date", "start_time", "resource_id"},
			},
		},
		{
			name: "cancelled with details",
			event: Event{
				EventType:     EventAppointmentCancelled,
				OrgID:         "org-1",
				AppointmentID: "appt-2",
				ChangedFields: []string{"status"},
				Details:       json.RawMessage(`{"reason":"sick"}`),
			},
		},
		{
			name:    "database failure",
			event:   Event{EventType: EventAppointmentBooked, OrgID: "org-1", AppointmentID: "appt-3"},
			execErr: errors.New("connection reset"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := mock.ExpectExec("INSERT INTO audit_events")
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(1, 1))
			}

			err := service.LogEvent(context.Background(), tt.event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_LogAppointmentChange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(sqlmock.AnyArg(), string(EventAppointmentRescheduled), "org-1", "appt-1", nil,
			pq.Array([]string{"date", "start_time"}), []byte(`{"previous_date":"2026-03-02"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewService(db).LogAppointmentChange(context.Background(), "org-1", "appt-1",
		EventAppointmentRescheduled, []string{"date", "start_time"}, map[string]string{"previous_date": "2026-03-02"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_QueryEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "event_type", "org_id", "appointment_id", "actor", "changed_fields", "details", "created_at"}).
		AddRow("evt-1", "appointment.cancelled", "org-1", "appt-1", nil, "{status}", []byte(`{"reason":"sick"}`), now).
		AddRow("evt-2", "appointment.booked", "org-1", "appt-1", "admin", "{date,start_time}", []byte(`{}`), now.Add(-time.Hour))

	mock.ExpectQuery("SELECT id, event_type, org_id, appointment_id").
		WithArgs("org-1", "appt-1").
		WillReturnRows(rows)

	events, err := NewService(db).QueryEvents(context.Background(), Filter{OrgID: "org-1", AppointmentID: "appt-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventAppointmentCancelled, events[0].EventType)
	assert.Equal(t, []string{"status"}, events[0].ChangedFields)
	assert.Equal(t, "", events[0].Actor)
	assert.Equal(t, "admin", events[1].Actor)
	assert.Equal(t, []string{"date", "start_time"}, events[1].ChangedFields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type stubQuerier struct {
	filter Filter
	events []Event
	err    error
}

func (s *stubQuerier) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	s.filter = filter
	return s.events, s.err
}

func TestHandler_ListEvents(t *testing.T) {
	stub := &stubQuerier{events: []Event{{ID: "evt-1", EventType: EventAppointmentBooked, OrgID: "org-1"}}}
	h := NewHandler(stub, nil)

	r := chi.NewRouter()
	r.Get("/{orgID}/audit", h.ListEvents)

	req := httptest.NewRequest(http.MethodGet, "/org-1/audit?appointment_id=appt-1&limit=5", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "org-1", stub.filter.OrgID)
	assert.Equal(t, "appt-1", stub.filter.AppointmentID)
	assert.Equal(t, 5, stub.filter.Limit)

	var body struct {
		Events []Event `json:"events"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Events, 1)

	req = httptest.NewRequest(http.MethodGet, "/org-1/audit?limit=abc", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stub.err = errors.New("db down")
	req = httptest.NewRequest(http.MethodGet, "/org-1/audit", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
