package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-ops-platform/internal/clinic"
	"github.com/wolfman30/clinic-ops-platform/internal/events"
	"github.com/wolfman30/clinic-ops-platform/internal/patients"
)

type mockEmailSender struct {
	sent []EmailMessage
	err  error
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockSettings struct {
	settings *clinic.Settings
	err      error
}

func (m *mockSettings) Get(ctx context.Context, orgID string) (*clinic.Settings, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.settings, nil
}

type mockPatients struct {
	patient *patients.Patient
	err     error
}

func (m *mockPatients) GetByID(ctx context.Context, orgID, id string) (*patients.Patient, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.patient, nil
}

type memoryTracker struct {
	done map[string]bool
}

func (m *memoryTracker) AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	return m.done[consumer+"/"+eventID], nil
}

func (m *memoryTracker) MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key := consumer + "/" + eventID
	if m.done[key] {
		return false, nil
	}
	m.done[key] = true
	return true, nil
}

func testSettings() *clinic.Settings {
	return &clinic.Settings{
		OrgID: "org-1",
		Name:  "Harbor Wellness",
		Notifications: clinic.NotificationPrefs{
			EmailPatients:   true,
			EmailRecipients: []string{"front@harbor.test"},
			NotifyOnBooking: true,
			NotifyOnCancel:  true,
		},
	}
}

func snapshot() events.AppointmentSnapshot {
	return events.AppointmentSnapshot{
		AppointmentID:   "appt-1",
		OrgID:           "org-1",
		PatientID:       "pat-1",
		ProfessionalID:  "pro-1",
		ServiceLine:     "drips",
		ResourceID:      "station-2",
		Date:            "2026-03-02",
		StartTime:       "10:00:00",
		EndTime:         "10:45:00",
		DurationMinutes: 45,
		Status:          "confirmed",
	}
}

func outboxEntry(t *testing.T, evt events.CanonicalEvent) events.OutboxEntry {
	t.Helper()
	env, err := events.NewEnvelope("org-1", events.AppointmentAggregate, evt)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return events.OutboxEntry{
		ID:        uuid.New(),
		OrgID:     "org-1",
		Aggregate: events.AppointmentAggregate,
		Type:      env.EventType,
		Payload:   raw,
		CreatedAt: time.Now(),
	}
}

func newTestService(email EmailSender, settings *clinic.Settings) *Service {
	pats := &mockPatients{patient: &patients.Patient{ID: "pat-1", OrgID: "org-1", Name: "Jordan Lee", Email: "jordan@example.com"}}
	return NewService(email, &mockSettings{settings: settings}, pats, nil)
}

func TestService_Handle_BookedEmailsPatientAndStaff(t *testing.T) {
	email := &mockEmailSender{}
	svc := newTestService(email, testSettings())

	entry := outboxEntry(t, events.AppointmentBookedV1{AppointmentSnapshot: snapshot(), BookedAt: time.Now()})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(email.sent))
	}
	patient := email.sent[0]
	if patient.To != "jordan@example.com" || patient.Subject != "Your Harbor Wellness appointment is confirmed" {
		t.Errorf("unexpected patient email: %+v", patient)
	}
	if !strings.Contains(patient.Body, "Monday, March 2 at 10:00 AM") {
		t.Errorf("expected formatted date in body, got %q", patient.Body)
	}
	if patient.Tags["appointment_id"] != "appt-1" || patient.Tags["event_type"] != events.TypeAppointmentBooked {
		t.Errorf("unexpected tags: %v", patient.Tags)
	}
	staff := email.sent[1]
	if staff.To != "front@harbor.test" || !strings.Contains(staff.Body, "station-2") || !strings.Contains(staff.Body, "10:45 AM") {
		t.Errorf("unexpected staff email: %+v", staff)
	}
}

func TestService_Handle_RescheduledMentionsPreviousSlot(t *testing.T) {
	email := &mockEmailSender{}
	svc := newTestService(email, testSettings())

	entry := outboxEntry(t, events.AppointmentRescheduledV1{
		AppointmentSnapshot: snapshot(),
		PreviousDate:        "2026-03-01",
		PreviousStartTime:   "09:00:00",
	})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(email.sent[0].Body, "Sunday, March 1 at 9:00 AM") {
		t.Errorf("expected previous slot, got %q", email.sent[0].Body)
	}
}

func TestService_Handle_CancelDisabled(t *testing.T) {
	email := &mockEmailSender{}
	cfg := testSettings()
	cfg.Notifications.NotifyOnCancel = false
	svc := newTestService(email, cfg)

	entry := outboxEntry(t, events.AppointmentCancelledV1{AppointmentSnapshot: snapshot(), Reason: "sick"})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 0 {
		t.Errorf("expected no emails, got %d", len(email.sent))
	}
}

func TestService_Handle_CancelIncludesReasonForStaff(t *testing.T) {
	email := &mockEmailSender{}
	svc := newTestService(email, testSettings())

	entry := outboxEntry(t, events.AppointmentCancelledV1{AppointmentSnapshot: snapshot(), Reason: "sick"})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 2 || !strings.Contains(email.sent[1].Body, "Reason: sick") {
		t.Errorf("unexpected emails: %+v", email.sent)
	}
}

func TestService_Handle_StatusChangesAreSilent(t *testing.T) {
	email := &mockEmailSender{}
	svc := newTestService(email, testSettings())

	entry := outboxEntry(t, events.AppointmentStatusChangedV1{AppointmentSnapshot: snapshot(), PreviousStatus: "confirmed"})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 0 {
		t.Errorf("expected no emails, got %d", len(email.sent))
	}
}

func TestService_Handle_OtherAggregatesIgnored(t *testing.T) {
	email := &mockEmailSender{}
	svc := newTestService(email, testSettings())

	if err := svc.Handle(context.Background(), events.OutboxEntry{Aggregate: "patient", Payload: []byte(`garbage`)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestService_Handle_DedupesRedelivery(t *testing.T) {
	email := &mockEmailSender{}
	svc := newTestService(email, testSettings()).WithProcessedTracker(&memoryTracker{done: map[string]bool{}})

	entry := outboxEntry(t, events.AppointmentBookedV1{AppointmentSnapshot: snapshot()})
	for i := 0; i < 2; i++ {
		if err := svc.Handle(context.Background(), entry); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if len(email.sent) != 2 {
		t.Errorf("expected emails from a single delivery, got %d", len(email.sent))
	}
}

func TestService_Handle_SendFailureKeepsEventPending(t *testing.T) {
	email := &mockEmailSender{err: errors.New("smtp down")}
	tracker := &memoryTracker{done: map[string]bool{}}
	svc := newTestService(email, testSettings()).WithProcessedTracker(tracker)

	entry := outboxEntry(t, events.AppointmentBookedV1{AppointmentSnapshot: snapshot()})
	if err := svc.Handle(context.Background(), entry); err == nil {
		t.Fatal("expected error")
	}
	if len(tracker.done) != 0 {
		t.Error("failed delivery must not be marked processed")
	}
}

func TestService_Handle_MissingPatientStillNotifiesStaff(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(email, &mockSettings{settings: testSettings()}, &mockPatients{err: patients.ErrPatientNotFound}, nil)

	entry := outboxEntry(t, events.AppointmentBookedV1{AppointmentSnapshot: snapshot()})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 1 || !strings.Contains(email.sent[0].Subject, "A patient") {
		t.Errorf("unexpected emails: %+v", email.sent)
	}
}

func TestService_Handle_SettingsError(t *testing.T) {
	svc := NewService(&mockEmailSender{}, &mockSettings{err: errors.New("redis down")}, nil, nil)
	entry := outboxEntry(t, events.AppointmentBookedV1{AppointmentSnapshot: snapshot()})
	if err := svc.Handle(context.Background(), entry); err == nil {
		t.Fatal("expected error")
	}
}

func TestService_NotConfigured(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	entry := outboxEntry(t, events.AppointmentBookedV1{AppointmentSnapshot: snapshot()})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"10:00:00", "10:00 AM"},
		{"18:45", "6:45 PM"},
		{"00:15:00", "12:15 AM"},
		{"bogus", "bogus"},
	}
	for _, tt := range tests {
		if got := formatClock(tt.in); got != tt.want {
			t.Errorf("formatClock(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
