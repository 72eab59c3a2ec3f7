package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-ops-platform/internal/clinic"
	"github.com/wolfman30/clinic-ops-platform/internal/events"
	"github.com/wolfman30/clinic-ops-platform/internal/patients"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

// ConsumerName identifies this handler in processed_events.
const ConsumerName = "notify.appointments"

// PatientReader loads the patient an appointment belongs to.
type PatientReader interface {
	GetByID(ctx context.Context, orgID, id string) (*patients.Patient, error)
}

// ProcessedTracker dedupes redelivered outbox entries.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
}

// Service emails patients and clinic staff when appointments change.
// It is an events.DeliveryHandler fed by the outbox worker.
type Service struct {
	email     EmailSender
	settings  clinic.SettingsReader
	patients  PatientReader
	processed ProcessedTracker
	logger    *logging.Logger
}

var _ events.DeliveryHandler = (*Service)(nil)

// NewService creates a notification service.
func NewService(email EmailSender, settings clinic.SettingsReader, patientsRepo PatientReader, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:    email,
		settings: settings,
		patients: patientsRepo,
		logger:   logger,
	}
}

// WithProcessedTracker skips events already handled. Events are marked after
// sending, so a crash in between can still resend (at-least-once).
func (s *Service) WithProcessedTracker(p ProcessedTracker) *Service {
	s.processed = p
	return s
}

// Handle implements events.DeliveryHandler.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Aggregate != events.AppointmentAggregate {
		return nil
	}
	evt, err := events.DecodeAppointmentEvent(entry)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	eventID := evt.Envelope.EventID.String()

	if s.processed != nil {
		done, err := s.processed.AlreadyProcessed(ctx, ConsumerName, eventID)
		if err != nil {
			return fmt.Errorf("notify: check processed: %w", err)
		}
		if done {
			s.logger.Debug("notify: event already processed", "event_id", eventID)
			return nil
		}
	}

	if err := s.NotifyAppointment(ctx, evt); err != nil {
		return err
	}

	if s.processed != nil {
		if _, err := s.processed.MarkProcessed(ctx, ConsumerName, eventID); err != nil {
			return fmt.Errorf("notify: mark processed: %w", err)
		}
	}
	return nil
}

// NotifyAppointment sends the emails for one appointment event.
func (s *Service) NotifyAppointment(ctx context.Context, evt events.AppointmentEvent) error {
	if s.settings == nil || s.email == nil {
		s.logger.Debug("notify: not configured, skipping", "event_type", evt.Envelope.EventType)
		return nil
	}

	cfg, err := s.settings.Get(ctx, evt.OrgID)
	if err != nil {
		s.logger.Error("notify: failed to get clinic settings", "error", err, "org_id", evt.OrgID)
		return fmt.Errorf("notify: get clinic settings: %w", err)
	}

	var verb string
	switch evt.Envelope.EventType {
	case events.TypeAppointmentBooked:
		if !cfg.Notifications.NotifyOnBooking {
			return nil
		}
		verb = "confirmed"
	case events.TypeAppointmentRescheduled:
		if !cfg.Notifications.NotifyOnBooking {
			return nil
		}
		verb = "rescheduled"
	case events.TypeAppointmentCancelled:
		if !cfg.Notifications.NotifyOnCancel {
			return nil
		}
		verb = "cancelled"
	default:
		return nil
	}

	patientName, patientEmail := "A patient", ""
	if s.patients != nil && evt.PatientID != "" {
		p, err := s.patients.GetByID(ctx, evt.OrgID, evt.PatientID)
		switch {
		case err == nil && p != nil:
			patientName, patientEmail = p.Name, p.Email
		case err != nil && !errors.Is(err, patients.ErrPatientNotFound):
			return fmt.Errorf("notify: load patient: %w", err)
		}
	}

	clinicName := cfg.Name
	if clinicName == "" {
		clinicName = "Your clinic"
	}
	when := formatWhen(evt.Date, evt.StartTime)
	tags := map[string]string{
		"appointment_id": evt.AppointmentID,
		"org_id":         evt.OrgID,
		"event_type":     evt.Envelope.EventType,
	}

	var msgs []EmailMessage
	if cfg.Notifications.EmailPatients && patientEmail != "" {
		msgs = append(msgs, EmailMessage{
			To:      patientEmail,
			ToName:  patientName,
			Subject: fmt.Sprintf("Your %s appointment is %s", clinicName, verb),
			Body:    patientBody(verb, clinicName, when, evt),
			Tags:    tags,
		})
	}
	for _, to := range cfg.Notifications.EmailRecipients {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		msgs = append(msgs, EmailMessage{
			To:      to,
			Subject: fmt.Sprintf("Appointment %s - %s", verb, patientName),
			Body:    staffBody(verb, patientName, when, evt),
			Tags:    tags,
		})
	}

	var errs []error
	for _, msg := range msgs {
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send email", "error", err, "to", msg.To)
			errs = append(errs, err)
			continue
		}
		s.logger.Info("notify: appointment email sent", "to", msg.To, "appointment_id", evt.AppointmentID, "event_type", evt.Envelope.EventType)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func patientBody(verb, clinicName, when string, evt events.AppointmentEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your appointment at %s on %s is %s.\n", clinicName, when, verb)
	if evt.Envelope.EventType == events.TypeAppointmentRescheduled && evt.PreviousDate != "" {
		fmt.Fprintf(&b, "It was previously scheduled for %s.\n", formatWhen(evt.PreviousDate, evt.PreviousStartTime))
	}
	if evt.Envelope.EventType != events.TypeAppointmentCancelled {
		fmt.Fprintf(&b, "Duration: %d minutes\n", evt.DurationMinutes)
	}
	fmt.Fprintf(&b, "\n- %s", clinicName)
	return b.String()
}

func staffBody(verb, patientName, when string, evt events.AppointmentEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s's %s appointment on %s was %s.\n\n", patientName, evt.ServiceLine, when, verb)
	fmt.Fprintf(&b, "Resource: %s\n", evt.ResourceID)
	fmt.Fprintf(&b, "Professional: %s\n", evt.ProfessionalID)
	fmt.Fprintf(&b, "Ends: %s\n", formatClock(evt.EndTime))
	if evt.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", evt.Reason)
	}
	fmt.Fprintf(&b, "Appointment ID: %s", evt.AppointmentID)
	return b.String()
}

// formatWhen renders "Monday, March 2 at 10:00 AM", falling back to the raw values.
func formatWhen(date, start string) string {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return strings.TrimSpace(date + " " + start)
	}
	return d.Format("Monday, January 2") + " at " + formatClock(start)
}

func formatClock(hms string) string {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, hms); err == nil {
			return t.Format("3:04 PM")
		}
	}
	return hms
}
