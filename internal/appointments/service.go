package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-ops-platform/internal/audit"
	"github.com/wolfman30/clinic-ops-platform/internal/calendarfeed"
	"github.com/wolfman30/clinic-ops-platform/internal/catalog"
	"github.com/wolfman30/clinic-ops-platform/internal/events"
	"github.com/wolfman30/clinic-ops-platform/internal/observability/metrics"
	"github.com/wolfman30/clinic-ops-platform/internal/patients"
	"github.com/wolfman30/clinic-ops-platform/internal/scheduling"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

var appointmentsTracer = otel.Tracer("clinicops.internal.appointments")

// AuditLogger records appointment changes.
type AuditLogger interface {
	LogAppointmentChange(ctx context.Context, orgID, appointmentID string, eventType audit.EventType, changed []string, details any) error
}

// Feed receives committed changes for live calendars.
type Feed interface {
	Publish(orgID string, change calendarfeed.Change)
}

// PatientReader confirms the patient belongs to the clinic.
type PatientReader interface {
	GetByID(ctx context.Context, orgID, id string) (*patients.Patient, error)
}

// Service writes appointments. Every write re-checks availability inside a
// transaction holding the slot locks.
type Service struct {
	store    Store
	checker  *Checker
	patients PatientReader
	audit    AuditLogger
	feed     Feed
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewService constructs the booking writer.
func NewService(store Store, checker *Checker, logger *logging.Logger) *Service {
	if store == nil || checker == nil {
		panic("appointments: store and checker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:   store,
		checker: checker,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithPatients(p PatientReader) *Service {
	s.patients = p
	return s
}

func (s *Service) WithAudit(a AuditLogger) *Service {
	s.audit = a
	return s
}

func (s *Service) WithFeed(f Feed) *Service {
	s.feed = f
	return s
}

func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// WithClock overrides the clock used for cancellation and event timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Checker exposes the read-only checker the writer was built with.
func (s *Service) Checker() *Checker {
	return s.checker
}

func (s *Service) Get(ctx context.Context, orgID, id string) (*Appointment, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, ErrMissingOrgID
	}
	return s.store.Get(ctx, orgID, id)
}

func (s *Service) List(ctx context.Context, orgID string, filter ListFilter) ([]Appointment, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, ErrMissingOrgID
	}
	if filter.Date != "" {
		if _, err := time.Parse(DateLayout, filter.Date); err != nil {
			return nil, ErrInvalidDate
		}
	}
	return s.store.List(ctx, orgID, filter)
}

// Book creates a confirmed appointment. With no resource chosen the first
// free unit of the family is assigned.
func (s *Service) Book(ctx context.Context, req BookRequest) (appt *Appointment, err error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicops.org_id", req.OrgID),
		attribute.String("clinicops.date", req.Date),
	)
	started := time.Now()
	line := strings.TrimSpace(req.ServiceLine)
	defer func() {
		if appt != nil {
			line = string(appt.ServiceLine)
		}
		s.observe("book", line, started, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.verifyParties(ctx, req.OrgID, req.PatientID, req.ProfessionalID); err != nil {
		return nil, err
	}

	p, err := s.checker.resolve(ctx, planInput{
		orgID:        req.OrgID,
		serviceLine:  req.ServiceLine,
		subServiceID: req.SubServiceID,
		date:         req.Date,
		startTime:    req.StartTime,
	})
	if err != nil {
		return nil, err
	}
	line = string(p.family.Kind)
	if err := checkPlan(p, req.ResourceID); err != nil {
		return nil, err
	}

	a := &Appointment{
		OrgID:           req.OrgID,
		PatientID:       req.PatientID,
		ProfessionalID:  req.ProfessionalID,
		ServiceID:       p.subService.ServiceID,
		SubServiceID:    p.subService.ID,
		ServiceLine:     p.family.Kind,
		Date:            p.date,
		StartTime:       p.start.HMS(),
		EndTime:         p.endTime(),
		DurationMinutes: p.duration,
		PriceCents:      p.subService.PriceCents,
		Status:          StatusConfirmed,
		Notes:           strings.TrimSpace(req.Notes),
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockSlot(ctx, lockKeys(a.OrgID, a.Date, a.ServiceLine, a.ProfessionalID)...); err != nil {
			return err
		}
		existing, err := tx.ListForDate(ctx, a.OrgID, a.Date)
		if err != nil {
			return err
		}
		resourceID, err := pickResource(p, existing, strings.TrimSpace(req.ResourceID), "", a.ProfessionalID, "")
		if err != nil {
			return err
		}
		a.ResourceID = resourceID
		if err := tx.Insert(ctx, a); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, a.OrgID, events.AppointmentBookedV1{
			AppointmentSnapshot: a.snapshot(),
			BookedAt:            s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("clinicops.appointment_id", a.ID))
	s.afterWrite(ctx, a, audit.EventAppointmentBooked, "booked", "",
		[]string{"date", "start_time", "resource_id", "professional_id", "status"}, nil)
	s.logger.Info("appointment booked",
		"org_id", a.OrgID, "appointment_id", a.ID, "service_line", a.ServiceLine,
		"resource_id", a.ResourceID, "date", a.Date, "start_time", a.StartTime)
	return a, nil
}

// Reschedule moves an appointment. The appointment never conflicts with itself,
// and keeps its current unit when that unit is still free.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (appt *Appointment, err error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicops.org_id", req.OrgID),
		attribute.String("clinicops.appointment_id", req.ID),
	)
	started := time.Now()
	defer func() {
		line := ""
		if appt != nil {
			line = string(appt.ServiceLine)
		}
		s.observe("reschedule", line, started, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if strings.TrimSpace(req.OrgID) == "" {
		return nil, ErrMissingOrgID
	}
	if req.ProfessionalID != "" {
		if err := s.verifyParties(ctx, req.OrgID, "", req.ProfessionalID); err != nil {
			return nil, err
		}
	}

	var updated *Appointment
	var previous Appointment
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, req.OrgID, req.ID)
		if err != nil {
			return err
		}
		if err := editable(cur.Status); err != nil {
			return err
		}
		previous = *cur

		next := *cur
		next.Date = firstNonEmpty(req.Date, cur.Date)
		next.ProfessionalID = firstNonEmpty(req.ProfessionalID, cur.ProfessionalID)
		if req.Notes != nil {
			next.Notes = strings.TrimSpace(*req.Notes)
		}

		p, err := s.checker.resolve(ctx, planInput{
			orgID:        req.OrgID,
			subServiceID: firstNonEmpty(req.SubServiceID, cur.SubServiceID),
			date:         next.Date,
			startTime:    firstNonEmpty(req.StartTime, cur.StartTime),
		})
		if err != nil {
			return err
		}
		if err := checkPlan(p, req.ResourceID); err != nil {
			return err
		}
		next.Date = p.date
		next.StartTime = p.start.HMS()
		next.EndTime = p.endTime()
		next.DurationMinutes = p.duration
		next.ServiceLine = p.family.Kind
		next.SubServiceID = p.subService.ID
		next.ServiceID = p.subService.ServiceID
		next.PriceCents = p.subService.PriceCents

		if err := tx.LockSlot(ctx, lockKeys(next.OrgID, next.Date, next.ServiceLine, next.ProfessionalID)...); err != nil {
			return err
		}
		existing, err := tx.ListForDate(ctx, next.OrgID, next.Date)
		if err != nil {
			return err
		}
		preferred := ""
		if next.ServiceLine == cur.ServiceLine {
			preferred = cur.ResourceID
		}
		resourceID, err := pickResource(p, existing, strings.TrimSpace(req.ResourceID), preferred, next.ProfessionalID, cur.ID)
		if err != nil {
			return err
		}
		next.ResourceID = resourceID

		if err := tx.Update(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return tx.AppendEvent(ctx, next.OrgID, events.AppointmentRescheduledV1{
			AppointmentSnapshot: next.snapshot(),
			PreviousDate:        cur.Date,
			PreviousStartTime:   cur.StartTime,
			PreviousResourceID:  cur.ResourceID,
			RescheduledAt:       s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, updated, audit.EventAppointmentRescheduled, "rescheduled", previous.Date,
		changedFields(&previous, updated), map[string]string{
			"previous_date":        previous.Date,
			"previous_start_time":  previous.StartTime,
			"previous_resource_id": previous.ResourceID,
		})
	s.logger.Info("appointment rescheduled",
		"org_id", updated.OrgID, "appointment_id", updated.ID,
		"date", updated.Date, "start_time", updated.StartTime, "resource_id", updated.ResourceID)
	return updated, nil
}

// Cancel frees the appointment's unit and professional.
func (s *Service) Cancel(ctx context.Context, orgID, id, reason string) (appt *Appointment, err error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicops.org_id", orgID),
		attribute.String("clinicops.appointment_id", id),
	)
	started := time.Now()
	defer func() {
		line := ""
		if appt != nil {
			line = string(appt.ServiceLine)
		}
		s.observe("cancel", line, started, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if strings.TrimSpace(orgID) == "" {
		return nil, ErrMissingOrgID
	}

	var cancelled *Appointment
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, orgID, id)
		if err != nil {
			return err
		}
		if err := editable(cur.Status); err != nil {
			return err
		}
		now := s.now()
		cur.Status = StatusCancelled
		cur.CancellationReason = strings.TrimSpace(reason)
		cur.CancelledAt = &now
		if err := tx.Update(ctx, cur); err != nil {
			return err
		}
		cancelled = cur
		return tx.AppendEvent(ctx, orgID, events.AppointmentCancelledV1{
			AppointmentSnapshot: cur.snapshot(),
			Reason:              cur.CancellationReason,
			CancelledAt:         now,
		})
	})
	if err != nil {
		return nil, err
	}

	var details map[string]string
	if cancelled.CancellationReason != "" {
		details = map[string]string{"reason": cancelled.CancellationReason}
	}
	s.afterWrite(ctx, cancelled, audit.EventAppointmentCancelled, "cancelled", "",
		[]string{"status", "cancellation_reason", "cancelled_at"}, details)
	s.logger.Info("appointment cancelled", "org_id", orgID, "appointment_id", id, "reason", cancelled.CancellationReason)
	return cancelled, nil
}

// UpdateStatus moves an appointment along confirmed -> in_progress -> completed.
// Moving to cancelled is the same as Cancel.
func (s *Service) UpdateStatus(ctx context.Context, orgID, id, status, reason string) (appt *Appointment, err error) {
	next, err := ParseStatus(status)
	if err == nil && next == StatusCancelled {
		return s.Cancel(ctx, orgID, id, reason)
	}

	ctx, span := appointmentsTracer.Start(ctx, "appointments.update_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinicops.org_id", orgID),
		attribute.String("clinicops.appointment_id", id),
		attribute.String("clinicops.status", string(next)),
	)
	started := time.Now()
	defer func() {
		line := ""
		if appt != nil {
			line = string(appt.ServiceLine)
		}
		s.observe("update_status", line, started, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(orgID) == "" {
		return nil, ErrMissingOrgID
	}

	var updated *Appointment
	var previous Status
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, orgID, id)
		if err != nil {
			return err
		}
		if !cur.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, next)
		}
		previous = cur.Status
		cur.Status = next
		if err := tx.Update(ctx, cur); err != nil {
			return err
		}
		updated = cur
		return tx.AppendEvent(ctx, orgID, events.AppointmentStatusChangedV1{
			AppointmentSnapshot: cur.snapshot(),
			PreviousStatus:      string(previous),
			ChangedAt:           s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, updated, audit.EventAppointmentStatusChanged, "status_changed", "",
		[]string{"status"}, map[string]string{"previous_status": string(previous)})
	s.logger.Info("appointment status changed", "org_id", orgID, "appointment_id", id, "from", previous, "to", next)
	return updated, nil
}

func (s *Service) verifyParties(ctx context.Context, orgID, patientID, professionalID string) error {
	if patientID != "" && s.patients != nil {
		if _, err := s.patients.GetByID(ctx, orgID, patientID); err != nil {
			if errors.Is(err, patients.ErrPatientNotFound) {
				return ErrUnknownPatient
			}
			return fmt.Errorf("appointments: load patient: %w", err)
		}
	}
	if professionalID != "" {
		if _, err := s.checker.catalog.GetProfessional(ctx, orgID, professionalID); err != nil {
			if errors.Is(err, catalog.ErrProfessionalNotFound) {
				return ErrUnknownProfessional
			}
			return fmt.Errorf("appointments: load professional: %w", err)
		}
	}
	return nil
}

// checkPlan applies the rules that do not depend on other bookings.
func checkPlan(p *plan, resourceID string) error {
	if p.subService == nil {
		return ErrMissingSubService
	}
	if p.family.PastClosing(p.slot.End) {
		return ErrPastClosing
	}
	if p.family.Capacity() == 0 {
		return ErrNoResourcesAvailable
	}
	if id := strings.TrimSpace(resourceID); id != "" && !containsString(p.family.Resources, id) {
		return ErrUnknownResource
	}
	return nil
}

// pickResource settles the unit for a write. chosen is the caller's explicit
// pick; preferred is kept when free and otherwise the first free unit wins.
func pickResource(p *plan, existing []Appointment, chosen, preferred, professionalID, excludeID string) (string, error) {
	res := scheduling.Evaluate(p.family, toBookings(existing), scheduling.Candidate{
		Slot:           p.slot,
		ResourceID:     chosen,
		ProfessionalID: professionalID,
		ExcludeID:      excludeID,
	})
	var resourceID string
	switch {
	case chosen != "":
		if !res.ResourceFree {
			return "", ErrResourceConflict
		}
		resourceID = chosen
	case preferred != "" && containsString(res.Free, preferred):
		resourceID = preferred
	default:
		resourceID = res.FirstFree()
		if resourceID == "" {
			return "", ErrNoResourcesAvailable
		}
	}
	if !res.ProfessionalFree {
		return "", ErrProfessionalConflict
	}
	return resourceID, nil
}

func (s *Service) afterWrite(ctx context.Context, a *Appointment, eventType audit.EventType, changeType, previousDate string, changed []string, details any) {
	if s.audit != nil {
		if err := s.audit.LogAppointmentChange(ctx, a.OrgID, a.ID, eventType, changed, details); err != nil {
			s.logger.Error("failed to write audit event", "org_id", a.OrgID, "appointment_id", a.ID, "error", err)
		}
	}
	if s.feed != nil {
		s.feed.Publish(a.OrgID, calendarfeed.Change{
			Type:          changeType,
			AppointmentID: a.ID,
			ServiceLine:   string(a.ServiceLine),
			ResourceID:    a.ResourceID,
			Date:          a.Date,
			StartTime:     a.StartTime,
			EndTime:       a.EndTime,
			Status:        string(a.Status),
			PreviousDate:  previousDate,
		})
	}
}

func (s *Service) observe(op, line string, started time.Time, err error) {
	code := ErrorCode(err)
	switch code {
	case "resource_conflict", "professional_conflict", "no_resources":
		s.metrics.ObserveConflict(line, code)
	}
	s.metrics.ObserveWrite(op, line, code, time.Since(started).Seconds())
}

func (a *Appointment) snapshot() events.AppointmentSnapshot {
	return events.AppointmentSnapshot{
		AppointmentID:   a.ID,
		OrgID:           a.OrgID,
		PatientID:       a.PatientID,
		ProfessionalID:  a.ProfessionalID,
		SubServiceID:    a.SubServiceID,
		ServiceLine:     string(a.ServiceLine),
		ResourceID:      a.ResourceID,
		Date:            a.Date,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
	}
}

func editable(status Status) error {
	switch status {
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusCompleted:
		return ErrInvalidTransition
	}
	return nil
}

func changedFields(before, after *Appointment) []string {
	var out []string
	add := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}
	add("date", before.Date != after.Date)
	add("start_time", before.StartTime != after.StartTime)
	add("duration_minutes", before.DurationMinutes != after.DurationMinutes)
	add("resource_id", before.ResourceID != after.ResourceID)
	add("professional_id", before.ProfessionalID != after.ProfessionalID)
	add("sub_service_id", before.SubServiceID != after.SubServiceID)
	add("notes", before.Notes != after.Notes)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
