// Package appointments checks slot availability and writes bookings for every
// resource-backed service line.
package appointments

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-ops-platform/internal/scheduling"
)

// DateLayout is the wire and storage format of appointment dates.
const DateLayout = "2006-01-02"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus normalizes a status string. "scheduled" is accepted for confirmed.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confirmed", "scheduled":
		return StatusConfirmed, nil
	case "in_progress", "in-progress", "inprogress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusCancelled:
		return true
	case StatusInProgress:
		return s == StatusConfirmed
	case StatusCompleted:
		return s == StatusInProgress
	default:
		return false
	}
}

// Appointment is one booked interval on a resource and a professional.
type Appointment struct {
	ID                 string          `json:"id"`
	OrgID              string          `json:"org_id"`
	PatientID          string          `json:"patient_id"`
	ProfessionalID     string          `json:"professional_id"`
	ServiceID          string          `json:"service_id"`
	SubServiceID       string          `json:"sub_service_id"`
	ServiceLine        scheduling.Kind `json:"service_line"`
	ResourceID         string          `json:"resource_id"`
	Date               string          `json:"date"`
	StartTime          string          `json:"start_time"`
	EndTime            string          `json:"end_time"`
	DurationMinutes    int             `json:"duration_minutes"`
	PriceCents         int64           `json:"price_cents"`
	Status             Status          `json:"status"`
	Notes              string          `json:"notes,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Slot is the unwrapped half-open interval the appointment occupies.
func (a *Appointment) Slot() (scheduling.Interval, error) {
	start, err := scheduling.ParseClock(a.StartTime)
	if err != nil {
		return scheduling.Interval{}, err
	}
	return scheduling.Span(start, a.DurationMinutes)
}

// Active reports whether the appointment occupies its resource.
func (a *Appointment) Active() bool {
	return a.Status != StatusCancelled
}

func toBookings(appts []Appointment) []scheduling.Booking {
	out := make([]scheduling.Booking, 0, len(appts))
	for i := range appts {
		a := &appts[i]
		if !a.Active() {
			continue
		}
		slot, err := a.Slot()
		if err != nil {
			continue
		}
		out = append(out, scheduling.Booking{
			ID:             a.ID,
			ResourceID:     a.ResourceID,
			ProfessionalID: a.ProfessionalID,
			Slot:           slot,
		})
	}
	return out
}

// BookRequest creates an appointment. ResourceID empty means "first free unit".
type BookRequest struct {
	OrgID          string `json:"-"`
	PatientID      string `json:"patient_id"`
	ProfessionalID string `json:"professional_id"`
	SubServiceID   string `json:"sub_service_id"`
	ServiceLine    string `json:"service_line,omitempty"`
	ResourceID     string `json:"resource_id,omitempty"`
	Date           string `json:"date"`
	StartTime      string `json:"start_time"`
	Notes          string `json:"notes,omitempty"`
}

// Validate checks required selections before any read or write.
func (r *BookRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.OrgID) == "":
		return ErrMissingOrgID
	case strings.TrimSpace(r.PatientID) == "":
		return ErrMissingPatient
	case strings.TrimSpace(r.ProfessionalID) == "":
		return ErrMissingProfessional
	case strings.TrimSpace(r.SubServiceID) == "":
		return ErrMissingSubService
	case strings.TrimSpace(r.Date) == "":
		return ErrInvalidDate
	case strings.TrimSpace(r.StartTime) == "":
		return ErrInvalidTime
	}
	return nil
}

// RescheduleRequest rewrites an existing appointment. Empty fields keep the
// current value; a new sub-service changes duration and price.
type RescheduleRequest struct {
	OrgID          string  `json:"-"`
	ID             string  `json:"-"`
	Date           string  `json:"date,omitempty"`
	StartTime      string  `json:"start_time,omitempty"`
	ResourceID     string  `json:"resource_id,omitempty"`
	ProfessionalID string  `json:"professional_id,omitempty"`
	SubServiceID   string  `json:"sub_service_id,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// CheckRequest asks whether a candidate interval is free.
type CheckRequest struct {
	OrgID           string
	ServiceLine     string
	SubServiceID    string
	DurationMinutes int
	Date            string
	StartTime       string
	ResourceID      string
	ProfessionalID  string
	ExcludeID       string
}

// SlotsRequest asks for a whole day's grid with per-slot availability.
type SlotsRequest struct {
	OrgID           string
	ServiceLine     string
	SubServiceID    string
	DurationMinutes int
	Date            string
	ProfessionalID  string
	ExcludeID       string
}

// ListFilter narrows appointment listings.
type ListFilter struct {
	Date             string
	ServiceLine      scheduling.Kind
	ProfessionalID   string
	PatientID        string
	IncludeCancelled bool
	Limit            int
}

// Availability is the answer to a CheckRequest.
type Availability struct {
	scheduling.Result
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Summary         string `json:"summary"`
	IsAvailable     bool   `json:"available"`
	Warning         string `json:"warning,omitempty"`
}

// SlotAvailability is one row of a day grid.
type SlotAvailability struct {
	Time             string `json:"time"`
	EndTime          string `json:"end_time"`
	FreeCount        int    `json:"free_count"`
	Capacity         int    `json:"capacity"`
	Summary          string `json:"summary"`
	ProfessionalFree bool   `json:"professional_free"`
	PastClosing      bool   `json:"past_closing"`
	Available        bool   `json:"available"`
}

// DaySlots is the answer to a SlotsRequest.
type DaySlots struct {
	Date            string             `json:"date"`
	ServiceLine     scheduling.Kind    `json:"service_line"`
	DurationMinutes int                `json:"duration_minutes"`
	Capacity        int                `json:"capacity"`
	Slots           []SlotAvailability `json:"slots"`
}

// WarningPastClosing marks a candidate ending at or after the closing cutoff.
const WarningPastClosing = "past_closing"
