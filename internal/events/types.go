package events

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	AppointmentAggregate = "appointment"

	TypeAppointmentBooked        = "appointments.booked.v1"
	TypeAppointmentRescheduled   = "appointments.rescheduled.v1"
	TypeAppointmentCancelled     = "appointments.cancelled.v1"
	TypeAppointmentStatusChanged = "appointments.status_changed.v1"
)

// AppointmentSnapshot is the appointment state carried by every appointment event.
type AppointmentSnapshot struct {
	AppointmentID   string `json:"appointment_id"`
	OrgID           string `json:"org_id"`
	PatientID       string `json:"patient_id"`
	ProfessionalID  string `json:"professional_id"`
	SubServiceID    string `json:"sub_service_id"`
	ServiceLine     string `json:"service_line"`
	ResourceID      string `json:"resource_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
}

type AppointmentBookedV1 struct {
	AppointmentSnapshot
	BookedAt time.Time `json:"booked_at"`
}

func (AppointmentBookedV1) EventType() string { return TypeAppointmentBooked }

type AppointmentRescheduledV1 struct {
	AppointmentSnapshot
	PreviousDate       string    `json:"previous_date"`
	PreviousStartTime  string    `json:"previous_start_time"`
	PreviousResourceID string    `json:"previous_resource_id"`
	RescheduledAt      time.Time `json:"rescheduled_at"`
}

func (AppointmentRescheduledV1) EventType() string { return TypeAppointmentRescheduled }

type AppointmentCancelledV1 struct {
	AppointmentSnapshot
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

func (AppointmentCancelledV1) EventType() string { return TypeAppointmentCancelled }

type AppointmentStatusChangedV1 struct {
	AppointmentSnapshot
	PreviousStatus string    `json:"previous_status"`
	ChangedAt      time.Time `json:"changed_at"`
}

func (AppointmentStatusChangedV1) EventType() string { return TypeAppointmentStatusChanged }

// AppointmentEvent is a decoded appointment event of any type.
type AppointmentEvent struct {
	Envelope Envelope
	AppointmentSnapshot
	PreviousDate      string
	PreviousStartTime string
	Reason            string
}

// DecodeAppointmentEvent parses an outbox entry produced for the appointment aggregate.
func DecodeAppointmentEvent(entry OutboxEntry) (AppointmentEvent, error) {
	env, err := DecodeEnvelope(entry.Payload)
	if err != nil {
		return AppointmentEvent{}, err
	}
	out := AppointmentEvent{Envelope: env}
	switch env.EventType {
	case TypeAppointmentBooked:
		var evt AppointmentBookedV1
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return AppointmentEvent{}, fmt.Errorf("events: decode %s: %w", env.EventType, err)
		}
		out.AppointmentSnapshot = evt.AppointmentSnapshot
	case TypeAppointmentRescheduled:
		var evt AppointmentRescheduledV1
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return AppointmentEvent{}, fmt.Errorf("events: decode %s: %w", env.EventType, err)
		}
		out.AppointmentSnapshot = evt.AppointmentSnapshot
		out.PreviousDate = evt.PreviousDate
		out.PreviousStartTime = evt.PreviousStartTime
	case TypeAppointmentCancelled:
		var evt AppointmentCancelledV1
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return AppointmentEvent{}, fmt.Errorf("events: decode %s: %w", env.EventType, err)
		}
		out.AppointmentSnapshot = evt.AppointmentSnapshot
		out.Reason = evt.Reason
	case TypeAppointmentStatusChanged:
		var evt AppointmentStatusChangedV1
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return AppointmentEvent{}, fmt.Errorf("events: decode %s: %w", env.EventType, err)
		}
		out.AppointmentSnapshot = evt.AppointmentSnapshot
	default:
		return AppointmentEvent{}, fmt.Errorf("events: unknown appointment event %q", env.EventType)
	}
	return out, nil
}
