package appointments

import "errors"

var (
	ErrMissingOrgID        = errors.New("appointments: org_id is required")
	ErrMissingPatient      = errors.New("appointments: patient is required")
	ErrMissingProfessional = errors.New("appointments: professional is required")
	ErrMissingSubService   = errors.New("appointments: sub-service is required")
	ErrMissingServiceLine  = errors.New("appointments: service line is required")
	ErrInvalidDate         = errors.New("appointments: date must be YYYY-MM-DD")
	ErrInvalidTime         = errors.New("appointments: start time must be HH:MM")
	ErrInvalidStatus       = errors.New("appointments: unknown status")

	// ErrServiceLineMismatch is returned when the sub-service belongs to another line.
	ErrServiceLineMismatch = errors.New("appointments: sub-service does not belong to service line")

	// ErrUnknownResource is returned when the chosen unit is not part of the family.
	ErrUnknownResource = errors.New("appointments: resource is not bookable for this service line")

	// ErrNoResourcesAvailable blocks an auto-assigned booking when every unit is taken.
	ErrNoResourcesAvailable = errors.New("appointments: no resources available")

	// ErrPastClosing rejects a candidate ending at or after the closing cutoff.
	ErrPastClosing = errors.New("appointments: ends at or after closing time")

	// ErrClinicClosed is returned for dates without business hours.
	ErrClinicClosed = errors.New("appointments: clinic closed on requested date")

	// ErrResourceConflict means the chosen unit is already booked for an overlapping interval.
	ErrResourceConflict = errors.New("appointments: resource already booked for that time")

	// ErrProfessionalConflict means the professional already has an overlapping appointment.
	ErrProfessionalConflict = errors.New("appointments: professional already booked for that time")

	// ErrUnknownPatient and ErrUnknownProfessional reject selections outside the clinic.
	ErrUnknownPatient      = errors.New("appointments: patient not found")
	ErrUnknownProfessional = errors.New("appointments: professional not found")

	ErrAppointmentNotFound = errors.New("appointments: appointment not found")
	ErrInvalidTransition   = errors.New("appointments: invalid status transition")
	ErrAlreadyCancelled    = errors.New("appointments: appointment already cancelled")
)

// ErrorCode is the stable code reported to clients and metrics for err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPastClosing):
		return "past_closing"
	case errors.Is(err, ErrClinicClosed):
		return "clinic_closed"
	case errors.Is(err, ErrNoResourcesAvailable):
		return "no_resources"
	case errors.Is(err, ErrResourceConflict):
		return "resource_conflict"
	case errors.Is(err, ErrProfessionalConflict):
		return "professional_conflict"
	case errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAlreadyCancelled):
		return "invalid_transition"
	case errors.Is(err, ErrMissingOrgID), errors.Is(err, ErrMissingPatient),
		errors.Is(err, ErrMissingProfessional), errors.Is(err, ErrMissingSubService),
		errors.Is(err, ErrMissingServiceLine), errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidTime), errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrServiceLineMismatch), errors.Is(err, ErrUnknownResource),
		errors.Is(err, ErrUnknownPatient), errors.Is(err, ErrUnknownProfessional):
		return "validation"
	default:
		return "internal"
	}
}
