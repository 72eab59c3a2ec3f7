package catalog

import "errors"

var (
	// ErrMissingOrgID is returned when a request has no tenant.
	ErrMissingOrgID = errors.New("org_id is required")

	// ErrInvalidName is returned when a name is blank.
	ErrInvalidName = errors.New("name is required")

	// ErrInvalidServiceLine is returned for kinds other than room, chamber, drips.
	ErrInvalidServiceLine = errors.New("service_line must be room, chamber or drips")

	// ErrInvalidAmount is returned for negative durations or prices.
	ErrInvalidAmount = errors.New("duration and price must not be negative")

	// ErrServiceNotFound is returned when a service does not exist for the org.
	ErrServiceNotFound = errors.New("service not found")

	// ErrSubServiceNotFound is returned when a sub-service does not exist for the org.
	ErrSubServiceNotFound = errors.New("sub-service not found")

	// ErrProfessionalNotFound is returned when a professional does not exist for the org.
	ErrProfessionalNotFound = errors.New("professional not found")
)
