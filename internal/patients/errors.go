package patients

import "errors"

var (
	// ErrMissingOrgID is returned when a request is not scoped to a clinic
	ErrMissingOrgID = errors.New("org_id is required")

	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("name is required")

	// ErrMissingContact is returned when both email and phone are missing
	ErrMissingContact = errors.New("either email or phone is required")

	// ErrInvalidBirthDate is returned when date_of_birth is not YYYY-MM-DD
	ErrInvalidBirthDate = errors.New("date_of_birth must be YYYY-MM-DD")

	// ErrPatientNotFound is returned when a patient is not found
	ErrPatientNotFound = errors.New("patient not found")
)
