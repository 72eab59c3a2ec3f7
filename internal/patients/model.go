// Package patients stores the people appointments are booked for.
package patients

import (
	"strings"
	"time"
)

// Patient is a clinic's patient record.
type Patient struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreatePatientRequest represents the request body for creating a patient
type CreatePatientRequest struct {
	OrgID       string `json:"-"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth"`
	Notes       string `json:"notes"`
}

// Validate validates the create patient request
func (r *CreatePatientRequest) Validate() error {
	if strings.TrimSpace(r.OrgID) == "" {
		return ErrMissingOrgID
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if r.Email == "" && r.Phone == "" {
		return ErrMissingContact
	}
	if r.DateOfBirth != "" {
		if _, err := time.Parse("2006-01-02", r.DateOfBirth); err != nil {
			return ErrInvalidBirthDate
		}
	}
	return nil
}

// ListFilter narrows patient searches.
type ListFilter struct {
	Query  string // matches name, email or phone
	Limit  int
	Offset int
}
