// Package catalog holds the read-mostly reference data booking depends on:
// services and their sub-services, professionals, and bookable resources.
package catalog

import (
	"strings"
	"time"

	"github.com/wolfman30/clinic-ops-platform/internal/scheduling"
)

// Service is a service line offering, e.g. "IV Therapy".
type Service struct {
	ID          string          `json:"id"`
	OrgID       string          `json:"org_id"`
	Name        string          `json:"name"`
	ServiceLine scheduling.Kind `json:"service_line"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SubService is the bookable variant that fixes duration and price.
type SubService struct {
	ID              string          `json:"id"`
	OrgID           string          `json:"org_id"`
	ServiceID       string          `json:"service_id"`
	ServiceLine     scheduling.Kind `json:"service_line"`
	Name            string          `json:"name"`
	DurationMinutes int             `json:"duration_minutes"`
	PriceCents      int64           `json:"price_cents"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
}

// EffectiveDuration is the duration used for end-time computation.
func (s *SubService) EffectiveDuration() int {
	if s == nil {
		return scheduling.DefaultDurationMinutes
	}
	return scheduling.DurationOrDefault(s.DurationMinutes)
}

// Professional is a practitioner; booked as a second resource alongside the unit.
type Professional struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Specialty string    `json:"specialty,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Resource is a single-capacity bookable unit: a consultation room, the chamber,
// or one drips station.
type Resource struct {
	ID        string          `json:"id"`
	OrgID     string          `json:"org_id"`
	Kind      scheduling.Kind `json:"kind"`
	Name      string          `json:"name"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateServiceRequest is the admin payload for a new service.
type CreateServiceRequest struct {
	OrgID       string `json:"-"`
	Name        string `json:"name"`
	ServiceLine string `json:"service_line"`
}

// Validate checks the request and normalizes the service line.
func (r *CreateServiceRequest) Validate() (scheduling.Kind, error) {
	if strings.TrimSpace(r.OrgID) == "" {
		return "", ErrMissingOrgID
	}
	if strings.TrimSpace(r.Name) == "" {
		return "", ErrInvalidName
	}
	kind, err := scheduling.ParseKind(r.ServiceLine)
	if err != nil {
		return "", ErrInvalidServiceLine
	}
	return kind, nil
}

// CreateSubServiceRequest is the admin payload for a new sub-service.
type CreateSubServiceRequest struct {
	OrgID           string `json:"-"`
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
}

// Validate checks the request.
func (r *CreateSubServiceRequest) Validate() error {
	if strings.TrimSpace(r.OrgID) == "" {
		return ErrMissingOrgID
	}
	if strings.TrimSpace(r.ServiceID) == "" {
		return ErrServiceNotFound
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if r.DurationMinutes < 0 || r.PriceCents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// CreateProfessionalRequest is the admin payload for a new professional.
type CreateProfessionalRequest struct {
	OrgID     string `json:"-"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Specialty string `json:"specialty"`
}

// Validate checks the request.
func (r *CreateProfessionalRequest) Validate() error {
	if strings.TrimSpace(r.OrgID) == "" {
		return ErrMissingOrgID
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	return nil
}

// CreateResourceRequest is the admin payload for a new bookable unit.
type CreateResourceRequest struct {
	OrgID string `json:"-"`
	Kind  string `json:"kind"`
	Name  string `json:"name"`
}

// Validate checks the request and normalizes the kind.
func (r *CreateResourceRequest) Validate() (scheduling.Kind, error) {
	if strings.TrimSpace(r.OrgID) == "" {
		return "", ErrMissingOrgID
	}
	if strings.TrimSpace(r.Name) == "" {
		return "", ErrInvalidName
	}
	kind, err := scheduling.ParseKind(r.Kind)
	if err != nil {
		return "", ErrInvalidServiceLine
	}
	return kind, nil
}
