package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names a bookable service line.
type Kind string

const (
	KindRoom    Kind = "room"
	KindChamber Kind = "chamber"
	KindDrips   Kind = "drips"
)

// DefaultDripsStations is the number of parallel IV stations a clinic runs.
const DefaultDripsStations = 5

// DefaultClosingCutoff rejects any booking ending at or after 19:00.
var DefaultClosingCutoff = MustClock("19:00")

// ErrUnknownKind is returned for service lines outside room/chamber/drips.
var ErrUnknownKind = errors.New("scheduling: unknown service line")

// ParseKind normalizes a service line name. "hyperbaric" and "iv" are accepted aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "room", "rooms", "consultation", "consultation_room":
		return KindRoom, nil
	case "chamber", "hyperbaric":
		return KindChamber, nil
	case "drips", "drip", "iv":
		return KindDrips, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// DefaultResources synthesizes the resource set for families that clinics do not
// configure explicitly: one implicit chamber, and numbered drips stations.
func DefaultResources(kind Kind, dripsStations int) []string {
	switch kind {
	case KindChamber:
		return []string{"chamber-1"}
	case KindDrips:
		if dripsStations <= 0 {
			dripsStations = DefaultDripsStations
		}
		ids := make([]string, 0, dripsStations)
		for i := 1; i <= dripsStations; i++ {
			ids = append(ids, fmt.Sprintf("station-%d", i))
		}
		return ids
	default:
		return nil
	}
}

// Family is one resource type: its fixed set of single-capacity units and the
// closing cutoff that applies to it. A zero Cutoff disables the check.
type Family struct {
	Kind      Kind
	Resources []string
	Cutoff    Clock
}

// PastClosing reports whether an appointment ending at end runs into the
// family's closing cutoff.
func (f Family) PastClosing(end Clock) bool {
	return f.Cutoff > 0 && PastClosing(end, f.Cutoff)
}

// Capacity is the number of appointments the family can run in parallel.
func (f Family) Capacity() int {
	return len(f.Resources)
}

func (f Family) has(resourceID string) bool {
	for _, id := range f.Resources {
		if id == resourceID {
			return true
		}
	}
	return false
}

// Booking is an existing non-cancelled appointment as seen by the checker.
type Booking struct {
	ID             string
	ResourceID     string
	ProfessionalID string
	Slot           Interval
}

// Candidate is the interval being considered for a new or edited appointment.
type Candidate struct {
	Slot Interval
	// ResourceID pins a specific unit; empty means "any unit of the family".
	ResourceID string
	// ProfessionalID is checked as a second, orthogonal resource when set.
	ProfessionalID string
	// ExcludeID skips the appointment being edited so it cannot conflict with itself.
	ExcludeID string
}

// Result is the outcome of evaluating a candidate against current bookings.
type Result struct {
	Kind             Kind     `json:"service_line"`
	Capacity         int      `json:"capacity"`
	FreeCount        int      `json:"free_count"`
	Free             []string `json:"free_resources"`
	Occupied         []string `json:"occupied_resources"`
	ResourceID       string   `json:"resource_id,omitempty"`
	ResourceFree     bool     `json:"resource_free"`
	ProfessionalFree bool     `json:"professional_free"`
	PastClosing      bool     `json:"past_closing"`
}

// Summary renders the "X/N available" label shown on drips calendars.
func (r Result) Summary() string {
	return fmt.Sprintf("%d/%d available", r.FreeCount, r.Capacity)
}

// Available reports whether the candidate can be booked as requested.
func (r Result) Available() bool {
	if r.PastClosing || !r.ProfessionalFree {
		return false
	}
	if r.ResourceID != "" {
		return r.ResourceFree
	}
	return r.FreeCount > 0
}

// Evaluate tests a candidate against bookings for the same date. Bookings must
// already exclude cancelled rows; bookings on resources outside the family only
// matter for the professional check.
func Evaluate(f Family, bookings []Booking, c Candidate) Result {
	occupied := make(map[string]bool, len(f.Resources))
	professionalFree := true

	for _, b := range bookings {
		if c.ExcludeID != "" && b.ID == c.ExcludeID {
			continue
		}
		if !b.Slot.Overlaps(c.Slot) {
			continue
		}
		if f.has(b.ResourceID) {
			occupied[b.ResourceID] = true
		}
		if c.ProfessionalID != "" && b.ProfessionalID == c.ProfessionalID {
			professionalFree = false
		}
	}

	res := Result{
		Kind:             f.Kind,
		Capacity:         f.Capacity(),
		Free:             []string{},
		Occupied:         []string{},
		ResourceID:       c.ResourceID,
		ProfessionalFree: professionalFree,
		PastClosing:      f.PastClosing(c.Slot.End),
	}
	for _, id := range f.Resources {
		if occupied[id] {
			res.Occupied = append(res.Occupied, id)
			continue
		}
		res.Free = append(res.Free, id)
	}
	res.FreeCount = len(res.Free)
	if c.ResourceID != "" {
		res.ResourceFree = f.has(c.ResourceID) && !occupied[c.ResourceID]
	}
	return res
}

// FirstFree returns the first free unit in family order, or "" when none is free.
func (r Result) FirstFree() string {
	if len(r.Free) == 0 {
		return ""
	}
	return r.Free[0]
}
