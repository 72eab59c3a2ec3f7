// Package clinic provides per-clinic settings, analytics, and the admin dashboard.
package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinic-ops-platform/internal/scheduling"
)

// ErrClosedDay is returned when the clinic has business hours but none for the requested weekday.
var ErrClosedDay = errors.New("clinic: closed on requested day")

// ErrInvalidSettings wraps validation failures on an update.
var ErrInvalidSettings = errors.New("clinic: invalid settings")

// DayHours represents the opening hours for a single day.
// Nil means the clinic is closed that day.
type DayHours struct {
	Open  string `json:"open"`  // "09:00" in 24-hour format
	Close string `json:"close"` // "18:00" in 24-hour format
}

// BusinessHours maps day names to their hours. When none are set the clinic
// uses its default window every day.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// NotificationPrefs holds notification preferences for a clinic.
type NotificationPrefs struct {
	// Patient confirmation emails
	EmailPatients bool `json:"email_patients"`

	// Staff copies
	EmailRecipients []string `json:"email_recipients,omitempty"`

	NotifyOnBooking bool `json:"notify_on_booking"`
	NotifyOnCancel  bool `json:"notify_on_cancel"`
}

// Settings is the scheduling configuration of one clinic.
type Settings struct {
	OrgID    string `json:"org_id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`

	Open                   string        `json:"open"`
	Close                  string        `json:"close"`
	StepMinutes            int           `json:"step_minutes"`
	TrailingSlot           string        `json:"trailing_slot"`
	ClosingCutoff          string        `json:"closing_cutoff"`
	DefaultDurationMinutes int           `json:"default_duration_minutes"`
	DripsStations          int           `json:"drips_stations"`
	BusinessHours          BusinessHours `json:"business_hours"`

	Notifications NotificationPrefs `json:"notifications"`
	UpdatedAt     time.Time         `json:"updated_at,omitempty"`
}

// Defaults seeds settings for clinics that never saved their own.
type Defaults struct {
	Timezone               string
	Open                   string
	Close                  string
	StepMinutes            int
	TrailingSlot           string
	ClosingCutoff          string
	DefaultDurationMinutes int
	DripsStations          int
}

// DefaultSettings returns a fresh settings value for an org.
func (d Defaults) DefaultSettings(orgID string) *Settings {
	tz := d.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	return &Settings{
		OrgID:                  orgID,
		Timezone:               tz,
		Open:                   d.Open,
		Close:                  d.Close,
		StepMinutes:            d.StepMinutes,
		TrailingSlot:           d.TrailingSlot,
		ClosingCutoff:          d.ClosingCutoff,
		DefaultDurationMinutes: d.DefaultDurationMinutes,
		DripsStations:          d.DripsStations,
		Notifications: NotificationPrefs{
			EmailPatients:   true,
			NotifyOnBooking: true,
			NotifyOnCancel:  true,
		},
	}
}

// Validate checks that every clock parses and the window is ordered.
func (s *Settings) Validate() error {
	open, err := scheduling.ParseClock(s.Open)
	if err != nil {
		return fmt.Errorf("%w: open: %v", ErrInvalidSettings, err)
	}
	closing, err := scheduling.ParseClock(s.Close)
	if err != nil {
		return fmt.Errorf("%w: close: %v", ErrInvalidSettings, err)
	}
	if closing < open {
		return fmt.Errorf("%w: close before open", ErrInvalidSettings)
	}
	if s.StepMinutes <= 0 {
		return fmt.Errorf("%w: step_minutes must be positive", ErrInvalidSettings)
	}
	if s.TrailingSlot != "" {
		if _, err := scheduling.ParseClock(s.TrailingSlot); err != nil {
			return fmt.Errorf("%w: trailing_slot: %v", ErrInvalidSettings, err)
		}
	}
	cutoff, err := scheduling.ParseClock(s.ClosingCutoff)
	if err != nil {
		return fmt.Errorf("%w: closing_cutoff: %v", ErrInvalidSettings, err)
	}
	if cutoff == 0 {
		return fmt.Errorf("%w: closing_cutoff must be after midnight", ErrInvalidSettings)
	}
	if s.DripsStations < 0 || s.DefaultDurationMinutes < 0 {
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidSettings)
	}
	for _, day := range []*DayHours{
		s.BusinessHours.Monday, s.BusinessHours.Tuesday, s.BusinessHours.Wednesday,
		s.BusinessHours.Thursday, s.BusinessHours.Friday, s.BusinessHours.Saturday, s.BusinessHours.Sunday,
	} {
		if day == nil {
			continue
		}
		if _, err := scheduling.ParseClock(day.Open); err != nil {
			return fmt.Errorf("%w: business_hours: %v", ErrInvalidSettings, err)
		}
		if _, err := scheduling.ParseClock(day.Close); err != nil {
			return fmt.Errorf("%w: business_hours: %v", ErrInvalidSettings, err)
		}
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: timezone: %v", ErrInvalidSettings, err)
	}
	return nil
}

// Cutoff is the closing cutoff as a clock; falls back to 19:00 when unparseable.
func (s *Settings) Cutoff() scheduling.Clock {
	c, err := scheduling.ParseClock(s.ClosingCutoff)
	if err != nil {
		return scheduling.DefaultClosingCutoff
	}
	return c
}

// DurationOrDefault applies the clinic default to a missing duration.
func (s *Settings) DurationOrDefault(minutes int) int {
	if minutes > 0 {
		return minutes
	}
	if s.DefaultDurationMinutes > 0 {
		return s.DefaultDurationMinutes
	}
	return scheduling.DefaultDurationMinutes
}

// Grid resolves the slot grid for a date. Per-weekday business hours override
// the default window; the trailing slot only applies to the default window.
func (s *Settings) Grid(date time.Time) (scheduling.Grid, error) {
	open, closing, trailing := s.Open, s.Close, s.TrailingSlot
	if s.BusinessHours.HasAnyHours() {
		hours := s.BusinessHours.GetHoursForDay(date.Weekday())
		if hours == nil {
			return scheduling.Grid{}, ErrClosedDay
		}
		open, closing, trailing = hours.Open, hours.Close, ""
	}

	g := scheduling.Grid{Step: time.Duration(s.StepMinutes) * time.Minute}
	var err error
	if g.Open, err = scheduling.ParseClock(open); err != nil {
		return scheduling.Grid{}, fmt.Errorf("clinic: grid open: %w", err)
	}
	if g.Close, err = scheduling.ParseClock(closing); err != nil {
		return scheduling.Grid{}, fmt.Errorf("clinic: grid close: %w", err)
	}
	if trailing != "" {
		if g.Trailing, err = scheduling.ParseClock(trailing); err != nil {
			return scheduling.Grid{}, fmt.Errorf("clinic: grid trailing: %w", err)
		}
	}
	return g, nil
}

// Today returns the current date in the clinic timezone.
func (s *Settings) Today(now time.Time) string {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return now.In(loc).Format("2006-01-02")
}

// GetHoursForDay returns the hours for a given weekday (0=Sunday, 6=Saturday).
func (b *BusinessHours) GetHoursForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return b.Sunday
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	default:
		return nil
	}
}

// HasAnyHours returns true if at least one day has business hours configured.
func (b *BusinessHours) HasAnyHours() bool {
	return b.Sunday != nil || b.Monday != nil || b.Tuesday != nil ||
		b.Wednesday != nil || b.Thursday != nil || b.Friday != nil || b.Saturday != nil
}

// SettingsReader is the read side used by the availability checker.
type SettingsReader interface {
	Get(ctx context.Context, orgID string) (*Settings, error)
}

// Store provides persistence for clinic settings. A nil redis client serves defaults only.
type Store struct {
	redis    *redis.Client
	defaults Defaults
}

// NewStore creates a new clinic settings store.
func NewStore(redisClient *redis.Client, defaults Defaults) *Store {
	return &Store{redis: redisClient, defaults: defaults}
}

func (s *Store) key(orgID string) string {
	return fmt.Sprintf("clinic:settings:%s", strings.TrimSpace(orgID))
}

// Get retrieves clinic settings, returning defaults if not found.
func (s *Store) Get(ctx context.Context, orgID string) (*Settings, error) {
	if s.redis == nil {
		return s.defaults.DefaultSettings(orgID), nil
	}
	data, err := s.redis.Get(ctx, s.key(orgID)).Bytes()
	if err == redis.Nil {
		return s.defaults.DefaultSettings(orgID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get settings: %w", err)
	}

	settings := s.defaults.DefaultSettings(orgID)
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal settings: %w", err)
	}
	return settings, nil
}

// Set saves clinic settings.
func (s *Store) Set(ctx context.Context, settings *Settings) error {
	if s.redis == nil {
		return errors.New("clinic: settings store has no redis client")
	}
	settings.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("clinic: marshal settings: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(settings.OrgID), data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set settings: %w", err)
	}
	return nil
}
