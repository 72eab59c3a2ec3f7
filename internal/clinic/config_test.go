package clinic

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinic-ops-platform/internal/scheduling"
)

var testDefaults = Defaults{
	Timezone:               "America/New_York",
	Open:                   "08:00",
	Close:                  "18:00",
	StepMinutes:            15,
	TrailingSlot:           "18:45",
	ClosingCutoff:          "19:00",
	DefaultDurationMinutes: 60,
	DripsStations:          5,
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, testDefaults), mr
}

func TestDefaultSettingsGrid(t *testing.T) {
	s := testDefaults.DefaultSettings("org-1")
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	g, err := s.Grid(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	slots := scheduling.Slots(g)
	if slots[0] != "08:00" || slots[len(slots)-1] != "18:45" {
		t.Fatalf("unexpected grid bounds %s..%s", slots[0], slots[len(slots)-1])
	}
	if s.Cutoff() != scheduling.MustClock("19:00") {
		t.Fatalf("unexpected cutoff %s", s.Cutoff())
	}
}

func TestGridUsesBusinessHours(t *testing.T) {
	s := testDefaults.DefaultSettings("org-1")
	s.BusinessHours = BusinessHours{Monday: &DayHours{Open: "09:00", Close: "12:00"}}

	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	g, err := s.Grid(monday)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	slots := scheduling.Slots(g)
	if slots[0] != "09:00" || slots[len(slots)-1] != "12:00" {
		t.Fatalf("business hours should replace default window and trailing slot, got %v", slots)
	}

	if _, err := s.Grid(monday.AddDate(0, 0, 1)); !errors.Is(err, ErrClosedDay) {
		t.Fatalf("expected ErrClosedDay for tuesday, got %v", err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := map[string]func(s *Settings){
		"bad open":        func(s *Settings) { s.Open = "8am" },
		"inverted":        func(s *Settings) { s.Open, s.Close = "18:00", "08:00" },
		"zero step":       func(s *Settings) { s.StepMinutes = 0 },
		"bad cutoff":      func(s *Settings) { s.ClosingCutoff = "25:00" },
		"midnight cutoff": func(s *Settings) { s.ClosingCutoff = "00:00" },
		"bad timezone":    func(s *Settings) { s.Timezone = "Mars/Olympus" },
		"negative pool":   func(s *Settings) { s.DripsStations = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := testDefaults.DefaultSettings("org-1")
			mutate(s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidSettings) {
				t.Fatalf("expected ErrInvalidSettings, got %v", err)
			}
		})
	}
}

func TestDurationOrDefault(t *testing.T) {
	s := testDefaults.DefaultSettings("org-1")
	s.DefaultDurationMinutes = 30
	if got := s.DurationOrDefault(0); got != 30 {
		t.Fatalf("expected clinic default 30, got %d", got)
	}
	if got := s.DurationOrDefault(90); got != 90 {
		t.Fatalf("expected explicit 90, got %d", got)
	}
}

func TestStoreGetReturnsDefaultsWhenMissing(t *testing.T) {
	store, _ := newTestStore(t)
	s, err := store.Get(context.Background(), "org-new")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.OrgID != "org-new" || s.DripsStations != 5 {
		t.Fatalf("unexpected defaults %+v", s)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	s := testDefaults.DefaultSettings("org-1")
	s.Name = "Harbor Wellness"
	s.DripsStations = 8
	if err := store.Set(ctx, s); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("clinic:settings:org-1") {
		t.Fatalf("expected settings key in redis")
	}

	got, err := store.Get(ctx, "org-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Harbor Wellness" || got.DripsStations != 8 {
		t.Fatalf("unexpected settings %+v", got)
	}
}

func TestStoreWithoutRedisServesDefaults(t *testing.T) {
	store := NewStore(nil, testDefaults)
	s, err := store.Get(context.Background(), "org-1")
	if err != nil || s.Open != "08:00" {
		t.Fatalf("expected defaults, got %+v %v", s, err)
	}
	if err := store.Set(context.Background(), s); err == nil {
		t.Fatalf("expected set to fail without redis")
	}
}

func TestToday(t *testing.T) {
	s := testDefaults.DefaultSettings("org-1")
	// 02:00 UTC is still the previous evening in New York.
	now := time.Date(2025, 6, 3, 2, 0, 0, 0, time.UTC)
	if got := s.Today(now); got != "2025-06-02" {
		t.Fatalf("expected clinic-local date, got %s", got)
	}
}
