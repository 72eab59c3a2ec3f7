// Package scheduling holds the pure slot, duration and overlap arithmetic shared by
// every bookable service line. Nothing in here performs I/O.
package scheduling

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

var (
	// ErrInvalidClock is returned for time-of-day strings that are not HH:MM or HH:MM:SS.
	ErrInvalidClock = errors.New("scheduling: invalid time of day")

	// ErrNegativeDuration is returned when a duration below zero is supplied.
	ErrNegativeDuration = errors.New("scheduling: duration must not be negative")
)

// Clock is a wall-clock time expressed in minutes since midnight.
// Values past 23:59 are allowed for unwrapped interval ends.
type Clock int

// ParseClock accepts "HH:MM" or "HH:MM:SS". Seconds are truncated.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 || len(parts[0]) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 || len(parts[2]) != 2 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}
	return Clock(h*60 + m), nil
}

// MustClock is ParseClock for constants; it panics on bad input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Add returns the clock shifted by minutes without wrapping.
func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

// Wrapped folds the clock back into a single day.
func (c Clock) Wrapped() Clock {
	w := int(c) % minutesPerDay
	if w < 0 {
		w += minutesPerDay
	}
	return Clock(w)
}

// String renders HH:MM on the wall clock.
func (c Clock) String() string {
	w := int(c.Wrapped())
	return fmt.Sprintf("%02d:%02d", w/60, w%60)
}

// HMS renders HH:MM:SS on the wall clock, the format stored in appointment rows.
func (c Clock) HMS() string {
	return c.String() + ":00"
}

// CrossesMidnight reports whether an unwrapped clock has run into the next day.
func (c Clock) CrossesMidnight() bool {
	return c >= minutesPerDay
}
