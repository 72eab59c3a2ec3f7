package scheduling

import "fmt"

// Interval is a half-open [Start, End) span on a single date.
type Interval struct {
	Start Clock
	End   Clock
}

// Overlaps reports whether two half-open intervals intersect. Touching
// boundaries (one ends exactly when the other starts) do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return other.End > i.Start && other.Start < i.End
}

// Minutes is the interval length.
func (i Interval) Minutes() int {
	return int(i.End - i.Start)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start, i.End)
}

// DurationOrDefault returns minutes, or DefaultDurationMinutes when unset.
func DurationOrDefault(minutes int) int {
	if minutes <= 0 {
		return DefaultDurationMinutes
	}
	return minutes
}

// Span builds the unwrapped interval for a start and a duration. The end may run
// past midnight; callers compare it against the closing cutoff.
func Span(start Clock, minutes int) (Interval, error) {
	if minutes < 0 {
		return Interval{}, ErrNegativeDuration
	}
	return Interval{Start: start, End: start.Add(minutes)}, nil
}

// EndTime adds minutes to an HH:MM start and renders the wall-clock end as HH:MM:SS.
// Rollover past midnight wraps ("23:50" + 30 -> "00:20:00").
func EndTime(start string, minutes int) (string, error) {
	c, err := ParseClock(start)
	if err != nil {
		return "", err
	}
	span, err := Span(c, minutes)
	if err != nil {
		return "", err
	}
	return span.End.HMS(), nil
}

// PastClosing reports whether an end time is at or after the cutoff.
func PastClosing(end, cutoff Clock) bool {
	return end >= cutoff
}
