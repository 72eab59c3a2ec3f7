package scheduling

import "time"

// DefaultStep is the grid increment used by every booking calendar.
const DefaultStep = 15 * time.Minute

// DefaultDurationMinutes applies when a service or sub-service carries no duration.
const DefaultDurationMinutes = 60

// Grid describes an operating window rendered as fixed-increment slot labels.
type Grid struct {
	Open  Clock
	Close Clock
	Step  time.Duration
	// Trailing is an extra last slot beyond Close (e.g. 18:45). Zero disables it.
	Trailing Clock
}

// Slots returns the ordered HH:MM labels from Open to Close inclusive, followed by
// the trailing slot when it lies after the last regular label.
func Slots(g Grid) []string {
	step := int(g.Step / time.Minute)
	if step <= 0 {
		step = int(DefaultStep / time.Minute)
	}
	if g.Close < g.Open {
		return nil
	}

	labels := make([]string, 0, int(g.Close-g.Open)/step+2)
	last := Clock(-1)
	for c := g.Open; c <= g.Close; c = c.Add(step) {
		labels = append(labels, c.String())
		last = c
	}
	if g.Trailing > 0 && g.Trailing > last {
		labels = append(labels, g.Trailing.String())
	}
	return labels
}

// SlotClocks is Slots without the string rendering.
func SlotClocks(g Grid) []Clock {
	labels := Slots(g)
	out := make([]Clock, 0, len(labels))
	for _, l := range labels {
		out = append(out, MustClock(l))
	}
	return out
}
