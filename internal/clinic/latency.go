package clinic

import (
	"fmt"
	"math"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// BookingLatencyMetric is the histogram the dashboard summarizes.
const BookingLatencyMetric = "clinicops_booking_latency_seconds"

// LatencySnapshot summarizes successful booking writes.
type LatencySnapshot struct {
	Total   int64           `json:"total"`
	P50Ms   float64         `json:"p50_ms"`
	P90Ms   float64         `json:"p90_ms"`
	P95Ms   float64         `json:"p95_ms"`
	Buckets []LatencyBucket `json:"buckets"`
}

// LatencyBucket counts samples in (previous bound, LeSeconds]. The overflow
// bucket repeats the last finite bound and carries a ">" label.
type LatencyBucket struct {
	LeSeconds float64 `json:"le_seconds"`
	Label     string  `json:"label,omitempty"`
	Count     int64   `json:"count"`
}

// latencyHistogram merges cumulative buckets from one or more series.
type latencyHistogram struct {
	count uint64
	cum   map[float64]uint64
}

func newLatencyHistogram() *latencyHistogram {
	return &latencyHistogram{cum: map[float64]uint64{}}
}

func (h *latencyHistogram) add(src *dto.Histogram) {
	h.count += src.GetSampleCount()
	for _, b := range src.GetBucket() {
		if b == nil || math.IsInf(b.GetUpperBound(), 1) {
			continue
		}
		h.cum[b.GetUpperBound()] += b.GetCumulativeCount()
	}
}

func (h *latencyHistogram) bounds() []float64 {
	out := make([]float64, 0, len(h.cum))
	for ub := range h.cum {
		out = append(out, ub)
	}
	sort.Float64s(out)
	return out
}

// quantile interpolates linearly inside the bucket holding the q-th sample.
// Samples beyond the last finite bound report that bound.
func (h *latencyHistogram) quantile(q float64) float64 {
	if h.count == 0 || q <= 0 {
		return 0
	}
	bounds := h.bounds()
	if len(bounds) == 0 {
		return 0
	}
	target := q * float64(h.count)
	lower, below := 0.0, 0.0
	for _, ub := range bounds {
		at := float64(h.cum[ub])
		if at >= target {
			inBucket := at - below
			if inBucket <= 0 {
				return ub
			}
			return lower + (ub-lower)*math.Min(1, (target-below)/inBucket)
		}
		lower, below = ub, at
	}
	return bounds[len(bounds)-1]
}

func (h *latencyHistogram) snapshot() LatencySnapshot {
	if h.count == 0 {
		return LatencySnapshot{}
	}
	bounds := h.bounds()
	buckets := make([]LatencyBucket, 0, len(bounds)+1)
	var seen uint64
	for _, ub := range bounds {
		at := h.cum[ub]
		buckets = append(buckets, LatencyBucket{LeSeconds: ub, Count: int64(subFloor(at, seen))})
		if at > seen {
			seen = at
		}
	}
	if overflow := subFloor(h.count, seen); overflow > 0 && len(bounds) > 0 {
		last := bounds[len(bounds)-1]
		buckets = append(buckets, LatencyBucket{
			LeSeconds: last,
			Label:     ">" + formatSeconds(last),
			Count:     int64(overflow),
		})
	}
	return LatencySnapshot{
		Total:   int64(h.count),
		P50Ms:   h.quantile(0.50) * 1000,
		P90Ms:   h.quantile(0.90) * 1000,
		P95Ms:   h.quantile(0.95) * 1000,
		Buckets: buckets,
	}
}

func subFloor(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// gatherBookingLatency merges the status="ok" series overall and per service line.
func gatherBookingLatency(gatherer prometheus.Gatherer) (LatencySnapshot, map[string]LatencySnapshot) {
	if gatherer == nil {
		return LatencySnapshot{}, nil
	}
	families, err := gatherer.Gather()
	if err != nil {
		return LatencySnapshot{}, nil
	}

	all := newLatencyHistogram()
	perLine := map[string]*latencyHistogram{}
	for _, mf := range families {
		if mf.GetName() != BookingLatencyMetric {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := labelMap(m)
			if labels["status"] != "ok" || m.GetHistogram() == nil {
				continue
			}
			all.add(m.GetHistogram())
			line := labels["service_line"]
			if perLine[line] == nil {
				perLine[line] = newLatencyHistogram()
			}
			perLine[line].add(m.GetHistogram())
		}
	}
	if all.count == 0 {
		return LatencySnapshot{}, nil
	}
	byLine := make(map[string]LatencySnapshot, len(perLine))
	for line, h := range perLine {
		byLine[line] = h.snapshot()
	}
	return all.snapshot(), byLine
}

func labelMap(m *dto.Metric) map[string]string {
	out := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func formatSeconds(seconds float64) string {
	switch {
	case seconds <= 0:
		return "0s"
	case seconds < 1:
		return fmt.Sprintf("%.2fs", seconds)
	case seconds < 10:
		return fmt.Sprintf("%.1fs", seconds)
	default:
		return fmt.Sprintf("%.0fs", seconds)
	}
}
