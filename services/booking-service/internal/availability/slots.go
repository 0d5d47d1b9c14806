package availability

import (
	"sort"
	"time"

	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
)

// AvailableSlots returns slot start times within [windowStart, windowEnd) where a booking of
// length duration would not overlap any of the busy intervals.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}
	if windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(Interval{Start: t, End: t.Add(duration)}, busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

// OpenSlots lists bookable intervals of length duration on a provider-local
// date, stepping through each effective window. Every candidate must pass
// IsBlocked and IsAvailable, must not overlap busy and must not start before now.
func OpenSlots(p *model.Provider, date model.CalendarDate, duration, step time.Duration, busy []Interval, now time.Time) ([]Interval, error) {
	windows, err := EffectiveWindows(p, date)
	if err != nil {
		return nil, err
	}

	seen := map[int64]bool{}
	var out []Interval
	for _, w := range windows {
		for _, start := range AvailableSlots(w.Start, w.End, duration, step, busy, now) {
			key := start.UnixNano()
			if seen[key] {
				continue
			}
			candidate := Interval{Start: start, End: start.Add(duration)}
			blocked, err := IsBlocked(p, candidate)
			if err != nil {
				return nil, err
			}
			if blocked {
				continue
			}
			available, err := IsAvailable(p, candidate)
			if err != nil {
				return nil, err
			}
			if !available {
				continue
			}
			seen[key] = true
			out = append(out, candidate)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
