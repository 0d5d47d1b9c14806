package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Valid() bool {
	return iv.End.After(iv.Start)
}

// Overlaps uses the blackout convention: intervals intersect unless one ends
// at or before the other starts, so back-to-back intervals do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.End.After(other.Start) && other.End.After(iv.Start)
}

// Contains reports whether other lies within iv, inclusive at both ends.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

func overlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}
