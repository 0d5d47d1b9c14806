package availability

import "github.com/clinicsched/clinicsched/services/booking-service/internal/model"

// IsBlocked reports whether iv touches any of the provider's blackout
// periods. Overrides are checked in list order. An override without a shift
// blocks its whole date range; one with a shift blocks only the windows
// listed for the weekday of iv, anchored on the local date of iv.Start.
func IsBlocked(p *model.Provider, iv Interval) (bool, error) {
	loc, err := p.Location()
	if err != nil {
		return false, err
	}
	date := LocalDate(iv.Start, loc)
	weekday := WeekdayName(iv.Start, loc)

	for _, o := range p.BlockedShifts {
		span, ok := dateRangeSpan(o.DateRange, loc)
		if !ok || !span.Overlaps(iv) {
			continue
		}
		if o.Shift == nil {
			return true, nil
		}
		windows, _ := o.Shift.Windows(weekday)
		for _, w := range windows {
			blocked, ok := anchorWindow(w, date, loc)
			if ok && blocked.Overlaps(iv) {
				return true, nil
			}
		}
	}
	return false, nil
}
