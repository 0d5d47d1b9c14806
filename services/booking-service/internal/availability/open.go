package availability

import (
	"time"

	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
)

// IsAvailable reports whether iv fits inside an open working window.
//
// Scheduled overrides are walked in list order. An override applies when its
// local date range contains iv. When an applicable override has no entry at
// all for the weekday of iv it claims the date: the answer is false, with no
// fallback to later overrides or the regular template. When the entry exists
// but no window contains iv, the next override is tried. The regular template
// is consulted only when no override's date range contains iv.
func IsAvailable(p *model.Provider, iv Interval) (bool, error) {
	loc, err := p.Location()
	if err != nil {
		return false, err
	}
	date := LocalDate(iv.Start, loc)
	weekday := WeekdayName(iv.Start, loc)

	everContained := false
	for _, o := range p.ScheduledShifts {
		span, ok := dateRangeSpan(o.DateRange, loc)
		if !ok || !span.Contains(iv) {
			continue
		}
		everContained = true

		windows, listed := o.Shift.Windows(weekday)
		if !listed {
			return false, nil
		}
		if windowsContain(windows, date, loc, iv) {
			return true, nil
		}
	}
	if everContained {
		return false, nil
	}

	windows, _ := p.RegularShift.Windows(weekday)
	return windowsContain(windows, date, loc, iv), nil
}

func windowsContain(windows []model.TimeWindow, date model.CalendarDate, loc *time.Location, iv Interval) bool {
	for _, w := range windows {
		open, ok := anchorWindow(w, date, loc)
		if ok && open.Contains(iv) {
			return true
		}
	}
	return false
}

// EffectiveWindows lists the windows that may admit bookings on a local date:
// those of every scheduled override claiming the date, up to the first one
// that leaves the weekday unlisted, or the regular template when none does.
// Callers still confirm each candidate with IsAvailable and IsBlocked.
func EffectiveWindows(p *model.Provider, date model.CalendarDate) ([]Interval, error) {
	loc, err := p.Location()
	if err != nil {
		return nil, err
	}
	midnight, err := localMidnight(date, loc)
	if err != nil {
		return nil, err
	}
	weekday := midnight.Weekday().String()

	var (
		templates []model.TimeWindow
		claimed   bool
	)
	for _, o := range p.ScheduledShifts {
		if !claimsDate(o.DateRange, date) {
			continue
		}
		claimed = true
		windows, listed := o.Shift.Windows(weekday)
		if !listed {
			break
		}
		templates = append(templates, windows...)
	}
	if !claimed {
		templates, _ = p.RegularShift.Windows(weekday)
	}

	out := make([]Interval, 0, len(templates))
	for _, w := range templates {
		if iv, ok := anchorWindow(w, date, loc); ok && iv.Valid() {
			out = append(out, iv)
		}
	}
	return out, nil
}
