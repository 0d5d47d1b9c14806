package availability

import (
	"time"

	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
)

// LocalDate is the calendar date t falls on in loc.
func LocalDate(t time.Time, loc *time.Location) model.CalendarDate {
	return model.DateOf(t.In(loc))
}

// WeekdayName is the English weekday name of t's local date in loc.
func WeekdayName(t time.Time, loc *time.Location) string {
	return t.In(loc).Weekday().String()
}

// AnchoredInstant places a local wall-clock time on a local date. The UTC
// offset is the one in force in loc on that date, so DST transitions are
// honoured; "24:00" yields the following midnight.
func AnchoredInstant(date model.CalendarDate, tod model.TimeOfDay, loc *time.Location) (time.Time, error) {
	y, m, d, err := date.Civil()
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := tod.Clock()
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, m, d, hour, minute, 0, 0, loc), nil
}

// localMidnight is the first instant of date in loc.
func localMidnight(date model.CalendarDate, loc *time.Location) (time.Time, error) {
	return AnchoredInstant(date, "00:00", loc)
}

// dateRangeSpan converts an inclusive local date range into the instant
// range [midnight(StartDate), midnight(EndDate+1)). ok is false for
// malformed dates, which never match anything.
func dateRangeSpan(r model.DateRange, loc *time.Location) (Interval, bool) {
	start, err := localMidnight(r.StartDate, loc)
	if err != nil {
		return Interval{}, false
	}
	next, err := r.EndDate.AddDays(1)
	if err != nil {
		return Interval{}, false
	}
	end, err := localMidnight(next, loc)
	if err != nil {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// anchorWindow places a weekly window on a concrete local date.
func anchorWindow(w model.TimeWindow, date model.CalendarDate, loc *time.Location) (Interval, bool) {
	start, err := AnchoredInstant(date, w.Start, loc)
	if err != nil {
		return Interval{}, false
	}
	end, err := AnchoredInstant(date, w.End, loc)
	if err != nil {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

func claimsDate(r model.DateRange, date model.CalendarDate) bool {
	return r.StartDate <= date && date <= r.EndDate
}
