package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid marks input rejected at the store/API boundary.
var ErrInvalid = errors.New("invalid")

const dateLayout = "2006-01-02"

// TimeOfDay is a provider-local wall clock time in "HH:MM" form. "24:00" is
// accepted as the end of a day.
type TimeOfDay string

// Clock parses the value into hour and minute.
func (t TimeOfDay) Clock() (hour, minute int, err error) {
	s := string(t)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || !twoDigits(hh) || !twoDigits(mm) {
		return 0, 0, fmt.Errorf("%w: time of day %q must be HH:MM", ErrInvalid, s)
	}
	hour, err = strconv.Atoi(hh)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time of day %q must be HH:MM", ErrInvalid, s)
	}
	minute, err = strconv.Atoi(mm)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time of day %q must be HH:MM", ErrInvalid, s)
	}
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, 0, fmt.Errorf("%w: time of day %q out of range", ErrInvalid, s)
	}
	return hour, minute, nil
}

func twoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// Minutes returns minutes since local midnight.
func (t TimeOfDay) Minutes() (int, error) {
	h, m, err := t.Clock()
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// CalendarDate is a provider-local calendar date in "YYYY-MM-DD" form.
type CalendarDate string

// Civil returns the year, month and day of the date.
func (d CalendarDate) Civil() (year int, month time.Month, day int, err error) {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalid, string(d))
	}
	return t.Year(), t.Month(), t.Day(), nil
}

// AddDays shifts the date by n calendar days.
func (d CalendarDate) AddDays(n int) (CalendarDate, error) {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return "", fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalid, string(d))
	}
	return CalendarDate(t.AddDate(0, 0, n).Format(dateLayout)), nil
}

// DateOf formats the civil date of t as seen in t's own location.
func DateOf(t time.Time) CalendarDate {
	return CalendarDate(t.Format(dateLayout))
}

type TimeWindow struct {
	Start TimeOfDay `json:"start" yaml:"start"`
	End   TimeOfDay `json:"end" yaml:"end"`
}

func (w TimeWindow) Validate() error {
	start, err := w.Start.Minutes()
	if err != nil {
		return err
	}
	end, err := w.End.Minutes()
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("%w: window %s-%s must start before it ends", ErrInvalid, w.Start, w.End)
	}
	return nil
}

// WeeklyTemplate maps a weekday name (Sunday..Saturday) to its open windows.
// A missing key and a present key with no windows are distinct: see
// availability.IsAvailable.
type WeeklyTemplate map[string][]TimeWindow

var weekdayNames = map[string]bool{
	"Sunday": true, "Monday": true, "Tuesday": true, "Wednesday": true,
	"Thursday": true, "Friday": true, "Saturday": true,
}

// Windows returns the windows listed for weekday and whether the weekday has an entry.
func (w WeeklyTemplate) Windows(weekday string) ([]TimeWindow, bool) {
	windows, ok := w[weekday]
	return windows, ok
}

func (w WeeklyTemplate) Validate() error {
	var errs []error
	for day, windows := range w {
		if !weekdayNames[day] {
			errs = append(errs, fmt.Errorf("%w: unknown weekday %q", ErrInvalid, day))
			continue
		}
		for i, win := range windows {
			if err := win.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w", day, i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// DateRange is an inclusive span of provider-local calendar dates.
type DateRange struct {
	StartDate CalendarDate `json:"startDate" yaml:"startDate"`
	EndDate   CalendarDate `json:"endDate" yaml:"endDate"`
}

func (r DateRange) Validate() error {
	if _, _, _, err := r.StartDate.Civil(); err != nil {
		return err
	}
	if _, _, _, err := r.EndDate.Civil(); err != nil {
		return err
	}
	// YYYY-MM-DD sorts lexically.
	if r.EndDate < r.StartDate {
		return fmt.Errorf("%w: endDate %s is before startDate %s", ErrInvalid, r.EndDate, r.StartDate)
	}
	return nil
}

// ScheduledOverride replaces the regular template for every date in its range.
type ScheduledOverride struct {
	DateRange `yaml:",inline"`
	Shift     WeeklyTemplate `json:"shift" yaml:"shift"`
}

func (o ScheduledOverride) Validate() error {
	return errors.Join(o.DateRange.Validate(), o.Shift.Validate())
}

// BlockedOverride is a blackout. A nil Shift blocks the whole date range;
// otherwise only the listed weekly windows inside the range are blocked.
type BlockedOverride struct {
	DateRange `yaml:",inline"`
	Shift     *WeeklyTemplate `json:"shift,omitempty" yaml:"shift,omitempty"`
}

func (o BlockedOverride) Validate() error {
	err := o.DateRange.Validate()
	if o.Shift != nil {
		err = errors.Join(err, o.Shift.Validate())
	}
	return err
}

// ErrNotFound is returned by stores when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with existing state, such as a
// duplicate userName or a provider that still has appointments.
var ErrConflict = errors.New("conflict")
