package availability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
)

func utc(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func span(t *testing.T, start, end string) Interval {
	t.Helper()
	return Interval{Start: utc(t, start), End: utc(t, end)}
}

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return loc
}

func window(start, end string) model.TimeWindow {
	return model.TimeWindow{Start: model.TimeOfDay(start), End: model.TimeOfDay(end)}
}

func dates(start, end string) model.DateRange {
	return model.DateRange{StartDate: model.CalendarDate(start), EndDate: model.CalendarDate(end)}
}

// mondayProvider works 09:00-12:00 on Mondays and 08:00-12:00 on Tuesdays, Chicago time.
func mondayProvider() *model.Provider {
	return &model.Provider{
		ID:       "prov-1",
		TimeZone: "America/Chicago",
		RegularShift: model.WeeklyTemplate{
			"Monday":  {window("09:00", "12:00")},
			"Tuesday": {window("08:00", "12:00")},
		},
	}
}

type fakeProviders struct {
	providers map[string]*model.Provider
	err       error
	calls     int
}

func (f *fakeProviders) GetProvider(_ context.Context, id string) (*model.Provider, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.providers[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return p, nil
}

type fakeAppointments struct {
	mu      sync.Mutex
	appts   []model.Appointment
	err     error
	calls   int
	filters []model.AppointmentFilter
	creates int
}

func (f *fakeAppointments) FindAppointments(_ context.Context, filter model.AppointmentFilter) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Appointment
	for _, a := range f.appts {
		if filter.ProviderID != "" && a.ProviderID != filter.ProviderID {
			continue
		}
		if !filter.IncludeCancelled && a.Status == model.StatusCancelled {
			continue
		}
		if !filter.PeriodStart.IsZero() && !a.EndTime.After(filter.PeriodStart) {
			continue
		}
		if !filter.PeriodEnd.IsZero() && !a.StartTime.Before(filter.PeriodEnd) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAppointments) create(a model.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if a.Status == "" {
		a.Status = model.StatusBooked
	}
	f.appts = append(f.appts, a)
}
