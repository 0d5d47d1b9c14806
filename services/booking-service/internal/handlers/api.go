package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/clinicsched/clinicsched/services/booking-service/internal/availability"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/booking"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
)

type ProviderStore interface {
	Create(ctx context.Context, p *model.Provider) error
	GetProvider(ctx context.Context, id string) (*model.Provider, error)
	List(ctx context.Context, limit, offset int) ([]*model.Provider, error)
	Update(ctx context.Context, p *model.Provider) error
	Delete(ctx context.Context, id string) error
}

type PatientStore interface {
	Create(ctx context.Context, p *model.Patient) error
	Get(ctx context.Context, id string) (*model.Patient, error)
	List(ctx context.Context, limit, offset int) ([]*model.Patient, error)
	Update(ctx context.Context, p *model.Patient) error
	Delete(ctx context.Context, id string) error
}

type AppointmentReader interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
	FindAppointments(ctx context.Context, filter model.AppointmentFilter) ([]model.Appointment, error)
}

// Scheduler is implemented by *booking.Service.
type Scheduler interface {
	Check(ctx context.Context, req availability.Request) (availability.Verdict, error)
	Book(ctx context.Context, req booking.Request) (booking.Outcome, error)
	Reschedule(ctx context.Context, id string, req booking.Request) (booking.Outcome, error)
	Cancel(ctx context.Context, id, reason string) (model.Appointment, error)
	OpenSlots(ctx context.Context, providerID string, date model.CalendarDate, duration, step time.Duration) ([]availability.Interval, error)
}

// ProviderInvalidator drops cached provider copies after writes.
type ProviderInvalidator interface {
	Invalidate(ctx context.Context, id string)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, string) {}

// API serves the JSON REST surface of the booking service.
type API struct {
	providers    ProviderStore
	patients     PatientStore
	appointments AppointmentReader
	scheduler    Scheduler
	cache        ProviderInvalidator
	logger       *slog.Logger
	now          func() time.Time
}

type Deps struct {
	Providers    ProviderStore
	Patients     PatientStore
	Appointments AppointmentReader
	Scheduler    Scheduler
	Cache        ProviderInvalidator
	Logger       *slog.Logger
	Now          func() time.Time
}

func NewAPI(d Deps) *API {
	a := &API{
		providers:    d.Providers,
		patients:     d.Patients,
		appointments: d.Appointments,
		scheduler:    d.Scheduler,
		cache:        d.Cache,
		logger:       d.Logger,
		now:          d.Now,
	}
	if a.cache == nil {
		a.cache = noopInvalidator{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}
