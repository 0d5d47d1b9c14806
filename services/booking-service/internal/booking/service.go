package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicsched/clinicsched/libs/db"
	otelx "github.com/clinicsched/clinicsched/libs/otel"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/availability"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/metrics"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/outbox"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	EventBooked      = "booking.appointment.booked.v1"
	EventRescheduled = "booking.appointment.rescheduled.v1"
	EventCancelled   = "booking.appointment.cancelled.v1"

	aggregateAppointment = "appointment"
)

// errRejected aborts the booking transaction after a rejection verdict.
var errRejected = errors.New("booking rejected")

// Request is a proposed booking plus where it takes place.
type Request struct {
	availability.Request
	Location string
	Room     string
}

// Outcome carries the verdict and, when accepted, the stored appointment.
type Outcome struct {
	Verdict     availability.Verdict `json:"verdict"`
	Appointment *model.Appointment   `json:"appointment,omitempty"`
}

// Service runs availability checks and turns accepted proposals into stored
// appointments. Book and Reschedule hold a per-provider advisory lock for the
// whole validate-then-write sequence and read the provider inside that
// transaction. Check and OpenSlots read through the (possibly cached) lookup.
type Service struct {
	db           db.DB
	providerRepo *storage.ProviderRepository
	providers    availability.ProviderStore
	appointments *storage.AppointmentRepository
	outbox       *outbox.Repository
	metrics      *metrics.BookingMetrics
	logger       *slog.Logger
	now          func() time.Time
	tracer       trace.Tracer
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithProviderLookup replaces the provider source of read-only operations,
// typically with a cache in front of the repository.
func WithProviderLookup(lookup availability.ProviderStore) Option {
	return func(s *Service) {
		if lookup != nil {
			s.providers = lookup
		}
	}
}

func NewService(database db.DB, providers *storage.ProviderRepository, appointments *storage.AppointmentRepository, outboxRepo *outbox.Repository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		db:           database,
		providerRepo: providers,
		providers:    providers,
		appointments: appointments,
		outbox:       outboxRepo,
		logger:       logger,
		now:          time.Now,
		tracer:       otel.Tracer("clinicsched/booking-service/booking"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) validate(ctx context.Context, op string, providers availability.ProviderStore, appts availability.AppointmentStore, req availability.Request) (availability.Verdict, error) {
	started := time.Now()
	v := availability.NewValidator(providers, appts, availability.WithClock(s.now))
	verdict, err := v.CheckSuggestedSchedule(ctx, req)
	s.metrics.ObserveCheckLatency(op, time.Since(started).Seconds())
	if err != nil {
		s.logger.Debug("schedule check failed", "operation", op, "provider_id", req.ProviderID, "err", err)
		return verdict, err
	}
	s.observe(op, req.ProviderID, verdict)
	return verdict, nil
}

func (s *Service) observe(op, providerID string, verdict availability.Verdict) {
	outcome := "accepted"
	if !verdict.Accepted {
		outcome = string(verdict.Reason)
	}
	s.metrics.ObserveVerdict(op, outcome)
	s.logger.Debug("schedule verdict", "operation", op, "provider_id", providerID, "accepted", verdict.Accepted, "reason", string(verdict.Reason))
}

// Check validates a proposal without writing anything.
func (s *Service) Check(ctx context.Context, req availability.Request) (verdict availability.Verdict, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.Check", trace.WithAttributes(attribute.String("provider_id", req.ProviderID)))
	defer func() { otelx.EndSpan(span, err) }()

	return s.validate(ctx, "check", s.providers, s.appointments, req)
}

// Book validates req and stores it as a booked appointment with a
// booked event in the outbox, all in one transaction.
func (s *Service) Book(ctx context.Context, req Request) (out Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.Book", trace.WithAttributes(attribute.String("provider_id", req.ProviderID)))
	defer func() { otelx.EndSpan(span, err) }()

	if uuid.Validate(req.PatientID) != nil {
		return Outcome{}, fmt.Errorf("%w: patientId %q is not a valid id", model.ErrInvalid, req.PatientID)
	}
	req.ExcludeAppointmentID = ""

	err = db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		appts := s.appointments.WithTx(tx)
		if err := appts.LockProvider(ctx, req.ProviderID); err != nil {
			return &availability.StoreError{Op: "lock provider", Err: err}
		}
		verdict, err := s.validate(ctx, "book", s.providerRepo.WithTx(tx), appts, req.Request)
		if err != nil {
			return err
		}
		if !verdict.Accepted {
			out = Outcome{Verdict: verdict}
			return errRejected
		}

		appt := &model.Appointment{
			PatientID:  req.PatientID,
			ProviderID: req.ProviderID,
			StartTime:  req.Start.UTC(),
			EndTime:    req.End.UTC(),
			Location:   req.Location,
			Room:       req.Room,
			Status:     model.StatusBooked,
		}
		if err := appts.Create(ctx, appt); err != nil {
			if storage.IsConflict(err) {
				out = s.lateConflict("book", req.ProviderID)
				return errRejected
			}
			return err
		}
		if err := s.emit(ctx, tx, EventBooked, appointmentEvent(appt, "")); err != nil {
			return err
		}
		out = Outcome{Verdict: availability.Accepted(), Appointment: appt}
		return nil
	})
	if errors.Is(err, errRejected) {
		return out, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	s.logger.Info("appointment booked", "appointment_id", out.Appointment.ID, "provider_id", req.ProviderID)
	return out, nil
}

// Reschedule moves a booked appointment to req.Start/req.End with the same
// provider and patient. The appointment itself is ignored by the conflict check.
func (s *Service) Reschedule(ctx context.Context, id string, req Request) (out Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.Reschedule", trace.WithAttributes(attribute.String("appointment_id", id)))
	defer func() { otelx.EndSpan(span, err) }()

	err = db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		appts := s.appointments.WithTx(tx)
		current, err := appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != model.StatusBooked {
			return fmt.Errorf("appointment %s is %s: %w", id, current.Status, model.ErrConflict)
		}
		if err := appts.LockProvider(ctx, current.ProviderID); err != nil {
			return &availability.StoreError{Op: "lock provider", Err: err}
		}

		check := req.Request
		check.ProviderID = current.ProviderID
		check.PatientID = current.PatientID
		check.ExcludeAppointmentID = current.ID
		verdict, err := s.validate(ctx, "reschedule", s.providerRepo.WithTx(tx), appts, check)
		if err != nil {
			return err
		}
		if !verdict.Accepted {
			out = Outcome{Verdict: verdict}
			return errRejected
		}

		previous := current
		moved := current
		moved.StartTime = req.Start.UTC()
		moved.EndTime = req.End.UTC()
		if req.Location != "" {
			moved.Location = req.Location
		}
		if req.Room != "" {
			moved.Room = req.Room
		}
		if err := appts.Reschedule(ctx, &moved); err != nil {
			if storage.IsConflict(err) {
				out = s.lateConflict("reschedule", current.ProviderID)
				return errRejected
			}
			return err
		}
		evt := appointmentEvent(&moved, "")
		evt.PreviousStart = previous.StartTime.UTC().Format(time.RFC3339)
		evt.PreviousEnd = previous.EndTime.UTC().Format(time.RFC3339)
		if err := s.emit(ctx, tx, EventRescheduled, evt); err != nil {
			return err
		}
		out = Outcome{Verdict: availability.Accepted(), Appointment: &moved}
		return nil
	})
	if errors.Is(err, errRejected) {
		return out, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	s.logger.Info("appointment rescheduled", "appointment_id", id)
	return out, nil
}

// Cancel marks an appointment cancelled. Cancelling a cancelled appointment
// returns it unchanged and emits nothing.
func (s *Service) Cancel(ctx context.Context, id, reason string) (appt model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(attribute.String("appointment_id", id)))
	defer func() { otelx.EndSpan(span, err) }()

	err = db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		appts := s.appointments.WithTx(tx)
		current, err := appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == model.StatusCancelled {
			appt = current
			return nil
		}
		cancelledAt, err := appts.Cancel(ctx, id, reason)
		if err != nil {
			return err
		}
		current.Status = model.StatusCancelled
		current.CancelledAt = &cancelledAt
		current.CancelReason = reason
		if err := s.emit(ctx, tx, EventCancelled, appointmentEvent(&current, reason)); err != nil {
			return err
		}
		appt = current
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// OpenSlots lists the bookable slots of a provider on a provider-local date.
// A zero step means back-to-back slots.
func (s *Service) OpenSlots(ctx context.Context, providerID string, date model.CalendarDate, duration, step time.Duration) (slots []availability.Interval, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.OpenSlots", trace.WithAttributes(
		attribute.String("provider_id", providerID),
		attribute.String("date", string(date)),
	))
	defer func() { otelx.EndSpan(span, err) }()

	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", model.ErrInvalid)
	}
	if step <= 0 {
		step = duration
	}
	year, month, day, err := date.Civil()
	if err != nil {
		return nil, err
	}

	p, err := s.providers.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc, err := p.Location()
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(year, month, day, 0, 0, 0, 0, loc)
	booked, err := s.appointments.FindAppointments(ctx, model.AppointmentFilter{
		ProviderID:  providerID,
		PeriodStart: dayStart,
		PeriodEnd:   dayStart.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, &availability.StoreError{Op: "find appointments", Err: err}
	}
	busy := make([]availability.Interval, 0, len(booked))
	for _, a := range booked {
		busy = append(busy, availability.Interval{Start: a.StartTime, End: a.EndTime})
	}
	return availability.OpenSlots(p, date, duration, step, busy, s.now())
}

// lateConflict reports a write that lost to a concurrent booking at the
// exclusion constraint.
func (s *Service) lateConflict(op, providerID string) Outcome {
	verdict := availability.Rejected(availability.ReasonOverlapping)
	s.observe(op, providerID, verdict)
	return Outcome{Verdict: verdict}
}

type appointmentPayload struct {
	AppointmentID string `json:"appointmentId"`
	ProviderID    string `json:"providerId"`
	PatientID     string `json:"patientId"`
	StartTime     string `json:"startDateTime"`
	EndTime       string `json:"endDateTime"`
	Location      string `json:"location,omitempty"`
	Room          string `json:"room,omitempty"`
	Status        string `json:"status"`
	PreviousStart string `json:"previousStartDateTime,omitempty"`
	PreviousEnd   string `json:"previousEndDateTime,omitempty"`
	CancelledAt   string `json:"cancelledAt,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func appointmentEvent(a *model.Appointment, reason string) appointmentPayload {
	p := appointmentPayload{
		AppointmentID: a.ID,
		ProviderID:    a.ProviderID,
		PatientID:     a.PatientID,
		StartTime:     a.StartTime.UTC().Format(time.RFC3339),
		EndTime:       a.EndTime.UTC().Format(time.RFC3339),
		Location:      a.Location,
		Room:          a.Room,
		Status:        a.Status,
		Reason:        reason,
	}
	if a.CancelledAt != nil {
		p.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return p
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, eventType string, payload appointmentPayload) error {
	evt, err := outbox.NewEvent(aggregateAppointment, payload.AppointmentID, eventType, payload)
	if err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("write %s outbox event: %w", eventType, err)
	}
	return nil
}
