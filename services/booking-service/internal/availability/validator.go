package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidInterval is returned for a proposed interval that does not end after it starts.
var ErrInvalidInterval = fmt.Errorf("%w: interval must end after it starts", model.ErrInvalid)

type Reason string

const (
	ReasonProviderNotFound Reason = "provider not found"
	ReasonBlocked          Reason = "blocked schedule"
	ReasonNotAvailable     Reason = "not available"
	ReasonOverlapping      Reason = "overlapping appointment"
)

var reasonMessages = map[Reason]string{
	ReasonProviderNotFound: "Searching a provider using the given ID failed",
	ReasonBlocked:          "The suggested appointment conflicts with the provider's blocked schedule",
	ReasonNotAvailable:     "The provider is not available during the suggested appointment period",
	ReasonOverlapping:      "Overlapped appointment",
}

// Message is the human-readable text for a rejection reason.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return string(r)
}

// Verdict is the outcome of CheckSuggestedSchedule. Reason is empty when accepted.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
}

func Accepted() Verdict { return Verdict{Accepted: true} }

func Rejected(r Reason) Verdict {
	return Verdict{Reason: r, Message: r.Message()}
}

// StoreError is an infrastructure failure while reading a store. It is never
// a policy rejection and is not retried here.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// ProviderStore loads providers. A missing provider is reported with an
// error wrapping model.ErrNotFound.
type ProviderStore interface {
	GetProvider(ctx context.Context, id string) (*model.Provider, error)
}

// Request is a proposed booking.
type Request struct {
	ProviderID string
	PatientID  string
	Start      time.Time
	End        time.Time
	// ExcludeAppointmentID ignores one stored appointment in the conflict check.
	ExcludeAppointmentID string
}

func (r Request) Interval() Interval {
	return Interval{Start: r.Start, End: r.End}
}

// Validator combines the blackout, availability and conflict resolvers into a
// single verdict. It holds no mutable state and is safe for concurrent use.
type Validator struct {
	providers    ProviderStore
	appointments AppointmentStore
	now          func() time.Time
	tracer       trace.Tracer
}

type Option func(*Validator)

// WithClock overrides the clock that anchors the forward appointment query.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(v *Validator) {
		if t != nil {
			v.tracer = t
		}
	}
}

func NewValidator(providers ProviderStore, appointments AppointmentStore, opts ...Option) *Validator {
	v := &Validator{
		providers:    providers,
		appointments: appointments,
		now:          time.Now,
		tracer:       otel.Tracer("clinicsched/booking-service/availability"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// CheckSuggestedSchedule loads the provider and runs blackout, availability
// and conflict checks in that order, stopping at the first rejection.
// Store failures and unusable provider time zones are returned as errors.
func (v *Validator) CheckSuggestedSchedule(ctx context.Context, req Request) (verdict Verdict, err error) {
	ctx, span := v.tracer.Start(ctx, "availability.CheckSuggestedSchedule", trace.WithAttributes(
		attribute.String("provider_id", req.ProviderID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Bool("accepted", verdict.Accepted), attribute.String("reason", string(verdict.Reason)))
		}
		span.End()
	}()

	iv := req.Interval()
	if !iv.Valid() {
		return Verdict{}, ErrInvalidInterval
	}

	provider, err := v.providers.GetProvider(ctx, req.ProviderID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Rejected(ReasonProviderNotFound), nil
		}
		return Verdict{}, &StoreError{Op: "get provider", Err: err}
	}
	if provider == nil {
		return Rejected(ReasonProviderNotFound), nil
	}

	blocked, err := IsBlocked(provider, iv)
	if err != nil {
		return Verdict{}, err
	}
	if blocked {
		return Rejected(ReasonBlocked), nil
	}

	available, err := IsAvailable(provider, iv)
	if err != nil {
		return Verdict{}, err
	}
	if !available {
		return Rejected(ReasonNotAvailable), nil
	}

	overlapped, err := v.IsOverlapped(ctx, req.ProviderID, req.PatientID, iv, req.ExcludeAppointmentID)
	if err != nil {
		return Verdict{}, err
	}
	if overlapped {
		return Rejected(ReasonOverlapping), nil
	}
	return Accepted(), nil
}
