package availability

import (
	"context"

	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// lookaheadYears bounds the forward appointment query. Exact range filtering is
// left to the store.
const lookaheadYears = 100

// AppointmentStore finds stored appointments. Implementations return only
// booked appointments unless the filter asks for cancelled ones.
type AppointmentStore interface {
	FindAppointments(ctx context.Context, filter model.AppointmentFilter) ([]model.Appointment, error)
}

// IsOverlapped reports whether iv collides with a booked appointment of the
// provider that intersects [now, now+100y). Touching boundaries do not
// collide. excludeID skips one appointment, used when rescheduling it.
func (v *Validator) IsOverlapped(ctx context.Context, providerID, patientID string, iv Interval, excludeID string) (bool, error) {
	ctx, span := v.tracer.Start(ctx, "availability.IsOverlapped", trace.WithAttributes(
		attribute.String("provider_id", providerID),
		attribute.String("patient_id", patientID),
	))
	defer span.End()

	now := v.now()
	appts, err := v.appointments.FindAppointments(ctx, model.AppointmentFilter{
		ProviderID:  providerID,
		PeriodStart: now,
		PeriodEnd:   now.AddDate(lookaheadYears, 0, 0),
	})
	if err != nil {
		return false, &StoreError{Op: "find appointments", Err: err}
	}
	span.SetAttributes(attribute.Int("appointments", len(appts)))

	for _, a := range appts {
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		if a.Status == model.StatusCancelled {
			continue
		}
		if iv.Overlaps(Interval{Start: a.StartTime, End: a.EndTime}) {
			return true, nil
		}
	}
	return false, nil
}
