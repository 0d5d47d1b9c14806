package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/clinicsched/clinicsched/services/booking-service/internal/availability"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/metrics"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/outbox"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	providerID = "6b1f7f3e-8f51-4c1a-9a52-3a2f0a1c2b10"
	patientID  = "0c9e6a4d-2f1b-4e7a-8b3c-5d6e7f809a1b"
	apptID     = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
	otherAppt  = "1b2c3d4e-5f60-4a7b-8c9d-0e1f2a3b4c5d"
)

var (
	clock           = time.Date(2020, 10, 1, 0, 0, 0, 0, time.UTC)
	appointmentCols = []string{
		"id", "patient_id", "provider_id", "start_time", "end_time", "location", "room", "status",
		"cancelled_at", "cancellation_reason", "created_at", "updated_at",
	}
	providerCols = []string{
		"id", "user_name", "first_name", "middle_name", "last_name", "degree", "email", "phone", "address",
		"is_accepting_new_patient", "languages_spoken", "npi", "education", "biography", "affiliation",
		"time_zone", "regular_shift", "scheduled_shifts", "blocked_shifts", "created_at", "updated_at",
	}
)

type fakeProviders map[string]*model.Provider

func (f fakeProviders) GetProvider(_ context.Context, id string) (*model.Provider, error) {
	p, ok := f[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return p, nil
}

// provider works 09:00-12:00 Chicago time on Mondays.
func provider() *model.Provider {
	return &model.Provider{
		ID:       providerID,
		TimeZone: "America/Chicago",
		RegularShift: model.WeeklyTemplate{
			"Monday": {{Start: "09:00", End: "12:00"}},
		},
	}
}

func at(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

type fixture struct {
	t    *testing.T
	mock pgxmock.PgxPoolIface
	svc  *Service
	reg  *prometheus.Registry
	p    *model.Provider
}

// newFixture serves p both from the stored row read inside booking
// transactions and from the read-only lookup.
func newFixture(t *testing.T, p *model.Provider) *fixture {
	return newFixtureWithLookup(t, p, p)
}

func newFixtureWithLookup(t *testing.T, stored, cached *model.Provider) *fixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	reg := prometheus.NewRegistry()
	svc := NewService(mock, storage.NewProviderRepository(mock), storage.NewAppointmentRepository(mock), outbox.NewRepository(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return clock }),
		WithMetrics(metrics.NewBookingMetrics(reg)),
		WithProviderLookup(fakeProviders{providerID: cached}),
	)
	return &fixture{t: t, mock: mock, svc: svc, reg: reg, p: stored}
}

func (f *fixture) jsonCol(v any) []byte {
	b, err := json.Marshal(v)
	require.NoError(f.t, err)
	return b
}

// expectProvider serves the stored provider row to a read inside the
// booking transaction.
func (f *fixture) expectProvider() {
	p := f.p
	f.mock.ExpectQuery(regexp.QuoteMeta("FROM providers WHERE id = $1")).WithArgs(providerID).
		WillReturnRows(pgxmock.NewRows(providerCols).AddRow(
			p.ID, "mgrey", "Meredith", "", "Grey", "MD", "", "", []byte(`{}`),
			true, []byte(`[]`), "", []byte(`{}`), "", []byte(`{}`),
			p.TimeZone, f.jsonCol(p.RegularShift), f.jsonCol(p.ScheduledShifts), f.jsonCol(p.BlockedShifts),
			clock, clock,
		))
}

func apptRow(rows *pgxmock.Rows, id string, start, end time.Time, status string) *pgxmock.Rows {
	return rows.AddRow(id, patientID, providerID, start, end, "", "", status, nil, "", clock, clock)
}

func (f *fixture) expectLock() {
	f.mock.ExpectExec("pg_advisory_xact_lock").WithArgs(providerID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	f.expectProvider()
}

func (f *fixture) expectFind(rows *pgxmock.Rows) {
	f.mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE provider_id = $1")).WillReturnRows(rows)
}

func bookRequest(t *testing.T, start, end string) Request {
	return Request{Request: availability.Request{
		ProviderID: providerID,
		PatientID:  patientID,
		Start:      at(t, start),
		End:        at(t, end),
	}, Room: "4B"}
}

func TestCheckAcceptsOpenInterval(t *testing.T) {
	f := newFixture(t, provider())
	f.expectFind(pgxmock.NewRows(appointmentCols))

	verdict, err := f.svc.Check(context.Background(), availability.Request{
		ProviderID: providerID, PatientID: patientID,
		Start: at(t, "2020-11-16T15:00:00Z"), End: at(t, "2020-11-16T16:00:00Z"),
	})
	require.NoError(t, err)
	assert.True(t, verdict.Accepted)

	n, err := testutil.GatherAndCount(f.reg, "clinicsched_booking_verdicts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCheckUnknownProvider(t *testing.T) {
	f := newFixture(t, provider())

	verdict, err := f.svc.Check(context.Background(), availability.Request{
		ProviderID: "missing", Start: at(t, "2020-11-16T15:00:00Z"), End: at(t, "2020-11-16T16:00:00Z"),
	})
	require.NoError(t, err)
	assert.Equal(t, availability.ReasonProviderNotFound, verdict.Reason)
}

func TestBookStoresAppointmentAndEvent(t *testing.T) {
	f := newFixture(t, provider())
	f.mock.ExpectBegin()
	f.expectLock()
	f.expectFind(apptRow(pgxmock.NewRows(appointmentCols), otherAppt, at(t, "2020-11-16T16:00:00Z"), at(t, "2020-11-16T17:00:00Z"), model.StatusBooked))
	f.mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(patientID, providerID, at(t, "2020-11-16T15:00:00Z"), at(t, "2020-11-16T16:00:00Z"), "", "4B", model.StatusBooked).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(apptID, clock, clock))
	f.mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("appointment", apptID, EventBooked, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	out, err := f.svc.Book(context.Background(), bookRequest(t, "2020-11-16T15:00:00Z", "2020-11-16T16:00:00Z"))
	require.NoError(t, err)
	require.True(t, out.Verdict.Accepted)
	require.NotNil(t, out.Appointment)
	assert.Equal(t, apptID, out.Appointment.ID)
	assert.Equal(t, "4B", out.Appointment.Room)
}

func TestBookRejectsBlockedDayWithoutQueryingAppointments(t *testing.T) {
	p := provider()
	p.BlockedShifts = []model.BlockedOverride{{DateRange: model.DateRange{StartDate: "2020-11-16", EndDate: "2020-11-16"}}}
	f := newFixture(t, p)
	f.mock.ExpectBegin()
	f.expectLock()
	f.mock.ExpectRollback()

	out, err := f.svc.Book(context.Background(), bookRequest(t, "2020-11-16T15:00:00Z", "2020-11-16T16:00:00Z"))
	require.NoError(t, err)
	assert.False(t, out.Verdict.Accepted)
	assert.Equal(t, availability.ReasonBlocked, out.Verdict.Reason)
	assert.Nil(t, out.Appointment)
}

func TestBookRejectsOverlapAndOutsideHours(t *testing.T) {
	f := newFixture(t, provider())

	f.mock.ExpectBegin()
	f.expectLock()
	f.expectFind(apptRow(pgxmock.NewRows(appointmentCols), otherAppt, at(t, "2020-11-16T15:30:00Z"), at(t, "2020-11-16T16:30:00Z"), model.StatusBooked))
	f.mock.ExpectRollback()
	out, err := f.svc.Book(context.Background(), bookRequest(t, "2020-11-16T15:00:00Z", "2020-11-16T16:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, availability.ReasonOverlapping, out.Verdict.Reason)

	f.mock.ExpectBegin()
	f.expectLock()
	f.mock.ExpectRollback()
	out, err = f.svc.Book(context.Background(), bookRequest(t, "2020-11-17T15:00:00Z", "2020-11-17T16:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, availability.ReasonNotAvailable, out.Verdict.Reason)
}

func TestBookLosesRaceAtExclusionConstraint(t *testing.T) {
	f := newFixture(t, provider())
	f.mock.ExpectBegin()
	f.expectLock()
	f.expectFind(pgxmock.NewRows(appointmentCols))
	f.mock.ExpectQuery("INSERT INTO appointments").WillReturnError(&pgconn.PgError{Code: "23P01"})
	f.mock.ExpectRollback()

	out, err := f.svc.Book(context.Background(), bookRequest(t, "2020-11-16T15:00:00Z", "2020-11-16T16:00:00Z"))
	require.NoError(t, err)
	assert.False(t, out.Verdict.Accepted)
	assert.Equal(t, availability.ReasonOverlapping, out.Verdict.Reason)
}

func TestBookPropagatesStoreErrors(t *testing.T) {
	f := newFixture(t, provider())
	f.mock.ExpectBegin()
	f.expectLock()
	f.mock.ExpectQuery("FROM appointments").WillReturnError(errors.New("connection reset"))
	f.mock.ExpectRollback()

	_, err := f.svc.Book(context.Background(), bookRequest(t, "2020-11-16T15:00:00Z", "2020-11-16T16:00:00Z"))
	var storeErr *availability.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "find appointments", storeErr.Op)
}

func TestBookRejectsMalformedPatient(t *testing.T) {
	f := newFixture(t, provider())
	req := bookRequest(t, "2020-11-16T15:00:00Z", "2020-11-16T16:00:00Z")
	req.PatientID = "someone"

	_, err := f.svc.Book(context.Background(), req)
	require.ErrorIs(t, err, model.ErrInvalid)
}

func TestRescheduleIgnoresItself(t *testing.T) {
	f := newFixture(t, provider())
	start, end := at(t, "2020-11-16T15:00:00Z"), at(t, "2020-11-16T16:00:00Z")

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 FOR UPDATE")).WithArgs(apptID).
		WillReturnRows(apptRow(pgxmock.NewRows(appointmentCols), apptID, start, end, model.StatusBooked))
	f.expectLock()
	f.expectFind(apptRow(pgxmock.NewRows(appointmentCols), apptID, start, end, model.StatusBooked))
	f.mock.ExpectQuery("UPDATE appointments").
		WithArgs(apptID, at(t, "2020-11-16T15:30:00Z"), at(t, "2020-11-16T16:30:00Z"), "", "").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(clock))
	f.mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("appointment", apptID, EventRescheduled, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	req := Request{Request: availability.Request{Start: at(t, "2020-11-16T15:30:00Z"), End: at(t, "2020-11-16T16:30:00Z")}}
	out, err := f.svc.Reschedule(context.Background(), apptID, req)
	require.NoError(t, err)
	require.True(t, out.Verdict.Accepted)
	assert.Equal(t, at(t, "2020-11-16T15:30:00Z"), out.Appointment.StartTime)
	assert.Equal(t, providerID, out.Appointment.ProviderID)
}

func TestRescheduleCancelledAppointmentConflicts(t *testing.T) {
	f := newFixture(t, provider())
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").WithArgs(apptID).
		WillReturnRows(apptRow(pgxmock.NewRows(appointmentCols), apptID, at(t, "2020-11-16T15:00:00Z"), at(t, "2020-11-16T16:00:00Z"), model.StatusCancelled))
	f.mock.ExpectRollback()

	_, err := f.svc.Reschedule(context.Background(), apptID, Request{})
	require.ErrorIs(t, err, model.ErrConflict)
}

func TestCancelEmitsEventOnce(t *testing.T) {
	f := newFixture(t, provider())
	start, end := at(t, "2020-11-16T15:00:00Z"), at(t, "2020-11-16T16:00:00Z")
	cancelledAt := at(t, "2020-11-10T12:00:00Z")

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").WithArgs(apptID).
		WillReturnRows(apptRow(pgxmock.NewRows(appointmentCols), apptID, start, end, model.StatusBooked))
	f.mock.ExpectQuery("UPDATE appointments").WithArgs(apptID, "sick").
		WillReturnRows(pgxmock.NewRows([]string{"cancelled_at"}).AddRow(cancelledAt))
	f.mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("appointment", apptID, EventCancelled, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	appt, err := f.svc.Cancel(context.Background(), apptID, "sick")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, appt.Status)
	require.NotNil(t, appt.CancelledAt)
	assert.Equal(t, cancelledAt, *appt.CancelledAt)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").WithArgs(apptID).
		WillReturnRows(pgxmock.NewRows(appointmentCols).AddRow(apptID, patientID, providerID, start, end, "", "", model.StatusCancelled, &cancelledAt, "sick", clock, clock))
	f.mock.ExpectCommit()

	appt, err = f.svc.Cancel(context.Background(), apptID, "again")
	require.NoError(t, err)
	assert.Equal(t, "sick", appt.CancelReason)
}

func TestCancelUnknownAppointment(t *testing.T) {
	f := newFixture(t, provider())
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").WithArgs(apptID).WillReturnError(pgx.ErrNoRows)
	f.mock.ExpectRollback()

	_, err := f.svc.Cancel(context.Background(), apptID, "")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestOpenSlotsSkipsBookedTime(t *testing.T) {
	f := newFixture(t, provider())
	f.expectFind(apptRow(pgxmock.NewRows(appointmentCols), otherAppt, at(t, "2020-11-16T16:00:00Z"), at(t, "2020-11-16T17:00:00Z"), model.StatusBooked))

	slots, err := f.svc.OpenSlots(context.Background(), providerID, "2020-11-16", time.Hour, 0)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, at(t, "2020-11-16T15:00:00Z"), slots[0].Start.UTC())
	assert.Equal(t, at(t, "2020-11-16T17:00:00Z"), slots[1].Start.UTC())
}

func TestOpenSlotsInputErrors(t *testing.T) {
	f := newFixture(t, provider())

	_, err := f.svc.OpenSlots(context.Background(), providerID, "2020-11-16", 0, 0)
	require.ErrorIs(t, err, model.ErrInvalid)

	_, err = f.svc.OpenSlots(context.Background(), "missing", "2020-11-16", time.Hour, 0)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestBookReadsProviderInsideTransaction(t *testing.T) {
	stale := provider()
	stored := provider()
	stored.BlockedShifts = []model.BlockedOverride{{DateRange: model.DateRange{StartDate: "2020-11-16", EndDate: "2020-11-16"}}}
	f := newFixtureWithLookup(t, stored, stale)

	// The read-only path still sees the cached copy.
	f.expectFind(pgxmock.NewRows(appointmentCols))
	verdict, err := f.svc.Check(context.Background(), bookRequest(t, "2020-11-16T15:00:00Z", "2020-11-16T16:00:00Z").Request)
	require.NoError(t, err)
	assert.True(t, verdict.Accepted)

	// Booking decides on the row read under the provider lock.
	f.mock.ExpectBegin()
	f.expectLock()
	f.mock.ExpectRollback()
	out, err := f.svc.Book(context.Background(), bookRequest(t, "2020-11-16T15:00:00Z", "2020-11-16T16:00:00Z"))
	require.NoError(t, err)
	assert.False(t, out.Verdict.Accepted)
	assert.Equal(t, availability.ReasonBlocked, out.Verdict.Reason)
}
