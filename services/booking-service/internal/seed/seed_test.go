package seed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/clinicsched/clinicsched/services/booking-service/internal/availability"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/booking"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type providerSink struct {
	created []model.Provider
	err     error
}

func (s *providerSink) Create(_ context.Context, p *model.Provider) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, *p)
	return nil
}

type patientSink struct {
	created []model.Patient
	err     error
}

func (s *patientSink) Create(_ context.Context, p *model.Patient) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, *p)
	return nil
}

type stubBooker struct {
	verdict availability.Verdict
	reqs    []booking.Request
}

func (b *stubBooker) Book(_ context.Context, req booking.Request) (booking.Outcome, error) {
	b.reqs = append(b.reqs, req)
	return booking.Outcome{Verdict: b.verdict}, nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadFixtureFile(t *testing.T) {
	f, err := LoadFile("../../testdata/seed.yaml")
	require.NoError(t, err)
	require.Len(t, f.Providers, 1)
	require.Len(t, f.Patients, 1)
	require.Len(t, f.Appointments, 1)

	p := f.Providers[0]
	require.NoError(t, p.Validate())
	assert.Len(t, p.RegularShift["Monday"], 2)

	tuesday, ok := p.ScheduledShifts[0].Shift.Windows("Tuesday")
	assert.True(t, ok)
	assert.Empty(t, tuesday)

	require.Len(t, p.BlockedShifts, 2)
	assert.Nil(t, p.BlockedShifts[0].Shift)
	require.NotNil(t, p.BlockedShifts[1].Shift)
	assert.Equal(t, model.CalendarDate("2030-01-13"), p.BlockedShifts[1].StartDate)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader("providers:\n  - userName: x\n    favouriteColour: blue\n"))
	require.Error(t, err)

	f, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Providers)
}

func TestApplyCreatesEverything(t *testing.T) {
	f, err := LoadFile("../../testdata/seed.yaml")
	require.NoError(t, err)

	providers, patients := &providerSink{}, &patientSink{}
	booker := &stubBooker{verdict: availability.Accepted()}
	res, err := NewSeeder(providers, patients, booker, quiet()).Apply(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, Result{Providers: 1, Patients: 1, Appointments: 1}, res)
	assert.Equal(t, "123-45-6789", patients.created[0].SSN)

	require.Len(t, booker.reqs, 1)
	assert.Equal(t, "4B", booker.reqs[0].Room)
	assert.Equal(t, 15, booker.reqs[0].Start.UTC().Hour())
}

func TestApplySkipsExistingAndRejected(t *testing.T) {
	f, err := LoadFile("../../testdata/seed.yaml")
	require.NoError(t, err)

	providers := &providerSink{err: model.ErrConflict}
	patients := &patientSink{err: model.ErrConflict}
	booker := &stubBooker{verdict: availability.Rejected(availability.ReasonOverlapping)}
	res, err := NewSeeder(providers, patients, booker, quiet()).Apply(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 3}, res)
}

func TestApplyStopsOnStoreError(t *testing.T) {
	f := &Fixture{Providers: []model.Provider{{UserName: "x"}}}
	_, err := NewSeeder(&providerSink{err: errors.New("db down")}, &patientSink{}, &stubBooker{}, quiet()).Apply(context.Background(), f)
	require.ErrorContains(t, err, "db down")
}

func TestApplyRejectsBadTimes(t *testing.T) {
	f := &Fixture{Appointments: []Appointment{{Start: "monday", End: "2030-01-07T16:00:00Z"}}}
	_, err := NewSeeder(&providerSink{}, &patientSink{}, &stubBooker{}, quiet()).Apply(context.Background(), f)
	require.ErrorIs(t, err, model.ErrInvalid)
}
