package calendar

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportRoundTrip(t *testing.T) {
	start := time.Date(2020, 11, 16, 15, 0, 0, 0, time.UTC)
	appts := []model.Appointment{
		{ID: "a1", StartTime: start, EndTime: start.Add(time.Hour), Location: "12 Main St", Room: "4B", Status: model.StatusBooked},
		{ID: "a2", StartTime: start.Add(2 * time.Hour), EndTime: start.Add(3 * time.Hour), Status: model.StatusCancelled},
	}
	p := &model.Provider{FirstName: "Meredith", LastName: "Grey", Degree: "MD"}

	out := Export(p, appts, start.Add(-24*time.Hour))
	assert.Contains(t, out, "METHOD:PUBLISH")

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, UID("a1"), first.Id())
	gotStart, err := first.GetStartAt()
	require.NoError(t, err)
	assert.True(t, gotStart.Equal(start))
	assert.Equal(t, "Appointment with Meredith Grey, MD", first.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "12 Main St, room 4B", first.GetProperty(ical.ComponentPropertyLocation).Value)
	assert.Equal(t, string(ical.ObjectStatusCancelled), events[1].GetProperty(ical.ComponentPropertyStatus).Value)
}

func TestExportEmpty(t *testing.T) {
	out := Export(nil, nil, time.Now())
	cal, err := ical.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	assert.Empty(t, cal.Events())
}
