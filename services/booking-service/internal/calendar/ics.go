package calendar

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
)

const productID = "-//clinicsched//booking-service//EN"

// UID is the iCalendar UID of an appointment event.
func UID(appointmentID string) string {
	return appointmentID + "@clinicsched"
}

// Export renders a provider's appointments as a PUBLISH calendar.
func Export(p *model.Provider, appts []model.Appointment, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	summary := "Appointment"
	if p != nil && p.LastName != "" {
		summary = "Appointment with " + providerName(p)
	}

	for _, a := range appts {
		event := cal.AddEvent(UID(a.ID))
		event.SetDtStampTime(stamp)
		event.SetStartAt(a.StartTime)
		event.SetEndAt(a.EndTime)
		event.SetSummary(summary)
		if loc := location(a); loc != "" {
			event.SetLocation(loc)
		}
		if a.Status == model.StatusCancelled {
			event.SetStatus(ical.ObjectStatusCancelled)
		} else {
			event.SetStatus(ical.ObjectStatusConfirmed)
		}
	}
	return cal.Serialize()
}

func providerName(p *model.Provider) string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if p.Degree != "" {
		name += ", " + p.Degree
	}
	return name
}

func location(a model.Appointment) string {
	switch {
	case a.Location != "" && a.Room != "":
		return a.Location + ", room " + a.Room
	case a.Room != "":
		return "Room " + a.Room
	default:
		return a.Location
	}
}
