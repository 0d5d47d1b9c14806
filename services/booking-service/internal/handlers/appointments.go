package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/clinicsched/clinicsched/libs/httpx"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/availability"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/booking"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"github.com/go-chi/chi/v5"
)

// scheduleRequest is the body of create, reschedule and check calls.
type scheduleRequest struct {
	ProviderID string    `json:"providerId"`
	PatientID  string    `json:"patientId"`
	Start      time.Time `json:"startDateTime"`
	End        time.Time `json:"endDateTime"`
	Location   string    `json:"location,omitempty"`
	Room       string    `json:"room,omitempty"`
}

func (s scheduleRequest) check() availability.Request {
	return availability.Request{
		ProviderID: strings.TrimSpace(s.ProviderID),
		PatientID:  strings.TrimSpace(s.PatientID),
		Start:      s.Start,
		End:        s.End,
	}
}

func (s scheduleRequest) book() booking.Request {
	return booking.Request{Request: s.check(), Location: s.Location, Room: s.Room}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// ListAppointments returns appointments intersecting ?start..?end, optionally
// narrowed by providerId and patientId.
func (a *API) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a.listAppointments(w, r, model.AppointmentFilter{
		ProviderID: strings.TrimSpace(q.Get("providerId")),
		PatientID:  strings.TrimSpace(q.Get("patientId")),
	}, true)
}

func (a *API) listAppointments(w http.ResponseWriter, r *http.Request, f model.AppointmentFilter, requirePeriod bool) {
	start, err := timeParam(r, "start")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	end, err := timeParam(r, "end")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if requirePeriod && (start.IsZero() || end.IsZero()) {
		badRequest(w, "start and end are required")
		return
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		badRequest(w, "end must be after start")
		return
	}
	f.PeriodStart, f.PeriodEnd = start, end
	f.IncludeCancelled = boolParam(r, "includeCancelled")
	f.Limit, _ = pagination(r)

	appts, err := a.appointments.FindAppointments(r.Context(), f)
	if err != nil {
		a.fail(w, r, storeFailure("appointments.FindAppointments", err))
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, appts)
}

func (a *API) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := a.appointments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, storeFailure("appointments.Get", err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (a *API) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := a.scheduler.Book(r.Context(), req.book())
	if err != nil {
		a.fail(w, r, storeFailure("scheduler.Book", err))
		return
	}
	if !out.Verdict.Accepted {
		writeRejection(w, out.Verdict)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, out.Appointment)
}

// RescheduleAppointment moves an appointment; provider and patient stay fixed.
func (a *API) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := a.scheduler.Reschedule(r.Context(), chi.URLParam(r, "id"), req.book())
	if err != nil {
		a.fail(w, r, storeFailure("scheduler.Reschedule", err))
		return
	}
	if !out.Verdict.Accepted {
		writeRejection(w, out.Verdict)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out.Appointment)
}

func (a *API) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	appt, err := a.scheduler.Cancel(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.Reason))
	if err != nil {
		a.fail(w, r, storeFailure("scheduler.Cancel", err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}
