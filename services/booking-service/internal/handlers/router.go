package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the /api/v1 tree.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/patients", func(r chi.Router) {
			r.Get("/", a.ListPatients)
			r.Post("/", a.CreatePatient)
			r.Get("/{id}", a.GetPatient)
			r.Put("/{id}", a.UpdatePatient)
			r.Delete("/{id}", a.DeletePatient)
			r.Get("/{id}/appointments", a.PatientAppointments)
		})
		r.Route("/providers", func(r chi.Router) {
			r.Get("/", a.ListProviders)
			r.Post("/", a.CreateProvider)
			r.Get("/{id}", a.GetProvider)
			r.Put("/{id}", a.UpdateProvider)
			r.Delete("/{id}", a.DeleteProvider)
			r.Get("/{id}/appointments", a.ProviderAppointments)
			r.Get("/{id}/slots", a.ProviderSlots)
			r.Get("/{id}/calendar.ics", a.ProviderCalendar)
		})
		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", a.ListAppointments)
			r.Post("/", a.CreateAppointment)
			r.Get("/{id}", a.GetAppointment)
			r.Put("/{id}", a.RescheduleAppointment)
			r.Post("/{id}/cancel", a.CancelAppointment)
		})
		r.Post("/schedule/check", a.CheckSchedule)
	})
	return r
}
