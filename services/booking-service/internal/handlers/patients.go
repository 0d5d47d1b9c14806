package handlers

import (
	"net/http"

	"github.com/clinicsched/clinicsched/libs/httpx"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"github.com/go-chi/chi/v5"
)

// patientResponse never echoes the full SSN.
type patientResponse struct {
	*model.Patient
	SSN string `json:"ssn,omitempty"`
}

func newPatientResponse(p *model.Patient) patientResponse {
	return patientResponse{Patient: p, SSN: p.MaskedSSN()}
}

func (a *API) ListPatients(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	patients, err := a.patients.List(r.Context(), limit, offset)
	if err != nil {
		a.fail(w, r, storeFailure("patients.List", err))
		return
	}
	items := make([]patientResponse, 0, len(patients))
	for _, p := range patients {
		items = append(items, newPatientResponse(p))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (a *API) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var p model.Patient
	if err := httpx.DecodeJSON(r, &p); err != nil {
		badRequest(w, err.Error())
		return
	}
	p.ID = ""
	if err := a.patients.Create(r.Context(), &p); err != nil {
		a.fail(w, r, storeFailure("patients.Create", err))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newPatientResponse(&p))
}

func (a *API) GetPatient(w http.ResponseWriter, r *http.Request) {
	p, err := a.patients.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, storeFailure("patients.Get", err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPatientResponse(p))
}

func (a *API) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	var p model.Patient
	if err := httpx.DecodeJSON(r, &p); err != nil {
		badRequest(w, err.Error())
		return
	}
	p.ID = chi.URLParam(r, "id")
	if err := a.patients.Update(r.Context(), &p); err != nil {
		a.fail(w, r, storeFailure("patients.Update", err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPatientResponse(&p))
}

func (a *API) DeletePatient(w http.ResponseWriter, r *http.Request) {
	if err := a.patients.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, storeFailure("patients.Delete", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) PatientAppointments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.patients.Get(r.Context(), id); err != nil {
		a.fail(w, r, storeFailure("patients.Get", err))
		return
	}
	a.listAppointments(w, r, model.AppointmentFilter{PatientID: id}, false)
}
