package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clinicsched/clinicsched/libs/httpx"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/availability"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/calendar"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"github.com/go-chi/chi/v5"
)

const (
	defaultSlotMinutes = 30
	maxSlotMinutes     = 8 * 60
)

type slotItem struct {
	StartTime string `json:"startDateTime"`
	EndTime   string `json:"endDateTime"`
}

func (a *API) ListProviders(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	providers, err := a.providers.List(r.Context(), limit, offset)
	if err != nil {
		a.fail(w, r, storeFailure("providers.List", err))
		return
	}
	if providers == nil {
		providers = []*model.Provider{}
	}
	httpx.WriteJSON(w, http.StatusOK, providers)
}

func (a *API) CreateProvider(w http.ResponseWriter, r *http.Request) {
	var p model.Provider
	if err := httpx.DecodeJSON(r, &p); err != nil {
		badRequest(w, err.Error())
		return
	}
	p.ID = ""
	if err := a.providers.Create(r.Context(), &p); err != nil {
		a.fail(w, r, storeFailure("providers.Create", err))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, &p)
}

func (a *API) GetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := a.providers.GetProvider(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, storeFailure("providers.GetProvider", err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (a *API) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	var p model.Provider
	if err := httpx.DecodeJSON(r, &p); err != nil {
		badRequest(w, err.Error())
		return
	}
	p.ID = chi.URLParam(r, "id")
	if err := a.providers.Update(r.Context(), &p); err != nil {
		a.fail(w, r, storeFailure("providers.Update", err))
		return
	}
	a.cache.Invalidate(r.Context(), p.ID)
	httpx.WriteJSON(w, http.StatusOK, &p)
}

func (a *API) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.providers.Delete(r.Context(), id); err != nil {
		a.fail(w, r, storeFailure("providers.Delete", err))
		return
	}
	a.cache.Invalidate(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) ProviderAppointments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.providers.GetProvider(r.Context(), id); err != nil {
		a.fail(w, r, storeFailure("providers.GetProvider", err))
		return
	}
	a.listAppointments(w, r, model.AppointmentFilter{ProviderID: id}, false)
}

// ProviderSlots lists open slots on ?date=YYYY-MM-DD (provider-local) of
// duration_minutes, stepping by slot_step_minutes.
func (a *API) ProviderSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := model.CalendarDate(strings.TrimSpace(q.Get("date")))
	if date == "" {
		badRequest(w, "date is required")
		return
	}
	duration, ok := minutesParam(q.Get("duration_minutes"), defaultSlotMinutes)
	if !ok {
		badRequest(w, "duration_minutes must be between 1 and 480")
		return
	}
	step, ok := minutesParam(q.Get("slot_step_minutes"), 0)
	if !ok {
		badRequest(w, "slot_step_minutes must be between 1 and 480")
		return
	}

	slots, err := a.scheduler.OpenSlots(r.Context(), chi.URLParam(r, "id"), date, duration, step)
	if err != nil {
		a.fail(w, r, storeFailure("scheduler.OpenSlots", err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotItems(slots))
}

func minutesParam(raw string, fallback int) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Duration(fallback) * time.Minute, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxSlotMinutes {
		return 0, false
	}
	return time.Duration(n) * time.Minute, true
}

func slotItems(slots []availability.Interval) []slotItem {
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}
	return items
}

// ProviderCalendar exports the provider's appointments from a month back to a
// year ahead as text/calendar.
func (a *API) ProviderCalendar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := a.providers.GetProvider(r.Context(), id)
	if err != nil {
		a.fail(w, r, storeFailure("providers.GetProvider", err))
		return
	}
	now := a.now()
	appts, err := a.appointments.FindAppointments(r.Context(), model.AppointmentFilter{
		ProviderID:       id,
		PeriodStart:      now.AddDate(0, -1, 0),
		PeriodEnd:        now.AddDate(1, 0, 0),
		IncludeCancelled: true,
	})
	if err != nil {
		a.fail(w, r, storeFailure("appointments.FindAppointments", err))
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(calendar.Export(p, appts, now)))
}
