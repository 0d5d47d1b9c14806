package handlers

import (
	"net/http"

	"github.com/clinicsched/clinicsched/libs/httpx"
)

// CheckSchedule validates a proposed appointment without booking it.
func (a *API) CheckSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	verdict, err := a.scheduler.Check(r.Context(), req.check())
	if err != nil {
		a.fail(w, r, storeFailure("scheduler.Check", err))
		return
	}
	if !verdict.Accepted {
		writeRejection(w, verdict)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, verdict)
}
