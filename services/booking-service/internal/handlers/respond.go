package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clinicsched/clinicsched/libs/httpx"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/availability"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
)

func statusFor(err error) (int, string) {
	var storeErr *availability.StoreError
	switch {
	case errors.As(err, &storeErr):
		return http.StatusServiceUnavailable, "storage unavailable"
	case errors.Is(err, model.ErrInvalid):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// storeFailure marks repository errors that carry no domain meaning as
// storage failures so they surface as 503 rather than 500.
func storeFailure(op string, err error) error {
	var storeErr *availability.StoreError
	switch {
	case errors.As(err, &storeErr),
		errors.Is(err, model.ErrInvalid),
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrConflict),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return err
	}
	return &availability.StoreError{Op: op, Err: err}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
	}
	httpx.WriteError(w, status, msg)
}

func badRequest(w http.ResponseWriter, msg string) {
	httpx.WriteError(w, http.StatusBadRequest, msg)
}

// writeRejection reports a rejected verdict: 404 for an unknown provider,
// 409 otherwise.
func writeRejection(w http.ResponseWriter, v availability.Verdict) {
	status := http.StatusConflict
	if v.Reason == availability.ReasonProviderNotFound {
		status = http.StatusNotFound
	}
	httpx.WriteJSON(w, status, v)
}

func pagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}

// timeParam parses an optional RFC 3339 query parameter.
func timeParam(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(name + " must be an RFC 3339 timestamp")
	}
	return t, nil
}

func boolParam(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
