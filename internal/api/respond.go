package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vietddude/custody/internal/core/domain"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Code    domain.Code `json:"code"`
	Error   string      `json:"error"`
	Message string      `json:"message"`
}

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
}

// writeError maps a domain error to its HTTP status and coded body. Anything
// else is reported as internal without leaking details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.ErrInternal
	}

	status := statusFor(de)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	msg := err.Error()
	if de.Kind == domain.KindInternal && de != domain.ErrTreasuryNotConfigured {
		msg = de.Message
	}
	writeJSON(w, status, errorBody{Code: de.Code, Error: de.Name, Message: msg})
}

func statusFor(e *domain.Error) int {
	switch e {
	case domain.ErrWalletNotFound, domain.ErrTransactionNotFound, domain.ErrGuardianNotFound:
		return http.StatusNotFound
	}
	switch e.Kind {
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindPrecondition:
		return http.StatusConflict
	case domain.KindResource, domain.KindIntegrity:
		return http.StatusUnprocessableEntity
	case domain.KindTemporal:
		return http.StatusTooEarly
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
