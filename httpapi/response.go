package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/deskauth"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decode reads a JSON body into dst. It writes a 400 and returns false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeEngineError maps engine sentinels to status codes. Anything else is a
// generic 500; the engine has already logged the cause.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := deskauth.ErrInternal.Error()

	switch {
	case errors.Is(err, deskauth.ErrInvalidCredentials),
		errors.Is(err, deskauth.ErrInvalidSecondFactor),
		errors.Is(err, deskauth.ErrRefreshInvalid),
		errors.Is(err, deskauth.ErrRefreshReuse),
		errors.Is(err, deskauth.ErrTokenInvalid):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, deskauth.ErrAccountExists):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, deskauth.ErrInvalidInput),
		errors.Is(err, deskauth.ErrWeakPassword),
		errors.Is(err, deskauth.ErrResetTokenInvalid),
		errors.Is(err, deskauth.ErrTOTPNotConfigured),
		errors.Is(err, deskauth.ErrTOTPAlreadyEnabled),
		errors.Is(err, deskauth.ErrTOTPNotEnabled):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, deskauth.ErrSessionNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, deskauth.ErrEngineNotReady):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.log.Warn("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
		)
	}
	writeError(w, status, message)
}
