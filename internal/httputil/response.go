package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/no-end-to-learning/notify/internal/notifications"
)

// Error codes carried in the "error" field of error responses.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeService    = "SERVICE_ERROR"
	CodeInternal   = "INTERNAL_ERROR"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes v as JSON with the given HTTP status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// WriteError writes a JSON error response with the given status, code and
// message.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Error: code, Message: message})
}

// WriteAppError maps err onto an error response. Errors that are not one
// of the notification error types are logged and reported as internal.
func WriteAppError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		verr *notifications.ValidationError
		nf   *notifications.NotFoundError
		se   *notifications.ServiceError
	)
	switch {
	case errors.As(err, &verr):
		WriteError(w, http.StatusBadRequest, CodeValidation, verr.Error())
	case errors.As(err, &nf):
		WriteError(w, http.StatusNotFound, CodeNotFound, nf.Error())
	case errors.As(err, &se):
		if logger != nil {
			logger.Warn("vendor call failed", zap.String("channel", string(se.Channel)), zap.Error(err))
		}
		WriteError(w, http.StatusBadGateway, CodeService, se.Error())
	default:
		if logger != nil {
			logger.Error("unhandled error", zap.Error(err))
		}
		WriteInternalError(w)
	}
}

// WriteInternalError writes the generic 500 response.
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
}
