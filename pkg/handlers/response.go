package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/apperrors"
	"github.com/facilitymap/facility-engine/pkg/logging"
)

// ApiResponse is the envelope of every successful JSON response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// FieldErrorResponse writes a 400 response naming the rejected field.
func FieldErrorResponse(w http.ResponseWriter, field, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   "validation_failed",
		"field":   field,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeServiceError maps a service error to its HTTP response. Validation
// errors name the field; storage and unexpected errors get a generic
// message and the detail only goes to the log.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger, action string) {
	var (
		ve       *apperrors.ValidationError
		writeErr error
	)

	switch {
	case errors.As(err, &ve):
		writeErr = FieldErrorResponse(w, ve.Field, ve.Message)
	case errors.Is(err, apperrors.ErrNotFound):
		writeErr = ErrorResponse(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, apperrors.ErrConflict):
		writeErr = ErrorResponse(w, http.StatusConflict, "conflict", "The resource was changed by another request; reload and try again")
	default:
		logger.Error("Request failed",
			zap.String("action", action),
			zap.String("request_id", logging.RequestInfoFromContext(r.Context()).ID),
			zap.String("error", logging.SanitizeError(err)))
		writeErr = ErrorResponse(w, http.StatusInternalServerError, action+"_failed", "Something went wrong, please try again")
	}

	if writeErr != nil {
		logger.Error("Failed to write error response", zap.Error(writeErr))
	}
}

// writeData writes a successful ApiResponse with data.
func writeData(w http.ResponseWriter, statusCode int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// decodeJSON decodes the request body into dst, writing a 400 on failure.
// Failures attributable to one field name that field.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var (
		ve       *apperrors.ValidationError
		typeErr  *json.UnmarshalTypeError
		writeErr error
	)
	switch {
	case errors.As(err, &ve):
		writeErr = FieldErrorResponse(w, ve.Field, ve.Message)
	case errors.As(err, &typeErr) && typeErr.Field != "":
		writeErr = FieldErrorResponse(w, typeErr.Field, "has the wrong type")
	default:
		writeErr = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
	}
	if writeErr != nil {
		logger.Error("Failed to write error response", zap.Error(writeErr))
	}
	return false
}

const maxRequestBodyBytes = 1 << 20
