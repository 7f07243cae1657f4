package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/straye-as/chart-api/internal/chart"
	"github.com/straye-as/chart-api/internal/domain"
	"github.com/straye-as/chart-api/internal/http/middleware"
	"github.com/straye-as/chart-api/internal/search"
	"github.com/straye-as/chart-api/internal/service"
	"go.uber.org/zap"
)

// maxJSONBody caps JSON request bodies
const maxJSONBody = 64 << 10

var validate = newValidator()

// newValidator reports field errors under their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// decodeJSON reads a bounded JSON body into dst and validates it.
// It writes the error response itself and reports whether the caller may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.Is(err, io.EOF):
			respondWithError(w, http.StatusBadRequest, "Request body is required")
		default:
			respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		}
		return false
	}

	if err := validate.Struct(dst); err != nil {
		respondValidationError(w, err)
		return false
	}
	return true
}

// respondValidationError sends a standardized validation error response with specific field messages
func respondValidationError(w http.ResponseWriter, err error) {
	fieldErrors := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fieldErrors[fe.Field()] = formatValidationError(fe)
		}
	}

	respondJSON(w, http.StatusBadRequest, domain.APIError{
		Type:   domain.ErrorTypeValidation,
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: "One or more fields failed validation",
		Errors: fieldErrors,
	})
}

// formatValidationError creates a human-readable validation error message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", fe.Param())
	case "lt":
		return fmt.Sprintf("Must be less than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	default:
		return domain.GetValidationMessage(fe.Tag())
	}
}

// respondWithError sends a standardized JSON error response
func respondWithError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, domain.APIError{
		Type:   getErrorType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: message,
	})
}

// getErrorType returns the appropriate error type for an HTTP status code
func getErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return domain.ErrorTypeBadRequest
	case http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case http.StatusConflict:
		return domain.ErrorTypeConflict
	case http.StatusRequestEntityTooLarge:
		return domain.ErrorTypeTooLarge
	case http.StatusTooManyRequests:
		return domain.ErrorTypeRateLimited
	case http.StatusServiceUnavailable:
		return domain.ErrorTypeUnavailable
	default:
		return domain.ErrorTypeInternal
	}
}

// handleError maps service, chart and upstream errors to problem responses.
// Upstream failures are passed through as 500 with the upstream's own text.
func handleError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	log := middleware.LoggerFromContext(r.Context(), logger)

	var upstreamErr *search.UpstreamError
	var exportErr *chart.ExportError
	var maxErr *http.MaxBytesError

	switch {
	case errors.As(err, &exportErr):
		respondWithError(w, http.StatusInternalServerError, exportErr.Error())

	case errors.As(err, &upstreamErr):
		log.Warn("upstream request failed",
			zap.String("upstream", upstreamErr.Upstream),
			zap.Int("status_code", upstreamErr.StatusCode),
			zap.String("message", upstreamErr.Message),
		)
		respondJSON(w, http.StatusInternalServerError, domain.APIError{
			Type:   domain.ErrorTypeUpstream,
			Title:  http.StatusText(http.StatusInternalServerError),
			Status: http.StatusInternalServerError,
			Detail: upstreamErr.Message,
		})

	case errors.As(err, &maxErr), errors.Is(err, chart.ErrUploadTooLarge):
		respondWithError(w, http.StatusRequestEntityTooLarge, chart.ErrUploadTooLarge.Error())

	case errors.Is(err, service.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, service.ErrTooManySessions):
		respondWithError(w, http.StatusServiceUnavailable, err.Error())

	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, chart.ErrIndexOutOfRange),
		errors.Is(err, chart.ErrUnknownDomain),
		errors.Is(err, chart.ErrNotAnImage),
		errors.Is(err, chart.ErrUploadRead):
		respondWithError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, chart.ErrNoSelection),
		errors.Is(err, chart.ErrModalClosed),
		errors.Is(err, chart.ErrExportInProgress):
		respondWithError(w, http.StatusConflict, err.Error())

	case errors.Is(err, search.ErrMissingCredentials), errors.Is(err, service.ErrSearchUnavailable):
		log.Error("search backend not configured", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, err.Error())

	default:
		log.Error("request failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
