package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/cant-stop-odds/internal/board"
	"github.com/MJE43/cant-stop-odds/internal/engine"
	"github.com/MJE43/cant-stop-odds/internal/rules"
	"github.com/MJE43/cant-stop-odds/internal/scan"
	"github.com/MJE43/cant-stop-odds/internal/store"
)

var errNoStore = errors.New("analysis store is not configured")

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause adds the underlying cause error
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final EngineError
func (eb *ErrorBuilder) Build() EngineError {
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *log.Logger
	audit  *AuditLogger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *log.Logger, audit *AuditLogger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
		audit:  audit,
	}
}

// HandleError maps err to a status and error type and writes the response.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType, message := classifyError(err)

	engineErr := NewError(errType, message).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		WithCause(err).
		Build()

	eh.logError(r, engineErr, status)
	eh.writeErrorResponse(w, status, engineErr)
}

// HandleValidationError handles validation-specific errors
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	requestID := middleware.GetReqID(r.Context())

	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(requestID).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.audit.LogEvent(requestID, "validation_failure", r.URL.Path, "rejected", map[string]interface{}{
		"field":       field,
		"message":     message,
		"remote_addr": r.RemoteAddr,
	})

	eh.logError(r, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// HandleUnavailable reports a feature that needs unconfigured infrastructure.
func (eh *ErrorHandler) HandleUnavailable(w http.ResponseWriter, r *http.Request, feature string) {
	engineErr := NewError(ErrTypeServiceUnavailable, fmt.Sprintf("%s is not configured", feature)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		Build()

	eh.logError(r, engineErr, http.StatusServiceUnavailable)
	eh.writeErrorResponse(w, http.StatusServiceUnavailable, engineErr)
}

// classifyError maps package sentinels and typed errors to HTTP semantics.
func classifyError(err error) (int, string, string) {
	var apiErr *rules.APIError
	var httpErr *rules.HTTPError

	switch {
	case errors.Is(err, board.ErrInvalidPlayer), errors.Is(err, board.ErrInvalidSnapshot):
		return http.StatusBadRequest, ErrTypeInvalidState, "Invalid game snapshot"
	case errors.Is(err, engine.ErrColumnOutOfRange),
		errors.Is(err, engine.ErrTooManyRunners),
		errors.Is(err, engine.ErrNegativeProgress),
		errors.Is(err, engine.ErrCompletedRunner),
		errors.Is(err, engine.ErrOrphanProgress),
		errors.Is(err, engine.ErrInvalidDice):
		return http.StatusBadRequest, ErrTypeInvalidState, "Invalid game state"
	case errors.Is(err, engine.ErrRunnerLimit), errors.Is(err, engine.ErrUnplayableChoice):
		return http.StatusUnprocessableEntity, ErrTypeEngine, "Choice cannot be applied"
	case errors.Is(err, scan.ErrInvalidMetric),
		errors.Is(err, scan.ErrInvalidOp),
		errors.Is(err, scan.ErrInvalidRange),
		errors.Is(err, scan.ErrInvalidSize):
		return http.StatusBadRequest, ErrTypeInvalidSweep, "Invalid sweep request"
	case errors.Is(err, errNoStore):
		return http.StatusServiceUnavailable, ErrTypeServiceUnavailable, "Analysis store is not configured"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound, "Analysis not found"
	case errors.As(err, &apiErr) && apiErr.IsNotFound(),
		errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound, ErrTypeGameNotFound, "Game not found on rules server"
	case errors.As(err, &apiErr), errors.As(err, &httpErr), errors.Is(err, rules.ErrNoGameID):
		return http.StatusBadGateway, ErrTypeUpstream, "Rules server request failed"
	default:
		return http.StatusInternalServerError, ErrTypeInternal, "Internal server error"
	}
}

// logError logs the error with appropriate level and context
func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	category := GetErrorCategory(engineErr.Type)

	logLevel := "ERROR"
	if category == CategoryValidation || status < 500 {
		logLevel = "WARN"
	}

	eh.logger.Printf(
		"error_occurred level=%s type=%s category=%s status=%d request_id=%s path=%s message=%q context=%+v",
		logLevel, engineErr.Type, category, status, engineErr.RequestID, r.URL.Path, engineErr.Message, engineErr.Context,
	)
}

// writeErrorResponse writes the error response as JSON
func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		eh.logger.Printf("error_encode_failed type=%s err=%v", engineErr.Type, err)
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())

				eh.logger.Printf(
					"panic_recovered request_id=%s path=%s method=%s panic=%v",
					requestID, r.URL.Path, r.Method, rvr,
				)

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("panic", fmt.Sprintf("%v", rvr)).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()

				eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
