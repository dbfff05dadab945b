package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/metrics"
	"github.com/threadline/threadline/internal/observability"
	"github.com/threadline/threadline/internal/server/middleware"
)

// Error codes returned by the relay.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidState       = "INVALID_STATE"
	CodeExpiredState       = "EXPIRED_STATE"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeUpstream           = "UPSTREAM_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

type level int

const (
	levelInfo level = iota
	levelWarn
	levelAlert
)

type codeSpec struct {
	status int
	level  level
}

// codes maps each error code to its HTTP status and log level.
// Session failures are the caller's fault and stay at 400.
var codes = map[string]codeSpec{
	CodeInvalidInput:       {http.StatusBadRequest, levelWarn},
	CodeInvalidState:       {http.StatusBadRequest, levelWarn},
	CodeExpiredState:       {http.StatusBadRequest, levelInfo},
	CodeNotFound:           {http.StatusNotFound, levelInfo},
	CodeMethodNotAllowed:   {http.StatusMethodNotAllowed, levelInfo},
	CodeUpstream:           {http.StatusInternalServerError, levelAlert},
	CodeInternal:           {http.StatusInternalServerError, levelAlert},
	CodeServiceUnavailable: {http.StatusServiceUnavailable, levelAlert},
}

// causeKey holds the wrapped error. It is logged, never returned.
const causeKey = "wrapped_error"

func newEnvelope(code, message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(code, message)
}

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return newEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return newEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return newEnvelope(CodeMethodNotAllowed, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return newEnvelope(CodeInternal, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return newEnvelope(CodeServiceUnavailable, message)
}

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInvalidInput, err, message)
}

func WrapInvalidState(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInvalidState, err, message)
}

func WrapExpiredState(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeExpiredState, err, message)
}

func WrapUpstream(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeUpstream, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInternal, err, message)
}

// Wrap builds an envelope for code carrying the request's correlation id.
// err is kept for the log line only.
func Wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	correlationID := requestID(ctx)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	envelope := newEnvelope(code, message).
		WithCorrelationID(correlationID).
		WithTraceID(correlationID)

	switch codes[code].level {
	case levelAlert:
		if updated, sevErr := envelope.WithSeverity(errors.SeverityHigh); sevErr == nil {
			envelope = updated
		}
	case levelWarn:
		if updated, sevErr := envelope.WithSeverity(errors.SeverityMedium); sevErr == nil {
			envelope = updated
		}
	}
	if err != nil {
		if updated, ctxErr := envelope.WithContext(map[string]interface{}{causeKey: err.Error()}); ctxErr == nil {
			envelope = updated
		}
	}
	return envelope
}

// routePattern is the matched chi route, or "/unknown" before routing or on
// a miss.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "/unknown"
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return middleware.GetRequestID(ctx)
}

// EnsureEnvelope returns err as an envelope, wrapping anything else as an
// internal error.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env, _ := newEnvelope(CodeInternal, "unexpected nil error").WithSeverity(errors.SeverityCritical)
		return env
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}
	return Wrap(context.Background(), CodeInternal, err, "unexpected error")
}

// HTTPStatusFromCode resolves the HTTP status for an error code. Unknown
// codes are 500.
func HTTPStatusFromCode(code string) int {
	if spec, ok := codes[code]; ok {
		return spec.status
	}
	return http.StatusInternalServerError
}

// ResponseDetails is the caller-visible part of the envelope's details and
// context.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	details := make(map[string]interface{}, len(envelope.Details)+len(envelope.Context))
	for key, value := range envelope.Context {
		if key != causeKey {
			details[key] = value
		}
	}
	for key, value := range envelope.Details {
		details[key] = value
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// HTTPErrorDetail is the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError logs err, counts it and writes it as a JSON envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	if w == nil {
		return
	}

	envelope := EnsureEnvelope(err)
	if envelope.CorrelationID == "" {
		id := ""
		if r != nil {
			id = requestID(r.Context())
		}
		if id == "" {
			id = "fallback-" + errors.GenerateCorrelationID()
		}
		envelope = envelope.WithCorrelationID(id)
	}

	status := HTTPStatusFromCode(envelope.Code)
	logEnvelope(envelope, status)

	metrics.RecordError(envelope.Code, status)
	if r != nil {
		metrics.RecordErrorByEndpoint(routePattern(r), envelope.Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   ResponseDetails(envelope),
			RequestID: envelope.CorrelationID,
		},
	})
}

func logEnvelope(envelope *errors.ErrorEnvelope, status int) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", status),
		zap.String("request_id", envelope.CorrelationID),
	}
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		logger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		logger.Warn(envelope.Message, fields...)
	default:
		logger.Info(envelope.Message, fields...)
	}
}
