package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/metrics"
	"github.com/threadline/threadline/internal/observability"
)

// panicBody mirrors the relay's error envelope. It is written here because
// the errors package depends on this one.
type panicBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// Recovery turns a handler panic into a 500 envelope. The stack goes to the
// log only.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			requestID := GetRequestID(r.Context())
			envelope := errors.NewErrorEnvelope("INTERNAL_ERROR", "internal server error").WithCorrelationID(requestID)
			envelope, _ = envelope.WithSeverity(errors.SeverityCritical)

			if observability.ServerLogger != nil {
				observability.ServerLogger.Error("Recovered from panic",
					zap.String("panic", fmt.Sprint(recovered)),
					zap.String("stack_trace", string(debug.Stack())),
					zap.String("request_id", requestID),
					zap.String("severity", string(envelope.Severity)),
					zap.String("path", r.URL.Path))
			}
			metrics.RecordPanic()

			var body panicBody
			body.Error.Code = envelope.Code
			body.Error.Message = envelope.Message
			body.Error.RequestID = envelope.CorrelationID

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(body)
		}()

		next.ServeHTTP(w, r)
	})
}
