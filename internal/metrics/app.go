package metrics

import (
	"strconv"
	"time"

	"github.com/threadline/threadline/internal/observability"
)

// Relay metrics, following Prometheus naming.
const (
	TokenExchangesTotal = "relay_token_exchanges_total"
	StateDecodesTotal   = "relay_state_decodes_total"
	ProxyRequestsTotal  = "relay_proxy_requests_total"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"

	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeInvalid  = "invalid"
	OutcomeExpired  = "expired"
	OutcomeRejected = "rejected"
)

func count(name string, labels map[string]string) {
	if tel := observability.TelemetrySystem; tel != nil {
		_ = tel.Counter(name, 1, labels)
	}
}

// RecordTokenExchange counts an authorization code exchange.
func RecordTokenExchange(outcome string) {
	count(TokenExchangesTotal, map[string]string{"outcome": outcome})
}

// RecordStateDecode counts a session token decode.
func RecordStateDecode(outcome string) {
	count(StateDecodesTotal, map[string]string{"outcome": outcome})
}

// RecordProxyRequest counts an avatar or issue proxy call.
func RecordProxyRequest(proxy, outcome string) {
	count(ProxyRequestsTotal, map[string]string{"proxy": proxy, "outcome": outcome})
}

// RecordHealthCheck counts and times one health check run.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	tel := observability.TelemetrySystem
	if tel == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = tel.Counter(HealthCheckTotal, 1, map[string]string{"check": checkName, "status": status})
	_ = tel.Histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
}

// SetServerStartTime records the relay start as a Unix timestamp.
func SetServerStartTime(timestamp int64) {
	if tel := observability.TelemetrySystem; tel != nil {
		_ = tel.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}

// RecordError counts an error envelope written to a caller.
func RecordError(errorCode string, httpStatus int) {
	count(ErrorsTotalName, map[string]string{"error_code": errorCode, "http_status": strconv.Itoa(httpStatus)})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	count(PanicsTotalName, nil)
}

// RecordErrorByEndpoint counts an error against a route pattern. Callers pass
// patterns, not raw paths.
func RecordErrorByEndpoint(endpoint, errorCode string) {
	count(ErrorsByEndpointName, map[string]string{"endpoint": endpoint, "error_code": errorCode})
}
