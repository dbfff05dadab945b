package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/threadline/threadline/internal/errors"
	"github.com/threadline/threadline/internal/observability"
)

const defaultMetricsPort = 9090

// hopHeaders are not copied from the exporter's response.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// metricsProxy serves the exporter's Prometheus page on the relay's own port
// so a single listener can be scraped.
type metricsProxy struct {
	client *http.Client
	// port is used when the exporter has not reported the port it bound.
	port int
}

func newMetricsProxy(port int) *metricsProxy {
	if port <= 0 {
		port = defaultMetricsPort
	}
	return &metricsProxy{client: &http.Client{Timeout: 5 * time.Second}, port: port}
}

func (p *metricsProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}

	port := observability.GetMetricsPort()
	if port == 0 {
		port = p.port
	}
	target := fmt.Sprintf("http://127.0.0.1:%d/metrics", port)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "Unable to construct metrics request"))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.Wrap(r.Context(), apperrors.CodeServiceUnavailable, err, "Prometheus exporter unavailable"))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for key, values := range resp.Header {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if resp.Header.Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to write metrics response", zap.Error(err))
	}
}
