package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry/exporters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/threadline/threadline/internal/errors"
	"github.com/threadline/threadline/internal/observability"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func withExporter(t *testing.T) {
	t.Helper()
	original := observability.PrometheusExporter
	observability.PrometheusExporter = exporters.NewPrometheusExporter("test", ":9090")
	t.Cleanup(func() { observability.PrometheusExporter = original })
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error.Code
}

func TestMetricsProxyForwardsExporterOutput(t *testing.T) {
	withExporter(t)

	var target string
	proxy := newMetricsProxy(9191)
	proxy.client = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		target = req.URL.String()
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("relay_token_exchanges_total 3\n")),
			Header:     make(http.Header),
		}
		resp.Header.Set("Connection", "close")
		return resp, nil
	})}

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relay_token_exchanges_total")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Empty(t, rec.Header().Get("Connection"))
	if observability.GetMetricsPort() == 0 {
		assert.Equal(t, "http://127.0.0.1:9191/metrics", target)
	}
}

func TestMetricsProxyWithoutExporter(t *testing.T) {
	original := observability.PrometheusExporter
	observability.PrometheusExporter = nil
	t.Cleanup(func() { observability.PrometheusExporter = original })

	rec := httptest.NewRecorder()
	newMetricsProxy(0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, apperrors.CodeServiceUnavailable, errorCode(t, rec))
}

func TestMetricsProxyExporterDown(t *testing.T) {
	withExporter(t)

	proxy := newMetricsProxy(0)
	proxy.client = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, apperrors.CodeServiceUnavailable, errorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Equal(t, defaultMetricsPort, proxy.port)
}
