package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/threadline/threadline/internal/errors"
	"github.com/threadline/threadline/internal/metrics"
)

// Check results.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusTimeout   = "timeout"
)

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse is the body of the /health/* probes.
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker is implemented by components with a readiness condition.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthManager runs registered checks for the health endpoints.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	version  string
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{checkers: make(map[string]HealthChecker), version: version}
}

// RegisterChecker adds or replaces the check called name.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// runHealthChecks runs every check concurrently. A check still running when
// ctx ends is reported as a timeout.
func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	hm.mu.RLock()
	checkers := make(map[string]HealthChecker, len(hm.checkers))
	for name, c := range hm.checkers {
		checkers[name] = c
	}
	hm.mu.RUnlock()

	var mu sync.Mutex
	checks := make(map[string]string, len(checkers))
	for name := range checkers {
		checks[name] = StatusTimeout
	}

	done := make(chan struct{})
	var g errgroup.Group
	for name, checker := range checkers {
		g.Go(func() error {
			start := time.Now()
			err := checker.CheckHealth(ctx)
			metrics.RecordHealthCheck(name, err == nil, time.Since(start))

			result := StatusHealthy
			if err != nil {
				result = StatusUnhealthy
			}
			mu.Lock()
			checks[name] = result
			mu.Unlock()
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]string, len(checks))
	for name, result := range checks {
		out[name] = result
	}
	return out
}

func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := StatusHealthy
	for _, result := range checks {
		switch result {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded, StatusTimeout:
			status = StatusDegraded
		}
	}
	return status
}

// HealthHandler reports every check.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks, status, ok := hm.evaluate(w, r, "", 5*time.Second)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// LivenessHandler answers as long as the process can serve HTTP. It runs no
// checks so a failing upstream never gets the relay restarted.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProbeResponse{Status: StatusHealthy, Timestamp: time.Now().UTC()})
}

// ReadinessHandler reports whether the relay can serve traffic.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "ready", 5*time.Second)
}

// StartupHandler reports whether initialization has completed.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "startup", 3*time.Second)
}

func (hm *HealthManager) probe(w http.ResponseWriter, r *http.Request, probe string, timeout time.Duration) {
	_, status, ok := hm.evaluate(w, r, probe, timeout)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ProbeResponse{Status: status, Timestamp: time.Now().UTC()})
}

// evaluate runs the checks and answers 503 itself when one fails.
func (hm *HealthManager) evaluate(w http.ResponseWriter, r *http.Request, probe string, timeout time.Duration) (map[string]string, string, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := hm.runHealthChecks(ctx)
	status := hm.determineOverallStatus(checks)
	if status != StatusUnhealthy {
		return checks, status, true
	}

	message := "aggregate health check failed"
	if probe != "" {
		message = probe + " probe failed"
	}
	respondWithError(w, r, healthEnvelope(message, probe, status, checks))
	return nil, status, false
}

func healthEnvelope(message, probe, status string, checks map[string]string) error {
	details := map[string]interface{}{"status": status}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	if probe != "" {
		details["probe"] = probe
	}
	envelope := apperrors.NewServiceUnavailableError(message).WithDetails(details)

	var failing []string
	for name, result := range checks {
		if result != StatusHealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) == 0 {
		return envelope
	}
	sort.Strings(failing)
	if withContext, err := envelope.WithContext(map[string]interface{}{"unhealthy_checks": failing}); err == nil {
		envelope = withContext
	}
	return envelope
}

var globalHealthManager *HealthManager

// InitHealthManager replaces the manager behind the package-level handlers.
func InitHealthManager(version string) *HealthManager {
	globalHealthManager = NewHealthManager(version)
	return globalHealthManager
}

func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func withGlobalManager(probe string, serve func(*HealthManager, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if globalHealthManager == nil {
			respondWithError(w, r, healthEnvelope("health manager not initialized", probe, "unknown", nil))
			return
		}
		serve(globalHealthManager, w, r)
	}
}

// Handlers backed by the manager set with InitHealthManager.
var (
	HealthHandler    = withGlobalManager("aggregate", (*HealthManager).HealthHandler)
	LivenessHandler  = withGlobalManager("live", (*HealthManager).LivenessHandler)
	ReadinessHandler = withGlobalManager("ready", (*HealthManager).ReadinessHandler)
	StartupHandler   = withGlobalManager("startup", (*HealthManager).StartupHandler)
)
