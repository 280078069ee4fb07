package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/3leaps/jobscope/internal/server/middleware"
)

// Check results and overall states.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusTimeout   = "timeout"
	StatusDegraded  = "degraded"
)

// DefaultCheckTimeout bounds each registered check.
const DefaultCheckTimeout = 3 * time.Second

// HealthChecker is a single named probe.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// HealthResponse is the body of a successful health probe.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// HealthManager runs registered checks on demand. Results are never cached.
type HealthManager struct {
	version string
	timeout time.Duration

	mu       sync.RWMutex
	checkers map[string]HealthChecker
	started  time.Time
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		timeout:  DefaultCheckTimeout,
		checkers: make(map[string]HealthChecker),
		started:  time.Now(),
	}
}

// RegisterChecker adds or replaces the check called name.
func (m *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// SetCheckTimeout changes the per-check deadline. Non-positive values are ignored.
func (m *HealthManager) SetCheckTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

// RunChecks executes every check sequentially in name order.
func (m *HealthManager) RunChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for k, v := range m.checkers {
		checkers[k] = v
	}
	timeout := m.timeout
	m.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]string, len(names))
	for _, name := range names {
		results[name] = runCheck(ctx, checkers[name], timeout)
	}
	return results
}

func runCheck(ctx context.Context, checker HealthChecker, timeout time.Duration) string {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := checker.CheckHealth(cctx)
	switch {
	case err == nil:
		return StatusHealthy
	case errors.Is(err, context.DeadlineExceeded), cctx.Err() != nil:
		return StatusTimeout
	default:
		return StatusUnhealthy
	}
}

func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	overall := StatusHealthy
	for _, st := range checks {
		switch st {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusTimeout:
			overall = StatusDegraded
		}
	}
	return overall
}

// HealthHandler reports every check. Any unhealthy check yields 503.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.RunChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == StatusUnhealthy {
		details := map[string]any{"checks": checks, "version": m.version}
		middleware.WriteEnvelopeDetails(w, r, "SERVICE_UNAVAILABLE", "one or more health checks failed",
			http.StatusServiceUnavailable, details)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: status, Version: m.version, Checks: checks})
}

// LivenessHandler answers as long as the process serves requests.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "alive", Version: m.version, Checks: map[string]string{}})
}

// StartupHandler reports uptime once the manager exists.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "started",
		"version":        m.version,
		"uptime_seconds": int(time.Since(m.started).Seconds()),
	})
}

var (
	globalHealthManager *HealthManager
	globalHealthMu      sync.RWMutex
)

// InitHealthManager installs the process-wide manager used by the route
// functions below.
func InitHealthManager(version string) {
	globalHealthMu.Lock()
	defer globalHealthMu.Unlock()
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the process-wide manager, or nil before InitHealthManager.
func GetHealthManager() *HealthManager {
	globalHealthMu.RLock()
	defer globalHealthMu.RUnlock()
	return globalHealthManager
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if m := GetHealthManager(); m != nil {
		m.HealthHandler(w, r)
		return
	}
	notInitialized(w, r)
}

func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if m := GetHealthManager(); m != nil {
		m.LivenessHandler(w, r)
		return
	}
	notInitialized(w, r)
}

// ReadinessHandler runs the same checks as HealthHandler.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if m := GetHealthManager(); m != nil {
		m.HealthHandler(w, r)
		return
	}
	notInitialized(w, r)
}

func StartupHandler(w http.ResponseWriter, r *http.Request) {
	if m := GetHealthManager(); m != nil {
		m.StartupHandler(w, r)
		return
	}
	notInitialized(w, r)
}

func notInitialized(w http.ResponseWriter, r *http.Request) {
	middleware.WriteEnvelope(w, r, "SERVICE_UNAVAILABLE", "health manager not initialized", http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
