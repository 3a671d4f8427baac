package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"golang.org/x/sync/errgroup"
)

// Check results reported per checker and in aggregate.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusTimeout   = "timeout"
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Probe names a health endpoint.
type Probe string

const (
	ProbeAggregate Probe = "aggregate"
	ProbeLive      Probe = "live"
	ProbeReady     Probe = "ready"
	ProbeStartup   Probe = "startup"
)

var probeTimeouts = map[Probe]time.Duration{
	ProbeAggregate: 5 * time.Second,
	ProbeLive:      2 * time.Second,
	ProbeReady:     5 * time.Second,
	ProbeStartup:   3 * time.Second,
}

type registration struct {
	checker  HealthChecker
	critical bool
	probes   map[Probe]bool
}

// CheckOption adjusts how a checker is registered.
type CheckOption func(*registration)

// NonCritical reports a failing checker as degraded instead of unhealthy.
// Storage is non-critical: the tracker keeps serving from memory.
func NonCritical() CheckOption {
	return func(r *registration) { r.critical = false }
}

// OnProbes limits a checker to the named probes. The aggregate endpoint
// always runs every checker.
func OnProbes(probes ...Probe) CheckOption {
	return func(r *registration) {
		r.probes = map[Probe]bool{ProbeAggregate: true}
		for _, p := range probes {
			r.probes[p] = true
		}
	}
}

// HealthManager manages health checks and probe states
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]registration
	version  string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]registration),
		version:  version,
	}
}

// RegisterChecker registers a health checker. By default it is critical
// and runs on every probe.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker, opts ...CheckOption) {
	reg := registration{checker: checker, critical: true}
	for _, opt := range opts {
		opt(&reg)
	}
	hm.mu.Lock()
	hm.checkers[name] = reg
	hm.mu.Unlock()
}

// Checkers returns the registered checker names, sorted.
func (hm *HealthManager) Checkers() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	names := make([]string, 0, len(hm.checkers))
	for name := range hm.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// runHealthChecks runs the checkers bound to probe concurrently.
func (hm *HealthManager) runHealthChecks(ctx context.Context, probe Probe) map[string]string {
	hm.mu.RLock()
	selected := make(map[string]registration, len(hm.checkers))
	for name, reg := range hm.checkers {
		if reg.probes == nil || reg.probes[probe] {
			selected[name] = reg
		}
	}
	hm.mu.RUnlock()

	var mu sync.Mutex
	checks := make(map[string]string, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	for name, reg := range selected {
		g.Go(func() error {
			result := StatusHealthy
			if err := reg.checker.CheckHealth(gctx); err != nil {
				switch {
				case ctx.Err() != nil:
					result = StatusTimeout
				case reg.critical:
					result = StatusUnhealthy
				default:
					result = StatusDegraded
				}
			}
			mu.Lock()
			checks[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return checks
}

// determineOverallStatus determines overall health status
func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	degraded := false
	for _, status := range checks {
		if status == StatusUnhealthy {
			return StatusUnhealthy
		}
		if status == StatusDegraded || status == StatusTimeout {
			degraded = true
		}
	}
	if degraded {
		return StatusDegraded
	}
	return StatusHealthy
}

func (hm *HealthManager) evaluate(r *http.Request, probe Probe) (string, map[string]string) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeouts[probe])
	defer cancel()
	checks := hm.runHealthChecks(ctx, probe)
	return hm.determineOverallStatus(checks), checks
}

func (hm *HealthManager) serveProbe(w http.ResponseWriter, r *http.Request, probe Probe) {
	status, checks := hm.evaluate(r, probe)
	if status == StatusUnhealthy {
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", string(probe)+" probe failed")
		respondWithError(w, r, enrichHealthEnvelope(envelope, probe, status, checks))
		return
	}
	writeHealthJSON(w, ProbeResponse{Status: status, Timestamp: time.Now().UTC()})
}

// HealthHandler handles aggregate health check requests
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status, checks := hm.evaluate(r, ProbeAggregate)
	if status == StatusUnhealthy {
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "aggregate health check failed")
		respondWithError(w, r, enrichHealthEnvelope(envelope, ProbeAggregate, status, checks))
		return
	}

	writeHealthJSON(w, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// LivenessHandler reports whether the process is running.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, ProbeLive)
}

// ReadinessHandler reports whether the server can accept detections.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, ProbeReady)
}

// StartupHandler reports whether initialization finished.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, ProbeStartup)
}

func writeHealthJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe Probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	details := map[string]interface{}{
		"status": status,
		"probe":  string(probe),
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	envelope = envelope.WithDetails(details)

	contextData := map[string]interface{}{
		"status": status,
		"probe":  string(probe),
	}
	var failing []string
	for name, result := range checks {
		if result != StatusHealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		contextData["unhealthy_checks"] = failing
	}

	envelope, _ = envelope.WithContext(contextData)
	return envelope
}

var globalHealthManager *HealthManager

// InitHealthManager initializes the global health manager
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the global health manager
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func withGlobal(probe Probe, serve func(*HealthManager, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if globalHealthManager != nil {
			serve(globalHealthManager, w, r)
			return
		}
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "health manager not initialized")
		respondWithError(w, r, enrichHealthEnvelope(envelope, probe, "unknown", nil))
	}
}

// Handlers backed by the global manager, used when the server is built
// without an explicit one.
var (
	HealthHandler    = withGlobal(ProbeAggregate, (*HealthManager).HealthHandler)
	LivenessHandler  = withGlobal(ProbeLive, (*HealthManager).LivenessHandler)
	ReadinessHandler = withGlobal(ProbeReady, (*HealthManager).ReadinessHandler)
	StartupHandler   = withGlobal(ProbeStartup, (*HealthManager).StartupHandler)
)
