package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bodhi-industries/eventhub/internal/identity"
	"github.com/bodhi-industries/eventhub/internal/metrics"
)

// HealthCheck represents the health status of the server
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Slot      string                 `json:"slot,omitempty"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms"`
	Details   map[string]any `json:"details,omitempty"`
}

// Probe checks one upstream. Optional probes degrade instead of failing.
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

// HealthChecker reports on the upstreams the site depends on.
type HealthChecker struct {
	probes    []Probe
	version   string
	gitCommit string
	timeout   time.Duration
}

func NewHealthChecker(version, gitCommit string, probes ...Probe) *HealthChecker {
	return &HealthChecker{
		probes:    probes,
		version:   version,
		gitCommit: gitCommit,
		timeout:   2 * time.Second,
	}
}

// Health returns the readiness handler. Probes run concurrently, each with its
// own timeout so one slow upstream cannot starve the others.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
			return
		default:
		}

		checks := h.run(r.Context())

		overall := "healthy"
		statusCode := http.StatusOK
		for _, check := range checks {
			if check.Status == "fail" {
				overall = "unhealthy"
				statusCode = http.StatusServiceUnavailable
				break
			} else if check.Status == "warn" {
				overall = "degraded"
			}
		}
		metrics.HealthStatus.Set(statusValue(overall))

		slot := os.Getenv("DEPLOYMENT_SLOT")
		if slot == "" {
			slot = os.Getenv("SLOT")
		}

		respondJSON(w, statusCode, HealthCheck{
			Status:    overall,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Slot:      slot,
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (h *HealthChecker) run(ctx context.Context) map[string]CheckResult {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, len(h.probes))
	)
	for _, probe := range h.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := h.check(ctx, probe)
			mu.Lock()
			checks[probe.Name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()
	return checks
}

func (h *HealthChecker) check(ctx context.Context, probe Probe) CheckResult {
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := probe.Check(probeCtx)
	latency := time.Since(start)
	metrics.HealthCheckLatency.WithLabelValues(probe.Name).Set(float64(latency.Milliseconds()))

	result := CheckResult{Status: "pass", Message: "reachable", LatencyMs: latency.Milliseconds()}
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrNotConfigured):
		result.Status = "warn"
		result.Message = "not configured"
	case probe.Optional:
		result.Status = "warn"
		result.Message = "unreachable"
		result.Details = map[string]any{"error": err.Error()}
	default:
		result.Status = "fail"
		result.Message = "unreachable"
		if probeCtx.Err() == context.DeadlineExceeded {
			result.Message = "timed out after " + h.timeout.String()
		}
		result.Details = map[string]any{"error": err.Error()}
	}

	metrics.HealthCheckStatus.WithLabelValues(probe.Name).Set(statusValue(result.Status))
	return result
}

// statusValue maps a status onto the 0/1/2 scale of the health gauges.
func statusValue(status string) float64 {
	switch status {
	case "pass", "healthy":
		return 2
	case "warn", "degraded":
		return 1
	default:
		return 0
	}
}

// Healthz returns a lightweight liveness response.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
