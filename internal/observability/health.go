package observability

import (
	"context"
	"log/slog"
	"time"
)

// readyTimeout bounds one readiness sweep so a hung dependency (a stuck
// Redis ping, say) cannot stall the probe.
const readyTimeout = 3 * time.Second

// HealthChecker aggregates readiness from registered dependency probes.
// Liveness is unconditional; readiness degrades when any probe fails.
type HealthChecker struct {
	names  []string
	probes map[string]func(ctx context.Context) error
	logger *slog.Logger
}

// HealthStatus is the JSON body for the health and readiness endpoints.
type HealthStatus struct {
	Status string                 `json:"status"` // "ok" or "degraded"
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of a single dependency probe.
type CheckResult struct {
	Status  string `json:"status"`            // "ok" or "fail"
	Message string `json:"message,omitempty"` // Error message on failure.
}

// NewHealthChecker creates a checker with no probes registered.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{
		probes: make(map[string]func(ctx context.Context) error),
		logger: logger,
	}
}

// AddCheck registers a named dependency probe. Registration order is the
// order probes run in.
func (h *HealthChecker) AddCheck(name string, probe func(ctx context.Context) error) {
	if _, dup := h.probes[name]; !dup {
		h.names = append(h.names, name)
	}
	h.probes[name] = probe
}

// CheckHealth is the liveness answer: "ok" whenever the process can respond.
func (h *HealthChecker) CheckHealth() HealthStatus {
	return HealthStatus{Status: "ok"}
}

// CheckReady runs every probe and aggregates: "ok" only when all pass.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	if len(h.names) == 0 {
		return HealthStatus{Status: "ok"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]CheckResult, len(h.names)),
	}

	for _, name := range h.names {
		err := h.probes[name](probeCtx)
		if err == nil {
			status.Checks[name] = CheckResult{Status: "ok"}
			continue
		}
		status.Status = "degraded"
		status.Checks[name] = CheckResult{Status: "fail", Message: err.Error()}
		if h.logger != nil {
			h.logger.Warn("readiness check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
		}
	}

	return status
}
