package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sys/unix"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusOK        HealthStatus = "ok"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	LatencyMS int64        `json:"latency_ms,omitempty"`
}

// HealthCheckResponse represents the overall health check response.
type HealthCheckResponse struct {
	Status        HealthStatus               `json:"status"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Timestamp     string                     `json:"timestamp"`
	Checks        map[string]ComponentHealth `json:"checks"`
}

// HealthChecker performs health checks on system components.
type HealthChecker struct {
	version   string
	startTime time.Time
	checks    map[string]HealthCheckFunc
}

// HealthCheckFunc defines a function that checks component health.
type HealthCheckFunc func(ctx context.Context) ComponentHealth

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]HealthCheckFunc),
	}
}

// RegisterCheck registers a health check for a component.
func (hc *HealthChecker) RegisterCheck(name string, checkFunc HealthCheckFunc) {
	hc.checks[name] = checkFunc
}

// Check performs all health checks.
func (hc *HealthChecker) Check(ctx context.Context) HealthCheckResponse {
	response := HealthCheckResponse{
		Status:        HealthStatusOK,
		Version:       hc.version,
		UptimeSeconds: int64(time.Since(hc.startTime).Seconds()),
		Timestamp:     time.Now().Format(time.RFC3339),
		Checks:        make(map[string]ComponentHealth),
	}

	for name, checkFunc := range hc.checks {
		health := checkFunc(ctx)
		response.Checks[name] = health

		if health.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		} else if health.Status == HealthStatusDegraded && response.Status != HealthStatusUnhealthy {
			response.Status = HealthStatusDegraded
		}
	}

	return response
}

// Handler returns an HTTP handler for health checks.
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		response := hc.Check(ctx)

		w.Header().Set("Content-Type", "application/json")

		switch response.Status {
		case HealthStatusOK:
			w.WriteHeader(http.StatusOK)
		case HealthStatusDegraded:
			w.WriteHeader(http.StatusOK)
		case HealthStatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(response)
	}
}

// Common health check functions, one per node subsystem.

// ControlPlaneCheck always reports the control plane at addr as
// healthy; it does not probe the listener.
func ControlPlaneCheck(addr string) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		return ComponentHealth{
			Status:  HealthStatusOK,
			Message: fmt.Sprintf("control plane listening on %s", addr),
		}
	}
}

// ShmRegionCheck reports whether the shared-memory transport region for
// same-machine peers is reachable.
func ShmRegionCheck(exists func() bool) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if exists() {
			return ComponentHealth{Status: HealthStatusOK, Message: "shared memory region mapped"}
		}
		return ComponentHealth{Status: HealthStatusDegraded, Message: "shared memory region not mapped, falling back to TCP"}
	}
}

// ChunkStoreCheck checks that the content-addressed chunk store responds.
func ChunkStoreCheck(ping func() error) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		err := ping()
		latency := time.Since(start).Milliseconds()
		if err != nil {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: err.Error(), LatencyMS: latency}
		}
		return ComponentHealth{Status: HealthStatusOK, Message: "chunk store responsive", LatencyMS: latency}
	}
}

// DiscoveryCheck reports whether mDNS peer discovery is active.
func DiscoveryCheck(active func() bool) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if active() {
			return ComponentHealth{Status: HealthStatusOK, Message: "mDNS discovery active"}
		}
		return ComponentHealth{Status: HealthStatusDegraded, Message: "mDNS discovery not running"}
	}
}

// DatabaseCheck checks metadata/session database connectivity.
func DatabaseCheck(ping func() error) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		err := ping()
		latency := time.Since(start).Milliseconds()
		if err != nil {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: err.Error(), LatencyMS: latency}
		}
		if latency < 50 {
			return ComponentHealth{Status: HealthStatusOK, Message: "database responsive", LatencyMS: latency}
		}
		return ComponentHealth{Status: HealthStatusDegraded, Message: "database slow", LatencyMS: latency}
	}
}

// DiskSpaceCheck checks available disk space on the filesystem backing path.
func DiskSpaceCheck(path string, minFreeGB int64) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		var stat unix.Statfs_t
		if err := unix.Statfs(path, &stat); err != nil {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: err.Error()}
		}
		freeBytes := stat.Bavail * uint64(stat.Bsize)
		freeGB := int64(freeBytes / (1 << 30))

		if freeGB > minFreeGB {
			return ComponentHealth{Status: HealthStatusOK, Message: fmt.Sprintf("%d GB free", freeGB)}
		}
		return ComponentHealth{Status: HealthStatusDegraded, Message: fmt.Sprintf("low disk space: %d GB free", freeGB)}
	}
}
