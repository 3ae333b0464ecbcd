package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/mstgnz/kazapay/infra/response"
)

// Pinger is anything the health check can probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Services    map[string]*ServiceHealth `json:"services"`
	System      *SystemHealth             `json:"system"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status       string `json:"status"`
	Healthy      bool   `json:"healthy"`
	ResponseTime string `json:"response_time,omitempty"`
	Description  string `json:"description,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SystemHealth represents process resource usage
type SystemHealth struct {
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	GCRuns     uint32 `json:"gc_runs"`
	GoRoutines int    `json:"goroutines"`
}

// HealthHandler handles health check requests
type HealthHandler struct {
	gateway     config.GatewayConfig
	environment string
	dependency  map[string]Pinger
	startTime   time.Time
}

// NewHealthHandler creates a new health handler. Every pinger is critical,
// a failing one turns the service unhealthy.
func NewHealthHandler(gateway config.GatewayConfig, environment string, dependencies map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		gateway:     gateway,
		environment: environment,
		dependency:  dependencies,
		startTime:   time.Now(),
	}
}

// CheckHealth performs the health checks
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).String(),
		Environment: h.environment,
		Services:    h.checkServices(ctx),
		System:      checkSystem(),
	}
	health.Status = overallStatus(health.Services)

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	_ = response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

func (h *HealthHandler) checkServices(ctx context.Context) map[string]*ServiceHealth {
	services := make(map[string]*ServiceHealth, len(h.dependency)+1)

	gateway := &ServiceHealth{Description: "Wallet gateway credentials"}
	if err := h.gateway.Validate(); err != nil {
		gateway.Status = "not_configured"
		gateway.Error = err.Error()
	} else {
		gateway.Status = "healthy"
		gateway.Healthy = true
	}
	services["gateway"] = gateway

	names := make([]string, 0, len(h.dependency))
	for name := range h.dependency {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		start := time.Now()
		err := h.dependency[name].Ping(ctx)
		svc := &ServiceHealth{
			ResponseTime: fmt.Sprintf("%.0fms", float64(time.Since(start).Nanoseconds())/1e6),
		}
		if err != nil {
			svc.Status = "unhealthy"
			svc.Error = err.Error()
		} else {
			svc.Status = "healthy"
			svc.Healthy = true
		}
		services[name] = svc
	}

	return services
}

// overallStatus is unhealthy when a dependency is down and degraded when only
// the gateway credentials are missing
func overallStatus(services map[string]*ServiceHealth) string {
	status := "healthy"
	for name, svc := range services {
		if svc.Healthy {
			continue
		}
		if name != "gateway" {
			return "unhealthy"
		}
		status = "degraded"
	}
	return status
}

func checkSystem() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Alloc:      formatBytes(memStats.Alloc),
		Sys:        formatBytes(memStats.Sys),
		GCRuns:     memStats.NumGC,
		GoRoutines: runtime.NumGoroutine(),
	}
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
