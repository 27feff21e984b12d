package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthResponse reports component health for load balancers and monitors.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
}

// HealthCheck reports overall service health. Degrades to 503 when Redis is
// unreachable; a missing snapshot is reported but does not fail the check,
// since the service can still refresh on demand.
func (h *Handler) HealthCheck(c *gin.Context) {
	status := "ok"
	httpStatus := http.StatusOK
	services := map[string]string{}

	if h.Redis != nil {
		if err := h.Redis.HealthCheck(c.Request.Context()); err != nil {
			services["redis"] = "unhealthy: " + err.Error()
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		} else {
			services["redis"] = "healthy"
		}
	}

	if _, ok := h.Pipeline.Snapshot(); ok {
		services["snapshot"] = "available"
	} else if err := h.Pipeline.LastError(); err != nil {
		services["snapshot"] = "load failed: " + err.Error()
	} else {
		services["snapshot"] = "pending"
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   h.Version,
		Services:  services,
	})
}

// Status reports runtime resource usage and snapshot freshness, for
// operators rather than load balancers.
func (h *Handler) Status(c *gin.Context) {
	body := gin.H{
		"version":    h.Version,
		"uptime_s":   int64(time.Since(h.StartedAt).Seconds()),
		"goroutines": runtime.NumGoroutine(),
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		body["memory_used_percent"] = memInfo.UsedPercent
	}
	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		body["cpu_percent"] = cpuPercent[0]
	}

	if snapshot, ok := h.Pipeline.Snapshot(); ok {
		body["snapshot"] = gin.H{
			"refreshed_at": snapshot.RefreshedAt,
			"age_s":        int64(time.Since(snapshot.RefreshedAt).Seconds()),
			"proposals":    len(snapshot.Proposals),
			"voters":       len(snapshot.Voters),
			"anomalies":    len(snapshot.Anomalies),
		}
	}
	if err := h.Pipeline.LastError(); err != nil {
		body["last_refresh_error"] = err.Error()
	}

	c.JSON(http.StatusOK, body)
}
