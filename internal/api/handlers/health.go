package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/hydraproxy/internal/api/models"
	"github.com/shirou/gopsutil/v3/process"
)

// Health godoc
// @Summary Health check
// @Description Returns server health status, including the query log store when enabled
// @Tags system
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Failure 503 {object} models.HealthResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	resp := models.HealthResponse{Status: "ok"}
	if h.queryLog != nil {
		resp.QueryLog = "ok"
		if err := h.queryLog.Health(); err != nil {
			h.logger.Warn("query log health check failed", "err", err)
			resp.Status = "degraded"
			resp.QueryLog = err.Error()
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Stats godoc
// @Summary Server statistics
// @Description Returns uptime, process resource usage and proxy counters
// @Tags system
// @Produce json
// @Success 200 {object} models.ServerStatsResponse
// @Security ApiKeyAuth
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)

	resp := models.ServerStatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		GoRoutines:    runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		Process:       h.processStats(c),
	}
	if h.stats != nil {
		resp.Proxy = h.stats.Snapshot()
	}

	c.JSON(http.StatusOK, resp)
}

// processStats reads RSS, CPU and thread counts. Fields the platform cannot
// report are left zero.
func (h *Handler) processStats(c *gin.Context) *models.ProcessStats {
	pid := int32(os.Getpid()) //nolint:gosec // pids fit in int32
	p, err := process.NewProcessWithContext(c.Request.Context(), pid)
	if err != nil {
		h.logger.Debug("process stats unavailable", "err", err)
		return nil
	}

	out := &models.ProcessStats{PID: pid}
	if mem, err := p.MemoryInfoWithContext(c.Request.Context()); err == nil {
		out.RSSBytes = mem.RSS
		out.VMSBytes = mem.VMS
	}
	if cpu, err := p.CPUPercentWithContext(c.Request.Context()); err == nil {
		out.CPUPercent = cpu
	}
	if n, err := p.NumThreadsWithContext(c.Request.Context()); err == nil {
		out.NumThreads = n
	}
	return out
}
