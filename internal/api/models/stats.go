package models

import (
	"time"

	"github.com/jroosing/hydraproxy/internal/server"
)

// ServerStatsResponse contains process and proxy statistics.
type ServerStatsResponse struct {
	Uptime        string               `json:"uptime"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	StartTime     time.Time            `json:"start_time"`
	GoRoutines    int                  `json:"goroutines"`
	NumCPU        int                  `json:"num_cpu"`
	Process       *ProcessStats        `json:"process,omitempty"`
	Proxy         server.StatsSnapshot `json:"proxy"`
}

// ProcessStats is read from the operating system for the running process.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	VMSBytes   uint64  `json:"vms_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	NumThreads int32   `json:"num_threads"`
}
