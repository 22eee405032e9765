package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"revenue-backend/internal/shard"
	"revenue-backend/pkg/utils"
)

var serverStart = time.Now()

// MonitoringHandler exposes an operator snapshot: host resources, database
// connection state, and the shard roster the engine is currently routing on.
type MonitoringHandler struct {
	DB     *pgxpool.Pool
	Router *shard.Router
}

type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsed    string  `json:"memory_used"`
	MemoryTotal   string  `json:"memory_total"`
	DiskPercent   float64 `json:"disk_percent"`
	DiskUsed      string  `json:"disk_used"`
	DiskTotal     string  `json:"disk_total"`
	Uptime        string  `json:"uptime"`
}

type DatabaseStats struct {
	Status         string `json:"status"`
	TotalConns     int32  `json:"total_conns"`
	IdleConns      int32  `json:"idle_conns"`
	AcquiredConns  int32  `json:"acquired_conns"`
	ResponseTimeMS int64  `json:"response_time_ms"`
}

type ShardStats struct {
	Districts int      `json:"districts"`
	Shards    []string `json:"shards"`
}

func NewMonitoringHandler(db *pgxpool.Pool, router *shard.Router) *MonitoringHandler {
	return &MonitoringHandler{DB: db, Router: router}
}

// Stats returns the full snapshot. Admin only. GET /api/admin/monitoring
func (h *MonitoringHandler) Stats(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"system":   h.systemStats(),
		"database": h.databaseStats(r.Context()),
		"shards":   h.shardStats(r.Context()),
	})
}

func (h *MonitoringHandler) systemStats() SystemStats {
	stats := SystemStats{Uptime: time.Since(serverStart).Round(time.Second).String()}

	if cpuPercents, err := cpu.Percent(time.Second, false); err == nil && len(cpuPercents) > 0 {
		stats.CPUPercent = cpuPercents[0]
	}
	if memStats, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = memStats.UsedPercent
		stats.MemoryUsed = formatBytes(memStats.Used)
		stats.MemoryTotal = formatBytes(memStats.Total)
	}
	if diskStats, err := disk.Usage("/"); err == nil {
		stats.DiskPercent = diskStats.UsedPercent
		stats.DiskUsed = formatBytes(diskStats.Used)
		stats.DiskTotal = formatBytes(diskStats.Total)
	}
	return stats
}

func (h *MonitoringHandler) databaseStats(ctx context.Context) DatabaseStats {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.DB.Ping(pingCtx)
	elapsed := time.Since(start).Milliseconds()

	pool := h.DB.Stat()
	stats := DatabaseStats{
		Status:         "healthy",
		TotalConns:     pool.TotalConns(),
		IdleConns:      pool.IdleConns(),
		AcquiredConns:  pool.AcquiredConns(),
		ResponseTimeMS: elapsed,
	}
	if err != nil {
		stats.Status = "unhealthy"
	}
	return stats
}

func (h *MonitoringHandler) shardStats(ctx context.Context) ShardStats {
	roster, err := h.Router.Roster(ctx)
	if err != nil {
		return ShardStats{}
	}

	shards := make([]string, 0, len(roster))
	for _, e := range roster {
		shards = append(shards, e.ShardID)
	}
	return ShardStats{Districts: len(roster), Shards: shards}
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
