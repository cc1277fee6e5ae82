package server

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/palemoky/tetris-battle/internal/logger"
)

// ResourceUsage 进程资源占用
type ResourceUsage struct {
	Goroutines int
	HeapMB     float64
	RSSMB      float64
	CPUPercent float64
	MemPercent float64 // 系统内存使用率
}

// monitorStats 定期输出服务器状态
func (s *Server) monitorStats(ctx context.Context) {
	interval := s.config.StatsIntervalDuration()
	if interval <= 0 {
		return
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("无法读取进程信息: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			usage := collectUsage(proc)
			stats := s.lobby.Stats()
			logger.Info("📊 [监控] 连接: %d | 会话: %d | 房间: %d (对局中 %d) | 邀请: %d | Goroutines: %d | 堆: %.2f MB | RSS: %.2f MB | CPU: %.1f%% | 系统内存: %.1f%%",
				s.GetOnlineCount(),
				stats.Sessions,
				stats.Rooms,
				stats.Playing,
				stats.Invites,
				usage.Goroutines,
				usage.HeapMB,
				usage.RSSMB,
				usage.CPUPercent,
				usage.MemPercent)
		}
	}
}

// collectUsage 采集资源占用，proc 为 nil 或读取失败的项保持为 0
func collectUsage(proc *process.Process) ResourceUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	usage := ResourceUsage{
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     float64(m.Alloc) / 1024 / 1024,
	}

	if proc != nil {
		if info, err := proc.MemoryInfo(); err == nil {
			usage.RSSMB = float64(info.RSS) / 1024 / 1024
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			usage.CPUPercent = cpu
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		usage.MemPercent = vm.UsedPercent
	}
	return usage
}
