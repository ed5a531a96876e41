package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SystemMetrics holds current system metrics snapshot
type SystemMetrics struct {
	CPUPercent        float64 // System-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // This process, can exceed 100% on multi-core
	ProcessRSSGB      float64 // Resident memory of this process, canvases included
	MemoryUsedGB      float64
	MemoryTotalGB     float64
	MemoryPercent     float64
	DiskWriteMBps     float64
	Timestamp         time.Time
}

// Collector periodically samples system metrics during an encode run,
// logs them and mirrors them into the process gauges
type Collector struct {
	interval      time.Duration
	logger        *zap.Logger
	proc          *process.Process
	lastDiskWrite uint64
	lastDiskTime  time.Time
	mu            sync.RWMutex
	lastMetrics   *SystemMetrics
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// Start begins periodic metrics collection. Returns when context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// First sample sets the disk baseline
	c.collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// GetMetrics returns the last collected metrics
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

func (c *Collector) collect() {
	m := &SystemMetrics{
		Timestamp: time.Now(),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	}

	if c.proc != nil {
		if procCPU, err := c.proc.Percent(0); err == nil {
			m.ProcessCPUPercent = procCPU
		}
		if info, err := c.proc.MemoryInfo(); err == nil && info != nil {
			m.ProcessRSSGB = toGB(info.RSS)
		}
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		m.MemoryPercent = vmem.UsedPercent
		m.MemoryUsedGB = toGB(vmem.Used)
		m.MemoryTotalGB = toGB(vmem.Total)
	}

	m.DiskWriteMBps = c.diskWriteRate(m.Timestamp)

	c.mu.Lock()
	c.lastMetrics = m
	c.mu.Unlock()

	ProcessCPUPercent.Set(m.ProcessCPUPercent)
	ProcessRSSBytes.Set(m.ProcessRSSGB * (1 << 30))

	c.logger.Info("System metrics",
		zap.Float64("sys_cpu", m.CPUPercent),
		zap.Float64("proc_cpu", m.ProcessCPUPercent),
		zap.String("proc_rss", fmt.Sprintf("%.1f GB", m.ProcessRSSGB)),
		zap.Float64("mem_pct", m.MemoryPercent),
		zap.String("disk_w", fmt.Sprintf("%.1f MB/s", m.DiskWriteMBps)),
	)
}

// diskWriteRate returns MB/s written across all disks since the last call
func (c *Collector) diskWriteRate(now time.Time) float64 {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0
	}

	var total uint64
	for _, counter := range counters {
		total += counter.WriteBytes
	}

	if c.lastDiskTime.IsZero() {
		c.lastDiskWrite = total
		c.lastDiskTime = now
		return 0
	}

	elapsed := now.Sub(c.lastDiskTime).Seconds()
	if elapsed < 0.1 {
		return 0
	}

	var delta uint64
	if total >= c.lastDiskWrite {
		delta = total - c.lastDiskWrite
	}
	c.lastDiskWrite = total
	c.lastDiskTime = now

	return float64(delta) / elapsed / (1 << 20)
}

func toGB(b uint64) float64 {
	return float64(b) / (1 << 30)
}
