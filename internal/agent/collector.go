package agent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"cmm/internal/models"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Collector produces one sample of the local host.
type Collector interface {
	Collect(ctx context.Context) (models.MetricSample, error)
}

// HostCollector samples the machine it runs on.
type HostCollector struct {
	ServerID string
	DiskPath string
	// CPUWindow is how long CPU usage is measured for. Defaults to one second.
	CPUWindow time.Duration

	now func() time.Time
}

func NewHostCollector(serverID, diskPath string) *HostCollector {
	if strings.TrimSpace(diskPath) == "" {
		diskPath = "/"
	}
	return &HostCollector{ServerID: serverID, DiskPath: diskPath, CPUWindow: time.Second, now: time.Now}
}

func (h *HostCollector) Collect(ctx context.Context) (models.MetricSample, error) {
	window := h.CPUWindow
	if window <= 0 {
		window = time.Second
	}
	cpuPercents, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil || len(cpuPercents) == 0 {
		return models.MetricSample{}, fmt.Errorf("read cpu: %w", orEmpty(err))
	}
	memoryStats, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.MetricSample{}, fmt.Errorf("read memory: %w", err)
	}
	diskStats, err := disk.UsageWithContext(ctx, h.DiskPath)
	if err != nil {
		return models.MetricSample{}, fmt.Errorf("read disk %s: %w", h.DiskPath, err)
	}
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return models.MetricSample{}, fmt.Errorf("read uptime: %w", err)
	}

	now := time.Now
	if h.now != nil {
		now = h.now
	}
	return models.MetricSample{
		ServerID:      h.ServerID,
		Timestamp:     models.Timestamp{Time: now().UTC()},
		CPUPercent:    roundPercent(cpuPercents[0]),
		RAMPercent:    roundPercent(memoryStats.UsedPercent),
		DiskPercent:   roundPercent(diskStats.UsedPercent),
		UptimeSeconds: int64(uptime),
	}, nil
}

func orEmpty(err error) error {
	if err == nil {
		return fmt.Errorf("no cpu samples")
	}
	return err
}

func clampFloat(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// roundPercent clamps to [0,100] and keeps one decimal place.
func roundPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Round(clampFloat(v, 0, 100)*10) / 10
}
