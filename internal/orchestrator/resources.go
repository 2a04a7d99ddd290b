package orchestrator

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/reasongraph/reasongraph/internal/config"
)

// ResourceMonitor checks host memory and CPU pressure before each stage.
// Probe failures fail open: an unreadable metric never halts the pipeline.
type ResourceMonitor struct {
	maxMemoryPercent float64
	maxCPUPercent    float64
	logger           *slog.Logger
}

// NewResourceMonitor builds a monitor from the configured ceilings. Ceilings
// of zero or below disable the respective check.
func NewResourceMonitor(cfg config.ResourceConfig) *ResourceMonitor {
	return &ResourceMonitor{
		maxMemoryPercent: cfg.MaxMemoryPercent,
		maxCPUPercent:    cfg.MaxCPUPercent,
		logger:           slog.Default().With("component", "resource_monitor"),
	}
}

// CheckResources reports whether the host is under the configured ceilings.
func (m *ResourceMonitor) CheckResources(ctx context.Context) bool {
	if m.maxMemoryPercent > 0 {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			m.logger.Warn("memory probe failed", "error", err)
		} else if vm.UsedPercent > m.maxMemoryPercent {
			m.logger.Warn("memory ceiling exceeded",
				"used_percent", vm.UsedPercent, "max_percent", m.maxMemoryPercent)
			return false
		}
	}

	if m.maxCPUPercent > 0 {
		// A zero interval reads the counters since the previous call; the
		// first call returns 0 and is effectively a warm-up.
		percents, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil {
			m.logger.Warn("cpu probe failed", "error", err)
		} else if len(percents) > 0 && percents[0] > m.maxCPUPercent {
			m.logger.Warn("cpu ceiling exceeded",
				"used_percent", percents[0], "max_percent", m.maxCPUPercent)
			return false
		}
	}
	return true
}
