package collector

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/vibhukrishnas/sams-core/internal/pkg/logger"
	"github.com/vibhukrishnas/sams-core/internal/services"
)

// System samples local host metrics and pushes them into the evaluation
// pipeline under a fixed target ID, so the monitoring host can alert on
// itself with ordinary rules.
type System struct {
	sink     services.MetricSink
	targetID string
	interval time.Duration
	diskPath string
	logger   *logger.Logger
}

// NewSystem creates a self collector. interval <= 0 defaults to 15s,
// diskPath "" defaults to "/".
func NewSystem(sink services.MetricSink, targetID string, interval time.Duration, diskPath string, log *logger.Logger) *System {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &System{
		sink:     sink,
		targetID: targetID,
		interval: interval,
		diskPath: diskPath,
		logger:   log,
	}
}

// Start samples until ctx is cancelled. The first sample fires immediately.
func (c *System) Start(ctx context.Context) {
	c.logger.WithFields(map[string]interface{}{
		"target_id": c.targetID,
		"interval":  c.interval.String(),
	}).Info("Starting system collector")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample(ctx)
	for {
		select {
		case <-ticker.C:
			c.sample(ctx)
		case <-ctx.Done():
			c.logger.Info("System collector stopped")
			return
		}
	}
}

func (c *System) sample(ctx context.Context) {
	values := make(map[string]float64)

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		values["cpu_usage_percent"] = pct[0]
	} else if err != nil {
		c.logger.WithError(err).Debug("CPU sample failed")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		values["memory_usage_percent"] = vm.UsedPercent
		values["memory_available_mb"] = float64(vm.Available) / (1024 * 1024)
	} else {
		c.logger.WithError(err).Debug("Memory sample failed")
	}

	if du, err := disk.UsageWithContext(ctx, c.diskPath); err == nil {
		values["disk_usage_percent"] = du.UsedPercent
		values["disk_free_gb"] = float64(du.Free) / (1024 * 1024 * 1024)
	} else {
		c.logger.WithError(err).Debug("Disk sample failed")
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		values["load_1m"] = avg.Load1
		values["load_5m"] = avg.Load5
	} else {
		c.logger.WithError(err).Debug("Load sample failed")
	}

	if len(values) == 0 {
		return
	}
	c.sink.PushMetrics(ctx, c.targetID, values, time.Now())
}
