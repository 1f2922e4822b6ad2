package scheduler

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vpbank/netpaca/pkg/netpaca/collector"
	"github.com/vpbank/netpaca/pkg/netpaca/config"
	"github.com/vpbank/netpaca/pkg/netpaca/device"
	"github.com/vpbank/netpaca/pkg/netpaca/driver"
)

// Job is one resolved (device, collector) pairing ready for Schedule.
type Job struct {
	Device   *device.Device
	Spec     Spec
	Collect  collector.Func
	Interval time.Duration
}

// ResolveJobs pairs every device with the collectors configured for its
// device-driver entry (keyed by the device os_name). A collector whose
// requirements the device's driver session cannot meet is logged and
// skipped for that device only.
func ResolveJobs(cfg *config.Config, devices []*device.Device, types collector.Registry, logger *slog.Logger) []Job {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	sorted := make([]*device.Device, len(devices))
	copy(sorted, devices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var jobs []Job
	for _, dev := range sorted {
		dd, ok := cfg.DeviceDrivers[dev.OSName]
		if !ok {
			logger.Warn("scheduler: no device driver for os_name", "device", dev.Name, "os_name", dev.OSName)
			continue
		}
		for _, name := range cfg.CollectorsFor(dd) {
			col := cfg.Collectors[name]
			typ, ok := types.Lookup(col.Use)
			if !ok {
				logger.Warn("scheduler: unknown collector type", "device", dev.Name, "collector", name, "use", col.Use)
				continue
			}
			if !driver.Supports(dev, typ.Requires) {
				logger.Error("scheduler: collector requirement not met by driver",
					"device", dev.Name,
					"collector", name,
					"driver", dev.Driver,
					"requires", strings.Join(typ.Requires, ","),
				)
				continue
			}
			jobs = append(jobs, Job{
				Device: dev,
				Spec: Spec{
					Collector:      name,
					ExpectsMetrics: typ.ExpectsMetrics(),
					Config:         col.Config,
				},
				Collect:  typ.Collect,
				Interval: cfg.ResolveInterval(col),
			})
		}
	}
	return jobs
}
