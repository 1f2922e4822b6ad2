// Package app wires the poller together and manages its lifecycle.
//
//	config → inventory → driver setup (bounded, concurrent) →
//	ResolveJobs → Scheduler ──Export──▶ Pipeline (encoder → transport)
//
// Devices whose setup fails are skipped; the rest keep running.
package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vpbank/netpaca/pkg/netpaca/collector"
	"github.com/vpbank/netpaca/pkg/netpaca/config"
	"github.com/vpbank/netpaca/pkg/netpaca/device"
	"github.com/vpbank/netpaca/pkg/netpaca/driver"
	"github.com/vpbank/netpaca/pkg/netpaca/export"
	"github.com/vpbank/netpaca/pkg/netpaca/inventory"
	"github.com/vpbank/netpaca/pkg/netpaca/scheduler"
	"github.com/vpbank/netpaca/pkg/netpaca/telemetry"
)

// ErrNothingToCollect is returned by Start when no task could be scheduled.
var ErrNothingToCollect = errors.New("app: no device/collector pairing could be scheduled")

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config holds the process settings. Zero-value fields fall back to the
// configuration file or the built-in defaults.
type Config struct {
	// ConfigPath is the TOML or YAML configuration file.
	ConfigPath string

	// Inventory overrides defaults.inventory.
	Inventory string

	// Filter restricts the inventory (--limit / --exclude).
	Filter inventory.Filter

	// Interval overrides defaults.interval, in seconds.
	Interval int

	// TelemetryListen overrides defaults.telemetry_listen.
	TelemetryListen string

	// Drivers, Collectors and Exporters default to the built-in registries.
	Drivers    driver.Registry
	Collectors collector.Registry
	Exporters  export.Registry

	// PoolOptions configures the shared SNMP session pool.
	PoolOptions driver.PoolOptions

	// MinInterval lowers the scheduler floor (tests only). Default 30s.
	MinInterval time.Duration
}

func (c *Config) withDefaults() {
	if c.Drivers == nil {
		c.Drivers = driver.Builtin()
	}
	if c.Collectors == nil {
		c.Collectors = collector.Builtin()
	}
	if c.Exporters == nil {
		c.Exporters = export.Builtin()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// App is one running poller. Create it with New, then Start and Stop.
type App struct {
	cfg    Config
	logger *slog.Logger

	loaded      *config.Config
	collectorID string
	metrics     *telemetry.Metrics
	telemetry   *telemetry.Server
	pool        *driver.ConnectionPool
	pipeline    *export.Pipeline
	sched       *scheduler.Scheduler
	devices     []*device.Device

	cancel context.CancelFunc
}

// New constructs an App. It does not start anything.
func New(cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg.withDefaults()
	return &App{cfg: cfg, logger: logger}
}

// Start loads the configuration and inventory, sets up every device and
// schedules its collectors. It returns once the tasks are running.
func (a *App) Start(ctx context.Context) error {
	// ── 1. Configuration ────────────────────────────────────────────────
	loaded, err := config.Load(a.cfg.ConfigPath, config.Known{
		Driver:    a.cfg.Drivers.Has,
		Collector: a.cfg.Collectors.Has,
		Exporter:  a.cfg.Exporters.Has,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := a.applyOverrides(loaded); err != nil {
		return err
	}
	a.loaded = loaded
	a.collectorID = resolveCollectorID(loaded.Defaults.CollectorID)
	a.logger.Info("app: configuration loaded",
		"file", a.cfg.ConfigPath,
		"collector_id", a.collectorID,
		"interval", loaded.Defaults.Interval,
	)

	// ── 2. Inventory ────────────────────────────────────────────────────
	records, err := inventory.Load(loaded.Defaults.Inventory, a.cfg.Filter)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.logger.Info("app: inventory loaded", "file", loaded.Defaults.Inventory, "devices", len(records))

	// ── 3. Telemetry and exporter ───────────────────────────────────────
	a.metrics = telemetry.New(a.collectorID)
	if addr := loaded.Defaults.TelemetryListen; addr != "" {
		if a.telemetry, err = telemetry.Start(addr, a.metrics, a.logger); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}

	name, exp, err := loaded.ActiveExporter()
	if err != nil {
		a.Stop()
		return fmt.Errorf("app: %w", err)
	}
	if a.pipeline, err = export.New(name, exp, a.cfg.Exporters, a.metrics, a.logger); err != nil {
		a.Stop()
		return fmt.Errorf("app: %w", err)
	}
	a.logger.Info("app: exporter ready", "exporter", name, "use", exp.Use)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// ── 4. Devices ──────────────────────────────────────────────────────
	a.pool = driver.NewConnectionPool(a.cfg.PoolOptions, a.logger)
	a.devices = a.setupDevices(runCtx, records)
	a.metrics.SetDevices(len(a.devices), len(records)-len(a.devices))

	// ── 5. Schedule ─────────────────────────────────────────────────────
	a.sched = scheduler.New(a.pipeline, scheduler.Options{
		MinInterval: a.cfg.MinInterval,
		Telemetry:   a.metrics,
	}, a.logger)

	for _, job := range scheduler.ResolveJobs(loaded, a.devices, a.cfg.Collectors, a.logger) {
		if _, err := a.sched.Schedule(runCtx, job.Device, job.Spec, job.Collect, job.Interval); err != nil {
			a.logger.Error("app: schedule failed", "device", job.Device.Name, "collector", job.Spec.Collector, "error", err.Error())
		}
	}
	if a.sched.Active() == 0 {
		a.Stop()
		return ErrNothingToCollect
	}

	a.logger.Info("app: collection running",
		"devices", len(a.devices),
		"skipped", len(records)-len(a.devices),
		"tasks", a.sched.Active(),
	)
	return nil
}

// Run starts the app, blocks until ctx is done, then stops it.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.Stop()
	return nil
}

// Stop cancels every task and releases devices, sessions and the exporter.
// In-flight exports are abandoned.
func (a *App) Stop() {
	a.logger.Info("app: shutting down")
	if a.cancel != nil {
		a.cancel()
	}
	if a.sched != nil {
		a.sched.Wait()
	}
	for _, dev := range a.devices {
		if err := dev.Close(); err != nil {
			a.logger.Warn("app: device close error", "device", dev.Name, "error", err.Error())
		}
	}
	if a.pool != nil {
		_ = a.pool.Close()
	}
	if a.pipeline != nil {
		if err := a.pipeline.Close(); err != nil {
			a.logger.Error("app: exporter close error", "error", err.Error())
		}
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.telemetry.Stop(ctx)
	}
	a.logger.Info("app: shutdown complete")
}

// Scheduler returns the running scheduler, nil before Start.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Devices returns the devices whose setup succeeded.
func (a *App) Devices() []*device.Device { return a.devices }

// CollectorID returns the instance identity used in self-metrics.
func (a *App) CollectorID() string { return a.collectorID }

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (a *App) applyOverrides(c *config.Config) error {
	if a.cfg.Interval != 0 {
		if err := c.SetInterval(a.cfg.Interval); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}
	if a.cfg.Inventory != "" {
		c.Defaults.Inventory = a.cfg.Inventory
	}
	if a.cfg.TelemetryListen != "" {
		c.Defaults.TelemetryListen = a.cfg.TelemetryListen
	}
	if c.Defaults.Inventory == "" {
		return fmt.Errorf("app: no inventory file (defaults.inventory or --inventory)")
	}
	return nil
}

// setupDevices runs the driver setup of every record, at most
// LoginConcurrency at a time. Failed devices are logged and left out.
func (a *App) setupDevices(ctx context.Context, records []inventory.Record) []*device.Device {
	var (
		mu    sync.Mutex
		ready []*device.Device
		g     errgroup.Group
	)
	g.SetLimit(a.loaded.Defaults.LoginConcurrency)

	for _, rec := range records {
		g.Go(func() error {
			dev, err := a.setupDevice(ctx, rec)
			if err != nil {
				a.logger.Error("app: device setup failed, skipping",
					"device", rec.Host(),
					"os_name", rec.OSName(),
					"error", err.Error(),
				)
				return nil
			}
			mu.Lock()
			ready = append(ready, dev)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(ready, func(x, y *device.Device) int { return cmp.Compare(x.Name, y.Name) })
	return ready
}

func (a *App) setupDevice(ctx context.Context, rec inventory.Record) (*device.Device, error) {
	dd, ok := a.loaded.DeviceDrivers[rec.OSName()]
	if !ok {
		return nil, fmt.Errorf("os_name %q has no device_drivers entry", rec.OSName())
	}
	drv, ok := a.cfg.Drivers.Lookup(dd.Use)
	if !ok {
		return nil, fmt.Errorf("unknown driver %q", dd.Use)
	}

	dev := device.New(rec.Host(), rec.Address(), rec.OSName(), rec)
	dev.Driver = drv.Name
	err := drv.Setup(ctx, dev, driver.Env{
		Defaults: a.loaded.Defaults,
		Driver:   dd,
		Pool:     a.pool,
		Logger:   a.logger,
	})
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	a.logger.Info("app: device ready", "device", dev.Name, "driver", dev.Driver)
	return dev, nil
}

// resolveCollectorID returns configured, else the hostname, else a random UUID.
func resolveCollectorID(configured string) string {
	if configured != "" {
		return configured
	}
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return uuid.NewString()
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
