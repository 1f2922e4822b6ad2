// Command netpaca polls network devices and exports their metrics.
//
// It loads a TOML or YAML configuration file and a CSV inventory, logs in to
// every device, runs the configured collectors on their intervals and sends
// the results to the active exporter until interrupted (SIGINT / SIGTERM).
//
// Usage:
//
//	netpaca [flags]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpbank/netpaca/pkg/netpaca/app"
	"github.com/vpbank/netpaca/pkg/netpaca/driver"
	"github.com/vpbank/netpaca/pkg/netpaca/inventory"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "netpaca: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath      string
	inventory       string
	limits          []string
	excludes        []string
	interval        int
	logLevel        string
	logFmt          string
	logFile         string
	telemetryListen string

	poolMaxIdle int
	poolIdleSec int
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "netpaca",
		Short:         "Network device metric poller",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "C", "netpaca.toml", "Configuration file (.toml, .yml or .yaml)")
	f.StringVar(&o.inventory, "inventory", "", "Inventory CSV file (overrides defaults.inventory)")
	f.StringArrayVar(&o.limits, "limit", nil, "Only devices matching field=regex[,field=regex] (repeatable)")
	f.StringArrayVar(&o.excludes, "exclude", nil, "Skip devices matching field=regex[,field=regex] (repeatable)")
	f.IntVar(&o.interval, "interval", 0, "Default collection interval in seconds (overrides defaults.interval)")
	f.StringVar(&o.logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&o.logFmt, "log.fmt", "json", "Log format: json, text")
	f.StringVar(&o.logFile, "log.file", "", "Write logs to this file, rotated (default stderr)")
	f.StringVar(&o.telemetryListen, "telemetry.listen", "", "Self-metrics listen address, e.g. :9469")
	f.IntVar(&o.poolMaxIdle, "snmp.pool.max.idle", 2, "Max idle SNMP sessions per device")
	f.IntVar(&o.poolIdleSec, "snmp.pool.idle.timeout", 30, "Idle SNMP session timeout in seconds")
	return cmd
}

func run(parent context.Context, o options) error {
	logger, closeLog, err := buildLogger(o.logLevel, o.logFmt, o.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	application := app.New(app.Config{
		ConfigPath:      o.configPath,
		Inventory:       o.inventory,
		Filter:          inventory.Filter{Limits: o.limits, Excludes: o.excludes},
		Interval:        o.interval,
		TelemetryListen: o.telemetryListen,
		PoolOptions: driver.PoolOptions{
			MaxIdlePerDevice: o.poolMaxIdle,
			IdleTimeout:      time.Duration(o.poolIdleSec) * time.Second,
		},
	}, logger)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	logger.Info("netpaca: running, press Ctrl-C to stop")

	<-ctx.Done()
	logger.Info("netpaca: received shutdown signal")
	application.Stop()
	return nil
}
