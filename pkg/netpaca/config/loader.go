// Package config loads the netpaca configuration file.
//
// The file is YAML (.yml/.yaml) or TOML (.toml, the default for any other
// extension). Before decoding, $VAR and ${VAR} references are expanded from
// the environment; after decoding, NETPACA_* variables override the defaults
// section, e.g.
//
//	NETPACA_INTERVAL=120
//	NETPACA_CREDENTIALS_USERNAME=netops
//	NETPACA_SNMP_COMMUNITY=s3cret
//
// Every problem found during validation is reported at once.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Known lists the built-in names a configuration may refer to. A nil
// function skips that check.
type Known struct {
	Driver    func(name string) bool
	Collector func(name string) bool
	Exporter  func(name string) bool
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load reads, decodes, overrides, defaults and validates the file at path.
func Load(path string, known Known, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(known); err != nil {
		return nil, err
	}

	logger.Debug("config: loaded",
		"file", path,
		"device_drivers", len(cfg.DeviceDrivers),
		"collectors", len(cfg.Collectors),
		"exporters", len(cfg.Exporters),
	)
	return cfg, nil
}

// Format is a configuration file syntax.
type Format int

const (
	TOML Format = iota
	YAML
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return YAML
	default:
		return TOML
	}
}

// Parse expands environment references in data and decodes it.
func Parse(data []byte, format Format) (*Config, error) {
	text := os.ExpandEnv(string(data))

	var cfg Config
	switch format {
	case YAML:
		if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		tree, err := toml.Load(text)
		if err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
		if err := tree.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	}
	return &cfg, nil
}

// ApplyEnv overrides the defaults section from NETPACA_* variables.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(&c.Defaults, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// ApplyDefaults fills zero values with the built-in fallbacks and the Use
// fields with their map keys.
func (c *Config) ApplyDefaults() {
	d := &c.Defaults
	if d.Interval == 0 {
		d.Interval = DefaultIntervalSeconds
	}
	if d.LoginConcurrency <= 0 {
		d.LoginConcurrency = 16
	}
	if d.SNMP.Version == "" {
		d.SNMP.Version = "2c"
	}
	if d.SNMP.Port == 0 {
		d.SNMP.Port = 161
	}
	if d.SNMP.TimeoutMS == 0 {
		d.SNMP.TimeoutMS = 3000
	}
	if d.SNMP.Retries == 0 {
		d.SNMP.Retries = 2
	}
	if d.SNMP.MaxRepetitions == 0 {
		d.SNMP.MaxRepetitions = 25
	}
	if d.SNMP.MaxConcurrent == 0 {
		d.SNMP.MaxConcurrent = 4
	}

	for name, dd := range c.DeviceDrivers {
		if dd.Use == "" {
			dd.Use = name
		}
		if dd.SSHPort == 0 {
			dd.SSHPort = 22
		}
		if dd.APIPort == 0 {
			dd.APIPort = 443
		}
		if dd.CommandTimeoutSeconds <= 0 {
			dd.CommandTimeoutSeconds = 60
		}
		c.DeviceDrivers[name] = dd
	}
	for name, col := range c.Collectors {
		if col.Use == "" {
			col.Use = name
			c.Collectors[name] = col
		}
	}
	for name, e := range c.Exporters {
		if e.Use == "" {
			e.Use = name
			c.Exporters[name] = e
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate checks the file model and, where known provides them, the
// built-in names it references. All errors are accumulated.
func (c *Config) Validate(known Known) error {
	var errs []string
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Defaults.Interval < MinIntervalSeconds {
		add("defaults.interval: %ds is below the minimum of %ds", c.Defaults.Interval, MinIntervalSeconds)
	}
	switch c.Defaults.SNMP.Version {
	case "1", "2c", "3":
	default:
		add("defaults.snmp.version: unsupported version %q", c.Defaults.SNMP.Version)
	}

	if len(c.DeviceDrivers) == 0 {
		add("device_drivers: at least one driver is required")
	}
	for _, name := range SortedKeys(c.DeviceDrivers) {
		dd := c.DeviceDrivers[name]
		if known.Driver != nil && !known.Driver(dd.Use) {
			add("device_drivers.%s: unknown driver %q", name, dd.Use)
		}
		for _, col := range dd.Collectors {
			if _, ok := c.Collectors[col]; !ok {
				add("device_drivers.%s: collector %q is not configured", name, col)
			}
		}
	}

	if len(c.Collectors) == 0 {
		add("collectors: at least one collector is required")
	}
	for _, name := range SortedKeys(c.Collectors) {
		col := c.Collectors[name]
		if known.Collector != nil && !known.Collector(col.Use) {
			add("collectors.%s: unknown collector %q", name, col.Use)
		}
		if iv := col.Config.Interval; iv != 0 && iv < MinIntervalSeconds {
			add("collectors.%s: interval %ds is below the minimum of %ds", name, iv, MinIntervalSeconds)
		}
	}

	if len(c.Exporters) == 0 {
		add("exporters: at least one exporter is required")
	}
	for _, name := range SortedKeys(c.Exporters) {
		e := c.Exporters[name]
		if known.Exporter != nil && !known.Exporter(e.Use) {
			add("exporters.%s: unknown exporter %q", name, e.Use)
		}
		switch e.Use {
		case "influxdb":
			if e.Config.ServerURL == "" {
				add("exporters.%s: config.server_url is required", name)
			}
			if e.Config.Database == "" {
				add("exporters.%s: config.database is required", name)
			}
		case "circonus":
			if e.Config.DataSubmissionURL == "" {
				add("exporters.%s: config.circonus_datasubmission_url is required", name)
			}
		}
	}
	for _, name := range c.Defaults.Exporters {
		if _, ok := c.Exporters[name]; !ok {
			add("defaults.exporters: exporter %q is not configured", name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %d error(s):\n  %s", len(errs), strings.Join(errs, "\n  "))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
