package config

import (
	"fmt"
	"slices"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	// DefaultIntervalSeconds is used when neither the collector nor the
	// defaults section sets an interval.
	DefaultIntervalSeconds = 60

	// MinIntervalSeconds is the smallest accepted collection interval.
	MinIntervalSeconds = 30

	// EnvPrefix prefixes every environment override, e.g.
	// NETPACA_CREDENTIALS_PASSWORD.
	EnvPrefix = "NETPACA_"
)

// ─────────────────────────────────────────────────────────────────────────────
// File model
// ─────────────────────────────────────────────────────────────────────────────

// Config is the whole configuration file.
type Config struct {
	Defaults      Defaults                `yaml:"defaults"       toml:"defaults"`
	DeviceDrivers map[string]DeviceDriver `yaml:"device_drivers" toml:"device_drivers"`
	Collectors    map[string]Collector    `yaml:"collectors"     toml:"collectors"`
	Exporters     map[string]Exporter     `yaml:"exporters"      toml:"exporters"`
}

// Defaults holds the settings shared by every device and collector. Every
// field can be overridden from the environment (NETPACA_ prefix).
type Defaults struct {
	// Interval is the default collection interval in seconds.
	Interval int `yaml:"interval" toml:"interval" env:"INTERVAL"`

	// Inventory is the path of the CSV inventory file.
	Inventory string `yaml:"inventory" toml:"inventory" env:"INVENTORY"`

	// Credentials are used by CLI drivers to log in.
	Credentials Credentials `yaml:"credentials" toml:"credentials" envPrefix:"CREDENTIALS_"`

	// SNMP parameters for SNMP capable drivers.
	SNMP SNMP `yaml:"snmp" toml:"snmp" envPrefix:"SNMP_"`

	// Exporters names the exporter to use; the first entry wins.
	Exporters []string `yaml:"exporters" toml:"exporters" env:"EXPORTERS"`

	// CollectorID identifies this process in self-metrics and logs.
	// Defaults to the hostname.
	CollectorID string `yaml:"collector_id" toml:"collector_id" env:"COLLECTOR_ID"`

	// TelemetryListen is the address of the /metrics endpoint, "" disables it.
	TelemetryListen string `yaml:"telemetry_listen" toml:"telemetry_listen" env:"TELEMETRY_LISTEN"`

	// LoginConcurrency bounds how many devices connect at the same time.
	LoginConcurrency int `yaml:"login_concurrency" toml:"login_concurrency" env:"LOGIN_CONCURRENCY"`
}

// Credentials is a username / password pair.
type Credentials struct {
	Username string `yaml:"username" toml:"username" env:"USERNAME"`
	Password string `yaml:"password" toml:"password" env:"PASSWORD"`
}

// SNMP holds the SNMP session parameters.
type SNMP struct {
	// Version is "1", "2c" or "3". Default "2c".
	Version string `yaml:"version" toml:"version" env:"VERSION"`

	// Community for v1/v2c.
	Community string `yaml:"community" toml:"community" env:"COMMUNITY"`

	// Port is the agent UDP port. Default 161.
	Port int `yaml:"port" toml:"port" env:"PORT"`

	// TimeoutMS is the per-request timeout in milliseconds. Default 3000.
	TimeoutMS int `yaml:"timeout_ms" toml:"timeout_ms" env:"TIMEOUT_MS"`

	// Retries on timeout. Default 2.
	Retries int `yaml:"retries" toml:"retries" env:"RETRIES"`

	// MaxRepetitions is the GetBulk page size (v2c/v3). Default 25.
	MaxRepetitions int `yaml:"max_repetitions" toml:"max_repetitions" env:"MAX_REPETITIONS"`

	// MaxConcurrent bounds in-flight requests per device. Default 4.
	MaxConcurrent int `yaml:"max_concurrent" toml:"max_concurrent" env:"MAX_CONCURRENT"`

	// V3 security parameters, used when Version is "3".
	V3 V3Credentials `yaml:"v3" toml:"v3" envPrefix:"V3_"`
}

// V3Credentials holds a single set of SNMPv3 security parameters.
type V3Credentials struct {
	// Username is the SNMPv3 security name.
	Username string `yaml:"username" toml:"username" env:"USERNAME"`

	// AuthenticationProtocol is one of: noauth, md5, sha, sha224, sha256, sha384, sha512.
	AuthenticationProtocol string `yaml:"authentication_protocol" toml:"authentication_protocol" env:"AUTHENTICATION_PROTOCOL"`

	// AuthenticationPassphrase is the passphrase for the chosen auth protocol.
	AuthenticationPassphrase string `yaml:"authentication_passphrase" toml:"authentication_passphrase" env:"AUTHENTICATION_PASSPHRASE"`

	// PrivacyProtocol is one of: nopriv, des, aes, aes192, aes256, aes192c, aes256c.
	PrivacyProtocol string `yaml:"privacy_protocol" toml:"privacy_protocol" env:"PRIVACY_PROTOCOL"`

	// PrivacyPassphrase is the passphrase for the chosen privacy protocol.
	PrivacyPassphrase string `yaml:"privacy_passphrase" toml:"privacy_passphrase" env:"PRIVACY_PASSPHRASE"`
}

// DeviceDriver binds an inventory os_name (the map key) to a built-in driver.
type DeviceDriver struct {
	// Use is the built-in driver name. Defaults to the map key.
	Use string `yaml:"use" toml:"use"`

	// Collectors restricts which collectors run on these devices. Empty
	// means every configured collector.
	Collectors []string `yaml:"collectors" toml:"collectors"`

	// SSHPort for CLI drivers. Default 22.
	SSHPort int `yaml:"ssh_port" toml:"ssh_port"`

	// APIPort for NX-API and eAPI drivers. Default 443.
	APIPort int `yaml:"api_port" toml:"api_port"`

	// VerifyTLS checks the device API certificate. Off by default since
	// most devices ship self-signed ones.
	VerifyTLS bool `yaml:"verify_tls" toml:"verify_tls"`

	// CommandTimeoutSeconds bounds one CLI command. Default 60.
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds" toml:"command_timeout_seconds"`
}

// CommandTimeout returns CommandTimeoutSeconds as a duration.
func (d DeviceDriver) CommandTimeout() time.Duration {
	return time.Duration(d.CommandTimeoutSeconds) * time.Second
}

// Collector configures one collector instance (the map key is its name).
type Collector struct {
	// Use is the built-in collector type. Defaults to the map key.
	Use string `yaml:"use" toml:"use"`

	Config CollectorOptions `yaml:"config" toml:"config"`
}

// CollectorOptions are the per-collector settings handed to the collector
// on every invocation.
type CollectorOptions struct {
	// Interval in seconds; 0 means Defaults.Interval.
	Interval int `yaml:"interval" toml:"interval"`

	// Command overrides the CLI command of CLI collectors.
	Command string `yaml:"command" toml:"command"`
}

// Exporter configures one export backend (the map key is its name).
type Exporter struct {
	// Use is the built-in exporter type: influxdb, circonus or file.
	// Defaults to the map key.
	Use string `yaml:"use" toml:"use"`

	Config ExporterOptions `yaml:"config" toml:"config"`
}

// ExporterOptions is the union of the settings of all exporter types.
type ExporterOptions struct {
	// influxdb
	ServerURL string `yaml:"server_url" toml:"server_url"`
	Database  string `yaml:"database"   toml:"database"`

	// circonus
	DataSubmissionURL string `yaml:"circonus_datasubmission_url" toml:"circonus_datasubmission_url"`

	// file
	Path       string `yaml:"path"         toml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"  toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"  toml:"max_backups"`
	Compress   bool   `yaml:"compress"     toml:"compress"`

	// http exporters
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
	TimeoutSeconds     int  `yaml:"timeout_seconds"      toml:"timeout_seconds"`

	Retry Retry `yaml:"retry" toml:"retry"`
}

// Retry bounds the export retry loop. Zero values take the pipeline defaults.
type Retry struct {
	MinBackoffSeconds int `yaml:"min_backoff_seconds" toml:"min_backoff_seconds"`
	MaxBackoffSeconds int `yaml:"max_backoff_seconds" toml:"max_backoff_seconds"`
	MaxAttempts       int `yaml:"max_attempts"        toml:"max_attempts"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Resolution helpers
// ─────────────────────────────────────────────────────────────────────────────

// ResolveInterval returns the interval for collector c: its own setting when
// present, the defaults otherwise.
func (c *Config) ResolveInterval(col Collector) time.Duration {
	secs := col.Config.Interval
	if secs <= 0 {
		secs = c.Defaults.Interval
	}
	if secs <= 0 {
		secs = DefaultIntervalSeconds
	}
	return time.Duration(secs) * time.Second
}

// SetInterval overrides the default interval, as the --interval flag does.
// Values below MinIntervalSeconds are rejected.
func (c *Config) SetInterval(secs int) error {
	if secs < MinIntervalSeconds {
		return fmt.Errorf("interval %ds is below the minimum of %ds", secs, MinIntervalSeconds)
	}
	c.Defaults.Interval = secs
	return nil
}

// ActiveExporter returns the single exporter in use: the first name in
// Defaults.Exporters, otherwise the first configured exporter by name.
func (c *Config) ActiveExporter() (string, Exporter, error) {
	for _, name := range c.Defaults.Exporters {
		if e, ok := c.Exporters[name]; ok {
			return name, e, nil
		}
		return "", Exporter{}, fmt.Errorf("defaults.exporters: exporter %q is not configured", name)
	}
	names := SortedKeys(c.Exporters)
	if len(names) == 0 {
		return "", Exporter{}, fmt.Errorf("no exporters configured")
	}
	return names[0], c.Exporters[names[0]], nil
}

// CollectorsFor returns the sorted collector names that run on devices using
// the given driver entry.
func (c *Config) CollectorsFor(dd DeviceDriver) []string {
	names := SortedKeys(c.Collectors)
	if len(dd.Collectors) == 0 {
		return names
	}
	return slices.DeleteFunc(names, func(n string) bool {
		return !slices.Contains(dd.Collectors, n)
	})
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
