// Package driver holds the closed set of built-in device drivers. A driver
// prepares a device.Device by opening its connections, proving they work
// (login) and filling in the Private handles collectors use:
//
//	snmp            SNMP page fetcher only
//	cisco.ios_ssh   SSH CLI commander with the IOS parsers
//	cisco.nxos_ssh  SSH CLI commander with the NX-OS parsers
//	cisco.nxapi     NX-API client, CLI text through cli_ascii, NX-OS parsers
//	arista.eapi     eAPI client, CLI text through the text format
//
// Every driver but snmp also opens SNMP when a community or v3 user is
// configured; an SNMP failure there only logs.
//
// The SNMP sessions of every device live in one shared ConnectionPool.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/vpbank/netpaca/parser"
	"github.com/vpbank/netpaca/parser/ios"
	"github.com/vpbank/netpaca/parser/nxos"
	"github.com/vpbank/netpaca/pkg/netpaca/config"
	"github.com/vpbank/netpaca/pkg/netpaca/device"
	"github.com/vpbank/netpaca/snmp/walk"
)

// sysUpTime is walked to prove an SNMP session works.
const sysUpTime = ".1.3.6.1.2.1.1.3"

// sshLoginCommand is run to prove a CLI session works.
const sshLoginCommand = "show users"

// Env is what a driver gets to prepare one device.
type Env struct {
	Defaults config.Defaults
	Driver   config.DeviceDriver
	Pool     *ConnectionPool
	Logger   *slog.Logger
}

// SetupFunc opens and verifies the device connections. Any error means the
// device is skipped.
type SetupFunc func(ctx context.Context, dev *device.Device, env Env) error

// Driver is one registry entry.
type Driver struct {
	Name        string
	Description string
	Setup       SetupFunc
}

// Registry maps driver name → Driver.
type Registry map[string]Driver

// Builtin returns the built-in drivers.
func Builtin() Registry {
	return Registry{
		"snmp": {
			Name:        "snmp",
			Description: "SNMP only (GetNext for v1, GetBulk for v2c/v3)",
			Setup:       setupSNMP,
		},
		"cisco.ios_ssh": {
			Name:        "cisco.ios_ssh",
			Description: "Cisco IOS/IOS-XE over SSH, SNMP when configured",
			Setup:       setupSSH(ios.Parsers),
		},
		"cisco.nxos_ssh": {
			Name:        "cisco.nxos_ssh",
			Description: "Cisco NX-OS over SSH, SNMP when configured",
			Setup:       setupSSH(nxos.Parsers),
		},
		"cisco.nxapi": {
			Name:        "cisco.nxapi",
			Description: "Cisco NX-OS over NX-API JSON-RPC, SNMP when configured",
			Setup:       setupAPI(DialectNXAPI, nxos.Parsers),
		},
		"arista.eapi": {
			Name:        "arista.eapi",
			Description: "Arista EOS over eAPI, SNMP when configured",
			Setup:       setupAPI(DialectEAPI, nil),
		},
	}
}

// Lookup returns the driver registered under name.
func (r Registry) Lookup(name string) (Driver, bool) {
	d, ok := r[name]
	return d, ok
}

// Has reports whether name is registered.
func (r Registry) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// Names returns the registered names, sorted.
func (r Registry) Names() []string {
	return config.SortedKeys(r)
}

// ─────────────────────────────────────────────────────────────────────────────
// Built-in setups
// ─────────────────────────────────────────────────────────────────────────────

func setupSNMP(ctx context.Context, dev *device.Device, env Env) error {
	f, err := snmpLogin(ctx, dev, env)
	if err != nil {
		return err
	}
	dev.Private.SNMP = f
	return nil
}

func setupSSH(parsers func() parser.Set) SetupFunc {
	return func(ctx context.Context, dev *device.Device, env Env) error {
		cmd := NewSSHCommander(SSHOptions{
			Host:           dev.Host,
			Port:           env.Driver.SSHPort,
			Credentials:    env.Defaults.Credentials,
			CommandTimeout: env.Driver.CommandTimeout(),
		}, env.Logger)
		if err := cmd.Connect(ctx); err != nil {
			return fmt.Errorf("%s: login: %w", dev.Name, err)
		}
		if _, err := cmd.SendCommand(ctx, sshLoginCommand); err != nil {
			_ = cmd.Close()
			return fmt.Errorf("%s: login: %w", dev.Name, err)
		}
		dev.OnClose(cmd)
		dev.Private.CLI = cmd
		dev.Private.Parsers = parsers()
		attachSNMP(ctx, dev, env)
		return nil
	}
}

func setupAPI(dialect APIDialect, parsers func() parser.Set) SetupFunc {
	return func(ctx context.Context, dev *device.Device, env Env) error {
		c, err := NewAPIClient(APIOptions{
			Dialect:            dialect,
			Host:               dev.Host,
			Port:               env.Driver.APIPort,
			Credentials:        env.Defaults.Credentials,
			Timeout:            env.Driver.CommandTimeout(),
			InsecureSkipVerify: !env.Driver.VerifyTLS,
		}, env.Logger)
		if err != nil {
			return fmt.Errorf("%s: %w", dev.Name, err)
		}
		hostname, err := c.Hostname(ctx)
		if err != nil {
			_ = c.Close()
			return fmt.Errorf("%s: login: %w", dev.Name, err)
		}
		env.logger().Debug("driver: api login", "device", dev.Name, "dialect", dialect, "hostname", hostname)

		dev.OnClose(c)
		dev.Private.API = c
		dev.Private.CLI = c
		if parsers != nil {
			dev.Private.Parsers = parsers()
		}
		attachSNMP(ctx, dev, env)
		return nil
	}
}

// attachSNMP adds the SNMP fetcher when SNMP is configured. Failure leaves
// the device CLI/API only.
func attachSNMP(ctx context.Context, dev *device.Device, env Env) {
	if !snmpConfigured(env.Defaults.SNMP) {
		return
	}
	f, err := snmpLogin(ctx, dev, env)
	if err != nil {
		env.logger().Warn("driver: snmp unavailable, continuing without it",
			"device", dev.Name,
			"error", err.Error(),
		)
		return
	}
	dev.Private.SNMP = f
}

func snmpLogin(ctx context.Context, dev *device.Device, env Env) (*SNMPFetcher, error) {
	if env.Pool == nil {
		return nil, fmt.Errorf("%s: no SNMP connection pool", dev.Name)
	}
	target := Target{Host: dev.Host, SNMP: env.Defaults.SNMP}
	f := NewSNMPFetcher(env.Pool, dev.Name, target, env.Logger)

	rows, err := walk.WalkValues(ctx, f, sysUpTime, walk.WithLogger(env.Logger))
	if err != nil {
		return nil, fmt.Errorf("%s: snmp login: %w", dev.Name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: snmp login: no sysUpTime in response", dev.Name)
	}
	return f, nil
}

func snmpConfigured(s config.SNMP) bool {
	if s.Version == "3" {
		return s.V3.Username != ""
	}
	return s.Community != ""
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return e.Logger
}

// Supports reports whether dev offers every capability in reqs.
func Supports(dev *device.Device, reqs []string) bool {
	return !slices.ContainsFunc(reqs, func(r string) bool { return !dev.Has(r) })
}
