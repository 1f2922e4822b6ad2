// Package device holds the runtime representation of one polled device: its
// identity, the tags added to every metric it produces and the driver
// handles (SNMP page fetcher, CLI commander, text parsers) its collectors
// use. All tasks of a device share the same *Device.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"sync"

	"github.com/vpbank/netpaca/parser"
	"github.com/vpbank/netpaca/snmp/walk"
)

// Commander runs one CLI command on the device and returns its output.
// Implementations must be safe for concurrent use.
type Commander interface {
	SendCommand(ctx context.Context, command string) (string, error)
}

// APIClient runs commands through the structured HTTP API of a device
// (NX-API, eAPI) and returns one JSON document per command.
type APIClient interface {
	Exec(ctx context.Context, commands []string) ([]json.RawMessage, error)
}

// Private are the driver handles. A nil handle means the capability is not
// available on this device.
type Private struct {
	SNMP    walk.PageFetcher
	CLI     Commander
	API     APIClient
	Parsers parser.Set
}

// Device is one inventory entry bound to a driver.
type Device struct {
	// Name is the inventory host value.
	Name string

	// Host is the connection address (ipaddr when present, else Name).
	Host string

	// OSName is the inventory os_name.
	OSName string

	// Driver is the built-in driver name serving this device.
	Driver string

	// Tags are merged into every exported metric. Read-only after setup.
	Tags map[string]string

	Private Private

	mu      sync.Mutex
	closers []io.Closer
}

// New builds a Device. tags is copied.
func New(name, host, osName string, tags map[string]string) *Device {
	if host == "" {
		host = name
	}
	return &Device{
		Name:   name,
		Host:   host,
		OSName: osName,
		Tags:   maps.Clone(tags),
	}
}

// Capability names used by collectors to declare what they need.
const (
	CapSNMP = "snmp"
	CapCLI  = "cli"
	CapAPI  = "api"
)

// Has reports whether the device offers capability c.
func (d *Device) Has(c string) bool {
	switch c {
	case CapSNMP:
		return d.Private.SNMP != nil
	case CapCLI:
		return d.Private.CLI != nil
	case CapAPI:
		return d.Private.API != nil
	default:
		return false
	}
}

// OnClose registers c to be closed by Close.
func (d *Device) OnClose(c io.Closer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closers = append(d.closers, c)
}

// Close releases every registered handle in reverse order.
func (d *Device) Close() error {
	d.mu.Lock()
	closers := d.closers
	d.closers = nil
	d.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
