// Package collector holds the closed set of built-in collector types. A
// collector reads one family of values from a device through the handles its
// driver installed and returns them as metrics.
package collector

import (
	"context"
	"errors"
	"sort"

	"github.com/vpbank/netpaca/models"
	"github.com/vpbank/netpaca/pkg/netpaca/config"
	"github.com/vpbank/netpaca/pkg/netpaca/device"
)

// ErrNoData is returned when a value every device must provide is missing.
var ErrNoData = errors.New("no data")

// Func performs one collection cycle. ts is the capture time in milliseconds
// and is stamped on every returned metric.
type Func func(ctx context.Context, dev *device.Device, ts int64, opts config.CollectorOptions) ([]models.Metric, error)

// Type describes one collector.
type Type struct {
	Name        string
	Description string

	// Requires lists the device capabilities (device.CapSNMP, device.CapCLI)
	// the collector needs.
	Requires []string

	// Metrics are the metric names the collector produces.
	Metrics []string

	Collect Func
}

// ExpectsMetrics reports whether a cycle returning nothing is worth a warning.
func (t Type) ExpectsMetrics() bool { return len(t.Metrics) > 0 }

// Registry maps collector names to their types.
type Registry map[string]Type

// Builtin returns a fresh registry of the built-in collectors. Stateful
// collectors (ifcounters) keep their state per registry.
func Builtin() Registry {
	types := []Type{
		uptimeType(),
		ifStatusType(),
		ifCountersType(NewCounterState()),
		ifStatusCLIType(),
		ifDOMType(),
	}
	r := make(Registry, len(types))
	for _, t := range types {
		r[t.Name] = t
	}
	return r
}

// Lookup returns the named collector type.
func (r Registry) Lookup(name string) (Type, bool) {
	t, ok := r[name]
	return t, ok
}

// Has reports whether name is a known collector.
func (r Registry) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// Names returns the collector names in sorted order.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
