package collector

import (
	"context"
	"fmt"
	"sort"

	"github.com/vpbank/netpaca/models"
	"github.com/vpbank/netpaca/parser"
	"github.com/vpbank/netpaca/pkg/netpaca/config"
	"github.com/vpbank/netpaca/pkg/netpaca/device"
)

// domMetrics are the transceiver readings reported by ifdom.
var domMetrics = []string{"temp", "voltage", "current", "txpower", "rxpower"}

// ─────────────────────────────────────────────────────────────────────────────
// ifstatus_cli
// ─────────────────────────────────────────────────────────────────────────────

func ifStatusCLIType() Type {
	return Type{
		Name:        "ifstatus_cli",
		Description: "interface status from the CLI interface status table",
		Requires:    []string{device.CapCLI},
		Metrics:     []string{"ifstatus"},
		Collect:     collectIfStatusCLI,
	}
}

var statusTags = []string{"if_name", "if_desc", "if_vlan", "if_duplex", "if_speed", "if_type"}

func collectIfStatusCLI(ctx context.Context, dev *device.Device, ts int64, opts config.CollectorOptions) ([]models.Metric, error) {
	ifs, err := runParsed(ctx, dev, parser.InterfacesStatus, opts.Command)
	if err != nil {
		return nil, fmt.Errorf("ifstatus_cli: %w", err)
	}

	out := make([]models.Metric, 0, len(ifs))
	for _, name := range sortedNames(ifs) {
		fields := ifs[name]
		tags := make(map[string]string, len(statusTags))
		for _, k := range statusTags {
			tags[k] = fieldString(fields, k)
		}
		up := int64(0)
		if fieldString(fields, "if_status") == "connected" {
			up = 1
		}
		out = append(out, models.NewMetric("ifstatus", up, ts, tags))
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ifdom
// ─────────────────────────────────────────────────────────────────────────────

func ifDOMType() Type {
	names := make([]string, 0, 2*len(domMetrics))
	for _, m := range domMetrics {
		names = append(names, "ifdom_"+m, "ifdom_"+m+"_status")
	}
	return Type{
		Name:        "ifdom",
		Description: "transceiver digital optical monitoring readings",
		Requires:    []string{device.CapCLI},
		Metrics:     names,
		Collect:     collectIfDOM,
	}
}

// collectIfDOM reports every reading with its threshold status
// (0 ok, 1 warning, 2 alarm).
func collectIfDOM(ctx context.Context, dev *device.Device, ts int64, opts config.CollectorOptions) ([]models.Metric, error) {
	ifs, err := runParsed(ctx, dev, parser.InterfacesTransceiver, opts.Command)
	if err != nil {
		return nil, fmt.Errorf("ifdom: %w", err)
	}

	var out []models.Metric
	for _, name := range sortedNames(ifs) {
		fields := ifs[name]
		tags := map[string]string{"if_name": name}
		for _, m := range domMetrics {
			v, ok := fields[m].(float64)
			if !ok {
				continue
			}
			out = append(out, models.NewMetric("ifdom_"+m, v, ts, tags))
			if st, ok := fields[m+"_flag"].(int); ok {
				out = append(out, models.NewMetric("ifdom_"+m+"_status", int64(st), ts, tags))
			}
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// runParsed sends the device command for table (or override, when set) and
// parses the output with the device parser for table. Output the parser does
// not recognise yields no interfaces and no error.
func runParsed(ctx context.Context, dev *device.Device, table, override string) (parser.Interfaces, error) {
	entry, ok := dev.Private.Parsers.Lookup(table)
	if !ok {
		return nil, fmt.Errorf("no %s parser on %s", table, dev.OSName)
	}
	command := entry.Command
	if override != "" {
		command = override
	}
	text, err := dev.Private.CLI.SendCommand(ctx, command)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", command, err)
	}
	ifs, ok := entry.Parse(text)
	if !ok {
		return nil, nil
	}
	return ifs, nil
}

func sortedNames(ifs parser.Interfaces) []string {
	out := make([]string, 0, len(ifs))
	for name := range ifs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func fieldString(f parser.Fields, key string) string {
	s, _ := f[key].(string)
	return s
}
