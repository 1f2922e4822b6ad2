package collector

import (
	"context"
	"fmt"
	"sort"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/netpaca/models"
	"github.com/vpbank/netpaca/pkg/netpaca/config"
	"github.com/vpbank/netpaca/pkg/netpaca/device"
	"github.com/vpbank/netpaca/snmp/value"
	"github.com/vpbank/netpaca/snmp/walk"
)

// ─────────────────────────────────────────────────────────────────────────────
// OIDs
// ─────────────────────────────────────────────────────────────────────────────

const (
	oidSysUpTime       = ".1.3.6.1.2.1.1.3"
	oidSNMPEngineTime  = ".1.3.6.1.6.3.10.2.1.3"
	oidIfDescr         = ".1.3.6.1.2.1.2.2.1.2"
	oidIfOperStatus    = ".1.3.6.1.2.1.2.2.1.8"
	oidIfLastChange    = ".1.3.6.1.2.1.2.2.1.9"
	oidIfAlias         = ".1.3.6.1.2.1.31.1.1.1.18"
	oidIfHCInOctets    = ".1.3.6.1.2.1.31.1.1.1.6"
	oidIfHCOutOctets   = ".1.3.6.1.2.1.31.1.1.1.10"
	ifOperStatusUp     = 1
	metricSysUptime    = "sys_uptime"
	metricEngineUptime = "snmp_engine_uptime"
)

// ─────────────────────────────────────────────────────────────────────────────
// uptime
// ─────────────────────────────────────────────────────────────────────────────

func uptimeType() Type {
	return Type{
		Name:        "uptime",
		Description: "device sysUpTime and SNMP engine uptime",
		Requires:    []string{device.CapSNMP},
		Metrics:     []string{metricSysUptime, metricEngineUptime},
		Collect:     collectUptime,
	}
}

func collectUptime(ctx context.Context, dev *device.Device, ts int64, _ config.CollectorOptions) ([]models.Metric, error) {
	ticks, err := walk.Walk(ctx, dev.Private.SNMP, oidSysUpTime, pduOf)
	if err != nil {
		return nil, fmt.Errorf("uptime: sysUpTime: %w", err)
	}
	if len(ticks) == 0 {
		return nil, fmt.Errorf("uptime: sysUpTime: %w", ErrNoData)
	}
	up, err := value.Uint64(ticks[0].Value)
	if err != nil {
		return nil, fmt.Errorf("uptime: sysUpTime: %w", err)
	}
	out := []models.Metric{models.NewMetric(metricSysUptime, up, ts, nil)}

	// snmpEngineTime is not implemented by every agent.
	secs, err := walk.Walk(ctx, dev.Private.SNMP, oidSNMPEngineTime, pduOf)
	if err == nil && len(secs) > 0 {
		if v, err := value.Uint64(secs[0].Value); err == nil {
			out = append(out, models.NewMetric(metricEngineUptime, v, ts, nil))
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ifstatus
// ─────────────────────────────────────────────────────────────────────────────

func ifStatusType() Type {
	return Type{
		Name:        "ifstatus",
		Description: "interface oper status and last change via IF-MIB",
		Requires:    []string{device.CapSNMP},
		Metrics:     []string{"ifstatus_oper", "ifstatus_lastchange"},
		Collect:     collectIfStatus,
	}
}

func collectIfStatus(ctx context.Context, dev *device.Device, ts int64, _ config.CollectorOptions) ([]models.Metric, error) {
	f := dev.Private.SNMP

	names, err := walkIndexed(ctx, f, oidIfDescr)
	if err != nil {
		return nil, fmt.Errorf("ifstatus: ifDescr: %w", err)
	}
	oper, err := walkIndexed(ctx, f, oidIfOperStatus)
	if err != nil {
		return nil, fmt.Errorf("ifstatus: ifOperStatus: %w", err)
	}
	changed, err := walkIndexed(ctx, f, oidIfLastChange)
	if err != nil {
		return nil, fmt.Errorf("ifstatus: ifLastChange: %w", err)
	}
	alias, err := walkIndexed(ctx, f, oidIfAlias)
	if err != nil {
		return nil, fmt.Errorf("ifstatus: ifAlias: %w", err)
	}

	out := make([]models.Metric, 0, 2*len(names))
	for _, idx := range sortedIndexes(names) {
		tags := map[string]string{
			"if_name": value.String(names[idx].Value),
			"if_desc": "",
		}
		if a, ok := alias[idx]; ok {
			tags["if_desc"] = value.String(a.Value)
		}

		if pdu, ok := oper[idx]; ok {
			if st, err := value.Int64(pdu.Value); err == nil {
				tags["oper_status"] = value.IfOperStatus.Label(st)
				up := int64(0)
				if st == ifOperStatusUp {
					up = 1
				}
				out = append(out, models.NewMetric("ifstatus_oper", up, ts, tags))
			}
		}
		if pdu, ok := changed[idx]; ok {
			if v, err := value.Uint64(pdu.Value); err == nil {
				out = append(out, models.NewMetric("ifstatus_lastchange", v, ts, tags))
			}
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func pduOf(pdu gosnmp.SnmpPDU) gosnmp.SnmpPDU { return pdu }

// walkIndexed walks one table column and keys the rows by instance index.
func walkIndexed(ctx context.Context, f walk.PageFetcher, root string) (map[string]gosnmp.SnmpPDU, error) {
	rows, err := walk.Walk(ctx, f, root, pduOf)
	if err != nil {
		return nil, err
	}
	out := make(map[string]gosnmp.SnmpPDU, len(rows))
	for _, r := range rows {
		out[walk.Index(root, r.Name)] = r
	}
	return out, nil
}

// sortedIndexes returns the keys of rows in OID order.
func sortedIndexes(rows map[string]gosnmp.SnmpPDU) []string {
	out := make([]string, 0, len(rows))
	for idx := range rows {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return walk.Compare(out[i], out[j]) < 0 })
	return out
}
