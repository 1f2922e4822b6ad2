package collector_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/netpaca/models"
	"github.com/vpbank/netpaca/parser"
	"github.com/vpbank/netpaca/parser/ios"
	"github.com/vpbank/netpaca/parser/nxos"
	"github.com/vpbank/netpaca/pkg/netpaca/collector"
	"github.com/vpbank/netpaca/pkg/netpaca/config"
	"github.com/vpbank/netpaca/pkg/netpaca/device"
	"github.com/vpbank/netpaca/snmp/walk"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

// fakeAgent serves a MIB view in pages of five rows.
type fakeAgent struct {
	rows []gosnmp.SnmpPDU
}

func newAgent(rows ...gosnmp.SnmpPDU) *fakeAgent {
	sort.Slice(rows, func(i, j int) bool { return walk.Compare(rows[i].Name, rows[j].Name) < 0 })
	return &fakeAgent{rows: rows}
}

func (a *fakeAgent) NextPage(_ context.Context, cursor []string) (walk.Page, error) {
	var page walk.Page
	for _, r := range a.rows {
		if walk.Compare(r.Name, cursor[0]) <= 0 {
			continue
		}
		page.Rows = append(page.Rows, r)
		if len(page.Rows) == 5 {
			break
		}
	}
	return page, nil
}

func (a *fakeAgent) set(name string, typ gosnmp.Asn1BER, v interface{}) {
	for i := range a.rows {
		if a.rows[i].Name == name {
			a.rows[i].Value = v
			return
		}
	}
	a.rows = append(a.rows, gosnmp.SnmpPDU{Name: name, Type: typ, Value: v})
}

func octets(oid, s string) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.OctetString, Value: []byte(s)}
}

func integer(oid string, v int) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Integer, Value: v}
}

func ticks(oid string, v uint32) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.TimeTicks, Value: v}
}

func counter64(oid string, v uint64) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: v}
}

// fakeCLI maps a command to its canned output.
type fakeCLI struct {
	out  map[string]string
	sent []string
}

func (c *fakeCLI) SendCommand(_ context.Context, command string) (string, error) {
	c.sent = append(c.sent, command)
	text, ok := c.out[command]
	if !ok {
		return "", errors.New("% Invalid input detected")
	}
	return text, nil
}

func snmpDevice(agent walk.PageFetcher) *device.Device {
	dev := device.New("sw1", "192.0.2.1", "ios", map[string]string{"site": "hq"})
	dev.Private.SNMP = agent
	return dev
}

func cliDevice(cli *fakeCLI) *device.Device {
	dev := device.New("sw1", "192.0.2.1", "ios", nil)
	dev.Private.CLI = cli
	dev.Private.Parsers = ios.Parsers()
	return dev
}

func collect(t *testing.T, name string, dev *device.Device, ts int64, opts config.CollectorOptions) []models.Metric {
	t.Helper()
	typ, ok := collector.Builtin().Lookup(name)
	if !ok {
		t.Fatalf("collector %q not registered", name)
	}
	got, err := typ.Collect(context.Background(), dev, ts, opts)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return got
}

// find returns the metric with name and if_name (empty matches any).
func find(ms []models.Metric, name, ifName string) (models.Metric, bool) {
	for _, m := range ms {
		if m.Name == name && (ifName == "" || m.Tags["if_name"] == ifName) {
			return m, true
		}
	}
	return models.Metric{}, false
}

const ts = int64(1_700_000_000_000)

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

func TestBuiltin_Types(t *testing.T) {
	r := collector.Builtin()
	want := []string{"ifcounters", "ifdom", "ifstatus", "ifstatus_cli", "uptime"}
	if got := r.Names(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for _, name := range want {
		typ, _ := r.Lookup(name)
		if !typ.ExpectsMetrics() {
			t.Errorf("%s declares no metrics", name)
		}
		if typ.Collect == nil || len(typ.Requires) == 0 {
			t.Errorf("%s is incomplete: %+v", name, typ)
		}
	}
	if r.Has("bgp") {
		t.Error("unknown collector reported as present")
	}
	if (collector.Type{Name: "x"}).ExpectsMetrics() {
		t.Error("a type without metrics must not expect any")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMP collectors
// ─────────────────────────────────────────────────────────────────────────────

func TestUptime(t *testing.T) {
	agent := newAgent(
		ticks(".1.3.6.1.2.1.1.3.0", 123456),
		integer(".1.3.6.1.6.3.10.2.1.3.0", 1234),
	)
	got := collect(t, "uptime", snmpDevice(agent), ts, config.CollectorOptions{})
	if len(got) != 2 {
		t.Fatalf("got %d metrics, want 2: %+v", len(got), got)
	}
	if got[0].Name != "sys_uptime" || got[0].Value != uint64(123456) || got[0].Timestamp != ts {
		t.Errorf("sys_uptime = %+v", got[0])
	}
	if got[1].Name != "snmp_engine_uptime" || got[1].Value != uint64(1234) {
		t.Errorf("snmp_engine_uptime = %+v", got[1])
	}
}

func TestUptime_EngineTimeOptional(t *testing.T) {
	agent := newAgent(ticks(".1.3.6.1.2.1.1.3.0", 99))
	got := collect(t, "uptime", snmpDevice(agent), ts, config.CollectorOptions{})
	if len(got) != 1 || got[0].Name != "sys_uptime" {
		t.Errorf("got %+v, want sys_uptime only", got)
	}
}

func TestUptime_MissingSysUpTime(t *testing.T) {
	typ, _ := collector.Builtin().Lookup("uptime")
	_, err := typ.Collect(context.Background(), snmpDevice(newAgent()), ts, config.CollectorOptions{})
	if !errors.Is(err, collector.ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestUptime_IndicationError(t *testing.T) {
	f := walk.PageFetcherFunc(func(context.Context, []string) (walk.Page, error) {
		return walk.Page{}, errors.New("request timeout")
	})
	typ, _ := collector.Builtin().Lookup("uptime")
	_, err := typ.Collect(context.Background(), snmpDevice(f), ts, config.CollectorOptions{})
	var ie *walk.IndicationError
	if !errors.As(err, &ie) {
		t.Errorf("err = %v, want IndicationError", err)
	}
}

func ifAgent() *fakeAgent {
	return newAgent(
		octets(".1.3.6.1.2.1.2.2.1.2.1", "GigabitEthernet1/0/1"),
		octets(".1.3.6.1.2.1.2.2.1.2.2", "GigabitEthernet1/0/2"),
		octets(".1.3.6.1.2.1.2.2.1.2.10", "Vlan10"),
		integer(".1.3.6.1.2.1.2.2.1.8.1", 1),
		integer(".1.3.6.1.2.1.2.2.1.8.2", 2),
		integer(".1.3.6.1.2.1.2.2.1.8.10", 7),
		ticks(".1.3.6.1.2.1.2.2.1.9.1", 500),
		ticks(".1.3.6.1.2.1.2.2.1.9.2", 600),
		ticks(".1.3.6.1.2.1.2.2.1.9.10", 700),
		octets(".1.3.6.1.2.1.31.1.1.1.18.1", "uplink to core"),
		octets(".1.3.6.1.2.1.31.1.1.1.18.2", ""),
	)
}

func TestIfStatus(t *testing.T) {
	got := collect(t, "ifstatus", snmpDevice(ifAgent()), ts, config.CollectorOptions{})
	if len(got) != 6 {
		t.Fatalf("got %d metrics, want 6", len(got))
	}
	// Rows come out in ifIndex order, 10 after 2.
	if got[4].Tags["if_name"] != "Vlan10" {
		t.Errorf("order: got %q at position 4", got[4].Tags["if_name"])
	}

	tests := []struct {
		ifName  string
		oper    int64
		status  string
		desc    string
		changed uint64
	}{
		{"GigabitEthernet1/0/1", 1, "up", "uplink to core", 500},
		{"GigabitEthernet1/0/2", 0, "down", "", 600},
		{"Vlan10", 0, "lowerLayerDown", "", 700},
	}
	for _, tt := range tests {
		t.Run(tt.ifName, func(t *testing.T) {
			m, ok := find(got, "ifstatus_oper", tt.ifName)
			if !ok {
				t.Fatal("ifstatus_oper missing")
			}
			if m.Value != tt.oper || m.Tags["oper_status"] != tt.status || m.Tags["if_desc"] != tt.desc {
				t.Errorf("ifstatus_oper = %+v", m)
			}
			lc, ok := find(got, "ifstatus_lastchange", tt.ifName)
			if !ok || lc.Value != tt.changed {
				t.Errorf("ifstatus_lastchange = %+v", lc)
			}
		})
	}
}

func TestIfCounters_RateFromSecondCycle(t *testing.T) {
	agent := newAgent(
		octets(".1.3.6.1.2.1.2.2.1.2.1", "Gi1/0/1"),
		counter64(".1.3.6.1.2.1.31.1.1.1.6.1", 1_000),
		counter64(".1.3.6.1.2.1.31.1.1.1.10.1", 5_000),
	)
	typ, _ := collector.Builtin().Lookup("ifcounters")
	dev := snmpDevice(agent)

	first, err := typ.Collect(context.Background(), dev, ts, config.CollectorOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 {
		t.Fatalf("first cycle: got %d metrics, want the 2 raw counters", len(first))
	}
	if m, _ := find(first, "ifcounters_in_octets", "Gi1/0/1"); m.Value != uint64(1_000) || m.Tags["if_index"] != "1" {
		t.Errorf("in_octets = %+v", m)
	}

	agent.set(".1.3.6.1.2.1.31.1.1.1.6.1", gosnmp.Counter64, uint64(1_000+7_500))
	agent.set(".1.3.6.1.2.1.31.1.1.1.10.1", gosnmp.Counter64, uint64(5_000))
	second, err := typ.Collect(context.Background(), dev, ts+60_000, config.CollectorOptions{})
	if err != nil {
		t.Fatal(err)
	}
	in, ok := find(second, "ifcounters_in_bps", "Gi1/0/1")
	if !ok || in.Value != float64(1_000) {
		t.Errorf("in_bps = %+v, want 1000 (7500 octets over 60s)", in)
	}
	out, ok := find(second, "ifcounters_out_bps", "Gi1/0/1")
	if !ok || out.Value != float64(0) {
		t.Errorf("out_bps = %+v, want 0", out)
	}
}

func TestIfCounters_ResetSkipsRate(t *testing.T) {
	agent := newAgent(
		octets(".1.3.6.1.2.1.2.2.1.2.1", "Gi1/0/1"),
		counter64(".1.3.6.1.2.1.31.1.1.1.6.1", 5_000_000_000),
		counter64(".1.3.6.1.2.1.31.1.1.1.10.1", 5_000),
	)
	typ, _ := collector.Builtin().Lookup("ifcounters")
	dev := snmpDevice(agent)
	if _, err := typ.Collect(context.Background(), dev, ts, config.CollectorOptions{}); err != nil {
		t.Fatal(err)
	}

	// Device rebooted: the 64-bit counter restarts near zero.
	agent.set(".1.3.6.1.2.1.31.1.1.1.6.1", gosnmp.Counter64, uint64(1_000))
	second, err := typ.Collect(context.Background(), dev, ts+60_000, config.CollectorOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if in, ok := find(second, "ifcounters_in_bps", "Gi1/0/1"); ok {
		t.Errorf("in_bps after reset = %v, want no rate", in.Value)
	}
	if m, ok := find(second, "ifcounters_in_octets", "Gi1/0/1"); !ok || m.Value != uint64(1_000) {
		t.Errorf("in_octets after reset = %+v", m)
	}

	agent.set(".1.3.6.1.2.1.31.1.1.1.6.1", gosnmp.Counter64, uint64(1_000+7_500))
	third, err := typ.Collect(context.Background(), dev, ts+120_000, config.CollectorOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if in, ok := find(third, "ifcounters_in_bps", "Gi1/0/1"); !ok || in.Value != float64(1_000) {
		t.Errorf("in_bps after recovery = %+v, want 1000", in)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Counter state
// ─────────────────────────────────────────────────────────────────────────────

func TestCounterState_Delta(t *testing.T) {
	const wrap32 = uint64(^uint32(0))
	t0 := time.Unix(1000, 0)
	key := collector.CounterKey{Device: "sw1", Metric: "in", Instance: "1"}

	tests := []struct {
		name    string
		prev    uint64
		cur     uint64
		elapsed time.Duration
		wrap    uint64
		want    uint64
		valid   bool
	}{
		{"increase", 100, 250, 10 * time.Second, wrap32, 150, true},
		{"unchanged", 100, 100, 10 * time.Second, wrap32, 0, true},
		{"rollover", wrap32 - 9, 10, 10 * time.Second, wrap32, 20, true},
		{"clock did not advance", 100, 200, 0, wrap32, 0, false},
		{"64-bit increase", 5_000_000_000, 5_000_007_500, time.Minute, math.MaxUint64, 7500, true},
		{"64-bit reset", 5_000_000_000, 1000, time.Minute, math.MaxUint64, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := collector.NewCounterState()
			if d := s.Delta(key, tt.prev, t0, tt.wrap); d.Valid {
				t.Fatal("first observation must not be valid")
			}
			d := s.Delta(key, tt.cur, t0.Add(tt.elapsed), tt.wrap)
			if d.Valid != tt.valid || (tt.valid && d.Delta != tt.want) {
				t.Errorf("Delta = %+v, want %d valid=%v", d, tt.want, tt.valid)
			}
		})
	}
}

func TestCounterState_Purge(t *testing.T) {
	s := collector.NewCounterState()
	now := time.Unix(10_000, 0)
	for i := 0; i < 3; i++ {
		key := collector.CounterKey{Device: "sw1", Metric: "in", Instance: fmt.Sprint(i)}
		s.Delta(key, 1, now.Add(-time.Duration(i)*time.Hour), ^uint64(0))
	}
	if n := s.Purge(90*time.Minute, now); n != 1 {
		t.Errorf("Purge removed %d, want 1", n)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// CLI collectors
// ─────────────────────────────────────────────────────────────────────────────

const statusText = `
Port      Name               Status       Vlan       Duplex  Speed Type
Gi1/0/1   uplink to core     connected    trunk      a-full a-1000 10/100/1000BaseTX
Gi1/0/2                      notconnect   10           auto   auto 10/100/1000BaseTX
`

const transceiverText = `
                              High Alarm  High Warn  Low Warn   Low Alarm
           Temperature        Threshold   Threshold  Threshold  Threshold
Port       (Celsius)          (Celsius)   (Celsius)  (Celsius)  (Celsius)
---------  -----------------  ----------  ---------  ---------  ---------
Te1/1/1      37.1                   90.0       85.0       -5.0      -10.0
Te1/1/2      91.0 ++                90.0       85.0       -5.0      -10.0

           Optical            High Alarm  High Warn  Low Warn   Low Alarm
           Receive Power      Threshold   Threshold  Threshold  Threshold
Port       (dBm)              (dBm)       (dBm)      (dBm)      (dBm)
---------  -----------------  ----------  ---------  ---------  ---------
Te1/1/1      -8.6                    0.0       -3.0      -19.0      -23.0
Te1/1/2     -21.8                    0.0       -3.0      -19.0      -23.0
`

func TestIfStatusCLI(t *testing.T) {
	cli := &fakeCLI{out: map[string]string{ios.CmdInterfacesStatus: statusText}}
	got := collect(t, "ifstatus_cli", cliDevice(cli), ts, config.CollectorOptions{})
	if len(got) != 2 {
		t.Fatalf("got %d metrics, want 2", len(got))
	}
	up, _ := find(got, "ifstatus", "Gi1/0/1")
	if up.Value != int64(1) || up.Tags["if_desc"] != "uplink to core" || up.Tags["if_type"] != "10/100/1000BASETX" {
		t.Errorf("Gi1/0/1 = %+v", up)
	}
	down, _ := find(got, "ifstatus", "Gi1/0/2")
	if down.Value != int64(0) || down.Tags["if_vlan"] != "10" {
		t.Errorf("Gi1/0/2 = %+v", down)
	}
}

func TestIfStatusCLI_CommandOverride(t *testing.T) {
	cli := &fakeCLI{out: map[string]string{"show int status": statusText}}
	got := collect(t, "ifstatus_cli", cliDevice(cli), ts, config.CollectorOptions{Command: "show int status"})
	if len(got) != 2 {
		t.Errorf("got %d metrics, want 2", len(got))
	}
	if len(cli.sent) != 1 || cli.sent[0] != "show int status" {
		t.Errorf("sent %v", cli.sent)
	}
}

func TestIfStatusCLI_UnparsedOutputIsEmpty(t *testing.T) {
	cli := &fakeCLI{out: map[string]string{ios.CmdInterfacesStatus: "\n"}}
	got := collect(t, "ifstatus_cli", cliDevice(cli), ts, config.CollectorOptions{})
	if len(got) != 0 {
		t.Errorf("got %+v, want none", got)
	}
}

func TestIfStatusCLI_CommandError(t *testing.T) {
	typ, _ := collector.Builtin().Lookup("ifstatus_cli")
	_, err := typ.Collect(context.Background(), cliDevice(&fakeCLI{}), ts, config.CollectorOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestIfDOM(t *testing.T) {
	cli := &fakeCLI{out: map[string]string{ios.CmdInterfacesTransceiver: transceiverText}}
	got := collect(t, "ifdom", cliDevice(cli), ts, config.CollectorOptions{})
	if len(got) != 8 {
		t.Fatalf("got %d metrics, want 8", len(got))
	}

	tests := []struct {
		name   string
		ifName string
		want   interface{}
	}{
		{"ifdom_temp", "Te1/1/1", 37.1},
		{"ifdom_temp_status", "Te1/1/1", int64(ios.ThresholdOK)},
		{"ifdom_temp", "Te1/1/2", 91.0},
		{"ifdom_temp_status", "Te1/1/2", int64(ios.ThresholdAlarm)},
		{"ifdom_rxpower", "Te1/1/2", -21.8},
		{"ifdom_rxpower_status", "Te1/1/2", int64(ios.ThresholdWarning)},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.ifName, func(t *testing.T) {
			m, ok := find(got, tt.name, tt.ifName)
			if !ok {
				t.Fatal("metric missing")
			}
			if m.Value != tt.want {
				t.Errorf("value = %#v, want %#v", m.Value, tt.want)
			}
		})
	}
}

func TestIfDOM_NoParser(t *testing.T) {
	dev := device.New("sw1", "", "junos", nil)
	dev.Private.CLI = &fakeCLI{}
	typ, _ := collector.Builtin().Lookup("ifdom")
	if _, err := typ.Collect(context.Background(), dev, ts, config.CollectorOptions{}); err == nil {
		t.Error("expected error without a parser")
	}
}

const nxosStatusText = `
--------------------------------------------------------------------------------
Port          Name               Status    Vlan      Duplex  Speed   Type
--------------------------------------------------------------------------------
Eth1/1        uplink to spine-1  connected routed    full    40G     QSFP-40G-SR4
Eth1/2        --                 notconnec 1         auto    auto    10Gbase-SR
`

const nxosTransceiverText = `
Ethernet1/1
    transceiver is present
    type is 10Gbase-SR

           SFP Detail Diagnostics Information (internal calibration)
  ----------------------------------------------------------------------------
                Current              Alarms                  Warnings
                Measurement     High        Low         High          Low
  ----------------------------------------------------------------------------
  Temperature   33.30 C        75.00 C     -5.00 C     70.00 C        0.00 C
  Voltage        3.27 V         3.63 V      2.97 V      3.46 V        3.13 V
  Current        6.34 mA       12.00 mA     0.50 mA    11.50 mA       1.00 mA
  Tx Power      -2.26 dBm       1.99 dBm  -11.30 dBm   -1.00 dBm     -7.30 dBm
  Rx Power     -14.50 dBm  --   1.99 dBm  -13.97 dBm   -1.00 dBm     -9.91 dBm
  ----------------------------------------------------------------------------
`

func nxosDevice(cli *fakeCLI) *device.Device {
	dev := device.New("n9k1", "192.0.2.2", "nxos", nil)
	dev.Private.CLI = cli
	dev.Private.Parsers = nxos.Parsers()
	return dev
}

func TestIfStatusCLI_NXOS(t *testing.T) {
	cli := &fakeCLI{out: map[string]string{nxos.CmdInterfaceStatus: nxosStatusText}}
	got := collect(t, "ifstatus_cli", nxosDevice(cli), ts, config.CollectorOptions{})
	if len(cli.sent) != 1 || cli.sent[0] != "show interface status" {
		t.Errorf("sent %v", cli.sent)
	}
	if len(got) != 2 {
		t.Fatalf("got %d metrics, want 2", len(got))
	}
	up, _ := find(got, "ifstatus", "Eth1/1")
	if up.Value != int64(1) || up.Tags["if_desc"] != "uplink to spine-1" || up.Tags["if_type"] != "QSFP-40G-SR4" {
		t.Errorf("Eth1/1 = %+v", up)
	}
	down, _ := find(got, "ifstatus", "Eth1/2")
	if down.Value != int64(0) || down.Tags["if_desc"] != "" {
		t.Errorf("Eth1/2 = %+v", down)
	}
}

func TestIfDOM_NXOS(t *testing.T) {
	cli := &fakeCLI{out: map[string]string{nxos.CmdInterfaceTransceiver: nxosTransceiverText}}
	got := collect(t, "ifdom", nxosDevice(cli), ts, config.CollectorOptions{})
	if len(got) != 10 {
		t.Fatalf("got %d metrics, want 10", len(got))
	}
	if m, _ := find(got, "ifdom_rxpower", "Ethernet1/1"); m.Value != -14.50 {
		t.Errorf("rxpower = %#v", m.Value)
	}
	if m, _ := find(got, "ifdom_rxpower_status", "Ethernet1/1"); m.Value != int64(parser.ThresholdAlarm) {
		t.Errorf("rxpower status = %#v", m.Value)
	}
	if m, _ := find(got, "ifdom_temp_status", "Ethernet1/1"); m.Value != int64(parser.ThresholdOK) {
		t.Errorf("temp status = %#v", m.Value)
	}
}
