package ios

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vpbank/netpaca/parser"
)

// Threshold status values stored in "<metric>_flag".
const (
	ThresholdOK      = parser.ThresholdOK
	ThresholdWarning = parser.ThresholdWarning
	ThresholdAlarm   = parser.ThresholdAlarm
)

// dom sections of "show interfaces transceiver", by the keyword that
// appears in the section header and the metric name they map to.
var domSections = []struct {
	keyword string
	metric  string
}{
	{"Temperature", "temp"},
	{"Voltage", "voltage"},
	{"Current", "current"},
	{"Transmit", "txpower"},
	{"Receive", "rxpower"},
}

var (
	flagRe      = regexp.MustCompile(`^(\+\+|--|\+|-)$`)
	separatorRe = regexp.MustCompile(`^[\s-]+$`)
)

// ParseInterfacesTransceiver parses the tabular "show interfaces transceiver"
// output. Every row
//
//	port  value  [flag]  high-alarm  high-warn  low-warn  low-alarm
//
// yields three fields per section: "<metric>" (float64), "<metric>_flag"
// (int: 0 ok, 1 warning, 2 alarm, computed from the thresholds) and
// "<metric>_marker" (the device's own ++/+/-/-- marker, "" when absent).
//
// The false result means no transceiver rows were found.
func ParseInterfacesTransceiver(text string) (parser.Interfaces, bool) {
	out := make(parser.Interfaces)

	metric := ""
	inRows := false
	for _, line := range parser.SplitLines(text) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			metric, inRows = "", false
			continue
		}
		if m, ok := sectionMetric(trimmed); ok && !inRows {
			metric = m
			continue
		}
		if metric == "" {
			continue
		}
		if separatorRe.MatchString(trimmed) && strings.Contains(trimmed, "---") {
			inRows = true
			continue
		}
		if !inRows {
			continue
		}

		name, value, flag, th, ok := parseDOMRow(trimmed)
		if !ok {
			continue
		}
		fields, found := out[name]
		if !found {
			fields = make(parser.Fields)
			out[name] = fields
		}
		fields[metric] = value
		fields[metric+"_flag"] = parser.ThresholdStatus(value, th[0], th[1], th[2], th[3])
		fields[metric+"_marker"] = flag
	}

	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func sectionMetric(line string) (string, bool) {
	for _, s := range domSections {
		if strings.Contains(line, s.keyword) {
			return s.metric, true
		}
	}
	return "", false
}

// thresholds in device order: high alarm, high warning, low warning, low alarm.
type thresholds [4]float64

func parseDOMRow(line string) (name string, value float64, flag string, th thresholds, ok bool) {
	tok := strings.Fields(line)
	if len(tok) < 6 {
		return "", 0, "", th, false
	}
	name = tok[0]
	v, err := strconv.ParseFloat(tok[1], 64)
	if err != nil {
		return "", 0, "", th, false
	}
	rest := tok[2:]
	if flagRe.MatchString(rest[0]) {
		flag = rest[0]
		rest = rest[1:]
	}
	if len(rest) != 4 {
		return "", 0, "", th, false
	}
	for i, s := range rest {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return "", 0, "", th, false
		}
		th[i] = f
	}
	return name, v, flag, th, true
}
