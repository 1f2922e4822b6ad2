package nxos

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vpbank/netpaca/parser"
)

// domLabels maps the row label of the diagnostics table to the metric name.
var domLabels = []struct {
	label  string
	metric string
}{
	{"Temperature", "temp"},
	{"Voltage", "voltage"},
	{"Current", "current"},
	{"Tx Power", "txpower"},
	{"Rx Power", "rxpower"},
}

var flagRe = regexp.MustCompile(`^(\+\+|--|\+|-)$`)

// ParseInterfaceTransceiver parses "show interface transceiver details".
// Each interface block starts with the unindented interface name and may
// carry a diagnostics table:
//
//	Ethernet1/13
//	    transceiver is present
//	  ...
//	                Current              Alarms                  Warnings
//	                Measurement     High        Low         High          Low
//	  ----------------------------------------------------------------------------
//	  Temperature   33.30 C        75.00 C     -5.00 C     70.00 C        0.00 C
//	  Rx Power        N/A     --    1.99 dBm  -13.97 dBm   -1.00 dBm     -9.91 dBm
//
// Every row yields "<metric>" (float64), "<metric>_flag" (int: 0 ok,
// 1 warning, 2 alarm) and "<metric>_marker" (the ++/+/-/-- marker, "" when
// absent). A reading of N/A is stored as 0 and graded by its marker alone.
// Interfaces without a temperature reading are left out.
func ParseInterfaceTransceiver(text string) (parser.Interfaces, bool) {
	out := make(parser.Interfaces)

	var (
		name   string
		fields parser.Fields
	)
	flush := func() {
		if name != "" {
			if _, ok := fields["temp"]; ok {
				out[name] = fields
			}
		}
		name, fields = "", nil
	}

	for _, line := range parser.SplitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			flush()
			name = strings.TrimSpace(line)
			fields = make(parser.Fields)
			continue
		}
		if fields == nil {
			continue
		}
		metric, rest, ok := domRow(strings.TrimSpace(line))
		if !ok {
			continue
		}
		v, marker, status, ok := parseReading(rest)
		if !ok {
			continue
		}
		fields[metric] = v
		fields[metric+"_flag"] = status
		fields[metric+"_marker"] = marker
	}
	flush()

	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func domRow(line string) (metric string, rest []string, ok bool) {
	for _, l := range domLabels {
		if strings.HasPrefix(line, l.label+" ") {
			return l.metric, strings.Fields(line[len(l.label):]), true
		}
	}
	return "", nil, false
}

// parseReading decodes "<value> <unit> [marker] (<threshold> <unit>){4}"
// with thresholds in the order high alarm, low alarm, high warning, low
// warning. The value may be "N/A" without a unit.
func parseReading(tok []string) (v float64, marker string, status int, ok bool) {
	if len(tok) == 0 {
		return 0, "", 0, false
	}
	na := tok[0] == "N/A"
	if na {
		tok = tok[1:]
	} else {
		f, err := strconv.ParseFloat(tok[0], 64)
		if err != nil || len(tok) < 2 {
			return 0, "", 0, false
		}
		v, tok = f, tok[2:]
	}
	if len(tok) > 0 && flagRe.MatchString(tok[0]) {
		marker, tok = tok[0], tok[1:]
	}
	if len(tok) != 8 {
		return 0, "", 0, false
	}
	var th [4]float64
	for i := range th {
		f, err := strconv.ParseFloat(tok[2*i], 64)
		if err != nil {
			return 0, "", 0, false
		}
		th[i] = f
	}
	if na {
		return 0, marker, parser.MarkerStatus(marker), true
	}
	hiAlarm, loAlarm, hiWarn, loWarn := th[0], th[1], th[2], th[3]
	return v, marker, parser.ThresholdStatus(v, hiAlarm, hiWarn, loWarn, loAlarm), true
}
