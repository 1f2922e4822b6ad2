// Package nxos parses Cisco NX-OS CLI output.
package nxos

import (
	"strings"

	"github.com/vpbank/netpaca/parser"
)

// Commands understood by this package.
const (
	CmdInterfaceStatus      = "show interface status"
	CmdInterfaceTransceiver = "show interface transceiver details"
)

// Parsers returns the table → command/parser set for NX-OS devices.
func Parsers() parser.Set {
	return parser.Set{
		parser.InterfacesStatus:      {Command: CmdInterfaceStatus, Parse: ParseInterfaceStatus},
		parser.InterfacesTransceiver: {Command: CmdInterfaceTransceiver, Parse: ParseInterfaceTransceiver},
	}
}

var (
	statusHeaders = []string{"Port", "Name", "Status", "Vlan", "Duplex", "Speed", "Type"}
	statusFields  = []string{"if_name", "if_desc", "if_status", "if_vlan", "if_duplex", "if_speed", "if_type"}
)

// noValue is what NX-OS prints in an empty column.
const noValue = "--"

// ParseInterfaceStatus parses "show interface status". Port and Name are cut
// at the header offsets since the description may contain spaces; the
// remaining columns are whitespace separated. Dashed rule lines are ignored
// and "--" is stored as "".
//
//	--------------------------------------------------------------------------------
//	Port          Name               Status    Vlan      Duplex  Speed   Type
//	--------------------------------------------------------------------------------
//	Eth1/1        uplink to spine-1  connected routed    full    40G     QSFP-40G-SR4
func ParseInterfaceStatus(text string) (parser.Interfaces, bool) {
	var (
		offsets []int
		out     = make(parser.Interfaces)
	)
	for _, line := range parser.SplitLines(text) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.Trim(trimmed, "-") == "" {
			continue
		}
		if offsets == nil {
			if offs, ok := parser.ColumnOffsets(line, statusHeaders); ok {
				offsets = offs
			}
			continue
		}
		fields := parseStatusRow(line, offsets)
		name, _ := fields["if_name"].(string)
		if name == "" {
			continue
		}
		out[name] = fields
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// cutColumns is the number of leading columns cut by header offset.
const cutColumns = 2

func parseStatusRow(line string, offsets []int) parser.Fields {
	fields := make(parser.Fields, len(statusFields))
	for i := 0; i < cutColumns; i++ {
		fields[statusFields[i]] = blankDash(parser.Column(line, offsets, i))
	}

	var tail []string
	if begin := offsets[cutColumns]; begin < len(line) {
		tail = strings.Fields(line[begin:])
	}
	for i := cutColumns; i < len(statusFields); i++ {
		j := i - cutColumns
		switch {
		case j >= len(tail):
			fields[statusFields[i]] = ""
		case i == len(statusFields)-1:
			fields[statusFields[i]] = blankDash(strings.Join(tail[j:], " "))
		default:
			fields[statusFields[i]] = blankDash(tail[j])
		}
	}
	return fields
}

func blankDash(s string) string {
	if s == noValue {
		return ""
	}
	return s
}
