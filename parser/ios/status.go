// Package ios parses Cisco IOS / IOS-XE CLI output.
package ios

import (
	"strings"

	"github.com/vpbank/netpaca/parser"
)

// Commands understood by this package.
const (
	CmdInterfacesStatus      = "show interfaces status"
	CmdInterfacesTransceiver = "show interfaces transceiver detail"
)

// Parsers returns the table → command/parser set for IOS devices.
func Parsers() parser.Set {
	return parser.Set{
		parser.InterfacesStatus:      {Command: CmdInterfacesStatus, Parse: ParseInterfacesStatus},
		parser.InterfacesTransceiver: {Command: CmdInterfacesTransceiver, Parse: ParseInterfacesTransceiver},
	}
}

// statusHeaders are the header labels of "show interfaces status" and
// statusFields the field name each column is stored under.
var (
	statusHeaders = []string{"Port", "Name", "Status", "Vlan", "Duplex", "Speed", "Type"}
	statusFields  = []string{"if_name", "if_desc", "if_status", "if_vlan", "if_duplex", "if_speed", "if_type"}
)

// ParseInterfacesStatus parses "show interfaces status". The left-aligned
// columns (port, description, status) are cut at the header offsets so the
// description may contain spaces; the right-hand columns (vlan, duplex,
// speed, type) are whitespace separated since IOS right-aligns some of them.
// if_type is upper-cased.
//
//	Port      Name               Status       Vlan       Duplex  Speed Type
//	Gi1/0/1   uplink to core     connected    trunk      a-full a-1000 10/100/1000BaseTX
func ParseInterfacesStatus(text string) (parser.Interfaces, bool) {
	lines := parser.SplitLines(text)

	var offsets []int
	start := -1
	for i, line := range lines {
		if offs, ok := parser.ColumnOffsets(line, statusHeaders); ok {
			offsets = offs
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, false
	}

	out := make(parser.Interfaces)
	for _, line := range lines[start:] {
		if strings.TrimSpace(line) == "" {
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

// fixedColumns is the number of leading columns cut by header offset.
const fixedColumns = 3

func parseStatusRow(line string, offsets []int) parser.Fields {
	fields := make(parser.Fields, len(statusFields))
	for i := 0; i < fixedColumns; i++ {
		fields[statusFields[i]] = parser.Column(line, offsets, i)
	}

	var tail []string
	if begin := offsets[fixedColumns]; begin < len(line) {
		tail = strings.Fields(line[begin:])
	}
	for i := fixedColumns; i < len(statusFields); i++ {
		j := i - fixedColumns
		switch {
		case j >= len(tail):
			fields[statusFields[i]] = ""
		case i == len(statusFields)-1:
			fields[statusFields[i]] = strings.ToUpper(strings.Join(tail[j:], " "))
		default:
			fields[statusFields[i]] = tail[j]
		}
	}
	return fields
}
