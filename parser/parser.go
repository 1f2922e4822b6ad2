// Package parser defines the text-parser capability: a pure function that
// turns the raw CLI output of one command into per-interface field values.
// Vendor implementations live in sub-packages (parser/ios, parser/nxos).
package parser

// Fields holds the parsed values for one interface, keyed by field name.
// Values are string, float64 or int.
type Fields map[string]interface{}

// Interfaces maps interface name → Fields.
type Interfaces map[string]Fields

// Func parses CLI text. It returns false when the text holds nothing it
// recognises (e.g. no transceivers installed).
type Func func(text string) (Interfaces, bool)

// Table names. Every vendor package registers its command for each table
// it can parse, so collectors ask for a table rather than a CLI command.
const (
	// InterfacesStatus yields if_name, if_desc, if_status, if_vlan,
	// if_duplex, if_speed and if_type per interface.
	InterfacesStatus = "interfaces_status"

	// InterfacesTransceiver yields <metric>, <metric>_flag and
	// <metric>_marker for temp, voltage, current, txpower and rxpower.
	InterfacesTransceiver = "interfaces_transceiver"
)

// Threshold status values stored in "<metric>_flag".
const (
	ThresholdOK      = 0
	ThresholdWarning = 1
	ThresholdAlarm   = 2
)

// Entry is the vendor command producing a table and the parser for its output.
type Entry struct {
	Command string
	Parse   Func
}

// Set maps a table name to its Entry.
type Set map[string]Entry

// Lookup returns the entry registered for table.
func (s Set) Lookup(table string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s[table]
	return e, ok
}
