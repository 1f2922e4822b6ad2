// Package value converts raw gosnmp PDU values into plain Go values suitable
// for models.Metric, and holds the small integer enumerations the collectors
// need to label SNMP states.
package value

import (
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// PDU type helpers
// ─────────────────────────────────────────────────────────────────────────────

// PDUTypeString returns the human-readable name for a gosnmp Asn1BER type tag.
func PDUTypeString(t gosnmp.Asn1BER) string {
	switch t {
	case gosnmp.Integer:
		return "Integer"
	case gosnmp.OctetString:
		return "OctetString"
	case gosnmp.Null:
		return "Null"
	case gosnmp.ObjectIdentifier:
		return "ObjectIdentifier"
	case gosnmp.IPAddress:
		return "IpAddress"
	case gosnmp.Counter32:
		return "Counter32"
	case gosnmp.Gauge32:
		return "Gauge32"
	case gosnmp.TimeTicks:
		return "TimeTicks"
	case gosnmp.Counter64:
		return "Counter64"
	case gosnmp.Uinteger32:
		return "Unsigned32"
	case gosnmp.OpaqueFloat:
		return "OpaqueFloat"
	case gosnmp.OpaqueDouble:
		return "OpaqueDouble"
	case gosnmp.NoSuchObject:
		return "NoSuchObject"
	case gosnmp.NoSuchInstance:
		return "NoSuchInstance"
	case gosnmp.EndOfMibView:
		return "EndOfMibView"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(t))
	}
}

// IsErrorType returns true when the PDU type signals a retrieval error rather
// than an actual value.
func IsErrorType(t gosnmp.Asn1BER) bool {
	return t == gosnmp.NoSuchObject || t == gosnmp.NoSuchInstance || t == gosnmp.EndOfMibView || t == gosnmp.Null
}

// ─────────────────────────────────────────────────────────────────────────────
// Conversion
// ─────────────────────────────────────────────────────────────────────────────

// Native converts a PDU into the metric value type implied by its ASN.1 type:
// int64 for Integer, uint64 for counters/gauges/ticks, float64 for opaque
// floats and string for everything textual.
func Native(pdu gosnmp.SnmpPDU) (interface{}, error) {
	if IsErrorType(pdu.Type) {
		return nil, fmt.Errorf("oid %s: PDU type is %s", pdu.Name, PDUTypeString(pdu.Type))
	}
	switch pdu.Type {
	case gosnmp.Integer:
		return Int64(pdu.Value)
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32, gosnmp.Counter64:
		return Uint64(pdu.Value)
	case gosnmp.OpaqueFloat, gosnmp.OpaqueDouble:
		return Float64(pdu.Value)
	case gosnmp.IPAddress:
		return ipString(pdu.Value), nil
	case gosnmp.ObjectIdentifier:
		return strings.TrimPrefix(String(pdu.Value), "."), nil
	default:
		return String(pdu.Value), nil
	}
}

// Int64 converts the raw gosnmp value to int64.
func Int64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("uint64 value %d overflows int64", x)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", v)
	}
}

// Uint64 converts the raw gosnmp value to uint64.
func Uint64(v interface{}) (uint64, error) {
	switch x := v.(type) {
	case int:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d cannot be converted to uint64", x)
		}
		return uint64(x), nil
	case int32:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d cannot be converted to uint64", x)
		}
		return uint64(x), nil
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d cannot be converted to uint64", x)
		}
		return uint64(x), nil
	case uint:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to uint64", v)
	}
}

// Float64 widens any numeric type to float64.
func Float64(v interface{}) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

// String converts an OctetString to text, dropping the trailing NUL bytes
// some agents append.
func String(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimRight(x, "\x00")
	case []byte:
		return strings.TrimRight(string(x), "\x00")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func ipString(v interface{}) string {
	switch x := v.(type) {
	case string:
		if b := []byte(x); len(b) == 4 {
			return net.IP(b).String()
		}
		return x
	case []byte:
		if len(x) == 4 || len(x) == 16 {
			return net.IP(x).String()
		}
		return fmt.Sprintf("%x", x)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Enumerations
// ─────────────────────────────────────────────────────────────────────────────

// IntEnum maps integer values to text labels.
type IntEnum map[int64]string

// Label returns the label for v, or the decimal value when unknown.
func (e IntEnum) Label(v int64) string {
	if s, ok := e[v]; ok {
		return s
	}
	return fmt.Sprintf("%d", v)
}

// IfOperStatus is IF-MIB::ifOperStatus.
var IfOperStatus = IntEnum{
	1: "up",
	2: "down",
	3: "testing",
	4: "unknown",
	5: "dormant",
	6: "notPresent",
	7: "lowerLayerDown",
}
