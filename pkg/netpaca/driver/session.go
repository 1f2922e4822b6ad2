package driver

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/netpaca/pkg/netpaca/config"
)

// ─────────────────────────────────────────────────────────────────────────────
// Session contract
// ─────────────────────────────────────────────────────────────────────────────

// Session is the subset of *gosnmp.GoSNMP the fetcher needs.
type Session interface {
	GetNext(oids []string) (*gosnmp.SnmpPacket, error)
	GetBulk(oids []string, nonRepeaters uint8, maxRepetitions uint32) (*gosnmp.SnmpPacket, error)
	Close() error
}

// Target is the address and SNMP parameters of one device.
type Target struct {
	Host string
	SNMP config.SNMP
}

// gosnmpSession adapts *gosnmp.GoSNMP to Session.
type gosnmpSession struct {
	*gosnmp.GoSNMP
}

func (s gosnmpSession) Close() error {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Session factory: Target → *gosnmp.GoSNMP
// ─────────────────────────────────────────────────────────────────────────────

// NewSession creates and connects a gosnmp session for the target. The
// caller is responsible for calling Close when the session is no longer
// needed.
func NewSession(t Target) (Session, error) {
	g, err := buildSession(t)
	if err != nil {
		return nil, err
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s:%d: %w", t.Host, t.SNMP.Port, err)
	}
	return gosnmpSession{g}, nil
}

func buildSession(t Target) (*gosnmp.GoSNMP, error) {
	cfg := t.SNMP
	g := &gosnmp.GoSNMP{
		Target:  t.Host,
		Port:    uint16(cfg.Port),
		Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		Retries: cfg.Retries,
		MaxOids: gosnmp.MaxOids,
	}

	switch cfg.Version {
	case "1":
		g.Version = gosnmp.Version1
		g.Community = cfg.Community
	case "2c":
		g.Version = gosnmp.Version2c
		g.Community = cfg.Community
	case "3":
		cred := cfg.V3
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = snmpv3MsgFlags(cred)
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cred.Username,
			AuthenticationProtocol:   mapAuthProto(cred.AuthenticationProtocol),
			AuthenticationPassphrase: cred.AuthenticationPassphrase,
			PrivacyProtocol:          mapPrivProto(cred.PrivacyProtocol),
			PrivacyPassphrase:        cred.PrivacyPassphrase,
		}
	default:
		return nil, fmt.Errorf("unsupported SNMP version %q", cfg.Version)
	}
	return g, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMPv3 helpers
// ─────────────────────────────────────────────────────────────────────────────

func snmpv3MsgFlags(cred config.V3Credentials) gosnmp.SnmpV3MsgFlags {
	hasAuth := cred.AuthenticationProtocol != "" &&
		!strings.EqualFold(cred.AuthenticationProtocol, "noauth")
	hasPriv := cred.PrivacyProtocol != "" &&
		!strings.EqualFold(cred.PrivacyProtocol, "nopriv")

	switch {
	case hasAuth && hasPriv:
		return gosnmp.AuthPriv
	case hasAuth:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func mapAuthProto(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToLower(s) {
	case "md5":
		return gosnmp.MD5
	case "sha":
		return gosnmp.SHA
	case "sha224":
		return gosnmp.SHA224
	case "sha256":
		return gosnmp.SHA256
	case "sha384":
		return gosnmp.SHA384
	case "sha512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func mapPrivProto(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToLower(s) {
	case "des":
		return gosnmp.DES
	case "aes":
		return gosnmp.AES
	case "aes192":
		return gosnmp.AES192
	case "aes256":
		return gosnmp.AES256
	case "aes192c":
		return gosnmp.AES192C
	case "aes256c":
		return gosnmp.AES256C
	default:
		return gosnmp.NoPriv
	}
}
