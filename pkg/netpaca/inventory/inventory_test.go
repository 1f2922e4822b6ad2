package inventory_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vpbank/netpaca/pkg/netpaca/inventory"
)

const csvInventory = `# site inventory
host,os_name,ipaddr,site,role
sw1.dc1,ios,10.0.0.1,dc1,leaf
sw2.dc1,ios,,dc1,spine
# decommissioned
rtr1.dc2,snmp,10.0.1.1,dc2,edge

sw3.dc2,ios,10.0.1.3,dc2,leaf
`

func hosts(recs []inventory.Record) string {
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Host()
	}
	return strings.Join(names, ",")
}

func TestRead_Filters(t *testing.T) {
	tests := []struct {
		name   string
		filter inventory.Filter
		want   string
	}{
		{"all", inventory.Filter{}, "sw1.dc1,sw2.dc1,rtr1.dc2,sw3.dc2"},
		{"limit one field", inventory.Filter{Limits: []string{"site=dc1"}}, "sw1.dc1,sw2.dc1"},
		{"limit all pairs must match", inventory.Filter{Limits: []string{"site=dc2,role=leaf"}}, "sw3.dc2"},
		{"limits are or'ed", inventory.Filter{Limits: []string{"role=spine", "role=edge"}}, "sw2.dc1,rtr1.dc2"},
		{"regex anchored at start", inventory.Filter{Limits: []string{"host=sw"}}, "sw1.dc1,sw2.dc1,sw3.dc2"},
		{"exclude", inventory.Filter{Excludes: []string{"os_name=snmp"}}, "sw1.dc1,sw2.dc1,sw3.dc2"},
		{"limit and exclude", inventory.Filter{Limits: []string{"os_name=ios"}, Excludes: []string{"role=leaf"}}, "sw2.dc1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := inventory.Read(strings.NewReader(csvInventory), tt.filter)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got := hosts(recs); got != tt.want {
				t.Errorf("hosts = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRecord_Address(t *testing.T) {
	recs, err := inventory.Read(strings.NewReader(csvInventory), inventory.Filter{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := recs[0].Address(); got != "10.0.0.1" {
		t.Errorf("Address = %q, want ipaddr", got)
	}
	if got := recs[1].Address(); got != "sw2.dc1" {
		t.Errorf("Address = %q, want host fallback", got)
	}
	if recs[0]["site"] != "dc1" || recs[0].OSName() != "ios" {
		t.Errorf("record = %v", recs[0])
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		filter inventory.Filter
	}{
		{"missing os_name", "host,site\nsw1,dc1\n", inventory.Filter{}},
		{"empty", "# nothing\n", inventory.Filter{}},
		{"unknown constraint field", csvInventory, inventory.Filter{Limits: []string{"rack=1"}}},
		{"malformed constraint", csvInventory, inventory.Filter{Limits: []string{"site"}}},
		{"bad regex", csvInventory, inventory.Filter{Excludes: []string{"host=("}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := inventory.Read(strings.NewReader(tt.input), tt.filter); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRead_NoMatch(t *testing.T) {
	_, err := inventory.Read(strings.NewReader(csvInventory), inventory.Filter{Limits: []string{"site=dc9"}})
	if !errors.Is(err, inventory.ErrNoRecords) {
		t.Errorf("err = %v, want ErrNoRecords", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.csv")
	if err := os.WriteFile(path, []byte(csvInventory), 0o644); err != nil {
		t.Fatal(err)
	}
	recs, err := inventory.Load(path, inventory.Filter{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 4 {
		t.Errorf("got %d records, want 4", len(recs))
	}
	if _, err := inventory.Load(filepath.Join(t.TempDir(), "missing.csv"), inventory.Filter{}); err == nil {
		t.Error("expected error for missing file")
	}
}
