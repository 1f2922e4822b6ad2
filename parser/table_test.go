package parser_test

import (
	"testing"

	"github.com/vpbank/netpaca/parser"
)

func TestColumnOffsets(t *testing.T) {
	headers := []string{"Port", "Name", "Status"}
	line := "Port      Name               Status"
	offs, ok := parser.ColumnOffsets(line, headers)
	if !ok {
		t.Fatal("ColumnOffsets failed")
	}
	if offs[0] != 0 || offs[1] != 10 || offs[2] != 29 {
		t.Errorf("offsets = %v", offs)
	}

	row := "Gi1/0/1   uplink to core     connected"
	for i, want := range []string{"Gi1/0/1", "uplink to core", "connected"} {
		if got := parser.Column(row, offs, i); got != want {
			t.Errorf("Column(%d) = %q, want %q", i, got, want)
		}
	}
	if got := parser.Column("Gi1/0/2", offs, 2); got != "" {
		t.Errorf("short row Column = %q, want empty", got)
	}
}

func TestColumnOffsets_NoMatch(t *testing.T) {
	for _, line := range []string{"", "Interface Name Status", "Port Name"} {
		if _, ok := parser.ColumnOffsets(line, []string{"Port", "Name", "Status"}); ok {
			t.Errorf("ColumnOffsets(%q) succeeded", line)
		}
	}
}

func TestSetLookup(t *testing.T) {
	var empty parser.Set
	if _, ok := empty.Lookup(parser.InterfacesStatus); ok {
		t.Error("nil set must not find anything")
	}
	s := parser.Set{parser.InterfacesStatus: {Command: "show interface status"}}
	if e, ok := s.Lookup(parser.InterfacesStatus); !ok || e.Command != "show interface status" {
		t.Errorf("Lookup = %+v, %v", e, ok)
	}
}

func TestThresholdStatus(t *testing.T) {
	// rx power thresholds: high alarm 0, high warn -3, low warn -19, low alarm -23.
	tests := []struct {
		v    float64
		want int
	}{
		{-8.6, parser.ThresholdOK},
		{-2.0, parser.ThresholdWarning},
		{0.5, parser.ThresholdAlarm},
		{-19.0, parser.ThresholdWarning},
		{-21.8, parser.ThresholdWarning},
		{-23.0, parser.ThresholdAlarm},
	}
	for _, tt := range tests {
		if got := parser.ThresholdStatus(tt.v, 0, -3, -19, -23); got != tt.want {
			t.Errorf("ThresholdStatus(%v) = %d, want %d", tt.v, got, tt.want)
		}
	}
}

func TestMarkerStatus(t *testing.T) {
	for marker, want := range map[string]int{
		"": parser.ThresholdOK, "+": parser.ThresholdWarning, "-": parser.ThresholdWarning,
		"++": parser.ThresholdAlarm, "--": parser.ThresholdAlarm,
	} {
		if got := parser.MarkerStatus(marker); got != want {
			t.Errorf("MarkerStatus(%q) = %d, want %d", marker, got, want)
		}
	}
}
