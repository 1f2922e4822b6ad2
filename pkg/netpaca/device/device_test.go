package device_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/vpbank/netpaca/pkg/netpaca/device"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type nopAPI struct{}

func (nopAPI) Exec(context.Context, []string) ([]json.RawMessage, error) { return nil, nil }

type nopCommander struct{}

func (nopCommander) SendCommand(context.Context, string) (string, error) { return "", nil }

func TestNew_CopiesTagsAndDefaultsHost(t *testing.T) {
	tags := map[string]string{"site": "dc1"}
	d := device.New("sw1", "", "ios", tags)
	tags["site"] = "changed"

	if d.Host != "sw1" {
		t.Errorf("Host = %q, want sw1", d.Host)
	}
	if d.Tags["site"] != "dc1" {
		t.Errorf("Tags not copied: %v", d.Tags)
	}
}

func TestHas(t *testing.T) {
	d := device.New("sw1", "10.0.0.1", "ios", nil)
	if d.Has(device.CapCLI) || d.Has(device.CapSNMP) {
		t.Error("fresh device must not have capabilities")
	}
	d.Private.CLI = nopCommander{}
	if !d.Has(device.CapCLI) {
		t.Error("CLI capability not reported")
	}
	if d.Has(device.CapAPI) {
		t.Error("API capability reported without a client")
	}
	d.Private.API = nopAPI{}
	if !d.Has(device.CapAPI) {
		t.Error("API capability not reported")
	}
	if d.Has("netconf") {
		t.Error("unknown capability reported")
	}
}

func TestClose_ReverseOrderAndJoinedErrors(t *testing.T) {
	d := device.New("sw1", "", "ios", nil)
	var order []int
	boom := errors.New("boom")
	d.OnClose(closerFunc(func() error { order = append(order, 1); return nil }))
	d.OnClose(closerFunc(func() error { order = append(order, 2); return boom }))

	err := d.Close()
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("close order = %v, want [2 1]", order)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}
