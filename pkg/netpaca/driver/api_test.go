package driver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/vpbank/netpaca/parser"
	"github.com/vpbank/netpaca/pkg/netpaca/config"
	"github.com/vpbank/netpaca/pkg/netpaca/device"
	"github.com/vpbank/netpaca/pkg/netpaca/driver"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fake device APIs
// ─────────────────────────────────────────────────────────────────────────────

// fakeAPI answers eAPI at /command-api and NX-API at /ins. outputs maps a
// command to its structured output; text maps a command to its CLI text.
type fakeAPI struct {
	outputs map[string]any
	text    map[string]string

	mu   sync.Mutex
	cmds []string
}

func (f *fakeAPI) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if u, p, ok := r.BasicAuth(); !ok || u != testCreds.Username || p != testCreds.Password {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	switch r.URL.Path {
	case "/command-api":
		f.serveEAPI(w, r)
	case "/ins":
		f.serveNXAPI(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) serveEAPI(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string `json:"method"`
		Params struct {
			Cmds   []string `json:"cmds"`
			Format string   `json:"format"`
		} `json:"params"`
		ID string `json:"id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	var results []any
	for i, cmd := range req.Params.Cmds {
		f.record(cmd)
		out, ok := f.outputs[cmd]
		if !ok {
			resp["error"] = map[string]any{"code": 1002, "message": "CLI command " + strconv.Itoa(i+1) + " failed: invalid command"}
			break
		}
		if req.Params.Format == "text" {
			out = map[string]string{"output": f.text[cmd]}
		}
		results = append(results, out)
	}
	if _, failed := resp["error"]; !failed {
		resp["result"] = results
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeAPI) serveNXAPI(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "application/json-rpc" {
		http.Error(w, "bad content type "+ct, http.StatusBadRequest)
		return
	}
	var reqs []struct {
		Method string `json:"method"`
		Params struct {
			Cmd string `json:"cmd"`
		} `json:"params"`
		ID int `json:"id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&reqs)

	var resps []map[string]any
	for _, req := range reqs {
		f.record(req.Params.Cmd)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		out, ok := f.outputs[req.Params.Cmd]
		switch {
		case !ok:
			resp["error"] = map[string]any{"code": -32602, "message": "Invalid params", "data": map[string]string{"msg": "Input CLI command error"}}
		case req.Method == "cli_ascii":
			resp["result"] = map[string]string{"msg": f.text[req.Params.Cmd]}
		default:
			resp["result"] = map[string]any{"body": out}
		}
		resps = append(resps, resp)
	}
	// NX-API answers a single command with a bare object.
	if len(resps) == 1 {
		_ = json.NewEncoder(w).Encode(resps[0])
		return
	}
	_ = json.NewEncoder(w).Encode(resps)
}

func (f *fakeAPI) record(cmd string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		outputs: map[string]any{
			"show hostname": map[string]string{"hostname": "leaf1", "fqdn": "leaf1.lab"},
			"show version":  map[string]string{"version": "4.30.1F"},
			"show clock":    map[string]string{},
		},
		text: map[string]string{
			"show clock": "Wed Oct 14 10:00:00 2026\n",
		},
	}
}

func apiClient(t *testing.T, dialect driver.APIDialect, url string, creds config.Credentials) *driver.APIClient {
	t.Helper()
	c, err := driver.NewAPIClient(driver.APIOptions{Dialect: dialect, URL: url, Credentials: creds}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestAPIClient_Dialects(t *testing.T) {
	tests := []struct {
		dialect driver.APIDialect
		path    string
	}{
		{driver.DialectEAPI, "/command-api"},
		{driver.DialectNXAPI, "/ins"},
	}
	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			api := newFakeAPI()
			srv := httptest.NewServer(api)
			defer srv.Close()
			c := apiClient(t, tt.dialect, srv.URL+tt.path, testCreds)
			ctx := context.Background()

			host, err := c.Hostname(ctx)
			if err != nil || host != "leaf1" {
				t.Fatalf("Hostname = %q, %v", host, err)
			}

			out, err := c.Exec(ctx, []string{"show hostname", "show version"})
			if err != nil {
				t.Fatalf("Exec: %v", err)
			}
			var ver struct{ Version string }
			if len(out) != 2 || json.Unmarshal(out[1], &ver) != nil || ver.Version != "4.30.1F" {
				t.Errorf("Exec results = %s", out)
			}

			text, err := c.SendCommand(ctx, "show clock")
			if err != nil || text != "Wed Oct 14 10:00:00 2026\n" {
				t.Errorf("SendCommand = %q, %v", text, err)
			}

			_, err = c.Exec(ctx, []string{"show bogus"})
			var apiErr *driver.APIError
			if !errors.As(err, &apiErr) {
				t.Errorf("unknown command: err = %v, want *APIError", err)
			}
		})
	}
}

func TestAPIClient_BadCredentials(t *testing.T) {
	srv := httptest.NewServer(newFakeAPI())
	defer srv.Close()
	c := apiClient(t, driver.DialectEAPI, srv.URL+"/command-api", config.Credentials{Username: "x", Password: "y"})
	if _, err := c.Hostname(context.Background()); err == nil {
		t.Fatal("expected authentication failure")
	}
}

func TestNewAPIClient_UnknownDialect(t *testing.T) {
	if _, err := driver.NewAPIClient(driver.APIOptions{Dialect: "netconf", Host: "sw1"}, nil); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}

func TestBuiltin_APISetup(t *testing.T) {
	tests := []struct {
		driver     string
		wantParser bool
	}{
		{"cisco.nxapi", true},
		{"arista.eapi", false},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			api := newFakeAPI()
			srv := httptest.NewTLSServer(api)
			defer srv.Close()
			_, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
			port, _ := strconv.Atoi(portStr)

			drv, ok := driver.Builtin().Lookup(tt.driver)
			if !ok {
				t.Fatalf("%s not registered", tt.driver)
			}
			dev := device.New("leaf1", "127.0.0.1", "nxos", nil)
			env := driver.Env{
				Defaults: config.Defaults{Credentials: testCreds},
				Driver:   config.DeviceDriver{APIPort: port},
			}
			if err := drv.Setup(context.Background(), dev, env); err != nil {
				t.Fatalf("Setup: %v", err)
			}
			defer dev.Close()

			if got := api.seen(); len(got) != 1 || got[0] != "show hostname" {
				t.Errorf("login commands = %v, want [show hostname]", got)
			}
			if !dev.Has(device.CapAPI) || !dev.Has(device.CapCLI) {
				t.Error("API and CLI capabilities must both be set")
			}
			if dev.Has(device.CapSNMP) {
				t.Error("SNMP must stay off without a community")
			}
			entry, ok := dev.Private.Parsers.Lookup(parser.InterfacesStatus)
			if ok != tt.wantParser {
				t.Fatalf("status parser installed = %v, want %v", ok, tt.wantParser)
			}
			if ok && entry.Command != "show interface status" {
				t.Errorf("status command = %q", entry.Command)
			}
		})
	}
}

func TestBuiltin_APISetupVerifyTLS(t *testing.T) {
	srv := httptest.NewTLSServer(newFakeAPI())
	defer srv.Close()
	_, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	drv, _ := driver.Builtin().Lookup("arista.eapi")
	dev := device.New("leaf1", "127.0.0.1", "eos", nil)
	env := driver.Env{
		Defaults: config.Defaults{Credentials: testCreds},
		Driver:   config.DeviceDriver{APIPort: port, VerifyTLS: true},
	}
	if err := drv.Setup(context.Background(), dev, env); err == nil {
		t.Fatal("self-signed certificate must fail when verify_tls is set")
	}
	if dev.Has(device.CapAPI) {
		t.Error("failed login must not install the client")
	}
}
