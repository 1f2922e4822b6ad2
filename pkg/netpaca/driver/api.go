package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/vpbank/netpaca/pkg/netpaca/config"
	nphttp "github.com/vpbank/netpaca/transport/http"
)

// APIDialect selects the JSON-RPC flavour of a device API.
type APIDialect string

const (
	// DialectEAPI is Arista eAPI: one runCmds call at /command-api.
	DialectEAPI APIDialect = "eapi"

	// DialectNXAPI is Cisco NX-API JSON-RPC: one call per command at /ins.
	DialectNXAPI APIDialect = "nxapi"
)

// APIOptions configures an APIClient.
type APIOptions struct {
	Dialect     APIDialect
	Host        string
	Port        int // default 443
	Credentials config.Credentials

	// URL overrides the endpoint derived from Host, Port and Dialect.
	URL string

	// Timeout bounds one request. Default 30s.
	Timeout time.Duration

	InsecureSkipVerify bool
}

// APIError is a JSON-RPC error returned by the device.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// APIClient talks to NX-API or eAPI over HTTPS. It implements
// device.APIClient and, through the text output format, device.Commander.
// Safe for concurrent use.
type APIClient struct {
	opts   APIOptions
	sender *nphttp.Sender
	logger *slog.Logger
	seq    atomic.Int64
}

// NewAPIClient builds a client; it does not contact the device.
func NewAPIClient(opts APIOptions, logger *slog.Logger) (*APIClient, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if opts.Port == 0 {
		opts.Port = 443
	}
	path, contentType := "/command-api", "application/json"
	switch opts.Dialect {
	case DialectEAPI:
	case DialectNXAPI:
		path, contentType = "/ins", "application/json-rpc"
	default:
		return nil, fmt.Errorf("driver: unknown api dialect %q", opts.Dialect)
	}
	url := opts.URL
	if url == "" {
		url = "https://" + net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)) + path
	}

	sender, err := nphttp.New(nphttp.Config{
		URL:                url,
		ContentType:        contentType,
		Timeout:            opts.Timeout,
		InsecureSkipVerify: opts.InsecureSkipVerify,
		Username:           opts.Credentials.Username,
		Password:           opts.Credentials.Password,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &APIClient{opts: opts, sender: sender, logger: logger}, nil
}

// Exec runs commands and returns the structured output of each.
func (c *APIClient) Exec(ctx context.Context, commands []string) ([]json.RawMessage, error) {
	return c.run(ctx, commands, false)
}

// SendCommand runs one command and returns its CLI text output.
func (c *APIClient) SendCommand(ctx context.Context, command string) (string, error) {
	out, err := c.run(ctx, []string{command}, true)
	if err != nil {
		return "", err
	}
	var text string
	if err := json.Unmarshal(out[0], &text); err != nil {
		return "", fmt.Errorf("api %q: text output: %w", command, err)
	}
	return text, nil
}

// Hostname returns the hostname the device reports.
func (c *APIClient) Hostname(ctx context.Context) (string, error) {
	out, err := c.Exec(ctx, []string{"show hostname"})
	if err != nil {
		return "", err
	}
	var body struct {
		Hostname string `json:"hostname"`
	}
	if err := json.Unmarshal(out[0], &body); err != nil {
		return "", fmt.Errorf("api show hostname: %w", err)
	}
	if body.Hostname == "" {
		return "", fmt.Errorf("api show hostname: empty reply")
	}
	return body.Hostname, nil
}

// Close releases idle connections.
func (c *APIClient) Close() error {
	return c.sender.Close()
}

// run returns one JSON value per command: the structured output, or a JSON
// string holding the text output when text is set.
func (c *APIClient) run(ctx context.Context, commands []string, text bool) ([]json.RawMessage, error) {
	if len(commands) == 0 {
		return nil, nil
	}
	var (
		req []byte
		err error
	)
	if c.opts.Dialect == DialectNXAPI {
		req, err = c.nxapiRequest(commands, text)
	} else {
		req, err = c.eapiRequest(commands, text)
	}
	if err != nil {
		return nil, fmt.Errorf("api: encode request: %w", err)
	}

	reply, err := c.sender.Call(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("api %q: %w", commands, err)
	}

	var out []json.RawMessage
	if c.opts.Dialect == DialectNXAPI {
		out, err = decodeNXAPI(reply, len(commands), text)
	} else {
		out, err = decodeEAPI(reply, len(commands), text)
	}
	if err != nil {
		return nil, fmt.Errorf("api %q: %w", commands, err)
	}
	c.logger.Debug("driver: api call", "dialect", c.opts.Dialect, "commands", len(commands), "bytes", len(reply))
	return out, nil
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *rpcError) err() error {
	msg := e.Message
	var d struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(e.Data, &d) == nil && d.Msg != "" {
		msg += ": " + d.Msg
	}
	return &APIError{Code: e.Code, Message: msg}
}

// ─────────────────────────────────────────────────────────────────────────────
// eAPI
// ─────────────────────────────────────────────────────────────────────────────

type eapiParams struct {
	Version int      `json:"version"`
	Cmds    []string `json:"cmds"`
	Format  string   `json:"format"`
}

type eapiRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	Method  string     `json:"method"`
	Params  eapiParams `json:"params"`
	ID      string     `json:"id"`
}

func (c *APIClient) eapiRequest(commands []string, text bool) ([]byte, error) {
	format := "json"
	if text {
		format = "text"
	}
	return json.Marshal(eapiRequest{
		JSONRPC: "2.0",
		Method:  "runCmds",
		Params:  eapiParams{Version: 1, Cmds: commands, Format: format},
		ID:      "netpaca-" + strconv.FormatInt(c.seq.Add(1), 10),
	})
}

func decodeEAPI(reply []byte, n int, text bool) ([]json.RawMessage, error) {
	var resp struct {
		Result []json.RawMessage `json:"result"`
		Error  *rpcError         `json:"error"`
	}
	if err := json.Unmarshal(reply, &resp); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error.err()
	}
	if len(resp.Result) != n {
		return nil, fmt.Errorf("got %d results for %d commands", len(resp.Result), n)
	}
	if !text {
		return resp.Result, nil
	}
	out := make([]json.RawMessage, n)
	for i, r := range resp.Result {
		var t struct {
			Output string `json:"output"`
		}
		if err := json.Unmarshal(r, &t); err != nil {
			return nil, fmt.Errorf("decode text result: %w", err)
		}
		out[i], _ = json.Marshal(t.Output)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// NX-API
// ─────────────────────────────────────────────────────────────────────────────

type nxapiParams struct {
	Cmd     string `json:"cmd"`
	Version int    `json:"version"`
}

type nxapiRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  nxapiParams `json:"params"`
	ID      int         `json:"id"`
}

type nxapiResponse struct {
	Result *struct {
		Body json.RawMessage `json:"body"`
		Msg  string          `json:"msg"`
	} `json:"result"`
	Error *rpcError `json:"error"`
	ID    int       `json:"id"`
}

func (c *APIClient) nxapiRequest(commands []string, text bool) ([]byte, error) {
	method := "cli"
	if text {
		method = "cli_ascii"
	}
	reqs := make([]nxapiRequest, len(commands))
	for i, cmd := range commands {
		reqs[i] = nxapiRequest{JSONRPC: "2.0", Method: method, Params: nxapiParams{Cmd: cmd, Version: 1}, ID: i + 1}
	}
	return json.Marshal(reqs)
}

// decodeNXAPI accepts both the array reply and the bare object NX-API sends
// for a single command. Results are placed by id.
func decodeNXAPI(reply []byte, n int, text bool) ([]json.RawMessage, error) {
	var resps []nxapiResponse
	trimmed := bytes.TrimSpace(reply)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var one nxapiResponse
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("decode reply: %w", err)
		}
		resps = []nxapiResponse{one}
	} else if err := json.Unmarshal(trimmed, &resps); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if len(resps) != n {
		return nil, fmt.Errorf("got %d results for %d commands", len(resps), n)
	}

	out := make([]json.RawMessage, n)
	for i, r := range resps {
		if r.Error != nil {
			return nil, r.Error.err()
		}
		slot := i
		if r.ID >= 1 && r.ID <= n {
			slot = r.ID - 1
		}
		switch {
		case r.Result == nil && text:
			out[slot] = json.RawMessage(`""`)
		case r.Result == nil:
			out[slot] = json.RawMessage(`null`)
		case text:
			out[slot], _ = json.Marshal(r.Result.Msg)
		default:
			out[slot] = r.Result.Body
		}
	}
	return out, nil
}
