package export

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/vpbank/netpaca/format/lineproto"
	"github.com/vpbank/netpaca/format/streamtag"
	"github.com/vpbank/netpaca/pkg/netpaca/config"
	"github.com/vpbank/netpaca/pkg/netpaca/telemetry"
	filetransport "github.com/vpbank/netpaca/transport/file"
	nphttp "github.com/vpbank/netpaca/transport/http"
)

// BuildFunc creates the encoder and transport of one exporter type.
type BuildFunc func(opts config.ExporterOptions, logger *slog.Logger) (Encoder, Transport, error)

// Type is one built-in exporter.
type Type struct {
	Name        string
	Description string
	Build       BuildFunc
}

// Registry maps exporter type names to their types.
type Registry map[string]Type

// Builtin returns the built-in exporter types.
func Builtin() Registry {
	return Registry{
		"influxdb": {Name: "influxdb", Description: "InfluxDB 1.x line protocol over HTTP", Build: buildInfluxDB},
		"circonus": {Name: "circonus", Description: "Circonus stream-tag JSON over HTTP", Build: buildCirconus},
		"file":     {Name: "file", Description: "line protocol appended to a rotated file", Build: buildFile},
	}
}

// Has reports whether name is a known exporter type.
func (r Registry) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// Names returns the exporter type names in sorted order.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New resolves the exporter entry named name against types and builds its
// Pipeline.
func New(name string, exp config.Exporter, types Registry, tel *telemetry.Metrics, logger *slog.Logger) (*Pipeline, error) {
	use := exp.Use
	if use == "" {
		use = name
	}
	typ, ok := types[use]
	if !ok {
		return nil, fmt.Errorf("export: exporter %q: unknown type %q", name, use)
	}
	enc, tr, err := typ.Build(exp.Config, logger)
	if err != nil {
		return nil, fmt.Errorf("export: exporter %q: %w", name, err)
	}
	return NewPipeline(name, enc, tr, retryPolicy(exp.Config.Retry), tel, logger), nil
}

func retryPolicy(r config.Retry) RetryPolicy {
	p := DefaultRetryPolicy()
	if r.MinBackoffSeconds > 0 {
		p.MinBackoff = time.Duration(r.MinBackoffSeconds) * time.Second
	}
	if r.MaxBackoffSeconds > 0 {
		p.MaxBackoff = time.Duration(r.MaxBackoffSeconds) * time.Second
	}
	if r.MaxAttempts != 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	return p
}

// ─────────────────────────────────────────────────────────────────────────────
// Builders
// ─────────────────────────────────────────────────────────────────────────────

// InfluxWriteURL returns the 1.x write endpoint for database.
func InfluxWriteURL(serverURL, database string) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("server_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("server_url %q: scheme and host are required", serverURL)
	}
	u.Path += "/write"
	q := u.Query()
	q.Set("db", database)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func buildInfluxDB(opts config.ExporterOptions, logger *slog.Logger) (Encoder, Transport, error) {
	writeURL, err := InfluxWriteURL(opts.ServerURL, opts.Database)
	if err != nil {
		return nil, nil, err
	}
	enc := lineproto.New(lineproto.Config{}, logger)
	tr, err := nphttp.New(nphttp.Config{
		URL:                writeURL,
		Method:             http.MethodPost,
		ContentType:        enc.ContentType(),
		Timeout:            time.Duration(opts.TimeoutSeconds) * time.Second,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return enc, tr, nil
}

func buildCirconus(opts config.ExporterOptions, logger *slog.Logger) (Encoder, Transport, error) {
	enc := streamtag.New(streamtag.Config{}, logger)
	tr, err := nphttp.New(nphttp.Config{
		URL:                opts.DataSubmissionURL,
		Method:             http.MethodPut,
		ContentType:        enc.ContentType(),
		Timeout:            time.Duration(opts.TimeoutSeconds) * time.Second,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return enc, tr, nil
}

func buildFile(opts config.ExporterOptions, logger *slog.Logger) (Encoder, Transport, error) {
	enc := lineproto.New(lineproto.Config{}, logger)
	tr := filetransport.New(filetransport.Config{
		Path:       opts.Path,
		MaxSizeMB:  opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   opts.Compress,
	}, logger)
	return enc, tr, nil
}
