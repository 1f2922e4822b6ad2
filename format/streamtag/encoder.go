// Package streamtag encodes metrics as a single JSON object whose keys carry
// the tags inline, in the stream-tag notation accepted by Circonus HTTPTrap
// checks:
//
//	{"<name>|ST[<tag>:<value>,...]": <value>, ...}
//
// Tags are the merge of device and metric tags (metric wins), sorted by key.
package streamtag

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/vpbank/netpaca/models"
)

// ContentType of an encoded batch.
const ContentType = "application/json"

// ErrEmpty is returned when no metric in the batch could be encoded.
var ErrEmpty = errors.New("format/streamtag: no encodable metrics")

// Config controls Encoder behaviour.
type Config struct {
	// PrettyPrint emits indented JSON. Meant for the file sink.
	PrettyPrint bool
}

// Encoder is safe for concurrent use.
type Encoder struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs an Encoder. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Encoder{cfg: cfg, logger: logger}
}

// ContentType implements the exporter encoder contract.
func (e *Encoder) ContentType() string { return ContentType }

// Encode builds the JSON object for the batch. Invalid metrics are logged and
// left out. Two metrics with the same name and tags collapse to the later one.
func (e *Encoder) Encode(deviceTags map[string]string, metrics []models.Metric) ([]byte, error) {
	obj := make(map[string]interface{}, len(metrics))
	for _, m := range metrics {
		if err := m.Validate(); err != nil {
			e.logger.Warn("format/streamtag: skipping metric", "error", err.Error())
			continue
		}
		key := Key(deviceTags, m)
		if _, dup := obj[key]; dup {
			e.logger.Debug("format/streamtag: duplicate stream, keeping last", "key", key)
		}
		obj[key] = m.Value
	}
	if len(obj) == 0 {
		return nil, ErrEmpty
	}

	var (
		data []byte
		err  error
	)
	if e.cfg.PrettyPrint {
		data, err = json.MarshalIndent(obj, "", "  ")
	} else {
		data, err = json.Marshal(obj)
	}
	if err != nil {
		return nil, fmt.Errorf("format/streamtag: marshal: %w", err)
	}

	e.logger.Debug("format/streamtag: encoded batch",
		"metric_count", len(obj),
		"bytes", len(data),
	)
	return data, nil
}

// Key returns the stream-tagged metric name for m.
func Key(deviceTags map[string]string, m models.Metric) string {
	tags := m.MergedTags(deviceTags)
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteString("|ST[")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(tags[k])
	}
	b.WriteByte(']')
	return b.String()
}

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
