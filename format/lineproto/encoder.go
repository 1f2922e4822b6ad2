// Package lineproto encodes metrics in the InfluxDB line protocol:
//
//	<name>,<tag>=<value>,... value=<value> <timestamp-ns>
//
// Device tags and metric tags are merged (metric tags win) and written in key
// order. The timestamp is the metric's millisecond timestamp scaled to
// nanoseconds.
package lineproto

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/vpbank/netpaca/models"
)

// ContentType of an encoded batch.
const ContentType = "text/plain; charset=utf-8"

// ErrEmpty is returned when no metric in the batch could be encoded.
var ErrEmpty = errors.New("format/lineproto: no encodable metrics")

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls Encoder behaviour.
type Config struct {
	// IntegerSuffix appends the line-protocol "i" suffix to integer values.
	// Off by default: integers are written bare and stored as floats.
	IntegerSuffix bool
}

// ─────────────────────────────────────────────────────────────────────────────
// Encoder
// ─────────────────────────────────────────────────────────────────────────────

// Encoder is safe for concurrent use; it holds no mutable state.
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

// Encode renders one line per metric, newline separated. Metrics that fail
// models.Metric.Validate are logged and left out; ErrEmpty is returned when
// nothing remains.
func (e *Encoder) Encode(deviceTags map[string]string, metrics []models.Metric) ([]byte, error) {
	var buf bytes.Buffer
	lines := 0
	for _, m := range metrics {
		if err := m.Validate(); err != nil {
			e.logger.Warn("format/lineproto: skipping metric", "error", err.Error())
			continue
		}
		if lines > 0 {
			buf.WriteByte('\n')
		}
		e.writeLine(&buf, deviceTags, m)
		lines++
	}
	if lines == 0 {
		return nil, ErrEmpty
	}

	e.logger.Debug("format/lineproto: encoded batch",
		"metric_count", lines,
		"bytes", buf.Len(),
	)
	return buf.Bytes(), nil
}

func (e *Encoder) writeLine(buf *bytes.Buffer, deviceTags map[string]string, m models.Metric) {
	buf.WriteString(escapeName(m.Name))

	tags := m.MergedTags(deviceTags)
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		buf.WriteByte(',')
		buf.WriteString(escapeName(k))
		buf.WriteByte('=')
		buf.WriteString(EscapeTagValue(tags[k]))
	}

	buf.WriteString(" value=")
	buf.WriteString(e.formatValue(m.Value))
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatInt(m.Timestamp*1_000_000, 10))
}

// ─────────────────────────────────────────────────────────────────────────────
// Escaping and value formatting
// ─────────────────────────────────────────────────────────────────────────────

var nameEscaper = strings.NewReplacer(",", `\,`, " ", `\ `, "=", `\=`)

func escapeName(s string) string { return nameEscaper.Replace(s) }

// EscapeTagValue backslash-escapes whitespace, comma and equals sign. An
// empty value is written as two single quotes since the protocol does not
// allow empty tag values.
func EscapeTagValue(v string) string {
	if v == "" {
		return "''"
	}
	var b strings.Builder
	for _, r := range v {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\v', ',', '=':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var stringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func (e *Encoder) formatValue(v interface{}) string {
	intSuffix := ""
	if e.cfg.IntegerSuffix {
		intSuffix = "i"
	}
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.FormatInt(int64(x), 10) + intSuffix
	case int32:
		return strconv.FormatInt(int64(x), 10) + intSuffix
	case int64:
		return strconv.FormatInt(x, 10) + intSuffix
	case uint:
		return strconv.FormatUint(uint64(x), 10) + intSuffix
	case uint32:
		return strconv.FormatUint(uint64(x), 10) + intSuffix
	case uint64:
		return strconv.FormatUint(x, 10) + intSuffix
	case bool:
		return strconv.FormatBool(x)
	case string:
		return `"` + stringEscaper.Replace(x) + `"`
	default:
		return `"` + stringEscaper.Replace(fmt.Sprint(x)) + `"`
	}
}

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
