// Package models defines the core data structures shared across all layers of
// the collector. Nothing here depends on any other internal package.
package models

import (
	"fmt"
	"maps"
	"math"
	"time"
)

// Metric is a single measurement produced by a collector. It is treated as
// immutable once created: collectors build it with NewMetric and hand it to
// the export pipeline, which only reads it.
type Metric struct {
	// Name is the metric identifier, e.g. "ifdom_rxpower".
	Name string `json:"name"`

	// Value is float64 | int64 | uint64 | bool | string.
	Value interface{} `json:"value"`

	// Timestamp is milliseconds since the Unix epoch. Always > 0.
	Timestamp int64 `json:"ts"`

	// Tags are the metric-specific dimensions (e.g. if_name). Device tags are
	// merged in at export time; see MergedTags.
	Tags map[string]string `json:"tags,omitempty"`
}

// NewMetric builds a Metric. A non-positive ts is replaced with the current
// time. The tags map is copied so later changes by the caller are not seen.
func NewMetric(name string, value interface{}, ts int64, tags map[string]string) Metric {
	if ts <= 0 {
		ts = NowMillis()
	}
	var cp map[string]string
	if len(tags) > 0 {
		cp = maps.Clone(tags)
	}
	return Metric{
		Name:      name,
		Value:     value,
		Timestamp: ts,
		Tags:      cp,
	}
}

// MergedTags returns the union of base (usually the device tags) and the
// metric's own tags. On a key collision the metric tag wins.
func (m Metric) MergedTags(base map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(m.Tags))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range m.Tags {
		out[k] = v
	}
	return out
}

// Validate reports whether the metric can be encoded by an exporter.
func (m Metric) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("metric: empty name")
	}
	if m.Timestamp <= 0 {
		return fmt.Errorf("metric %s: timestamp must be positive, got %d", m.Name, m.Timestamp)
	}
	switch v := m.Value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("metric %s: non-finite value %v", m.Name, v)
		}
		return nil
	case float32:
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("metric %s: non-finite value %v", m.Name, v)
		}
		return nil
	case int, int64, int32, uint, uint64, uint32, bool, string:
		return nil
	default:
		return fmt.Errorf("metric %s: unsupported value type %T", m.Name, m.Value)
	}
}

// NowMillis returns the current wall-clock time in milliseconds since epoch.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
