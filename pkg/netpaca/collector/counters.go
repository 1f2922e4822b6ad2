package collector

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vpbank/netpaca/models"
	"github.com/vpbank/netpaca/pkg/netpaca/config"
	"github.com/vpbank/netpaca/pkg/netpaca/device"
	"github.com/vpbank/netpaca/snmp/value"
)

// ─────────────────────────────────────────────────────────────────────────────
// Counter delta state
// ─────────────────────────────────────────────────────────────────────────────

// CounterKey identifies one counter instance across cycles.
type CounterKey struct {
	Device   string
	Metric   string
	Instance string
}

type counterEntry struct {
	Value  uint64
	SeenAt time.Time
}

// CounterState keeps the last observation of every counter so a collector
// can turn cumulative values into rates. It is safe for concurrent use.
type CounterState struct {
	mu      sync.Mutex
	entries map[CounterKey]counterEntry
}

// NewCounterState creates an empty CounterState.
func NewCounterState() *CounterState {
	return &CounterState{entries: make(map[CounterKey]counterEntry)}
}

// DeltaResult is returned by Delta. Delta and Elapsed are only meaningful
// when Valid is true.
type DeltaResult struct {
	Delta   uint64
	Elapsed time.Duration
	Valid   bool
}

// Rate returns the per-second increase.
func (d DeltaResult) Rate() float64 {
	return float64(d.Delta) / d.Elapsed.Seconds()
}

// Delta stores current and returns the increase since the previous sample.
// The first observation of a key, or a non-advancing clock, is not Valid.
// A current value below the previous one is taken as a single rollover at
// wrap for 32-bit counters. A 64-bit counter (wrap == math.MaxUint64) going
// backwards is a reset and is not Valid.
func (s *CounterState) Delta(key CounterKey, current uint64, now time.Time, wrap uint64) DeltaResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.entries[key]
	s.entries[key] = counterEntry{Value: current, SeenAt: now}
	if !exists {
		return DeltaResult{}
	}

	elapsed := now.Sub(prev.SeenAt)
	if elapsed <= 0 {
		return DeltaResult{}
	}

	var delta uint64
	switch {
	case current >= prev.Value:
		delta = current - prev.Value
	case wrap == math.MaxUint64:
		return DeltaResult{}
	default:
		delta = (wrap - prev.Value) + current + 1
	}
	return DeltaResult{Delta: delta, Elapsed: elapsed, Valid: true}
}

// Purge drops entries not observed within maxAge and returns how many went.
func (s *CounterState) Purge(maxAge time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-maxAge)
	removed := 0
	for k, e := range s.entries {
		if e.SeenAt.Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked counters.
func (s *CounterState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ─────────────────────────────────────────────────────────────────────────────
// ifcounters
// ─────────────────────────────────────────────────────────────────────────────

// counterStaleAfter is how long an unseen interface counter is remembered.
const counterStaleAfter = time.Hour

var counterColumns = []struct {
	oid    string
	metric string
}{
	{oidIfHCInOctets, "ifcounters_in_octets"},
	{oidIfHCOutOctets, "ifcounters_out_octets"},
}

func ifCountersType(state *CounterState) Type {
	return Type{
		Name:        "ifcounters",
		Description: "interface 64-bit octet counters and bit rates",
		Requires:    []string{device.CapSNMP},
		Metrics: []string{
			"ifcounters_in_octets", "ifcounters_out_octets",
			"ifcounters_in_bps", "ifcounters_out_bps",
		},
		Collect: func(ctx context.Context, dev *device.Device, ts int64, opts config.CollectorOptions) ([]models.Metric, error) {
			return collectIfCounters(ctx, state, dev, ts)
		},
	}
}

// collectIfCounters emits the raw octet counters every cycle and, from the
// second cycle on, the bit rate since the previous one as "<dir>_bps".
func collectIfCounters(ctx context.Context, state *CounterState, dev *device.Device, ts int64) ([]models.Metric, error) {
	f := dev.Private.SNMP
	names, err := walkIndexed(ctx, f, oidIfDescr)
	if err != nil {
		return nil, fmt.Errorf("ifcounters: ifDescr: %w", err)
	}

	now := time.UnixMilli(ts)
	var out []models.Metric
	for _, col := range counterColumns {
		rows, err := walkIndexed(ctx, f, col.oid)
		if err != nil {
			return nil, fmt.Errorf("ifcounters: %s: %w", col.metric, err)
		}
		rateName := col.metric[:len(col.metric)-len("octets")] + "bps"

		for _, idx := range sortedIndexes(rows) {
			v, err := value.Uint64(rows[idx].Value)
			if err != nil {
				continue
			}
			tags := map[string]string{"if_index": idx}
			if n, ok := names[idx]; ok {
				tags["if_name"] = value.String(n.Value)
			}
			out = append(out, models.NewMetric(col.metric, v, ts, tags))

			key := CounterKey{Device: dev.Name, Metric: col.metric, Instance: idx}
			if d := state.Delta(key, v, now, math.MaxUint64); d.Valid {
				out = append(out, models.NewMetric(rateName, d.Rate()*8, ts, tags))
			}
		}
	}
	state.Purge(counterStaleAfter, now)
	return out, nil
}
