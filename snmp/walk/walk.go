// Package walk retrieves a whole subtree of an ordered, OID-keyed SNMP table
// through repeated bounded page requests (GetNext / GetBulk) and turns every
// row into a caller-defined record.
//
// Two error tiers are distinguished:
//
//   - an indication error (the PageFetcher returned an error) aborts the walk
//     and no partial result is returned;
//   - a status error attached to a page is logged and the walk carries on from
//     the last good cursor.
package walk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Page fetching contract
// ─────────────────────────────────────────────────────────────────────────────

// Page is one response to a NextPage request.
type Page struct {
	// Rows are the variable bindings in table order.
	Rows []gosnmp.SnmpPDU

	// Status, when non-nil, is a non-fatal error reported by the agent for
	// this request (e.g. noSuchName at a given cursor position).
	Status *StatusError
}

// PageFetcher returns the rows that follow each of the cursor keys. A non-nil
// error is an indication error: transport failure or malformed response.
type PageFetcher interface {
	NextPage(ctx context.Context, cursor []string) (Page, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, cursor []string) (Page, error)

// NextPage implements PageFetcher.
func (f PageFetcherFunc) NextPage(ctx context.Context, cursor []string) (Page, error) {
	return f(ctx, cursor)
}

// StatusError is the agent-reported error-status of one page.
type StatusError struct {
	Status string // e.g. "NoSuchName"
	Index  int    // 1-based error-index as reported by the agent; 0 if unknown
	Key    string // cursor key the error refers to, "" if unknown
}

func (e *StatusError) Error() string {
	key := e.Key
	if key == "" {
		key = "?"
	}
	return fmt.Sprintf("%s at %s", e.Status, key)
}

// IndicationError wraps the unrecoverable failure that aborted a walk.
type IndicationError struct {
	Root   string
	Cursor string
	Err    error
}

func (e *IndicationError) Error() string {
	return fmt.Sprintf("snmp walk %s failed at %s: %v", e.Root, e.Cursor, e.Err)
}

func (e *IndicationError) Unwrap() error { return e.Err }

// ErrNotIncreasing is reported when the agent returns a key at or before the
// cursor without flagging an error status, which would loop forever.
var ErrNotIncreasing = errors.New("returned OID is not increasing")

// ─────────────────────────────────────────────────────────────────────────────
// Options
// ─────────────────────────────────────────────────────────────────────────────

// DefaultMaxStalls is how many consecutive pages without progress are
// tolerated before the walk is considered finished.
const DefaultMaxStalls = 3

type options struct {
	logger    *slog.Logger
	maxStalls int
}

// Option customises a single Walk call.
type Option func(*options)

// WithLogger sets the logger used for status errors and indication errors.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxStalls overrides DefaultMaxStalls. Values < 1 are ignored.
func WithMaxStalls(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxStalls = n
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Walk
// ─────────────────────────────────────────────────────────────────────────────

// RawValue is the default row factory: it returns the PDU value untouched.
func RawValue(pdu gosnmp.SnmpPDU) interface{} { return pdu.Value }

// WalkValues walks root and returns the raw value of every row.
func WalkValues(ctx context.Context, f PageFetcher, root string, opts ...Option) ([]interface{}, error) {
	return Walk(ctx, f, root, RawValue, opts...)
}

// Walk retrieves every row below root and maps it through factory. When
// factory is nil the raw PDU value is used; rows whose value is not an R then
// yield R's zero value.
//
// The walk ends successfully at the first row outside the subtree (that row
// and anything after it in the same page are discarded), at an end-of-MIB
// marker, or at an empty page. An empty subtree gives an empty, non-nil slice.
func Walk[R any](ctx context.Context, f PageFetcher, root string, factory func(gosnmp.SnmpPDU) R, opts ...Option) ([]R, error) {
	o := options{maxStalls: DefaultMaxStalls}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	root = Normalize(root)
	if root == "" {
		return nil, fmt.Errorf("snmp walk: empty root OID")
	}
	if factory == nil {
		factory = func(pdu gosnmp.SnmpPDU) R {
			v, _ := pdu.Value.(R)
			return v
		}
	}

	collected := make([]R, 0)
	cursor := root
	stalls := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := f.NextPage(ctx, []string{cursor})
		if err != nil {
			o.logger.Error("snmp walk: indication error",
				"root", root,
				"cursor", cursor,
				"error", err.Error(),
			)
			return nil, &IndicationError{Root: root, Cursor: cursor, Err: err}
		}
		if page.Status != nil {
			o.logger.Error("snmp walk: status error",
				"root", root,
				"cursor", cursor,
				"error", page.Status.Error(),
			)
		}

		if len(page.Rows) == 0 && page.Status == nil {
			return collected, nil
		}

		progressed := false
		for _, row := range page.Rows {
			if isEndMarker(row.Type) {
				return collected, nil
			}
			key := Normalize(row.Name)
			if Compare(key, cursor) <= 0 {
				if page.Status != nil {
					// Echo of the request alongside an error status.
					continue
				}
				return nil, &IndicationError{Root: root, Cursor: cursor, Err: ErrNotIncreasing}
			}
			if !IsDescendant(root, key) {
				return collected, nil
			}
			collected = append(collected, factory(row))
			cursor = key
			progressed = true
		}

		if progressed {
			stalls = 0
			continue
		}
		stalls++
		if stalls >= o.maxStalls {
			o.logger.Warn("snmp walk: no progress, ending walk",
				"root", root,
				"cursor", cursor,
				"pages", stalls,
				"rows", len(collected),
			)
			return collected, nil
		}
	}
}

func isEndMarker(t gosnmp.Asn1BER) bool {
	return t == gosnmp.EndOfMibView || t == gosnmp.NoSuchObject || t == gosnmp.NoSuchInstance
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }
