// Package inventory loads the CSV device inventory.
//
// The first non-comment line is the header. Lines starting with '#' are
// ignored. The host and os_name columns are required; every column becomes a
// device tag.
//
// Records can be narrowed with --limit and --exclude constraints of the form
//
//	field=regex[,field=regex...]
//
// A constraint matches a record when every field matches (regular
// expressions are anchored at the start of the value). A record is kept when
// it matches any limit (or no limits are given) and no exclude.
package inventory

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"
)

// Required columns.
const (
	FieldHost   = "host"
	FieldOSName = "os_name"
	FieldIPAddr = "ipaddr"
)

// ErrNoRecords is returned when filtering leaves no records.
var ErrNoRecords = errors.New("inventory: no records match")

// Record is one inventory row keyed by column name.
type Record map[string]string

// Host returns the host column.
func (r Record) Host() string { return r[FieldHost] }

// OSName returns the os_name column.
func (r Record) OSName() string { return r[FieldOSName] }

// Address is the connection target: ipaddr when present, host otherwise.
func (r Record) Address() string {
	if ip := r[FieldIPAddr]; ip != "" {
		return ip
	}
	return r[FieldHost]
}

// ─────────────────────────────────────────────────────────────────────────────
// Filters
// ─────────────────────────────────────────────────────────────────────────────

// Filter holds the raw --limit and --exclude constraint strings.
type Filter struct {
	Limits   []string
	Excludes []string
}

type matcher struct {
	field string
	re    *regexp.Regexp
}

// constraint is a parsed "field=regex,..." expression.
type constraint []matcher

func (c constraint) match(r Record) bool {
	for _, m := range c {
		if !m.re.MatchString(r[m.field]) {
			return false
		}
	}
	return true
}

func parseConstraints(raw []string, fields []string) ([]constraint, error) {
	out := make([]constraint, 0, len(raw))
	for _, expr := range raw {
		var c constraint
		for _, pair := range strings.Split(expr, ",") {
			field, pattern, ok := strings.Cut(pair, "=")
			field = strings.TrimSpace(field)
			if !ok || field == "" {
				return nil, fmt.Errorf("inventory: constraint %q: expected field=value", expr)
			}
			if !slices.Contains(fields, field) {
				return nil, fmt.Errorf("inventory: constraint %q: unknown field %q", expr, field)
			}
			re, err := regexp.Compile("^(?:" + pattern + ")")
			if err != nil {
				return nil, fmt.Errorf("inventory: constraint %q: %w", expr, err)
			}
			c = append(c, matcher{field: field, re: re})
		}
		out = append(out, c)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load reads the inventory at path and applies f.
func Load(path string, f Filter) ([]Record, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	defer fh.Close()

	recs, err := Read(fh, f)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return recs, nil
}

// Read parses CSV from r and applies f.
func Read(r io.Reader, f Filter) ([]Record, error) {
	cr := csv.NewReader(stripComments(r))
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("inventory: empty file")
		}
		return nil, fmt.Errorf("inventory: header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	for _, req := range []string{FieldHost, FieldOSName} {
		if !slices.Contains(header, req) {
			return nil, fmt.Errorf("inventory: missing required column %q", req)
		}
	}

	limits, err := parseConstraints(f.Limits, header)
	if err != nil {
		return nil, err
	}
	excludes, err := parseConstraints(f.Excludes, header)
	if err != nil {
		return nil, err
	}

	var out []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("inventory: %w", err)
		}
		rec := make(Record, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = strings.TrimSpace(row[i])
			}
		}
		if rec.Host() == "" {
			continue
		}
		if !keep(rec, limits, excludes) {
			continue
		}
		out = append(out, rec)
	}

	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

func keep(r Record, limits, excludes []constraint) bool {
	if len(limits) > 0 && !slices.ContainsFunc(limits, func(c constraint) bool { return c.match(r) }) {
		return false
	}
	return !slices.ContainsFunc(excludes, func(c constraint) bool { return c.match(r) })
}

// stripComments drops lines whose first non-blank character is '#'.
func stripComments(r io.Reader) io.Reader {
	var b strings.Builder
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.NewReader(b.String())
}
