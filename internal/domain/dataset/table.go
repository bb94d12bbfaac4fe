// Package dataset holds the immutable in-memory table of fighter records.
//
// A Table is built once at startup by Load or LoadFile and never changes
// afterwards, so it can be read from any number of goroutines without
// locking. Missing cells are normalised to the Empty sentinel at load time.
package dataset

import (
	"fmt"
	"strings"
)

// Well-known columns.
const (
	NameColumn   = "fighter_name"
	HeightColumn = "Height_cms"
	WeightColumn = "Weight_lbs"
	ReachColumn  = "Reach_in"
)

// Table is an ordered, read-only sequence of records.
type Table struct {
	hdr     *header
	kinds   []Kind
	records []Record
}

// New builds a table from a header and raw string rows, applying missing
// value normalisation and per-column type inference. Every row must have
// exactly len(columns) cells.
func New(columns []string, rows [][]string, opts ...Option) (*Table, error) {
	cfg := newLoadConfig(opts...)

	if len(columns) == 0 {
		return nil, ErrEmptySource
	}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		seen[c] = struct{}{}
	}
	if _, ok := seen[NameColumn]; !ok {
		return nil, ErrMissingNameColumn
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d", ErrRaggedRow, i+1, len(row), len(columns))
		}
	}

	hdr := newHeader(columns)
	kinds := make([]Kind, len(columns))
	for c, name := range columns {
		if name == NameColumn {
			kinds[c] = KindString
			continue
		}
		kinds[c] = inferKind(rows, c, cfg)
	}

	records := make([]Record, len(rows))
	for r, row := range rows {
		vals := make([]Value, len(columns))
		for c, cell := range row {
			vals[c] = convert(cell, kinds[c], cfg)
		}
		records[r] = Record{hdr: hdr, vals: vals}
	}

	return &Table{hdr: hdr, kinds: kinds, records: records}, nil
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.records) }

// Columns returns the column names in source order.
func (t *Table) Columns() []string { return append([]string(nil), t.hdr.names...) }

// HasColumn reports whether column exists.
func (t *Table) HasColumn(column string) bool {
	_, ok := t.hdr.index[column]
	return ok
}

// ColumnKind returns the inferred kind of column.
func (t *Table) ColumnKind(column string) (Kind, bool) {
	i, ok := t.hdr.index[column]
	if !ok {
		return KindString, false
	}
	return t.kinds[i], true
}

// Records returns the records in table order. The slice is a copy; the
// records themselves are immutable.
func (t *Table) Records() []Record { return append([]Record(nil), t.records...) }

// At returns the i-th record.
func (t *Table) At(i int) Record { return t.records[i] }

// Each calls fn for every record in order until fn returns false.
func (t *Table) Each(fn func(i int, r Record) bool) {
	for i, r := range t.records {
		if !fn(i, r) {
			return
		}
	}
}

func inferKind(rows [][]string, col int, cfg loadConfig) Kind {
	kind := KindInt
	nonEmpty := 0
	for _, row := range rows {
		cell := row[col]
		if cfg.isMissing(cell) {
			continue
		}
		nonEmpty++
		if kind == KindInt {
			if _, ok := parseInt(cell); ok {
				continue
			}
			kind = KindFloat
		}
		if _, ok := parseFinite(cell); !ok {
			return KindString
		}
	}
	if nonEmpty == 0 {
		return KindString
	}
	return kind
}

func convert(cell string, kind Kind, cfg loadConfig) Value {
	if cfg.isMissing(cell) {
		return Empty
	}
	switch kind {
	case KindInt:
		i, _ := parseInt(cell)
		return IntValue(i)
	case KindFloat:
		f, _ := parseFinite(cell)
		return FloatValue(f)
	default:
		return StringValue(strings.TrimSpace(cell))
	}
}
