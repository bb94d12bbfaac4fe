// Package query evaluates read-only queries against a dataset.Table.
//
// Every method is a pure function of the table. The Engine caches the
// lower-cased fighter names once at construction for substring search.
package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/fighterstats/internal/domain/dataset"
)

// Column groups served by the summary endpoints.
var (
	StrikingColumns = []string{
		"strikes_landed_per_min",
		"strike_accuracy_pct",
		"strikes_absorbed_per_min",
		"strike_defense_pct",
	}
	GrapplingColumns = []string{
		"takedowns_per_15min",
		"takedown_accuracy_pct",
		"takedown_defense_pct",
		"submission_attempts_per_15min",
	}
)

// Engine answers queries over an immutable table.
type Engine struct {
	table *dataset.Table
	names []string // lower-cased fighter_name per record
}

// NewEngine builds an Engine over t.
func NewEngine(t *dataset.Table) *Engine {
	names := make([]string, t.Len())
	t.Each(func(i int, r dataset.Record) bool {
		names[i] = strings.ToLower(r.Name())
		return true
	})
	return &Engine{table: t, names: names}
}

// Table returns the underlying table.
func (e *Engine) Table() *dataset.Table { return e.table }

// ListAll returns every record in table order.
func (e *Engine) ListAll() []dataset.Record {
	return e.table.Records()
}

// FindByExactName returns the first record whose fighter_name equals name
// under Unicode simple case folding.
func (e *Engine) FindByExactName(name string) (dataset.Record, error) {
	for i := 0; i < e.table.Len(); i++ {
		if r := e.table.At(i); strings.EqualFold(r.Name(), name) {
			return r, nil
		}
	}
	return dataset.Record{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// SearchByNameSubstring returns every record whose fighter_name contains
// query, ignoring case. query is matched literally. An empty query matches
// every record.
func (e *Engine) SearchByNameSubstring(query string) ([]dataset.Record, error) {
	needle := strings.ToLower(query)
	var out []dataset.Record
	for i, n := range e.names {
		if strings.Contains(n, needle) {
			out = append(out, e.table.At(i))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no fighter name contains %q", ErrNotFound, query)
	}
	return out, nil
}

// AggregateMean computes the mean of each requested column using coercion
// with exclusion: cells that do not coerce to a finite number are skipped.
// Duplicate column names are collapsed. Unknown columns are an error.
func (e *Engine) AggregateMean(columns ...string) (map[string]Mean, error) {
	for _, c := range columns {
		if !e.table.HasColumn(c) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, c)
		}
	}

	out := make(map[string]Mean, len(columns))
	for _, c := range columns {
		if _, done := out[c]; done {
			continue
		}
		out[c] = e.mean(c)
	}
	return out, nil
}

// DatasetSummary returns the record count and the mean height, weight and
// reach. A table missing one of those columns reports that mean as undefined.
func (e *Engine) DatasetSummary() Summary {
	return Summary{
		TotalFighters: e.table.Len(),
		AverageHeight: e.meanIfPresent(dataset.HeightColumn),
		AverageWeight: e.meanIfPresent(dataset.WeightColumn),
		AverageReach:  e.meanIfPresent(dataset.ReachColumn),
	}
}

// StrikingSummary averages StrikingColumns.
func (e *Engine) StrikingSummary() (map[string]Mean, error) {
	return e.AggregateMean(StrikingColumns...)
}

// GrapplingSummary averages GrapplingColumns.
func (e *Engine) GrapplingSummary() (map[string]Mean, error) {
	return e.AggregateMean(GrapplingColumns...)
}

func (e *Engine) meanIfPresent(column string) Mean {
	if !e.table.HasColumn(column) {
		return Mean{}
	}
	return e.mean(column)
}

// mean keeps a running average so that large finite cells cannot overflow
// a sum.
func (e *Engine) mean(column string) Mean {
	var (
		avg      float64
		count    int
		excluded int
	)
	e.table.Each(func(_ int, r dataset.Record) bool {
		v, _ := r.Get(column)
		f, ok := v.Float()
		if !ok {
			excluded++
			return true
		}
		count++
		n := float64(count)
		avg += f/n - avg/n
		return true
	})
	if count == 0 || math.IsNaN(avg) || math.IsInf(avg, 0) {
		return Mean{Count: count, Excluded: excluded}
	}
	return Mean{Value: avg, Defined: true, Count: count, Excluded: excluded}
}
