package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ctxCheckEvery controls how often the loader checks for cancellation.
const ctxCheckEvery = 1024

// defaultMissingMarkers mirrors the usual dataframe NA spellings.
var defaultMissingMarkers = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None", "n/a",
	"nan", "null",
}

// Option configures loading.
type Option func(*loadConfig)

type loadConfig struct {
	comma   rune
	missing map[string]struct{}
}

func newLoadConfig(opts ...Option) loadConfig {
	cfg := loadConfig{comma: ','}
	WithMissingMarkers(defaultMissingMarkers)(&cfg)
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c loadConfig) isMissing(cell string) bool {
	_, ok := c.missing[strings.TrimSpace(cell)]
	return ok
}

// WithComma sets the field delimiter (default ',').
func WithComma(r rune) Option {
	return func(c *loadConfig) {
		if r != 0 {
			c.comma = r
		}
	}
}

// WithMissingMarkers replaces the set of cell spellings treated as missing.
// The empty string is always treated as missing.
func WithMissingMarkers(markers []string) Option {
	return func(c *loadConfig) {
		c.missing = make(map[string]struct{}, len(markers)+1)
		c.missing[""] = struct{}{}
		for _, m := range markers {
			c.missing[strings.TrimSpace(m)] = struct{}{}
		}
	}
}

// Load reads a CSV document with a header row into a Table.
func Load(ctx context.Context, r io.Reader, opts ...Option) (*Table, error) {
	cfg := newLoadConfig(opts...)

	cr := csv.NewReader(r)
	cr.Comma = cfg.comma
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	columns, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrLoad, ErrEmptySource)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrLoad, err)
	}
	if len(columns) > 0 {
		columns[0] = strings.TrimPrefix(columns[0], "\ufeff")
	}
	for i := range columns {
		columns[i] = strings.TrimSpace(columns[i])
	}

	var rows [][]string
	for {
		if len(rows)%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrLoad, err)
			}
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				return nil, fmt.Errorf("%w: %w: %w", ErrLoad, ErrRaggedRow, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrLoad, err)
		}
		rows = append(rows, row)
	}

	t, err := New(columns, rows, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return t, nil
}

// LoadFile opens path and loads it with Load.
func LoadFile(ctx context.Context, path string, opts ...Option) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer func() { _ = f.Close() }()
	return Load(ctx, f, opts...)
}
