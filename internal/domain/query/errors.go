package query

import "errors"

// Sentinel kinds for query errors.
var (
	ErrNotFound             = errors.New("fighter not found")
	ErrUnknownColumn        = errors.New("unknown column")
	ErrAggregationUndefined = errors.New("aggregation undefined: no numeric values")
)
