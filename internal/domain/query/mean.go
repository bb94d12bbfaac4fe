package query

import (
	"encoding/json"
	"fmt"
)

// Mean is the result of averaging one column. When Defined is false no cell
// could be coerced and Value carries no meaning.
type Mean struct {
	Value    float64
	Defined  bool
	Count    int // cells that contributed
	Excluded int // cells skipped by coercion
}

// Float64 returns the mean or ErrAggregationUndefined.
func (m Mean) Float64() (float64, error) {
	if !m.Defined {
		return 0, ErrAggregationUndefined
	}
	return m.Value, nil
}

// Err returns ErrAggregationUndefined for an undefined mean and nil otherwise.
func (m Mean) Err() error {
	if !m.Defined {
		return ErrAggregationUndefined
	}
	return nil
}

func (m Mean) String() string {
	if !m.Defined {
		return "undefined"
	}
	return fmt.Sprintf("%g", m.Value)
}

// MarshalJSON encodes an undefined mean as null.
func (m Mean) MarshalJSON() ([]byte, error) {
	if !m.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// Summary is the dataset-wide overview.
type Summary struct {
	TotalFighters int  `json:"total_fighters"`
	AverageHeight Mean `json:"average_height"`
	AverageWeight Mean `json:"average_weight"`
	AverageReach  Mean `json:"average_reach"`
}

// Undefined lists the summary fields whose mean is undefined.
func (s Summary) Undefined() []string {
	fields := []struct {
		name string
		m    Mean
	}{
		{"average_height", s.AverageHeight},
		{"average_weight", s.AverageWeight},
		{"average_reach", s.AverageReach},
	}
	var out []string
	for _, f := range fields {
		if !f.m.Defined {
			out = append(out, f.name)
		}
	}
	return out
}
