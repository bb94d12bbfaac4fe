package dataset

import (
	"bytes"
	"encoding/json"
)

// header is shared by every record of a table.
type header struct {
	names []string
	index map[string]int
}

func newHeader(names []string) *header {
	h := &header{names: append([]string(nil), names...), index: make(map[string]int, len(names))}
	for i, n := range names {
		h.index[n] = i
	}
	return h
}

// Record is one fighter row. It has no mutating methods and is safe to share
// between goroutines.
type Record struct {
	hdr  *header
	vals []Value
}

// Get returns the cell for column. ok is false when the column does not exist.
func (r Record) Get(column string) (Value, bool) {
	if r.hdr == nil {
		return Value{}, false
	}
	i, ok := r.hdr.index[column]
	if !ok {
		return Value{}, false
	}
	return r.vals[i], true
}

// Name returns the fighter_name cell text.
func (r Record) Name() string {
	v, _ := r.Get(NameColumn)
	return v.String()
}

// Len returns the number of cells.
func (r Record) Len() int { return len(r.vals) }

// Columns returns the column names in table order.
func (r Record) Columns() []string {
	if r.hdr == nil {
		return nil
	}
	return append([]string(nil), r.hdr.names...)
}

// Map returns a copy of the record as a plain map.
func (r Record) Map() map[string]Value {
	out := make(map[string]Value, len(r.vals))
	if r.hdr == nil {
		return out
	}
	for i, n := range r.hdr.names {
		out[n] = r.vals[i]
	}
	return out
}

// MarshalJSON encodes the record as a JSON object keeping column order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.hdr == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range r.hdr.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := r.vals[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
