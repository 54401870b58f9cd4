package sqltools

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row maps column names to values and keeps the column order of the result
// set. A repeated column name keeps its first position and its last value.
type Row struct {
	keys   []string
	values map[string]any
}

func NewRow() *Row {
	return &Row{values: make(map[string]any)}
}

func (r *Row) Set(key string, value any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

func (r *Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

func (r *Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Row) Len() int {
	return len(r.keys)
}

func (r *Row) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal key %q: %w", k, err)
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal value for %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
