package stats

import (
	"bytes"
	"encoding/json"
)

// Doc is a JSON object that marshals its keys in insertion order. The
// computations return sorted results, and the sort order must survive
// into the response body, so a plain map (whose JSON key order is
// unspecified) is not enough.
type Doc struct {
	pairs []pair
}

type pair struct {
	key   string
	value interface{}
}

// NewDoc creates an empty ordered object.
func NewDoc() *Doc {
	return &Doc{}
}

// Set appends key with value. Keys are assumed unique; callers build
// docs from deduplicated aggregates.
func (d *Doc) Set(key string, value interface{}) *Doc {
	d.pairs = append(d.pairs, pair{key: key, value: value})
	return d
}

// Len returns the number of keys.
func (d *Doc) Len() int {
	return len(d.pairs)
}

// MarshalJSON emits the object with keys in insertion order. Values go
// through encoding/json, so nested *Doc values keep their order too.
func (d *Doc) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range d.pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(p.value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
