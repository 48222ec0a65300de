package script

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ordered is a string-keyed map that remembers insertion order and keeps it
// across JSON encoding. The zero value is an empty map.
type Ordered[V any] struct {
	keys   []string
	values map[string]V
}

// NewOrdered builds an Ordered from alternating key/value pairs in order.
func NewOrdered[V any](pairs ...Pair[V]) Ordered[V] {
	var o Ordered[V]
	for _, p := range pairs {
		o.Set(p.Key, p.Value)
	}
	return o
}

// Pair is one ordered entry.
type Pair[V any] struct {
	Key   string
	Value V
}

// P is shorthand for constructing a Pair.
func P[V any](key string, value V) Pair[V] { return Pair[V]{Key: key, Value: value} }

// Set inserts or replaces a value. Replacing keeps the original position.
// Numbers are stored as float64, the type JSON decoding yields.
func (o *Ordered[V]) Set(key string, value V) {
	if f, ok := asFloat(any(value)); ok {
		if v, ok := any(f).(V); ok {
			value = v
		}
	}
	if o.values == nil {
		o.values = make(map[string]V)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func (o Ordered[V]) Get(key string) (V, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o Ordered[V]) Len() int { return len(o.keys) }

// Keys returns a copy of the keys in insertion order.
func (o Ordered[V]) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Pairs returns the entries in insertion order.
func (o Ordered[V]) Pairs() []Pair[V] {
	out := make([]Pair[V], 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, Pair[V]{Key: k, Value: o.values[k]})
	}
	return out
}

func (o Ordered[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, fmt.Errorf("script: encode %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Ordered[V]) UnmarshalJSON(data []byte) error {
	*o = Ordered[V]{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("script: expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("script: expected object key, got %v", tok)
		}
		var v V
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("script: decode %q: %w", key, err)
		}
		o.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
