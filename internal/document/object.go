// Package document defines the document and collection value types shared
// by the storage engine, the transaction manager, and the query engine.
package document

import (
	"bytes"
	"encoding/json"
)

// Object is an order-preserving string-to-JSON-value mapping. Plain Go maps
// don't preserve insertion order, but the wire protocol and projection both
// round-trip field order, so documents and collection metadata use this
// instead of map[string]interface{}.
type Object struct {
	keys   []string
	values map[string]interface{}
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]interface{})}
}

// Set inserts or overwrites a key, preserving the original position on
// overwrite and appending on first insertion.
func (o *Object) Set(key string, value interface{}) {
	if o.values == nil {
		o.values = make(map[string]interface{})
	}
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value for key and whether it was present.
func (o *Object) Get(key string) (interface{}, bool) {
	if o.values == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Remove deletes key, returning the previous value if present.
func (o *Object) Remove(key string) (interface{}, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return v, true
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Keys returns the fields in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return len(o.keys)
}

// Merge copies every field of other into o, overwriting existing values and
// preserving o's ordering for fields already present.
func (o *Object) Merge(other *Object) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		v, _ := other.Get(k)
		o.Set(k, v)
	}
}

// Clone returns a shallow copy: keys and top-level values are copied, but
// nested maps/slices are shared with the original.
func (o *Object) Clone() *Object {
	clone := NewObject()
	for _, k := range o.keys {
		v, _ := o.Get(k)
		clone.Set(k, v)
	}
	return clone
}

// MarshalJSON encodes the object preserving field order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		v, _ := o.Get(k)
		valBytes, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving source field order via
// json.Decoder's token stream.
func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return &json.UnmarshalTypeError{Value: "non-object", Type: nil}
	}

	o.keys = nil
	o.values = make(map[string]interface{})

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var val interface{}
		val, err = decodeValue(dec)
		if err != nil {
			return err
		}
		o.Set(key, val)
	}

	// Consume the closing '}'.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// decodeValue decodes one JSON value from dec, recursing into nested
// objects as *Object (to preserve order) and arrays as []interface{}.
func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := keyTok.(string)
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, v)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			var arr []interface{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		}
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return t, nil
	}
	return nil, nil
}
