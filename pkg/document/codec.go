package document

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// The store persists ItemCollections as JSON. Plain JSON would collapse
// instants, byte arrays and integer widths into strings and floats, so
// every value is written with a type tag and restored to its exact basic
// type on load.

type taggedValue struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v"`
}

const (
	tagString  = "s"
	tagInt     = "i"
	tagLong    = "l"
	tagDouble  = "d"
	tagDecimal = "dec"
	tagBool    = "b"
	tagTime    = "t"
	tagBytes   = "x"
	tagList    = "ls"
	tagMap     = "m"
)

// MarshalJSON encodes the collection with per-value type tags.
func (d *ItemCollection) MarshalJSON() ([]byte, error) {
	out := make(map[string][]taggedValue, len(d.items))
	for name, list := range d.items {
		encoded, err := encodeList(list)
		if err != nil {
			return nil, err
		}
		out[name] = encoded
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a tagged document.
func (d *ItemCollection) UnmarshalJSON(data []byte) error {
	var raw map[string][]taggedValue
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.items = make(map[string][]any, len(raw))
	for name, encoded := range raw {
		list, err := decodeList(encoded)
		if err != nil {
			return err
		}
		d.items[name] = list
	}
	return nil
}

func encodeList(list []any) ([]taggedValue, error) {
	out := make([]taggedValue, 0, len(list))
	for _, v := range list {
		tv, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, tv)
	}
	return out, nil
}

func encodeValue(value any) (taggedValue, error) {
	switch v := value.(type) {
	case string:
		return tag(tagString, v)
	case int:
		return tag(tagInt, v)
	case int64:
		return tag(tagLong, v)
	case float64:
		return tag(tagDouble, v)
	case *big.Float:
		return tag(tagDecimal, v.Text('g', -1))
	case bool:
		return tag(tagBool, v)
	case time.Time:
		return tag(tagTime, v.Format(time.RFC3339Nano))
	case []byte:
		return tag(tagBytes, base64.StdEncoding.EncodeToString(v))
	case []any:
		encoded, err := encodeList(v)
		if err != nil {
			return taggedValue{}, err
		}
		return tag(tagList, encoded)
	case map[string][]any:
		m := make(map[string][]taggedValue, len(v))
		for k, list := range v {
			encoded, err := encodeList(list)
			if err != nil {
				return taggedValue{}, err
			}
			m[k] = encoded
		}
		return tag(tagMap, m)
	default:
		return taggedValue{}, fmt.Errorf("document: cannot encode value of type %T", value)
	}
}

func tag(t string, v any) (taggedValue, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return taggedValue{}, err
	}
	return taggedValue{T: t, V: raw}, nil
}

func decodeList(encoded []taggedValue) ([]any, error) {
	out := make([]any, 0, len(encoded))
	for _, tv := range encoded {
		v, err := decodeValue(tv)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeValue(tv taggedValue) (any, error) {
	switch tv.T {
	case tagString:
		var v string
		return v, json.Unmarshal(tv.V, &v)
	case tagInt:
		var v int
		return v, json.Unmarshal(tv.V, &v)
	case tagLong:
		var v int64
		return v, json.Unmarshal(tv.V, &v)
	case tagDouble:
		var v float64
		return v, json.Unmarshal(tv.V, &v)
	case tagDecimal:
		var s string
		if err := json.Unmarshal(tv.V, &s); err != nil {
			return nil, err
		}
		f, _, err := big.ParseFloat(s, 10, 128, big.ToNearestEven)
		if err != nil {
			return nil, fmt.Errorf("document: invalid decimal %q: %w", s, err)
		}
		return f, nil
	case tagBool:
		var v bool
		return v, json.Unmarshal(tv.V, &v)
	case tagTime:
		var s string
		if err := json.Unmarshal(tv.V, &s); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case tagBytes:
		var s string
		if err := json.Unmarshal(tv.V, &s); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(s)
	case tagList:
		var encoded []taggedValue
		if err := json.Unmarshal(tv.V, &encoded); err != nil {
			return nil, err
		}
		return decodeList(encoded)
	case tagMap:
		var m map[string][]taggedValue
		if err := json.Unmarshal(tv.V, &m); err != nil {
			return nil, err
		}
		out := make(map[string][]any, len(m))
		for k, encoded := range m {
			list, err := decodeList(encoded)
			if err != nil {
				return nil, err
			}
			out[k] = list
		}
		return out, nil
	default:
		return nil, fmt.Errorf("document: unknown value tag %q", tv.T)
	}
}
