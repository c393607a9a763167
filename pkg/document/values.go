package document

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/flowmill/flowmill/pkg/types"
)

// normalizeValue converts an arbitrary input into the normalized list form
// every item is stored as. Single values become singleton lists, slices are
// flattened into []any, nil entries are dropped and every element is passed
// through normalizeSingle. A nil input yields an empty list.
func normalizeValue(value any) ([]any, error) {
	if value == nil {
		return nil, nil
	}
	var raw []any
	switch v := value.(type) {
	case []any:
		raw = v
	case []string:
		for _, s := range v {
			raw = append(raw, s)
		}
	case []int:
		for _, i := range v {
			raw = append(raw, i)
		}
	case []int64:
		for _, i := range v {
			raw = append(raw, i)
		}
	case []float64:
		for _, f := range v {
			raw = append(raw, f)
		}
	case []bool:
		for _, b := range v {
			raw = append(raw, b)
		}
	case []time.Time:
		for _, t := range v {
			raw = append(raw, t)
		}
	default:
		raw = []any{value}
	}

	normalized := make([]any, 0, len(raw))
	for _, v := range raw {
		if v == nil {
			continue
		}
		nv, err := normalizeSingle(v)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, nv)
	}
	return normalized, nil
}

// normalizeSingle maps a single value onto the closed set of basic types:
// string, int, int64, float64, *big.Float, bool, time.Time, []byte and
// nested lists/maps thereof. Values outside the set fail the write.
func normalizeSingle(value any) (any, error) {
	switch v := value.(type) {
	case string, int, int64, float64, bool, []byte:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case uint:
		return int64(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float32:
		return float64(v), nil
	case time.Time:
		// normalize to an absolute instant
		return v.UTC(), nil
	case *big.Float:
		return v, nil
	case []any:
		list := make([]any, 0, len(v))
		for _, e := range v {
			if e == nil {
				continue
			}
			ne, err := normalizeSingle(e)
			if err != nil {
				return nil, err
			}
			list = append(list, ne)
		}
		return list, nil
	case map[string][]any:
		m := make(map[string][]any, len(v))
		for k, list := range v {
			nl, err := normalizeValue(list)
			if err != nil {
				return nil, err
			}
			m[k] = nl
		}
		return m, nil
	case map[string]any:
		m := make(map[string][]any, len(v))
		for k, e := range v {
			nl, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			m[k] = nl
		}
		return m, nil
	default:
		return nil, types.NewWorkflowError("document", types.CodeInvalidValue,
			fmt.Sprintf("unsupported value type %T", value))
	}
}

// deepCopyList returns a structural copy of a normalized value list. No
// sub-structure is shared between source and copy.
func deepCopyList(list []any) []any {
	if list == nil {
		return nil
	}
	out := make([]any, len(list))
	for i, v := range list {
		out[i] = deepCopySingle(v)
	}
	return out
}

func deepCopySingle(value any) any {
	switch v := value.(type) {
	case []byte:
		b := make([]byte, len(v))
		copy(b, v)
		return b
	case *big.Float:
		return new(big.Float).Copy(v)
	case []any:
		return deepCopyList(v)
	case map[string][]any:
		m := make(map[string][]any, len(v))
		for k, list := range v {
			m[k] = deepCopyList(list)
		}
		return m
	default:
		// remaining basic types are immutable
		return v
	}
}

// listEquals compares two normalized value lists structurally.
func listEquals(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !valueEquals(a[i], b[i]) {
			return false
		}
	}
	return true
}

func valueEquals(a, b any) bool {
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case *big.Float:
		bv, ok := b.(*big.Float)
		return ok && av.Cmp(bv) == 0
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []any:
		bv, ok := b.([]any)
		return ok && listEquals(av, bv)
	case map[string][]any:
		bv, ok := b.(map[string][]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, list := range av {
			other, found := bv[k]
			if !found || !listEquals(list, other) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// coercion helpers used by the typed getters

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case time.Time:
		return v.Format(time.RFC3339)
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case *big.Float:
		f, _ := v.Float64()
		return f, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func toBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

func isNumeric(value any) bool {
	switch value.(type) {
	case int, int64, float64, *big.Float:
		return true
	}
	return false
}
