package graph

import (
	"fmt"
	"math"
	"time"
)

// NormalizeValue converts a property value to the canonical form stores
// persist: signed and unsigned integers become int64, floats become float64,
// and strings, booleans and times pass through. Slices of those are
// normalized element-wise. Anything else fails with ErrUnsupportedValue.
func NormalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string, bool, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, x)
		}
		return int64(x), nil
	case float32:
		return float64(x), nil
	case time.Time:
		return x.UTC(), nil
	case []string:
		return x, nil
	case []int64:
		return x, nil
	case []float64:
		return x, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := NormalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// NormalizeProperties normalizes every value of props into a new map.
// Nil values are dropped.
func NormalizeProperties(props map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(props))
	for k, v := range props {
		n, err := NormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		if n != nil {
			out[k] = n
		}
	}
	return out, nil
}

// ValuesEqual compares two property values after normalization.
func ValuesEqual(a, b any) bool {
	na, err := NormalizeValue(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeValue(b)
	if err != nil {
		return false
	}

	switch x := na.(type) {
	case time.Time:
		y, ok := nb.(time.Time)
		return ok && x.Equal(y)
	case int64:
		switch y := nb.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := nb.(type) {
		case float64:
			return x == y
		case int64:
			return x == float64(y)
		}
		return false
	case string, bool:
		return na == nb
	default:
		return fmt.Sprint(na) == fmt.Sprint(nb)
	}
}

// IDOf reads the integer IDProperty from props.
func IDOf(props map[string]any) (int64, bool) {
	v, ok := props[IDProperty]
	if !ok {
		return 0, false
	}
	n, err := NormalizeValue(v)
	if err != nil {
		return 0, false
	}
	id, ok := n.(int64)
	return id, ok
}
