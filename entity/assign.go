package entity

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Assign stores value into dst, converting between scalar kinds where the
// conversion is lossless. Stores generally return integers as int64 and
// floats as float64; Assign narrows them back to the field's type.
func Assign[V any](dst *V, value any) error {
	if dst == nil {
		return fmt.Errorf("assign to nil destination")
	}
	if value == nil {
		var zero V
		*dst = zero
		return nil
	}
	if v, ok := value.(V); ok {
		*dst = v
		return nil
	}

	switch d := any(dst).(type) {
	case *string:
		switch v := value.(type) {
		case []byte:
			*d = string(v)
			return nil
		case fmt.Stringer:
			*d = v.String()
			return nil
		}
	case *bool:
		if s, ok := value.(string); ok {
			b, err := strconv.ParseBool(s)
			if err == nil {
				*d = b
				return nil
			}
		}
	case *int:
		if n, ok := toInt64(value); ok && n >= math.MinInt && n <= math.MaxInt {
			*d = int(n)
			return nil
		}
	case *int8:
		if n, ok := toInt64(value); ok && n >= math.MinInt8 && n <= math.MaxInt8 {
			*d = int8(n)
			return nil
		}
	case *int16:
		if n, ok := toInt64(value); ok && n >= math.MinInt16 && n <= math.MaxInt16 {
			*d = int16(n)
			return nil
		}
	case *int32:
		if n, ok := toInt64(value); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			*d = int32(n)
			return nil
		}
	case *int64:
		if n, ok := toInt64(value); ok {
			*d = n
			return nil
		}
	case *uint:
		if n, ok := toInt64(value); ok && n >= 0 {
			*d = uint(n)
			return nil
		}
	case *uint8:
		if n, ok := toInt64(value); ok && n >= 0 && n <= math.MaxUint8 {
			*d = uint8(n)
			return nil
		}
	case *uint16:
		if n, ok := toInt64(value); ok && n >= 0 && n <= math.MaxUint16 {
			*d = uint16(n)
			return nil
		}
	case *uint32:
		if n, ok := toInt64(value); ok && n >= 0 && n <= math.MaxUint32 {
			*d = uint32(n)
			return nil
		}
	case *uint64:
		if n, ok := toInt64(value); ok && n >= 0 {
			*d = uint64(n)
			return nil
		}
	case *float64:
		if f, ok := toFloat64(value); ok {
			*d = f
			return nil
		}
	case *float32:
		if f, ok := toFloat64(value); ok {
			*d = float32(f)
			return nil
		}
	case **int64:
		if n, ok := toInt64(value); ok {
			*d = &n
			return nil
		}
	}

	// Optional fields: wrap a bare value into a freshly allocated pointer.
	if t := reflect.TypeFor[V](); t.Kind() == reflect.Pointer {
		rv := reflect.ValueOf(value)
		if rv.Type().ConvertibleTo(t.Elem()) && rv.Kind() == t.Elem().Kind() {
			p := reflect.New(t.Elem())
			p.Elem().Set(rv.Convert(t.Elem()))
			*dst = p.Interface().(V)
			return nil
		}
		if p := reflect.New(t.Elem()); setNumeric(p.Elem(), value) {
			*dst = p.Interface().(V)
			return nil
		}
	}

	return fmt.Errorf("cannot assign %T to %T", value, *dst)
}

// setNumeric stores a numeric value into v when it fits v's kind.
func setNumeric(v reflect.Value, value any) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := toInt64(value)
		if !ok || v.OverflowInt(n) {
			return false
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := toInt64(value)
		if !ok || n < 0 || v.OverflowUint(uint64(n)) {
			return false
		}
		v.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		f, ok := toFloat64(value)
		if !ok || v.OverflowFloat(f) {
			return false
		}
		v.SetFloat(f)
	default:
		return false
	}
	return true
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float32:
		f := float64(v)
		if f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if n, ok := toInt64(value); ok {
		return float64(n), true
	}
	return 0, false
}
