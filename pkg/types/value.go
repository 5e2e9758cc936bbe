package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueType determines what values a field accepts and how they are stored.
type ValueType string

// Field value types.
const (
	ValueTypeText      ValueType = "text"
	ValueTypeInteger   ValueType = "integer"
	ValueTypeNumeric   ValueType = "numeric"
	ValueTypeMoney     ValueType = "money"
	ValueTypeBoolean   ValueType = "boolean"
	ValueTypeEnum      ValueType = "enum"
	ValueTypeTimestamp ValueType = "timestamp"
)

// validValueTypes is the set of recognized field value types.
var validValueTypes = map[ValueType]bool{
	ValueTypeText:      true,
	ValueTypeInteger:   true,
	ValueTypeNumeric:   true,
	ValueTypeMoney:     true,
	ValueTypeBoolean:   true,
	ValueTypeEnum:      true,
	ValueTypeTimestamp: true,
}

// IsValidValueType reports whether the given value type is recognized.
func IsValidValueType(vt ValueType) bool {
	return validValueTypes[vt]
}

// IsNumeric reports whether values of this type are numbers.
func (vt ValueType) IsNumeric() bool {
	return vt == ValueTypeInteger || vt == ValueTypeNumeric || vt == ValueTypeMoney
}

// DefaultValue returns the type-based default value for a given ValueType.
// Returns "" for text, int64(0) for integer, 0.0 for numeric and money,
// false for boolean, and nil for enum and timestamp.
// Returns nil and ErrInvalidValueType if the type is not recognized.
func DefaultValue(vt ValueType) (any, error) {
	switch vt {
	case ValueTypeText:
		return "", nil
	case ValueTypeInteger:
		return int64(0), nil
	case ValueTypeNumeric, ValueTypeMoney:
		return 0.0, nil
	case ValueTypeBoolean:
		return false, nil
	case ValueTypeEnum, ValueTypeTimestamp:
		return nil, nil
	default:
		return nil, ErrInvalidValueType
	}
}

// RoundMoney rounds f to two decimal places, half away from zero.
func RoundMoney(f float64) float64 {
	return math.Round(f*100) / 100
}

// Coerce converts v into the canonical Go representation of vt:
// string for text and enum, int64 for integer, float64 for numeric and
// money, bool for boolean, and time.Time for timestamp. A nil value stays
// nil. Returns an error wrapping ErrTypeMismatch when v cannot be converted.
func Coerce(vt ValueType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var (
		out any
		ok  bool
	)
	switch vt {
	case ValueTypeText, ValueTypeEnum:
		out, ok = toText(v)
	case ValueTypeInteger:
		out, ok = toInteger(v)
	case ValueTypeNumeric:
		out, ok = toFloat(v)
	case ValueTypeMoney:
		var f float64
		if f, ok = toFloat(v); ok {
			out = RoundMoney(f)
		}
	case ValueTypeBoolean:
		out, ok = toBool(v)
	case ValueTypeTimestamp:
		out, ok = toTime(v)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidValueType, vt)
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot use %T %v as %s", ErrTypeMismatch, v, v, vt)
	}
	return out, nil
}

// AsFloat converts a numeric value to float64. Booleans, strings and nil
// are not numbers.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toText(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case bool:
		return strconv.FormatBool(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case int:
		return strconv.Itoa(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case json.Number:
		return s.String(), true
	default:
		return "", false
	}
}

func toInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	case []byte:
		return toInteger(string(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	case bool:
		return 0, false
	}
	f, ok := AsFloat(v)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func toFloat(v any) (float64, bool) {
	switch s := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	case []byte:
		return toFloat(string(s))
	}
	return AsFloat(v)
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		p, err := strconv.ParseBool(strings.TrimSpace(b))
		return p, err == nil
	}
	// SQLite stores booleans as 0/1.
	f, ok := AsFloat(v)
	if !ok || (f != 0 && f != 1) {
		return false, false
	}
	return f == 1, true
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		p, err := time.Parse(time.RFC3339Nano, t)
		return p.UTC(), err == nil
	case []byte:
		return toTime(string(t))
	default:
		return time.Time{}, false
	}
}
