package attr

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// TypeCoercionError reports a raw value that cannot satisfy an array-typed
// attribute. Other types coerce leniently: the service is the authority on
// formats, so an unparsable scalar simply becomes absent.
type TypeCoercionError struct {
	Field string
	Type  Type
	Value any
}

func (e *TypeCoercionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("attribute %q: cannot coerce %T to %s", e.Field, e.Value, e.Type)
	}

	return fmt.Sprintf("cannot coerce %T to %s", e.Value, e.Type)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Coerce converts a raw wire value to the Go representation of t:
// string, int64, bool, time.Time, []any or the value itself for Any.
// A nil raw value, or one that cannot be interpreted, yields nil.
func Coerce(t Type, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch t {
	case String:
		return coerceString(raw), nil
	case Integer:
		return coerceInteger(raw), nil
	case Boolean:
		return coerceBoolean(raw), nil
	case Time:
		return coerceTime(raw), nil
	case Array:
		return coerceArray(raw)
	default:
		return raw, nil
	}
}

func coerceString(raw any) any {
	switch v := raw.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any, []any:
		return nil
	default:
		return fmt.Sprint(v)
	}
}

func coerceInteger(raw any) any {
	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int8:
		return int64(v)
	case uint:
		return int64(v) //nolint:gosec
	case uint64:
		return int64(v) //nolint:gosec
	case uint32:
		return int64(v)
	case uint16:
		return int64(v)
	case uint8:
		return int64(v)
	case float64:
		return floatToInt(v)
	case float32:
		return floatToInt(float64(v))
	case json.Number:
		return parseInteger(v.String())
	case string:
		return parseInteger(v)
	default:
		return nil
	}
}

func parseInteger(s string) any {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return floatToInt(f)
	}

	return nil
}

func floatToInt(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}

	return int64(f)
}

func coerceBoolean(raw any) any {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "t":
			return true
		case "false", "0", "no", "f", "":
			return false
		}

		return nil
	default:
		if n, ok := coerceInteger(raw).(int64); ok {
			return n != 0
		}

		return nil
	}
}

func coerceTime(raw any) any {
	switch v := raw.(type) {
	case time.Time:
		return v
	case *time.Time:
		if v == nil {
			return nil
		}

		return *v
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed
			}
		}

		return nil
	default:
		if n, ok := coerceInteger(raw).(int64); ok {
			return time.Unix(n, 0).UTC()
		}

		return nil
	}
}

func coerceArray(raw any) (any, error) {
	if v, ok := raw.([]any); ok {
		out := make([]any, len(v))
		copy(out, v)

		return out, nil
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, &TypeCoercionError{Type: Array, Value: raw}
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out, nil
}

// Wire renders a coerced value back into its loosely typed wire form.
func Wire(v any) any {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC().Format(time.RFC3339)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = Wire(e)
		}

		return out
	default:
		return v
	}
}
