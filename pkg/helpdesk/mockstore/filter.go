package mockstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/openkcm/helpdesk-plugins/pkg/utils/errs"
)

// ToID converts a raw identity value into the int64 serial the store uses.
func ToID(v any) (int64, bool) {
	switch tv := v.(type) {
	case int64:
		return tv, true
	case int:
		return int64(tv), true
	case int32:
		return int64(tv), true
	case float64:
		return int64(tv), tv == float64(int64(tv))
	case json.Number:
		n, err := tv.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(tv), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Equal compares two raw values the way the service compares query
// parameters: by their string form. nil only equals nil.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}

// FieldEquals matches records whose field equals value.
func FieldEquals(field string, value any) Filter {
	return func(rec Record) bool {
		return Equal(rec[field], value)
	}
}

// FieldIn matches records whose field equals any of values.
func FieldIn(field string, values []any) Filter {
	return func(rec Record) bool {
		for _, v := range values {
			if Equal(rec[field], v) {
				return true
			}
		}

		return false
	}
}

// All matches records accepted by every filter.
func All(filters ...Filter) Filter {
	return func(rec Record) bool {
		for _, f := range filters {
			if f != nil && !f(rec) {
				return false
			}
		}

		return true
	}
}

// Where compiles a boolean expression over record fields, for example
// `organization_id == 7 && status != "closed"`. Numeric fields are exposed as
// numbers so they compare with literals. Records on which the expression
// fails to evaluate do not match.
func Where(expression string) (Filter, error) {
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, errs.Wrap(ErrInvalidFilter, err)
	}

	return func(rec Record) bool {
		out, err := expr.Run(program, exprEnv(rec))
		if err != nil {
			return false
		}

		matched, ok := out.(bool)

		return ok && matched
	}, nil
}

func exprEnv(rec Record) map[string]any {
	env := make(map[string]any, len(rec))
	for k, v := range rec {
		env[k] = exprValue(v)
	}

	return env
}

func exprValue(v any) any {
	switch tv := v.(type) {
	case json.Number:
		if n, err := tv.Int64(); err == nil {
			return n
		}

		if f, err := tv.Float64(); err == nil {
			return f
		}

		return tv.String()
	case map[string]any:
		return exprEnv(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = exprValue(e)
		}

		return out
	default:
		return v
	}
}
