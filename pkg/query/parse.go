package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// operators that may appear as keys of a filter value object
var allowedOperators = map[string]struct{}{
	"and":   {},
	"or":    {},
	"gt":    {},
	"gte":   {},
	"lt":    {},
	"lte":   {},
	"not":   {},
	"like":  {},
	"ilike": {},
}

// OperatorKey normalizes an operator key, accepting an optional "$" prefix.
func OperatorKey(key string) (string, bool) {
	k := strings.TrimPrefix(key, "$")
	_, ok := allowedOperators[k]
	return k, ok
}

// IsScalar reports whether v is a plain value that can be bound as a query argument.
func IsScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, time.Time, *time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, []byte:
		return true
	}
	return false
}

// AsSlice returns v as []any when it is any kind of slice or array (except []byte).
func AsSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// AsObject returns v as map[string]any when it is a string keyed map.
func AsObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Record:
		return map[string]any(t), true
	}
	return nil, false
}

// ParseValue converts a filter value addressed at field into a Where.
//
//	"x"                        field = x
//	nil                        field IS NULL
//	[1, 2]                     field IN (1, 2)
//	{"gt": 1, "lte": 5}        field > 1 AND field <= 5
//	{"not": nil}               field IS NOT NULL
//	{"or": [{"lt": 1}, 9]}     (field < 1 OR field = 9)
//
// Operator keys may carry a "$" prefix. Callers should vet untrusted values with the
// filter admissibility check first; ParseValue only rejects what it cannot express.
func ParseValue(field string, value any) (Where, error) {
	if value == nil {
		return Where{Conditions: []Condition{{Field: field, Op: OpIsNull}}}, nil
	}

	if IsScalar(value) {
		return Where{Conditions: []Condition{{Field: field, Op: OpEq, Value: value}}}, nil
	}

	if items, ok := AsSlice(value); ok {
		if len(items) == 0 {
			return Where{}, fmt.Errorf("empty list for field %s", field)
		}
		for _, item := range items {
			if !IsScalar(item) || item == nil {
				return Where{}, fmt.Errorf("list for field %s must only hold scalar values", field)
			}
		}
		return Where{Conditions: []Condition{{Field: field, Op: OpIn, Value: items}}}, nil
	}

	obj, ok := AsObject(value)
	if !ok {
		return Where{}, fmt.Errorf("unsupported value type %T for field %s", value, field)
	}
	if len(obj) == 0 {
		return Where{}, fmt.Errorf("empty operator object for field %s", field)
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := Where{}
	for _, key := range keys {
		op, ok := OperatorKey(key)
		if !ok {
			return Where{}, fmt.Errorf("unsupported operator %q for field %s", key, field)
		}
		operand := obj[key]

		switch op {
		case "gt", "gte", "lt", "lte", "like", "ilike":
			if !IsScalar(operand) || operand == nil {
				return Where{}, fmt.Errorf("operator %s for field %s requires a scalar value", op, field)
			}
			w.Conditions = append(w.Conditions, Condition{Field: field, Op: Op(op), Value: operand})
		case "not":
			not, err := parseNot(field, operand)
			if err != nil {
				return Where{}, err
			}
			w = Merge(w, not)
		case "and", "or":
			groups, err := parseGroup(field, operand)
			if err != nil {
				return Where{}, err
			}
			if op == "and" {
				w.And = append(w.And, groups...)
			} else {
				w.Or = append(w.Or, groups...)
			}
		}
	}

	return w, nil
}

func parseNot(field string, operand any) (Where, error) {
	if operand == nil {
		return Where{Conditions: []Condition{{Field: field, Op: OpNotNull}}}, nil
	}
	if IsScalar(operand) {
		return Where{Conditions: []Condition{{Field: field, Op: OpNe, Value: operand}}}, nil
	}
	if items, ok := AsSlice(operand); ok {
		inner, err := ParseValue(field, items)
		if err != nil {
			return Where{}, err
		}
		return Where{Conditions: []Condition{{Field: field, Op: OpNotIn, Value: inner.Conditions[0].Value}}}, nil
	}
	inner, err := ParseValue(field, operand)
	if err != nil {
		return Where{}, err
	}
	return Where{Not: []Where{inner}}, nil
}

func parseGroup(field string, operand any) ([]Where, error) {
	var items []any
	if s, ok := AsSlice(operand); ok {
		items = s
	} else if obj, ok := AsObject(operand); ok {
		// {"or": {"gt": 5, "lt": 1}} means one alternative per operator
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			items = append(items, map[string]any{k: obj[k]})
		}
	} else {
		return nil, fmt.Errorf("combinator for field %s requires a list or object", field)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty combinator for field %s", field)
	}

	groups := make([]Where, 0, len(items))
	for _, item := range items {
		g, err := ParseValue(field, item)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// ParseObject converts a {field: value} object into a Where, in field order.
func ParseObject(obj map[string]any) (Where, error) {
	fields := make([]string, 0, len(obj))
	for f := range obj {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	w := Where{}
	for _, f := range fields {
		fw, err := ParseValue(f, obj[f])
		if err != nil {
			return Where{}, err
		}
		w = Merge(w, fw)
	}
	return w, nil
}
