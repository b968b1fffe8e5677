// Package filters compiles request filters into a top level where and a tree of
// relation constraints that force the matching joins to be required.
package filters

import (
	"fmt"
	"strings"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/query"
)

const (
	KeyAnd = "$and"
	KeyOr  = "$or"
)

// Like patterns. "-" stands for the filter value.
const (
	LikePrefix   = "-%"
	LikeSuffix   = "%-"
	LikeContains = "%%"
)

// SearchField declares a filterable field of an entity. Field may be a relation path
// written as $alias.field$ or $alias.nested.field$.
type SearchField struct {
	Field         string `yaml:"field" json:"field"`
	Like          string `yaml:"like,omitempty" json:"like,omitempty"`
	BetweenFrom   bool   `yaml:"between_from,omitempty" json:"between_from,omitempty"`
	BetweenTo     bool   `yaml:"between_to,omitempty" json:"between_to,omitempty"`
	CaseSensitive bool   `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
	ExactMatch    bool   `yaml:"exact_match,omitempty" json:"exact_match,omitempty"`
}

// Result is the output of a filter compilation.
type Result struct {
	Where    query.Where
	Required *Tree
}

// PathValidator rejects relation paths that do not resolve from the filtered entity.
type PathValidator func(path []string) error

// Compiler compiles filters for a single entity.
type Compiler struct {
	Fields       []SearchField
	ValidatePath PathValidator
}

func NewCompiler(fields []SearchField, validate PathValidator) *Compiler {
	return &Compiler{
		Fields:       fields,
		ValidatePath: validate,
	}
}

// Compile walks the search fields in declaration order and applies any matching filter.
func (c *Compiler) Compile(filters map[string]any, exactMatch []string) (Result, error) {
	exact := make(map[string]bool, len(exactMatch))
	for _, f := range exactMatch {
		exact[f] = true
	}
	return c.compile(filters, exact)
}

func (c *Compiler) compile(filters map[string]any, exact map[string]bool) (Result, error) {
	res := Result{Required: NewTree()}

	for _, sf := range c.Fields {
		value, ok := filters[sf.Field]
		if !ok {
			continue
		}
		if !CheckValue(value) {
			return Result{}, ferrors.Newf(ferrors.CodeInvalidFilterObject, "filter value for %s is not allowed", sf.Field).
				AddMeta("field", sf.Field)
		}

		path, field, err := ParseField(sf.Field)
		if err != nil {
			return Result{}, err
		}
		if len(path) > 0 && c.ValidatePath != nil {
			if err := c.ValidatePath(path); err != nil {
				return Result{}, err
			}
		}

		column, where, err := setFilterValue(sf, sf.Field, field, value, exact)
		if err != nil {
			return Result{}, err
		}

		if len(path) > 0 {
			res.Required.Set(path, column, where)
		} else {
			res.Where = query.Merge(res.Where, where)
		}
	}

	for _, key := range []string{KeyAnd, KeyOr} {
		raw, ok := filters[key]
		if !ok {
			continue
		}
		groups, err := c.compileGroup(key, raw, exact, res.Required)
		if err != nil {
			return Result{}, err
		}
		if len(groups) == 0 {
			continue
		}
		group := query.Where{And: groups}
		if key == KeyOr {
			group = query.Where{Or: groups}
		}
		res.Where = query.Merge(res.Where, group)
	}

	return res, nil
}

func (c *Compiler) compileGroup(key string, raw any, exact map[string]bool, tree *Tree) ([]query.Where, error) {
	items, ok := query.AsSlice(raw)
	if !ok || len(items) == 0 {
		return nil, ferrors.Newf(ferrors.CodeInvalidFilterObject, "%s must be a non-empty list of filter objects", key)
	}

	groups := make([]query.Where, 0, len(items))
	for _, item := range items {
		sub, ok := query.AsObject(item)
		if !ok {
			return nil, ferrors.Newf(ferrors.CodeInvalidFilterObject, "%s must only contain filter objects", key)
		}
		res, err := c.compile(sub, exact)
		if err != nil {
			return nil, err
		}
		tree.Merge(res.Required)
		if !res.Where.IsEmpty() {
			groups = append(groups, res.Where)
		}
	}
	return groups, nil
}

// ParseField splits a search field name. "$a.b.name$" yields path [a b] and field
// "name"; a plain name yields no path.
func ParseField(name string) ([]string, string, error) {
	if !strings.HasPrefix(name, "$") {
		if strings.HasSuffix(name, "$") || name == "" {
			return nil, "", invalidField(name)
		}
		return nil, name, nil
	}

	if len(name) < 3 || !strings.HasSuffix(name, "$") {
		return nil, "", invalidField(name)
	}

	segments := strings.Split(name[1:len(name)-1], ".")
	for _, s := range segments {
		if strings.TrimSpace(s) == "" || strings.Contains(s, "$") {
			return nil, "", invalidField(name)
		}
	}

	return segments[:len(segments)-1], segments[len(segments)-1], nil
}

func invalidField(name string) error {
	return ferrors.Newf(ferrors.CodeInvalidFieldString, "invalid field string %q", name).AddMeta("field", name)
}

// setFilterValue turns one filter value into a constraint and returns the column it
// applies to. key is the incoming filter name and field its last path segment.
func setFilterValue(sf SearchField, key, field string, value any, exact map[string]bool) (string, query.Where, error) {
	switch {
	case isLikePattern(sf.Like) && !exact[key] && !exact[field] && !sf.ExactMatch:
		if s, ok := value.(string); ok {
			op := query.OpILike
			if sf.CaseSensitive {
				op = query.OpLike
			}
			return field, query.Where{Conditions: []query.Condition{{
				Field: field,
				Op:    op,
				Value: likePattern(sf.Like, s),
			}}}, nil
		}

	case sf.BetweenFrom:
		column := strings.TrimSuffix(field, "From")
		op := query.OpGt
		if exact[column] || exact[key] || sf.ExactMatch {
			op = query.OpGte
		}
		return betweenCondition(key, column, op, value)

	case sf.BetweenTo:
		column := strings.TrimSuffix(field, "To")
		op := query.OpLt
		if exact[column] || exact[key] || sf.ExactMatch {
			op = query.OpLte
		}
		return betweenCondition(key, column, op, value)
	}

	where, err := query.ParseValue(field, value)
	if err != nil {
		return "", query.Where{}, ferrors.Newf(ferrors.CodeInvalidFilterObject, "filter %s: %s", key, err).AddMeta("field", key)
	}
	return field, where, nil
}

func betweenCondition(key, column string, op query.Op, value any) (string, query.Where, error) {
	if value == nil || !query.IsScalar(value) {
		return "", query.Where{}, ferrors.Newf(ferrors.CodeInvalidFilterObject, "filter %s requires a single value", key).
			AddMeta("field", key)
	}
	return column, query.Where{Conditions: []query.Condition{{Field: column, Op: op, Value: value}}}, nil
}

func isLikePattern(p string) bool {
	return p == LikePrefix || p == LikeSuffix || p == LikeContains
}

func likePattern(pattern, value string) string {
	switch pattern {
	case LikePrefix:
		return value + "%"
	case LikeSuffix:
		return "%" + value
	default:
		return fmt.Sprintf("%%%s%%", value)
	}
}
