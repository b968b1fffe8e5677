// Package query holds the value types shared by the relation, filter and plan compilers.
package query

import (
	"fmt"
	"sort"
	"strings"
)

// Record is a single row, possibly with nested relation results.
type Record map[string]any

type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpLike    Op = "like"
	OpILike   Op = "ilike"
	OpIn      Op = "in"
	OpNotIn   Op = "notIn"
	OpIsNull  Op = "isNull"
	OpNotNull Op = "notNull"
)

// Condition constrains a single column.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Where is a conjunction of conditions and nested groups.
// Conditions, And, Or and Not are all ANDed together; Or groups are ORed internally.
type Where struct {
	Conditions []Condition
	And        []Where
	Or         []Where
	Not        []Where
}

func (w Where) IsEmpty() bool {
	return len(w.Conditions) == 0 && len(w.And) == 0 && len(w.Or) == 0 && len(w.Not) == 0
}

// Fields returns every field constrained anywhere in the where, sorted.
func (w Where) Fields() []string {
	seen := map[string]struct{}{}
	w.collectFields(seen)
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func (w Where) collectFields(seen map[string]struct{}) {
	for _, c := range w.Conditions {
		seen[c.Field] = struct{}{}
	}
	for _, groups := range [][]Where{w.And, w.Or, w.Not} {
		for _, g := range groups {
			g.collectFields(seen)
		}
	}
}

// Merge ANDs two wheres. When both sides constrain a common field they are kept as
// separate and-groups so neither constraint overwrites the other.
func Merge(a, b Where) Where {
	if a.IsEmpty() {
		return b.Clone()
	}
	if b.IsEmpty() {
		return a.Clone()
	}

	// two or-lists cannot be concatenated without changing their meaning
	overlap := len(a.Or) > 0 && len(b.Or) > 0
	af := map[string]struct{}{}
	a.collectFields(af)
	for _, f := range b.Fields() {
		if _, ok := af[f]; ok {
			overlap = true
			break
		}
	}

	if overlap {
		return Where{And: []Where{a.Clone(), b.Clone()}}
	}

	out := a.Clone()
	c := b.Clone()
	out.Conditions = append(out.Conditions, c.Conditions...)
	out.And = append(out.And, c.And...)
	out.Or = append(out.Or, c.Or...)
	out.Not = append(out.Not, c.Not...)
	return out
}

func (w Where) Clone() Where {
	out := Where{}
	if w.Conditions != nil {
		out.Conditions = make([]Condition, len(w.Conditions))
		for i, c := range w.Conditions {
			out.Conditions[i] = Condition{Field: c.Field, Op: c.Op, Value: Clone(c.Value)}
		}
	}
	out.And = cloneGroups(w.And)
	out.Or = cloneGroups(w.Or)
	out.Not = cloneGroups(w.Not)
	return out
}

func cloneGroups(groups []Where) []Where {
	if groups == nil {
		return nil
	}
	out := make([]Where, len(groups))
	for i, g := range groups {
		out[i] = g.Clone()
	}
	return out
}

func (w Where) String() string {
	parts := []string{}
	for _, c := range w.Conditions {
		parts = append(parts, fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value))
	}
	for _, g := range w.And {
		parts = append(parts, "("+g.String()+")")
	}
	if len(w.Or) > 0 {
		ors := make([]string, len(w.Or))
		for i, g := range w.Or {
			ors[i] = "(" + g.String() + ")"
		}
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}
	for _, g := range w.Not {
		parts = append(parts, "NOT ("+g.String()+")")
	}
	return strings.Join(parts, " AND ")
}

type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ParseDirection accepts asc/desc in any case. Empty means ascending.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ASC":
		return Asc, true
	case "DESC":
		return Desc, true
	}
	return "", false
}

// OrderItem orders by a field of the relation (or root) it is declared on.
type OrderItem struct {
	Field     string
	Direction Direction
}
