package queryplan

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/association"
	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/huandu/go-sqlbuilder"
)

const (
	refSeparator     = "->"
	throughSuffix    = "~through"
	softDeleteColumn = "deleted_at"

	// PostgreSQL truncates longer identifiers silently.
	maxIdentifierBytes = 63
)

// SelectOptions shapes one rendering of a plan.
type SelectOptions struct {
	// IDsOnly projects the root primary key only.
	IDsOnly bool
	// RootIDs restricts the root rows to the given primary keys when non-nil.
	RootIDs []any
	Limit   int
	Offset  int
}

type conditions interface {
	Var(arg interface{}) string
	Equal(field string, value interface{}) string
	NotEqual(field string, value interface{}) string
	GreaterThan(field string, value interface{}) string
	GreaterEqualThan(field string, value interface{}) string
	LessThan(field string, value interface{}) string
	LessEqualThan(field string, value interface{}) string
	Like(field string, value interface{}) string
	ILike(field string, value interface{}) string
	In(field string, values ...interface{}) string
	NotIn(field string, values ...interface{}) string
	IsNull(field string) string
	IsNotNull(field string) string
	And(andExpr ...string) string
	Or(orExpr ...string) string
}

// Select renders the plan as a single joined SELECT. Root columns keep their names,
// joined columns are aliased by their dotted alias path ("type.name").
func Select(plan *Plan, opts SelectOptions) (string, []any) {
	sb := database.NewSelectBuilder()
	root := plan.Entity

	cols := []string{}
	if opts.IDsOnly {
		cols = append(cols, column(root, plan.Table.PrimaryKey, plan.Table.PrimaryKey))
	} else {
		for _, c := range tableColumns(plan.Table, nil) {
			cols = append(cols, column(root, c, c))
		}
	}

	sb.From(fmt.Sprintf("%s AS %s", quote(plan.Table.Name), quote(root)))

	plan.Walk(func(path []string, node *JoinNode) {
		ref := nodeRef(root, path)
		parentRef := nodeRef(root, path[:len(path)-1])
		parentPK := plan.Table.PrimaryKey
		if parent := plan.node(path[:len(path)-1]); parent != nil {
			parentPK = parent.Table.PrimaryKey
		}
		join(sb, node, ref, parentRef, parentPK)

		if !opts.IDsOnly {
			prefix := strings.Join(path, ".") + "."
			for _, c := range tableColumns(node.Table, node.Attributes) {
				cols = append(cols, column(ref, c, prefix+c))
			}
		}
	})

	sb.Select(cols...)

	where := rootWhere(sb, plan)
	if opts.RootIDs != nil {
		where = append(where, sb.In(qualify(root, plan.Table.PrimaryKey), opts.RootIDs...))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}

	order := make([]string, 0, len(plan.Order))
	for _, o := range plan.Order {
		order = append(order, fmt.Sprintf("%s %s", qualify(nodeRef(root, o.Path), o.Field), o.Direction))
	}
	if len(order) > 0 {
		sb.OrderBy(order...)
	}

	if opts.Limit > 0 {
		sb.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		sb.Offset(opts.Offset)
	}

	return sb.Build()
}

// Count renders a count of the distinct root rows matching the plan.
func Count(plan *Plan) (string, []any) {
	sb := database.NewSelectBuilder()
	root := plan.Entity

	sb.From(fmt.Sprintf("%s AS %s", quote(plan.Table.Name), quote(root)))
	if plan.HasJoins() {
		sb.Select(fmt.Sprintf("COUNT(DISTINCT %s)", qualify(root, plan.Table.PrimaryKey)))
		plan.Walk(func(path []string, node *JoinNode) {
			parentPK := plan.Table.PrimaryKey
			if parent := plan.node(path[:len(path)-1]); parent != nil {
				parentPK = parent.Table.PrimaryKey
			}
			join(sb, node, nodeRef(root, path), nodeRef(root, path[:len(path)-1]), parentPK)
		})
	} else {
		sb.Select("COUNT(*)")
	}

	if where := rootWhere(sb, plan); len(where) > 0 {
		sb.Where(where...)
	}

	return sb.Build()
}

func (p *Plan) node(path []string) *JoinNode {
	var node *JoinNode
	nodes := p.Joins
	for _, alias := range path {
		node = nil
		for _, n := range nodes {
			if n.Alias == alias {
				node = n
				break
			}
		}
		if node == nil {
			return nil
		}
		nodes = node.Children
	}
	return node
}

func rootWhere(sb conditions, plan *Plan) []string {
	where := []string{}
	if w := renderWhere(sb, plan.Entity, plan.Where); w != "" {
		where = append(where, w)
	}
	if plan.Table.SoftDelete {
		where = append(where, sb.IsNull(qualify(plan.Entity, softDeleteColumn)))
	}
	return where
}

func join(sb *database.SelectBuilder, node *JoinNode, ref, parentRef, parentPK string) {
	option := sqlbuilder.LeftJoin
	if node.Required {
		option = sqlbuilder.InnerJoin
	}

	assoc := node.Association
	on := []string{}
	switch assoc.Type {
	case association.BelongsTo:
		on = append(on, fmt.Sprintf("%s = %s", qualify(ref, node.Table.PrimaryKey), qualify(parentRef, assoc.ForeignKey)))
	case association.BelongsToMany:
		through := ref + throughSuffix
		sb.JoinWithOption(option, fmt.Sprintf("%s AS %s", quote(assoc.Through), quote(through)),
			fmt.Sprintf("%s = %s", qualify(through, assoc.ForeignKey), qualify(parentRef, parentPK)))
		on = append(on, fmt.Sprintf("%s = %s", qualify(ref, node.Table.PrimaryKey), qualify(through, assoc.OtherKey)))
	default:
		on = append(on, fmt.Sprintf("%s = %s", qualify(ref, assoc.ForeignKey), qualify(parentRef, parentPK)))
	}

	if w := renderWhere(sb, ref, node.Where); w != "" {
		on = append(on, w)
	}
	if node.Table.SoftDelete {
		on = append(on, sb.IsNull(qualify(ref, softDeleteColumn)))
	}

	sb.JoinWithOption(option, fmt.Sprintf("%s AS %s", quote(node.Table.Name), quote(ref)), on...)
}

// renderWhere renders w against the table instance ref. An empty where renders "".
func renderWhere(c conditions, ref string, w query.Where) string {
	exprs := []string{}
	for _, cond := range w.Conditions {
		exprs = append(exprs, renderCondition(c, qualify(ref, cond.Field), cond))
	}
	for _, g := range w.And {
		if e := renderWhere(c, ref, g); e != "" {
			exprs = append(exprs, e)
		}
	}
	if len(w.Or) > 0 {
		ors := []string{}
		for _, g := range w.Or {
			if e := renderWhere(c, ref, g); e != "" {
				ors = append(ors, e)
			}
		}
		if len(ors) > 0 {
			exprs = append(exprs, c.Or(ors...))
		}
	}
	for _, g := range w.Not {
		if e := renderWhere(c, ref, g); e != "" {
			exprs = append(exprs, fmt.Sprintf("NOT (%s)", e))
		}
	}

	switch len(exprs) {
	case 0:
		return ""
	case 1:
		return exprs[0]
	default:
		return c.And(exprs...)
	}
}

func renderCondition(c conditions, field string, cond query.Condition) string {
	switch cond.Op {
	case query.OpNe:
		return c.NotEqual(field, cond.Value)
	case query.OpGt:
		return c.GreaterThan(field, cond.Value)
	case query.OpGte:
		return c.GreaterEqualThan(field, cond.Value)
	case query.OpLt:
		return c.LessThan(field, cond.Value)
	case query.OpLte:
		return c.LessEqualThan(field, cond.Value)
	case query.OpLike:
		return c.Like(field, cond.Value)
	case query.OpILike:
		return c.ILike(field, cond.Value)
	case query.OpIn, query.OpNotIn:
		values, ok := query.AsSlice(cond.Value)
		if !ok {
			values = []any{cond.Value}
		}
		if len(values) == 0 {
			if cond.Op == query.OpIn {
				return "1 = 0"
			}
			return "1 = 1"
		}
		if cond.Op == query.OpIn {
			return c.In(field, values...)
		}
		return c.NotIn(field, values...)
	case query.OpIsNull:
		return c.IsNull(field)
	case query.OpNotNull:
		return c.IsNotNull(field)
	default:
		return c.Equal(field, cond.Value)
	}
}

// tableColumns returns the primary key followed by the selected columns.
// nil attributes select every declared column.
func tableColumns(t Table, attributes []string) []string {
	cols := []string{t.PrimaryKey}
	src := t.Columns
	if attributes != nil {
		src = attributes
	}
	for _, c := range src {
		if c != t.PrimaryKey {
			cols = append(cols, c)
		}
	}
	return cols
}

// checkIdentifiers rejects plans whose join or column aliases would be truncated.
func checkIdentifiers(plan *Plan) error {
	var err error
	plan.Walk(func(path []string, node *JoinNode) {
		if err != nil {
			return
		}
		ref := nodeRef(plan.Entity, path)
		names := []string{ref}
		if node.Association.Type == association.BelongsToMany {
			names = append(names, ref+throughSuffix)
		}
		prefix := strings.Join(path, ".") + "."
		for _, c := range tableColumns(node.Table, node.Attributes) {
			names = append(names, prefix+c)
		}
		for _, name := range names {
			if len(name) > maxIdentifierBytes {
				err = ferrors.Newf(ferrors.CodeInvalidFieldString,
					"relation path %s is too long, %q exceeds %d bytes", strings.Join(path, "."), name, maxIdentifierBytes).
					AddMeta("identifier", name)
				return
			}
		}
	})
	return err
}

func nodeRef(root string, path []string) string {
	if len(path) == 0 {
		return root
	}
	return root + refSeparator + strings.Join(path, refSeparator)
}

func column(ref, col, as string) string {
	return fmt.Sprintf("%s AS %s", qualify(ref, col), quote(as))
}

func qualify(ref, col string) string {
	return quote(ref) + "." + quote(col)
}

func quote(name string) string {
	return database.Quote(name)
}
