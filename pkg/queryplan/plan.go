// Package queryplan assembles relation plans and filter constraints into one
// de-duplicated join tree with a conflict free order list, renders it to SQL and folds
// fanned out rows back into nested records.
package queryplan

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/association"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/filters"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/relations"
)

// Table describes how an entity is stored.
type Table struct {
	Name       string
	PrimaryKey string
	Columns    []string
	SoftDelete bool
}

// HasColumn reports whether col is the primary key or a declared column.
func (t Table) HasColumn(col string) bool {
	if col == t.PrimaryKey {
		return true
	}
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Catalog resolves entity storage and compiled relation plans.
type Catalog interface {
	Table(entity string) (Table, bool)
	Plans(entity string) (relations.Plans, bool)
}

// JoinNode is one join of an assembled plan.
type JoinNode struct {
	Alias       string
	Target      string
	Table       Table
	Association association.Config
	Required    bool
	Where       query.Where
	Attributes  []string
	Order       []query.OrderItem
	Children    []*JoinNode

	applied map[*relations.Plan]bool
}

// OrderEntry is one ORDER BY term. Path is the chain of join aliases from the root;
// an empty path orders by a root column.
type OrderEntry struct {
	Path      []string
	Field     string
	Direction query.Direction
}

func (o OrderEntry) key() string {
	return strings.Join(append(append([]string{}, o.Path...), o.Field), ".")
}

// Plan is an assembled per-call query plan.
type Plan struct {
	Entity string
	Table  Table
	Where  query.Where
	Joins  []*JoinNode
	Order  []OrderEntry
}

func (p *Plan) HasJoins() bool {
	return len(p.Joins) > 0
}

// Walk visits every join node depth first with its alias path.
func (p *Plan) Walk(fn func(path []string, node *JoinNode)) {
	var walk func(path []string, nodes []*JoinNode)
	walk = func(path []string, nodes []*JoinNode) {
		for _, n := range nodes {
			np := append(append([]string{}, path...), n.Alias)
			fn(np, n)
			walk(np, n.Children)
		}
	}
	walk(nil, p.Joins)
}

// Request is the input of one assembly.
type Request struct {
	Entity      string
	Where       query.Where
	Required    *filters.Tree
	RelReadKeys []string
	Order       []query.OrderItem
}

type Assembler struct {
	catalog Catalog
}

func NewAssembler(catalog Catalog) *Assembler {
	return &Assembler{catalog: catalog}
}

// Assemble merges filter-required relations and explicitly requested relations into
// a single join tree. Nodes are unique by alias among siblings.
func (a *Assembler) Assemble(req Request) (*Plan, error) {
	table, ok := a.catalog.Table(req.Entity)
	if !ok {
		return nil, ferrors.Newf(ferrors.CodeUnknownEntity, "unknown entity %q", req.Entity)
	}

	plan := &Plan{
		Entity: req.Entity,
		Table:  table,
		Where:  req.Where.Clone(),
	}

	if err := a.applyTree(req.Entity, nil, &plan.Joins, req.Required); err != nil {
		return nil, err
	}

	for _, key := range req.RelReadKeys {
		if err := a.applyReadKey(plan, key); err != nil {
			return nil, err
		}
	}

	propagateRequired(plan.Joins)
	if err := checkIdentifiers(plan); err != nil {
		return nil, err
	}

	order, err := buildOrder(plan, req.Order)
	if err != nil {
		return nil, err
	}
	plan.Order = order

	return plan, nil
}

func (a *Assembler) applyTree(entity string, parent *relations.Plan, list *[]*JoinNode, tree *filters.Tree) error {
	if tree.IsEmpty() {
		return nil
	}

	for _, alias := range tree.ChildAliases() {
		rp, err := a.resolve(entity, parent, alias)
		if err != nil {
			return err
		}
		node, err := a.upsert(list, rp)
		if err != nil {
			return err
		}

		child := tree.Children[alias]
		if w := child.Where(); !w.IsEmpty() {
			node.Where = query.Merge(node.Where, w)
			node.Required = true
		}

		if err := a.applyTree(rp.Target, rp, &node.Children, child); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) applyReadKey(plan *Plan, key string) error {
	path, err := relations.SplitPath(key)
	if err != nil {
		return err
	}
	chain, err := relations.Resolve(plan.Entity, path, a.catalog.Plans)
	if err != nil {
		return ferrors.FromRequest(err)
	}

	list := &plan.Joins
	for _, rp := range chain {
		node, err := a.upsert(list, rp)
		if err != nil {
			return err
		}
		list = &node.Children
	}
	return nil
}

func (a *Assembler) resolve(entity string, parent *relations.Plan, alias string) (*relations.Plan, error) {
	if parent != nil {
		if rp, ok := parent.NestedPlan(alias); ok {
			return rp, nil
		}
	}
	if plans, ok := a.catalog.Plans(entity); ok {
		if rp, ok := plans[alias]; ok {
			return rp, nil
		}
	}
	return nil, ferrors.FromRequest(ferrors.Newf(ferrors.CodeUnknownRelationAlias, "%s has no relation %q", entity, alias).
		AddMeta("entity", entity).
		AddMeta("alias", alias))
}

// upsert returns the sibling node for rp.Alias, creating it or merging rp into it.
func (a *Assembler) upsert(list *[]*JoinNode, rp *relations.Plan) (*JoinNode, error) {
	var node *JoinNode
	for _, n := range *list {
		if n.Alias == rp.Alias && n.Target == rp.Target {
			node = n
			break
		}
	}

	if node == nil {
		table, ok := a.catalog.Table(rp.Target)
		if !ok {
			return nil, ferrors.Newf(ferrors.CodeUnknownTargetEntity, "relation %q targets unknown entity %q", rp.Alias, rp.Target)
		}
		node = &JoinNode{
			Alias:       rp.Alias,
			Target:      rp.Target,
			Table:       table,
			Association: rp.Association,
			Required:    rp.Required,
			Where:       rp.Where.Clone(),
			Attributes:  query.Clone(rp.Attributes).([]string),
			Order:       append([]query.OrderItem(nil), rp.Order...),
			applied:     map[*relations.Plan]bool{rp: true},
		}
		*list = append(*list, node)
	} else if !node.applied[rp] {
		node.applied[rp] = true
		node.Required = node.Required || rp.Required
		node.Where = query.Merge(node.Where, rp.Where)
		node.Attributes = unionAttributes(node.Attributes, rp.Attributes)
		node.Order = append(node.Order, rp.Order...)
	}

	for _, nested := range rp.Nested {
		if _, err := a.upsert(&node.Children, nested); err != nil {
			return nil, err
		}
	}

	return node, nil
}

// nil attributes select every column, so nil wins a union.
func unionAttributes(a, b []string) []string {
	if a == nil || b == nil {
		return nil
	}
	out := append([]string(nil), a...)
	for _, attr := range b {
		found := false
		for _, existing := range out {
			if existing == attr {
				found = true
				break
			}
		}
		if !found {
			out = append(out, attr)
		}
	}
	return out
}

// propagateRequired marks every ancestor of a required node as required and reports
// whether any node in nodes is required.
func propagateRequired(nodes []*JoinNode) bool {
	required := false
	for _, n := range nodes {
		if propagateRequired(n.Children) {
			n.Required = true
		}
		if n.Required {
			required = true
		}
	}
	return required
}

func buildOrder(plan *Plan, top []query.OrderItem) ([]OrderEntry, error) {
	entries := []OrderEntry{}
	index := map[string]int{}

	add := func(e OrderEntry) {
		if i, ok := index[e.key()]; ok {
			entries[i].Direction = e.Direction
			return
		}
		index[e.key()] = len(entries)
		entries = append(entries, e)
	}

	for _, item := range top {
		if !plan.Table.HasColumn(item.Field) {
			return nil, ferrors.Newf(ferrors.CodeInvalidFieldString, "cannot order %s by %q", plan.Entity, item.Field).
				AddMeta("field", item.Field)
		}
		add(OrderEntry{Field: item.Field, Direction: direction(item.Direction)})
	}

	plan.Walk(func(path []string, node *JoinNode) {
		for _, item := range node.Order {
			add(OrderEntry{Path: path, Field: item.Field, Direction: direction(item.Direction)})
		}
	})

	tie := OrderEntry{Field: plan.Table.PrimaryKey, Direction: query.Asc}
	if _, ok := index[tie.key()]; !ok {
		add(tie)
	}

	return entries, nil
}

func direction(d query.Direction) query.Direction {
	if d == "" {
		return query.Asc
	}
	return d
}
