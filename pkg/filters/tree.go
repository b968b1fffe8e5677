package filters

import "github.com/Ramsey-B/fern/pkg/query"

// Tree records which relation paths a filter constrains. Values holds the
// constraints that apply to fields of the relation at this node.
type Tree struct {
	Values   map[string]query.Where
	Children map[string]*Tree

	valueOrder []string
	childOrder []string
}

func NewTree() *Tree {
	return &Tree{
		Values:   map[string]query.Where{},
		Children: map[string]*Tree{},
	}
}

func (t *Tree) IsEmpty() bool {
	return t == nil || (len(t.Values) == 0 && len(t.Children) == 0)
}

// Child returns the child for alias, creating it when missing.
func (t *Tree) Child(alias string) *Tree {
	if c, ok := t.Children[alias]; ok {
		return c
	}
	c := NewTree()
	t.Children[alias] = c
	t.childOrder = append(t.childOrder, alias)
	return c
}

// ChildAliases returns child aliases in insertion order.
func (t *Tree) ChildAliases() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.childOrder...)
}

// ValueFields returns constrained fields in insertion order.
func (t *Tree) ValueFields() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.valueOrder...)
}

// Where ANDs every value constraint of this node.
func (t *Tree) Where() query.Where {
	w := query.Where{}
	for _, f := range t.valueOrder {
		w = query.Merge(w, t.Values[f])
	}
	return w
}

// Set attaches a constraint for field at the node addressed by path.
func (t *Tree) Set(path []string, field string, where query.Where) {
	node := t
	for _, alias := range path {
		node = node.Child(alias)
	}
	node.setValue(field, where)
}

func (t *Tree) setValue(field string, where query.Where) {
	if existing, ok := t.Values[field]; ok {
		t.Values[field] = query.Merge(existing, where)
		return
	}
	t.Values[field] = where
	t.valueOrder = append(t.valueOrder, field)
}

// Merge deep merges other into t.
func (t *Tree) Merge(other *Tree) {
	if other == nil {
		return
	}
	for _, f := range other.valueOrder {
		t.setValue(f, other.Values[f])
	}
	for _, alias := range other.childOrder {
		t.Child(alias).Merge(other.Children[alias])
	}
}
