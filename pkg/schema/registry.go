package schema

import (
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/association"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/filters"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/queryplan"
	"github.com/Ramsey-B/fern/pkg/relations"
)

// Registry indexes every entity by name. It is built once and read concurrently.
type Registry struct {
	logger    ectologger.Logger
	names     []string
	entities  map[string]*Entity
	deps      map[string]association.DependencyMap
	plans     map[string]relations.Plans
	seedOrder []string
}

// NewRegistry registers the entities, then compiles associations followed by relation
// plans. Any configuration error is returned and the registry is unusable.
func NewRegistry(entities []Entity, logger ectologger.Logger) (*Registry, error) {
	r := &Registry{
		logger:   logger,
		entities: make(map[string]*Entity, len(entities)),
		deps:     make(map[string]association.DependencyMap, len(entities)),
		plans:    make(map[string]relations.Plans, len(entities)),
	}

	for i := range entities {
		e := entities[i]
		e.applyDefaults()
		if e.Name == "" {
			return nil, ferrors.Newf(ferrors.CodeMissingRequiredField, "entity %d has no name", i)
		}
		if _, dup := r.entities[e.Name]; dup {
			return nil, fmt.Errorf("entity %q is declared twice", e.Name)
		}
		r.entities[e.Name] = &e
		r.names = append(r.names, e.Name)
	}

	if err := r.associate(); err != nil {
		return nil, err
	}
	if err := r.mapRelations(); err != nil {
		return nil, err
	}

	r.seedOrder = association.SeedOrder(r.names, r.deps)
	logger.WithFields(map[string]any{
		"entities":   len(r.names),
		"seed_order": r.seedOrder,
	}).Info("Schema registry compiled")

	return r, nil
}

func (r *Registry) associate() error {
	for _, name := range r.names {
		dm, err := association.Compile(name, r.entities[name].Associations, r.names)
		if err != nil {
			return err
		}
		r.deps[name] = dm
	}
	return nil
}

func (r *Registry) mapRelations() error {
	for _, name := range r.names {
		e := r.entities[name]
		plans, err := relations.Compile(name, e.Associations, e.Relations, r.Associations)
		if err != nil {
			return err
		}
		for _, alias := range sortedAliases(plans) {
			if err := r.checkPlan(plans[alias]); err != nil {
				return err
			}
		}
		r.plans[name] = plans

		if e.DefaultOrder != nil {
			order, err := r.compileDefaultOrder(e)
			if err != nil {
				return err
			}
			e.defaultOrder = order
		}
	}
	return nil
}

// checkPlan rejects attributes and order fields that are not columns of the target.
func (r *Registry) checkPlan(p *relations.Plan) error {
	target := r.entities[p.Target]
	for _, attr := range p.Attributes {
		if !target.HasField(attr) {
			return ferrors.Newf(ferrors.CodeInvalidAttributesConfig,
				"relation %q selects unknown field %q of %s", p.Alias, attr, p.Target).
				AddMeta("field", attr)
		}
	}
	for _, item := range p.Order {
		if !target.HasField(item.Field) {
			return ferrors.Newf(ferrors.CodeInvalidOrderConfig,
				"relation %q orders by unknown field %q of %s", p.Alias, item.Field, p.Target).
				AddMeta("field", item.Field)
		}
	}
	for _, nested := range p.Nested {
		if err := r.checkPlan(nested); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) compileDefaultOrder(e *Entity) ([]query.OrderItem, error) {
	items := make([]query.OrderItem, 0, len(e.DefaultOrder))
	for i, tuple := range e.DefaultOrder {
		if len(tuple) == 0 || len(tuple) > 2 || !e.HasField(tuple[0]) {
			return nil, ferrors.Newf(ferrors.CodeInvalidOrderConfig, "default order %d of %s is invalid", i, e.Name)
		}
		dir := query.Asc
		if len(tuple) == 2 {
			d, ok := query.ParseDirection(tuple[1])
			if !ok {
				return nil, ferrors.Newf(ferrors.CodeInvalidOrderConfig,
					"default order %d of %s has invalid direction %q", i, e.Name, tuple[1])
			}
			dir = d
		}
		items = append(items, query.OrderItem{Field: tuple[0], Direction: dir})
	}
	return items, nil
}

func sortedAliases(plans relations.Plans) []string {
	aliases := make([]string, 0, len(plans))
	for alias := range plans {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Names returns entity names in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// MustEntity returns the entity or an UnknownEntity error.
func (r *Registry) MustEntity(name string) (*Entity, error) {
	e, ok := r.entities[name]
	if !ok {
		return nil, ferrors.Newf(ferrors.CodeUnknownEntity, "unknown entity %q", name).AddMeta("entity", name)
	}
	return e, nil
}

func (r *Registry) Associations(name string) ([]association.Config, bool) {
	e, ok := r.entities[name]
	if !ok {
		return nil, false
	}
	return e.Associations, true
}

// Association returns the association of entity exposed as alias.
func (r *Registry) Association(entity, alias string) (association.Config, bool) {
	e, ok := r.entities[entity]
	if !ok {
		return association.Config{}, false
	}
	for _, a := range e.Associations {
		if a.Name() == alias {
			return a, true
		}
	}
	return association.Config{}, false
}

func (r *Registry) Dependencies(name string) (association.DependencyMap, bool) {
	dm, ok := r.deps[name]
	return dm, ok
}

// DependencyMaps returns the dependency map of every entity.
func (r *Registry) DependencyMaps() map[string]association.DependencyMap {
	out := make(map[string]association.DependencyMap, len(r.deps))
	for k, v := range r.deps {
		out[k] = v
	}
	return out
}

// SeedOrder returns entity names with masters before their slaves.
func (r *Registry) SeedOrder() []string {
	return append([]string(nil), r.seedOrder...)
}

// Table implements queryplan.Catalog.
func (r *Registry) Table(name string) (queryplan.Table, bool) {
	e, ok := r.entities[name]
	if !ok {
		return queryplan.Table{}, false
	}
	return e.StorageTable(), true
}

// Plans implements queryplan.Catalog.
func (r *Registry) Plans(name string) (relations.Plans, bool) {
	p, ok := r.plans[name]
	return p, ok
}

// FilterCompiler returns a compiler for the search fields of entity. Relation paths
// are checked against the compiled plans.
func (r *Registry) FilterCompiler(name string) (*filters.Compiler, error) {
	e, err := r.MustEntity(name)
	if err != nil {
		return nil, err
	}
	return filters.NewCompiler(e.SearchFields, func(path []string) error {
		_, err := relations.Resolve(name, path, r.Plans)
		return ferrors.FromRequest(err)
	}), nil
}

// StorageTableName returns the table of entity, or "" when it is not registered.
func (r *Registry) StorageTableName(name string) string {
	if e, ok := r.entities[name]; ok {
		return e.Table
	}
	return ""
}
