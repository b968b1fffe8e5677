// Package relations compiles per-entity relation configuration into reusable plans
// keyed by alias.
package relations

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/association"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/query"
)

// Config is an explicit relation entry. It shapes how an association is joined when read.
type Config struct {
	Alias      string         `yaml:"alias" json:"alias"`
	Required   bool           `yaml:"required" json:"required"`
	Attributes []string       `yaml:"attributes" json:"attributes"`
	Where      map[string]any `yaml:"where" json:"where"`
	Order      [][]string     `yaml:"order" json:"order"`
	Include    []Config       `yaml:"include" json:"include"`
}

// Plan is the compiled form of a relation. Plans are built once and shared read-only.
type Plan struct {
	Alias       string
	Target      string
	Association association.Config
	Required    bool
	Attributes  []string
	Where       query.Where
	Order       []query.OrderItem
	Nested      []*Plan
}

// NestedPlan returns the explicitly configured nested plan for alias.
func (p *Plan) NestedPlan(alias string) (*Plan, bool) {
	for _, n := range p.Nested {
		if n.Alias == alias {
			return n, true
		}
	}
	return nil, false
}

// Plans is the compiled relation set of one entity.
type Plans map[string]*Plan

// AssociationLookup returns the associations declared by an entity.
type AssociationLookup func(entity string) ([]association.Config, bool)

// Compile builds the relation plans of entity. Every association gets a plan; those
// without an explicit config get a minimal optional one.
func Compile(entity string, associations []association.Config, configs []Config, lookup AssociationLookup) (Plans, error) {
	byAlias := make(map[string]association.Config, len(associations))
	for _, a := range associations {
		byAlias[a.Name()] = a
	}

	plans := make(Plans, len(associations))
	for _, cfg := range configs {
		if _, dup := plans[cfg.Alias]; dup {
			return nil, ferrors.Newf(ferrors.CodeDuplicateRelation,
				"relation %q is configured twice on %s", cfg.Alias, entity).
				AddMeta("entity", entity)
		}

		assoc, ok := byAlias[cfg.Alias]
		if !ok {
			return nil, unknownAlias(entity, cfg.Alias)
		}

		plan, err := compileConfig(entity, assoc, cfg, lookup)
		if err != nil {
			return nil, err
		}
		plans[cfg.Alias] = plan
	}

	for _, a := range associations {
		if _, ok := plans[a.Name()]; ok {
			continue
		}
		plans[a.Name()] = Synthesize(a)
	}

	return plans, nil
}

// Synthesize builds the default plan for an association with no explicit config.
func Synthesize(a association.Config) *Plan {
	return &Plan{
		Alias:       a.Name(),
		Target:      a.Target,
		Association: a,
		Required:    false,
	}
}

func compileConfig(entity string, assoc association.Config, cfg Config, lookup AssociationLookup) (*Plan, error) {
	path := entity + "." + cfg.Alias

	plan := &Plan{
		Alias:       cfg.Alias,
		Target:      assoc.Target,
		Association: assoc,
		Required:    cfg.Required,
	}

	if cfg.Attributes != nil {
		if len(cfg.Attributes) == 0 {
			return nil, ferrors.Newf(ferrors.CodeInvalidAttributesConfig, "attributes of %s must not be empty", path)
		}
		for _, attr := range cfg.Attributes {
			if strings.TrimSpace(attr) == "" {
				return nil, ferrors.Newf(ferrors.CodeInvalidAttributesConfig, "attributes of %s must be non-empty strings", path)
			}
		}
		plan.Attributes = append([]string(nil), cfg.Attributes...)
	}

	if cfg.Where != nil {
		if len(cfg.Where) == 0 {
			return nil, ferrors.Newf(ferrors.CodeInvalidWhereConfig, "where of %s must not be empty", path)
		}
		where, err := query.ParseObject(cfg.Where)
		if err != nil {
			return nil, ferrors.Newf(ferrors.CodeInvalidWhereConfig, "where of %s: %s", path, err)
		}
		plan.Where = where
	}

	if cfg.Order != nil {
		order, err := compileOrder(path, cfg.Order)
		if err != nil {
			return nil, err
		}
		plan.Order = order
	}

	if len(cfg.Include) > 0 {
		targetAssocs, _ := lookup(assoc.Target)
		nested, err := compileNested(assoc.Target, targetAssocs, cfg.Include, lookup)
		if err != nil {
			return nil, err
		}
		plan.Nested = nested
	}

	return plan, nil
}

func compileNested(entity string, associations []association.Config, configs []Config, lookup AssociationLookup) ([]*Plan, error) {
	byAlias := make(map[string]association.Config, len(associations))
	for _, a := range associations {
		byAlias[a.Name()] = a
	}

	seen := map[string]bool{}
	nested := make([]*Plan, 0, len(configs))
	for _, cfg := range configs {
		if seen[cfg.Alias] {
			return nil, ferrors.Newf(ferrors.CodeDuplicateRelation,
				"relation %q is included twice under %s", cfg.Alias, entity).
				AddMeta("entity", entity)
		}
		seen[cfg.Alias] = true

		assoc, ok := byAlias[cfg.Alias]
		if !ok {
			return nil, unknownAlias(entity, cfg.Alias)
		}
		plan, err := compileConfig(entity, assoc, cfg, lookup)
		if err != nil {
			return nil, err
		}
		nested = append(nested, plan)
	}
	return nested, nil
}

func compileOrder(path string, tuples [][]string) ([]query.OrderItem, error) {
	if len(tuples) == 0 {
		return nil, ferrors.Newf(ferrors.CodeInvalidOrderConfig, "order of %s must not be empty", path)
	}

	items := make([]query.OrderItem, 0, len(tuples))
	for i, tuple := range tuples {
		if len(tuple) != 2 || strings.TrimSpace(tuple[0]) == "" {
			return nil, ferrors.Newf(ferrors.CodeInvalidOrderConfig,
				"order %d of %s must be a [field, direction] pair", i, path)
		}
		dir, ok := query.ParseDirection(tuple[1])
		if !ok || tuple[1] == "" {
			return nil, ferrors.Newf(ferrors.CodeInvalidOrderConfig,
				"order %d of %s has invalid direction %q", i, path, tuple[1])
		}
		items = append(items, query.OrderItem{Field: tuple[0], Direction: dir})
	}
	return items, nil
}

func unknownAlias(entity, alias string) error {
	return ferrors.Newf(ferrors.CodeUnknownRelationAlias, "%s has no relation %q", entity, alias).
		AddMeta("entity", entity).
		AddMeta("alias", alias)
}

// PlanLookup returns the compiled plans of an entity.
type PlanLookup func(entity string) (Plans, bool)

// Resolve walks a relation path from entity and returns the plan of every segment.
// A segment is resolved first among the explicit nested plans of the previous segment,
// then among the compiled plans of the previous segment's target entity.
func Resolve(entity string, path []string, lookup PlanLookup) ([]*Plan, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty relation path on %s", entity)
	}

	chain := make([]*Plan, 0, len(path))
	current := entity
	var prev *Plan
	for _, alias := range path {
		var plan *Plan
		if prev != nil {
			plan, _ = prev.NestedPlan(alias)
		}
		if plan == nil {
			plans, ok := lookup(current)
			if ok {
				plan = plans[alias]
			}
		}
		if plan == nil {
			return nil, unknownAlias(current, alias)
		}
		chain = append(chain, plan)
		prev = plan
		current = plan.Target
	}

	return chain, nil
}

// SplitPath splits a dotted relation name like "a.b.c".
func SplitPath(name string) ([]string, error) {
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil, ferrors.Newf(ferrors.CodeInvalidFieldString, "invalid relation path %q", name)
		}
	}
	return parts, nil
}
