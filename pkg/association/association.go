// Package association validates declared entity associations and derives the
// dependency map used for seeding order and delete guards.
package association

import (
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
)

type Type string

const (
	BelongsTo     Type = "belongsTo"
	HasOne        Type = "hasOne"
	HasMany       Type = "hasMany"
	BelongsToMany Type = "belongsToMany"
)

func (t Type) Valid() bool {
	switch t {
	case BelongsTo, HasOne, HasMany, BelongsToMany:
		return true
	}
	return false
}

// Many reports whether the association yields a list of targets.
func (t Type) Many() bool {
	return t == HasMany || t == BelongsToMany
}

// Config declares one association of an owner entity.
//
// ForeignKey is interpreted per type:
//   - belongsTo: column on the owner referencing the target primary key
//   - hasOne, hasMany: column on the target referencing the owner primary key
//   - belongsToMany: column on Through referencing the owner; OtherKey references the target
type Config struct {
	Alias      string `yaml:"alias" json:"alias"`
	Type       Type   `yaml:"type" json:"type"`
	Target     string `yaml:"target" json:"target"`
	ForeignKey string `yaml:"foreign_key" json:"foreign_key"`
	Through    string `yaml:"through,omitempty" json:"through,omitempty"`
	OtherKey   string `yaml:"other_key,omitempty" json:"other_key,omitempty"`
}

// Name returns the alias, defaulting to the target entity.
func (c Config) Name() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Target
}

// Validate checks a single association of owner against the set of known entities.
func (c Config) Validate(owner string, known map[string]bool) error {
	if !c.Type.Valid() {
		return ferrors.Newf(ferrors.CodeInvalidAssociationType,
			"association %q of %s has invalid type %q", c.Name(), owner, c.Type).
			AddMeta("entity", owner)
	}

	missing := []string{}
	if c.Target == "" {
		missing = append(missing, "target")
	}
	if c.ForeignKey == "" {
		missing = append(missing, "foreign_key")
	}
	if c.Type == BelongsToMany {
		if c.Through == "" {
			missing = append(missing, "through")
		}
		if c.OtherKey == "" {
			missing = append(missing, "other_key")
		}
	}
	if len(missing) > 0 {
		return ferrors.Newf(ferrors.CodeMissingRequiredField,
			"association %q of %s is missing %v", c.Name(), owner, missing).
			AddMeta("entity", owner).
			AddMeta("fields", missing)
	}

	if c.Target != owner && !known[c.Target] {
		return ferrors.Newf(ferrors.CodeUnknownTargetEntity,
			"association %q of %s targets unknown entity %q", c.Name(), owner, c.Target).
			AddMeta("entity", owner)
	}

	return nil
}

// DependencyMap categorizes the entities an owner is associated with.
type DependencyMap struct {
	SlaveOf    []string `json:"slave_of"`
	MasterOf   []string `json:"master_of"`
	EqualWith  []string `json:"equal_with"`
	AllAliases []string `json:"all_aliases"`
}

// Compile validates every association of owner and derives its DependencyMap.
// allEntities lists every registered entity name.
func Compile(owner string, configs []Config, allEntities []string) (DependencyMap, error) {
	known := make(map[string]bool, len(allEntities))
	for _, name := range allEntities {
		known[name] = true
	}

	dm := DependencyMap{
		SlaveOf:    []string{},
		MasterOf:   []string{},
		EqualWith:  []string{},
		AllAliases: []string{},
	}
	aliases := map[string]bool{}

	for _, c := range configs {
		if err := c.Validate(owner, known); err != nil {
			return DependencyMap{}, err
		}

		alias := c.Name()
		if aliases[alias] {
			return DependencyMap{}, ferrors.Newf(ferrors.CodeDuplicateRelation,
				"association alias %q is declared twice on %s", alias, owner).
				AddMeta("entity", owner)
		}
		aliases[alias] = true
		dm.AllAliases = append(dm.AllAliases, alias)

		switch c.Type {
		case BelongsTo:
			dm.SlaveOf = appendUnique(dm.SlaveOf, c.Target)
		case HasOne, HasMany:
			dm.MasterOf = appendUnique(dm.MasterOf, c.Target)
		case BelongsToMany:
			dm.EqualWith = appendUnique(dm.EqualWith, c.Target)
		}
	}

	return dm, nil
}

// IsMaster reports whether the owner is master of any other entity.
func (dm DependencyMap) IsMaster() bool {
	return len(dm.MasterOf) > 0
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
