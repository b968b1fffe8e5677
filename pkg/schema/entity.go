// Package schema loads entity definitions and compiles them into a registry that
// serves associations, relation plans and storage layout to the query engine.
package schema

import (
	"fmt"
	"os"

	"github.com/Ramsey-B/fern/pkg/association"
	"github.com/Ramsey-B/fern/pkg/filters"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/queryplan"
	"github.com/Ramsey-B/fern/pkg/relations"
	"github.com/go-openapi/inflect"
	"gopkg.in/yaml.v3"
)

const DefaultPrimaryKey = "id"

// Entity is one entity definition.
type Entity struct {
	Name              string                `yaml:"name" json:"name"`
	Table             string                `yaml:"table,omitempty" json:"table"`
	PrimaryKey        string                `yaml:"primary_key,omitempty" json:"primary_key"`
	Fields            []string              `yaml:"fields" json:"fields"`
	SoftDelete        bool                  `yaml:"soft_delete,omitempty" json:"soft_delete"`
	DefaultOrder      [][]string            `yaml:"default_order,omitempty" json:"default_order,omitempty"`
	SearchFields      []filters.SearchField `yaml:"search_fields,omitempty" json:"search_fields,omitempty"`
	UpdatableFields   []string              `yaml:"updatable_fields,omitempty" json:"updatable_fields,omitempty"`
	SystemCriticalIDs []any                 `yaml:"system_critical_ids,omitempty" json:"system_critical_ids,omitempty"`
	HasAssets         bool                  `yaml:"has_assets,omitempty" json:"has_assets"`
	Associations      []association.Config  `yaml:"associations,omitempty" json:"associations,omitempty"`
	Relations         []relations.Config    `yaml:"relations,omitempty" json:"relations,omitempty"`

	defaultOrder []query.OrderItem
}

type file struct {
	Entities []Entity `yaml:"entities"`
}

// Load reads entity definitions from a YAML file.
func Load(path string) ([]Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(data)
}

// Parse decodes entity definitions and fills in defaults.
func Parse(data []byte) ([]Entity, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
	}
	for i := range f.Entities {
		f.Entities[i].applyDefaults()
	}
	return f.Entities, nil
}

func (e *Entity) applyDefaults() {
	if e.Table == "" {
		e.Table = TableName(e.Name)
	}
	if e.PrimaryKey == "" {
		e.PrimaryKey = DefaultPrimaryKey
	}
}

// TableName derives the default table of an entity: "orderItem" becomes "order_items".
func TableName(entity string) string {
	return inflect.Pluralize(inflect.Underscore(entity))
}

// StorageTable returns the storage layout used by the query engine.
func (e *Entity) StorageTable() queryplan.Table {
	cols := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f != e.PrimaryKey {
			cols = append(cols, f)
		}
	}
	return queryplan.Table{
		Name:       e.Table,
		PrimaryKey: e.PrimaryKey,
		Columns:    cols,
		SoftDelete: e.SoftDelete,
	}
}

// HasField reports whether name is the primary key or a declared field.
func (e *Entity) HasField(name string) bool {
	return e.StorageTable().HasColumn(name)
}

// Order returns the compiled default order.
func (e *Entity) Order() []query.OrderItem {
	return append([]query.OrderItem(nil), e.defaultOrder...)
}

// Updatable reports whether field may be written by an update. An entity without an
// allow-list accepts every declared field except the primary key.
func (e *Entity) Updatable(field string) bool {
	if field == e.PrimaryKey {
		return false
	}
	if len(e.UpdatableFields) == 0 {
		return e.HasField(field)
	}
	for _, f := range e.UpdatableFields {
		if f == field {
			return true
		}
	}
	return false
}

// IsSystemCritical reports whether id may never be deleted.
func (e *Entity) IsSystemCritical(id any) bool {
	for _, critical := range e.SystemCriticalIDs {
		if fmt.Sprint(critical) == fmt.Sprint(id) {
			return true
		}
	}
	return false
}
