package schema

import (
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/association"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/relations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func loadExample(t *testing.T) *Registry {
	t.Helper()
	entities, err := Load("../../schema/example.yaml")
	require.NoError(t, err)
	r, err := NewRegistry(entities, testLogger())
	require.NoError(t, err)
	return r
}

func TestRegistry_Example(t *testing.T) {
	r := loadExample(t)

	assert.Equal(t, []string{"user_type", "user", "order", "order_item", "tag"}, r.Names())
	assert.Equal(t, []string{"user_type", "user", "order", "order_item", "tag"}, r.SeedOrder())

	dm, ok := r.Dependencies("user")
	require.True(t, ok)
	assert.Equal(t, association.DependencyMap{
		SlaveOf:    []string{"user_type"},
		MasterOf:   []string{"order"},
		EqualWith:  []string{"tag"},
		AllAliases: []string{"type", "orders", "tags"},
	}, dm)

	table, ok := r.Table("order_item")
	require.True(t, ok)
	assert.Equal(t, "order_items", table.Name)
	assert.Equal(t, "id", table.PrimaryKey)
	assert.Equal(t, []string{"order_id", "sku", "quantity"}, table.Columns)

	user, _ := r.Entity("user")
	assert.Equal(t, []query.OrderItem{{Field: "created_at", Direction: query.Desc}}, user.Order())
	assert.True(t, user.Updatable("email"))
	assert.False(t, user.Updatable("id"))
	assert.False(t, user.Updatable("created_at"))

	userType, _ := r.Entity("user_type")
	assert.True(t, userType.IsSystemCritical(1))
	assert.True(t, userType.IsSystemCritical("1"))
	assert.False(t, userType.IsSystemCritical(2))

	plans, ok := r.Plans("user")
	require.True(t, ok)
	items, ok := plans["orders"].NestedPlan("items")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "sku", "quantity"}, items.Attributes)
	assert.False(t, plans["tags"].Required)
}

func TestRegistry_FilterCompiler(t *testing.T) {
	r := loadExample(t)

	c, err := r.FilterCompiler("user")
	require.NoError(t, err)

	res, err := c.Compile(map[string]any{"$orders.items.sku$": "A-1", "name": "ann"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []query.Condition{{Field: "name", Op: query.OpILike, Value: "%ann%"}}, res.Where.Conditions)
	assert.NotNil(t, res.Required.Children["orders"].Children["items"])

	_, err = r.FilterCompiler("ghost")
	assert.ErrorIs(t, err, ferrors.ErrUnknownEntity)
}

func TestRegistry_Errors(t *testing.T) {
	base := func() []Entity {
		return []Entity{
			{Name: "user", Fields: []string{"id", "name", "type_id"}, Associations: []association.Config{
				{Alias: "type", Type: association.BelongsTo, Target: "user_type", ForeignKey: "type_id"},
			}},
			{Name: "user_type", Fields: []string{"id", "name"}},
		}
	}

	tests := []struct {
		name   string
		mutate func([]Entity)
		want   error
	}{
		{
			name: "unknown target",
			mutate: func(e []Entity) {
				e[0].Associations[0].Target = "ghost"
			},
			want: ferrors.ErrUnknownTargetEntity,
		},
		{
			name: "invalid association type",
			mutate: func(e []Entity) {
				e[0].Associations[0].Type = "ownsMany"
			},
			want: ferrors.ErrInvalidAssociationType,
		},
		{
			name: "duplicate alias",
			mutate: func(e []Entity) {
				e[0].Associations = append(e[0].Associations, e[0].Associations[0])
			},
			want: ferrors.ErrDuplicateRelation,
		},
		{
			name: "relation for unknown alias",
			mutate: func(e []Entity) {
				e[0].Relations = []relations.Config{{Alias: "ghost"}}
			},
			want: ferrors.ErrUnknownRelationAlias,
		},
		{
			name: "relation selects unknown field",
			mutate: func(e []Entity) {
				e[0].Relations = []relations.Config{{Alias: "type", Attributes: []string{"secret"}}}
			},
			want: ferrors.ErrInvalidAttributesConfig,
		},
		{
			name: "relation orders by unknown field",
			mutate: func(e []Entity) {
				e[0].Relations = []relations.Config{{Alias: "type", Order: [][]string{{"secret", "asc"}}}}
			},
			want: ferrors.ErrInvalidOrderConfig,
		},
		{
			name: "invalid default order",
			mutate: func(e []Entity) {
				e[0].DefaultOrder = [][]string{{"name", "sideways"}}
			},
			want: ferrors.ErrInvalidOrderConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := base()
			tt.mutate(entities)
			_, err := NewRegistry(entities, testLogger())
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("duplicate entity", func(t *testing.T) {
		entities := append(base(), Entity{Name: "user"})
		_, err := NewRegistry(entities, testLogger())
		assert.Error(t, err)
	})
}

func TestTableName(t *testing.T) {
	tests := map[string]string{
		"user":      "users",
		"orderItem": "order_items",
		"user_type": "user_types",
		"category":  "categories",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, TableName(in))
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	entities, err := Parse([]byte(`
entities:
  - name: invoiceLine
    fields: [line_no, amount]
    primary_key: line_no
  - name: person
    table: people_v2
    fields: [id]
`))
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "invoice_lines", entities[0].Table)
	assert.Equal(t, "line_no", entities[0].PrimaryKey)
	assert.Equal(t, "people_v2", entities[1].Table)
	assert.Equal(t, "id", entities[1].PrimaryKey)
}
