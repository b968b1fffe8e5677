package relations

import (
	"testing"

	"github.com/Ramsey-B/fern/pkg/association"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAssociations = map[string][]association.Config{
	"user": {
		{Alias: "type", Type: association.BelongsTo, Target: "user_type", ForeignKey: "type_id"},
		{Alias: "orders", Type: association.HasMany, Target: "order", ForeignKey: "user_id"},
	},
	"order": {
		{Alias: "items", Type: association.HasMany, Target: "order_item", ForeignKey: "order_id"},
		{Alias: "user", Type: association.BelongsTo, Target: "user", ForeignKey: "user_id"},
	},
	"order_item": {},
	"user_type":  {},
}

func lookupAssociations(entity string) ([]association.Config, bool) {
	a, ok := testAssociations[entity]
	return a, ok
}

func TestCompile_SynthesizesMissingPlans(t *testing.T) {
	plans, err := Compile("user", testAssociations["user"], nil, lookupAssociations)
	require.NoError(t, err)

	require.Len(t, plans, 2)
	assert.Equal(t, "user_type", plans["type"].Target)
	assert.False(t, plans["type"].Required)
	assert.Nil(t, plans["type"].Attributes)
	assert.True(t, plans["orders"].Where.IsEmpty())
}

func TestCompile_ExplicitConfig(t *testing.T) {
	configs := []Config{
		{
			Alias:      "orders",
			Required:   true,
			Attributes: []string{"id", "total"},
			Where:      map[string]any{"status": "open"},
			Order:      [][]string{{"created_at", "desc"}},
			Include: []Config{
				{Alias: "items", Attributes: []string{"id", "sku"}},
			},
		},
	}

	plans, err := Compile("user", testAssociations["user"], configs, lookupAssociations)
	require.NoError(t, err)

	orders := plans["orders"]
	assert.True(t, orders.Required)
	assert.Equal(t, []string{"id", "total"}, orders.Attributes)
	assert.Equal(t, []query.Condition{{Field: "status", Op: query.OpEq, Value: "open"}}, orders.Where.Conditions)
	assert.Equal(t, []query.OrderItem{{Field: "created_at", Direction: query.Desc}}, orders.Order)

	items, ok := orders.NestedPlan("items")
	require.True(t, ok)
	assert.Equal(t, "order_item", items.Target)
	assert.Equal(t, []string{"id", "sku"}, items.Attributes)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		configs []Config
		code    ferrors.Code
	}{
		{
			name:    "empty attributes",
			configs: []Config{{Alias: "orders", Attributes: []string{}}},
			code:    ferrors.CodeInvalidAttributesConfig,
		},
		{
			name:    "blank attribute",
			configs: []Config{{Alias: "orders", Attributes: []string{"id", " "}}},
			code:    ferrors.CodeInvalidAttributesConfig,
		},
		{
			name:    "empty where",
			configs: []Config{{Alias: "orders", Where: map[string]any{}}},
			code:    ferrors.CodeInvalidWhereConfig,
		},
		{
			name:    "empty order",
			configs: []Config{{Alias: "orders", Order: [][]string{}}},
			code:    ferrors.CodeInvalidOrderConfig,
		},
		{
			name:    "order tuple of wrong size",
			configs: []Config{{Alias: "orders", Order: [][]string{{"created_at"}}}},
			code:    ferrors.CodeInvalidOrderConfig,
		},
		{
			name:    "order with bad direction",
			configs: []Config{{Alias: "orders", Order: [][]string{{"created_at", "up"}}}},
			code:    ferrors.CodeInvalidOrderConfig,
		},
		{
			name:    "duplicate config",
			configs: []Config{{Alias: "orders"}, {Alias: "orders"}},
			code:    ferrors.CodeDuplicateRelation,
		},
		{
			name:    "unknown alias",
			configs: []Config{{Alias: "ghosts"}},
			code:    ferrors.CodeUnknownRelationAlias,
		},
		{
			name:    "invalid nested include",
			configs: []Config{{Alias: "orders", Include: []Config{{Alias: "items", Where: map[string]any{}}}}},
			code:    ferrors.CodeInvalidWhereConfig,
		},
		{
			name:    "unknown nested alias",
			configs: []Config{{Alias: "orders", Include: []Config{{Alias: "ghosts"}}}},
			code:    ferrors.CodeUnknownRelationAlias,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("user", testAssociations["user"], tt.configs, lookupAssociations)
			require.Error(t, err)
			assert.True(t, ferrors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestResolve(t *testing.T) {
	compiled := map[string]Plans{}
	for entity, assocs := range testAssociations {
		plans, err := Compile(entity, assocs, nil, lookupAssociations)
		require.NoError(t, err)
		compiled[entity] = plans
	}
	lookup := func(entity string) (Plans, bool) {
		p, ok := compiled[entity]
		return p, ok
	}

	t.Run("chains through target entities", func(t *testing.T) {
		chain, err := Resolve("user", []string{"orders", "items"}, lookup)
		require.NoError(t, err)
		require.Len(t, chain, 2)
		assert.Equal(t, "order", chain[0].Target)
		assert.Equal(t, "order_item", chain[1].Target)
	})

	t.Run("prefers explicit nested plans", func(t *testing.T) {
		explicit, err := Compile("user", testAssociations["user"], []Config{
			{Alias: "orders", Include: []Config{{Alias: "items", Required: true}}},
		}, lookupAssociations)
		require.NoError(t, err)

		local := func(entity string) (Plans, bool) {
			if entity == "user" {
				return explicit, true
			}
			return lookup(entity)
		}

		chain, err := Resolve("user", []string{"orders", "items"}, local)
		require.NoError(t, err)
		assert.True(t, chain[1].Required)
	})

	t.Run("unknown segment", func(t *testing.T) {
		_, err := Resolve("user", []string{"orders", "ghost"}, lookup)
		assert.ErrorIs(t, err, ferrors.ErrUnknownRelationAlias)
	})
}

func TestSplitPath(t *testing.T) {
	parts, err := SplitPath("a.b.c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, parts)

	_, err = SplitPath("a..c")
	assert.ErrorIs(t, err, ferrors.ErrInvalidFieldString)
}
