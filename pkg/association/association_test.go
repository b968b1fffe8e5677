package association

import (
	"testing"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entities = []string{"user", "user_type", "order", "tag"}

func userAssociations() []Config {
	return []Config{
		{Alias: "type", Type: BelongsTo, Target: "user_type", ForeignKey: "type_id"},
		{Alias: "orders", Type: HasMany, Target: "order", ForeignKey: "user_id"},
		{Alias: "tags", Type: BelongsToMany, Target: "tag", ForeignKey: "user_id", Through: "user_tags", OtherKey: "tag_id"},
		{Alias: "manager", Type: BelongsTo, Target: "user", ForeignKey: "manager_id"},
	}
}

func TestCompile(t *testing.T) {
	dm, err := Compile("user", userAssociations(), entities)
	require.NoError(t, err)

	assert.Equal(t, []string{"user_type", "user"}, dm.SlaveOf)
	assert.Equal(t, []string{"order"}, dm.MasterOf)
	assert.Equal(t, []string{"tag"}, dm.EqualWith)
	assert.Equal(t, []string{"type", "orders", "tags", "manager"}, dm.AllAliases)
	assert.True(t, dm.IsMaster())
}

func TestCompile_Idempotent(t *testing.T) {
	first, err := Compile("user", userAssociations(), entities)
	require.NoError(t, err)
	second, err := Compile("user", userAssociations(), entities)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		code   ferrors.Code
	}{
		{
			name:   "invalid type",
			config: Config{Alias: "x", Type: "hasSome", Target: "tag", ForeignKey: "x_id"},
			code:   ferrors.CodeInvalidAssociationType,
		},
		{
			name:   "missing foreign key",
			config: Config{Alias: "x", Type: HasOne, Target: "tag"},
			code:   ferrors.CodeMissingRequiredField,
		},
		{
			name:   "belongsToMany without through",
			config: Config{Alias: "x", Type: BelongsToMany, Target: "tag", ForeignKey: "user_id", OtherKey: "tag_id"},
			code:   ferrors.CodeMissingRequiredField,
		},
		{
			name:   "unknown target",
			config: Config{Alias: "x", Type: HasOne, Target: "ghost", ForeignKey: "user_id"},
			code:   ferrors.CodeUnknownTargetEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("user", []Config{tt.config}, entities)
			require.Error(t, err)
			assert.True(t, ferrors.IsCode(err, tt.code), "got %v", err)
		})
	}

	t.Run("duplicate alias", func(t *testing.T) {
		_, err := Compile("user", []Config{
			{Alias: "x", Type: HasOne, Target: "tag", ForeignKey: "user_id"},
			{Alias: "x", Type: HasMany, Target: "order", ForeignKey: "user_id"},
		}, entities)
		assert.ErrorIs(t, err, ferrors.ErrDuplicateRelation)
	})

	t.Run("self association needs no registration", func(t *testing.T) {
		_, err := Compile("node", []Config{{Alias: "parent", Type: BelongsTo, Target: "node", ForeignKey: "parent_id"}}, nil)
		assert.NoError(t, err)
	})

	t.Run("alias defaults to target", func(t *testing.T) {
		dm, err := Compile("user", []Config{{Type: HasMany, Target: "order", ForeignKey: "user_id"}}, entities)
		require.NoError(t, err)
		assert.Equal(t, []string{"order"}, dm.AllAliases)
	})
}

func TestSeedOrder(t *testing.T) {
	maps := map[string]DependencyMap{
		"order":     {SlaveOf: []string{"user"}},
		"user":      {SlaveOf: []string{"user_type", "user"}},
		"user_type": {},
		"tag":       {},
	}

	order := SeedOrder([]string{"order", "user", "user_type", "tag"}, maps)
	assert.Equal(t, []string{"user_type", "user", "order", "tag"}, order)

	t.Run("cycle falls back to declaration order", func(t *testing.T) {
		cyclic := map[string]DependencyMap{
			"a": {SlaveOf: []string{"b"}},
			"b": {SlaveOf: []string{"a"}},
			"c": {},
		}
		assert.Equal(t, []string{"c", "a", "b"}, SeedOrder([]string{"a", "b", "c"}, cyclic))
	})
}
