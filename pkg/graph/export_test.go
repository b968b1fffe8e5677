package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApplier struct {
	statements []Statement
	err        error
}

func (f *fakeApplier) Apply(_ context.Context, statements []Statement) (Summary, error) {
	f.statements = append(f.statements, statements...)
	if f.err != nil {
		return Summary{}, f.err
	}
	return Summary{Statements: len(statements)}, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func exampleRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	entities, err := schema.Load("../../schema/example.yaml")
	require.NoError(t, err)
	r, err := schema.NewRegistry(entities, testLogger())
	require.NoError(t, err)
	return r
}

func TestStatements(t *testing.T) {
	r := exampleRegistry(t)
	statements := Statements(r)

	names := r.Names()
	require.Greater(t, len(statements), len(names))

	for i, name := range names {
		assert.Equal(t, mergeEntity, statements[i].Cypher)
		assert.Equal(t, name, statements[i].Params["name"])
	}

	edges := statements[len(names):]
	found := false
	for _, s := range edges {
		assert.Equal(t, mergeEdge, s.Cypher)
		if s.Params["owner"] == "user" && s.Params["alias"] == "tags" {
			found = true
			assert.Equal(t, "tag", s.Params["target"])
			assert.Equal(t, "belongsToMany", s.Params["type"])
			assert.Equal(t, "user_tags", s.Params["through"])
		}
	}
	assert.True(t, found, "user.tags edge exported")

	user := statements[1]
	assert.Equal(t, "users", user.Params["table"])
	assert.Equal(t, true, user.Params["master"])
}

func TestExporter_Export(t *testing.T) {
	r := exampleRegistry(t)

	t.Run("applies every statement", func(t *testing.T) {
		fake := &fakeApplier{}
		e := &Exporter{client: fake, logger: testLogger()}
		require.NoError(t, e.Export(context.Background(), r))
		assert.Equal(t, Statements(r), fake.statements)
	})

	t.Run("returns apply errors", func(t *testing.T) {
		fake := &fakeApplier{err: errors.New("bolt unavailable")}
		e := &Exporter{client: fake, logger: testLogger()}
		assert.ErrorContains(t, e.Export(context.Background(), r), "bolt unavailable")
	})
}
