package graph

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/association"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	mergeEntity = `MERGE (e:Entity {name: $name}) SET e.table = $table, e.master = $master`
	mergeEdge   = `MATCH (a:Entity {name: $owner}), (b:Entity {name: $target})
MERGE (a)-[r:ASSOCIATES {alias: $alias}]->(b)
SET r.type = $type, r.foreign_key = $foreign_key, r.through = $through`
)

// Statement is one parameterized Cypher statement.
type Statement struct {
	Cypher string
	Params map[string]any
}

// Source is the schema the exporter reads.
type Source interface {
	Names() []string
	Associations(name string) ([]association.Config, bool)
	Dependencies(name string) (association.DependencyMap, bool)
	StorageTableName(name string) string
}

type applier interface {
	Apply(ctx context.Context, statements []Statement) (Summary, error)
}

// Exporter writes entities as (:Entity) nodes and associations as [:ASSOCIATES] edges.
type Exporter struct {
	client applier
	logger ectologger.Logger
}

func NewExporter(client *Client, logger ectologger.Logger) *Exporter {
	return &Exporter{client: client, logger: logger}
}

// Export merges the whole graph. Nodes are written before edges so every MATCH finds
// both ends.
func (e *Exporter) Export(ctx context.Context, src Source) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Exporter.Export")
	defer span.End()

	statements := Statements(src)
	sum, err := e.client.Apply(ctx, statements)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to export association graph")
		return err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"entities":      len(src.Names()),
		"statements":    sum.Statements,
		"nodes_created": sum.NodesCreated,
		"edges_created": sum.RelationshipsCreated,
	}).Info("Exported association graph")
	return nil
}

// Statements builds the merge statements for src in declaration order.
func Statements(src Source) []Statement {
	names := src.Names()
	nodes := make([]Statement, 0, len(names))
	edges := []Statement{}

	for _, name := range names {
		deps, _ := src.Dependencies(name)
		nodes = append(nodes, Statement{
			Cypher: mergeEntity,
			Params: map[string]any{
				"name":   name,
				"table":  src.StorageTableName(name),
				"master": deps.IsMaster(),
			},
		})

		assocs, _ := src.Associations(name)
		for _, a := range assocs {
			edges = append(edges, Statement{
				Cypher: mergeEdge,
				Params: map[string]any{
					"owner":       name,
					"target":      a.Target,
					"alias":       a.Name(),
					"type":        string(a.Type),
					"foreign_key": a.ForeignKey,
					"through":     a.Through,
				},
			})
		}
	}

	return append(nodes, edges...)
}
