// Package graph exports the entity association graph to Memgraph/Neo4j over Bolt.
package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Database is empty for Memgraph, which has a single database.
	Database string
}

func (c Config) uri() string {
	return fmt.Sprintf("bolt://%s:%d", c.Host, c.Port)
}

// Client writes statement batches over one Bolt driver.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   ectologger.Logger
}

// Summary totals the write counters of an applied batch.
type Summary struct {
	Statements           int
	NodesCreated         int
	RelationshipsCreated int
	PropertiesSet        int
}

func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.uri(), auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver for %s: %w", cfg.uri(), err)
	}
	return &Client{driver: driver, database: cfg.Database, logger: logger}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Apply runs statements in order inside one write transaction. Either every
// statement is committed or none is.
func (c *Client) Apply(ctx context.Context, statements []Statement) (Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Apply", attribute.Int("statements", len(statements)))
	defer span.End()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.database,
	})
	defer session.Close(ctx)

	sum, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		sum := Summary{}
		for i, s := range statements {
			result, err := tx.Run(ctx, s.Cypher, s.Params)
			if err != nil {
				return nil, fmt.Errorf("statement %d: %w", i, err)
			}
			rs, err := result.Consume(ctx)
			if err != nil {
				return nil, fmt.Errorf("statement %d: %w", i, err)
			}
			counters := rs.Counters()
			sum.Statements++
			sum.NodesCreated += counters.NodesCreated()
			sum.RelationshipsCreated += counters.RelationshipsCreated()
			sum.PropertiesSet += counters.PropertiesSet()
		}
		return sum, nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return Summary{}, fmt.Errorf("failed to apply graph statements: %w", err)
	}
	return sum.(Summary), nil
}
