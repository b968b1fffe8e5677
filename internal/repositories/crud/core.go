// Package crud executes reads and mutations for any registered entity. Every call
// compiles its filters and relations into a fresh query plan; mutations resolve their
// target ids through the same read path before touching rows.
package crud

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/assets"
	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/queryplan"
	"github.com/Ramsey-B/fern/pkg/schema"
)

// Core runs CRUD operations against the entities of a registry.
type Core struct {
	db        database.DB
	registry  *schema.Registry
	assembler *queryplan.Assembler
	pager     *pagination.Engine
	assets    assets.Remover
	events    events.Publisher
	logger    ectologger.Logger
}

// NewCore creates a CRUD core. A nil remover or publisher disables that side effect.
func NewCore(db database.DB, registry *schema.Registry, pager *pagination.Engine, remover assets.Remover, publisher events.Publisher, logger ectologger.Logger) *Core {
	if remover == nil {
		remover = assets.Noop{}
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Core{
		db:        db,
		registry:  registry,
		assembler: queryplan.NewAssembler(registry),
		pager:     pager,
		assets:    remover,
		events:    publisher,
		logger:    logger,
	}
}

// ReadRequest selects the rows of one entity.
type ReadRequest struct {
	Entity string
	// ID or IDs restrict the rows by primary key.
	ID  any
	IDs []any
	// Filters are keyed by search field.
	Filters    map[string]any
	ExactMatch []string
	// RelReadKeys are dotted relation paths to include, e.g. "orders.items".
	RelReadKeys    []string
	OrderBy        string
	OrderDirection string
	Page           int
	PerPage        int
	ReadAll        bool
	IDsOnly        bool
}

func (r ReadRequest) hasCriteria() bool {
	return r.ID != nil || len(r.IDs) > 0 || len(r.Filters) > 0
}

// criteria keeps only the fields that decide which rows match.
func (r ReadRequest) criteria() ReadRequest {
	return ReadRequest{
		Entity:     r.Entity,
		ID:         r.ID,
		IDs:        r.IDs,
		Filters:    r.Filters,
		ExactMatch: r.ExactMatch,
	}
}

// plan compiles the request into a query plan. Filters decide the required joins,
// RelReadKeys add the optional ones.
func (c *Core) plan(e *schema.Entity, req ReadRequest) (*queryplan.Plan, error) {
	compiler, err := c.registry.FilterCompiler(e.Name)
	if err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(req.Filters, req.ExactMatch)
	if err != nil {
		return nil, err
	}

	where := compiled.Where
	if req.ID != nil {
		where = query.Merge(where, query.Where{Conditions: []query.Condition{
			{Field: e.PrimaryKey, Op: query.OpEq, Value: req.ID},
		}})
	}
	if len(req.IDs) > 0 {
		where = query.Merge(where, query.Where{Conditions: []query.Condition{
			{Field: e.PrimaryKey, Op: query.OpIn, Value: req.IDs},
		}})
	}

	order := e.Order()
	if req.OrderBy != "" {
		dir, ok := query.ParseDirection(req.OrderDirection)
		if !ok {
			return nil, ferrors.Newf(ferrors.CodeInvalidFieldString, "invalid order direction %q", req.OrderDirection).
				AddMeta("order_direction", req.OrderDirection)
		}
		order = []query.OrderItem{{Field: req.OrderBy, Direction: dir}}
	}

	return c.assembler.Assemble(queryplan.Request{
		Entity:      e.Name,
		Where:       where,
		Required:    compiled.Required,
		RelReadKeys: req.RelReadKeys,
		Order:       order,
	})
}

// resolveIDs returns every root id matching the criteria of req.
func (c *Core) resolveIDs(ctx context.Context, e *schema.Entity, req ReadRequest) ([]any, error) {
	crit := req.criteria()
	crit.ReadAll = true
	crit.IDsOnly = true
	res, err := c.readList(ctx, e, crit)
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

func quote(name string) string {
	return database.Quote(name)
}

// observe records the outcome of an operation. Call it deferred with a pointer to the
// named error result.
func observe(entity, operation string, start time.Time, err *error) {
	metrics.RecordOperation(entity, operation, *err, time.Since(start).Seconds())
}
