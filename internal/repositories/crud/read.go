package crud

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Read returns the first record matching the request, or nil when nothing matches.
func (c *Core) Read(ctx context.Context, req ReadRequest) (rec query.Record, err error) {
	ctx, span := tracing.StartSpan(ctx, "crud.Core.Read", attribute.String("entity", req.Entity))
	defer span.End()
	defer observe(req.Entity, "read", time.Now(), &err)
	defer func() { tracing.RecordError(span, err) }()

	e, err := c.registry.MustEntity(req.Entity)
	if err != nil {
		return nil, err
	}
	if !req.hasCriteria() {
		return nil, ferrors.Newf(ferrors.CodeNoFiltersProvided, "read of %s needs an id or filters", req.Entity)
	}

	req.Page, req.PerPage, req.ReadAll, req.IDsOnly = 1, 1, false, false
	res, err := c.readList(ctx, e, req)
	if err != nil {
		return nil, err
	}
	if len(res.Results) == 0 {
		return nil, nil
	}
	return res.Results[0], nil
}

// ReadList returns one page of matching records, or every match with ReadAll.
func (c *Core) ReadList(ctx context.Context, req ReadRequest) (res *pagination.Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "crud.Core.ReadList",
		attribute.String("entity", req.Entity),
		attribute.Int("page", req.Page),
		attribute.Int("per_page", req.PerPage),
	)
	defer span.End()
	defer observe(req.Entity, "read_list", time.Now(), &err)
	defer func() { tracing.RecordError(span, err) }()

	e, err := c.registry.MustEntity(req.Entity)
	if err != nil {
		return nil, err
	}
	return c.readList(ctx, e, req)
}

func (c *Core) readList(ctx context.Context, e *schema.Entity, req ReadRequest) (*pagination.Result, error) {
	plan, err := c.plan(e, req)
	if err != nil {
		return nil, err
	}
	return c.pager.Paginate(ctx, database.ExecutorFor(ctx, c.db), plan, pagination.Request{
		Page:    req.Page,
		PerPage: req.PerPage,
		ReadAll: req.ReadAll,
		IDsOnly: req.IDsOnly,
	})
}
