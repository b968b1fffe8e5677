// Package pagination executes assembled plans as pages. Plans with joins are paged by
// root id so fan-out rows never skew the window.
package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/queryplan"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

type Request struct {
	Page    int
	PerPage int
	// ReadAll ignores Page and PerPage and returns every match.
	ReadAll bool
	// IDsOnly returns the root ids of the page instead of rows.
	IDsOnly bool
}

type Result struct {
	Results    []query.Record `json:"results"`
	IDs        []any          `json:"ids,omitempty"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	TotalPages int            `json:"total_pages"`
	More       bool           `json:"more"`
}

type Engine struct {
	logger         ectologger.Logger
	defaultPerPage int
	maxPerPage     int
}

func NewEngine(logger ectologger.Logger, defaultPerPage, maxPerPage int) *Engine {
	if defaultPerPage < 1 {
		defaultPerPage = DefaultPerPage
	}
	if maxPerPage < defaultPerPage {
		maxPerPage = defaultPerPage
	}
	return &Engine{
		logger:         logger,
		defaultPerPage: defaultPerPage,
		maxPerPage:     maxPerPage,
	}
}

// Paginate runs plan against exec and returns the requested page.
func (e *Engine) Paginate(ctx context.Context, exec database.Executor, plan *queryplan.Plan, req Request) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "pagination.Engine.Paginate",
		attribute.String("entity", plan.Entity),
		attribute.Bool("joins", plan.HasJoins()),
		attribute.Bool("read_all", req.ReadAll),
	)
	defer span.End()

	var (
		res *Result
		err error
	)
	switch {
	case req.ReadAll:
		res, err = e.readAll(ctx, exec, plan, req)
	case plan.HasJoins():
		res, err = e.byIDs(ctx, exec, plan, req)
	default:
		res, err = e.window(ctx, exec, plan, req)
	}
	tracing.RecordError(span, err)
	return res, err
}

func (e *Engine) readAll(ctx context.Context, exec database.Executor, plan *queryplan.Plan, req Request) (*Result, error) {
	rows, err := e.query(ctx, exec, plan, "read_all", queryplan.SelectOptions{IDsOnly: req.IDsOnly})
	if err != nil {
		return nil, err
	}

	res := &Result{Page: 1, TotalPages: 1}
	if req.IDsOnly {
		res.IDs = queryplan.RootIDs(plan, rows)
		res.PerPage = len(res.IDs)
		return res, nil
	}
	res.Results = queryplan.Hydrate(plan, rows)
	res.PerPage = len(res.Results)
	return res, nil
}

// window pages a join free plan with a count and a perPage+1 lookahead row.
func (e *Engine) window(ctx context.Context, exec database.Executor, plan *queryplan.Plan, req Request) (*Result, error) {
	perPage := e.perPage(req.PerPage)

	countSQL, countArgs := queryplan.Count(plan)
	var total int
	start := time.Now()
	if err := exec.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("entity", plan.Entity).Error("Failed to count records")
		return nil, fmt.Errorf("failed to count %s: %w", plan.Entity, err)
	}
	metrics.RecordQuery(plan.Entity, "count", time.Since(start).Seconds())

	totalPages := pages(total, perPage)
	page := clampPage(req.Page, totalPages)
	res := &Result{Page: page, PerPage: perPage, TotalPages: totalPages}
	if total == 0 {
		res.Results = []query.Record{}
		if req.IDsOnly {
			res.Results, res.IDs = nil, []any{}
		}
		return res, nil
	}

	rows, err := e.query(ctx, exec, plan, "window", queryplan.SelectOptions{
		IDsOnly: req.IDsOnly,
		Limit:   perPage + 1,
		Offset:  (page - 1) * perPage,
	})
	if err != nil {
		return nil, err
	}

	if len(rows) > perPage {
		rows = rows[:perPage]
		res.More = true
	}

	if req.IDsOnly {
		res.IDs = queryplan.RootIDs(plan, rows)
		return res, nil
	}
	res.Results = queryplan.Hydrate(plan, rows)
	return res, nil
}

// byIDs pages a plan with joins. The first pass collects every matching root id in
// order, the second fetches full rows for the ids of the requested page.
func (e *Engine) byIDs(ctx context.Context, exec database.Executor, plan *queryplan.Plan, req Request) (*Result, error) {
	metrics.TwoPassPages.WithLabelValues(plan.Entity).Inc()
	perPage := e.perPage(req.PerPage)

	idRows, err := e.query(ctx, exec, plan, "ids", queryplan.SelectOptions{IDsOnly: true})
	if err != nil {
		return nil, err
	}
	ids := queryplan.RootIDs(plan, idRows)

	total := len(ids)
	totalPages := pages(total, perPage)
	page := clampPage(req.Page, totalPages)
	offset := (page - 1) * perPage
	end := min(offset+perPage, total)
	window := []any{}
	if offset < total {
		window = ids[offset:end]
	}

	res := &Result{
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		More:       total > offset+perPage,
	}

	if req.IDsOnly {
		res.IDs = window
		return res, nil
	}
	if len(window) == 0 {
		res.Results = []query.Record{}
		return res, nil
	}

	rows, err := e.query(ctx, exec, plan, "rows", queryplan.SelectOptions{RootIDs: window})
	if err != nil {
		return nil, err
	}
	res.Results = inIDOrder(plan, queryplan.Hydrate(plan, rows), window)
	return res, nil
}

func (e *Engine) query(ctx context.Context, exec database.Executor, plan *queryplan.Plan, name string, opts queryplan.SelectOptions) ([]map[string]any, error) {
	sql, args := queryplan.Select(plan, opts)

	start := time.Now()
	rows, err := database.QueryMaps(ctx, exec, sql, args...)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity": plan.Entity,
			"query":  name,
		}).Error("Failed to read records")
		return nil, fmt.Errorf("failed to read %s: %w", plan.Entity, err)
	}
	metrics.RecordQuery(plan.Entity, name, time.Since(start).Seconds())

	return rows, nil
}

func (e *Engine) perPage(requested int) int {
	if requested < 1 {
		return e.defaultPerPage
	}
	if requested > e.maxPerPage {
		return e.maxPerPage
	}
	return requested
}

func pages(total, perPage int) int {
	return (total + perPage - 1) / perPage
}

// clampPage keeps page within [1, totalPages]. An empty result is page 1.
func clampPage(page, totalPages int) int {
	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	if totalPages == 0 {
		page = 1
	}
	return page
}

func inIDOrder(plan *queryplan.Plan, records []query.Record, ids []any) []query.Record {
	byID := make(map[string]query.Record, len(records))
	for _, r := range records {
		byID[fmt.Sprint(r[plan.Table.PrimaryKey])] = r
	}
	out := make([]query.Record, 0, len(records))
	for _, id := range ids {
		if r, ok := byID[fmt.Sprint(id)]; ok {
			out = append(out, r)
		}
	}
	return out
}
