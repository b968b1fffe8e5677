package crud

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/queryplan"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// UpdateRequest updates every record matching the embedded criteria with Data.
type UpdateRequest struct {
	ReadRequest
	Data map[string]any
}

// UpsertResult lists what a bulk upsert did.
type UpsertResult struct {
	Created []query.Record `json:"created"`
	Updated []any          `json:"updated"`
}

// Create inserts one record and returns it as stored.
func (c *Core) Create(ctx context.Context, entity string, data map[string]any) (rec query.Record, err error) {
	ctx, span := tracing.StartSpan(ctx, "crud.Core.Create", attribute.String("entity", entity))
	defer span.End()
	defer observe(entity, "create", time.Now(), &err)
	defer func() { tracing.RecordError(span, err) }()

	e, err := c.registry.MustEntity(entity)
	if err != nil {
		return nil, err
	}

	var created []query.Record
	err = database.WithTransaction(ctx, c.db, func(ctx context.Context) error {
		created, err = c.insert(ctx, e, []map[string]any{data})
		return err
	})
	if err != nil {
		return nil, err
	}

	c.publishCreated(ctx, e, created)
	if len(created) == 0 {
		return nil, nil
	}
	return created[0], nil
}

// BulkCreate inserts every row in one statement.
func (c *Core) BulkCreate(ctx context.Context, entity string, rows []map[string]any) (recs []query.Record, err error) {
	ctx, span := tracing.StartSpan(ctx, "crud.Core.BulkCreate",
		attribute.String("entity", entity),
		attribute.Int("rows", len(rows)),
	)
	defer span.End()
	defer observe(entity, "bulk_create", time.Now(), &err)
	defer func() { tracing.RecordError(span, err) }()

	e, err := c.registry.MustEntity(entity)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ferrors.Newf(ferrors.CodeInvalidDbObjectsArray, "bulk create of %s needs at least one row", entity)
	}

	err = database.WithTransaction(ctx, c.db, func(ctx context.Context) error {
		recs, err = c.insert(ctx, e, rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.publishCreated(ctx, e, recs)
	return recs, nil
}

// Update writes Data to every matching record and returns the ids it matched. Keys
// outside the entity allow-list are dropped; an empty payload changes nothing.
func (c *Core) Update(ctx context.Context, req UpdateRequest) (ids []any, err error) {
	ctx, span := tracing.StartSpan(ctx, "crud.Core.Update", attribute.String("entity", req.Entity))
	defer span.End()
	defer observe(req.Entity, "update", time.Now(), &err)
	defer func() { tracing.RecordError(span, err) }()

	e, err := c.registry.MustEntity(req.Entity)
	if err != nil {
		return nil, err
	}
	if !req.hasCriteria() {
		return nil, ferrors.Newf(ferrors.CodeCannotUpdateWithoutCriteria, "update of %s needs an id or filters", e.Name)
	}

	err = database.WithTransaction(ctx, c.db, func(ctx context.Context) error {
		ids, err = c.update(ctx, e, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.publishUpdated(ctx, e, ids)
	return ids, nil
}

// BulkUpsert updates rows carrying a primary key one by one and inserts the rest in a
// single statement, all in one transaction.
func (c *Core) BulkUpsert(ctx context.Context, entity string, rows []map[string]any) (res *UpsertResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "crud.Core.BulkUpsert",
		attribute.String("entity", entity),
		attribute.Int("rows", len(rows)),
	)
	defer span.End()
	defer observe(entity, "bulk_upsert", time.Now(), &err)
	defer func() { tracing.RecordError(span, err) }()

	e, err := c.registry.MustEntity(entity)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ferrors.Newf(ferrors.CodeInvalidDbObjectsArray, "bulk upsert of %s needs at least one row", entity)
	}

	existing, fresh := partition(e, rows)
	res = &UpsertResult{Created: []query.Record{}, Updated: []any{}}

	err = database.WithTransaction(ctx, c.db, func(ctx context.Context) error {
		for _, row := range existing {
			ids, err := c.update(ctx, e, UpdateRequest{
				ReadRequest: ReadRequest{Entity: e.Name, ID: row[e.PrimaryKey]},
				Data:        row,
			})
			if err != nil {
				return err
			}
			res.Updated = append(res.Updated, ids...)
		}

		if len(fresh) > 0 {
			created, err := c.insert(ctx, e, fresh)
			if err != nil {
				return err
			}
			res.Created = created
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.publishUpdated(ctx, e, res.Updated)
	c.publishCreated(ctx, e, res.Created)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"entity":  e.Name,
		"updated": len(res.Updated),
		"created": len(res.Created),
	}).Info("Upserted records")

	return res, nil
}

func partition(e *schema.Entity, rows []map[string]any) (existing, fresh []map[string]any) {
	for _, row := range rows {
		if row[e.PrimaryKey] != nil {
			existing = append(existing, row)
			continue
		}
		fresh = append(fresh, row)
	}
	return existing, fresh
}

func (c *Core) insert(ctx context.Context, e *schema.Entity, rows []map[string]any) ([]query.Record, error) {
	rows = withoutNullKey(e, rows)
	columns, err := insertColumns(e, rows)
	if err != nil {
		return nil, err
	}

	exec := database.ExecutorFor(ctx, c.db)

	// a row set without columns can only be written as DEFAULT VALUES, one per row
	if len(columns) == 0 {
		stmt := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", quote(e.Table))
		out := make([]query.Record, 0, len(rows))
		for range rows {
			recs, err := c.returning(ctx, exec, e, stmt)
			if err != nil {
				return nil, err
			}
			out = append(out, recs...)
		}
		return out, nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(quote(e.Table))
	ib.Rows(columns, rows)
	ib.Returning("*")

	stmt, args := ib.Build()
	return c.returning(ctx, exec, e, stmt, args...)
}

// withoutNullKey drops an explicit null primary key so the column default applies.
// Rows are copied, never modified in place.
func withoutNullKey(e *schema.Entity, rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		if v, ok := row[e.PrimaryKey]; !ok || v != nil {
			out[i] = row
			continue
		}
		clean := make(map[string]any, len(row)-1)
		for k, v := range row {
			if k != e.PrimaryKey {
				clean[k] = v
			}
		}
		out[i] = clean
	}
	return out
}

func (c *Core) returning(ctx context.Context, exec database.Executor, e *schema.Entity, stmt string, args ...any) ([]query.Record, error) {
	rows, err := database.QueryMaps(ctx, exec, stmt, args...)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("entity", e.Name).Error("Failed to insert records")
		return nil, fmt.Errorf("failed to insert %s: %w", e.Name, err)
	}
	return queryplan.NormalizeRows(rows), nil
}

// insertColumns returns the union of row keys in first seen order after rejecting
// keys that are not fields of e.
func insertColumns(e *schema.Entity, rows []map[string]any) ([]string, error) {
	columns := []string{}
	seen := map[string]bool{}
	for i, row := range rows {
		for _, key := range sortedKeys(row) {
			if !e.HasField(key) {
				return nil, ferrors.Newf(ferrors.CodeInvalidFieldString, "%s has no field %q", e.Name, key).
					AddMeta("field", key).
					AddMeta("row", i)
			}
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	return columns, nil
}

func (c *Core) update(ctx context.Context, e *schema.Entity, req UpdateRequest) ([]any, error) {
	if !req.hasCriteria() {
		return nil, ferrors.Newf(ferrors.CodeCannotUpdateWithoutCriteria, "update of %s needs an id or filters", e.Name)
	}

	values, err := updatable(e, req.Data)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return []any{}, nil
	}

	req.Entity = e.Name
	ids, err := c.resolveIDs(ctx, e, req.ReadRequest)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update(quote(e.Table))
	assignments := make([]string, 0, len(values))
	for _, key := range sortedKeys(values) {
		assignments = append(assignments, ub.Assign(quote(key), values[key]))
	}
	ub.Set(assignments...)
	ub.WhereIn(e.PrimaryKey, ids)

	stmt, args := ub.Build()
	if _, err := database.ExecutorFor(ctx, c.db).ExecContext(ctx, stmt, args...); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity": e.Name,
			"ids":    len(ids),
		}).Error("Failed to update records")
		return nil, fmt.Errorf("failed to update %s: %w", e.Name, err)
	}

	return ids, nil
}

// updatable filters data down to the fields an update may write. Without an allow-list
// an unknown field is an error; with one it is dropped.
func updatable(e *schema.Entity, data map[string]any) (map[string]any, error) {
	values := map[string]any{}
	for key, value := range data {
		if key == e.PrimaryKey {
			continue
		}
		if len(e.UpdatableFields) == 0 && !e.HasField(key) {
			return nil, ferrors.Newf(ferrors.CodeInvalidFieldString, "%s has no field %q", e.Name, key).
				AddMeta("field", key)
		}
		if e.Updatable(key) {
			values[key] = value
		}
	}
	return values, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Core) publishCreated(ctx context.Context, e *schema.Entity, recs []query.Record) {
	if len(recs) == 0 {
		return
	}
	if err := c.events.Created(ctx, e.Name, e.PrimaryKey, recs); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("entity", e.Name).Warn("Failed to publish created events")
	}
}

func (c *Core) publishUpdated(ctx context.Context, e *schema.Entity, ids []any) {
	if len(ids) == 0 {
		return
	}
	if err := c.events.Updated(ctx, e.Name, ids); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("entity", e.Name).Warn("Failed to publish updated events")
	}
}
