package crud

import (
	"context"
	"fmt"
	"time"

	"github.com/Ramsey-B/fern/pkg/assets"
	"github.com/Ramsey-B/fern/pkg/association"
	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const softDeleteColumn = "deleted_at"

// DeleteRequest deletes every record matching the embedded criteria.
type DeleteRequest struct {
	ReadRequest
	// CheckRelated rejects the whole delete when any matched record still has rows
	// in a hasOne or hasMany relation.
	CheckRelated bool
}

// Delete destroys the matching records and returns their ids. Guards run before any
// row is touched, so a rejected delete destroys nothing.
func (c *Core) Delete(ctx context.Context, req DeleteRequest) (ids []any, err error) {
	ctx, span := tracing.StartSpan(ctx, "crud.Core.Delete",
		attribute.String("entity", req.Entity),
		attribute.Bool("check_related", req.CheckRelated),
	)
	defer span.End()
	defer observe(req.Entity, "delete", time.Now(), &err)
	defer func() { tracing.RecordError(span, err) }()

	e, err := c.registry.MustEntity(req.Entity)
	if err != nil {
		return nil, err
	}
	if !req.hasCriteria() {
		return nil, ferrors.Newf(ferrors.CodeNoFiltersProvided, "delete of %s needs an id or filters", req.Entity)
	}

	err = database.WithTransaction(ctx, c.db, func(ctx context.Context) error {
		ids, err = c.resolveIDs(ctx, e, req.ReadRequest)
		if err != nil || len(ids) == 0 {
			return err
		}

		if req.CheckRelated {
			if err := c.checkRelated(ctx, e, ids); err != nil {
				return err
			}
		}
		if err := checkSystemCritical(e, ids); err != nil {
			return err
		}

		return c.destroy(ctx, e, ids)
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}

	if e.HasAssets {
		assets.Cleanup(ctx, c.assets, e.Name, ids, c.logger)
	}
	if err := c.events.Deleted(ctx, e.Name, ids); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("entity", e.Name).Warn("Failed to publish deleted events")
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"entity":  e.Name,
		"deleted": len(ids),
		"soft":    e.SoftDelete,
	}).Info("Deleted records")

	return ids, nil
}

// checkRelated reads ids with every hasOne and hasMany relation of e included and
// fails on the first record that has any.
func (c *Core) checkRelated(ctx context.Context, e *schema.Entity, ids []any) error {
	deps, ok := c.registry.Dependencies(e.Name)
	if !ok || !deps.IsMaster() {
		return nil
	}

	aliases := []string{}
	for _, a := range e.Associations {
		if a.Type == association.HasOne || a.Type == association.HasMany {
			aliases = append(aliases, a.Name())
		}
	}
	if len(aliases) == 0 {
		return nil
	}

	res, err := c.readList(ctx, e, ReadRequest{
		Entity:      e.Name,
		IDs:         ids,
		RelReadKeys: aliases,
		ReadAll:     true,
	})
	if err != nil {
		return err
	}

	for _, rec := range res.Results {
		for _, alias := range aliases {
			if !hasRelated(rec[alias]) {
				continue
			}
			metrics.GuardRejections.WithLabelValues(e.Name, "related_items").Inc()
			return ferrors.Newf(ferrors.CodeRelatedItemsExist,
				"%s %v still has related %s", e.Name, rec[e.PrimaryKey], alias).
				AddMeta("id", rec[e.PrimaryKey]).
				AddMeta("relation", alias)
		}
	}
	return nil
}

func hasRelated(v any) bool {
	switch related := v.(type) {
	case nil:
		return false
	case []query.Record:
		return len(related) > 0
	case query.Record:
		return related != nil
	}
	return true
}

func checkSystemCritical(e *schema.Entity, ids []any) error {
	for _, id := range ids {
		if e.IsSystemCritical(id) {
			metrics.GuardRejections.WithLabelValues(e.Name, "system_critical").Inc()
			return ferrors.Newf(ferrors.CodeSystemCritical, "%s %v is system critical and cannot be deleted", e.Name, id).
				AddMeta("id", id)
		}
	}
	return nil
}

// destroy soft deletes when the entity supports it, otherwise removes the rows.
func (c *Core) destroy(ctx context.Context, e *schema.Entity, ids []any) error {
	var (
		stmt string
		args []any
	)
	if e.SoftDelete {
		ub := database.NewUpdateBuilder()
		ub.Update(quote(e.Table))
		ub.Set(ub.Assign(quote(softDeleteColumn), time.Now().UTC()))
		ub.WhereIn(e.PrimaryKey, ids, ub.IsNull(quote(softDeleteColumn)))
		stmt, args = ub.Build()
	} else {
		db := database.NewDeleteBuilder()
		db.DeleteFrom(quote(e.Table))
		db.WhereIn(e.PrimaryKey, ids)
		stmt, args = db.Build()
	}

	if _, err := database.ExecutorFor(ctx, c.db).ExecContext(ctx, stmt, args...); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity": e.Name,
			"ids":    len(ids),
		}).Error("Failed to delete records")
		return fmt.Errorf("failed to delete %s: %w", e.Name, err)
	}
	return nil
}
