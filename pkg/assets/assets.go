// Package assets removes the external files stored for a record. Removal runs after a
// destructive operation has committed, so failures are logged and never returned.
package assets

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentRemovals = 8

// Remover deletes every asset stored for one record.
type Remover interface {
	Backend() string
	Remove(ctx context.Context, entity string, id any) error
}

// Key is the storage prefix of a record's assets.
func Key(entity string, id any) string {
	return fmt.Sprintf("%s/%v", entity, id)
}

// Cleanup removes the assets of every id concurrently. Failures are logged at warn
// level and counted, never returned.
func Cleanup(ctx context.Context, remover Remover, entity string, ids []any, logger ectologger.Logger) {
	if remover == nil || len(ids) == 0 {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "assets.Cleanup",
		attribute.String("entity", entity),
		attribute.String("backend", remover.Backend()),
		attribute.Int("records", len(ids)),
	)
	defer span.End()

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(maxConcurrentRemovals)
	for _, id := range ids {
		g.Go(func() error {
			if err := remover.Remove(gctx, entity, id); err != nil {
				metrics.AssetCleanupFailures.WithLabelValues(entity, remover.Backend()).Inc()
				logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"entity":  entity,
					"id":      id,
					"backend": remover.Backend(),
				}).Warn("Failed to remove record assets")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Noop removes nothing.
type Noop struct{}

func (Noop) Backend() string                           { return "none" }
func (Noop) Remove(context.Context, string, any) error { return nil }
