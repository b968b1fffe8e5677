// Package seed loads YAML row files and inserts them masters first.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"gopkg.in/yaml.v3"
)

// Creator inserts rows of one entity.
type Creator interface {
	BulkCreate(ctx context.Context, entity string, rows []map[string]any) ([]query.Record, error)
}

// Seeder reads "<entity>.yaml" files from a directory. Each file holds a YAML list of
// rows.
type Seeder struct {
	db      database.DB
	creator Creator
	logger  ectologger.Logger
}

func NewSeeder(db database.DB, creator Creator, logger ectologger.Logger) *Seeder {
	return &Seeder{
		db:      db,
		creator: creator,
		logger:  logger,
	}
}

// Run inserts the files of dir in order inside one transaction and returns the
// number of rows inserted per entity. Entities without a file are skipped.
func (s *Seeder) Run(ctx context.Context, dir string, order []string) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "seed.Seeder.Run")
	defer span.End()

	files := map[string][]map[string]any{}
	for _, entity := range order {
		rows, err := readRows(filepath.Join(dir, entity+".yaml"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		files[entity] = rows
	}

	counts := map[string]int{}
	err := database.WithTransaction(ctx, s.db, func(ctx context.Context) error {
		for _, entity := range order {
			rows, ok := files[entity]
			if !ok || len(rows) == 0 {
				continue
			}
			created, err := s.creator.BulkCreate(ctx, entity, rows)
			if err != nil {
				return fmt.Errorf("failed to seed %s: %w", entity, err)
			}
			counts[entity] = len(created)
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"entity": entity,
				"rows":   len(created),
			}).Info("Seeded entity")
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		s.logger.WithContext(ctx).WithError(err).Error("Seeding failed")
		return nil, err
	}

	return counts, nil
}

func readRows(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return rows, nil
}
