package database

import (
	"github.com/huandu/go-sqlbuilder"
)

// Default fills a column left out of one row of a multi-row insert.
var Default = sqlbuilder.Raw("DEFAULT")

// Quote quotes a PostgreSQL identifier. Dotted join aliases such as "user->orders"
// are quoted whole.
func Quote(name string) string {
	return sqlbuilder.PostgreSQL.Quote(name)
}

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{
		sqlbuilder.PostgreSQL.NewInsertBuilder(),
	}
}

// Rows adds one VALUES tuple per row, ordered by columns. A column missing from a row
// is written as DEFAULT. Column names are quoted.
func (ib *InsertBuilder) Rows(columns []string, rows []map[string]any) *InsertBuilder {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = Quote(col)
	}
	ib.Cols(quoted...)
	for _, row := range rows {
		values := make([]any, len(columns))
		for i, col := range columns {
			v, ok := row[col]
			if !ok {
				values[i] = Default
				continue
			}
			values[i] = v
		}
		ib.Values(values...)
	}
	return ib
}

type UpdateBuilder struct {
	*sqlbuilder.UpdateBuilder
}

func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{sqlbuilder.PostgreSQL.NewUpdateBuilder()}
}

type DeleteBuilder struct {
	*sqlbuilder.DeleteBuilder
}

func NewDeleteBuilder() *DeleteBuilder {
	return &DeleteBuilder{sqlbuilder.PostgreSQL.NewDeleteBuilder()}
}

// WhereIn restricts an update to rows whose column is one of ids.
func (ub *UpdateBuilder) WhereIn(column string, ids []any, extra ...string) *UpdateBuilder {
	ub.Where(append([]string{ub.In(Quote(column), ids...)}, extra...)...)
	return ub
}

// WhereIn restricts a delete to rows whose column is one of ids.
func (db *DeleteBuilder) WhereIn(column string, ids []any) *DeleteBuilder {
	db.Where(db.In(Quote(column), ids...))
	return db
}

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{sqlbuilder.PostgreSQL.NewSelectBuilder()}
}
