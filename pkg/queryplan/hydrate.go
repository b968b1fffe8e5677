package queryplan

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/query"
)

// Hydrate folds fanned out rows into one record per root primary key, in first seen
// order. Many relations become []query.Record de-duplicated by primary key; single
// relations become a query.Record or nil.
func Hydrate(plan *Plan, rows []map[string]any) []query.Record {
	records := []query.Record{}
	byKey := map[string]query.Record{}

	for _, raw := range rows {
		row := normalizeRow(raw)

		rootKey := identity(row[plan.Table.PrimaryKey])
		rec, ok := byKey[rootKey]
		if !ok {
			rec = query.Record{}
			for k, v := range row {
				if !strings.Contains(k, ".") {
					rec[k] = v
				}
			}
			initRelations(rec, plan.Joins)
			byKey[rootKey] = rec
			records = append(records, rec)
		}

		attach(rec, rootKey, nil, plan.Joins, row, byKey)
	}

	return records
}

// RootIDs returns the distinct root primary keys of rows in first seen order.
func RootIDs(plan *Plan, rows []map[string]any) []any {
	ids := []any{}
	seen := map[string]bool{}
	for _, raw := range rows {
		id := normalize(raw[plan.Table.PrimaryKey])
		key := identity(id)
		if seen[key] {
			continue
		}
		seen[key] = true
		ids = append(ids, id)
	}
	return ids
}

// NormalizeRows converts driver rows into records without any relation folding.
func NormalizeRows(rows []map[string]any) []query.Record {
	out := make([]query.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, query.Record(normalizeRow(row)))
	}
	return out
}

func attach(parent query.Record, parentKey string, path []string, nodes []*JoinNode, row map[string]any, byKey map[string]query.Record) {
	for _, node := range nodes {
		np := append(append([]string{}, path...), node.Alias)
		prefix := strings.Join(np, ".") + "."

		pk, ok := row[prefix+node.Table.PrimaryKey]
		if !ok || pk == nil {
			continue
		}

		key := parentKey + "/" + node.Alias + ":" + identity(pk)
		child, seen := byKey[key]
		if !seen {
			child = query.Record{}
			for k, v := range row {
				if rest, ok := strings.CutPrefix(k, prefix); ok && !strings.Contains(rest, ".") {
					child[rest] = v
				}
			}
			initRelations(child, node.Children)
			byKey[key] = child

			if node.Association.Type.Many() {
				list, _ := parent[node.Alias].([]query.Record)
				parent[node.Alias] = append(list, child)
			} else if parent[node.Alias] == nil {
				parent[node.Alias] = child
			}
		}

		attach(child, key, np, node.Children, row, byKey)
	}
}

func initRelations(rec query.Record, nodes []*JoinNode) {
	for _, n := range nodes {
		if n.Association.Type.Many() {
			rec[n.Alias] = []query.Record{}
		} else {
			rec[n.Alias] = nil
		}
	}
}

func normalizeRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = normalize(v)
	}
	return out
}

// lib/pq scans text columns into []byte when the destination is any.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func identity(v any) string {
	return fmt.Sprintf("%T:%v", v, v)
}
