package store

import (
	"database/sql"
	"strings"
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// int64sToArgs converts []int64 to []any for use with database/sql.
func int64sToArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// queryIDs runs a query selecting a single integer column.
func queryIDs(q querier, query string, args ...any) ([]int64, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
