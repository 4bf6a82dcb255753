package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/util"
)

var datetimeFields = map[string]bool{
	"start_time": true,
	"end_time":   true,
}

// storedTimeLayout is fixed width and always UTC so that plain string
// comparison in SQL orders timestamps correctly.
const storedTimeLayout = "2006-01-02 15:04:05.000000000-07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// normalizeDateTime rewrites user supplied timestamps into the stored layout.
// Unparseable values are passed through unchanged.
func normalizeDateTime(value string) string {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.ParseInLocation(format, value, time.Local); err == nil {
			return formatTime(t)
		}
	}
	return value
}

func placeholders(values []string) (string, []interface{}) {
	marks := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		marks[i] = "?"
		args[i] = v
	}
	return strings.Join(marks, ", "), args
}

// BuildFilterClause renders one filter as a SQL condition. Field names must
// already be validated against an allow list.
func BuildFilterClause(f util.QueryFilter) (string, []interface{}) {
	value := f.Value
	if datetimeFields[f.Field] {
		value = normalizeDateTime(value)
	}

	comparisons := map[util.QueryOperator]string{
		util.OpEq:  "=",
		util.OpNe:  "!=",
		util.OpGt:  ">",
		util.OpGte: ">=",
		util.OpLt:  "<",
		util.OpLte: "<=",
	}
	if op, ok := comparisons[f.Operator]; ok {
		return fmt.Sprintf("%s %s ?", f.Field, op), []interface{}{value}
	}

	switch f.Operator {
	case util.OpIsNull:
		return fmt.Sprintf("%s IS NULL", f.Field), nil
	case util.OpIsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", f.Field), nil
	case util.OpIn, util.OpNin:
		if len(f.Values) == 0 {
			return "", nil
		}
		marks, args := placeholders(f.Values)
		keyword := "IN"
		if f.Operator == util.OpNin {
			keyword = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", f.Field, keyword, marks), args
	default:
		return "", nil
	}
}

// ApplyFilters appends each filter as an AND condition.
func ApplyFilters(query string, args []interface{}, filters []util.QueryFilter) (string, []interface{}) {
	for _, f := range filters {
		clause, filterArgs := BuildFilterClause(f)
		if clause != "" {
			query += " AND " + clause
			args = append(args, filterArgs...)
		}
	}
	return query, args
}

// ApplyOrdering appends ORDER BY, falling back to defaultOrder.
func ApplyOrdering(query string, orders []util.OrderClause, defaultOrder string) string {
	if len(orders) == 0 {
		return query + " ORDER BY " + defaultOrder
	}

	clauses := make([]string, 0, len(orders))
	for _, o := range orders {
		direction := "ASC"
		if o.Direction == util.OrderDesc {
			direction = "DESC"
		}
		clauses = append(clauses, o.Field+" "+direction)
	}
	return query + " ORDER BY " + strings.Join(clauses, ", ")
}

// ApplyPagination appends LIMIT and OFFSET for 1-based pages.
func ApplyPagination(query string, args []interface{}, page, perPage int) (string, []interface{}) {
	if perPage <= 0 {
		return query, args
	}

	query += " LIMIT ?"
	args = append(args, perPage)
	if page > 1 {
		query += " OFFSET ?"
		args = append(args, (page-1)*perPage)
	}
	return query, args
}
