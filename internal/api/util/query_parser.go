package util

import (
	"fmt"
	"slices"
	"strings"
)

// QueryOperator is a comparison in a list filter.
type QueryOperator string

const (
	OpEq        QueryOperator = "eq"
	OpNe        QueryOperator = "ne"
	OpGt        QueryOperator = "gt"
	OpGte       QueryOperator = "gte"
	OpLt        QueryOperator = "lt"
	OpLte       QueryOperator = "lte"
	OpIn        QueryOperator = "in"
	OpNin       QueryOperator = "nin"
	OpIsNull    QueryOperator = "isnull"
	OpIsNotNull QueryOperator = "isnotnull"
)

// IsList reports whether the operator takes a value list.
func (op QueryOperator) IsList() bool {
	return op == OpIn || op == OpNin
}

// IsNullCheck reports whether the operator takes no value at all.
func (op QueryOperator) IsNullCheck() bool {
	return op == OpIsNull || op == OpIsNotNull
}

// QueryFilter is one condition. Value holds the operand of scalar
// operators, Values the operands of in/nin.
type QueryFilter struct {
	Field    string
	Operator QueryOperator
	Value    string
	Values   []string
}

type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

type OrderClause struct {
	Field     string
	Direction OrderDirection
}

var operators = []QueryOperator{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin, OpIsNull, OpIsNotNull}

// ParseQueryString parses the query parameter of list endpoints:
//
//	field|value              equality
//	field|isnull             null checks (also isnotnull)
//	field|operator|value     explicit operator
//	field|in|a,b,c           list operators (also nin)
//
// Conditions are comma-separated. A comma-separated piece without a '|'
// continues the value of the condition before it, which is how in/nin
// lists and values containing commas are written.
func ParseQueryString(queryStr string) ([]QueryFilter, error) {
	clauses, err := splitClauses(queryStr)
	if err != nil {
		return nil, err
	}

	filters := make([]QueryFilter, 0, len(clauses))
	for _, clause := range clauses {
		filter, err := parseClause(clause)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)
	}
	return filters, nil
}

// splitClauses groups comma-separated pieces so that each clause starts at
// a piece containing '|'.
func splitClauses(queryStr string) ([]string, error) {
	var clauses []string
	for _, piece := range strings.Split(queryStr, ",") {
		if strings.Contains(piece, "|") {
			clauses = append(clauses, strings.TrimSpace(piece))
			continue
		}
		if strings.TrimSpace(piece) == "" {
			continue
		}
		if len(clauses) == 0 {
			return nil, fmt.Errorf("invalid query format: %s (expected field|value or field|operator|value)", strings.TrimSpace(piece))
		}
		clauses[len(clauses)-1] += "," + piece
	}
	return clauses, nil
}

func parseClause(clause string) (QueryFilter, error) {
	parts := strings.Split(clause, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if parts[0] == "" {
		return QueryFilter{}, fmt.Errorf("invalid query format: %s (missing field)", clause)
	}

	switch len(parts) {
	case 2:
		if op := QueryOperator(strings.ToLower(parts[1])); op.IsNullCheck() {
			return QueryFilter{Field: parts[0], Operator: op}, nil
		}
		return QueryFilter{Field: parts[0], Operator: OpEq, Value: parts[1]}, nil

	case 3:
		op := QueryOperator(strings.ToLower(parts[1]))
		if !slices.Contains(operators, op) {
			return QueryFilter{}, fmt.Errorf("invalid operator: %s", parts[1])
		}
		filter := QueryFilter{Field: parts[0], Operator: op}
		switch {
		case op.IsList():
			filter.Values = splitValues(parts[2])
			if len(filter.Values) == 0 {
				return QueryFilter{}, fmt.Errorf("operator %s needs at least one value: %s", op, clause)
			}
		case op.IsNullCheck():
			// a trailing value is ignored
		default:
			filter.Value = parts[2]
		}
		return filter, nil

	default:
		return QueryFilter{}, fmt.Errorf("invalid query format: %s (expected field|value or field|operator|value)", clause)
	}
}

func splitValues(list string) []string {
	var values []string
	for _, v := range strings.Split(list, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// ParseOrderString parses field|direction clauses, comma-separated.
func ParseOrderString(orderStr string) ([]OrderClause, error) {
	var orders []OrderClause
	for _, pair := range strings.Split(orderStr, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		field, dir, ok := strings.Cut(pair, "|")
		if !ok || field == "" || strings.Contains(dir, "|") {
			return nil, fmt.Errorf("invalid order format: %s (expected field|direction)", pair)
		}

		direction := OrderDirection(strings.ToLower(strings.TrimSpace(dir)))
		if direction != OrderAsc && direction != OrderDesc {
			return nil, fmt.Errorf("invalid order direction: %s (expected asc or desc)", dir)
		}
		orders = append(orders, OrderClause{Field: strings.TrimSpace(field), Direction: direction})
	}
	return orders, nil
}

// ValidateFilterFields rejects filters on fields outside allowedFields.
func ValidateFilterFields(filters []QueryFilter, allowedFields []string) error {
	for _, f := range filters {
		if !slices.Contains(allowedFields, f.Field) {
			return fmt.Errorf("invalid query field: %s (valid fields: %s)", f.Field, strings.Join(allowedFields, ", "))
		}
	}
	return nil
}

// ValidateOrderFields rejects ordering by fields outside allowedFields.
func ValidateOrderFields(orders []OrderClause, allowedFields []string) error {
	for _, o := range orders {
		if !slices.Contains(allowedFields, o.Field) {
			return fmt.Errorf("invalid order field: %s (valid fields: %s)", o.Field, strings.Join(allowedFields, ", "))
		}
	}
	return nil
}
