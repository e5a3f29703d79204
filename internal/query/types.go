// Package query implements the filter/sort/skip/limit/project pipeline
// documents are evaluated against.
package query

import (
	"strings"

	"github.com/kartikbazzad/xlimdb/internal/document"
	xerrors "github.com/kartikbazzad/xlimdb/internal/errors"
)

// ComparisonOp is a single condition's comparison.
type ComparisonOp int

const (
	OpEq ComparisonOp = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpContains
	OpStartsWith
	OpEndsWith
	OpIn
	OpNotIn
)

// ParseComparisonOp accepts every alias the wire protocol allows.
func ParseComparisonOp(s string) (ComparisonOp, error) {
	switch s {
	case "=", "==", "eq":
		return OpEq, nil
	case "!=", "<>", "ne":
		return OpNe, nil
	case ">", "gt":
		return OpGt, nil
	case ">=", "gte":
		return OpGte, nil
	case "<", "lt":
		return OpLt, nil
	case "<=", "lte":
		return OpLte, nil
	case "contains":
		return OpContains, nil
	case "startsWith", "starts_with":
		return OpStartsWith, nil
	case "endsWith", "ends_with":
		return OpEndsWith, nil
	case "in":
		return OpIn, nil
	case "notIn", "not_in":
		return OpNotIn, nil
	default:
		return 0, xerrors.WrapKind(xerrors.KindQuery, "invalid comparison operator", xerrors.ErrInvalidQuery)
	}
}

// Apply evaluates the operator against a document field value (left) and
// the condition's literal (right).
func (op ComparisonOp) Apply(left, right interface{}) (bool, error) {
	switch op {
	case OpEq:
		return Equal(left, right), nil
	case OpNe:
		return !Equal(left, right), nil
	case OpGt:
		return Compare(left, right) > 0, nil
	case OpGte:
		return Compare(left, right) >= 0, nil
	case OpLt:
		return Compare(left, right) < 0, nil
	case OpLte:
		return Compare(left, right) <= 0, nil
	case OpContains:
		return applyContains(left, right)
	case OpStartsWith:
		return applyStartsWith(left, right)
	case OpEndsWith:
		return applyEndsWith(left, right)
	case OpIn:
		return applyIn(left, right)
	case OpNotIn:
		ok, err := applyIn(left, right)
		return !ok, err
	default:
		return false, xerrors.WrapKind(xerrors.KindQuery, "unknown comparison operator", xerrors.ErrInvalidQuery)
	}
}

func applyContains(left, right interface{}) (bool, error) {
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		if !ok {
			return false, xerrors.WrapKind(xerrors.KindQuery, "contains requires a string operand for a string field", xerrors.ErrInvalidQuery)
		}
		return strings.Contains(l, r), nil
	case []interface{}:
		for _, item := range l {
			if Equal(item, right) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, xerrors.WrapKind(xerrors.KindQuery, "contains operator can only be applied to strings and arrays", xerrors.ErrInvalidQuery)
	}
}

func applyStartsWith(left, right interface{}) (bool, error) {
	l, lok := left.(string)
	r, rok := right.(string)
	if !lok || !rok {
		return false, xerrors.WrapKind(xerrors.KindQuery, "startsWith operator can only be applied to strings", xerrors.ErrInvalidQuery)
	}
	return strings.HasPrefix(l, r), nil
}

func applyEndsWith(left, right interface{}) (bool, error) {
	l, lok := left.(string)
	r, rok := right.(string)
	if !lok || !rok {
		return false, xerrors.WrapKind(xerrors.KindQuery, "endsWith operator can only be applied to strings", xerrors.ErrInvalidQuery)
	}
	return strings.HasSuffix(l, r), nil
}

func applyIn(left, right interface{}) (bool, error) {
	arr, ok := right.([]interface{})
	if !ok {
		return false, xerrors.WrapKind(xerrors.KindQuery, "in operator requires an array as the right operand", xerrors.ErrInvalidQuery)
	}
	for _, item := range arr {
		if Equal(item, left) {
			return true, nil
		}
	}
	return false, nil
}

// LogicalOp combines two boolean condition results.
type LogicalOp int

const (
	LogicalAnd LogicalOp = iota
	LogicalOr
)

// ParseLogicalOp accepts "and"/"&&" and "or"/"||", case-insensitively.
func ParseLogicalOp(s string) (LogicalOp, error) {
	switch strings.ToLower(s) {
	case "and", "&&":
		return LogicalAnd, nil
	case "or", "||":
		return LogicalOr, nil
	default:
		return 0, xerrors.WrapKind(xerrors.KindQuery, "invalid logical operator", xerrors.ErrInvalidQuery)
	}
}

// Apply combines two boolean results with this operator.
func (op LogicalOp) Apply(left, right bool) bool {
	if op == LogicalAnd {
		return left && right
	}
	return left || right
}

// Condition tests one document field against a literal value.
type Condition struct {
	Field    string
	Operator ComparisonOp
	Value    interface{}
}

// Matches evaluates the condition against a document's data. A missing
// field never matches, matching every comparison operator uniformly.
func (c Condition) Matches(doc *document.Document) (bool, error) {
	v, ok := doc.Get(c.Field)
	if !ok {
		return false, nil
	}
	return c.Operator.Apply(v, c.Value)
}
