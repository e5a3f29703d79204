package query

import (
	"sort"

	"github.com/kartikbazzad/xlimdb/internal/document"
	xerrors "github.com/kartikbazzad/xlimdb/internal/errors"
)

// SortField orders results by one document field.
type SortField struct {
	Field     string
	Ascending bool
}

// Query is a filter/sort/skip/limit/project pipeline evaluated against a
// collection's documents.
type Query struct {
	Conditions []Condition
	Operators  []LogicalOp
	Sort       []SortField
	Limit      *int
	Skip       *int
	Projection []string
}

// New returns an empty query matching every document.
func New() *Query {
	return &Query{}
}

// Matches evaluates conditions strictly left to right: the first
// condition's result seeds the accumulator, then each subsequent
// condition's result is combined with the accumulator using the logical
// operator at the same index as the condition minus one. This gives no
// operator precedence beyond source order, matching how the conditions
// and operators were appended.
func (q *Query) Matches(doc *document.Document) (bool, error) {
	if len(q.Conditions) == 0 {
		return true, nil
	}

	result, err := q.Conditions[0].Matches(doc)
	if err != nil {
		return false, err
	}

	for i := 1; i < len(q.Conditions); i++ {
		cond, err := q.Conditions[i].Matches(doc)
		if err != nil {
			return false, err
		}
		result = q.Operators[i-1].Apply(result, cond)
	}

	return result, nil
}

// Apply runs the full pipeline: filter, then sort, then skip, then limit,
// then projection.
func (q *Query) Apply(docs []*document.Document) ([]*document.Document, error) {
	filtered := make([]*document.Document, 0, len(docs))
	for _, doc := range docs {
		ok, err := q.Matches(doc)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, doc)
		}
	}

	if len(q.Sort) > 0 {
		sort.SliceStable(filtered, func(i, j int) bool {
			for _, s := range q.Sort {
				av, aok := filtered[i].Get(s.Field)
				bv, bok := filtered[j].Get(s.Field)
				if !aok || !bok {
					continue
				}
				cmp := Compare(av, bv)
				if cmp == 0 {
					continue
				}
				if !s.Ascending {
					cmp = -cmp
				}
				return cmp < 0
			}
			return false
		})
	}

	if q.Skip != nil {
		if *q.Skip >= len(filtered) {
			filtered = filtered[:0]
		} else {
			filtered = filtered[*q.Skip:]
		}
	}

	if q.Limit != nil && *q.Limit < len(filtered) {
		filtered = filtered[:*q.Limit]
	}

	if q.Projection != nil {
		projected := make([]*document.Document, len(filtered))
		for i, doc := range filtered {
			pd := &document.Document{
				ID:        doc.ID,
				CreatedAt: doc.CreatedAt,
				UpdatedAt: doc.UpdatedAt,
				Data:      document.NewObject(),
			}
			for _, field := range q.Projection {
				if v, ok := doc.Get(field); ok {
					pd.Data.Set(field, v)
				}
			}
			projected[i] = pd
		}
		filtered = projected
	}

	return filtered, nil
}

// Builder assembles a Query field by field, mirroring the fluent builder
// the original implementation exposed.
type Builder struct {
	q Query
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Filter appends a condition. An implicit AND is inserted ahead of it if
// this is not the first condition and no explicit logical operator has
// been supplied for the gap since the previous condition.
func (b *Builder) Filter(field, operator string, value interface{}) (*Builder, error) {
	op, err := ParseComparisonOp(operator)
	if err != nil {
		return nil, err
	}
	if len(b.q.Conditions) > 0 && len(b.q.Operators) < len(b.q.Conditions) {
		b.q.Operators = append(b.q.Operators, LogicalAnd)
	}
	b.q.Conditions = append(b.q.Conditions, Condition{Field: field, Operator: op, Value: value})
	return b, nil
}

// LogicalOperator overrides the operator joining the most recently added
// condition to the next one. It must follow at least one condition and
// cannot be supplied twice for the same gap.
func (b *Builder) LogicalOperator(operator string) (*Builder, error) {
	op, err := ParseLogicalOp(operator)
	if err != nil {
		return nil, err
	}
	if len(b.q.Conditions) == 0 {
		return nil, xerrors.WrapKind(xerrors.KindQuery, "cannot add logical operator before any conditions", xerrors.ErrInvalidQuery)
	}
	if len(b.q.Operators) >= len(b.q.Conditions) {
		return nil, xerrors.WrapKind(xerrors.KindQuery, "too many logical operators", xerrors.ErrInvalidQuery)
	}
	b.q.Operators = append(b.q.Operators, op)
	return b, nil
}

// SortBy appends a sort field.
func (b *Builder) SortBy(field string, ascending bool) *Builder {
	b.q.Sort = append(b.q.Sort, SortField{Field: field, Ascending: ascending})
	return b
}

// LimitTo sets the maximum number of results.
func (b *Builder) LimitTo(limit int) *Builder {
	b.q.Limit = &limit
	return b
}

// SkipN sets the number of leading results to discard.
func (b *Builder) SkipN(skip int) *Builder {
	b.q.Skip = &skip
	return b
}

// Project restricts the result documents' data to the given fields.
func (b *Builder) Project(fields []string) *Builder {
	b.q.Projection = fields
	return b
}

// Build returns the assembled query.
func (b *Builder) Build() Query {
	return b.q
}
