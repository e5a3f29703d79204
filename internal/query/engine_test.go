package query

import (
	"testing"

	"github.com/kartikbazzad/xlimdb/internal/document"
)

func docWith(fields map[string]interface{}) *document.Document {
	d := document.New()
	for k, v := range fields {
		d.Data.Set(k, v)
	}
	return d
}

func TestBuilderImplicitAnd(t *testing.T) {
	b := NewBuilder()
	if _, err := b.Filter("age", ">", float64(18)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Filter("status", "=", "active"); err != nil {
		t.Fatal(err)
	}
	q := b.Build()
	if len(q.Operators) != 1 || q.Operators[0] != LogicalAnd {
		t.Fatalf("expected one implicit AND, got %v", q.Operators)
	}

	match := docWith(map[string]interface{}{"age": float64(20), "status": "active"})
	ok, err := q.Matches(match)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}

	noMatch := docWith(map[string]interface{}{"age": float64(10), "status": "active"})
	ok, err = q.Matches(noMatch)
	if err != nil || ok {
		t.Fatalf("expected no match, got ok=%v err=%v", ok, err)
	}
}

func TestBuilderExplicitOr(t *testing.T) {
	b := NewBuilder()
	b.Filter("role", "=", "admin")
	b.LogicalOperator("or")
	b.Filter("role", "=", "owner")
	q := b.Build()

	ok, err := q.Matches(docWith(map[string]interface{}{"role": "owner"}))
	if err != nil || !ok {
		t.Fatalf("expected match via OR, got ok=%v err=%v", ok, err)
	}
}

func TestLogicalOperatorOverflowRejected(t *testing.T) {
	b := NewBuilder()
	b.Filter("a", "=", float64(1))
	if _, err := b.LogicalOperator("and"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.LogicalOperator("and"); err == nil {
		t.Fatal("expected error for excess logical operator")
	}
}

func TestApplyPipeline(t *testing.T) {
	docs := []*document.Document{
		docWith(map[string]interface{}{"name": "carol", "age": float64(40)}),
		docWith(map[string]interface{}{"name": "alice", "age": float64(30)}),
		docWith(map[string]interface{}{"name": "bob", "age": float64(20)}),
	}

	b := NewBuilder()
	b.Filter("age", ">=", float64(20))
	b.SortBy("age", true)
	b.SkipN(1)
	b.LimitTo(1)
	q := b.Build()

	out, err := q.Apply(docs)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	name, _ := out[0].Get("name")
	if name != "alice" {
		t.Fatalf("expected alice after skip/limit, got %v", name)
	}
}

func TestApplyProjection(t *testing.T) {
	docs := []*document.Document{
		docWith(map[string]interface{}{"name": "alice", "age": float64(30), "secret": "x"}),
	}
	q := NewBuilder().Project([]string{"name"}).Build()
	out, err := q.Apply(docs)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Data.Len() != 1 {
		t.Fatalf("expected 1 projected field, got %d", out[0].Data.Len())
	}
	if _, ok := out[0].Get("secret"); ok {
		t.Fatal("projection leaked unselected field")
	}
}

func TestCompareTotalOrder(t *testing.T) {
	values := []interface{}{
		nil,
		false,
		true,
		float64(1),
		float64(2),
		"a",
		"b",
		[]interface{}{float64(1)},
		document.NewObject(),
	}
	for i := 0; i < len(values)-1; i++ {
		if Compare(values[i], values[i+1]) >= 0 {
			t.Fatalf("expected values[%d] < values[%d]", i, i+1)
		}
	}
}

func TestComparisonOperatorsStringAndArray(t *testing.T) {
	ok, err := OpContains.Apply("hello world", "wor")
	if err != nil || !ok {
		t.Fatalf("contains on string failed: ok=%v err=%v", ok, err)
	}
	ok, err = OpStartsWith.Apply("hello", "he")
	if err != nil || !ok {
		t.Fatalf("startsWith failed: ok=%v err=%v", ok, err)
	}
	ok, err = OpIn.Apply("b", []interface{}{"a", "b", "c"})
	if err != nil || !ok {
		t.Fatalf("in failed: ok=%v err=%v", ok, err)
	}
	ok, err = OpNotIn.Apply("z", []interface{}{"a", "b", "c"})
	if err != nil || !ok {
		t.Fatalf("notIn failed: ok=%v err=%v", ok, err)
	}
}
