package document

import (
	"encoding/json"
	"testing"
)

func TestObjectPreservesInsertionOrder(t *testing.T) {
	o := NewObject()
	o.Set("z", 1.0)
	o.Set("a", 2.0)
	o.Set("m", 3.0)

	got := o.Keys()
	want := []string{"z", "a", "m"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys out of order: got %v want %v", got, want)
		}
	}
}

func TestObjectSetOverwritePreservesPosition(t *testing.T) {
	o := NewObject()
	o.Set("a", 1.0)
	o.Set("b", 2.0)
	o.Set("a", 100.0)

	got := o.Keys()
	if got[0] != "a" || got[1] != "b" {
		t.Fatalf("overwrite should not move key: %v", got)
	}
	v, _ := o.Get("a")
	if v != 100.0 {
		t.Fatalf("expected overwritten value, got %v", v)
	}
}

func TestObjectRemove(t *testing.T) {
	o := NewObject()
	o.Set("a", 1.0)
	o.Set("b", 2.0)

	v, ok := o.Remove("a")
	if !ok || v != 1.0 {
		t.Fatalf("remove returned ok=%v v=%v", ok, v)
	}
	if o.Has("a") {
		t.Fatal("key still present after remove")
	}
	if o.Len() != 1 {
		t.Fatalf("expected len 1, got %d", o.Len())
	}
}

func TestObjectJSONRoundTripPreservesOrder(t *testing.T) {
	src := `{"zebra":1,"apple":2,"mango":{"nested":true,"also":[1,2,3]}}`
	o := NewObject()
	if err := json.Unmarshal([]byte(src), o); err != nil {
		t.Fatal(err)
	}

	out, err := json.Marshal(o)
	if err != nil {
		t.Fatal(err)
	}

	// Re-decode through encoding/json's own decoder to confirm validity,
	// and check key order is preserved in the raw bytes.
	var generic map[string]interface{}
	if err := json.Unmarshal(out, &generic); err != nil {
		t.Fatal(err)
	}
	if len(generic) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(generic))
	}

	keys := o.Keys()
	if keys[0] != "zebra" || keys[1] != "apple" || keys[2] != "mango" {
		t.Fatalf("order not preserved: %v", keys)
	}

	mango, ok := o.Get("mango")
	if !ok {
		t.Fatal("missing nested field")
	}
	nestedObj, ok := mango.(*Object)
	if !ok {
		t.Fatalf("expected nested *Object, got %T", mango)
	}
	if !nestedObj.Has("nested") || !nestedObj.Has("also") {
		t.Fatal("nested object missing fields")
	}
	arr, ok := nestedObj.Get("also")
	if !ok {
		t.Fatal("missing nested array")
	}
	if vals, ok := arr.([]interface{}); !ok || len(vals) != 3 {
		t.Fatalf("expected 3-element array, got %v", arr)
	}
}

func TestObjectClone(t *testing.T) {
	o := NewObject()
	o.Set("a", 1.0)
	clone := o.Clone()
	clone.Set("b", 2.0)

	if o.Has("b") {
		t.Fatal("mutating clone affected original")
	}
}

func TestObjectMerge(t *testing.T) {
	a := NewObject()
	a.Set("x", 1.0)
	a.Set("y", 2.0)

	b := NewObject()
	b.Set("y", 20.0)
	b.Set("z", 3.0)

	a.Merge(b)

	yv, _ := a.Get("y")
	if yv != 20.0 {
		t.Fatalf("merge should overwrite y, got %v", yv)
	}
	if !a.Has("z") {
		t.Fatal("merge should add z")
	}
	keys := a.Keys()
	if keys[0] != "x" || keys[1] != "y" || keys[2] != "z" {
		t.Fatalf("merge should preserve a's order then append new keys: %v", keys)
	}
}
