package document

import "testing"

func TestApplyPatchSetAndRemove(t *testing.T) {
	d := New()
	d.Set("a", 1.0)
	d.Set("b", 2.0)

	err := d.ApplyPatch([]PatchOp{
		{Op: "set", Field: "a", Value: 10.0},
		{Op: "remove", Field: "b"},
		{Op: "set", Field: "c", Value: "new"},
	})
	if err != nil {
		t.Fatal(err)
	}

	a, _ := d.Get("a")
	if a != 10.0 {
		t.Fatalf("expected a=10, got %v", a)
	}
	if d.Data.Has("b") {
		t.Fatal("expected b removed")
	}
	c, _ := d.Get("c")
	if c != "new" {
		t.Fatalf("expected c=new, got %v", c)
	}
}

func TestApplyPatchUnknownOp(t *testing.T) {
	d := New()
	err := d.ApplyPatch([]PatchOp{{Op: "bogus", Field: "x"}})
	if err == nil {
		t.Fatal("expected error for unknown patch op")
	}
}
