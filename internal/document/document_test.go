package document

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestDocumentUnmarshalBareObject(t *testing.T) {
	var d Document
	if err := json.Unmarshal([]byte(`{"name":"alice","age":30}`), &d); err != nil {
		t.Fatal(err)
	}
	if d.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}
	if d.CreatedAt.IsZero() || d.UpdatedAt.IsZero() {
		t.Fatal("expected backfilled timestamps")
	}
	name, ok := d.Get("name")
	if !ok || name != "alice" {
		t.Fatalf("expected data field name=alice, got %v", name)
	}
}

func TestDocumentUnmarshalFullForm(t *testing.T) {
	id := uuid.New()
	src := `{"id":"` + id.String() + `","data":{"name":"bob"}}`
	var d Document
	if err := json.Unmarshal([]byte(src), &d); err != nil {
		t.Fatal(err)
	}
	if d.ID != id {
		t.Fatalf("expected id %s, got %s", id, d.ID)
	}
	if d.CreatedAt.IsZero() {
		t.Fatal("expected backfilled created_at for missing timestamp")
	}
	name, _ := d.Get("name")
	if name != "bob" {
		t.Fatalf("expected name=bob, got %v", name)
	}
}

func TestDocumentSetTouchesUpdatedAt(t *testing.T) {
	d := New()
	before := d.UpdatedAt
	d.Set("k", "v")
	if d.UpdatedAt.Before(before) {
		t.Fatal("UpdatedAt should not go backwards")
	}
	v, ok := d.Get("k")
	if !ok || v != "v" {
		t.Fatalf("expected k=v, got %v", v)
	}
}

func TestDocumentMarshalRoundTrip(t *testing.T) {
	d := New()
	d.Set("a", 1.0)

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}

	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != d.ID {
		t.Fatalf("id mismatch after round trip: %s != %s", out.ID, d.ID)
	}
	v, _ := out.Get("a")
	if v != 1.0 {
		t.Fatalf("expected a=1, got %v", v)
	}
}

func TestValidateName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"users", true},
		{"", false},
		{"has space", false},
		{"has:colon", false},
		{"9startswithdigit", false},
		{"a9b", true},
	}
	for _, c := range cases {
		err := ValidateName(c.name)
		if (err == nil) != c.ok {
			t.Errorf("ValidateName(%q): err=%v, want ok=%v", c.name, err, c.ok)
		}
	}
}
