package document

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document is a UUID-identified record holding an ordered field mapping
// plus creation/update timestamps.
type Document struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	Data      *Object
}

// New returns an empty document with a fresh ID and timestamps.
func New() *Document {
	now := time.Now().UTC()
	return &Document{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
		Data:      NewObject(),
	}
}

// wireDocument is the JSON shape documents serialize to/from on the wire
// and in storage.
type wireDocument struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Data      *Object   `json:"data"`
}

// MarshalJSON emits the canonical full-document shape.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireDocument{
		ID:        d.ID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Data:      d.Data,
	})
}

// UnmarshalJSON accepts either a full document ({"id":...,"data":{...}})
// or a bare data object ({"name":"Alice"}); the INSERT/UPDATE commands
// allow both. A nil/zero id or timestamps are backfilled with fresh
// values.
func (d *Document) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	_, hasID := probe["id"]
	_, hasData := probe["data"]

	now := time.Now().UTC()

	if hasID || hasData {
		var w wireDocument
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		if w.Data == nil {
			w.Data = NewObject()
		}
		d.Data = w.Data
		d.ID = w.ID
		d.CreatedAt = w.CreatedAt
		d.UpdatedAt = w.UpdatedAt
	} else {
		obj := NewObject()
		if err := json.Unmarshal(data, obj); err != nil {
			return err
		}
		d.Data = obj
		d.CreatedAt = now
		d.UpdatedAt = now
	}

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	if d.UpdatedAt.Before(d.CreatedAt) {
		d.UpdatedAt = d.CreatedAt
	}
	return nil
}

// Touch refreshes UpdatedAt, never letting it precede CreatedAt.
func (d *Document) Touch() {
	now := time.Now().UTC()
	if now.Before(d.CreatedAt) {
		now = d.CreatedAt
	}
	d.UpdatedAt = now
}

// Set assigns a data field and refreshes UpdatedAt.
func (d *Document) Set(field string, value interface{}) {
	d.Data.Set(field, value)
	d.Touch()
}

// Get reads a data field.
func (d *Document) Get(field string) (interface{}, bool) {
	return d.Data.Get(field)
}

// Remove deletes a data field and refreshes UpdatedAt if it existed.
func (d *Document) Remove(field string) (interface{}, bool) {
	v, ok := d.Data.Remove(field)
	if ok {
		d.Touch()
	}
	return v, ok
}

// Merge copies other's fields into d.Data, last-write-wins per field, and
// refreshes UpdatedAt once.
func (d *Document) Merge(other *Object) {
	d.Data.Merge(other)
	d.Touch()
}

// Clone returns a value copy with its own Data object, so setting or
// removing fields on the copy does not touch d. Data.Clone is shallow:
// nested objects and arrays inside field values are shared with d.
func (d *Document) Clone() *Document {
	return &Document{
		ID:        d.ID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Data:      d.Data.Clone(),
	}
}
