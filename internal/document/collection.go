package document

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	xerrors "github.com/kartikbazzad/xlimdb/internal/errors"
)

// Collection is a named group of documents plus an ordered metadata map.
type Collection struct {
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  *Object
}

// NewCollection returns an empty collection with fresh timestamps.
func NewCollection(name string) *Collection {
	now := time.Now().UTC()
	return &Collection{
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  NewObject(),
	}
}

// SetMetadata assigns a metadata field and bumps UpdatedAt once.
func (c *Collection) SetMetadata(key string, value interface{}) {
	c.Metadata.Set(key, value)
	c.UpdatedAt = time.Now().UTC()
}

// GetMetadata reads a metadata field.
func (c *Collection) GetMetadata(key string) (interface{}, bool) {
	return c.Metadata.Get(key)
}

// Clone returns a copy with its own Metadata object, so setting or removing
// metadata keys on the copy does not touch the original. Metadata.Clone is
// shallow: nested objects and arrays inside metadata values are shared.
func (c *Collection) Clone() *Collection {
	return &Collection{
		Name:      c.Name,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Metadata:  c.Metadata.Clone(),
	}
}

// ValidateName rejects empty names, names containing whitespace or a colon
// (the colon is reserved as the storage key separator between a collection
// name and a document id), and names starting with a digit.
func ValidateName(name string) error {
	if name == "" {
		return xerrors.WrapKind(xerrors.KindInvalidOperation, "collection name must not be empty", xerrors.ErrInvalidName)
	}
	if strings.ContainsRune(name, ':') {
		return xerrors.WrapKind(xerrors.KindInvalidOperation, fmt.Sprintf("collection name %q must not contain ':'", name), xerrors.ErrInvalidName)
	}
	for i, r := range name {
		if unicode.IsSpace(r) {
			return xerrors.WrapKind(xerrors.KindInvalidOperation, fmt.Sprintf("collection name %q must not contain whitespace", name), xerrors.ErrInvalidName)
		}
		if i == 0 && unicode.IsDigit(r) {
			return xerrors.WrapKind(xerrors.KindInvalidOperation, fmt.Sprintf("collection name %q must not start with a digit", name), xerrors.ErrInvalidName)
		}
	}
	return nil
}
