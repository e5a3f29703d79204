// Package txn implements the transaction manager: buffered operations
// applied atomically at commit time.
package txn

import (
	"time"

	"github.com/google/uuid"

	"github.com/kartikbazzad/xlimdb/internal/document"
)

// OpKind identifies one buffered operation's kind.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
	OpPatch
)

// Operation is one buffered mutation, recorded in the order it was added.
type Operation struct {
	Kind       OpKind
	Collection string
	Document   *document.Document // Insert, Update
	DocumentID string              // Delete, Patch
	PatchOps   []document.PatchOp  // Patch
}

// State is a transaction's lifecycle stage.
type State int

const (
	StateOpen State = iota
	StateCommitted
	StateRolledBack
)

// Transaction buffers operations until Commit or Rollback.
type Transaction struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	Operations []Operation
	State      State
}

func newTransaction() *Transaction {
	return &Transaction{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		State:     StateOpen,
	}
}

// Insert buffers a document insert.
func (t *Transaction) Insert(collection string, doc *document.Document) {
	t.Operations = append(t.Operations, Operation{Kind: OpInsert, Collection: collection, Document: doc})
}

// Update buffers a whole-document replacement.
func (t *Transaction) Update(collection string, doc *document.Document) {
	t.Operations = append(t.Operations, Operation{Kind: OpUpdate, Collection: collection, Document: doc})
}

// Delete buffers a document delete.
func (t *Transaction) Delete(collection, documentID string) {
	t.Operations = append(t.Operations, Operation{Kind: OpDelete, Collection: collection, DocumentID: documentID})
}

// Patch buffers a field-level patch.
func (t *Transaction) Patch(collection, documentID string, ops []document.PatchOp) {
	t.Operations = append(t.Operations, Operation{Kind: OpPatch, Collection: collection, DocumentID: documentID, PatchOps: ops})
}
