package storage

import (
	bolt "go.etcd.io/bbolt"

	"github.com/kartikbazzad/xlimdb/internal/document"
	xerrors "github.com/kartikbazzad/xlimdb/internal/errors"
	"github.com/kartikbazzad/xlimdb/internal/metrics"
)

// BatchOpKind identifies the kind of mutation a BatchOp performs.
type BatchOpKind int

const (
	BatchInsert BatchOpKind = iota
	BatchUpdate
	BatchDelete
	BatchPatch
)

// BatchOp is one mutation applied as part of a transaction commit.
type BatchOp struct {
	Kind       BatchOpKind
	Collection string
	Document   *document.Document // Insert, Update
	DocumentID string              // Delete, Patch
	PatchOps   []document.PatchOp  // Patch
}

type cacheMutation struct {
	remove         bool
	collection, id string
	doc            *document.Document
}

// countDelta tracks a per-collection change to the document-count gauge
// accumulated while the batch's bolt.Tx is open and applied only once the
// whole batch commits.
type countDelta struct {
	collection string
	delta      int
}

// CommitBatch applies every op inside a single bbolt write transaction:
// either all operations land or none do.
func (e *Engine) CommitBatch(ops []BatchOp) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, op := range ops {
		if _, ok := e.collections[op.Collection]; !ok {
			return xerrors.WrapKind(xerrors.KindCollectionNotFound, op.Collection, xerrors.ErrCollectionNotFound)
		}
	}

	var mutations []cacheMutation
	var counts []countDelta

	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		mutations = mutations[:0]
		counts = counts[:0]

		for _, op := range ops {
			switch op.Kind {
			case BatchInsert:
				// Put, not insert-if-absent: overwrites silently if the key
				// already exists, same as Engine.InsertDocument.
				key := documentKey(op.Collection, op.Document.ID.String())
				isNew := b.Get(key) == nil
				encoded, err := encodeDocument(op.Document)
				if err != nil {
					return err
				}
				if err := b.Put(key, encoded); err != nil {
					return err
				}
				mutations = append(mutations, cacheMutation{collection: op.Collection, id: op.Document.ID.String(), doc: op.Document.Clone()})
				if isNew {
					counts = append(counts, countDelta{collection: op.Collection, delta: 1})
				}

			case BatchUpdate:
				key := documentKey(op.Collection, op.Document.ID.String())
				if b.Get(key) == nil {
					return xerrors.WrapKind(xerrors.KindDocumentNotFound, op.Document.ID.String(), xerrors.ErrDocNotFound)
				}
				encoded, err := encodeDocument(op.Document)
				if err != nil {
					return err
				}
				if err := b.Put(key, encoded); err != nil {
					return err
				}
				mutations = append(mutations, cacheMutation{collection: op.Collection, id: op.Document.ID.String(), doc: op.Document.Clone()})

			case BatchDelete:
				key := documentKey(op.Collection, op.DocumentID)
				if b.Get(key) == nil {
					return xerrors.WrapKind(xerrors.KindDocumentNotFound, op.DocumentID, xerrors.ErrDocNotFound)
				}
				if err := b.Delete(key); err != nil {
					return err
				}
				mutations = append(mutations, cacheMutation{remove: true, collection: op.Collection, id: op.DocumentID})
				counts = append(counts, countDelta{collection: op.Collection, delta: -1})

			case BatchPatch:
				key := documentKey(op.Collection, op.DocumentID)
				raw := b.Get(key)
				if raw == nil {
					return xerrors.WrapKind(xerrors.KindDocumentNotFound, op.DocumentID, xerrors.ErrDocNotFound)
				}
				doc, err := decodeDocument(raw)
				if err != nil {
					return err
				}
				if err := doc.ApplyPatch(op.PatchOps); err != nil {
					return err
				}
				encoded, err := encodeDocument(doc)
				if err != nil {
					return err
				}
				if err := b.Put(key, encoded); err != nil {
					return err
				}
				mutations = append(mutations, cacheMutation{collection: op.Collection, id: doc.ID.String(), doc: doc})

			default:
				return xerrors.WrapKind(xerrors.KindInvalidOperation, "unknown batch operation", xerrors.ErrInvalidOperation)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, c := range counts {
		metrics.DocumentsTotal.WithLabelValues(c.collection).Add(float64(c.delta))
	}

	for _, m := range mutations {
		if m.remove {
			e.cache.remove(m.collection, m.id)
		} else {
			e.cache.put(m.collection, m.id, m.doc)
		}
	}
	return nil
}
