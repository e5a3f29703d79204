package txn

import (
	"sync"

	"github.com/google/uuid"

	xerrors "github.com/kartikbazzad/xlimdb/internal/errors"
	"github.com/kartikbazzad/xlimdb/internal/metrics"
	"github.com/kartikbazzad/xlimdb/internal/storage"
)

// batchApplier is the subset of *storage.Engine the manager needs; kept as
// an interface so tests can substitute a fake without touching bbolt.
type batchApplier interface {
	CommitBatch(ops []storage.BatchOp) error
}

// Manager tracks active transactions and commits them against the storage
// engine. It keeps no owner information about which network connection
// opened a transaction — that bookkeeping lives
// in internal/protocol, which is responsible for rolling back transactions
// left open by a connection that disconnects.
type Manager struct {
	mu      sync.RWMutex
	active  map[uuid.UUID]*Transaction
	storage batchApplier
}

// NewManager returns a Manager committing against storage.
func NewManager(storage batchApplier) *Manager {
	return &Manager{
		active:  make(map[uuid.UUID]*Transaction),
		storage: storage,
	}
}

// Begin starts and registers a new transaction.
func (m *Manager) Begin() *Transaction {
	tx := newTransaction()
	m.mu.Lock()
	m.active[tx.ID] = tx
	m.mu.Unlock()
	metrics.TransactionsActive.Inc()
	return tx
}

// Get returns the active transaction with the given id.
func (m *Manager) Get(id uuid.UUID) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.active[id]
	if !ok {
		return nil, xerrors.WrapKind(xerrors.KindTransaction, id.String(), xerrors.ErrTransactionNotFound)
	}
	return tx, nil
}

// Commit removes the transaction from the active set, then replays its
// buffered operations as a single atomic storage batch. The transaction is
// removed whether the batch succeeds or fails: a transaction present in
// the active set before Commit is always absent after Commit returns. A
// failed commit is not retried or rolled back by the manager — the error
// is the first (and only, given the atomic batch) failing operation's
// error, per spec.
func (m *Manager) Commit(id uuid.UUID) error {
	m.mu.Lock()
	tx, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return xerrors.WrapKind(xerrors.KindTransaction, id.String(), xerrors.ErrTransactionNotFound)
	}
	if tx.State != StateOpen {
		m.mu.Unlock()
		return xerrors.WrapKind(xerrors.KindTransaction, id.String(), xerrors.ErrTransactionClosed)
	}
	delete(m.active, id)
	m.mu.Unlock()
	metrics.TransactionsActive.Dec()

	batch := make([]storage.BatchOp, len(tx.Operations))
	for i, op := range tx.Operations {
		batch[i] = toBatchOp(op)
	}

	if err := m.storage.CommitBatch(batch); err != nil {
		return err
	}

	tx.State = StateCommitted
	return nil
}

// Rollback discards a transaction's buffered operations without touching
// storage.
func (m *Manager) Rollback(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.active[id]
	if !ok {
		return xerrors.WrapKind(xerrors.KindTransaction, id.String(), xerrors.ErrTransactionNotFound)
	}
	if tx.State != StateOpen {
		return xerrors.WrapKind(xerrors.KindTransaction, id.String(), xerrors.ErrTransactionClosed)
	}

	tx.State = StateRolledBack
	delete(m.active, id)
	metrics.TransactionsActive.Dec()
	return nil
}

// ActiveIDs returns every currently open transaction id.
func (m *Manager) ActiveIDs() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(m.active))
	for id := range m.active {
		out = append(out, id)
	}
	return out
}

func toBatchOp(op Operation) storage.BatchOp {
	switch op.Kind {
	case OpInsert:
		return storage.BatchOp{Kind: storage.BatchInsert, Collection: op.Collection, Document: op.Document}
	case OpUpdate:
		return storage.BatchOp{Kind: storage.BatchUpdate, Collection: op.Collection, Document: op.Document}
	case OpDelete:
		return storage.BatchOp{Kind: storage.BatchDelete, Collection: op.Collection, DocumentID: op.DocumentID}
	case OpPatch:
		return storage.BatchOp{Kind: storage.BatchPatch, Collection: op.Collection, DocumentID: op.DocumentID, PatchOps: op.PatchOps}
	default:
		return storage.BatchOp{}
	}
}
