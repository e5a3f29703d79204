package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kartikbazzad/xlimdb/internal/document"
	xerrors "github.com/kartikbazzad/xlimdb/internal/errors"
	"github.com/kartikbazzad/xlimdb/internal/logger"
	"github.com/kartikbazzad/xlimdb/internal/metrics"
	"github.com/kartikbazzad/xlimdb/internal/storage"
	"github.com/kartikbazzad/xlimdb/internal/txn"
)

// Session tracks the transactions a single connection has begun, so the
// server can roll them back if the connection disconnects without
// committing or rolling back explicitly. Resolved at this layer rather
// than inside txn.Manager, which stays owner-agnostic.
type Session struct {
	mu    sync.Mutex
	owned map[uuid.UUID]bool
}

// NewSession returns an empty session for one connection.
func NewSession() *Session {
	return &Session{owned: make(map[uuid.UUID]bool)}
}

func (s *Session) own(id uuid.UUID) {
	s.mu.Lock()
	s.owned[id] = true
	s.mu.Unlock()
}

func (s *Session) disown(id uuid.UUID) {
	s.mu.Lock()
	delete(s.owned, id)
	s.mu.Unlock()
}

func (s *Session) owns(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owned[id]
}

// Owned returns every transaction id still open on this session.
func (s *Session) Owned() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.owned))
	for id := range s.owned {
		out = append(out, id)
	}
	return out
}

// Handler dispatches parsed commands to storage and the transaction
// manager, and formats their replies. One Handler is shared across every
// connection; per-connection state lives in a Session.
type Handler struct {
	storage    *storage.Engine
	txns       *txn.Manager
	logger     *logger.Logger
	classifier *xerrors.Classifier
	tracker    *xerrors.ErrorTracker
}

// NewHandler builds a command dispatcher over storage and a transaction
// manager.
func NewHandler(eng *storage.Engine, txns *txn.Manager, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		storage:    eng,
		txns:       txns,
		logger:     log,
		classifier: xerrors.NewClassifier(),
		tracker:    xerrors.NewErrorTracker(),
	}
}

// ErrorStats returns the handler's running error counters, broken down by
// category, for exposure on an operator-facing status endpoint.
func (h *Handler) ErrorStats() map[string]uint64 {
	stats := make(map[string]uint64)
	for _, cat := range []xerrors.ErrorCategory{
		xerrors.ErrorTransient, xerrors.ErrorPermanent, xerrors.ErrorCritical,
		xerrors.ErrorValidation, xerrors.ErrorNetwork,
	} {
		stats[categoryName(cat)] = h.tracker.GetErrorCount(cat)
	}
	return stats
}

func categoryName(cat xerrors.ErrorCategory) string {
	switch cat {
	case xerrors.ErrorTransient:
		return "transient"
	case xerrors.ErrorPermanent:
		return "permanent"
	case xerrors.ErrorCritical:
		return "critical"
	case xerrors.ErrorValidation:
		return "validation"
	case xerrors.ErrorNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Handle executes one parsed request against the session and returns the
// reply to write back to the connection, including its trailing newline.
func (h *Handler) Handle(sess *Session, req Request) string {
	start := time.Now()
	reply, err := h.dispatch(sess, req)
	status := "ok"
	if err != nil {
		status = "error"
		reply = Errorf(err.Error())
		h.tracker.RecordError(err, h.classifier.Classify(err))
	}
	metrics.RecordOperation(strings.ToLower(req.Verb), status, time.Since(start))
	return reply
}

// DisconnectCleanup rolls back every transaction a disconnecting session
// still owns.
func (h *Handler) DisconnectCleanup(sess *Session) {
	for _, id := range sess.Owned() {
		if err := h.txns.Rollback(id); err != nil {
			h.logger.Debug("rollback on disconnect for %s: %v", id, err)
		}
	}
}

func (h *Handler) dispatch(sess *Session, req Request) (string, error) {
	switch req.Verb {
	case "":
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "empty command")
	case "PING":
		return OK("PONG"), nil
	case "CREATE":
		return h.handleCreate(req)
	case "DROP":
		return h.handleDrop(req)
	case "INSERT":
		return h.handleInsert(sess, req)
	case "GET":
		return h.handleGet(req)
	case "UPDATE":
		return h.handleUpdate(sess, req)
	case "DELETE":
		return h.handleDelete(sess, req)
	case "PATCH":
		return h.handlePatch(sess, req)
	case "LIST":
		return h.handleList(req)
	case "SET-META":
		return h.handleSetMeta(req)
	case "GET-META":
		return h.handleGetMeta(req)
	case "BEGIN":
		return h.handleBegin(sess)
	case "COMMIT":
		return h.handleCommit(sess, req)
	case "ROLLBACK":
		return h.handleRollback(sess, req)
	default:
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, fmt.Sprintf("unknown command %q", req.Verb))
	}
}

func (h *Handler) handleCreate(req Request) (string, error) {
	if len(req.Args) != 1 {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "usage: CREATE <name>")
	}
	if _, err := h.storage.CreateCollection(req.Args[0]); err != nil {
		return "", err
	}
	return OK("Collection created: " + req.Args[0]), nil
}

func (h *Handler) handleDrop(req Request) (string, error) {
	if len(req.Args) != 1 {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "usage: DROP <name>")
	}
	if err := h.storage.DeleteCollection(req.Args[0]); err != nil {
		return "", err
	}
	return OK("Collection dropped: " + req.Args[0]), nil
}

func (h *Handler) handleInsert(sess *Session, req Request) (string, error) {
	if len(req.Args) != 2 {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "usage: INSERT <coll> <json>")
	}
	coll, payload := req.Args[0], req.Args[1]

	doc := document.New()
	if err := json.Unmarshal([]byte(payload), doc); err != nil {
		return "", xerrors.WrapKind(xerrors.KindSerialization, "invalid document JSON", err)
	}

	if req.TxID != "" {
		tx, err := h.resolveOwnedTx(sess, req.TxID)
		if err != nil {
			return "", err
		}
		tx.Insert(coll, doc)
		return OK("Buffered insert: " + doc.ID.String()), nil
	}

	if err := h.storage.InsertDocument(coll, doc); err != nil {
		return "", err
	}
	return OK("Inserted: " + doc.ID.String()), nil
}

func (h *Handler) handleGet(req Request) (string, error) {
	if len(req.Args) != 2 {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "usage: GET <coll> <id>")
	}
	doc, err := h.storage.GetDocument(req.Args[0], req.Args[1])
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return "", xerrors.WrapKind(xerrors.KindSerialization, "failed to encode document", err)
	}
	return string(encoded) + "\n", nil
}

func (h *Handler) handleUpdate(sess *Session, req Request) (string, error) {
	if len(req.Args) != 2 {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "usage: UPDATE <coll> <json>")
	}
	coll, payload := req.Args[0], req.Args[1]

	doc := document.New()
	if err := json.Unmarshal([]byte(payload), doc); err != nil {
		return "", xerrors.WrapKind(xerrors.KindSerialization, "invalid document JSON", err)
	}

	if req.TxID != "" {
		tx, err := h.resolveOwnedTx(sess, req.TxID)
		if err != nil {
			return "", err
		}
		tx.Update(coll, doc)
		return OK("Buffered update: " + doc.ID.String()), nil
	}

	if err := h.storage.UpdateDocument(coll, doc); err != nil {
		return "", err
	}
	return OK("Updated: " + doc.ID.String()), nil
}

func (h *Handler) handleDelete(sess *Session, req Request) (string, error) {
	if len(req.Args) != 2 {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "usage: DELETE <coll> <id>")
	}
	coll, id := req.Args[0], req.Args[1]

	if req.TxID != "" {
		tx, err := h.resolveOwnedTx(sess, req.TxID)
		if err != nil {
			return "", err
		}
		tx.Delete(coll, id)
		return OK("Buffered delete: " + id), nil
	}

	if err := h.storage.DeleteDocument(coll, id); err != nil {
		return "", err
	}
	return OK("Deleted: " + id), nil
}

func (h *Handler) handlePatch(sess *Session, req Request) (string, error) {
	if len(req.Args) != 3 {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "usage: PATCH <coll> <id> <json-ops>")
	}
	coll, id, payload := req.Args[0], req.Args[1], req.Args[2]

	var ops []document.PatchOp
	if err := json.Unmarshal([]byte(payload), &ops); err != nil {
		return "", xerrors.WrapKind(xerrors.KindSerialization, "invalid patch ops JSON", err)
	}

	if req.TxID != "" {
		tx, err := h.resolveOwnedTx(sess, req.TxID)
		if err != nil {
			return "", err
		}
		tx.Patch(coll, id, ops)
		return OK("Buffered patch: " + id), nil
	}

	batch := []storage.BatchOp{{Kind: storage.BatchPatch, Collection: coll, DocumentID: id, PatchOps: ops}}
	if err := h.storage.CommitBatch(batch); err != nil {
		return "", err
	}
	return OK("Patched: " + id), nil
}

func (h *Handler) handleList(req Request) (string, error) {
	if len(req.Args) != 1 {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "usage: LIST <coll>")
	}
	docs, err := h.storage.ListDocuments(req.Args[0])
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Collection %s: %d document(s)\n", req.Args[0], len(docs))
	for _, doc := range docs {
		summary, err := json.Marshal(doc.Data)
		if err != nil {
			return "", xerrors.WrapKind(xerrors.KindSerialization, "failed to encode document summary", err)
		}
		fmt.Fprintf(&b, "- %s: %s\n", doc.ID.String(), summary)
	}
	return b.String(), nil
}

func (h *Handler) handleSetMeta(req Request) (string, error) {
	if len(req.Args) != 3 {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "usage: SET-META <coll> <key> <json-value>")
	}
	coll, key, payload := req.Args[0], req.Args[1], req.Args[2]

	var value interface{}
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return "", xerrors.WrapKind(xerrors.KindSerialization, "invalid metadata value JSON", err)
	}
	if err := h.storage.SetCollectionMetadata(coll, key, value); err != nil {
		return "", err
	}
	return OK(fmt.Sprintf("Metadata set: %s.%s", coll, key)), nil
}

func (h *Handler) handleGetMeta(req Request) (string, error) {
	if len(req.Args) != 2 {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "usage: GET-META <coll> <key>")
	}
	coll, key := req.Args[0], req.Args[1]

	value, ok, err := h.storage.GetCollectionMetadata(coll, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, fmt.Sprintf("no metadata key %q on collection %q", key, coll))
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", xerrors.WrapKind(xerrors.KindSerialization, "failed to encode metadata value", err)
	}
	return string(encoded) + "\n", nil
}

func (h *Handler) handleBegin(sess *Session) (string, error) {
	tx := h.txns.Begin()
	sess.own(tx.ID)
	return OK("Transaction: " + tx.ID.String()), nil
}

func (h *Handler) handleCommit(sess *Session, req Request) (string, error) {
	if len(req.Args) != 1 {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "usage: COMMIT <tx-id>")
	}
	id, err := uuid.Parse(req.Args[0])
	if err != nil {
		return "", xerrors.WrapKind(xerrors.KindTransaction, "invalid transaction id", err)
	}
	if !sess.owns(id) {
		return "", xerrors.NewKind(xerrors.KindTransaction, "transaction not owned by this connection")
	}
	if err := h.txns.Commit(id); err != nil {
		return "", err
	}
	sess.disown(id)
	return OK("Committed: " + id.String()), nil
}

func (h *Handler) handleRollback(sess *Session, req Request) (string, error) {
	if len(req.Args) != 1 {
		return "", xerrors.NewKind(xerrors.KindInvalidOperation, "usage: ROLLBACK <tx-id>")
	}
	id, err := uuid.Parse(req.Args[0])
	if err != nil {
		return "", xerrors.WrapKind(xerrors.KindTransaction, "invalid transaction id", err)
	}
	if !sess.owns(id) {
		return "", xerrors.NewKind(xerrors.KindTransaction, "transaction not owned by this connection")
	}
	if err := h.txns.Rollback(id); err != nil {
		return "", err
	}
	sess.disown(id)
	return OK("Rolled back: " + id.String()), nil
}

func (h *Handler) resolveOwnedTx(sess *Session, rawID string) (*txn.Transaction, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, xerrors.WrapKind(xerrors.KindTransaction, "invalid transaction id", err)
	}
	if !sess.owns(id) {
		return nil, xerrors.NewKind(xerrors.KindTransaction, "transaction not owned by this connection")
	}
	return h.txns.Get(id)
}
