package txn

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kartikbazzad/xlimdb/internal/config"
	"github.com/kartikbazzad/xlimdb/internal/document"
	"github.com/kartikbazzad/xlimdb/internal/logger"
	"github.com/kartikbazzad/xlimdb/internal/metrics"
	"github.com/kartikbazzad/xlimdb/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.Engine) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	eng, err := storage.Open(cfg, logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })
	if _, err := eng.CreateCollection("users"); err != nil {
		t.Fatal(err)
	}
	return NewManager(eng), eng
}

func TestBeginCommit(t *testing.T) {
	m, eng := newTestManager(t)

	tx := m.Begin()
	doc := document.New()
	doc.Set("name", "alice")
	tx.Insert("users", doc)

	if err := m.Commit(tx.ID); err != nil {
		t.Fatal(err)
	}

	got, err := eng.GetDocument("users", doc.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	name, _ := got.Get("name")
	if name != "alice" {
		t.Fatalf("expected alice, got %v", name)
	}

	if _, err := m.Get(tx.ID); err == nil {
		t.Fatal("expected transaction to be gone after commit")
	}
}

func TestRollbackDiscardsOperations(t *testing.T) {
	m, eng := newTestManager(t)

	tx := m.Begin()
	doc := document.New()
	tx.Insert("users", doc)

	if err := m.Rollback(tx.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := eng.GetDocument("users", doc.ID.String()); err == nil {
		t.Fatal("expected document to not exist after rollback")
	}
	if _, err := m.Get(tx.ID); err == nil {
		t.Fatal("expected transaction to be gone after rollback")
	}
}

func TestCommitFailureLeavesDatabaseUntouched(t *testing.T) {
	m, eng := newTestManager(t)

	good := document.New()
	good.Set("name", "first")

	bad := document.New()

	tx := m.Begin()
	tx.Insert("users", good)
	tx.Delete("users", bad.ID.String()) // does not exist yet: should abort whole batch

	if err := m.Commit(tx.ID); err == nil {
		t.Fatal("expected commit to fail")
	}

	if _, err := eng.GetDocument("users", good.ID.String()); err == nil {
		t.Fatal("expected atomic commit to have rolled back the insert too")
	}

	if _, err := m.Get(tx.ID); err == nil {
		t.Fatal("expected transaction to be removed from the active set even though commit failed")
	}
}

func TestCommitUnknownTransaction(t *testing.T) {
	m, _ := newTestManager(t)
	tx := m.Begin()
	if err := m.Commit(tx.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Commit(tx.ID); err == nil {
		t.Fatal("expected error committing an already-committed transaction")
	}
}

func TestTransactionsActiveGauge(t *testing.T) {
	m, _ := newTestManager(t)
	before := testutil.ToFloat64(metrics.TransactionsActive)

	tx1 := m.Begin()
	tx2 := m.Begin()
	if got := testutil.ToFloat64(metrics.TransactionsActive); got != before+2 {
		t.Fatalf("expected gauge to rise by 2 after Begin x2, got %v (was %v)", got, before)
	}

	m.Commit(tx1.ID)
	if got := testutil.ToFloat64(metrics.TransactionsActive); got != before+1 {
		t.Fatalf("expected gauge to drop by 1 after Commit, got %v", got)
	}

	m.Rollback(tx2.ID)
	if got := testutil.ToFloat64(metrics.TransactionsActive); got != before {
		t.Fatalf("expected gauge back to baseline after Rollback, got %v (baseline %v)", got, before)
	}
}

func TestActiveIDs(t *testing.T) {
	m, _ := newTestManager(t)
	tx1 := m.Begin()
	tx2 := m.Begin()

	ids := m.ActiveIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 active transactions, got %d", len(ids))
	}

	m.Rollback(tx1.ID)
	m.Rollback(tx2.ID)
	if len(m.ActiveIDs()) != 0 {
		t.Fatal("expected no active transactions after rollback")
	}
}
