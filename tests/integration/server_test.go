// Package integration drives a real xlimdb server over a loopback TCP
// connection using pkg/client, exercising the full protocol/storage/txn
// stack end to end instead of calling package internals directly.
package integration

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/kartikbazzad/xlimdb/internal/config"
	"github.com/kartikbazzad/xlimdb/internal/document"
	"github.com/kartikbazzad/xlimdb/internal/logger"
	"github.com/kartikbazzad/xlimdb/internal/protocol"
	"github.com/kartikbazzad/xlimdb/internal/storage"
	"github.com/kartikbazzad/xlimdb/internal/txn"
	"github.com/kartikbazzad/xlimdb/pkg/client"
)

// newDoc builds a document with Data populated from fields, for use as
// test fixtures. Fields are set in Go map iteration order, which is not
// defined.
func newDoc(t *testing.T, fields map[string]interface{}) *document.Document {
	t.Helper()
	doc := document.New()
	for k, v := range fields {
		doc.Data.Set(k, v)
	}
	return doc
}

// startServer spins up a protocol.Server on a free loopback port and
// returns a connected client. The server, storage engine and client are
// shut down through t.Cleanup.
func startServer(t *testing.T) *client.Client {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.IPC.Address = addr

	log := logger.Default()
	eng, err := storage.Open(cfg, log)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	handler := protocol.NewHandler(eng, txn.NewManager(eng), log)
	server := protocol.NewServer(cfg, log, handler)
	if err := server.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	var c *client.Client
	var connErr error
	for i := 0; i < 20; i++ {
		c, connErr = client.Connect(addr)
		if connErr == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if connErr != nil {
		t.Fatalf("connect: %v", connErr)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPing(t *testing.T) {
	c := startServer(t)
	if err := c.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestCreateInsertGet(t *testing.T) {
	c := startServer(t)
	coll, err := c.CreateCollection("users")
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}

	doc := newDoc(t, map[string]interface{}{"name": "Alice", "age": float64(30)})
	id, err := coll.Insert(doc)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := coll.Get(id.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	name, _ := got.Data.Get("name")
	if name != "Alice" {
		t.Fatalf("expected name Alice, got %v", name)
	}
}

func TestDuplicateCreateFails(t *testing.T) {
	c := startServer(t)
	if _, err := c.CreateCollection("users"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := c.CreateCollection("users"); err == nil {
		t.Fatal("expected duplicate create to fail")
	}
}

func TestQueryFilterSortLimit(t *testing.T) {
	c := startServer(t)
	coll, err := c.CreateCollection("people")
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}

	ages := []float64{30, 25, 40, 20, 35}
	for i, age := range ages {
		doc := newDoc(t, map[string]interface{}{
			"name": fmt.Sprintf("person-%d", i),
			"age":  age,
		})
		if _, err := coll.Insert(doc); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	results, err := coll.Find().
		Filter("age", ">=", float64(25)).
		SortBy("age", true).
		Limit(2).
		Execute()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	first, _ := results[0].Data.Get("age")
	second, _ := results[1].Data.Get("age")
	if first != float64(25) || second != float64(30) {
		t.Fatalf("expected ascending ages [25,30], got [%v,%v]", first, second)
	}
}

func TestTransactionCommit(t *testing.T) {
	c := startServer(t)
	if _, err := c.CreateCollection("orders"); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	tx, err := c.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	doc := newDoc(t, map[string]interface{}{"item": "widget"})
	id, err := tx.Insert("orders", doc)
	if err != nil {
		t.Fatalf("buffered insert: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := c.Collection("orders").Get(id.String()); err != nil {
		t.Fatalf("expected document visible after commit: %v", err)
	}
}

func TestTransactionRollback(t *testing.T) {
	c := startServer(t)
	if _, err := c.CreateCollection("orders"); err != nil {
		t.Fatalf("create collection: %v", err)
	}

	tx, err := c.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	doc := newDoc(t, map[string]interface{}{"item": "gadget"})
	id, err := tx.Insert("orders", doc)
	if err != nil {
		t.Fatalf("buffered insert: %v", err)
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if _, err := c.Collection("orders").Get(id.String()); err == nil {
		t.Fatal("expected document absent after rollback")
	}
}

func TestPatchAndMeta(t *testing.T) {
	c := startServer(t)
	coll, err := c.CreateCollection("profiles")
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}

	doc := newDoc(t, map[string]interface{}{"name": "Bob", "age": float64(1)})
	id, err := coll.Insert(doc)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := coll.SetMeta("owner", "ops-team"); err != nil {
		t.Fatalf("set-meta: %v", err)
	}
	val, err := coll.GetMeta("owner")
	if err != nil {
		t.Fatalf("get-meta: %v", err)
	}
	if val != "ops-team" {
		t.Fatalf("expected ops-team, got %v", val)
	}

	if err := coll.Patch(id.String(), []document.PatchOp{
		{Op: "set", Field: "age", Value: float64(2)},
		{Op: "remove", Field: "name"},
	}); err != nil {
		t.Fatalf("patch: %v", err)
	}

	patched, err := coll.Get(id.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if age, _ := patched.Data.Get("age"); age != float64(2) {
		t.Fatalf("expected patched age 2, got %v", age)
	}
	if _, ok := patched.Data.Get("name"); ok {
		t.Fatal("expected name removed by patch")
	}
}
