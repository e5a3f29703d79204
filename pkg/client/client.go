// Package client is a synchronous client for the xlimdb text protocol,
// built around a Client/Collection/Transaction handle shape over a plain
// net.Conn.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kartikbazzad/xlimdb/internal/document"
	"github.com/kartikbazzad/xlimdb/internal/query"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrUnexpectedReply  = errors.New("unexpected reply from server")
)

// replyBufferSize bounds a single reply read. Every reply the handler
// produces is written in one conn.Write call, so one conn.Read capturing
// that whole write is enough; LIST's multi-line reply is the largest
// shape the protocol produces, which is why this is larger than the
// server's 4 KiB request-read buffer.
const replyBufferSize = 64 * 1024

// Client is a connection to one xlimdb server. Every command is a
// synchronous write-then-read round trip guarded by a mutex, the same
// one-command-in-flight-per-connection model the wire protocol assumes.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

// Connect dials addr and verifies the connection with a PING.
func Connect(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	c := &Client{conn: conn}
	if err := c.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Ping verifies the server is reachable.
func (c *Client) Ping() error {
	reply, err := c.sendCommand("PING")
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("%w: %s", ErrUnexpectedReply, reply)
	}
	return nil
}

// CreateCollection creates a named collection and returns a handle to it.
func (c *Client) CreateCollection(name string) (*Collection, error) {
	if _, err := c.sendCommand("CREATE " + name); err != nil {
		return nil, err
	}
	return &Collection{client: c, name: name}, nil
}

// DropCollection deletes a named collection and everything under it.
func (c *Client) DropCollection(name string) error {
	_, err := c.sendCommand("DROP " + name)
	return err
}

// Collection returns a handle to a collection without creating it.
func (c *Client) Collection(name string) *Collection {
	return &Collection{client: c, name: name}
}

// Begin starts a server-side transaction.
func (c *Client) Begin() (*Transaction, error) {
	reply, err := c.sendCommand("BEGIN")
	if err != nil {
		return nil, err
	}
	id, err := parsePrefixedUUID(reply, "Transaction:")
	if err != nil {
		return nil, err
	}
	return &Transaction{client: c, id: id}, nil
}

// Send issues a raw protocol command and returns the raw reply line,
// stripped of the "ERROR:" prefix (as an error) when the server rejects
// it. Used by the interactive shell, which speaks the protocol directly.
func (c *Client) Send(cmd string) (string, error) {
	return c.sendCommand(cmd)
}

func (c *Client) sendCommand(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return "", ErrConnectionClosed
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return "", err
	}

	buf := make([]byte, replyBufferSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return "", err
	}
	reply := strings.TrimRight(string(buf[:n]), "\r\n")

	if strings.HasPrefix(reply, "ERROR:") {
		return "", errors.New(strings.TrimSpace(strings.TrimPrefix(reply, "ERROR:")))
	}
	return reply, nil
}

func parsePrefixedUUID(reply, prefix string) (uuid.UUID, error) {
	if !strings.HasPrefix(reply, prefix) {
		return uuid.UUID{}, fmt.Errorf("%w: %s", ErrUnexpectedReply, reply)
	}
	raw := strings.TrimSpace(strings.TrimPrefix(reply, prefix))
	return uuid.Parse(raw)
}

// Collection is a handle to one named collection.
type Collection struct {
	client *Client
	name   string
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Insert stores a new document and returns its id.
func (c *Collection) Insert(doc *document.Document) (uuid.UUID, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return uuid.UUID{}, err
	}
	reply, err := c.client.sendCommand(fmt.Sprintf("INSERT %s %s", c.name, payload))
	if err != nil {
		return uuid.UUID{}, err
	}
	return parsePrefixedUUID(reply, "Inserted:")
}

// Get reads a document by id.
func (c *Collection) Get(id string) (*document.Document, error) {
	reply, err := c.client.sendCommand(fmt.Sprintf("GET %s %s", c.name, id))
	if err != nil {
		return nil, err
	}
	doc := document.New()
	if err := json.Unmarshal([]byte(reply), doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Update overwrites a document wholesale; doc.ID selects the target.
func (c *Collection) Update(doc *document.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = c.client.sendCommand(fmt.Sprintf("UPDATE %s %s", c.name, payload))
	return err
}

// Delete removes a document by id.
func (c *Collection) Delete(id string) error {
	_, err := c.client.sendCommand(fmt.Sprintf("DELETE %s %s", c.name, id))
	return err
}

// Patch applies a small set of field-level mutations without resending the
// whole document.
func (c *Collection) Patch(id string, ops []document.PatchOp) error {
	payload, err := json.Marshal(ops)
	if err != nil {
		return err
	}
	_, err = c.client.sendCommand(fmt.Sprintf("PATCH %s %s %s", c.name, id, payload))
	return err
}

// SetMeta rewrites one key in the collection's metadata map.
func (c *Collection) SetMeta(key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = c.client.sendCommand(fmt.Sprintf("SET-META %s %s %s", c.name, key, payload))
	return err
}

// GetMeta reads one key from the collection's metadata map.
func (c *Collection) GetMeta(key string) (interface{}, error) {
	reply, err := c.client.sendCommand(fmt.Sprintf("GET-META %s %s", c.name, key))
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal([]byte(reply), &v); err != nil {
		return nil, fmt.Errorf("decode metadata value: %w", err)
	}
	return v, nil
}

// List fetches the id/summary header line plus every document id, then
// reads each document back individually.
func (c *Collection) List() ([]*document.Document, error) {
	reply, err := c.client.sendCommand("LIST " + c.name)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(reply, "\n")
	var docs []*document.Document
	for _, line := range lines[1:] {
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		parts := strings.SplitN(line[2:], ": ", 2)
		if len(parts) == 0 {
			continue
		}
		doc, err := c.Get(parts[0])
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Find starts a query against this collection, evaluated client-side over
// a full List() pending a server-side query command.
func (c *Collection) Find() *CollectionQuery {
	return &CollectionQuery{collection: c, builder: query.NewBuilder()}
}

// CollectionQuery builds a query.Builder against a specific collection.
type CollectionQuery struct {
	collection *Collection
	builder    *query.Builder
	err        error
}

// Filter adds a field predicate; operator is one of the aliases
// query.ParseComparisonOp accepts ("=", ">", "contains", ...).
func (q *CollectionQuery) Filter(field, operator string, value interface{}) *CollectionQuery {
	if q.err != nil {
		return q
	}
	if _, err := q.builder.Filter(field, operator, value); err != nil {
		q.err = err
	}
	return q
}

// LogicalOperator sets the operator joining the most recently added
// condition to the next one; operator is one of "and"/"or" and their aliases.
func (q *CollectionQuery) LogicalOperator(operator string) *CollectionQuery {
	if q.err != nil {
		return q
	}
	if _, err := q.builder.LogicalOperator(operator); err != nil {
		q.err = err
	}
	return q
}

func (q *CollectionQuery) SortBy(field string, ascending bool) *CollectionQuery {
	q.builder.SortBy(field, ascending)
	return q
}

func (q *CollectionQuery) Limit(n int) *CollectionQuery {
	q.builder.LimitTo(n)
	return q
}

func (q *CollectionQuery) Skip(n int) *CollectionQuery {
	q.builder.SkipN(n)
	return q
}

func (q *CollectionQuery) Project(fields ...string) *CollectionQuery {
	q.builder.Project(fields)
	return q
}

// Execute lists the collection and applies the built query locally.
func (q *CollectionQuery) Execute() ([]*document.Document, error) {
	if q.err != nil {
		return nil, q.err
	}
	docs, err := q.collection.List()
	if err != nil {
		return nil, err
	}
	built := q.builder.Build()
	return built.Apply(docs)
}

// Transaction is a handle to a server-side transaction begun with
// Client.Begin. Buffered operations route through the same Collection
// methods' underlying commands with a "TX <id>" suffix.
type Transaction struct {
	client *Client
	id     uuid.UUID
}

// ID returns the transaction's id.
func (t *Transaction) ID() uuid.UUID { return t.id }

// Insert buffers an insert under this transaction.
func (t *Transaction) Insert(collection string, doc *document.Document) (uuid.UUID, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return uuid.UUID{}, err
	}
	reply, err := t.client.sendCommand(fmt.Sprintf("INSERT %s %s TX %s", collection, payload, t.id))
	if err != nil {
		return uuid.UUID{}, err
	}
	return parsePrefixedUUID(reply, "Buffered insert:")
}

// Update buffers a whole-document replacement under this transaction.
func (t *Transaction) Update(collection string, doc *document.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = t.client.sendCommand(fmt.Sprintf("UPDATE %s %s TX %s", collection, payload, t.id))
	return err
}

// Delete buffers a delete under this transaction.
func (t *Transaction) Delete(collection, id string) error {
	_, err := t.client.sendCommand(fmt.Sprintf("DELETE %s %s TX %s", collection, id, t.id))
	return err
}

// Patch buffers a field-level patch under this transaction.
func (t *Transaction) Patch(collection, id string, ops []document.PatchOp) error {
	payload, err := json.Marshal(ops)
	if err != nil {
		return err
	}
	_, err = t.client.sendCommand(fmt.Sprintf("PATCH %s %s %s TX %s", collection, id, payload, t.id))
	return err
}

// Commit applies every buffered operation atomically.
func (t *Transaction) Commit() error {
	_, err := t.client.sendCommand("COMMIT " + t.id.String())
	return err
}

// Rollback discards every buffered operation.
func (t *Transaction) Rollback() error {
	_, err := t.client.sendCommand("ROLLBACK " + t.id.String())
	return err
}
