// Package storage implements the embedded document store: collections and
// documents keyed in bbolt buckets standing in for RocksDB column families.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/kartikbazzad/xlimdb/internal/config"
	"github.com/kartikbazzad/xlimdb/internal/document"
	xerrors "github.com/kartikbazzad/xlimdb/internal/errors"
	"github.com/kartikbazzad/xlimdb/internal/logger"
	"github.com/kartikbazzad/xlimdb/internal/metrics"
)

var (
	bucketCollections = []byte("collections")
	bucketDocuments    = []byte("documents")
	bucketMetadata     = []byte("metadata")
	bucketDefault      = []byte("default")
	bucketIndexes      = []byte("indexes") // reserved, see Non-goals
)

// Engine is the embedded storage engine: a bbolt database plus an
// in-memory cache of collection records (avoiding a bucket read on every
// collection-membership check) and a bounded hot-document read cache.
type Engine struct {
	db     *bolt.DB
	cache  *docCache
	logger *logger.Logger

	mu          sync.RWMutex
	collections map[string]*document.Collection
}

// Open creates or opens the database file under cfg.DataDir and loads the
// collection cache.
func Open(cfg *config.Config, log *logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.Default()
	}

	path := cfg.DataDir
	if !strings.HasSuffix(path, ".db") {
		path = path + "/xlimdb.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, xerrors.WrapKind(xerrors.KindIO, "failed to create data directory", err)
	}

	opts := &bolt.Options{
		Timeout: cfg.Storage.OpenTimeout,
		NoSync:  cfg.Storage.NoSync,
	}
	if cfg.Storage.InitialMmapSizeMB > 0 {
		opts.InitialMmapSize = int(cfg.Storage.InitialMmapSizeMB) * 1 << 20
	}

	// bolt.Open can fail transiently if another process briefly holds the
	// file lock (e.g. a prior instance still shutting down); retry with
	// the shared backoff controller rather than failing the whole process.
	var db *bolt.DB
	retry := xerrors.NewRetryController()
	classifier := xerrors.NewClassifier()
	openErr := retry.Retry(func() error {
		var err error
		db, err = bolt.Open(path, 0o600, opts)
		if err == bolt.ErrTimeout {
			// bbolt reports a held file lock as a plain timeout error;
			// tag it as I/O so the classifier treats it as transient.
			return xerrors.WrapKind(xerrors.KindIO, "database file is locked", err)
		}
		return err
	}, classifier)
	if openErr != nil {
		return nil, xerrors.WrapKind(xerrors.KindIO, "failed to open database", openErr)
	}

	err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCollections, bucketDocuments, bucketMetadata, bucketDefault, bucketIndexes} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, xerrors.WrapKind(xerrors.KindStorage, "failed to initialize buckets", err)
	}

	e := &Engine{
		db:          db,
		cache:       newDocCache(cfg.Cache.MaxDocuments),
		logger:      log,
		collections: make(map[string]*document.Collection),
	}
	if !cfg.Cache.Enabled {
		e.cache = newDocCache(0)
	}

	if err := e.loadCollections(); err != nil {
		db.Close()
		return nil, err
	}
	metrics.CollectionsTotal.Set(float64(len(e.collections)))
	for name := range e.collections {
		docs, err := e.ListDocuments(name)
		if err != nil {
			db.Close()
			return nil, err
		}
		metrics.DocumentsTotal.WithLabelValues(name).Set(float64(len(docs)))
	}

	log.Info("storage engine opened at %s (%d collections)", path, len(e.collections))
	return e, nil
}

func (e *Engine) loadCollections() error {
	return e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCollections)
		return b.ForEach(func(k, v []byte) error {
			c, err := decodeCollection(v)
			if err != nil {
				return err
			}
			e.collections[string(k)] = c
			return nil
		})
	})
}

// Close closes the underlying database file.
func (e *Engine) Close() error {
	return e.db.Close()
}

// DB exposes the underlying *bolt.DB so the transaction manager can wrap a
// whole commit in a single atomic bolt.Tx.
func (e *Engine) DB() *bolt.DB {
	return e.db
}

func documentKey(collection, id string) []byte {
	return []byte(collection + ":" + id)
}

// GetCollection returns a copy of the named collection's metadata record.
// Setting or removing metadata keys on the copy leaves the engine's cached
// record unchanged; nested objects and arrays inside metadata values are
// shared with it (see document.Collection.Clone).
func (e *Engine) GetCollection(name string) (*document.Collection, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.collections[name]
	if !ok {
		return nil, xerrors.WrapKind(xerrors.KindCollectionNotFound, name, xerrors.ErrCollectionNotFound)
	}
	return c.Clone(), nil
}

// HasCollection reports whether name exists, without allocating an error.
func (e *Engine) HasCollection(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.collections[name]
	return ok
}

// ListCollections returns a copy of every collection's metadata record.
func (e *Engine) ListCollections() []*document.Collection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*document.Collection, 0, len(e.collections))
	for _, c := range e.collections {
		out = append(out, c.Clone())
	}
	return out
}

// CreateCollection creates a new, empty collection. The name is checked
// with document.ValidateName first.
func (e *Engine) CreateCollection(name string) (*document.Collection, error) {
	if err := document.ValidateName(name); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.collections[name]; exists {
		return nil, xerrors.WrapKind(xerrors.KindInvalidOperation, fmt.Sprintf("collection %q already exists", name), xerrors.ErrCollectionExists)
	}

	c := document.NewCollection(name)
	encoded, err := encodeCollection(c)
	if err != nil {
		return nil, err
	}

	err = e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCollections).Put([]byte(name), encoded)
	})
	if err != nil {
		return nil, xerrors.WrapKind(xerrors.KindStorage, "failed to store collection", err)
	}

	e.collections[name] = c
	metrics.CollectionsTotal.Set(float64(len(e.collections)))
	metrics.DocumentsTotal.WithLabelValues(name).Set(0)
	e.logger.Info("created collection %s", name)
	return c, nil
}

// DeleteCollection removes a collection's record and every document under
// it in one bbolt write transaction, then drops its in-memory entry and any
// cached documents.
func (e *Engine) DeleteCollection(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.collections[name]; !exists {
		return xerrors.WrapKind(xerrors.KindCollectionNotFound, name, xerrors.ErrCollectionNotFound)
	}

	prefix := []byte(name + ":")
	err := e.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketCollections).Delete([]byte(name)); err != nil {
			return err
		}

		docs := tx.Bucket(bucketDocuments)
		c := docs.Cursor()
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := docs.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return xerrors.WrapKind(xerrors.KindStorage, "failed to delete collection", err)
	}

	delete(e.collections, name)
	e.cache.removeCollection(name)
	metrics.CollectionsTotal.Set(float64(len(e.collections)))
	metrics.DocumentsTotal.DeleteLabelValues(name)
	e.logger.Info("deleted collection %s", name)
	return nil
}

// SetCollectionMetadata rewrites the collection's metadata map and
// persists the collection record, bumping UpdatedAt.
func (e *Engine) SetCollectionMetadata(name, key string, value interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, exists := e.collections[name]
	if !exists {
		return xerrors.WrapKind(xerrors.KindCollectionNotFound, name, xerrors.ErrCollectionNotFound)
	}
	c.SetMetadata(key, value)

	encoded, err := encodeCollection(c)
	if err != nil {
		return err
	}
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCollections).Put([]byte(name), encoded)
	})
}

// GetCollectionMetadata reads a single metadata field.
func (e *Engine) GetCollectionMetadata(name, key string) (interface{}, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, exists := e.collections[name]
	if !exists {
		return nil, false, xerrors.WrapKind(xerrors.KindCollectionNotFound, name, xerrors.ErrCollectionNotFound)
	}
	v, ok := c.GetMetadata(key)
	return v, ok, nil
}

// InsertDocument stores doc under collection. This is a put, not an
// insert-if-absent: an existing entry at doc.ID is overwritten silently.
// Callers enforce uniqueness by choosing fresh UUIDs.
func (e *Engine) InsertDocument(collection string, doc *document.Document) error {
	if !e.HasCollection(collection) {
		return xerrors.WrapKind(xerrors.KindCollectionNotFound, collection, xerrors.ErrCollectionNotFound)
	}

	key := documentKey(collection, doc.ID.String())
	encoded, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	isNew := true
	err = e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		isNew = b.Get(key) == nil
		return b.Put(key, encoded)
	})
	if err != nil {
		return xerrors.WrapKind(xerrors.KindStorage, "failed to store document", err)
	}

	e.cache.put(collection, doc.ID.String(), doc.Clone())
	if isNew {
		metrics.DocumentsTotal.WithLabelValues(collection).Inc()
	}
	return nil
}

// GetDocument reads a document, consulting the read cache first. The
// returned document is always a copy: neither cache hit nor miss hands out
// the record the cache itself holds.
func (e *Engine) GetDocument(collection, id string) (*document.Document, error) {
	if !e.HasCollection(collection) {
		return nil, xerrors.WrapKind(xerrors.KindCollectionNotFound, collection, xerrors.ErrCollectionNotFound)
	}

	if doc, ok := e.cache.get(collection, id); ok {
		return doc.Clone(), nil
	}

	key := documentKey(collection, id)
	var doc *document.Document
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDocuments).Get(key)
		if v == nil {
			return xerrors.ErrDocNotFound
		}
		var decodeErr error
		doc, decodeErr = decodeDocument(v)
		return decodeErr
	})
	if err != nil {
		if err == xerrors.ErrDocNotFound {
			return nil, xerrors.WrapKind(xerrors.KindDocumentNotFound, id, err)
		}
		return nil, xerrors.WrapKind(xerrors.KindStorage, "failed to read document", err)
	}

	e.cache.put(collection, id, doc)
	return doc.Clone(), nil
}

// UpdateDocument overwrites an existing document wholesale.
func (e *Engine) UpdateDocument(collection string, doc *document.Document) error {
	if !e.HasCollection(collection) {
		return xerrors.WrapKind(xerrors.KindCollectionNotFound, collection, xerrors.ErrCollectionNotFound)
	}

	key := documentKey(collection, doc.ID.String())
	encoded, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	err = e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		if b.Get(key) == nil {
			return xerrors.ErrDocNotFound
		}
		return b.Put(key, encoded)
	})
	if err != nil {
		if err == xerrors.ErrDocNotFound {
			return xerrors.WrapKind(xerrors.KindDocumentNotFound, doc.ID.String(), err)
		}
		return xerrors.WrapKind(xerrors.KindStorage, "failed to update document", err)
	}

	e.cache.put(collection, doc.ID.String(), doc.Clone())
	return nil
}

// DeleteDocument removes a document by id.
func (e *Engine) DeleteDocument(collection, id string) error {
	if !e.HasCollection(collection) {
		return xerrors.WrapKind(xerrors.KindCollectionNotFound, collection, xerrors.ErrCollectionNotFound)
	}

	key := documentKey(collection, id)
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		if b.Get(key) == nil {
			return xerrors.ErrDocNotFound
		}
		return b.Delete(key)
	})
	if err != nil {
		if err == xerrors.ErrDocNotFound {
			return xerrors.WrapKind(xerrors.KindDocumentNotFound, id, err)
		}
		return xerrors.WrapKind(xerrors.KindStorage, "failed to delete document", err)
	}

	e.cache.remove(collection, id)
	metrics.DocumentsTotal.WithLabelValues(collection).Dec()
	return nil
}

// ListDocuments returns every document in a collection via a prefix scan
// over the documents bucket.
func (e *Engine) ListDocuments(collection string) ([]*document.Document, error) {
	if !e.HasCollection(collection) {
		return nil, xerrors.WrapKind(xerrors.KindCollectionNotFound, collection, xerrors.ErrCollectionNotFound)
	}

	prefix := []byte(collection + ":")
	var docs []*document.Document
	err := e.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDocuments).Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			doc, err := decodeDocument(v)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.WrapKind(xerrors.KindStorage, "failed to list documents", err)
	}
	return docs, nil
}

// StoreMetadata writes a raw key/value pair into the engine-level metadata
// bucket (distinct from a collection's own metadata map).
func (e *Engine) StoreMetadata(key string, value []byte) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(key), value)
	})
}

// GetMetadata reads a raw value from the engine-level metadata bucket.
func (e *Engine) GetMetadata(key string) ([]byte, bool, error) {
	var out []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMetadata).Get([]byte(key))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

// DeleteMetadata removes a raw key from the engine-level metadata bucket.
func (e *Engine) DeleteMetadata(key string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Delete([]byte(key))
	})
}
