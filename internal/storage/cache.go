package storage

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kartikbazzad/xlimdb/internal/document"
)

// docCacheKey is a collection name and document id pair, the same shape as
// the "collection:id" storage key without the string concatenation.
type docCacheKey struct {
	collection string
	id         string
}

// docCache is a bounded read-through cache for hot documents, sitting in
// front of the bbolt "documents" bucket. It is invalidated on update,
// delete, and collection drop so it can never serve stale data.
type docCache struct {
	cache *lru.Cache[docCacheKey, *document.Document]
}

func newDocCache(maxDocuments int) *docCache {
	if maxDocuments <= 0 {
		return &docCache{}
	}
	c, err := lru.New[docCacheKey, *document.Document](maxDocuments)
	if err != nil {
		return &docCache{}
	}
	return &docCache{cache: c}
}

func (c *docCache) get(collection, id string) (*document.Document, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Get(docCacheKey{collection, id})
}

func (c *docCache) put(collection, id string, doc *document.Document) {
	if c.cache == nil {
		return
	}
	c.cache.Add(docCacheKey{collection, id}, doc)
}

func (c *docCache) remove(collection, id string) {
	if c.cache == nil {
		return
	}
	c.cache.Remove(docCacheKey{collection, id})
}

// removeCollection evicts every cached document belonging to collection.
// golang-lru/v2 has no prefix-eviction primitive, so this walks the cache's
// keys, which is bounded by maxDocuments and only happens on collection
// drop, not on the hot path.
func (c *docCache) removeCollection(collection string) {
	if c.cache == nil {
		return
	}
	for _, k := range c.cache.Keys() {
		if k.collection == collection {
			c.cache.Remove(k)
		}
	}
}
