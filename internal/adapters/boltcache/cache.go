// Package boltcache wraps a ports.Fetcher with an embedded bbolt document
// cache. Every successful fetch overwrites the cached copy for that URL;
// when the network fails, the last good copy is served stale. Writes are
// transactional, so a crash mid-write cannot corrupt previously committed
// documents.
package boltcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amche/layerlink/internal/ports"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Bucket keys
var bucketDocuments = []byte("documents")

// cachedDocument is the stored envelope for one URL.
type cachedDocument struct {
	FetchedAt time.Time       `json:"fetchedAt"`
	Body      json.RawMessage `json:"body"`
}

// Cache implements ports.Fetcher and ports.DocumentCache backed by bbolt.
type Cache struct {
	inner ports.Fetcher
	db    *bolt.DB
	log   *zap.Logger
}

// New opens (or creates) a bbolt database at path and wraps inner with it.
func New(path string, inner ports.Fetcher, log *zap.Logger) (*Cache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	return &Cache{inner: inner, db: db, log: log.Named("cache")}, nil
}

// Close closes the underlying bbolt database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// FetchJSON delegates to the wrapped fetcher and keeps the last good copy
// of every document. On a fetch failure the cached copy is served stale,
// so a start without network still sees the documents from the last run.
// A canceled context never falls back to the cache.
func (c *Cache) FetchJSON(ctx context.Context, url string) ([]byte, error) {
	body, err := c.inner.FetchJSON(ctx, url)
	if err == nil {
		if storeErr := c.store(url, body); storeErr != nil {
			c.log.Warn("caching document failed", zap.String("url", url), zap.Error(storeErr))
		}
		return body, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	cached, fetchedAt, lookupErr := c.lookup(url)
	if lookupErr != nil {
		c.log.Warn("cache lookup failed", zap.String("url", url), zap.Error(lookupErr))
		return nil, err
	}
	if cached == nil {
		return nil, err
	}

	c.log.Warn("serving stale document from cache",
		zap.String("url", url),
		zap.Time("fetchedAt", fetchedAt),
		zap.Error(err))
	return cached, nil
}

// Stats reports how many documents are cached and their stored size.
func (c *Cache) Stats() (ports.CacheStats, error) {
	var stats ports.CacheStats
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			stats.Entries++
			stats.TotalBytes += int64(len(v))
			return nil
		})
	})
	return stats, err
}

// Clear drops every cached document. Idempotent: clearing an empty cache
// is not an error.
func (c *Cache) Clear() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketDocuments); err == bolt.ErrBucketNotFound {
			return nil
		} else {
			return err
		}
	})
}

func (c *Cache) store(url string, body []byte) error {
	data, err := json.Marshal(cachedDocument{
		FetchedAt: time.Now().UTC(),
		Body:      json.RawMessage(body),
	})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketDocuments)
		if err != nil {
			return err
		}
		return b.Put([]byte(url), data)
	})
}

func (c *Cache) lookup(url string) ([]byte, time.Time, error) {
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		if b == nil {
			return nil
		}
		// Copy bytes out of the transaction (bbolt slices are only valid within tx)
		if v := b.Get([]byte(url)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil || data == nil {
		return nil, time.Time{}, err
	}

	var doc cachedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, time.Time{}, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return doc.Body, doc.FetchedAt, nil
}
