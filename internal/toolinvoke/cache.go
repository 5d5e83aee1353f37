package toolinvoke

import (
	"encoding/json"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const cacheBucket = "tool_response_cache"

// BboltCache is the default ResponseCache, grounded directly on the
// teacher's cache.Manager bbolt Store/Get pair.
type BboltCache struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// NewBboltCache opens (creating if absent) the tool response cache bucket
// in db, a bbolt handle shared with the session store (one database file
// per node, per the teacher's storage.Manager convention).
func NewBboltCache(db *bbolt.DB, logger *zap.Logger) *BboltCache {
	_ = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cacheBucket))
		return err
	})
	return &BboltCache{db: db, logger: logger}
}

// Get implements ResponseCache.
func (c *BboltCache) Get(key string) (*CachedResponse, bool) {
	var resp *CachedResponse
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(cacheBucket)).Get([]byte(key))
		if data == nil {
			return nil
		}
		var r CachedResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		resp = &r
		return nil
	})
	if err != nil {
		c.logger.Warn("toolinvoke: cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return resp, resp != nil
}

// Set implements ResponseCache.
func (c *BboltCache) Set(key string, resp *CachedResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("toolinvoke: cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	err = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(cacheBucket)).Put([]byte(key), data)
	})
	if err != nil {
		c.logger.Warn("toolinvoke: cache write failed", zap.String("key", key), zap.Error(err))
	}
}
