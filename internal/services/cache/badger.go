package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pharmyrus/internal/models"
)

const badgerKeyPrefix = "result:"

// badgerRecord is the JSON value stored per key
type badgerRecord struct {
	StoredAt time.Time                `json:"stored_at"`
	Result   *models.ExtractionResult `json:"result"`
}

// BadgerCache keeps results in an in-memory badger instance. Entries carry
// a native badger TTL; the stored timestamp is also checked against the
// cache clock so expiry is exact.
type BadgerCache struct {
	db     *badger.DB
	ttl    time.Duration
	now    func() time.Time
	logger arbor.ILogger
}

// NewBadgerCache opens an in-memory badger store
func NewBadgerCache(ttl time.Duration, logger arbor.ILogger) (*BadgerCache, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache: %w", err)
	}

	logger.Debug().
		Dur("ttl", ttl).
		Msg("Badger result cache opened in memory")

	return &BadgerCache{
		db:     db,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}, nil
}

// WithClock replaces the time source
func (c *BadgerCache) WithClock(now func() time.Time) *BadgerCache {
	c.now = now
	return c
}

func (c *BadgerCache) Get(key string) (*models.ExtractionResult, bool) {
	var record badgerRecord
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn().
				Err(err).
				Str("key", key).
				Msg("Failed to read cached result")
		}
		return nil, false
	}

	if record.Result == nil || c.expired(record) {
		c.Delete(key)
		return nil, false
	}
	return record.Result, true
}

func (c *BadgerCache) Set(key string, result *models.ExtractionResult) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(badgerRecord{StoredAt: c.now(), Result: result})
	if err != nil {
		return fmt.Errorf("failed to marshal cached result: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(badgerKey(key), data).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

func (c *BadgerCache) Delete(key string) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(key))
	})
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to delete cached result")
	}
}

func (c *BadgerCache) Sweep() int {
	var expiredKeys [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var record badgerRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil || c.expired(record) {
				expiredKeys = append(expiredKeys, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to scan badger cache")
		return 0
	}
	if len(expiredKeys) == 0 {
		return 0
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		for _, key := range expiredKeys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to delete expired results")
		return 0
	}
	return len(expiredKeys)
}

func (c *BadgerCache) Len() int {
	count := 0
	_ = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}

func (c *BadgerCache) expired(record badgerRecord) bool {
	return c.now().Sub(record.StoredAt) > c.ttl
}

func badgerKey(key string) []byte {
	return []byte(badgerKeyPrefix + key)
}
