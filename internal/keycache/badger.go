package keycache

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "session-key/"

// Badger is a disk-backed cache so resolved session keys survive restarts.
// Badger handles per-entry TTL natively.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the cache at dir.
func OpenBadger(dir string) (*Badger, error) {
	if dir == "" {
		return nil, errors.New("keycache: empty badger dir")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

// Close releases the underlying store.
func (b *Badger) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Get returns the cached session key for serial, if present and unexpired.
func (b *Badger) Get(ctx context.Context, serial string) (string, bool, error) {
	_ = ctx
	if serial == "" {
		return "", false, nil
	}
	var sessionKey string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + serial))
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		sessionKey = string(value)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return sessionKey, true, nil
}

// Set stores the session key for serial.
func (b *Badger) Set(ctx context.Context, serial, sessionKey string, ttl time.Duration) error {
	_ = ctx
	if serial == "" || sessionKey == "" {
		return nil
	}
	return b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(badgerKeyPrefix+serial), []byte(sessionKey))
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}
