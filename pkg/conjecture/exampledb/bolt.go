package exampledb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var examplesBucket = []byte("examples")

// Bolt stores examples in a single bbolt file.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates a bbolt database at path. Opening fails after a
// second if another process holds the file.
func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(examplesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating examples bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

func (b *Bolt) Lookup(key []byte) ([]byte, bool, error) {
	var value []byte

	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(examplesBucket).Get(key); v != nil {
			value = bytes.Clone(v)
		}

		return nil
	})
	if err != nil {
		return nil, false, b.wrap(err)
	}

	return value, value != nil, nil
}

func (b *Bolt) Store(key, value []byte) error {
	return b.wrap(b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(examplesBucket).Put(key, value)
	}))
}

func (b *Bolt) Delete(key, value []byte) error {
	return b.wrap(b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(examplesBucket)
		if cur := bkt.Get(key); cur != nil && bytes.Equal(cur, value) {
			return bkt.Delete(key)
		}

		return nil
	}))
}

// Keys returns the stored keys in byte order.
func (b *Bolt) Keys() ([][]byte, error) {
	var keys [][]byte

	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(examplesBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, bytes.Clone(k))
			return nil
		})
	})

	return keys, b.wrap(err)
}

// Close releases the database file.
func (b *Bolt) Close() error {
	return b.wrap(b.db.Close())
}

func (b *Bolt) wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bolt.ErrDatabaseNotOpen):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	default:
		return fmt.Errorf("bolt: %w", err)
	}
}
