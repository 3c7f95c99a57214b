package memo

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("memo")

// BoltStore keeps entries in a bbolt file so enriched items survive a
// restart. Expiry is checked lazily on read; Sweep reclaims space.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBolt opens (or creates) the bbolt file at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt cache %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bolt bucket: %w", err)
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

// Get returns the stored value or ErrMiss.
func (s *BoltStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get([]byte(key))
		if raw == nil {
			return ErrMiss
		}
		val, ok := s.decode(raw)
		if !ok {
			return ErrMiss
		}
		out = append([]byte(nil), val...)
		return nil
	})
	return out, err
}

// Set stores value with an absolute expiry of now+ttl (none when ttl <= 0).
func (s *BoltStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixNano()
	}
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt))
	copy(buf[8:], value)

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), buf)
	})
}

// Sweep deletes expired entries and returns how many were removed.
func (s *BoltStore) Sweep() (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if _, ok := s.decode(v); ok {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close closes the underlying file.
func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) decode(raw []byte) ([]byte, bool) {
	if len(raw) < 8 {
		return nil, false
	}
	expiresAt := int64(binary.BigEndian.Uint64(raw[:8]))
	if expiresAt != 0 && s.now().UnixNano() >= expiresAt {
		return nil, false
	}
	return raw[8:], true
}
