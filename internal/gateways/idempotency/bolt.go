// Package idempotency remembers client-supplied request keys in a local
// BoltDB file so a retried write returns the first result instead of
// repeating it.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/swapcard/marketplace/internal/domain/apperr"
)

const (
	bucketName   = "idempotency_keys"
	DefaultLease = 30 * time.Second
)

type record struct {
	Value       string    `json:"value"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store struct {
	db    *bolt.DB
	ttl   time.Duration
	lease time.Duration
	now   func() time.Time
}

// Open opens (or creates) the key file at path. Keys older than ttl are
// treated as absent. A claim that has not completed within lease is
// considered abandoned and may be claimed again.
func Open(path string, ttl, lease time.Duration) (*Store, error) {
	if lease <= 0 {
		lease = DefaultLease
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open idempotency store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create idempotency bucket: %w", err)
	}

	return &Store{db: db, ttl: ttl, lease: lease, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func storeKey(scope, key string) []byte {
	return []byte(scope + "\x00" + key)
}

func (s *Store) live(v []byte) (record, bool) {
	if v == nil {
		return record{}, false
	}
	var rec record
	if err := json.Unmarshal(v, &rec); err != nil {
		return record{}, false
	}
	age := s.now().Sub(rec.CreatedAt)
	if s.ttl > 0 && age > s.ttl {
		return record{}, false
	}
	if rec.Value == "" && age > s.lease {
		return record{}, false
	}
	return rec, true
}

func fingerprint(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Claim reserves key within scope for a request described by payload.
// When the key is already held it returns the stored value (empty while
// the first attempt is still running) and claimed=false. Reusing a key
// for a different payload fails with apperr.ErrIdempotencyKeyReused.
func (s *Store) Claim(scope, key, payload string) (value string, claimed bool, err error) {
	fp := fingerprint(payload)
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		k := storeKey(scope, key)
		if rec, ok := s.live(b.Get(k)); ok {
			if rec.Fingerprint != "" && rec.Fingerprint != fp {
				return apperr.ErrIdempotencyKeyReused
			}
			value = rec.Value
			return nil
		}

		data, err := json.Marshal(record{Fingerprint: fp, CreatedAt: s.now().UTC()})
		if err != nil {
			return err
		}
		claimed = true
		return b.Put(k, data)
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return value, claimed, nil
}

// Complete stores the result for a claimed key.
func (s *Store) Complete(scope, key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		k := storeKey(scope, key)
		rec, ok := s.live(b.Get(k))
		if !ok {
			rec = record{CreatedAt: s.now().UTC()}
		}
		rec.Value = value
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// Release drops a claim whose write failed so the client may retry.
func (s *Store) Release(scope, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete(storeKey(scope, key))
	})
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Purge deletes expired keys and reports how many were removed.
func (s *Store) Purge() (int, error) {
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if _, ok := s.live(v); !ok {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency keys: %w", err)
	}
	return removed, nil
}
