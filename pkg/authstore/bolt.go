package authstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketByWorker = []byte("workers")
	bucketByKey    = []byte("keys")
)

// BoltStore is a durable Store backed by a single bbolt file, for operators
// who want worker credentials to survive a coordinator restart.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "authstore.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open auth store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketByWorker, bucketByKey} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Issue(workerID, workerName string) (Record, error) {
	key, err := generateKey()
	if err != nil {
		return Record{}, err
	}

	var rec Record
	err = s.db.Update(func(tx *bolt.Tx) error {
		workers := tx.Bucket(bucketByWorker)
		keys := tx.Bucket(bucketByKey)

		if workers.Get([]byte(workerID)) != nil {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, workerID)
		}
		for keys.Get([]byte(key)) != nil {
			var genErr error
			key, genErr = generateKey()
			if genErr != nil {
				return genErr
			}
		}

		rec = Record{WorkerID: workerID, WorkerName: workerName, APIKey: key}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := workers.Put([]byte(workerID), data); err != nil {
			return err
		}
		return keys.Put([]byte(key), []byte(workerID))
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *BoltStore) ValidateFor(workerID, apiKey string) error {
	if apiKey == "" {
		return ErrUnauthenticated
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		owner := tx.Bucket(bucketByKey).Get([]byte(apiKey))
		if owner == nil || string(owner) != workerID {
			return ErrUnauthenticated
		}
		return nil
	})
	return err
}

func (s *BoltStore) WorkerForKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrUnauthenticated
	}
	var owner string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketByKey).Get([]byte(apiKey))
		if v == nil {
			return ErrUnauthenticated
		}
		owner = string(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return owner, nil
}

func (s *BoltStore) IsRegistered(workerID string) bool {
	found := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketByWorker).Get([]byte(workerID)) != nil
		return nil
	})
	return found
}

func (s *BoltStore) Revoke(workerID string) bool {
	revoked := false
	_ = s.db.Update(func(tx *bolt.Tx) error {
		workers := tx.Bucket(bucketByWorker)
		data := workers.Get([]byte(workerID))
		if data == nil {
			return nil
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if err := tx.Bucket(bucketByKey).Delete([]byte(rec.APIKey)); err != nil {
			return err
		}
		if err := workers.Delete([]byte(workerID)); err != nil {
			return err
		}
		revoked = true
		return nil
	})
	return revoked
}

func (s *BoltStore) Count() int {
	n := 0
	_ = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketByWorker).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n
}

var _ Store = (*BoltStore)(nil)
