package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// watermarksBucket holds one nested bucket per repository; key: branch -> SHA.
var watermarksBucket = []byte("watermarks")

// BoltStore keeps watermarks in a bbolt database.
type BoltStore struct {
	db  *bbolt.DB
	log *zap.SugaredLogger
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path string, log *zap.SugaredLogger) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(watermarksBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing state database: %w", err)
	}
	return &BoltStore{db: db, log: log}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Load reads every watermark. Read failures yield an empty mapping.
func (s *BoltStore) Load() Watermarks {
	wm := Watermarks{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(watermarksBucket)
		if root == nil {
			return nil
		}
		return root.ForEach(func(repo, v []byte) error {
			if v != nil {
				return nil
			}
			branches := make(map[string]string)
			if err := root.Bucket(repo).ForEach(func(branch, sha []byte) error {
				branches[string(branch)] = string(sha)
				return nil
			}); err != nil {
				return err
			}
			wm[string(repo)] = branches
			return nil
		})
	})
	if err != nil {
		s.log.Warnw("could not read state database, starting with empty state", "error", err)
		return Watermarks{}
	}
	s.log.Debugw("loaded state", "branches", wm.Len())
	return wm
}

// Save replaces the stored mapping in a single transaction.
func (s *BoltStore) Save(wm Watermarks) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(watermarksBucket) != nil {
			if err := tx.DeleteBucket(watermarksBucket); err != nil {
				return err
			}
		}
		root, err := tx.CreateBucket(watermarksBucket)
		if err != nil {
			return err
		}
		for repo, branches := range wm {
			b, err := root.CreateBucket([]byte(repo))
			if err != nil {
				return err
			}
			for branch, sha := range branches {
				if err := b.Put([]byte(branch), []byte(sha)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}
