package storage

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"benchq/internal/metrics"
)

const (
	BucketRuns     = "runs"
	BucketRunIndex = "run_index"
	BucketSessions = "sessions"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("item not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store keeps run results and session summaries in one bbolt file.
// Runs are keyed by timestamp so a cursor walk is chronological.
type Store struct {
	db       *bbolt.DB
	filePath string
}

// DefaultPath is ~/.benchq/results.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, ".benchq", "results.db"), nil
}

// Open opens (or creates) the store at path; an empty path means DefaultPath.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "create %s", filepath.Dir(path))
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", path)
	}

	// Initialize Buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{BucketRuns, BucketRunIndex, BucketSessions} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create buckets")
	}

	return &Store{
		db:       db,
		filePath: path,
	}, nil
}

func (s *Store) Path() string {
	return s.filePath
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Emit makes Store a result sink.
func (s *Store) Emit(r metrics.RunResult) error {
	return s.Save(r)
}

// Save stores r under its timestamp and indexes it by ID.
func (s *Store) Save(r metrics.RunResult) error {
	if r.ID == "" {
		return errors.New("run result has no id")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode run result")
	}

	key := runKey(r)
	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(BucketRuns)).Put(key, data); err != nil {
			return err
		}
		return tx.Bucket([]byte(BucketRunIndex)).Put([]byte(r.ID), key)
	})
	return errors.Wrapf(err, "save run %s", r.ID)
}

// List returns every stored result, oldest first.
func (s *Store) List() ([]metrics.RunResult, error) {
	var items []metrics.RunResult

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r metrics.RunResult
			if err := json.Unmarshal(v, &r); err != nil {
				return errors.Wrapf(err, "decode run %s", k)
			}
			items = append(items, r)
		}
		return nil
	})
	return items, err
}

// Get returns the result with the given ID.
func (s *Store) Get(id string) (*metrics.RunResult, error) {
	var r metrics.RunResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(BucketRunIndex)).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		v := tx.Bucket([]byte(BucketRuns)).Get(key)
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &r)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get run %s", id)
	}
	return &r, nil
}

func runKey(r metrics.RunResult) []byte {
	// zero-padded so byte order is time order
	return []byte(fmt.Sprintf("%020d-%s", r.Timestamp.UnixNano(), r.ID))
}
