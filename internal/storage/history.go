package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"benchq/internal/config"
)

// Session summarises one invocation of the matrix.
type Session struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Config    config.Config  `json:"config"`
	Summary   SessionSummary `json:"summary"`
}

type SessionSummary struct {
	Complete       int      `json:"complete"`
	Skipped        int      `json:"skipped"`
	Failed         int      `json:"failed"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
	RunIDs         []string `json:"run_ids"`
}

// SaveSession records a finished matrix. A missing ID is generated.
func (s *Store) SaveSession(item Session) (string, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}

	data, err := json.Marshal(item)
	if err != nil {
		return "", errors.Wrap(err, "encode session")
	}

	key := []byte(fmt.Sprintf("%020d-%s", item.Timestamp.UnixNano(), item.ID))
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketSessions)).Put(key, data)
	})
	if err != nil {
		return "", errors.Wrapf(err, "save session %s", item.ID)
	}
	return item.ID, nil
}

// Sessions returns stored sessions, newest first, at most limit (all when
// limit <= 0).
func (s *Store) Sessions(limit int) ([]Session, error) {
	var items []Session

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketSessions)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(items) >= limit {
				break
			}
			var item Session
			if err := json.Unmarshal(v, &item); err != nil {
				return errors.Wrapf(err, "decode session %s", k)
			}
			items = append(items, item)
		}
		return nil
	})
	return items, err
}
