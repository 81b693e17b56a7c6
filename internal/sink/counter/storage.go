package counter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

const (
	bucketName = "rawsniff-counters"
	totalsKey  = "totals"
)

// saved is the persisted form of a counter set.
type saved struct {
	Since  time.Time         `json:"since"`
	Values map[string]uint64 `json:"values"`
}

// storage persists counter totals in a bolt database.
type storage struct {
	db *bolt.DB
}

func openStorage(path string) (*storage, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open counter db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &storage{db: db}, nil
}

// read returns the saved totals, or nil when none were saved yet.
func (s *storage) read() (*saved, error) {
	var result *saved
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(totalsKey))
		if data == nil {
			return nil
		}
		result = &saved{}
		return json.Unmarshal(data, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *storage) write(v saved) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(&v)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(totalsKey), data)
	})
}

func (s *storage) close() error {
	return s.db.Close()
}
