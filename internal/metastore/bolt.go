package metastore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/volsnap-project/volsnap/pkg/model"
)

var snapshotBucket = []byte("snapshots")

// BoltStore persists snapshot records in a bbolt database, one JSON-encoded
// record per uuid.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) a store persisted at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) put(info *model.SnapshotInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", info.UUID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put([]byte(info.UUID), data)
	})
}

// AddSnapshot stores a new record.
func (s *BoltStore) AddSnapshot(info *model.SnapshotInfo) error {
	return s.put(info)
}

// UpdateSnapshot overwrites an existing record.
func (s *BoltStore) UpdateSnapshot(info *model.SnapshotInfo) error {
	return s.put(info)
}

// GetSnapshotInfo loads the record of one uuid.
func (s *BoltStore) GetSnapshotInfo(uuid string) (*model.SnapshotInfo, error) {
	var info *model.SnapshotInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(snapshotBucket).Get([]byte(uuid))
		if data == nil {
			return ErrNotFound
		}
		info = &model.SnapshotInfo{}
		return json.Unmarshal(data, info)
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *BoltStore) scan(filter func(*model.SnapshotInfo) bool) ([]model.SnapshotInfo, error) {
	var list []model.SnapshotInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).ForEach(func(k, v []byte) error {
			var info model.SnapshotInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("parse snapshot %s: %w", k, err)
			}
			if filter(&info) {
				list = append(list, info)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// GetSnapshotList returns the snapshots of one volume.
func (s *BoltStore) GetSnapshotList(file string) ([]model.SnapshotInfo, error) {
	return s.scan(func(info *model.SnapshotInfo) bool {
		return info.FileName == file
	})
}

// ListAll returns every snapshot record.
func (s *BoltStore) ListAll() ([]model.SnapshotInfo, error) {
	return s.scan(func(*model.SnapshotInfo) bool { return true })
}

// DeleteSnapshot removes the record of one uuid. Missing uuids succeed.
func (s *BoltStore) DeleteSnapshot(uuid string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Delete([]byte(uuid))
	})
}
