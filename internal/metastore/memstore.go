package metastore

import (
	"sync"

	"github.com/volsnap-project/volsnap/pkg/model"
)

// MemStore keeps snapshot records in memory. Used by tests and ephemeral runs.
type MemStore struct {
	mu        sync.RWMutex
	snapshots map[string]model.SnapshotInfo
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		snapshots: make(map[string]model.SnapshotInfo),
	}
}

// AddSnapshot stores a new record.
func (s *MemStore) AddSnapshot(info *model.SnapshotInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[info.UUID] = *info
	return nil
}

// UpdateSnapshot overwrites an existing record.
func (s *MemStore) UpdateSnapshot(info *model.SnapshotInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[info.UUID] = *info
	return nil
}

// GetSnapshotInfo loads the record of one uuid.
func (s *MemStore) GetSnapshotInfo(uuid string) (*model.SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.snapshots[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	return &info, nil
}

// GetSnapshotList returns the snapshots of one volume.
func (s *MemStore) GetSnapshotList(file string) ([]model.SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []model.SnapshotInfo
	for _, info := range s.snapshots {
		if info.FileName == file {
			list = append(list, info)
		}
	}
	return list, nil
}

// ListAll returns every snapshot record.
func (s *MemStore) ListAll() ([]model.SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]model.SnapshotInfo, 0, len(s.snapshots))
	for _, info := range s.snapshots {
		list = append(list, info)
	}
	return list, nil
}

// DeleteSnapshot removes the record of one uuid. Missing uuids succeed.
func (s *MemStore) DeleteSnapshot(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, uuid)
	return nil
}

// Close is a no-op.
func (s *MemStore) Close() error {
	return nil
}
