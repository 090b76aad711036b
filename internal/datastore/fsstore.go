package datastore

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/golang/snappy"

	"github.com/volsnap-project/volsnap/pkg/fsutil"
	"github.com/volsnap-project/volsnap/pkg/model"
)

// FSStore is a filesystem-backed object store. Blobs are snappy
// block-compressed and written atomically; index data is JSON inside the
// compressed blob.
type FSStore struct {
	root string
}

// NewFSStore opens (creating if needed) a store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	for _, sub := range []string{"index", "chunks"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &FSStore{root: dir}, nil
}

// Volume names are slash-separated paths; escape them so each object is a
// single directory entry.
func escapeFile(file string) string {
	return url.QueryEscape(file)
}

func (s *FSStore) indexPath(name model.ChunkIndexDataName) string {
	return filepath.Join(s.root, "index",
		fmt.Sprintf("%s-%d", escapeFile(name.FileName), name.SeqNum))
}

func (s *FSStore) chunkPath(name model.ChunkDataName) string {
	return filepath.Join(s.root, "chunks",
		fmt.Sprintf("%s-%d-%d", escapeFile(name.FileName), name.SeqNum, name.ChunkIndex))
}

func (s *FSStore) putBlob(path string, data []byte) error {
	return fsutil.AtomicWrite(path, snappy.Encode(nil, data), 0644)
}

func (s *FSStore) getBlob(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, fmt.Errorf("decode blob %s: %w", path, err)
	}
	return data, nil
}

func exist(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ChunkIndexDataExist reports whether the index of one snapshot is stored.
func (s *FSStore) ChunkIndexDataExist(name model.ChunkIndexDataName) (bool, error) {
	return exist(s.indexPath(name))
}

// GetChunkIndexData loads the index of one snapshot.
func (s *FSStore) GetChunkIndexData(name model.ChunkIndexDataName) (*model.ChunkIndexData, error) {
	data, err := s.getBlob(s.indexPath(name))
	if err != nil {
		return nil, fmt.Errorf("get chunk index data: %w", err)
	}
	var indexData model.ChunkIndexData
	if err := json.Unmarshal(data, &indexData); err != nil {
		return nil, fmt.Errorf("parse chunk index data: %w", err)
	}
	return &indexData, nil
}

// PutChunkIndexData stores the index of one snapshot.
func (s *FSStore) PutChunkIndexData(name model.ChunkIndexDataName, data *model.ChunkIndexData) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal chunk index data: %w", err)
	}
	return s.putBlob(s.indexPath(name), encoded)
}

// DeleteChunkIndexData removes the index. Missing keys succeed.
func (s *FSStore) DeleteChunkIndexData(name model.ChunkIndexDataName) error {
	return remove(s.indexPath(name))
}

// ChunkDataExist reports whether a chunk blob is stored.
func (s *FSStore) ChunkDataExist(name model.ChunkDataName) (bool, error) {
	return exist(s.chunkPath(name))
}

// GetChunkData loads a chunk blob.
func (s *FSStore) GetChunkData(name model.ChunkDataName) ([]byte, error) {
	data, err := s.getBlob(s.chunkPath(name))
	if err != nil {
		return nil, fmt.Errorf("get chunk data: %w", err)
	}
	return data, nil
}

// PutChunkData stores a chunk blob. The key is deterministic, so a retried
// upload overwrites any partial predecessor.
func (s *FSStore) PutChunkData(name model.ChunkDataName, data []byte) error {
	return s.putBlob(s.chunkPath(name), data)
}

// DeleteChunkData removes a chunk blob. Missing keys succeed.
func (s *FSStore) DeleteChunkData(name model.ChunkDataName) error {
	return remove(s.chunkPath(name))
}
