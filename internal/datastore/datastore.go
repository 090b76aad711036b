// Package datastore defines the chunk object store the snapshot engine
// writes to, and a filesystem-backed implementation.
package datastore

import (
	"github.com/volsnap-project/volsnap/pkg/model"
)

// Store is the object store holding chunk index data and chunk blobs.
// Deletions tolerate missing keys so cleanup paths are reentrant.
type Store interface {
	ChunkIndexDataExist(name model.ChunkIndexDataName) (bool, error)
	GetChunkIndexData(name model.ChunkIndexDataName) (*model.ChunkIndexData, error)
	PutChunkIndexData(name model.ChunkIndexDataName, data *model.ChunkIndexData) error
	DeleteChunkIndexData(name model.ChunkIndexDataName) error

	ChunkDataExist(name model.ChunkDataName) (bool, error)
	GetChunkData(name model.ChunkDataName) ([]byte, error)
	PutChunkData(name model.ChunkDataName, data []byte) error
	DeleteChunkData(name model.ChunkDataName) error
}
