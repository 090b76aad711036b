// Package metastore persists snapshot records.
package metastore

import (
	"errors"

	"github.com/volsnap-project/volsnap/pkg/model"
)

// ErrNotFound is returned when a uuid has no record.
var ErrNotFound = errors.New("metastore: snapshot not found")

// Store is the persistent catalog of snapshot records. Every operation is
// atomic; DeleteSnapshot of a missing uuid succeeds.
type Store interface {
	AddSnapshot(info *model.SnapshotInfo) error
	UpdateSnapshot(info *model.SnapshotInfo) error
	GetSnapshotInfo(uuid string) (*model.SnapshotInfo, error)
	// GetSnapshotList returns the snapshots of one volume.
	GetSnapshotList(file string) ([]model.SnapshotInfo, error)
	// ListAll returns every snapshot record.
	ListAll() ([]model.SnapshotInfo, error)
	DeleteSnapshot(uuid string) error
	Close() error
}
