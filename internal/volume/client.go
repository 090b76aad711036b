// Package volume defines the client contract against the upstream volume
// metadata service, and the wire types it exchanges.
package volume

import (
	"errors"
	"time"
)

// Sentinel errors mapping the upstream result codes the engine switches on.
// Any other error from a Client is treated as internal.
var (
	ErrNotExist      = errors.New("volume: not exist")
	ErrAuthFail      = errors.New("volume: auth fail")
	ErrUnderSnapshot = errors.New("volume: under snapshot")
	ErrDeleting      = errors.New("volume: deleting")
	ErrNotAllocated  = errors.New("volume: segment not allocated")
)

// FileStatus is the upstream state of a volume or snapshot file.
type FileStatus int

const (
	FileStatusCreated FileStatus = iota
	FileStatusDeleting
	FileStatusCloning
	FileStatusCloneMetaInstalled
	FileStatusCloned
)

// FInfo describes a volume or snapshot file as known upstream.
type FInfo struct {
	FileName    string
	Length      uint64
	ChunkSize   uint64
	SegmentSize uint64
	SeqNum      uint64
	CTime       time.Time
	Status      FileStatus
}

// ChunkIDInfo locates one chunk in the cluster.
type ChunkIDInfo struct {
	ChunkID       uint64
	LogicalPoolID uint32
	CopysetID     uint32
}

// SegmentInfo describes one allocated segment of a snapshot.
type SegmentInfo struct {
	SegmentSize uint64
	ChunkSize   uint64
	StartOffset uint64
	Chunks      []ChunkIDInfo
}

// ChunkInfoDetail carries the write-sequence history of one chunk. The
// upstream returns at most two sequences: the snapshot version and, if the
// chunk was written after the snapshot, the post-snapshot version.
type ChunkInfoDetail struct {
	ChunkSn []uint64
}

// Client talks to the upstream volume metadata service. Calls block until the
// upstream answers; cancellation of snapshot tasks is cooperative and happens
// between calls.
type Client interface {
	// GetFileInfo fetches volume metadata. ErrNotExist and ErrAuthFail map
	// the upstream precondition failures.
	GetFileInfo(file, user string) (*FInfo, error)

	// CreateSnapshot registers an upstream snapshot and returns its sequence
	// number. ErrUnderSnapshot means a snapshot is already in flight; the
	// returned sequence is then the in-flight snapshot's, so callers
	// re-entering after a crash resume with it.
	CreateSnapshot(file, user string) (uint64, error)

	// DeleteSnapshot releases the upstream snapshot handle. ErrNotExist and
	// ErrDeleting are expected on retry.
	DeleteSnapshot(file, user string, seq uint64) error

	// GetSnapshot fetches the metadata of one upstream snapshot.
	GetSnapshot(file, user string, seq uint64) (*FInfo, error)

	// GetSnapshotSegmentInfo fetches the segment at the given offset.
	// ErrNotAllocated means the volume never wrote that segment.
	GetSnapshotSegmentInfo(file, user string, seq, offset uint64) (*SegmentInfo, error)

	// GetChunkInfo fetches the write-sequence history of one chunk.
	GetChunkInfo(cid ChunkIDInfo) (*ChunkInfoDetail, error)

	// ReadChunkSnapshot reads one piece of a chunk at the given sequence.
	ReadChunkSnapshot(cid ChunkIDInfo, seq, offset, length uint64) ([]byte, error)

	// CheckSnapShotStatus polls the state of an upstream snapshot being
	// deleted. ErrNotExist means the delete completed.
	CheckSnapShotStatus(file, user string, seq uint64) (FileStatus, error)
}
