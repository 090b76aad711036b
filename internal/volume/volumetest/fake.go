// Package volumetest provides an in-memory volume client for tests.
package volumetest

import (
	"errors"
	"sync"

	"github.com/volsnap-project/volsnap/internal/volume"
)

// Fake is a scriptable volume.Client. Zero values answer like an upstream
// that knows nothing; tests fill in the fields they need.
type Fake struct {
	mu sync.Mutex

	// GetFileInfo
	FileInfo    *volume.FInfo
	FileInfoErr error

	// CreateSnapshot
	NextSeq     uint64
	CreateErr   error
	CreateCalls int

	// GetSnapshot
	SnapInfo         *volume.FInfo
	GetSnapshotCalls int

	// GetSnapshotSegmentInfo; keyed by segment index (offset / SegmentSize).
	SegmentSize uint64
	Segments    map[uint64]*volume.SegmentInfo

	// GetChunkInfo; keyed by chunk id.
	ChunkSn       map[uint64][]uint64
	ChunkInfoErr  error
	ChunkInfoHook func(volume.ChunkIDInfo)

	// ReadChunkSnapshot
	ReadErr error

	// DeleteSnapshot
	DeletedSeqs []uint64
	DeleteHook  func(seq uint64)
}

var _ volume.Client = (*Fake)(nil)

func (f *Fake) GetFileInfo(file, user string) (*volume.FInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FileInfoErr != nil {
		return nil, f.FileInfoErr
	}
	if f.FileInfo == nil {
		return nil, volume.ErrNotExist
	}
	info := *f.FileInfo
	return &info, nil
}

func (f *Fake) CreateSnapshot(file, user string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if f.CreateErr != nil {
		// An in-flight snapshot still reports its sequence.
		if errors.Is(f.CreateErr, volume.ErrUnderSnapshot) {
			return f.NextSeq, f.CreateErr
		}
		return 0, f.CreateErr
	}
	return f.NextSeq, nil
}

func (f *Fake) DeleteSnapshot(file, user string, seq uint64) error {
	f.mu.Lock()
	hook := f.DeleteHook
	f.DeletedSeqs = append(f.DeletedSeqs, seq)
	f.mu.Unlock()
	if hook != nil {
		hook(seq)
	}
	return nil
}

func (f *Fake) GetSnapshot(file, user string, seq uint64) (*volume.FInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetSnapshotCalls++
	if f.SnapInfo == nil {
		return nil, volume.ErrNotExist
	}
	info := *f.SnapInfo
	info.SeqNum = seq
	return &info, nil
}

func (f *Fake) GetSnapshotSegmentInfo(file, user string, seq, offset uint64) (*volume.SegmentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SegmentSize == 0 {
		return nil, volume.ErrNotAllocated
	}
	seg, ok := f.Segments[offset/f.SegmentSize]
	if !ok {
		return nil, volume.ErrNotAllocated
	}
	return seg, nil
}

func (f *Fake) GetChunkInfo(cid volume.ChunkIDInfo) (*volume.ChunkInfoDetail, error) {
	f.mu.Lock()
	hook := f.ChunkInfoHook
	err := f.ChunkInfoErr
	sn := f.ChunkSn[cid.ChunkID]
	f.mu.Unlock()
	if hook != nil {
		hook(cid)
	}
	if err != nil {
		return nil, err
	}
	return &volume.ChunkInfoDetail{ChunkSn: sn}, nil
}

// ReadChunkSnapshot returns length bytes of a pattern derived from the chunk
// id, so uploaded blobs are recognizable.
func (f *Fake) ReadChunkSnapshot(cid volume.ChunkIDInfo, seq, offset, length uint64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	data := make([]byte, length)
	for i := range data {
		data[i] = byte(cid.ChunkID)
	}
	return data, nil
}

// CheckSnapShotStatus reports the upstream delete as already complete.
func (f *Fake) CheckSnapShotStatus(file, user string, seq uint64) (volume.FileStatus, error) {
	return 0, volume.ErrNotExist
}

// Deleted returns a copy of the sequences released upstream.
func (f *Fake) Deleted() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.DeletedSeqs...)
}

// Creates returns how many upstream snapshots were requested.
func (f *Fake) Creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CreateCalls
}
