package core

import (
	"errors"

	"github.com/volsnap-project/volsnap/internal/task"
	"github.com/volsnap-project/volsnap/internal/volume"
	"github.com/volsnap-project/volsnap/pkg/errclass"
	"github.com/volsnap-project/volsnap/pkg/model"
)

// buildChunkIndexData walks every allocated segment of the snapshot and
// records, per chunk, the sequence at which the snapshot's version of the
// chunk was written.
//
// The upstream returns up to two sequences per chunk:
//   - two: the chunk was written both before and after the snapshot; the
//     smaller one is the snapshot version.
//   - one: if it is <= the snapshot sequence the chunk belongs to the
//     snapshot at that version; otherwise the chunk was first written after
//     the snapshot and there is nothing to record.
//   - none: the chunk was never written.
//   - more: the upstream is broken.
func (c *Core) buildChunkIndexData(info *model.SnapshotInfo,
	indexData *model.ChunkIndexData, segInfos map[uint64]*volume.SegmentInfo,
	t *task.SnapshotTaskInfo) error {
	fileName := info.FileName
	user := info.User
	seqNum := info.SeqNum
	segmentSize := info.SegmentSize
	chunkSize := info.ChunkSize

	indexData.FileName = fileName

	for i := uint64(0); i < info.FileLength/segmentSize; i++ {
		offset := i * segmentSize
		segInfo, err := c.client.GetSnapshotSegmentInfo(fileName, user, seqNum, offset)
		if errors.Is(err, volume.ErrNotAllocated) {
			continue
		}
		if err != nil {
			return errclass.ErrInternal.WithMessagef(
				"get segment info at offset %d: %v", offset, err)
		}
		segInfos[i] = segInfo

		for j := range segInfo.Chunks {
			cid := segInfo.Chunks[j]
			chunkInfo, err := c.client.GetChunkInfo(cid)
			if err != nil {
				return errclass.ErrInternal.WithMessagef(
					"get chunk info, pool %d copyset %d chunk %d: %v",
					cid.LogicalPoolID, cid.CopysetID, cid.ChunkID, err)
			}

			chunkIndex := i*(segmentSize/chunkSize) + uint64(j)
			switch len(chunkInfo.ChunkSn) {
			case 2:
				seq := min(chunkInfo.ChunkSn[0], chunkInfo.ChunkSn[1])
				indexData.Put(model.ChunkDataName{
					FileName: fileName, SeqNum: seq, ChunkIndex: chunkIndex,
				})
			case 1:
				if seq := chunkInfo.ChunkSn[0]; seq <= seqNum {
					indexData.Put(model.ChunkDataName{
						FileName: fileName, SeqNum: seq, ChunkIndex: chunkIndex,
					})
				}
			case 0:
				// never written
			default:
				return errclass.ErrInternal.WithMessagef(
					"chunk %d returned %d sequences", cid.ChunkID, len(chunkInfo.ChunkSn))
			}

			// Return early on cancel; the stage boundary runs the rollback.
			if t.IsCanceled() {
				return nil
			}
		}
	}

	return nil
}

// buildSegmentInfo reloads the segment layout of a snapshot whose chunk
// index already exists (the recovery path).
func (c *Core) buildSegmentInfo(info *model.SnapshotInfo,
	segInfos map[uint64]*volume.SegmentInfo) error {
	for i := uint64(0); i < info.FileLength/info.SegmentSize; i++ {
		offset := i * info.SegmentSize
		segInfo, err := c.client.GetSnapshotSegmentInfo(
			info.FileName, info.User, info.SeqNum, offset)
		if errors.Is(err, volume.ErrNotAllocated) {
			continue
		}
		if err != nil {
			return errclass.ErrInternal.WithMessagef(
				"get segment info at offset %d: %v", offset, err)
		}
		segInfos[i] = segInfo
	}
	return nil
}
