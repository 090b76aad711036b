package core

import (
	"github.com/volsnap-project/volsnap/internal/task"
	"github.com/volsnap-project/volsnap/internal/volume"
	"github.com/volsnap-project/volsnap/pkg/errclass"
	"github.com/volsnap-project/volsnap/pkg/model"
)

// chunkDataExistFilter reports whether a chunk blob is already referenced by
// a peer snapshot and needs no upload.
type chunkDataExistFilter func(model.ChunkDataName) bool

// transferSnapshotData uploads every chunk of the snapshot that is not
// already shared with a peer, bounded by the configured number of
// outstanding uploads, then releases the upstream snapshot handle.
func (c *Core) transferSnapshotData(indexData *model.ChunkIndexData,
	info *model.SnapshotInfo, segInfos map[uint64]*volume.SegmentInfo,
	filter chunkDataExistFilter, t *task.SnapshotTaskInfo) error {
	segmentSize := info.SegmentSize
	chunkSize := info.ChunkSize
	chunkPerSegment := segmentSize / chunkSize

	if c.opts.ChunkSplitSize == 0 || chunkSize%c.opts.ChunkSplitSize != 0 {
		c.log.Error("chunk size is not aligned to the split size",
			map[string]any{"chunk_size": chunkSize, "split_size": c.opts.ChunkSplitSize})
		return errclass.ErrChunkSizeNotAligned
	}

	chunkIndexes := indexData.AllChunkIndexes()

	// The whole index must be consistent with the segment layout before any
	// upload starts.
	for _, chunkIndex := range chunkIndexes {
		segNum := chunkIndex / chunkPerSegment
		segInfo, ok := segInfos[segNum]
		if !ok {
			return errclass.ErrInternal.WithMessagef(
				"chunk index data does not match segment info: chunk %d has no segment %d",
				chunkIndex, segNum)
		}
		if indexInSeg := chunkIndex % chunkPerSegment; indexInSeg >= uint64(len(segInfo.Chunks)) {
			return errclass.ErrInternal.WithMessagef(
				"chunk %d out of range in segment %d: slot %d of %d",
				chunkIndex, segNum, indexInSeg, len(segInfo.Chunks))
		}
	}

	totalProgress := uint64(progressTransferDone - progressTransferStart)
	transferNum := uint64(len(chunkIndexes))

	tracker := task.NewTracker()
	for index, chunkIndex := range chunkIndexes {
		name, _ := indexData.Get(chunkIndex)
		segNum := chunkIndex / chunkPerSegment
		indexInSeg := chunkIndex % chunkPerSegment

		if segInfo, ok := segInfos[segNum]; ok {
			cid := segInfo.Chunks[indexInSeg]
			if !filter(name) {
				c.submitChunkTransfer(tracker, name, cid, chunkSize)
			}
		}
		if tracker.TaskNum() >= c.opts.ThreadNum {
			tracker.WaitSome(1)
		}
		if err := tracker.GetResult(); err != nil {
			c.log.ErrorErr("chunk transfer failed", err, map[string]any{"uuid": t.UUID()})
			return err
		}

		t.SetProgress(uint32(progressTransferStart +
			uint64(index)*totalProgress/transferNum))
		if t.IsCanceled() {
			// Let in-flight uploads land so the rollback sees every blob.
			tracker.Wait()
			return nil
		}
	}

	tracker.Wait()
	if err := tracker.GetResult(); err != nil {
		c.log.ErrorErr("chunk transfer failed", err, map[string]any{"uuid": t.UUID()})
		return err
	}

	// The upstream handle is only needed while chunks are read from it.
	if err := c.deleteSnapshotUpstream(info); err != nil {
		c.log.ErrorErr("release upstream snapshot failed", err,
			map[string]any{"uuid": t.UUID()})
		return err
	}
	return nil
}

// submitChunkTransfer enqueues the upload of one chunk into the transfer
// pool, tracked by the given tracker.
func (c *Core) submitChunkTransfer(tracker *task.Tracker,
	name model.ChunkDataName, cid volume.ChunkIDInfo, chunkSize uint64) {
	tracker.AddTask()
	err := c.transferPool.Submit(func() {
		tracker.Done(c.transferChunk(name, cid, chunkSize))
	})
	if err != nil {
		tracker.Done(errclass.ErrInternal.WithMessagef("submit chunk transfer: %v", err))
	}
}

// transferChunk reads one chunk from the upstream in split-size pieces and
// stores it as a single blob. The blob key is deterministic, so a retried
// upload overwrites any partial predecessor and the subtask is
// failure-atomic.
func (c *Core) transferChunk(name model.ChunkDataName,
	cid volume.ChunkIDInfo, chunkSize uint64) error {
	splitSize := c.opts.ChunkSplitSize
	buf := make([]byte, 0, chunkSize)
	for offset := uint64(0); offset < chunkSize; offset += splitSize {
		piece, err := c.client.ReadChunkSnapshot(cid, name.SeqNum, offset, splitSize)
		if err != nil {
			return errclass.ErrInternal.WithMessagef(
				"read chunk %d at offset %d: %v", cid.ChunkID, offset, err)
		}
		buf = append(buf, piece...)
	}
	if err := c.data.PutChunkData(name, buf); err != nil {
		return errclass.ErrInternal.WithMessagef(
			"put chunk data %d: %v", name.ChunkIndex, err)
	}
	return nil
}
