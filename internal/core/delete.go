package core

import (
	"github.com/volsnap-project/volsnap/internal/task"
	"github.com/volsnap-project/volsnap/pkg/model"
)

// Delete-pipeline progress map:
//
//	| snapshot map | chunk data | chunk index | metadata |
//	| 10           | 10..80     | 90          | 100      |
const (
	delProgressSnapshotMapDone    = 10
	delProgressChunkDataStart     = delProgressSnapshotMapDone
	delProgressChunkDataDone      = 80
	delProgressChunkIndexDataDone = 90
)

// HandleDeleteSnapshotTask runs the delete pipeline for one task. The
// pipeline is reentrant: object-store deletions tolerate missing keys and
// the metadata deletion is idempotent, so a retried delete cannot
// double-delete.
func (c *Core) HandleDeleteSnapshotTask(t *task.SnapshotTaskInfo) {
	info := t.Info()
	seqNum := info.SeqNum

	snapMap, err := c.buildFileSnapMap(t.FileName(), seqNum)
	if err != nil {
		c.log.ErrorErr("build snapshot map failed", err,
			map[string]any{"file": t.FileName(), "seq": seqNum})
		c.handleDeleteSnapshotError(t)
		return
	}
	t.SetProgress(delProgressSnapshotMapDone)

	name := model.ChunkIndexDataName{FileName: t.FileName(), SeqNum: seqNum}
	exist, err := c.data.ChunkIndexDataExist(name)
	if err != nil {
		c.log.ErrorErr("probe chunk index data failed", err,
			map[string]any{"file": t.FileName(), "seq": seqNum})
		c.handleDeleteSnapshotError(t)
		return
	}
	if exist {
		indexData, err := c.data.GetChunkIndexData(name)
		if err != nil {
			c.log.ErrorErr("get chunk index data failed", err,
				map[string]any{"file": t.FileName(), "seq": seqNum})
			c.handleDeleteSnapshotError(t)
			return
		}

		chunkIndexes := indexData.AllChunkIndexes()
		totalProgress := uint64(delProgressChunkDataDone - delProgressChunkDataStart)
		chunkDataNum := uint64(len(chunkIndexes))

		for index, chunkIndex := range chunkIndexes {
			chunkName, _ := indexData.Get(chunkIndex)
			if !snapMap.IsExistChunk(chunkName) {
				chunkExist, err := c.data.ChunkDataExist(chunkName)
				if err != nil {
					c.log.ErrorErr("probe chunk data failed", err,
						map[string]any{"file": t.FileName(), "chunk": chunkName.ChunkIndex})
					c.handleDeleteSnapshotError(t)
					return
				}
				if chunkExist {
					if err := c.data.DeleteChunkData(chunkName); err != nil {
						c.log.ErrorErr("delete chunk data failed", err,
							map[string]any{"file": t.FileName(), "seq": seqNum,
								"chunk": chunkName.ChunkIndex})
						c.handleDeleteSnapshotError(t)
						return
					}
				}
			}
			t.SetProgress(uint32(delProgressChunkDataStart +
				uint64(index)*totalProgress/chunkDataNum))
		}
		t.SetProgress(delProgressChunkDataDone)

		if err := c.data.DeleteChunkIndexData(name); err != nil {
			c.log.ErrorErr("delete chunk index data failed", err,
				map[string]any{"file": t.FileName(), "seq": seqNum})
			c.handleDeleteSnapshotError(t)
			return
		}
	}

	// A snapshot canceled or failed during creation may still hold the
	// upstream handle; release it before dropping the record.
	if info.Status == model.StatusErrorDeleting || info.Status == model.StatusCanceling {
		if err := c.deleteSnapshotUpstream(info); err != nil {
			c.log.ErrorErr("release upstream snapshot failed", err,
				map[string]any{"uuid": t.UUID()})
			c.handleDeleteSnapshotError(t)
			return
		}
	}

	t.SetProgress(delProgressChunkIndexDataDone)
	if err := c.meta.DeleteSnapshot(t.UUID()); err != nil {
		c.log.ErrorErr("delete snapshot record failed", err,
			map[string]any{"uuid": t.UUID()})
		c.handleDeleteSnapshotError(t)
		return
	}

	t.SetProgress(progressComplete)
	t.Finish()
	c.log.Info("delete snapshot success",
		map[string]any{"uuid": t.UUID(), "file": t.FileName(), "seq": seqNum})
}

func (c *Core) handleDeleteSnapshotError(t *task.SnapshotTaskInfo) {
	info := t.Info()
	info.Status = model.StatusError
	if err := c.meta.UpdateSnapshot(info); err != nil {
		c.log.ErrorErr("persist error status failed", err, map[string]any{"uuid": t.UUID()})
	}
	t.Finish()
	c.log.Error("delete snapshot failed", map[string]any{"uuid": t.UUID(), "file": t.FileName()})
}
