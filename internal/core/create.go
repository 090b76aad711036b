package core

import (
	"errors"
	"time"

	"github.com/volsnap-project/volsnap/internal/task"
	"github.com/volsnap-project/volsnap/internal/volume"
	"github.com/volsnap-project/volsnap/pkg/errclass"
	"github.com/volsnap-project/volsnap/pkg/model"
)

// Create-pipeline progress map:
//
//	| upstream snapshot | chunk index data | snapshot map | transfer | metadata |
//	| 5                 | 6                | 10           | 10..99   | 100      |
const (
	progressUpstreamSnapshotDone = 5
	progressChunkIndexDataDone   = 6
	progressSnapshotMapDone      = 10
	progressTransferStart        = progressSnapshotMapDone
	progressTransferDone         = 99
	progressComplete             = 100
)

// HandleCreateSnapshotTask runs the create pipeline for one task.
//
// Failure and cancellation behave differently. A failure interrupts the
// pipeline with no cleanup at all: the system may be corrupt and cleanup
// could make it worse, so only the status is set and a later delete removes
// the leftovers. A cancel triggers cleanup in the reverse of the creation
// order; a failure during that cleanup falls through to the error path.
func (c *Core) HandleCreateSnapshotTask(t *task.SnapshotTaskInfo) {
	info := t.Info()
	fileName := t.FileName()
	seqNum := info.SeqNum

	existIndexData := false
	if seqNum == model.UnInitializedSeqNum {
		if err := c.createSnapshotUpstream(fileName, info); err != nil {
			c.log.ErrorErr("create upstream snapshot failed", err,
				map[string]any{"file": fileName, "uuid": t.UUID()})
			c.handleCreateSnapshotError(t)
			return
		}
		seqNum = info.SeqNum
	} else {
		// Recovery path: the record already carries a sequence, so the chunk
		// index data may have been stored before the crash.
		name := model.ChunkIndexDataName{FileName: fileName, SeqNum: seqNum}
		exist, err := c.data.ChunkIndexDataExist(name)
		if err != nil {
			c.log.ErrorErr("probe chunk index data failed", err,
				map[string]any{"file": fileName, "seq": seqNum})
			c.handleCreateSnapshotError(t)
			return
		}
		existIndexData = exist
	}

	t.SetProgress(progressUpstreamSnapshotDone)
	if t.IsCanceled() {
		c.markCanceling(t)
		c.cancelAfterUpstreamSnapshot(t)
		return
	}

	indexName := model.ChunkIndexDataName{FileName: fileName, SeqNum: seqNum}
	var indexData *model.ChunkIndexData
	segInfos := make(map[uint64]*volume.SegmentInfo)
	if existIndexData {
		loaded, err := c.data.GetChunkIndexData(indexName)
		if err != nil {
			c.log.ErrorErr("get chunk index data failed", err,
				map[string]any{"file": fileName, "seq": seqNum})
			c.handleCreateSnapshotError(t)
			return
		}
		indexData = loaded

		t.SetProgress(progressChunkIndexDataDone)

		if err := c.buildSegmentInfo(info, segInfos); err != nil {
			c.log.ErrorErr("build segment info failed", err,
				map[string]any{"file": fileName, "seq": seqNum})
			c.handleCreateSnapshotError(t)
			return
		}
	} else {
		indexData = model.NewChunkIndexData(fileName)
		if err := c.buildChunkIndexData(info, indexData, segInfos, t); err != nil {
			c.log.ErrorErr("build chunk index data failed", err,
				map[string]any{"file": fileName, "seq": seqNum})
			c.handleCreateSnapshotError(t)
			return
		}

		if err := c.data.PutChunkIndexData(indexName, indexData); err != nil {
			c.log.ErrorErr("put chunk index data failed", err,
				map[string]any{"file": fileName, "seq": seqNum})
			c.handleCreateSnapshotError(t)
			return
		}

		t.SetProgress(progressChunkIndexDataDone)
	}

	if t.IsCanceled() {
		c.markCanceling(t)
		c.cancelAfterChunkIndexData(t)
		return
	}

	snapMap, err := c.buildFileSnapMap(fileName, seqNum)
	if err != nil {
		c.log.ErrorErr("build snapshot map failed", err,
			map[string]any{"file": fileName, "seq": seqNum})
		c.handleCreateSnapshotError(t)
		return
	}
	t.SetProgress(progressSnapshotMapDone)

	err = c.transferSnapshotData(indexData, info, segInfos,
		func(name model.ChunkDataName) bool {
			return snapMap.IsExistChunk(name)
		}, t)
	if err != nil {
		c.log.ErrorErr("transfer snapshot data failed", err,
			map[string]any{"file": fileName, "seq": seqNum})
		c.handleCreateSnapshotError(t)
		return
	}
	t.SetProgress(progressTransferDone)

	// The final transition runs under the task lock so completion cannot
	// race with a concurrent cancel: either the cancel is observed here, or
	// done is persisted and the cancel is moot.
	t.Lock()
	defer t.Unlock()
	if t.IsCanceled() {
		c.markCanceling(t)
		c.cancelAfterTransferSnapshotData(t, indexData, snapMap)
		return
	}

	info.Status = model.StatusDone
	if err := c.meta.UpdateSnapshot(info); err != nil {
		c.log.ErrorErr("update snapshot failed", err, map[string]any{"uuid": t.UUID()})
		c.handleCreateSnapshotError(t)
		return
	}
	t.SetProgress(progressComplete)
	t.Finish()
	c.log.Info("create snapshot success",
		map[string]any{"uuid": t.UUID(), "file": fileName, "seq": seqNum})
}

// createSnapshotUpstream registers the upstream snapshot and fills the record
// with the snapshot's metadata.
func (c *Core) createSnapshotUpstream(fileName string, info *model.SnapshotInfo) error {
	seqNum, err := c.client.CreateSnapshot(fileName, info.User)
	if errors.Is(err, volume.ErrUnderSnapshot) {
		// A previous attempt already registered the snapshot; the client
		// reports the in-flight sequence and re-entry resumes with it.
		if seqNum == model.UnInitializedSeqNum {
			return errclass.ErrInternal.WithMessage(
				"upstream reports a snapshot in flight without its sequence")
		}
		c.log.Info("upstream snapshot already in flight",
			map[string]any{"file": fileName, "seq": seqNum})
	} else if err != nil {
		return errclass.ErrInternal.WithMessagef("upstream create snapshot: %v", err)
	} else {
		c.log.Info("upstream snapshot created",
			map[string]any{"file": fileName, "seq": seqNum})
	}

	snapInfo, err := c.client.GetSnapshot(fileName, info.User, seqNum)
	if err != nil {
		return errclass.ErrInternal.WithMessagef("upstream get snapshot seq %d: %v", seqNum, err)
	}
	info.SeqNum = seqNum
	info.ChunkSize = snapInfo.ChunkSize
	info.SegmentSize = snapInfo.SegmentSize
	info.FileLength = snapInfo.Length
	info.CreateTime = snapInfo.CTime

	if err := c.meta.UpdateSnapshot(info); err != nil {
		return errclass.ErrInternal.WithMessagef("update snapshot: %v", err)
	}

	// Wait two session periods so the new sequence has propagated to every
	// volume client before any of them serves reads for it.
	time.Sleep(2 * c.opts.SessionSettle)

	return nil
}

// markCanceling persists the canceling status before the rollback chain
// starts, so pollers never observe a pending record being torn down.
func (c *Core) markCanceling(t *task.SnapshotTaskInfo) {
	info := t.Info()
	info.Status = model.StatusCanceling
	if err := c.meta.UpdateSnapshot(info); err != nil {
		c.log.ErrorErr("persist canceling status failed", err,
			map[string]any{"uuid": t.UUID()})
	}
}

// cancelAfterTransferSnapshotData rolls back stage 4: every uploaded chunk
// not referenced by a peer snapshot is removed, then the earlier stages are
// rolled back in turn.
func (c *Core) cancelAfterTransferSnapshotData(t *task.SnapshotTaskInfo,
	indexData *model.ChunkIndexData, snapMap *model.FileSnapMap) {
	c.log.Info("cancel after transfer snapshot data", map[string]any{"uuid": t.UUID()})
	for _, chunkIndex := range indexData.AllChunkIndexes() {
		name, _ := indexData.Get(chunkIndex)
		if snapMap.IsExistChunk(name) {
			continue
		}
		exist, err := c.data.ChunkDataExist(name)
		if err != nil {
			c.log.ErrorErr("probe chunk data failed while canceling", err,
				map[string]any{"file": t.FileName(), "seq": name.SeqNum, "chunk": name.ChunkIndex})
			c.handleCreateSnapshotError(t)
			return
		}
		if !exist {
			continue
		}
		if err := c.data.DeleteChunkData(name); err != nil {
			c.log.ErrorErr("delete chunk data failed while canceling", err,
				map[string]any{"file": t.FileName(), "seq": name.SeqNum, "chunk": name.ChunkIndex})
			c.handleCreateSnapshotError(t)
			return
		}
	}
	c.cancelAfterChunkIndexData(t)
}

// cancelAfterChunkIndexData rolls back stage 2: the chunk index is removed,
// then stage 1 is rolled back.
func (c *Core) cancelAfterChunkIndexData(t *task.SnapshotTaskInfo) {
	c.log.Info("cancel after chunk index data", map[string]any{"uuid": t.UUID()})
	info := t.Info()
	name := model.ChunkIndexDataName{FileName: t.FileName(), SeqNum: info.SeqNum}
	if err := c.data.DeleteChunkIndexData(name); err != nil {
		c.log.ErrorErr("delete chunk index data failed while canceling", err,
			map[string]any{"file": t.FileName(), "seq": info.SeqNum})
		c.handleCreateSnapshotError(t)
		return
	}
	c.cancelAfterUpstreamSnapshot(t)
}

// cancelAfterUpstreamSnapshot rolls back stage 1: the upstream handle is
// released and the metadata record removed.
func (c *Core) cancelAfterUpstreamSnapshot(t *task.SnapshotTaskInfo) {
	c.log.Info("cancel after upstream snapshot", map[string]any{"uuid": t.UUID()})
	if err := c.deleteSnapshotUpstream(t.Info()); err != nil {
		c.log.ErrorErr("release upstream snapshot failed while canceling", err,
			map[string]any{"uuid": t.UUID()})
		c.handleCreateSnapshotError(t)
		return
	}
	c.clearSnapshotOnMetaStore(t)
}

func (c *Core) clearSnapshotOnMetaStore(t *task.SnapshotTaskInfo) {
	if err := c.meta.DeleteSnapshot(t.UUID()); err != nil {
		c.log.ErrorErr("delete snapshot record failed while canceling", err,
			map[string]any{"uuid": t.UUID()})
		c.handleCreateSnapshotError(t)
		return
	}
	c.log.Info("create snapshot canceled", map[string]any{"uuid": t.UUID()})
	t.Finish()
}

func (c *Core) handleCreateSnapshotError(t *task.SnapshotTaskInfo) {
	info := t.Info()
	info.Status = model.StatusError
	if err := c.meta.UpdateSnapshot(info); err != nil {
		c.log.ErrorErr("persist error status failed", err, map[string]any{"uuid": t.UUID()})
	}
	t.Finish()
	c.log.Error("create snapshot failed", map[string]any{"uuid": t.UUID(), "file": t.FileName()})
}
