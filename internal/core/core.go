// Package core implements the snapshot engine: the synchronous precondition
// checks and the asynchronous create and delete pipelines.
package core

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/volsnap-project/volsnap/internal/datastore"
	"github.com/volsnap-project/volsnap/internal/metastore"
	"github.com/volsnap-project/volsnap/internal/namelock"
	"github.com/volsnap-project/volsnap/internal/pool"
	"github.com/volsnap-project/volsnap/internal/refcount"
	"github.com/volsnap-project/volsnap/internal/volume"
	"github.com/volsnap-project/volsnap/pkg/errclass"
	"github.com/volsnap-project/volsnap/pkg/logging"
	"github.com/volsnap-project/volsnap/pkg/model"
	"github.com/volsnap-project/volsnap/pkg/pathutil"
)

// Options tunes the snapshot core.
type Options struct {
	// MaxSnapshotLimit bounds the live snapshots per volume.
	MaxSnapshotLimit int
	// ThreadNum bounds outstanding chunk uploads per create task.
	ThreadNum int
	// ChunkSplitSize is the upload granularity; must divide the chunk size.
	ChunkSplitSize uint64
	// CheckStatusInterval is the poll period while the upstream snapshot
	// finishes deleting.
	CheckStatusInterval time.Duration
	// SessionSettle is the upstream session time; the core waits twice this
	// long after creating an upstream snapshot so the new sequence reaches
	// every volume client.
	SessionSettle time.Duration
}

// Core orchestrates snapshot creation and deletion for many volumes.
type Core struct {
	client volume.Client
	meta   metastore.Store
	data   datastore.Store

	// transferPool parallelizes chunk uploads inside a create task.
	transferPool *pool.Pool

	// volumeLock serializes CreateSnapshotPre per volume; uuidLock serializes
	// DeleteSnapshotPre per snapshot.
	volumeLock *namelock.Registry
	uuidLock   *namelock.Registry

	refs *refcount.Counter
	opts Options
	log  *logging.Logger
}

// New creates a snapshot core. The caller owns the stores; the core owns the
// transfer pool.
func New(client volume.Client, meta metastore.Store, data datastore.Store,
	refs *refcount.Counter, opts Options, log *logging.Logger) *Core {
	if log == nil {
		log = logging.Default()
	}
	c := &Core{
		client:       client,
		meta:         meta,
		data:         data,
		transferPool: pool.New(opts.ThreadNum),
		volumeLock:   namelock.NewRegistry(),
		uuidLock:     namelock.NewRegistry(),
		refs:         refs,
		opts:         opts,
		log:          log,
	}
	c.transferPool.Start()
	return c
}

// Stop drains the transfer pool.
func (c *Core) Stop() {
	c.transferPool.Stop()
}

// Refs returns the clone reference counter consulted by DeleteSnapshotPre.
func (c *Core) Refs() *refcount.Counter {
	return c.refs
}

// CreateSnapshotPre validates a create request and persists the pending
// record the asynchronous pipeline will consume.
func (c *Core) CreateSnapshotPre(file, user, name string) (*model.SnapshotInfo, error) {
	if err := pathutil.ValidateVolumeName(file); err != nil {
		return nil, err
	}
	name, err := pathutil.NormalizeSnapshotName(name)
	if err != nil {
		return nil, err
	}

	guard := c.volumeLock.Lock(file)
	defer guard.Unlock()

	peers, err := c.meta.GetSnapshotList(file)
	if err != nil {
		return nil, errclass.ErrInternal.WithMessagef("list snapshots of %s: %v", file, err)
	}
	for _, snap := range peers {
		if snap.Status == model.StatusError {
			c.log.Info("cannot create snapshot while a peer is in error",
				map[string]any{"file": file, "error_uuid": snap.UUID})
			return nil, errclass.ErrSnapshotCannotCreateWhenError
		}
	}
	if len(peers) >= c.opts.MaxSnapshotLimit {
		c.log.Error("snapshot count reached the limit",
			map[string]any{"file": file, "limit": c.opts.MaxSnapshotLimit})
		return nil, errclass.ErrSnapshotCountReachLimit
	}

	fInfo, err := c.client.GetFileInfo(file, user)
	switch {
	case err == nil:
	case errors.Is(err, volume.ErrNotExist):
		c.log.Error("create snapshot: file not exist",
			map[string]any{"file": file, "user": user, "name": name})
		return nil, errclass.ErrFileNotExist
	case errors.Is(err, volume.ErrAuthFail):
		c.log.Error("create snapshot by invalid user",
			map[string]any{"file": file, "user": user, "name": name})
		return nil, errclass.ErrInvalidUser
	default:
		c.log.ErrorErr("GetFileInfo failed", err, map[string]any{"file": file, "user": user})
		return nil, errclass.ErrInternal.WithMessagef("get file info: %v", err)
	}

	if fInfo.Status != volume.FileStatusCreated && fInfo.Status != volume.FileStatusCloned {
		c.log.Error("cannot create snapshot in current file status",
			map[string]any{"file": file, "status": int(fInfo.Status)})
		return nil, errclass.ErrFileStatusInvalid
	}

	info := model.NewSnapshotInfo(uuid.NewString(), user, file, name)
	if err := c.meta.AddSnapshot(info); err != nil {
		c.log.ErrorErr("AddSnapshot failed", err,
			map[string]any{"uuid": info.UUID, "file": file, "name": name})
		return nil, errclass.ErrInternal.WithMessagef("add snapshot: %v", err)
	}
	return info, nil
}

// DeleteSnapshotPre validates a delete request and persists the transition
// into a deleting status. A nil, nil return means the snapshot does not
// exist and there is nothing to do: delete is idempotent.
func (c *Core) DeleteSnapshotPre(snapUUID, user, file string) (*model.SnapshotInfo, error) {
	guard := c.uuidLock.Lock(snapUUID)
	defer guard.Unlock()

	info, err := c.meta.GetSnapshotInfo(snapUUID)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			return nil, nil
		}
		return nil, errclass.ErrInternal.WithMessagef("get snapshot %s: %v", snapUUID, err)
	}
	if info.User != user {
		c.log.Error("cannot delete snapshot of a different user",
			map[string]any{"uuid": snapUUID, "user": user})
		return nil, errclass.ErrInvalidUser
	}
	if info.FileName != file {
		c.log.Error("cannot delete snapshot, file name does not match",
			map[string]any{"uuid": snapUUID, "file": file})
		return nil, errclass.ErrFileNameNotMatch
	}

	switch info.Status {
	case model.StatusDone:
		info.Status = model.StatusDeleting
	case model.StatusError:
		info.Status = model.StatusErrorDeleting
	case model.StatusCanceling, model.StatusDeleting, model.StatusErrorDeleting:
		return nil, errclass.ErrTaskExist
	case model.StatusPending:
		return nil, errclass.ErrSnapshotCannotDeleteUnfinished
	default:
		c.log.Error("unreachable snapshot status",
			map[string]any{"uuid": snapUUID, "status": string(info.Status)})
		return nil, errclass.ErrInternal.WithMessagef("unexpected status %q", info.Status)
	}

	if c.refs.Get(snapUUID) > 0 {
		return nil, errclass.ErrSnapshotCannotDeleteCloning
	}

	if err := c.meta.UpdateSnapshot(info); err != nil {
		c.log.ErrorErr("UpdateSnapshot failed", err, map[string]any{"uuid": snapUUID})
		return nil, errclass.ErrInternal.WithMessagef("update snapshot: %v", err)
	}
	return info, nil
}

// GetFileSnapshotInfo returns the snapshots of one volume.
func (c *Core) GetFileSnapshotInfo(file string) ([]model.SnapshotInfo, error) {
	return c.meta.GetSnapshotList(file)
}

// GetSnapshotInfo returns the record of one uuid.
func (c *Core) GetSnapshotInfo(snapUUID string) (*model.SnapshotInfo, error) {
	return c.meta.GetSnapshotInfo(snapUUID)
}

// GetSnapshotList returns every snapshot record.
func (c *Core) GetSnapshotList() ([]model.SnapshotInfo, error) {
	return c.meta.ListAll()
}

// buildFileSnapMap loads the union of the chunk indexes of every peer
// snapshot of the volume, i.e. every snapshot at a different sequence.
//
// A peer whose index cannot be fetched is skipped: one failed snapshot with
// no index data must not block deletion of all its peers. The resulting map
// is therefore a lower bound on live references; deleting against it may
// remove chunks a broken peer would have referenced once repaired.
func (c *Core) buildFileSnapMap(file string, seqNum uint64) (*model.FileSnapMap, error) {
	snaps, err := c.meta.GetSnapshotList(file)
	if err != nil {
		return nil, errclass.ErrInternal.WithMessagef("list snapshots of %s: %v", file, err)
	}

	snapMap := &model.FileSnapMap{}
	for _, snap := range snaps {
		if snap.SeqNum == seqNum {
			continue
		}
		name := model.ChunkIndexDataName{FileName: snap.FileName, SeqNum: snap.SeqNum}
		indexData, err := c.data.GetChunkIndexData(name)
		if err != nil {
			c.log.Warn("skip peer snapshot with unreadable chunk index data",
				map[string]any{"file": snap.FileName, "seq": snap.SeqNum, "error": err.Error()})
			continue
		}
		snapMap.Add(indexData)
	}
	return snapMap, nil
}

// deleteSnapshotUpstream releases the upstream snapshot handle and polls
// until the upstream finishes deleting it. Retries tolerate a handle that is
// already gone or already being deleted.
func (c *Core) deleteSnapshotUpstream(info *model.SnapshotInfo) error {
	err := c.client.DeleteSnapshot(info.FileName, info.User, info.SeqNum)
	if err != nil && !errors.Is(err, volume.ErrNotExist) && !errors.Is(err, volume.ErrDeleting) {
		c.log.ErrorErr("upstream DeleteSnapshot failed", err,
			map[string]any{"file": info.FileName, "user": info.User, "seq": info.SeqNum})
		return errclass.ErrInternal.WithMessagef("upstream delete snapshot: %v", err)
	}

	for {
		status, err := c.client.CheckSnapShotStatus(info.FileName, info.User, info.SeqNum)
		if errors.Is(err, volume.ErrNotExist) {
			return nil
		}
		if err != nil {
			c.log.ErrorErr("CheckSnapShotStatus failed", err,
				map[string]any{"file": info.FileName, "seq": info.SeqNum})
			return errclass.ErrInternal.WithMessagef("check snapshot status: %v", err)
		}
		if status != volume.FileStatusDeleting {
			return nil
		}
		time.Sleep(c.opts.CheckStatusInterval)
	}
}
