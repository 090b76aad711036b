package model

import (
	"time"
)

// Status is the lifecycle state of a snapshot record.
type Status string

const (
	// StatusPending marks a snapshot whose create pipeline has not finished.
	StatusPending Status = "pending"
	// StatusDone marks a fully created snapshot.
	StatusDone Status = "done"
	// StatusError marks a snapshot whose pipeline failed; cleanup is manual
	// via delete.
	StatusError Status = "error"
	// StatusCanceling marks a create task that observed a cancel request.
	StatusCanceling Status = "canceling"
	// StatusDeleting marks a done snapshot being removed.
	StatusDeleting Status = "deleting"
	// StatusErrorDeleting marks an error snapshot being removed.
	StatusErrorDeleting Status = "errorDeleting"
)

// UnInitializedSeqNum is the sequence number of a snapshot whose upstream
// counterpart has not been created yet.
const UnInitializedSeqNum uint64 = 0

// SnapshotInfo is the persistent record of one snapshot.
type SnapshotInfo struct {
	UUID         string    `json:"uuid"`
	User         string    `json:"user"`
	FileName     string    `json:"file_name"`
	SnapshotName string    `json:"snapshot_name"`
	SeqNum       uint64    `json:"seq_num"`
	ChunkSize    uint64    `json:"chunk_size"`
	SegmentSize  uint64    `json:"segment_size"`
	FileLength   uint64    `json:"file_length"`
	CreateTime   time.Time `json:"create_time"`
	Status       Status    `json:"status"`
}

// NewSnapshotInfo returns a pending record with an uninitialized sequence.
func NewSnapshotInfo(uuid, user, file, name string) *SnapshotInfo {
	return &SnapshotInfo{
		UUID:         uuid,
		User:         user,
		FileName:     file,
		SnapshotName: name,
		SeqNum:       UnInitializedSeqNum,
		Status:       StatusPending,
	}
}
