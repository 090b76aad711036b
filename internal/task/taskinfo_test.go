package task_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volsnap-project/volsnap/internal/task"
	"github.com/volsnap-project/volsnap/pkg/model"
)

func newTask(t *testing.T) *task.SnapshotTaskInfo {
	t.Helper()
	info := model.NewSnapshotInfo("u1", "alice", "/a", "snap1")
	return task.New(task.KindCreate, info)
}

func TestSnapshotTaskInfo_ProgressMonotone(t *testing.T) {
	ti := newTask(t)

	assert.Equal(t, uint32(0), ti.Progress())

	ti.SetProgress(10)
	assert.Equal(t, uint32(10), ti.Progress())

	// A lower value never regresses the published progress.
	ti.SetProgress(5)
	assert.Equal(t, uint32(10), ti.Progress())

	ti.SetProgress(100)
	assert.Equal(t, uint32(100), ti.Progress())
}

func TestSnapshotTaskInfo_CancelMonotone(t *testing.T) {
	ti := newTask(t)

	assert.False(t, ti.IsCanceled())
	ti.Cancel()
	assert.True(t, ti.IsCanceled())
	ti.Cancel()
	assert.True(t, ti.IsCanceled())
}

func TestSnapshotTaskInfo_FinishIdempotent(t *testing.T) {
	ti := newTask(t)

	assert.False(t, ti.IsFinished())
	select {
	case <-ti.Done():
		t.Fatal("done before Finish")
	default:
	}

	ti.Finish()
	require.NotPanics(t, ti.Finish)
	assert.True(t, ti.IsFinished())

	select {
	case <-ti.Done():
	default:
		t.Fatal("Done not closed after Finish")
	}
}

func TestSnapshotTaskInfo_Accessors(t *testing.T) {
	info := model.NewSnapshotInfo("u1", "alice", "/a", "snap1")
	ti := task.New(task.KindDelete, info)

	assert.Equal(t, task.KindDelete, ti.Kind())
	assert.Equal(t, "u1", ti.UUID())
	assert.Equal(t, "/a", ti.FileName())
	assert.Same(t, info, ti.Info())
	assert.False(t, ti.StartedAt().IsZero())
}
