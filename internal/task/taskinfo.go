// Package task holds the mutable per-task records shared between a running
// snapshot pipeline and the layer that polls and cancels it.
package task

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/volsnap-project/volsnap/pkg/model"
)

// Kind distinguishes create from delete tasks.
type Kind string

const (
	KindCreate Kind = "create"
	KindDelete Kind = "delete"
)

// SnapshotTaskInfo is the live record of one snapshot task.
//
// Ownership: the pipeline owns the embedded SnapshotInfo and mutates it
// freely; other goroutines read only the atomic progress and cancel flag, or
// the metadata store. The embedded lock guards the final-transition critical
// section, where completion must not race with cancellation.
type SnapshotTaskInfo struct {
	mu sync.Mutex

	snapshot *model.SnapshotInfo
	kind     Kind

	progress atomic.Uint32
	canceled atomic.Bool

	startedAt  time.Time
	finishOnce sync.Once
	done       chan struct{}
}

// New creates a task record for the given snapshot.
func New(kind Kind, info *model.SnapshotInfo) *SnapshotTaskInfo {
	return &SnapshotTaskInfo{
		snapshot:  info,
		kind:      kind,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Info returns the snapshot record. Only the pipeline may mutate it.
func (t *SnapshotTaskInfo) Info() *model.SnapshotInfo {
	return t.snapshot
}

// Kind returns the task kind.
func (t *SnapshotTaskInfo) Kind() Kind {
	return t.kind
}

// UUID returns the snapshot uuid.
func (t *SnapshotTaskInfo) UUID() string {
	return t.snapshot.UUID
}

// FileName returns the source volume name.
func (t *SnapshotTaskInfo) FileName() string {
	return t.snapshot.FileName
}

// StartedAt returns the task creation time.
func (t *SnapshotTaskInfo) StartedAt() time.Time {
	return t.startedAt
}

// Progress returns the last reported progress in [0,100].
func (t *SnapshotTaskInfo) Progress() uint32 {
	return t.progress.Load()
}

// SetProgress publishes progress. Progress is monotone: a value below the
// current one is ignored, so a resumed task never reports a regression.
func (t *SnapshotTaskInfo) SetProgress(p uint32) {
	for {
		cur := t.progress.Load()
		if p <= cur {
			return
		}
		if t.progress.CompareAndSwap(cur, p) {
			return
		}
	}
}

// Cancel requests cooperative cancellation. Setting the flag is monotone.
func (t *SnapshotTaskInfo) Cancel() {
	t.canceled.Store(true)
}

// IsCanceled reports whether cancellation was requested.
func (t *SnapshotTaskInfo) IsCanceled() bool {
	return t.canceled.Load()
}

// Lock enters the cancellation-sensitive critical section.
func (t *SnapshotTaskInfo) Lock() {
	t.mu.Lock()
}

// Unlock leaves the critical section.
func (t *SnapshotTaskInfo) Unlock() {
	t.mu.Unlock()
}

// Finish signals completion. Idempotent; only the first call transitions.
func (t *SnapshotTaskInfo) Finish() {
	t.finishOnce.Do(func() {
		close(t.done)
	})
}

// Done returns a channel closed when the task finishes.
func (t *SnapshotTaskInfo) Done() <-chan struct{} {
	return t.done
}

// IsFinished reports whether Finish has been called.
func (t *SnapshotTaskInfo) IsFinished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
