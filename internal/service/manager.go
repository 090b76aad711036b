// Package service exposes the snapshot engine: a task manager dispatching
// pipelines into the worker pool, and an HTTP admin surface.
package service

import (
	"sync"
	"time"

	"github.com/volsnap-project/volsnap/internal/core"
	"github.com/volsnap-project/volsnap/internal/pool"
	"github.com/volsnap-project/volsnap/internal/task"
	"github.com/volsnap-project/volsnap/pkg/errclass"
	"github.com/volsnap-project/volsnap/pkg/logging"
	"github.com/volsnap-project/volsnap/pkg/metrics"
	"github.com/volsnap-project/volsnap/pkg/model"
)

// Manager owns the live task table and the pool running snapshot pipelines.
// There is at most one active task per snapshot uuid.
type Manager struct {
	core    *core.Core
	pool    *pool.Pool
	metrics *metrics.Registry
	log     *logging.Logger

	mu    sync.Mutex
	tasks map[string]*task.SnapshotTaskInfo
}

// NewManager creates a manager running pipelines on poolSize workers.
func NewManager(c *core.Core, poolSize int, reg *metrics.Registry, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Default()
	}
	m := &Manager{
		core:    c,
		pool:    pool.New(poolSize),
		metrics: reg,
		log:     log,
		tasks:   make(map[string]*task.SnapshotTaskInfo),
	}
	return m
}

// Start launches the pipeline workers.
func (m *Manager) Start() {
	m.pool.Start()
}

// Stop drains the pipeline pool and the core's transfer pool.
func (m *Manager) Stop() {
	m.pool.Stop()
	m.core.Stop()
}

// Core returns the underlying snapshot core.
func (m *Manager) Core() *core.Core {
	return m.core
}

// CreateSnapshot validates and enqueues a create task. The returned record
// is the pending snapshot; its uuid identifies the task.
func (m *Manager) CreateSnapshot(file, user, name string) (*model.SnapshotInfo, error) {
	info, err := m.core.CreateSnapshotPre(file, user, name)
	if err != nil {
		return nil, err
	}
	if err := m.enqueue(task.New(task.KindCreate, info)); err != nil {
		return nil, err
	}
	return info, nil
}

// DeleteSnapshot validates and enqueues a delete task. A false first return
// means the snapshot did not exist and there was nothing to do.
func (m *Manager) DeleteSnapshot(snapUUID, user, file string) (bool, error) {
	info, err := m.core.DeleteSnapshotPre(snapUUID, user, file)
	if err != nil {
		return false, err
	}
	if info == nil {
		return false, nil
	}
	if err := m.enqueue(task.New(task.KindDelete, info)); err != nil {
		return false, err
	}
	return true, nil
}

// CancelSnapshot requests cooperative cancellation of a live create task.
func (m *Manager) CancelSnapshot(snapUUID string) error {
	m.mu.Lock()
	t, ok := m.tasks[snapUUID]
	m.mu.Unlock()
	if !ok {
		return errclass.ErrFileNotExist.WithMessagef("no live task for %s", snapUUID)
	}
	if t.Kind() != task.KindCreate {
		return errclass.ErrTaskExist.WithMessage("only create tasks can be canceled")
	}
	// The task lock closes the race against the final transition: after the
	// pipeline takes it to persist done, a late cancel has no effect.
	t.Lock()
	defer t.Unlock()
	if t.IsFinished() {
		return errclass.ErrFileNotExist.WithMessagef("task %s already finished", snapUUID)
	}
	t.Cancel()
	return nil
}

// TaskProgress reports the live progress of a task, if one is running.
func (m *Manager) TaskProgress(snapUUID string) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[snapUUID]
	if !ok {
		return 0, false
	}
	return t.Progress(), true
}

// Restore re-enqueues unfinished tasks found in the metadata store. Pending
// snapshots resume creation (stage 1 is skipped when the sequence is already
// assigned); deleting ones resume deletion.
func (m *Manager) Restore() error {
	snapshots, err := m.core.GetSnapshotList()
	if err != nil {
		return err
	}
	for i := range snapshots {
		info := snapshots[i]
		switch info.Status {
		case model.StatusPending:
			m.log.Info("restoring create task",
				map[string]any{"uuid": info.UUID, "file": info.FileName})
			if err := m.enqueue(task.New(task.KindCreate, &info)); err != nil {
				return err
			}
		case model.StatusDeleting, model.StatusErrorDeleting, model.StatusCanceling:
			m.log.Info("restoring delete task",
				map[string]any{"uuid": info.UUID, "file": info.FileName})
			if err := m.enqueue(task.New(task.KindDelete, &info)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) enqueue(t *task.SnapshotTaskInfo) error {
	m.mu.Lock()
	if _, ok := m.tasks[t.UUID()]; ok {
		m.mu.Unlock()
		return errclass.ErrTaskExist.WithMessagef("task for %s already running", t.UUID())
	}
	m.tasks[t.UUID()] = t
	m.mu.Unlock()

	kind := string(t.Kind())
	m.metrics.TaskStarted(kind)
	err := m.pool.Submit(func() {
		m.run(t)
	})
	if err != nil {
		m.retire(t, metrics.ResultError)
		return errclass.ErrInternal.WithMessagef("submit task: %v", err)
	}
	return nil
}

func (m *Manager) run(t *task.SnapshotTaskInfo) {
	switch t.Kind() {
	case task.KindCreate:
		m.core.HandleCreateSnapshotTask(t)
	case task.KindDelete:
		m.core.HandleDeleteSnapshotTask(t)
	}
	m.retire(t, m.result(t))
}

func (m *Manager) result(t *task.SnapshotTaskInfo) string {
	if t.Kind() == task.KindCreate {
		if t.Info().Status == model.StatusDone {
			return metrics.ResultSuccess
		}
		if t.IsCanceled() && t.Info().Status != model.StatusError {
			return metrics.ResultCanceled
		}
		return metrics.ResultError
	}
	if t.Info().Status == model.StatusError {
		return metrics.ResultError
	}
	return metrics.ResultSuccess
}

// retire removes the finished task from the live table. The terminal state
// stays queryable through the metadata store.
func (m *Manager) retire(t *task.SnapshotTaskInfo, result string) {
	m.metrics.TaskFinished(string(t.Kind()), result, time.Since(t.StartedAt()))
	m.mu.Lock()
	delete(m.tasks, t.UUID())
	m.mu.Unlock()
}
