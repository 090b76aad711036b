package task_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volsnap-project/volsnap/internal/task"
)

func TestTracker_WaitAll(t *testing.T) {
	tracker := task.NewTracker()

	var done sync.WaitGroup
	for i := 0; i < 8; i++ {
		tracker.AddTask()
		done.Add(1)
		go func() {
			defer done.Done()
			time.Sleep(time.Millisecond)
			tracker.Done(nil)
		}()
	}

	tracker.Wait()
	assert.Equal(t, 0, tracker.TaskNum())
	assert.NoError(t, tracker.GetResult())
	done.Wait()
}

func TestTracker_WaitSome(t *testing.T) {
	tracker := task.NewTracker()

	release := make(chan struct{})
	for i := 0; i < 4; i++ {
		tracker.AddTask()
		go func() {
			<-release
			tracker.Done(nil)
		}()
	}

	// Finish exactly one task; WaitSome(1) must return once it lands.
	go func() {
		release <- struct{}{}
	}()
	tracker.WaitSome(1)
	assert.LessOrEqual(t, tracker.TaskNum(), 3)

	close(release)
	tracker.Wait()
}

func TestTracker_FirstFailureSticky(t *testing.T) {
	tracker := task.NewTracker()

	first := errors.New("first failure")
	for i := 0; i < 3; i++ {
		tracker.AddTask()
	}
	tracker.Done(nil)
	tracker.Done(first)
	tracker.Done(errors.New("second failure"))

	tracker.Wait()
	require.Error(t, tracker.GetResult())
	assert.Equal(t, first, tracker.GetResult())
	// Still the same on repeated reads.
	assert.Equal(t, first, tracker.GetResult())
}

func TestTracker_WaitSomeMoreThanOutstanding(t *testing.T) {
	tracker := task.NewTracker()
	tracker.AddTask()
	go tracker.Done(nil)

	// Asking for more completions than outstanding waits for all of them.
	tracker.WaitSome(5)
	assert.Equal(t, 0, tracker.TaskNum())
}
