package pool_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volsnap-project/volsnap/internal/pool"
)

func TestPool_RunsSubmittedWork(t *testing.T) {
	p := pool.New(4)
	p.Start()

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()
	p.Stop()

	assert.Equal(t, int32(32), count.Load())
}

func TestPool_FIFOWithSingleWorker(t *testing.T) {
	p := pool.New(1)
	p.Start()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, p.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	p.Stop()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestPool_StopDrainsQueue(t *testing.T) {
	p := pool.New(2)
	p.Start()

	var count atomic.Int32
	for i := 0; i < 16; i++ {
		require.NoError(t, p.Submit(func() {
			count.Add(1)
		}))
	}
	p.Stop()

	assert.Equal(t, int32(16), count.Load())
	assert.ErrorIs(t, p.Submit(func() {}), pool.ErrStopped)
}

func TestPool_StopTwice(t *testing.T) {
	p := pool.New(1)
	p.Start()
	p.Stop()
	require.NotPanics(t, p.Stop)
}
