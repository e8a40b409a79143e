package worker_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rickysdata/dataplug/internal/worker"
)

func TestPool_RunsSubmittedJobs(t *testing.T) {
	pool := worker.NewPool(4)

	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		assert.True(t, pool.Submit(func() { ran.Add(1) }))
	}

	pool.Stop()
	assert.Equal(t, int32(20), ran.Load())
}

func TestPool_SubmitAfterStopIsDropped(t *testing.T) {
	pool := worker.NewPool(1)
	pool.Stop()

	var ran atomic.Bool
	assert.False(t, pool.Submit(func() { ran.Store(true) }))
	assert.False(t, ran.Load())
}

func TestPool_StopIsIdempotent(t *testing.T) {
	pool := worker.NewPool(1)
	pool.Stop()
	pool.Stop()
}

// Submissions racing a shutdown are either accepted or refused, never a
// send on the closed queue.
func TestPool_SubmitRacingStopDoesNotPanic(t *testing.T) {
	pool := worker.NewPool(2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				pool.Submit(func() {})
			}
		}()
	}

	pool.Stop()
	wg.Wait()
}
