package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolProcessesSubmittedJobs(t *testing.T) {
	p := New(2)
	p.Start(context.Background())
	defer p.Stop()

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		ok := p.Submit(Job{SessionID: "s1", Run: func(ctx context.Context) {
			count.Add(1)
		}})
		require.True(t, ok)
	}

	require.Eventually(t, func() bool { return count.Load() == 10 }, time.Second, 10*time.Millisecond)
}

func TestPoolSizeFloorsAtTwo(t *testing.T) {
	p := New(0)
	assert.GreaterOrEqual(t, cap(p.workers), 2)
	p1 := New(1)
	assert.Equal(t, 2, cap(p1.workers))
}

func TestPoolHealthReportsWorkerCount(t *testing.T) {
	p := New(3)
	p.Start(context.Background())
	defer p.Stop()

	h := p.Health()
	assert.Equal(t, 3, h.TotalWorkers)
	assert.Len(t, h.WorkerStats, 3)
}
