// Package queue provides the bounded worker pool that computes session
// snapshots and diffs off the hot ingest path (C6 support).
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// DefaultQueueDepth bounds the number of jobs buffered ahead of the workers.
const DefaultQueueDepth = 256

// Job is a unit of work submitted to the pool. SessionID is carried for
// health reporting only; Run performs the actual work.
type Job struct {
	SessionID string
	Run       func(ctx context.Context)
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth reports the state of a single worker.
type WorkerHealth struct {
	ID               string       `json:"id"`
	Status           WorkerStatus `json:"status"`
	CurrentSessionID string       `json:"currentSessionId,omitempty"`
	JobsProcessed    int          `json:"jobsProcessed"`
	LastActivity     time.Time    `json:"lastActivity"`
}

// PoolHealth reports aggregate pool state.
type PoolHealth struct {
	TotalWorkers  int            `json:"totalWorkers"`
	ActiveWorkers int            `json:"activeWorkers"`
	QueueDepth    int            `json:"queueDepth"`
	QueueCapacity int            `json:"queueCapacity"`
	WorkerStats   []WorkerHealth `json:"workerStats"`
}

// Pool is a fixed-size worker pool draining a buffered job channel. Grounded
// on the teacher's WorkerPool/Worker Start/Stop/Health lifecycle
// (pkg/queue/pool.go, worker.go), adapted from DB-polling session execution
// to in-process snapshot/diff job submission.
type Pool struct {
	jobs     chan Job
	workers  []*worker
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// New creates a pool with the given worker count. A size <= 0 resolves to
// runtime.NumCPU(), floored at 2.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if size < 2 {
		size = 2
	}
	return &Pool{
		jobs:    make(chan Job, DefaultQueueDepth),
		workers: make([]*worker, 0, size),
	}
}

// Start spawns the worker goroutines. Safe to call once; subsequent calls
// are no-ops.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < cap(p.workers); i++ {
		w := &worker{id: fmt.Sprintf("snapshot-worker-%d", i), jobs: p.jobs, status: WorkerStatusIdle, lastActivity: time.Now()}
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go w.run(ctx, &p.wg)
	}
	slog.Info("snapshot worker pool started", "worker_count", len(p.workers))
}

// Stop closes the job channel and waits for all workers to drain it.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.jobs) })
	p.wg.Wait()
	slog.Info("snapshot worker pool stopped")
}

// Submit enqueues a job without blocking. It returns false if the queue is
// full, in which case the caller should compute synchronously or drop the
// request — the pool never applies back-pressure to the ingest path.
func (p *Pool) Submit(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		slog.Warn("snapshot job queue full, dropping job", "session_id", job.SessionID)
		return false
	}
}

// Health reports the current pool and per-worker state.
func (p *Pool) Health() PoolHealth {
	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		stats[i] = w.health()
		if stats[i].Status == WorkerStatusWorking {
			active++
		}
	}
	return PoolHealth{
		TotalWorkers:  len(p.workers),
		ActiveWorkers: active,
		QueueDepth:    len(p.jobs),
		QueueCapacity: cap(p.jobs),
		WorkerStats:   stats,
	}
}

type worker struct {
	id   string
	jobs <-chan Job

	mu               sync.RWMutex
	status           WorkerStatus
	currentSessionID string
	jobsProcessed    int
	lastActivity     time.Time
}

func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			w.setStatus(WorkerStatusWorking, job.SessionID)
			job.Run(ctx)
			w.mu.Lock()
			w.jobsProcessed++
			w.mu.Unlock()
			w.setStatus(WorkerStatusIdle, "")
		}
	}
}

func (w *worker) setStatus(status WorkerStatus, sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentSessionID = sessionID
	w.lastActivity = time.Now()
}

func (w *worker) health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:               w.id,
		Status:           w.status,
		CurrentSessionID: w.currentSessionID,
		JobsProcessed:    w.jobsProcessed,
		LastActivity:     w.lastActivity,
	}
}
