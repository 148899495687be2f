package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Pool is a supervised background worker pool. Jobs that cannot be queued, fail
// or panic are written to the dead-letter log instead of being lost silently.
type Pool struct {
	mu       sync.RWMutex
	closed   bool
	queue    chan poolJob
	wg       sync.WaitGroup
	dead     atomic.Int64
	finished atomic.Int64
}

type poolJob struct {
	name string
	fn   func(ctx context.Context) error
}

func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	p := &Pool{queue: make(chan poolJob, queueSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	return p
}

// Submit queues fn without blocking and reports whether it was accepted.
func (p *Pool) Submit(name string, fn func(ctx context.Context) error) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.deadLetter(name, fmt.Errorf("pool stopped"))
		return false
	}
	select {
	case p.queue <- poolJob{name: name, fn: fn}:
		return true
	default:
		p.deadLetter(name, fmt.Errorf("queue full"))
		return false
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for job := range p.queue {
		p.run(id, job)
	}
}

func (p *Pool) run(id int, job poolJob) {
	defer p.finished.Add(1)
	defer func() {
		if rec := recover(); rec != nil {
			p.deadLetter(job.name, fmt.Errorf("panic: %v", rec))
		}
	}()
	ctx := context.Background()
	if err := job.fn(ctx); err != nil {
		p.deadLetter(job.name, err)
		return
	}
	logutil.GetLogger(ctx).Debug("background job done", zap.Int("worker", id), zap.String("job", job.name))
}

func (p *Pool) deadLetter(name string, err error) {
	p.dead.Add(1)
	logutil.GetLogger(context.Background()).Error("background job dead-lettered", zap.String("job", name), zap.Error(err))
}

// DeadLettered counts jobs that were dropped or ended in error.
func (p *Pool) DeadLettered() int64 {
	return p.dead.Load()
}

// Finished counts jobs a worker has run to the end, successful or not.
func (p *Pool) Finished() int64 {
	return p.finished.Load()
}

// Stop rejects new jobs and waits for queued ones to drain.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
