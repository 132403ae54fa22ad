package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// PanicResult is produced when a job panics instead of returning
type PanicResult struct {
	Job   Job
	Value any
}

// GetError describes the panic as an error
func (r *PanicResult) GetError() error {
	return fmt.Errorf("job panicked: %v", r.Value)
}

// Pool runs jobs on a fixed number of workers, so at most `workers` jobs
// execute at any moment. Cancelling the parent context stops the workers;
// jobs still queued at that point are never executed.
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	queueOnce  sync.Once
	startOnce  sync.Once

	active atomic.Int32
	peak   atomic.Int32
}

// NewPool creates a new worker pool bound to ctx. queueSize sizes both the
// job and result buffers; values below workers*2 are raised to it.
func NewPool(ctx context.Context, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < workers*2 {
		queueSize = workers * 2
	}

	poolCtx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, queueSize),
		results:    make(chan Result, queueSize),
		ctx:        poolCtx,
		cancelFunc: cancel,
	}
}

// Start starts the worker pool. Results() is closed once every worker exits.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}

		go func() {
			p.wg.Wait()
			p.closeResults()
			p.cancelFunc()
		}()
	})
}

// worker is the worker goroutine that processes jobs
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			// A job dequeued together with cancellation is dropped unexecuted
			if p.ctx.Err() != nil {
				return
			}
			p.deliver(p.run(job))
		}
	}
}

// run executes one job, tracking the concurrency high-water mark and
// converting a panic into a PanicResult
func (p *Pool) run(job Job) (result Result) {
	n := p.active.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	defer func() {
		p.active.Add(-1)
		if r := recover(); r != nil {
			result = &PanicResult{Job: job, Value: r}
		}
	}()

	return job.Execute(p.ctx)
}

// deliver hands a result to the consumer, preferring delivery over
// cancellation when buffer space is available
func (p *Pool) deliver(result Result) {
	select {
	case p.results <- result:
		return
	default:
	}

	select {
	case p.results <- result:
	case <-p.ctx.Done():
	}
}

// Submit queues a job. It returns false if the pool was cancelled first.
// Submit must not be called after Close.
func (p *Pool) Submit(job Job) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// Close signals that no more jobs will be submitted
func (p *Pool) Close() {
	p.queueOnce.Do(func() {
		close(p.jobQueue)
	})
}

// Results streams job results in completion order
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Peak returns the highest number of jobs that ever executed at once
func (p *Pool) Peak() int {
	return int(p.peak.Load())
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
