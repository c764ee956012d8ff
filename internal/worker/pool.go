// Package worker runs background jobs on a fixed number of goroutines and
// keeps their status so callers can observe completion.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/library-lending/internal/logging"
)

var (
	ErrPoolStopped = errors.New("worker: pool has been stopped")
	ErrQueueFull   = errors.New("worker: queue is full")
	ErrJobNotFound = errors.New("worker: job not found")
	ErrNilFunc     = errors.New("worker: cannot submit nil func")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Func is the work performed by a job. Its result is kept on the job.
type Func = func(ctx context.Context) (any, error)

// Job is a snapshot of a submitted job.
type Job struct {
	ID          string
	Name        string
	Status      Status
	Result      any
	Error       string
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Done reports whether the job reached a terminal state.
func (j Job) Done() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// Config sizes the pool.
type Config struct {
	Concurrency int
	QueueSize   int
	// MaxRetained bounds how many finished jobs are remembered.
	MaxRetained int
}

type entry struct {
	job    Job
	fn     Func
	logger *slog.Logger
	done   chan struct{}
}

// Pool executes submitted jobs.
type Pool struct {
	mu       sync.Mutex
	jobs     map[string]*entry
	finished []string
	queue    chan *entry
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	maxRetained int
	now         func() time.Time
	logger      *slog.Logger
}

// New starts a pool with cfg.Concurrency workers.
func New(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.MaxRetained < 1 {
		cfg.MaxRetained = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:        make(map[string]*entry),
		queue:       make(chan *entry, cfg.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
		maxRetained: cfg.MaxRetained,
		now:         time.Now,
		logger:      logger.With("component", "worker"),
	}
	for i := 0; i < cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Submit queues fn and returns the job id. The logger carried by ctx, if any,
// is handed to the job; ctx cancellation is not.
func (p *Pool) Submit(ctx context.Context, name string, fn Func) (string, error) {
	if fn == nil {
		return "", ErrNilFunc
	}
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = p.logger
	}

	e := &entry{
		job: Job{
			ID:          uuid.NewString(),
			Name:        name,
			Status:      StatusQueued,
			SubmittedAt: p.now(),
		},
		fn:   fn,
		done: make(chan struct{}),
	}
	e.logger = logger.With("job_name", name, "job_id", e.job.ID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return "", ErrPoolStopped
	}
	select {
	case p.queue <- e:
	default:
		return "", ErrQueueFull
	}
	p.jobs[e.job.ID] = e
	return e.job.ID, nil
}

// Get returns a snapshot of the job.
func (p *Pool) Get(id string) (Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return e.job, nil
}

// Wait blocks until the job finishes or ctx is done.
func (p *Pool) Wait(ctx context.Context, id string) (Job, error) {
	p.mu.Lock()
	e, ok := p.jobs[id]
	p.mu.Unlock()
	if !ok {
		return Job{}, ErrJobNotFound
	}
	select {
	case <-e.done:
		return p.Get(id)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued and running jobs. When
// ctx expires first, running jobs are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-drained
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for e := range p.queue {
		p.execute(e)
	}
}

func (p *Pool) execute(e *entry) {
	p.mu.Lock()
	e.job.Status = StatusRunning
	e.job.StartedAt = p.now()
	p.mu.Unlock()

	ctx := logging.ContextWithLogger(p.ctx, e.logger)
	result, err := p.call(ctx, e)

	p.mu.Lock()
	e.job.FinishedAt = p.now()
	e.job.Result = result
	if err != nil {
		e.job.Status = StatusFailed
		e.job.Error = err.Error()
	} else {
		e.job.Status = StatusSucceeded
	}
	p.finished = append(p.finished, e.job.ID)
	p.prune()
	duration := e.job.FinishedAt.Sub(e.job.StartedAt)
	p.mu.Unlock()
	close(e.done)

	if err != nil {
		e.logger.Error("job failed", "error", err, "duration", duration)
		return
	}
	e.logger.Info("job finished", "duration", duration)
}

func (p *Pool) call(ctx context.Context, e *entry) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return e.fn(ctx)
}

// prune drops the oldest finished jobs beyond maxRetained. Caller holds mu.
func (p *Pool) prune() {
	for len(p.finished) > p.maxRetained {
		delete(p.jobs, p.finished[0])
		p.finished = p.finished[1:]
	}
}
