package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
)

// Worker is a background job consumer managed by a WorkerPool
type Worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Name() string
	IsRunning() bool
	Stats() WorkerStats
}

// WorkerStats is a snapshot of a worker's counters
type WorkerStats struct {
	WorkerName         string        `json:"worker_name"`
	JobsProcessed      int64         `json:"jobs_processed"`
	JobsSucceeded      int64         `json:"jobs_succeeded"`
	JobsFailed         int64         `json:"jobs_failed"`
	AverageProcessTime time.Duration `json:"average_process_time"`
	LastJobTime        time.Time     `json:"last_job_time,omitempty"`
	Uptime             time.Duration `json:"uptime"`
	IsRunning          bool          `json:"is_running"`
}

// WorkerConfig holds configuration for workers
type WorkerConfig struct {
	WorkerName string
	// Concurrency is the number of polling goroutines
	Concurrency  int
	PollInterval time.Duration
	// ShutdownTimeout bounds how long Stop waits for in-flight jobs
	ShutdownTimeout time.Duration
	EnableRecovery  bool
}

// DefaultWorkerConfig returns a worker configuration with sensible defaults.
// Failed jobs are never retried.
func DefaultWorkerConfig(workerName string) WorkerConfig {
	return WorkerConfig{
		WorkerName:      workerName,
		Concurrency:     2,
		PollInterval:    2 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		EnableRecovery:  true,
	}
}

type jobStats struct {
	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	busy      atomic.Int64 // nanoseconds spent in jobs
	last      atomic.Int64 // unix nanoseconds of the last finished job
}

func (s *jobStats) observe(elapsed time.Duration, err error) {
	s.processed.Add(1)
	if err != nil {
		s.failed.Add(1)
	} else {
		s.succeeded.Add(1)
	}
	s.busy.Add(int64(elapsed))
	s.last.Store(time.Now().UnixNano())
}

// BaseWorker runs Concurrency polling loops and tracks their statistics.
// Concrete workers embed it and supply the loop.
type BaseWorker struct {
	config WorkerConfig

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	stop      chan struct{}
	wg        sync.WaitGroup

	stats jobStats
}

// NewBaseWorker creates a new base worker
func NewBaseWorker(config WorkerConfig) *BaseWorker {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	return &BaseWorker{config: config}
}

func (w *BaseWorker) Name() string {
	return w.config.WorkerName
}

// Config returns the effective configuration
func (w *BaseWorker) Config() WorkerConfig {
	return w.config
}

func (w *BaseWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// launch starts Concurrency loops. It fails if the worker already runs.
func (w *BaseWorker) launch(ctx context.Context, loop func(ctx context.Context, id int, stop <-chan struct{})) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return NewWorkerError(w.Name(), "start", nil, "worker already running")
	}
	w.running = true
	w.startedAt = time.Now()
	w.stop = make(chan struct{})

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go func(id int, stop <-chan struct{}) {
			defer w.wg.Done()
			loop(ctx, id, stop)
		}(i, w.stop)
	}
	return nil
}

// shutdown signals the loops and waits for them, bounded by
// ShutdownTimeout and ctx
func (w *BaseWorker) shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stop)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	if w.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.ShutdownTimeout)
		defer cancel()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return NewWorkerError(w.Name(), "stop", ctx.Err(), "")
	}
}

// track runs fn and records its duration and outcome
func (w *BaseWorker) track(fn func() error) error {
	start := time.Now()
	err := fn()
	w.stats.observe(time.Since(start), err)
	return err
}

func (w *BaseWorker) Stats() WorkerStats {
	w.mu.Lock()
	running := w.running
	var uptime time.Duration
	if !w.startedAt.IsZero() {
		uptime = time.Since(w.startedAt)
	}
	w.mu.Unlock()

	stats := WorkerStats{
		WorkerName:    w.config.WorkerName,
		JobsProcessed: w.stats.processed.Load(),
		JobsSucceeded: w.stats.succeeded.Load(),
		JobsFailed:    w.stats.failed.Load(),
		Uptime:        uptime,
		IsRunning:     running,
	}
	if stats.JobsProcessed > 0 {
		stats.AverageProcessTime = time.Duration(w.stats.busy.Load() / stats.JobsProcessed)
	}
	if last := w.stats.last.Load(); last > 0 {
		stats.LastJobTime = time.Unix(0, last)
	}
	return stats
}

// WorkerPool starts and stops a set of uniquely named workers together
type WorkerPool struct {
	mu      sync.RWMutex
	workers []Worker
}

func NewWorkerPool() *WorkerPool {
	return &WorkerPool{}
}

// AddWorker registers a worker. Names must be unique within the pool.
func (p *WorkerPool) AddWorker(worker Worker) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.workers {
		if existing.Name() == worker.Name() {
			return NewWorkerError(worker.Name(), "add", nil, "worker "+worker.Name()+" already registered")
		}
	}
	p.workers = append(p.workers, worker)
	return nil
}

// StartAll starts every worker in registration order. If one fails, the
// ones already started are stopped again.
func (p *WorkerPool) StartAll(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for i, worker := range p.workers {
		if err := worker.Start(ctx); err != nil {
			rollback := make([]error, 0, i)
			for _, started := range p.workers[:i] {
				rollback = append(rollback, started.Stop(context.WithoutCancel(ctx)))
			}
			return errors.Join(NewWorkerError(worker.Name(), "start", err, ""), errors.Join(rollback...))
		}
	}
	return nil
}

// StopAll stops all workers concurrently and joins their errors
func (p *WorkerPool) StopAll(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var wg sync.WaitGroup
	errs := make([]error, len(p.workers))
	for i, worker := range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = worker.Stop(ctx)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// GetWorker returns the named worker or nil
func (p *WorkerPool) GetWorker(name string) Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, worker := range p.workers {
		if worker.Name() == name {
			return worker
		}
	}
	return nil
}

func (p *WorkerPool) GetAllStats() []WorkerStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	stats := make([]WorkerStats, len(p.workers))
	for i, worker := range p.workers {
		stats[i] = worker.Stats()
	}
	return stats
}

func (p *WorkerPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// JobProcessor handles one dequeued job
type JobProcessor func(ctx context.Context, job *repositories.Job) error

// RecoverableJobProcessor turns a panic in processor into a WorkerPanicError
func RecoverableJobProcessor(processor JobProcessor) JobProcessor {
	return func(ctx context.Context, job *repositories.Job) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &WorkerPanicError{Panic: r, JobID: job.ID}
			}
		}()
		return processor(ctx, job)
	}
}

// WorkerError is a lifecycle failure of a named worker
type WorkerError struct {
	WorkerName string
	Operation  string
	Err        error
	Message    string
}

func (e *WorkerError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("worker %s: %s: %v", e.WorkerName, e.Operation, e.Err)
	default:
		return fmt.Sprintf("worker %s: %s failed", e.WorkerName, e.Operation)
	}
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

func NewWorkerError(workerName, operation string, err error, message string) *WorkerError {
	return &WorkerError{
		WorkerName: workerName,
		Operation:  operation,
		Err:        err,
		Message:    message,
	}
}

// WorkerPanicError is a recovered panic from a job
type WorkerPanicError struct {
	Panic interface{}
	JobID string
}

func (e *WorkerPanicError) Error() string {
	return fmt.Sprintf("worker panic: %v", e.Panic)
}
