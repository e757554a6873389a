// Package concurrent runs batches of named, fallible tasks on a bounded pool
// of goroutines and collects one result per task.
//
// Per-task failures, including panics, are reported as data in the returned
// ResultSet. Execute only returns an error for problems with the batch itself.
package concurrent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrInvalidConcurrency is returned by New when the limit is below one.
	ErrInvalidConcurrency = errors.New("max concurrency must be at least 1")
	// ErrDuplicateTaskName is returned when two tasks in a batch share a name.
	ErrDuplicateTaskName = errors.New("duplicate task name")
	// ErrNilTask is returned when a task has no operation.
	ErrNilTask = errors.New("task has no operation")
)

// Executor runs task batches with at most maxConcurrency operations in
// flight. It holds no per-batch state and may be reused concurrently.
type Executor[V any] struct {
	maxConcurrency int
	logger         *zap.Logger
	observer       Observer
}

// Option configures an Executor.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	observer Observer
}

// WithLogger sets the logger used for batch-level debug output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers an Observer for task lifecycle events.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// New creates an Executor. maxConcurrency must be >= 1.
func New[V any](maxConcurrency int, opts ...Option) (*Executor[V], error) {
	if maxConcurrency < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, maxConcurrency)
	}

	o := &options{
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Executor[V]{
		maxConcurrency: maxConcurrency,
		logger:         o.logger,
		observer:       o.observer,
	}, nil
}

// MaxConcurrency returns the configured limit.
func (e *Executor[V]) MaxConcurrency() int {
	return e.maxConcurrency
}

// Execute runs every task and blocks until all of them have a result.
func (e *Executor[V]) Execute(ctx context.Context, tasks []Task[V]) (ResultSet[V], error) {
	return e.ExecuteWithProgress(ctx, tasks, nil)
}

// ExecuteWithProgress is Execute with a hook called once per finished task.
// The hook runs on the collecting goroutine, one result at a time, in
// completion order.
func (e *Executor[V]) ExecuteWithProgress(ctx context.Context, tasks []Task[V], onResult func(TaskResult[V])) (ResultSet[V], error) {
	if err := validate(tasks); err != nil {
		return nil, err
	}

	results := make(ResultSet[V], len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}

	record := func(r TaskResult[V]) {
		results[r.Name] = r
		if onResult != nil {
			onResult(r)
		}
	}

	start := time.Now()

	// No pool for a single task.
	if len(tasks) == 1 {
		record(runTask(ctx, tasks[0], e.observer))
		e.logBatch(results, 1, time.Since(start))
		return results, nil
	}

	workerCount := min(e.maxConcurrency, len(tasks))
	taskQueue := make(chan Task[V], len(tasks))
	resultQueue := make(chan TaskResult[V], workerCount)

	for _, task := range tasks {
		taskQueue <- task
	}
	close(taskQueue)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		w := &worker[V]{
			ID:         i + 1,
			taskChan:   taskQueue,
			resultChan: resultQueue,
			observer:   e.observer,
			wg:         &wg,
		}
		wg.Add(1)
		go w.start(ctx)
	}

	go func() {
		wg.Wait()
		close(resultQueue)
	}()

	for r := range resultQueue {
		record(r)
	}

	e.logBatch(results, workerCount, time.Since(start))
	return results, nil
}

func (e *Executor[V]) logBatch(results ResultSet[V], workers int, d time.Duration) {
	succeeded, failed := results.Counts()
	e.logger.Debug("batch finished",
		zap.Int("tasks", len(results)),
		zap.Int("workers", workers),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Duration("duration", d))
}

func validate[V any](tasks []Task[V]) error {
	seen := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		if task.Run == nil {
			return fmt.Errorf("%w: %q", ErrNilTask, task.Name)
		}
		if _, dup := seen[task.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateTaskName, task.Name)
		}
		seen[task.Name] = struct{}{}
	}
	return nil
}
