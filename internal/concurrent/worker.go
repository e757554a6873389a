package concurrent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// worker pulls tasks off the shared queue until it is closed.
type worker[V any] struct {
	ID         int
	taskChan   <-chan Task[V]
	resultChan chan<- TaskResult[V]
	observer   Observer
	wg         *sync.WaitGroup
}

func (w *worker[V]) start(ctx context.Context) {
	defer w.wg.Done()

	for task := range w.taskChan {
		w.resultChan <- runTask(ctx, task, w.observer)
	}
}

// runTask executes a single task, turning errors, panics and a done context
// into failure results. It never panics itself.
func runTask[V any](ctx context.Context, task Task[V], observer Observer) (result TaskResult[V]) {
	if err := ctx.Err(); err != nil {
		observer.TaskSkipped(task.Name)
		return failureResult[V](task.Name, fmt.Sprintf("not started: %v", err), 0)
	}

	observer.TaskStarted(task.Name)
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = failureResult[V](task.Name, fmt.Sprintf("panic: %v", r), time.Since(startTime))
		}
		observer.TaskFinished(task.Name, result.Status, result.Duration)
	}()

	value, err := task.Run(ctx)
	duration := time.Since(startTime)
	if err != nil {
		return failureResult[V](task.Name, err.Error(), duration)
	}
	return successResult(task.Name, value, duration)
}
