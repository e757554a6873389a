package concurrent

import (
	"context"
	"sort"
	"time"
)

type ResultStatusType string

const (
	ResultStatusSuccess ResultStatusType = "success"
	ResultStatusFailure ResultStatusType = "failure"
)

// TaskFunc is the operation behind a Task. A non-nil error becomes a failure
// result carrying err.Error().
type TaskFunc[V any] func(ctx context.Context) (V, error)

// Task is one named unit of work submitted to an Executor.
type Task[V any] struct {
	Name string
	Run  TaskFunc[V]
}

// NewTask is shorthand for building a Task.
func NewTask[V any](name string, run TaskFunc[V]) Task[V] {
	return Task[V]{Name: name, Run: run}
}

// TaskResult is the outcome of a single task. Value is only meaningful when
// Status is ResultStatusSuccess, Error only when it is ResultStatusFailure.
type TaskResult[V any] struct {
	Name     string
	Status   ResultStatusType
	Value    V
	Error    string
	Duration time.Duration
}

func (r TaskResult[V]) Succeeded() bool { return r.Status == ResultStatusSuccess }
func (r TaskResult[V]) Failed() bool    { return r.Status == ResultStatusFailure }

func successResult[V any](name string, value V, d time.Duration) TaskResult[V] {
	return TaskResult[V]{Name: name, Status: ResultStatusSuccess, Value: value, Duration: d}
}

func failureResult[V any](name, msg string, d time.Duration) TaskResult[V] {
	return TaskResult[V]{Name: name, Status: ResultStatusFailure, Error: msg, Duration: d}
}

// ResultSet maps every submitted task name to its outcome.
type ResultSet[V any] map[string]TaskResult[V]

// Successes returns the successful results ordered by task name.
func (rs ResultSet[V]) Successes() []TaskResult[V] {
	return rs.filter(ResultStatusSuccess)
}

// Failures returns the failed results ordered by task name.
func (rs ResultSet[V]) Failures() []TaskResult[V] {
	return rs.filter(ResultStatusFailure)
}

// Counts returns the number of successful and failed results.
func (rs ResultSet[V]) Counts() (succeeded, failed int) {
	for _, r := range rs {
		if r.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

func (rs ResultSet[V]) filter(status ResultStatusType) []TaskResult[V] {
	out := make([]TaskResult[V], 0, len(rs))
	for _, r := range rs {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Observer receives task lifecycle events. Implementations must be safe for
// concurrent use since workers report independently.
// TaskSkipped is reported instead of TaskStarted/TaskFinished for tasks that
// never ran because the context was already done.
type Observer interface {
	TaskStarted(name string)
	TaskFinished(name string, status ResultStatusType, d time.Duration)
	TaskSkipped(name string)
}

type nopObserver struct{}

func (nopObserver) TaskStarted(string)                                  {}
func (nopObserver) TaskFinished(string, ResultStatusType, time.Duration) {}
func (nopObserver) TaskSkipped(string)                                  {}
