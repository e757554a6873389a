package concurrent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okTask(name string, v int) Task[int] {
	return NewTask(name, func(context.Context) (int, error) { return v, nil })
}

func errTask(name, msg string) Task[int] {
	return NewTask(name, func(context.Context) (int, error) { return 0, errors.New(msg) })
}

func sleepTask(name string, d time.Duration) Task[int] {
	return NewTask(name, func(context.Context) (int, error) {
		time.Sleep(d)
		return 0, nil
	})
}

func TestNew_RejectsZeroConcurrency(t *testing.T) {
	_, err := New[int](0)
	require.ErrorIs(t, err, ErrInvalidConcurrency)

	_, err = New[int](-3)
	require.ErrorIs(t, err, ErrInvalidConcurrency)

	e, err := New[int](4)
	require.NoError(t, err)
	assert.Equal(t, 4, e.MaxConcurrency())
}

func TestExecute_EmptyBatch(t *testing.T) {
	e, err := New[int](5)
	require.NoError(t, err)

	results, err := e.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestExecute_SingleTask(t *testing.T) {
	e, err := New[int](5)
	require.NoError(t, err)

	results, err := e.Execute(context.Background(), []Task[int]{okTask("only", 42)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results["only"].Succeeded())
	assert.Equal(t, 42, results["only"].Value)

	results, err = e.Execute(context.Background(), []Task[int]{errTask("only", "nope")})
	require.NoError(t, err)
	assert.True(t, results["only"].Failed())
	assert.Equal(t, "nope", results["only"].Error)
}

func TestExecute_MixedResults(t *testing.T) {
	e, err := New[int](3)
	require.NoError(t, err)

	var tasks []Task[int]
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("t%d", i)
		if i == 1 || i == 3 {
			tasks = append(tasks, errTask(name, "boom"))
			continue
		}
		tasks = append(tasks, okTask(name, i))
	}

	results, err := e.Execute(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 5)

	for _, name := range []string{"t1", "t3"} {
		assert.Equal(t, ResultStatusFailure, results[name].Status, name)
		assert.Equal(t, "boom", results[name].Error, name)
	}
	for i, name := range map[int]string{0: "t0", 2: "t2", 4: "t4"} {
		assert.Equal(t, ResultStatusSuccess, results[name].Status, name)
		assert.Equal(t, i, results[name].Value, name)
	}

	succeeded, failed := results.Counts()
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 2, failed)

	failures := results.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, "t1", failures[0].Name)
	assert.Equal(t, "t3", failures[1].Name)
}

func TestExecute_AllSucceed(t *testing.T) {
	e, err := New[int](10)
	require.NoError(t, err)

	var tasks []Task[int]
	for i := 0; i < 100; i++ {
		tasks = append(tasks, okTask(fmt.Sprintf("task-%03d", i), i))
	}

	results, err := e.Execute(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 100)
	for name, r := range results {
		assert.True(t, r.Succeeded(), name)
		assert.Equal(t, name, r.Name)
	}
}

func TestExecute_AllFailStillReturnsNoError(t *testing.T) {
	e, err := New[int](2)
	require.NoError(t, err)

	tasks := []Task[int]{errTask("a", "e1"), errTask("b", "e2"), errTask("c", "e3")}
	results, err := e.Execute(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Failed())
	}
	assert.Empty(t, results.Successes())
}

func TestExecute_ConcurrencyCeiling(t *testing.T) {
	const limit = 3
	e, err := New[int](limit)
	require.NoError(t, err)

	var running, peak atomic.Int32
	var tasks []Task[int]
	for i := 0; i < 20; i++ {
		tasks = append(tasks, NewTask(fmt.Sprintf("t%d", i), func(context.Context) (int, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return 0, nil
		}))
	}

	results, err := e.Execute(context.Background(), tasks)
	require.NoError(t, err)
	assert.Len(t, results, 20)
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestExecute_SequentialWithLimitOne(t *testing.T) {
	e, err := New[int](1)
	require.NoError(t, err)

	const n, d = 4, 20 * time.Millisecond
	var tasks []Task[int]
	for i := 0; i < n; i++ {
		tasks = append(tasks, sleepTask(fmt.Sprintf("t%d", i), d))
	}

	start := time.Now()
	_, err = e.Execute(context.Background(), tasks)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), n*d)
}

func TestExecute_ParallelWithFullLimit(t *testing.T) {
	const n, d = 5, 100 * time.Millisecond
	e, err := New[int](n)
	require.NoError(t, err)

	var tasks []Task[int]
	for i := 0; i < n; i++ {
		tasks = append(tasks, sleepTask(fmt.Sprintf("t%d", i), d))
	}

	start := time.Now()
	_, err = e.Execute(context.Background(), tasks)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Duration(n-1)*d)
}

func TestExecute_PanicIsContained(t *testing.T) {
	e, err := New[int](2)
	require.NoError(t, err)

	tasks := []Task[int]{
		okTask("before", 1),
		NewTask("bad", func(context.Context) (int, error) { panic("kaboom") }),
		okTask("after", 2),
	}

	results, err := e.Execute(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results["before"].Succeeded())
	assert.True(t, results["after"].Succeeded())
	assert.True(t, results["bad"].Failed())
	assert.Contains(t, results["bad"].Error, "kaboom")
}

func TestExecute_PanicInSingleTask(t *testing.T) {
	e, err := New[int](2)
	require.NoError(t, err)

	results, err := e.Execute(context.Background(), []Task[int]{
		NewTask("solo", func(context.Context) (int, error) { panic(errors.New("nil map")) }),
	})
	require.NoError(t, err)
	assert.Equal(t, "panic: nil map", results["solo"].Error)
}

func TestExecute_DuplicateNamesRejected(t *testing.T) {
	e, err := New[int](2)
	require.NoError(t, err)

	var ran atomic.Int32
	task := NewTask("same", func(context.Context) (int, error) {
		ran.Add(1)
		return 0, nil
	})

	results, err := e.Execute(context.Background(), []Task[int]{task, okTask("other", 1), task})
	require.ErrorIs(t, err, ErrDuplicateTaskName)
	assert.Nil(t, results)
	assert.Zero(t, ran.Load())
}

func TestExecute_NilOperationRejected(t *testing.T) {
	e, err := New[int](2)
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), []Task[int]{okTask("a", 1), {Name: "b"}})
	require.ErrorIs(t, err, ErrNilTask)
}

func TestExecute_CancelledContextStillReportsEveryTask(t *testing.T) {
	e, err := New[int](1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	tasks := []Task[int]{
		NewTask("first", func(context.Context) (int, error) {
			cancel()
			return 1, nil
		}),
		okTask("second", 2),
		okTask("third", 3),
	}

	results, err := e.Execute(ctx, tasks)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results["first"].Succeeded())
	assert.Contains(t, results["second"].Error, context.Canceled.Error())
	assert.Contains(t, results["third"].Error, context.Canceled.Error())
}

func TestExecuteWithProgress_HookSeesEveryResult(t *testing.T) {
	e, err := New[int](3)
	require.NoError(t, err)

	tasks := []Task[int]{okTask("a", 1), errTask("b", "bad"), okTask("c", 3), okTask("d", 4)}

	var seen []string
	results, err := e.ExecuteWithProgress(context.Background(), tasks, func(r TaskResult[int]) {
		// no lock: the hook is only called from the collecting goroutine
		seen = append(seen, r.Name)
	})
	require.NoError(t, err)
	assert.Len(t, results, 4)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, seen)
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished map[string]ResultStatusType
	skipped  []string
}

func (o *recordingObserver) TaskSkipped(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped = append(o.skipped, name)
}

func (o *recordingObserver) TaskStarted(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, name)
}

func (o *recordingObserver) TaskFinished(name string, status ResultStatusType, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished == nil {
		o.finished = make(map[string]ResultStatusType)
	}
	o.finished[name] = status
}

func TestExecute_ObserverNotified(t *testing.T) {
	obs := &recordingObserver{}
	e, err := New[int](2, WithObserver(obs))
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), []Task[int]{okTask("a", 1), errTask("b", "x")})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a", "b"}, obs.started)
	assert.Equal(t, ResultStatusSuccess, obs.finished["a"])
	assert.Equal(t, ResultStatusFailure, obs.finished["b"])
	assert.Empty(t, obs.skipped)
}

func TestExecute_ObserverSeesSkippedTasks(t *testing.T) {
	obs := &recordingObserver{}
	e, err := New[int](2, WithObserver(obs))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := e.Execute(ctx, []Task[int]{okTask("a", 1), okTask("b", 2)})
	require.NoError(t, err)
	assert.True(t, results["a"].Failed())
	assert.True(t, results["b"].Failed())
	assert.ElementsMatch(t, []string{"a", "b"}, obs.skipped)
	assert.Empty(t, obs.started)
}

func TestExecutor_Reusable(t *testing.T) {
	e, err := New[string](2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(batch int) {
			defer wg.Done()
			tasks := []Task[string]{
				NewTask("x", func(context.Context) (string, error) { return fmt.Sprint(batch), nil }),
				NewTask("y", func(context.Context) (string, error) { return "y", nil }),
			}
			results, err := e.Execute(context.Background(), tasks)
			assert.NoError(t, err)
			assert.Equal(t, fmt.Sprint(batch), results["x"].Value)
		}(i)
	}
	wg.Wait()
}
