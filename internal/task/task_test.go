package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

type memStore struct {
	mu    sync.Mutex
	tasks map[string]model.Task
}

func newMemStore() *memStore {
	return &memStore{tasks: map[string]model.Task{}}
}

func (s *memStore) Create(_ context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = *t
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &t, nil
}

func (s *memStore) UpdateProgress(_ context.Context, id string, completed, total int, detail string, mtime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return appErr.ErrNotFound
	}
	if completed < t.CompletedCount {
		return fmt.Errorf("progress moved backwards: %d < %d", completed, t.CompletedCount)
	}
	t.CompletedCount, t.TotalCount, t.Detail, t.Mtime = completed, total, detail, mtime
	s.tasks[id] = t
	return nil
}

func (s *memStore) UpdateStatusIf(_ context.Context, id string, from, to model.TaskStatus, detail string, endTime int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	if detail != "" {
		t.Detail = detail
	}
	if to.Terminal() {
		t.EndTime = endTime
	}
	s.tasks[id] = t
	return true, nil
}

func newTask(t *testing.T, r *Runner) *model.Task {
	t.Helper()
	tk, err := r.Create(context.Background(), "p1", model.TaskTypeAnswerGeneration, model.TaskNote{ModelInfo: model.ModelConfig{Provider: "x", Model: "m"}})
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusProcessing, tk.Status)
	return tk
}

func items(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestForEachRespectsConcurrencyLimit(t *testing.T) {
	store := newMemStore()
	r := NewRunner(store, 3)
	tk := newTask(t, r)
	var inFlight, maxSeen atomic.Int32
	err := r.Execute(context.Background(), tk, func(ctx context.Context, exec *Execution) error {
		exec.SetTotal(20)
		ForEach(ctx, exec, items(20), r.Limit(), func(ctx context.Context, _ int) (int, error) {
			cur := inFlight.Add(1)
			for {
				old := maxSeen.Load()
				if cur <= old || maxSeen.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			return 1, nil
		})
		return nil
	})
	require.NoError(t, err)
	require.LessOrEqual(t, maxSeen.Load(), int32(3))

	got, err := r.Progress(context.Background(), tk.ID)
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusCompleted, got.Status)
	require.Equal(t, 20, got.CompletedCount)
	require.Equal(t, 20, got.TotalCount)
	require.Equal(t, "attempted 20, succeeded 20, failed 0, skipped 0", got.Detail)
	require.NotZero(t, got.EndTime)
}

func TestAbortSkipsItemsNotYetStarted(t *testing.T) {
	store := newMemStore()
	r := NewRunner(store, 1)
	tk := newTask(t, r)
	var ran atomic.Int32
	var stats Stats
	err := r.Execute(context.Background(), tk, func(ctx context.Context, exec *Execution) error {
		exec.SetTotal(10)
		stats = ForEach(ctx, exec, items(10), 1, func(ctx context.Context, i int) (int, error) {
			ran.Add(1)
			if i == 2 {
				ok, err := r.Abort(ctx, tk.ID)
				require.NoError(t, err)
				require.True(t, ok)
			}
			return 1, nil
		})
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int32(3), ran.Load())
	require.Equal(t, 7, stats.Skipped)

	got, err := store.GetByID(context.Background(), tk.ID)
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusAborted, got.Status)
	require.Equal(t, 3, got.CompletedCount)
}

func TestItemErrorsAndPanicsDoNotStopBatch(t *testing.T) {
	store := newMemStore()
	r := NewRunner(store, 2)
	tk := newTask(t, r)
	err := r.Execute(context.Background(), tk, func(ctx context.Context, exec *Execution) error {
		exec.SetTotal(5)
		stats := ForEach(ctx, exec, items(5), 2, func(ctx context.Context, i int) (int, error) {
			switch i {
			case 1:
				return 1, errors.New("llm down")
			case 3:
				panic("boom")
			}
			return 1, nil
		})
		require.Equal(t, 2, stats.Failed)
		require.Equal(t, 3, stats.Succeeded)
		return nil
	})
	require.NoError(t, err)
	got, err := store.GetByID(context.Background(), tk.ID)
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusCompleted, got.Status)
	require.Equal(t, 4, got.CompletedCount)
	require.Contains(t, got.Detail, "attempted 5, succeeded 3, failed 2")
}

func TestJobErrorFailsTask(t *testing.T) {
	store := newMemStore()
	r := NewRunner(store, 2)

	tk := newTask(t, r)
	err := r.Execute(context.Background(), tk, func(ctx context.Context, exec *Execution) error {
		return appErr.ErrTaskSetup
	})
	require.ErrorIs(t, err, appErr.ErrTaskSetup)
	got, _ := store.GetByID(context.Background(), tk.ID)
	require.Equal(t, model.TaskStatusFailed, got.Status)
	require.Contains(t, got.Detail, "task setup failed")

	tk = newTask(t, r)
	err = r.Execute(context.Background(), tk, func(ctx context.Context, exec *Execution) error {
		panic("setup exploded")
	})
	require.Error(t, err)
	got, _ = store.GetByID(context.Background(), tk.ID)
	require.Equal(t, model.TaskStatusFailed, got.Status)
}

func TestCompletedNeverExceedsTotal(t *testing.T) {
	store := newMemStore()
	r := NewRunner(store, 2)
	tk := newTask(t, r)
	require.NoError(t, r.Execute(context.Background(), tk, func(ctx context.Context, exec *Execution) error {
		exec.SetTotal(4)
		ForEach(ctx, exec, items(3), 2, func(ctx context.Context, _ int) (int, error) { return 5, nil })
		exec.Note("phase %s done", "local")
		return nil
	}))
	got, _ := store.GetByID(context.Background(), tk.ID)
	require.Equal(t, 4, got.CompletedCount)
	require.Contains(t, got.Detail, "phase local done")
}

func TestStartRunsInBackground(t *testing.T) {
	store := newMemStore()
	r := NewRunner(store, 2)
	tk := newTask(t, r)
	r.Start(tk, func(ctx context.Context, exec *Execution) error {
		exec.SetTotal(1)
		exec.Advance(1)
		return nil
	})
	r.Wait()
	got, _ := store.GetByID(context.Background(), tk.ID)
	require.Equal(t, model.TaskStatusCompleted, got.Status)
	require.Equal(t, 1, got.CompletedCount)
}

func TestAbortUnknownTask(t *testing.T) {
	r := NewRunner(newMemStore(), 2)
	_, err := r.Abort(context.Background(), "nope")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestPoolDeadLettersOverflowAndFailures(t *testing.T) {
	p := NewPool(1, 1)
	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, p.Submit("blocker", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.True(t, p.Submit("queued", func(ctx context.Context) error { return errors.New("failed") }))
	require.False(t, p.Submit("overflow", func(ctx context.Context) error { return nil }))
	close(release)
	p.Stop()

	require.Equal(t, int64(2), p.Finished())
	require.Equal(t, int64(2), p.DeadLettered())
	require.False(t, p.Submit("late", func(ctx context.Context) error { return nil }))
	require.Equal(t, int64(3), p.DeadLettered())
}

func TestPoolRecoversPanics(t *testing.T) {
	p := NewPool(2, 4)
	require.True(t, p.Submit("panics", func(ctx context.Context) error { panic("bad") }))
	require.True(t, p.Submit("ok", func(ctx context.Context) error { return nil }))
	p.Stop()
	require.Equal(t, int64(2), p.Finished())
	require.Equal(t, int64(1), p.DeadLettered())
}

func TestRunnerUsesInjectedClockAndIDs(t *testing.T) {
	store := newMemStore()
	fixed := time.Unix(1700000000, 0)
	r := NewRunner(store, 2, WithClock(func() time.Time { return fixed }), WithIDGenerator(func() string { return "task-1" }))
	tk := newTask(t, r)
	require.Equal(t, "task-1", tk.ID)
	require.Equal(t, fixed.Unix(), tk.StartTime)

	require.NoError(t, r.Execute(context.Background(), tk, func(ctx context.Context, exec *Execution) error {
		return nil
	}))
	got, err := store.GetByID(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusCompleted, got.Status)
	require.Equal(t, fixed.Unix(), got.EndTime)
}

func TestShutdownAbortsRunningTasks(t *testing.T) {
	store := newMemStore()
	r := NewRunner(store, 1)
	tk := newTask(t, r)
	started := make(chan struct{})
	release := make(chan struct{})
	var ran atomic.Int32
	r.Start(tk, func(ctx context.Context, exec *Execution) error {
		exec.SetTotal(5)
		ForEach(ctx, exec, items(5), 1, func(ctx context.Context, i int) (int, error) {
			ran.Add(1)
			if i == 0 {
				close(started)
				<-release
			}
			return 1, nil
		})
		return nil
	})
	<-started

	done := make(chan error, 1)
	go func() { done <- r.Shutdown(context.Background()) }()
	require.Eventually(t, func() bool {
		got, err := store.GetByID(context.Background(), tk.ID)
		return err == nil && got.Status == model.TaskStatusAborted
	}, time.Second, 5*time.Millisecond)
	close(release)

	require.NoError(t, <-done)
	require.Equal(t, int32(1), ran.Load())
	got, err := store.GetByID(context.Background(), tk.ID)
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusAborted, got.Status)
}

func TestShutdownStopsWaitingWhenContextEnds(t *testing.T) {
	store := newMemStore()
	r := NewRunner(store, 1)
	tk := newTask(t, r)
	release := make(chan struct{})
	r.Start(tk, func(ctx context.Context, exec *Execution) error {
		<-release
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)
	close(release)
	r.Wait()
}
