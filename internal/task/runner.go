// Package task runs long jobs asynchronously with persisted progress and cooperative abort.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

const DefaultConcurrencyLimit = 2

type Store interface {
	Create(ctx context.Context, task *model.Task) error
	GetByID(ctx context.Context, taskID string) (*model.Task, error)
	UpdateProgress(ctx context.Context, taskID string, completed, total int, detail string, mtime int64) error
	UpdateStatusIf(ctx context.Context, taskID string, from, to model.TaskStatus, detail string, endTime int64) (bool, error)
}

// Job is the body of a task. A returned error fails the task; item level errors
// belong in the execution counters instead.
type Job func(ctx context.Context, exec *Execution) error

type Runner struct {
	store Store
	limit int
	now   func() time.Time
	newID func() string
	wg    sync.WaitGroup

	mu      sync.Mutex
	running map[string]struct{}
}

type Option func(*Runner)

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

func NewRunner(store Store, limit int, opts ...Option) *Runner {
	if limit <= 0 {
		limit = DefaultConcurrencyLimit
	}
	r := &Runner{
		store: store,
		limit: limit,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },

		running: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Limit is the per-task concurrency bound; jobs read it once when they start.
func (r *Runner) Limit() int {
	return r.limit
}

func (r *Runner) Create(ctx context.Context, projectID string, typ model.TaskType, note model.TaskNote) (*model.Task, error) {
	raw, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("encode task note: %w", err)
	}
	now := r.now().Unix()
	t := &model.Task{
		ID:        r.newID(),
		ProjectID: projectID,
		Type:      typ,
		Status:    model.TaskStatusProcessing,
		Note:      string(raw),
		StartTime: now,
		Ctime:     now,
		Mtime:     now,
	}
	if err := r.store.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Start runs the job in the background, detached from the caller's context.
func (r *Runner) Start(t *model.Task, job Job) {
	r.wg.Add(1)
	r.mu.Lock()
	r.running[t.ID] = struct{}{}
	r.mu.Unlock()
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.running, t.ID)
			r.mu.Unlock()
		}()
		_ = r.Execute(context.Background(), t, job)
	}()
}

// Execute runs the job synchronously and settles the final status. Completion
// and failure only apply to a task still processing, so an abort is never overwritten.
func (r *Runner) Execute(ctx context.Context, t *model.Task, job Job) (err error) {
	logger := logutil.GetLogger(ctx).With(zap.String("task_id", t.ID), zap.String("task_type", string(t.Type)))
	exec := newExecution(ctx, r, t)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("task panic: %v", rec)
			}
		}()
		err = job(ctx, exec)
	}()
	detail := exec.close()
	to := model.TaskStatusCompleted
	if err != nil {
		to = model.TaskStatusFailed
		detail = detail + "; error: " + err.Error()
		logger.Error("task failed", zap.Error(err))
	}
	ok, uerr := r.store.UpdateStatusIf(ctx, t.ID, model.TaskStatusProcessing, to, detail, r.now().Unix())
	if uerr != nil {
		logger.Error("settle task status failed", zap.Error(uerr))
		return err
	}
	if !ok {
		logger.Info("task already settled, keep status", zap.String("wanted", string(to)))
		return err
	}
	logger.Info("task finished", zap.String("status", string(to)), zap.String("detail", detail))
	return err
}

func (r *Runner) Progress(ctx context.Context, taskID string) (*model.Task, error) {
	if taskID == "" {
		return nil, appErr.ErrMissingParameter
	}
	return r.store.GetByID(ctx, taskID)
}

// Abort marks a processing task aborted. Running items finish; no new item starts.
func (r *Runner) Abort(ctx context.Context, taskID string) (bool, error) {
	if _, err := r.store.GetByID(ctx, taskID); err != nil {
		return false, err
	}
	return r.store.UpdateStatusIf(ctx, taskID, model.TaskStatusProcessing, model.TaskStatusAborted, "aborted by user", r.now().Unix())
}

// Wait blocks until every task started by this runner has settled.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown aborts every task still running in this process and waits for their
// in-flight items to finish, or for ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	logger := logutil.GetLogger(ctx)
	for _, id := range ids {
		ok, err := r.store.UpdateStatusIf(ctx, id, model.TaskStatusProcessing, model.TaskStatusAborted, "aborted by shutdown", r.now().Unix())
		if err != nil {
			logger.Error("abort task on shutdown failed", zap.String("task_id", id), zap.Error(err))
			continue
		}
		if ok {
			logger.Info("task aborted by shutdown", zap.String("task_id", id))
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
