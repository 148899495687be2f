package job

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/model"
)

type TaskStore interface {
	ListStale(ctx context.Context, status model.TaskStatus, mtimeBefore int64) ([]model.Task, error)
	UpdateStatusIf(ctx context.Context, taskID string, from, to model.TaskStatus, detail string, endTime int64) (bool, error)
}

// StaleTaskJob fails processing tasks whose progress has not moved for maxIdle,
// typically left behind by a restart.
type StaleTaskJob struct {
	tasks   TaskStore
	maxIdle time.Duration
	now     func() time.Time
}

func NewStaleTaskJob(tasks TaskStore, maxIdle time.Duration) *StaleTaskJob {
	return &StaleTaskJob{tasks: tasks, maxIdle: maxIdle, now: time.Now}
}

func (j *StaleTaskJob) Name() string {
	return "stale_task_reaper"
}

func (j *StaleTaskJob) Run(ctx context.Context) error {
	if j.tasks == nil {
		return nil
	}
	maxIdle := j.maxIdle
	if maxIdle <= 0 {
		maxIdle = time.Hour
	}
	now := j.now()
	stale, err := j.tasks.ListStale(ctx, model.TaskStatusProcessing, now.Add(-maxIdle).Unix())
	if err != nil {
		return err
	}
	detail := fmt.Sprintf("no progress for %s", maxIdle)
	reaped := 0
	for _, t := range stale {
		ok, err := j.tasks.UpdateStatusIf(ctx, t.ID, model.TaskStatusProcessing, model.TaskStatusFailed, t.Detail+"; "+detail, now.Unix())
		if err != nil {
			return err
		}
		if ok {
			reaped++
		}
	}
	if reaped > 0 {
		logutil.GetLogger(ctx).Warn("stale tasks failed", zap.Int("count", reaped))
	}
	return nil
}
