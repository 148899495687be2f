package repo

import (
	"context"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/dsforge/internal/db"
	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

var taskFields = []string{
	"id", "project_id", "task_type", "status", "total_count", "completed_count", "detail", "note",
	"start_time", "end_time", "ctime", "mtime",
}

type TaskRepo struct {
	conn
}

func NewTaskRepo(d *db.DB) *TaskRepo {
	return &TaskRepo{conn: newConn(d)}
}

func (r *TaskRepo) Create(ctx context.Context, task *model.Task) error {
	data := map[string]interface{}{
		"id":              task.ID,
		"project_id":      task.ProjectID,
		"task_type":       string(task.Type),
		"status":          string(task.Status),
		"total_count":     task.TotalCount,
		"completed_count": task.CompletedCount,
		"detail":          task.Detail,
		"note":            task.Note,
		"start_time":      task.StartTime,
		"end_time":        task.EndTime,
		"ctime":           task.Ctime,
		"mtime":           task.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("tasks", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *TaskRepo) GetByID(ctx context.Context, taskID string) (*model.Task, error) {
	items, err := r.list(ctx, map[string]interface{}{"id": taskID, "_limit": []uint{0, 1}})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &items[0], nil
}

// UpdateProgress overwrites the counters; it is safe to repeat with the same values.
func (r *TaskRepo) UpdateProgress(ctx context.Context, taskID string, completed, total int, detail string, mtime int64) error {
	sqlStr, args, err := builder.BuildUpdate("tasks", map[string]interface{}{"id": taskID}, map[string]interface{}{
		"completed_count": completed,
		"total_count":     total,
		"detail":          detail,
		"mtime":           mtime,
	})
	if err != nil {
		return err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// UpdateStatusIf moves a task from one status to another and reports whether it did.
// An empty detail keeps the stored one.
func (r *TaskRepo) UpdateStatusIf(ctx context.Context, taskID string, from, to model.TaskStatus, detail string, endTime int64) (bool, error) {
	update := map[string]interface{}{
		"status": string(to),
		"mtime":  endTime,
	}
	if to.Terminal() {
		update["end_time"] = endTime
	}
	if detail != "" {
		update["detail"] = detail
	}
	sqlStr, args, err := builder.BuildUpdate("tasks", map[string]interface{}{"id": taskID, "status": string(from)}, update)
	if err != nil {
		return false, err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListStale returns tasks in the given status whose last write is older than mtimeBefore.
func (r *TaskRepo) ListStale(ctx context.Context, status model.TaskStatus, mtimeBefore int64) ([]model.Task, error) {
	return r.list(ctx, map[string]interface{}{
		"status":   string(status),
		"mtime <":  mtimeBefore,
		"_orderby": "mtime asc",
	})
}

func (r *TaskRepo) ListByProject(ctx context.Context, projectID string, limit uint) ([]model.Task, error) {
	where := map[string]interface{}{"project_id": projectID, "_orderby": "ctime desc"}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.list(ctx, where)
}

func (r *TaskRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Task, error) {
	sqlStr, args, err := builder.BuildSelect("tasks", where, taskFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Task, 0)
	for rows.Next() {
		var t model.Task
		var typ, status string
		if err := rows.Scan(&t.ID, &t.ProjectID, &typ, &status, &t.TotalCount, &t.CompletedCount, &t.Detail, &t.Note,
			&t.StartTime, &t.EndTime, &t.Ctime, &t.Mtime); err != nil {
			return nil, err
		}
		t.Type = model.TaskType(typ)
		t.Status = model.TaskStatus(status)
		items = append(items, t)
	}
	return items, rows.Err()
}
