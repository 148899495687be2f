package repo

import (
	"context"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/dsforge/internal/db"
	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

var questionFields = []string{"id", "project_id", "chunk_id", "question", "label", "ga_pair_id", "answered", "metadata", "ctime", "mtime"}

type QuestionRepo struct {
	conn
}

func NewQuestionRepo(d *db.DB) *QuestionRepo {
	return &QuestionRepo{conn: newConn(d)}
}

func (r *QuestionRepo) CreateBatch(ctx context.Context, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(questions))
	for _, q := range questions {
		meta, err := model.EncodeQuestionMetadata(q.Metadata)
		if err != nil {
			return err
		}
		rows = append(rows, map[string]interface{}{
			"id":         q.ID,
			"project_id": q.ProjectID,
			"chunk_id":   q.ChunkID,
			"question":   q.Question,
			"label":      q.Label,
			"ga_pair_id": q.GaPairID,
			"answered":   intFromBool(q.Answered),
			"metadata":   meta,
			"ctime":      q.Ctime,
			"mtime":      q.Mtime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("questions", rows)
	if err != nil {
		return err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *QuestionRepo) GetByID(ctx context.Context, questionID string) (*model.Question, error) {
	items, err := r.list(ctx, map[string]interface{}{"id": questionID, "_limit": []uint{0, 1}})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &items[0], nil
}

// MarkAnswered is the only mutation a question ever receives.
func (r *QuestionRepo) MarkAnswered(ctx context.Context, questionID string, mtime int64) error {
	sqlStr, args, err := builder.BuildUpdate("questions", map[string]interface{}{"id": questionID}, map[string]interface{}{
		"answered": 1,
		"mtime":    mtime,
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

func (r *QuestionRepo) ListUnanswered(ctx context.Context, projectID string) ([]model.Question, error) {
	return r.list(ctx, map[string]interface{}{
		"project_id": projectID,
		"answered":   0,
		"_orderby":   "ctime asc, id asc",
	})
}

func (r *QuestionRepo) ListByProject(ctx context.Context, projectID string) ([]model.Question, error) {
	return r.list(ctx, map[string]interface{}{"project_id": projectID, "_orderby": "ctime asc, id asc"})
}

func (r *QuestionRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Question, error) {
	sqlStr, args, err := builder.BuildSelect("questions", where, questionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Question, 0)
	for rows.Next() {
		var q model.Question
		var answered int
		var meta string
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.ChunkID, &q.Question, &q.Label, &q.GaPairID, &answered, &meta, &q.Ctime, &q.Mtime); err != nil {
			return nil, err
		}
		q.Answered = answered != 0
		q.Metadata, err = model.DecodeQuestionMetadata(meta)
		if err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	return items, rows.Err()
}
