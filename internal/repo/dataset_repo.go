package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/dsforge/internal/db"
	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

var datasetFields = []string{
	"id", "project_id", "question_id", "question", "model", "cot", "answer", "chunk_name", "chunk_content",
	"question_label", "traceability_score", "verification_status", "ctime", "mtime",
}

type DatasetFilter struct {
	Statuses []model.VerificationStatus
	// MtimeBefore only matches records untouched since this unix second, 0 disables it.
	MtimeBefore int64
	Offset      uint
	Limit       uint
}

type DatasetRepo struct {
	conn
}

func NewDatasetRepo(d *db.DB) *DatasetRepo {
	return &DatasetRepo{conn: newConn(d)}
}

func (r *DatasetRepo) Create(ctx context.Context, item *model.Dataset) error {
	var score interface{}
	if item.TraceabilityScore != nil {
		score = *item.TraceabilityScore
	}
	const query = `
		INSERT INTO datasets (id, project_id, question_id, question, model, cot, answer, chunk_name, chunk_content,
			question_label, traceability_score, verification_status, ctime, mtime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	sqlStr, args := r.finalize(query, []interface{}{
		item.ID, item.ProjectID, item.QuestionID, item.Question, item.Model, item.Cot, item.Answer,
		item.ChunkName, item.ChunkContent, item.QuestionLabel, score, string(item.VerificationStatus),
		item.Ctime, item.Mtime,
	})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DatasetRepo) GetByID(ctx context.Context, id string) (*model.Dataset, error) {
	items, err := r.list(ctx, map[string]interface{}{"id": id, "_limit": []uint{0, 1}})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &items[0], nil
}

// UpdateVerification writes the verifier outcome; a nil score is stored as NULL.
func (r *DatasetRepo) UpdateVerification(ctx context.Context, id string, score *float64, status model.VerificationStatus, mtime int64) error {
	var scoreVal interface{}
	if score != nil {
		scoreVal = *score
	}
	sqlStr, args := r.finalize(
		"UPDATE datasets SET traceability_score=?, verification_status=?, mtime=? WHERE id=?",
		[]interface{}{scoreVal, string(status), mtime, id},
	)
	return r.execOne(ctx, sqlStr, args)
}

func (r *DatasetRepo) UpdateCot(ctx context.Context, id, cot string, mtime int64) error {
	sqlStr, args, err := builder.BuildUpdate("datasets", map[string]interface{}{"id": id}, map[string]interface{}{
		"cot":   cot,
		"mtime": mtime,
	})
	if err != nil {
		return err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	return r.execOne(ctx, sqlStr, args)
}

func (r *DatasetRepo) ListByProject(ctx context.Context, projectID string, filter DatasetFilter) ([]model.Dataset, error) {
	where := r.filterWhere(filter)
	where["project_id"] = projectID
	where["_orderby"] = "ctime desc, id asc"
	if filter.Limit > 0 {
		where["_limit"] = []uint{filter.Offset, filter.Limit}
	}
	return r.list(ctx, where)
}

func (r *DatasetRepo) CountByProject(ctx context.Context, projectID string, filter DatasetFilter) (int, error) {
	where := r.filterWhere(filter)
	where["project_id"] = projectID
	sqlStr, args, err := builder.BuildSelect("datasets", where, []string{"COUNT(*)"})
	if err != nil {
		return 0, err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	var total int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListByStatus scans across projects; used by the background sweep.
func (r *DatasetRepo) ListByStatus(ctx context.Context, filter DatasetFilter) ([]model.Dataset, error) {
	where := r.filterWhere(filter)
	where["_orderby"] = "mtime asc, id asc"
	if filter.Limit > 0 {
		where["_limit"] = []uint{filter.Offset, filter.Limit}
	}
	return r.list(ctx, where)
}

func (r *DatasetRepo) filterWhere(filter DatasetFilter) map[string]interface{} {
	where := map[string]interface{}{}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where["verification_status in"] = statuses
	}
	if filter.MtimeBefore > 0 {
		where["mtime <"] = filter.MtimeBefore
	}
	return where
}

func (r *DatasetRepo) execOne(ctx context.Context, sqlStr string, args []interface{}) error {
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

func (r *DatasetRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Dataset, error) {
	sqlStr, args, err := builder.BuildSelect("datasets", where, datasetFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Dataset, 0)
	for rows.Next() {
		var d model.Dataset
		var score sql.NullFloat64
		var status string
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.QuestionID, &d.Question, &d.Model, &d.Cot, &d.Answer,
			&d.ChunkName, &d.ChunkContent, &d.QuestionLabel, &score, &status, &d.Ctime, &d.Mtime); err != nil {
			return nil, err
		}
		if score.Valid {
			v := score.Float64
			d.TraceabilityScore = &v
		}
		d.VerificationStatus = model.VerificationStatus(status)
		items = append(items, d)
	}
	return items, rows.Err()
}
