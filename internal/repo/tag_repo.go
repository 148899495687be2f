package repo

import (
	"context"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/dsforge/internal/db"
	"github.com/xxxsen/dsforge/internal/model"
)

type TagRepo struct {
	conn
}

func NewTagRepo(d *db.DB) *TagRepo {
	return &TagRepo{conn: newConn(d)}
}

func (r *TagRepo) CreateBatch(ctx context.Context, tags []model.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(tags))
	for _, tag := range tags {
		rows = append(rows, map[string]interface{}{
			"id":         tag.ID,
			"project_id": tag.ProjectID,
			"label":      tag.Label,
			"parent_id":  tag.ParentID,
			"ctime":      tag.Ctime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("tags", rows)
	if err != nil {
		return err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *TagRepo) ListByProject(ctx context.Context, projectID string) ([]model.Tag, error) {
	where := map[string]interface{}{"project_id": projectID, "_orderby": "ctime asc, label asc"}
	sqlStr, args, err := builder.BuildSelect("tags", where, []string{"id", "project_id", "label", "parent_id", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := make([]model.Tag, 0)
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.ProjectID, &tag.Label, &tag.ParentID, &tag.Ctime); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
