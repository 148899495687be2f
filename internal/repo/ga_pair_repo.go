package repo

import (
	"context"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/dsforge/internal/db"
	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

var gaPairFields = []string{"id", "project_id", "file_id", "genre_title", "genre_desc", "audience_title", "audience_desc", "is_active", "ctime"}

type GaPairRepo struct {
	conn
}

func NewGaPairRepo(d *db.DB) *GaPairRepo {
	return &GaPairRepo{conn: newConn(d)}
}

func (r *GaPairRepo) CreateBatch(ctx context.Context, pairs []model.GaPair) error {
	if len(pairs) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, map[string]interface{}{
			"id":             p.ID,
			"project_id":     p.ProjectID,
			"file_id":        p.FileID,
			"genre_title":    p.GenreTitle,
			"genre_desc":     p.GenreDesc,
			"audience_title": p.AudienceTitle,
			"audience_desc":  p.AudienceDesc,
			"is_active":      intFromBool(p.IsActive),
			"ctime":          p.Ctime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("ga_pairs", rows)
	if err != nil {
		return err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *GaPairRepo) GetByID(ctx context.Context, id string) (*model.GaPair, error) {
	items, err := r.list(ctx, map[string]interface{}{"id": id, "_limit": []uint{0, 1}})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &items[0], nil
}

func (r *GaPairRepo) ListActiveByFileID(ctx context.Context, fileID string) ([]model.GaPair, error) {
	return r.list(ctx, map[string]interface{}{"file_id": fileID, "is_active": 1, "_orderby": "ctime asc, id asc"})
}

func (r *GaPairRepo) DeleteByFileID(ctx context.Context, fileID string) error {
	sqlStr, args, err := builder.BuildDelete("ga_pairs", map[string]interface{}{"file_id": fileID})
	if err != nil {
		return err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *GaPairRepo) list(ctx context.Context, where map[string]interface{}) ([]model.GaPair, error) {
	sqlStr, args, err := builder.BuildSelect("ga_pairs", where, gaPairFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.GaPair, 0)
	for rows.Next() {
		var p model.GaPair
		var active int
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.FileID, &p.GenreTitle, &p.GenreDesc, &p.AudienceTitle, &p.AudienceDesc, &active, &p.Ctime); err != nil {
			return nil, err
		}
		p.IsActive = active != 0
		items = append(items, p)
	}
	return items, rows.Err()
}
