package repo

import (
	"context"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/dsforge/internal/db"
	"github.com/xxxsen/dsforge/internal/model"
	"github.com/xxxsen/dsforge/internal/pkg/dbutil"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

var fileFields = []string{"id", "project_id", "file_name", "store_key", "size", "toc", "ctime", "mtime"}

type FileRepo struct {
	conn
}

func NewFileRepo(d *db.DB) *FileRepo {
	return &FileRepo{conn: newConn(d)}
}

func (r *FileRepo) Create(ctx context.Context, file *model.File) error {
	data := map[string]interface{}{
		"id":         file.ID,
		"project_id": file.ProjectID,
		"file_name":  file.FileName,
		"store_key":  file.StoreKey,
		"size":       file.Size,
		"toc":        file.Toc,
		"ctime":      file.Ctime,
		"mtime":      file.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("files", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// UpdateContent overwrites the stored blob reference and TOC after a re-upload.
func (r *FileRepo) UpdateContent(ctx context.Context, file *model.File) error {
	where := map[string]interface{}{"id": file.ID}
	update := map[string]interface{}{
		"store_key": file.StoreKey,
		"size":      file.Size,
		"toc":       file.Toc,
		"mtime":     file.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("files", where, update)
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

func (r *FileRepo) GetByID(ctx context.Context, fileID string) (*model.File, error) {
	return r.getOne(ctx, map[string]interface{}{"id": fileID})
}

func (r *FileRepo) GetByName(ctx context.Context, projectID, fileName string) (*model.File, error) {
	return r.getOne(ctx, map[string]interface{}{"project_id": projectID, "file_name": fileName})
}

// GetTocByFileName returns the stored table of contents, empty when the file has none.
func (r *FileRepo) GetTocByFileName(ctx context.Context, projectID, fileName string) (string, error) {
	file, err := r.GetByName(ctx, projectID, fileName)
	if err != nil {
		return "", err
	}
	return file.Toc, nil
}

func (r *FileRepo) ListByProject(ctx context.Context, projectID string) ([]model.File, error) {
	where := map[string]interface{}{"project_id": projectID, "_orderby": "file_name asc"}
	sqlStr, args, err := builder.BuildSelect("files", where, fileFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	files := make([]model.File, 0)
	for rows.Next() {
		var f model.File
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.FileName, &f.StoreKey, &f.Size, &f.Toc, &f.Ctime, &f.Mtime); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *FileRepo) Delete(ctx context.Context, fileID string) error {
	sqlStr, args, err := builder.BuildDelete("files", map[string]interface{}{"id": fileID})
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

func (r *FileRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.File, error) {
	where["_limit"] = []uint{0, 1}
	sqlStr, args, err := builder.BuildSelect("files", where, fileFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	var f model.File
	if err := rows.Scan(&f.ID, &f.ProjectID, &f.FileName, &f.StoreKey, &f.Size, &f.Toc, &f.Ctime, &f.Mtime); err != nil {
		return nil, err
	}
	return &f, nil
}
