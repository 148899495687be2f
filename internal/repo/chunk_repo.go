package repo

import (
	"context"
	"database/sql"
	"sort"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/dsforge/internal/db"
	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

var chunkFields = []string{"id", "project_id", "file_id", "file_name", "name", "content", "summary", "size", "ctime", "mtime"}

type ChunkRepo struct {
	conn
}

func NewChunkRepo(d *db.DB) *ChunkRepo {
	return &ChunkRepo{conn: newConn(d)}
}

func chunkRow(c model.Chunk) map[string]interface{} {
	return map[string]interface{}{
		"id":         c.ID,
		"project_id": c.ProjectID,
		"file_id":    c.FileID,
		"file_name":  c.FileName,
		"name":       c.Name,
		"content":    c.Content,
		"summary":    c.Summary,
		"size":       c.Size,
		"ctime":      c.Ctime,
		"mtime":      c.Mtime,
	}
}

func (r *ChunkRepo) CreateBatch(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, chunkRow(c))
	}
	sqlStr, args, err := builder.BuildInsert("chunks", rows)
	if err != nil {
		return err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ReplaceByFile swaps every chunk of a file for a new set and drops the questions
// anchored on the old chunks, all in one transaction.
func (r *ChunkRepo) ReplaceByFile(ctx context.Context, fileID string, chunks []model.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := r.deleteByFileTx(ctx, tx, fileID); err != nil {
		return err
	}
	for _, c := range chunks {
		sqlStr, args, err := builder.BuildInsert("chunks", []map[string]interface{}{chunkRow(c)})
		if err != nil {
			return err
		}
		sqlStr, args = r.finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteByFileID removes the chunks of a file together with their questions.
func (r *ChunkRepo) DeleteByFileID(ctx context.Context, fileID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := r.deleteByFileTx(ctx, tx, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ChunkRepo) deleteByFileTx(ctx context.Context, tx *sql.Tx, fileID string) error {
	sqlStr, args := r.finalize("DELETE FROM questions WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id=?)", []interface{}{fileID})
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	sqlStr, args = r.finalize("DELETE FROM chunks WHERE file_id=?", []interface{}{fileID})
	_, err := tx.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) GetByID(ctx context.Context, chunkID string) (*model.Chunk, error) {
	chunks, err := r.list(ctx, map[string]interface{}{"id": chunkID, "_limit": []uint{0, 1}})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &chunks[0], nil
}

// ListByFileID returns the chunks of one file in part order.
func (r *ChunkRepo) ListByFileID(ctx context.Context, fileID string) ([]model.Chunk, error) {
	chunks, err := r.list(ctx, map[string]interface{}{"file_id": fileID})
	if err != nil {
		return nil, err
	}
	model.SortChunks(chunks)
	return chunks, nil
}

// ListByProjectID returns chunks grouped by file name, each file in part order.
func (r *ChunkRepo) ListByProjectID(ctx context.Context, projectID string, filter model.ChunkFilter) ([]model.Chunk, error) {
	where := map[string]interface{}{"project_id": projectID}
	if len(filter.FileIDs) > 0 {
		where["file_id in"] = filter.FileIDs
	}
	if filter.ExcludeDistilled {
		where["name !="] = model.DistilledChunkName
	}
	chunks, err := r.list(ctx, where)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].FileName != chunks[j].FileName {
			return chunks[i].FileName < chunks[j].FileName
		}
		return model.ChunkLess(&chunks[i], &chunks[j])
	})
	return chunks, nil
}

func (r *ChunkRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Chunk, error) {
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chunks := make([]model.Chunk, 0)
	for rows.Next() {
		var c model.Chunk
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.FileID, &c.FileName, &c.Name, &c.Content, &c.Summary, &c.Size, &c.Ctime, &c.Mtime); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
