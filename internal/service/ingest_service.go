package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/config"
	"github.com/xxxsen/dsforge/internal/filestore"
	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
	"github.com/xxxsen/dsforge/internal/provenance"
	"github.com/xxxsen/dsforge/internal/repo"
	"github.com/xxxsen/dsforge/internal/segment"
)

type IngestResult struct {
	File   *model.File   `json:"file"`
	Chunks []model.Chunk `json:"chunks"`
}

type IngestService struct {
	files    *repo.FileRepo
	chunks   *repo.ChunkRepo
	gaPairs  *repo.GaPairRepo
	store    filestore.Store
	contexts *provenance.Builder
	segment  config.SegmentConfig
}

func NewIngestService(files *repo.FileRepo, chunks *repo.ChunkRepo, gaPairs *repo.GaPairRepo, store filestore.Store, contexts *provenance.Builder, segmentCfg config.SegmentConfig) *IngestService {
	return &IngestService{
		files:    files,
		chunks:   chunks,
		gaPairs:  gaPairs,
		store:    store,
		contexts: contexts,
		segment:  segmentCfg,
	}
}

// Ingest segments a document and stores it. Ingesting a file name that already
// exists in the project replaces its chunks and drops questions anchored on them.
// A nil cfg uses the configured segmentation.
func (s *IngestService) Ingest(ctx context.Context, projectID, fileName, text string, cfg *config.SegmentConfig) (*IngestResult, error) {
	projectID = strings.TrimSpace(projectID)
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if projectID == "" || fileName == "" || fileName == "." {
		return nil, fmt.Errorf("project id and file name: %w", appErr.ErrMissingParameter)
	}
	segCfg := s.segment
	if cfg != nil {
		segCfg = *cfg
	}
	logger := logutil.GetLogger(ctx).With(zap.String("project_id", projectID), zap.String("file_name", fileName))
	drafts, err := segment.Segment(ctx, fileName, text, segCfg)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	file, err := s.files.GetByName(ctx, projectID, fileName)
	isNew := false
	switch {
	case err == nil:
	case appErr.IsNotFound(err):
		isNew = true
		file = &model.File{ID: newID(), ProjectID: projectID, FileName: fileName, Ctime: now}
	default:
		return nil, err
	}
	file.StoreKey = filestore.DocumentKey(projectID, file.ID)
	file.Size = int64(len(text))
	file.Toc = segment.ExtractToc(text)
	file.Mtime = now
	if s.store != nil {
		if err := s.store.Save(ctx, file.StoreKey, strings.NewReader(text), file.Size); err != nil {
			return nil, fmt.Errorf("save document: %w", err)
		}
	}
	if isNew {
		err = s.files.Create(ctx, file)
	} else {
		err = s.files.UpdateContent(ctx, file)
	}
	if err != nil {
		return nil, err
	}

	chunks := make([]model.Chunk, 0, len(drafts))
	for _, d := range drafts {
		chunks = append(chunks, model.Chunk{
			ID:        newID(),
			ProjectID: projectID,
			FileID:    file.ID,
			FileName:  fileName,
			Name:      d.Name,
			Content:   d.Content,
			Summary:   d.Summary,
			Size:      d.Size,
			Ctime:     now,
			Mtime:     now,
		})
	}
	if err := s.chunks.ReplaceByFile(ctx, file.ID, chunks); err != nil {
		return nil, err
	}
	s.contexts.Invalidate(file.ID)
	logger.Info("document ingested", zap.String("file_id", file.ID), zap.Int("chunks", len(chunks)), zap.Bool("replaced", !isNew))
	return &IngestResult{File: file, Chunks: chunks}, nil
}

// Resegment splits a file again from its archived raw text, replacing its chunks
// the same way a re-upload does.
func (s *IngestService) Resegment(ctx context.Context, projectID, fileID string, cfg *config.SegmentConfig) (*IngestResult, error) {
	if s.store == nil {
		return nil, fmt.Errorf("no file store configured: %w", appErr.ErrInvalid)
	}
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.ProjectID != projectID {
		return nil, appErr.ErrNotFound
	}
	text, err := filestore.ReadText(ctx, s.store, file.StoreKey)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", file.ID, err)
	}
	return s.Ingest(ctx, projectID, file.FileName, text, cfg)
}

// DeleteFile removes a file with its chunks, their questions and its GA pairs.
func (s *IngestService) DeleteFile(ctx context.Context, projectID, fileID string) error {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if file.ProjectID != projectID {
		return appErr.ErrNotFound
	}
	if err := s.chunks.DeleteByFileID(ctx, fileID); err != nil {
		return err
	}
	if err := s.gaPairs.DeleteByFileID(ctx, fileID); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, fileID); err != nil {
		return err
	}
	s.contexts.Invalidate(fileID)
	if s.store != nil {
		if err := s.store.Delete(ctx, file.StoreKey); err != nil {
			logutil.GetLogger(ctx).Warn("delete stored document failed", zap.String("file_id", fileID), zap.Error(err))
		}
	}
	return nil
}

func (s *IngestService) ListFiles(ctx context.Context, projectID string) ([]model.File, error) {
	return s.files.ListByProject(ctx, projectID)
}

func (s *IngestService) Toc(ctx context.Context, projectID, fileName string) (string, error) {
	if fileName == "" {
		return "", appErr.ErrMissingParameter
	}
	return s.files.GetTocByFileName(ctx, projectID, fileName)
}
