package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/dsforge/internal/config"
	"github.com/xxxsen/dsforge/internal/model"
	"github.com/xxxsen/dsforge/internal/pkg/errcode"
	"github.com/xxxsen/dsforge/internal/pkg/response"
	"github.com/xxxsen/dsforge/internal/service"
)

// maxUploadBytes caps one ingested document.
const maxUploadBytes int64 = 32 << 20

type FileService interface {
	Ingest(ctx context.Context, projectID, fileName, text string, cfg *config.SegmentConfig) (*service.IngestResult, error)
	Resegment(ctx context.Context, projectID, fileID string, cfg *config.SegmentConfig) (*service.IngestResult, error)
	DeleteFile(ctx context.Context, projectID, fileID string) error
	ListFiles(ctx context.Context, projectID string) ([]model.File, error)
	Toc(ctx context.Context, projectID, fileName string) (string, error)
}

type FileHandler struct {
	files FileService
}

func NewFileHandler(files FileService) *FileHandler {
	return &FileHandler{files: files}
}

type ingestRequest struct {
	FileName string                `json:"file_name"`
	Text     string                `json:"text"`
	Segment  *config.SegmentConfig `json:"segment,omitempty"`
}

type ingestResponse struct {
	File       *model.File `json:"file"`
	ChunkCount int         `json:"chunk_count"`
}

// Ingest accepts either a multipart upload in field "file" or a JSON body with inline text.
func (h *FileHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := c.FormFile("file")
		if err != nil {
			response.Error(c, errcode.ErrInvalidFile, "file is required")
			return
		}
		if file.Size > maxUploadBytes {
			response.Error(c, errcode.ErrInvalidFile, fmt.Sprintf("file exceeds %dMB", maxUploadBytes>>20))
			return
		}
		text, err := readTextFile(file)
		if err != nil {
			response.Error(c, errcode.ErrInvalidFile, err.Error())
			return
		}
		req.FileName = file.Filename
		if name := strings.TrimSpace(c.PostForm("file_name")); name != "" {
			req.FileName = name
		}
		req.Text = text
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.files.Ingest(c.Request.Context(), c.Param("project_id"), req.FileName, req.Text, req.Segment)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ingestResponse{File: result.File, ChunkCount: len(result.Chunks)})
}

type resegmentRequest struct {
	Segment *config.SegmentConfig `json:"segment,omitempty"`
}

// Resegment splits a stored file again. An empty body reuses the configured segmentation.
func (h *FileHandler) Resegment(c *gin.Context) {
	var req resegmentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid request")
			return
		}
	}
	result, err := h.files.Resegment(c.Request.Context(), c.Param("project_id"), c.Param("file_id"), req.Segment)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ingestResponse{File: result.File, ChunkCount: len(result.Chunks)})
}

func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.files.DeleteFile(c.Request.Context(), c.Param("project_id"), c.Param("file_id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *FileHandler) List(c *gin.Context) {
	files, err := h.files.ListFiles(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.List(c, files, len(files))
}

func (h *FileHandler) Toc(c *gin.Context) {
	toc, err := h.files.Toc(c.Request.Context(), c.Param("project_id"), c.Query("name"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"toc": toc})
}

func readTextFile(header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", errors.New("failed to open file")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return "", errors.New("failed to read file")
	}
	if !strings.HasPrefix(http.DetectContentType(data), "text/") {
		return "", errors.New("only text documents are supported")
	}
	return string(data), nil
}
