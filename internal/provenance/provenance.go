// Package provenance rebuilds the source text a question was generated from.
// Answer generation and verification both read context through it so they
// always see the same window.
package provenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 5 * time.Minute
)

type ChunkReader interface {
	GetByID(ctx context.Context, id string) (*model.Chunk, error)
	ListByFileID(ctx context.Context, fileID string) ([]model.Chunk, error)
}

type FileReader interface {
	GetByID(ctx context.Context, id string) (*model.File, error)
}

type Context struct {
	Type     model.QuestionType
	Anchor   *model.Chunk
	Previous *model.Chunk
	Next     *model.Chunk
	// FileChunks and Toc are only filled for global questions.
	FileChunks []model.Chunk
	Toc        string
}

// Distilled reports whether the anchor is a pre-summarized pseudo chunk.
func (c *Context) Distilled() bool {
	return c.Anchor != nil && c.Anchor.IsDistilled()
}

// Text renders the window: the anchor for local questions, previous + anchor + next
// for contextual ones, and the TOC followed by every chunk for global ones.
func (c *Context) Text() string {
	switch c.Type {
	case model.QuestionTypeContextual:
		parts := make([]string, 0, 3)
		if c.Previous != nil {
			parts = append(parts, "[Previous Section]\n"+c.Previous.Content)
		}
		if c.Anchor != nil {
			parts = append(parts, "[Current Section]\n"+c.Anchor.Content)
		}
		if c.Next != nil {
			parts = append(parts, "[Next Section]\n"+c.Next.Content)
		}
		return strings.Join(parts, "\n\n")
	case model.QuestionTypeGlobal:
		var sb strings.Builder
		if c.Toc != "" {
			sb.WriteString("[Table of Contents]\n")
			sb.WriteString(c.Toc)
			sb.WriteString("\n\n")
		}
		sb.WriteString("[Document]\n")
		for i, chunk := range c.FileChunks {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(chunk.Content)
		}
		return sb.String()
	default:
		if c.Anchor == nil {
			return ""
		}
		return c.Anchor.Content
	}
}

type Builder struct {
	chunks ChunkReader
	files  FileReader
	cache  *expirable.LRU[string, []model.Chunk]
}

func NewBuilder(chunks ChunkReader, files FileReader) *Builder {
	return &Builder{
		chunks: chunks,
		files:  files,
		cache:  expirable.NewLRU[string, []model.Chunk](defaultCacheSize, nil, defaultCacheTTL),
	}
}

// Build resolves the context for a question from its metadata. A missing anchor
// is ErrVerificationInputMissing; a vanished neighbour is only logged.
func (b *Builder) Build(ctx context.Context, q *model.Question) (*Context, error) {
	if q == nil {
		return nil, fmt.Errorf("nil question: %w", appErr.ErrVerificationInputMissing)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("question_id", q.ID))
	if err := q.Metadata.Validate(); err != nil {
		logger.Warn("invalid question metadata, treat as local", zap.Error(err))
		return b.buildLocal(ctx, q)
	}
	switch q.Metadata.EffectiveType() {
	case model.QuestionTypeContextual:
		out, err := b.buildLocal(ctx, q)
		if err != nil {
			return nil, err
		}
		out.Type = model.QuestionTypeContextual
		out.Previous = b.neighbour(ctx, q.Metadata.PreviousChunkID)
		out.Next = b.neighbour(ctx, q.Metadata.NextChunkID)
		return out, nil
	case model.QuestionTypeGlobal:
		out, err := b.buildLocal(ctx, q)
		if err != nil {
			return nil, err
		}
		fileID := q.Metadata.FileID
		out.Type = model.QuestionTypeGlobal
		out.FileChunks, err = b.fileChunks(ctx, fileID)
		if err != nil {
			return nil, err
		}
		file, err := b.files.GetByID(ctx, fileID)
		switch {
		case err == nil:
			out.Toc = file.Toc
		case appErr.IsNotFound(err):
			logger.Warn("file of global question not found", zap.String("file_id", fileID))
		default:
			return nil, err
		}
		return out, nil
	default:
		return b.buildLocal(ctx, q)
	}
}

func (b *Builder) buildLocal(ctx context.Context, q *model.Question) (*Context, error) {
	anchor, err := b.chunks.GetByID(ctx, q.ChunkID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, fmt.Errorf("anchor chunk %s: %w", q.ChunkID, appErr.ErrVerificationInputMissing)
		}
		return nil, err
	}
	return &Context{Type: model.QuestionTypeLocal, Anchor: anchor}, nil
}

func (b *Builder) neighbour(ctx context.Context, chunkID string) *model.Chunk {
	if chunkID == "" {
		return nil
	}
	chunk, err := b.chunks.GetByID(ctx, chunkID)
	if err != nil {
		logutil.GetLogger(ctx).Warn("neighbour chunk unavailable", zap.String("chunk_id", chunkID), zap.Error(err))
		return nil
	}
	return chunk
}

func (b *Builder) fileChunks(ctx context.Context, fileID string) ([]model.Chunk, error) {
	if cached, ok := b.cache.Get(fileID); ok {
		return cached, nil
	}
	chunks, err := b.chunks.ListByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	b.cache.Add(fileID, chunks)
	return chunks, nil
}

// Invalidate drops the cached chunk list of a file after re-ingestion or deletion.
func (b *Builder) Invalidate(fileID string) {
	b.cache.Remove(fileID)
}

// SourceText is what the answer prompt embeds and what quotes are checked against.
// A distilled anchor carries no source of its own, so the question stands in.
func (c *Context) SourceText(q *model.Question) string {
	if c.Distilled() && q != nil {
		return q.Question
	}
	return c.Text()
}
