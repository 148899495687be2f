// Package segment turns a document into ordered, named chunk drafts.
package segment

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/config"
	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

const (
	TypeDefault = "default"
	TypeFixed   = "fixed"
	TypeToken   = "token"
	TypeCode    = "code"
	TypeCustom  = "custom"
)

// Section is one piece of text cut by a Splitter, with an optional summary.
type Section struct {
	Content string
	Summary string
}

type Splitter interface {
	Split(text string) []Section
}

func NewSplitter(cfg config.SegmentConfig) (Splitter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", TypeDefault:
		return NewMarkdownSplitter(cfg.MinLength, cfg.MaxLength), nil
	case TypeFixed:
		return NewFixedSplitter(WithChunkSize(cfg.ChunkSize), WithOverlap(cfg.ChunkOverlap)), nil
	case TypeToken:
		return NewTokenSplitter(WithChunkSize(cfg.ChunkSize), WithOverlap(cfg.ChunkOverlap)), nil
	case TypeCode:
		return NewCodeSplitter(cfg.Language, WithChunkSize(cfg.ChunkSize), WithOverlap(cfg.ChunkOverlap)), nil
	case TypeCustom:
		if cfg.Separator == "" {
			return nil, fmt.Errorf("custom segmenter needs a separator: %w", appErr.ErrInvalid)
		}
		return NewCustomSplitter(cfg.Separator), nil
	default:
		return nil, fmt.Errorf("unknown segment type %q: %w", cfg.Type, appErr.ErrInvalid)
	}
}

// Segment splits text with the configured strategy and names each part "<base>-part-<n>".
func Segment(ctx context.Context, fileName, text string, cfg config.SegmentConfig) ([]model.ChunkDraft, error) {
	splitter, err := NewSplitter(cfg)
	if err != nil {
		return nil, err
	}
	return Build(ctx, fileName, splitter.Split(text))
}

// Build converts sections to drafts. Blank sections are dropped with a warning;
// a document that leaves nothing behind is an error.
func Build(ctx context.Context, fileName string, sections []Section) ([]model.ChunkDraft, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("file", fileName))
	base := FileBase(fileName)
	drafts := make([]model.ChunkDraft, 0, len(sections))
	for i, sec := range sections {
		if strings.TrimSpace(sec.Content) == "" {
			logger.Warn("drop empty segment", zap.Int("index", i))
			continue
		}
		drafts = append(drafts, model.ChunkDraft{
			Name:    model.ChunkName(base, len(drafts)+1),
			Content: sec.Content,
			Summary: sec.Summary,
			Size:    utf8.RuneCountInString(sec.Content),
		})
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("segment %s: %w", fileName, appErr.ErrEmptyDocument)
	}
	logger.Info("document segmented", zap.Int("sections", len(sections)), zap.Int("chunks", len(drafts)))
	return drafts, nil
}

// FileBase strips directory and extension from a file name.
func FileBase(fileName string) string {
	base := filepath.Base(fileName)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == "/" {
		return fileName
	}
	return base
}

const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200
)

type window struct {
	size    int
	overlap int
}

type Option func(*window)

func WithChunkSize(size int) Option {
	return func(w *window) {
		if size > 0 {
			w.size = size
		}
	}
}

func WithOverlap(overlap int) Option {
	return func(w *window) {
		if overlap >= 0 {
			w.overlap = overlap
		}
	}
}

func newWindow(opts ...Option) window {
	w := window{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(&w)
	}
	if w.overlap >= w.size {
		w.overlap = w.size / 4
	}
	return w
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// hardSplit cuts text into windows of at most size runes without overlap.
func hardSplit(text string, size int) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
