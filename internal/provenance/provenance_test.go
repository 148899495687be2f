package provenance

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

type memChunks struct {
	items     []model.Chunk
	listCalls int
}

func (m *memChunks) GetByID(_ context.Context, id string) (*model.Chunk, error) {
	for i := range m.items {
		if m.items[i].ID == id {
			c := m.items[i]
			return &c, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (m *memChunks) ListByFileID(_ context.Context, fileID string) ([]model.Chunk, error) {
	m.listCalls++
	var out []model.Chunk
	for _, c := range m.items {
		if c.FileID == fileID {
			out = append(out, c)
		}
	}
	model.SortChunks(out)
	return out, nil
}

type memFiles map[string]*model.File

func (m memFiles) GetByID(_ context.Context, id string) (*model.File, error) {
	if f, ok := m[id]; ok {
		return f, nil
	}
	return nil, appErr.ErrNotFound
}

func fiveChunks() *memChunks {
	m := &memChunks{}
	for i := 1; i <= 5; i++ {
		m.items = append(m.items, model.Chunk{
			ID:      fmt.Sprintf("c%d", i),
			FileID:  "f1",
			Name:    model.ChunkName("doc", i),
			Content: fmt.Sprintf("body of chunk %d", i),
		})
	}
	return m
}

func TestContextualWindowCoversNeighbours(t *testing.T) {
	b := NewBuilder(fiveChunks(), memFiles{})
	q := &model.Question{ID: "q", ChunkID: "c3", Metadata: &model.QuestionMetadata{
		Type: model.QuestionTypeContextual, PreviousChunkID: "c2", NextChunkID: "c4",
	}}
	out, err := b.Build(context.Background(), q)
	require.NoError(t, err)
	text := out.Text()
	i2 := strings.Index(text, "body of chunk 2")
	i3 := strings.Index(text, "body of chunk 3")
	i4 := strings.Index(text, "body of chunk 4")
	require.True(t, i2 >= 0 && i2 < i3 && i3 < i4)
	require.NotContains(t, text, "body of chunk 1")
	require.NotContains(t, text, "body of chunk 5")
}

func TestContextualWindowAtBoundary(t *testing.T) {
	b := NewBuilder(fiveChunks(), memFiles{})
	q := &model.Question{ID: "q", ChunkID: "c1", Metadata: &model.QuestionMetadata{
		Type: model.QuestionTypeContextual, NextChunkID: "c2",
	}}
	out, err := b.Build(context.Background(), q)
	require.NoError(t, err)
	require.Nil(t, out.Previous)
	require.Contains(t, out.Text(), "body of chunk 1")
	require.Contains(t, out.Text(), "body of chunk 2")
}

func TestGlobalWindowUsesWholeFileAndCache(t *testing.T) {
	chunks := fiveChunks()
	b := NewBuilder(chunks, memFiles{"f1": {ID: "f1", Toc: "- Intro\n- Usage"}})
	q := &model.Question{ID: "q", ChunkID: "c1", Metadata: &model.QuestionMetadata{Type: model.QuestionTypeGlobal, FileID: "f1"}}

	out, err := b.Build(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, out.FileChunks, 5)
	text := out.Text()
	require.True(t, strings.HasPrefix(text, "[Table of Contents]\n- Intro"))
	require.Contains(t, text, "body of chunk 5")

	_, err = b.Build(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, 1, chunks.listCalls)
	b.Invalidate("f1")
	_, err = b.Build(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, 2, chunks.listCalls)
}

func TestLocalWindowAndMissingAnchor(t *testing.T) {
	b := NewBuilder(fiveChunks(), memFiles{})
	out, err := b.Build(context.Background(), &model.Question{ID: "q", ChunkID: "c2"})
	require.NoError(t, err)
	require.Equal(t, "body of chunk 2", out.Text())
	require.False(t, out.Distilled())

	_, err = b.Build(context.Background(), &model.Question{ID: "q", ChunkID: "gone"})
	require.ErrorIs(t, err, appErr.ErrVerificationInputMissing)
}

func TestInvalidMetadataFallsBackToLocal(t *testing.T) {
	b := NewBuilder(fiveChunks(), memFiles{})
	q := &model.Question{ID: "q", ChunkID: "c2", Metadata: &model.QuestionMetadata{Type: model.QuestionTypeGlobal}}
	out, err := b.Build(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, model.QuestionTypeLocal, out.Type)
}
