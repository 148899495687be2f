package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
	"github.com/xxxsen/dsforge/internal/testutil"
)

func seedChunks(fileID, fileName string, names ...string) []model.Chunk {
	out := make([]model.Chunk, 0, len(names))
	for i, name := range names {
		out = append(out, model.Chunk{
			ID:        fileID + "-" + name,
			ProjectID: "p1",
			FileID:    fileID,
			FileName:  fileName,
			Name:      name,
			Content:   "content of " + name,
			Size:      10 + i,
			Ctime:     1,
			Mtime:     1,
		})
	}
	return out
}

func TestChunkRepoListByFileIDOrdersByPartNumber(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepo(testutil.OpenDB(t))
	require.NoError(t, repo.CreateBatch(ctx, seedChunks("f1", "doc.md", "doc-part-10", "doc-part-2", "doc-part-1")))

	chunks, err := repo.ListByFileID(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Equal(t, "doc-part-1", chunks[0].Name)
	require.Equal(t, "doc-part-2", chunks[1].Name)
	require.Equal(t, "doc-part-10", chunks[2].Name)
}

func TestChunkRepoListByProjectIDFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewChunkRepo(testutil.OpenDB(t))
	require.NoError(t, repo.CreateBatch(ctx, seedChunks("f2", "b.md", "b-part-2", "b-part-1")))
	require.NoError(t, repo.CreateBatch(ctx, seedChunks("f1", "a.md", "a-part-1", model.DistilledChunkName)))

	all, err := repo.ListByProjectID(ctx, "p1", model.ChunkFilter{})
	require.NoError(t, err)
	names := make([]string, 0, len(all))
	for _, c := range all {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"a-part-1", model.DistilledChunkName, "b-part-1", "b-part-2"}, names)

	filtered, err := repo.ListByProjectID(ctx, "p1", model.ChunkFilter{FileIDs: []string{"f1"}, ExcludeDistilled: true})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, "a-part-1", filtered[0].Name)
}

func TestChunkRepoReplaceByFileDropsQuestions(t *testing.T) {
	ctx := context.Background()
	conn := testutil.OpenDB(t)
	chunks := NewChunkRepo(conn)
	questions := NewQuestionRepo(conn)
	require.NoError(t, chunks.CreateBatch(ctx, seedChunks("f1", "doc.md", "doc-part-1")))
	require.NoError(t, questions.CreateBatch(ctx, []model.Question{{
		ID: "q1", ProjectID: "p1", ChunkID: "f1-doc-part-1", Question: "why?", Ctime: 1, Mtime: 1,
	}}))

	require.NoError(t, chunks.ReplaceByFile(ctx, "f1", seedChunks("f1", "doc.md", "doc-part-1", "doc-part-2")))

	_, err := questions.GetByID(ctx, "q1")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	got, err := chunks.ListByFileID(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestQuestionRepoMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewQuestionRepo(testutil.OpenDB(t))
	meta := &model.QuestionMetadata{Type: model.QuestionTypeContextual, NextChunkID: "c3"}
	require.NoError(t, repo.CreateBatch(ctx, []model.Question{
		{ID: "q1", ProjectID: "p1", ChunkID: "c2", Question: "a", Metadata: meta, Ctime: 1, Mtime: 1},
		{ID: "q2", ProjectID: "p1", ChunkID: "c2", Question: "b", Ctime: 2, Mtime: 2},
	}))

	q1, err := repo.GetByID(ctx, "q1")
	require.NoError(t, err)
	require.Equal(t, meta, q1.Metadata)
	q2, err := repo.GetByID(ctx, "q2")
	require.NoError(t, err)
	require.Nil(t, q2.Metadata)
	require.Equal(t, model.QuestionTypeLocal, q2.Metadata.EffectiveType())

	require.NoError(t, repo.MarkAnswered(ctx, "q1", 5))
	unanswered, err := repo.ListUnanswered(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, unanswered, 1)
	require.Equal(t, "q2", unanswered[0].ID)
}

func TestDatasetRepoVerificationNullScore(t *testing.T) {
	ctx := context.Background()
	repo := NewDatasetRepo(testutil.OpenDB(t))
	require.NoError(t, repo.Create(ctx, &model.Dataset{
		ID: "d1", ProjectID: "p1", QuestionID: "q1", Question: "q", VerificationStatus: model.VerificationPending, Ctime: 1, Mtime: 1,
	}))
	item, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	require.Nil(t, item.TraceabilityScore)

	score := 0.8
	require.NoError(t, repo.UpdateVerification(ctx, "d1", &score, model.VerificationPartiallyVerified, 2))
	item, err = repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, item.TraceabilityScore)
	require.InDelta(t, 0.8, *item.TraceabilityScore, 1e-9)
	require.Equal(t, model.VerificationPartiallyVerified, item.VerificationStatus)

	require.NoError(t, repo.UpdateVerification(ctx, "d1", nil, model.VerificationUnverified, 3))
	item, err = repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	require.Nil(t, item.TraceabilityScore)

	total, err := repo.CountByProject(ctx, "p1", DatasetFilter{Statuses: []model.VerificationStatus{model.VerificationUnverified}})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.ErrorIs(t, repo.UpdateCot(ctx, "missing", "x", 1), appErr.ErrNotFound)
}

func TestTaskRepoStatusNeverLeavesTerminal(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepo(testutil.OpenDB(t))
	require.NoError(t, repo.Create(ctx, &model.Task{
		ID: "t1", ProjectID: "p1", Type: model.TaskTypeQuestionGeneration, Status: model.TaskStatusProcessing, Ctime: 1, Mtime: 1,
	}))

	ok, err := repo.UpdateStatusIf(ctx, "t1", model.TaskStatusProcessing, model.TaskStatusAborted, "", 10)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.UpdateStatusIf(ctx, "t1", model.TaskStatusProcessing, model.TaskStatusCompleted, "done", 11)
	require.NoError(t, err)
	require.False(t, ok)

	task, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, model.TaskStatusAborted, task.Status)
	require.Equal(t, int64(10), task.EndTime)

	require.NoError(t, repo.UpdateProgress(ctx, "t1", 3, 4, "attempted 3", 12))
	task, err = repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 3, task.CompletedCount)
	require.Equal(t, 4, task.TotalCount)
}

func TestFileRepoConflictAndToc(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepo(testutil.OpenDB(t))
	file := &model.File{ID: "f1", ProjectID: "p1", FileName: "doc.md", Toc: "- Intro", Ctime: 1, Mtime: 1}
	require.NoError(t, repo.Create(ctx, file))
	dup := *file
	dup.ID = "f2"
	require.ErrorIs(t, repo.Create(ctx, &dup), appErr.ErrConflict)

	toc, err := repo.GetTocByFileName(ctx, "p1", "doc.md")
	require.NoError(t, err)
	require.Equal(t, "- Intro", toc)
	require.NoError(t, repo.Delete(ctx, "f1"))
	require.ErrorIs(t, repo.Delete(ctx, "f1"), appErr.ErrNotFound)
}
