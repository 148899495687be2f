package question

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/dsforge/internal/ai"
	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
	"github.com/xxxsen/dsforge/internal/repo"
	"github.com/xxxsen/dsforge/internal/task"
	"github.com/xxxsen/dsforge/internal/testutil"
)

var (
	quotaPattern    = regexp.MustCompile(`write (\d+) distinct questions`)
	numberedPattern = regexp.MustCompile(`(?m)^\d+\. `)
)

type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	seq     int
	// reply overrides the generated question array when set.
	reply func(prompt string) (string, error)
	label string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if strings.HasPrefix(prompt, "You classify") {
		n := len(numberedPattern.FindAllString(prompt, -1))
		items := make([]string, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, fmt.Sprintf(`{"question": "", "label": %q}`, f.label))
		}
		return "[" + strings.Join(items, ",") + "]", nil
	}
	if f.reply != nil {
		return f.reply(prompt)
	}
	m := quotaPattern.FindStringSubmatch(prompt)
	n, _ := strconv.Atoi(m[1])
	qs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		f.seq++
		qs = append(qs, fmt.Sprintf("%q", fmt.Sprintf("question %d?", f.seq)))
	}
	return "```json\n[" + strings.Join(qs, ", ") + "]\n```", nil
}

func (f *fakeLLM) CompleteWithReasoning(ctx context.Context, prompt string) (*ai.Reasoning, error) {
	return nil, fmt.Errorf("not used")
}

func (f *fakeLLM) ModelName() string { return "fake" }

func (f *fakeLLM) questionPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.prompts {
		if !strings.HasPrefix(p, "You classify") {
			out = append(out, p)
		}
	}
	return out
}

type fixture struct {
	chunks    *repo.ChunkRepo
	files     *repo.FileRepo
	questions *repo.QuestionRepo
	tags      *repo.TagRepo
	gaPairs   *repo.GaPairRepo
	tasks     *repo.TaskRepo
}

func newFixture(t *testing.T) *fixture {
	d := testutil.OpenDB(t)
	return &fixture{
		chunks:    repo.NewChunkRepo(d),
		files:     repo.NewFileRepo(d),
		questions: repo.NewQuestionRepo(d),
		tags:      repo.NewTagRepo(d),
		gaPairs:   repo.NewGaPairRepo(d),
		tasks:     repo.NewTaskRepo(d),
	}
}

// addFile stores a file whose chunks are named <base>-part-1..n.
func (f *fixture) addFile(t *testing.T, id, name, toc string, contents ...string) []model.Chunk {
	ctx := context.Background()
	require.NoError(t, f.files.Create(ctx, &model.File{ID: id, ProjectID: "p1", FileName: name, Toc: toc}))
	base := strings.TrimSuffix(name, ".md")
	chunks := make([]model.Chunk, 0, len(contents))
	for i, c := range contents {
		chunks = append(chunks, model.Chunk{
			ID:        fmt.Sprintf("%s-c%d", id, i+1),
			ProjectID: "p1",
			FileID:    id,
			FileName:  name,
			Name:      model.ChunkName(base, i+1),
			Content:   c,
			Size:      len(c),
		})
	}
	require.NoError(t, f.chunks.CreateBatch(ctx, chunks))
	return chunks
}

func (f *fixture) router(gen *Generator) *Router {
	return NewRouter(f.chunks, f.files, f.gaPairs, gen, RouterConfig{ConcurrencyLimit: 2, QuestionGenerationLength: 10})
}

func (f *fixture) run(t *testing.T, r *Router, plan Plan, llm ai.ILLM) (*model.Task, int) {
	ctx := context.Background()
	runner := task.NewRunner(f.tasks, 2)
	tk, err := runner.Create(ctx, "p1", model.TaskTypeQuestionGeneration, model.TaskNote{})
	require.NoError(t, err)
	saved := 0
	require.NoError(t, runner.Execute(ctx, tk, func(ctx context.Context, exec *task.Execution) error {
		n, err := r.Route(ctx, exec, plan, llm, "en")
		saved = n
		return err
	}))
	got, err := f.tasks.GetByID(ctx, tk.ID)
	require.NoError(t, err)
	return got, saved
}

func TestSmartMixAllocation(t *testing.T) {
	alloc := SmartMix{TotalSize: 1000, Local: 60, Contextual: 30, Global: 10}.Allocate()
	require.Equal(t, Allocation{Local: 600, Contextual: 300, Global: 100}, alloc)
}

func TestSmartMixAllocationSumsToTotal(t *testing.T) {
	for total := 1; total <= 257; total += 7 {
		for g := 0; g <= 100; g += 13 {
			for c := 0; c <= 100-g; c += 11 {
				mix := SmartMix{TotalSize: total, Local: 100 - g - c, Contextual: c, Global: g}
				require.NoError(t, mix.Validate())
				a := mix.Allocate()
				require.Equal(t, total, a.Local+a.Contextual+a.Global)
				require.GreaterOrEqual(t, a.Local, 0)
				require.GreaterOrEqual(t, a.Contextual, 0)
				require.GreaterOrEqual(t, a.Global, 0)
			}
		}
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("contextual", nil)
	require.NoError(t, err)
	require.Equal(t, ContextualStrategy{}, s)

	s, err = ParseStrategy("", nil)
	require.NoError(t, err)
	require.Equal(t, LocalStrategy{}, s)

	_, err = ParseStrategy("smart-mix", nil)
	require.ErrorIs(t, err, appErr.ErrMissingParameter)

	_, err = ParseStrategy("smart-mix", &SmartMix{TotalSize: 10, Local: 50, Contextual: 30, Global: 10})
	require.ErrorIs(t, err, appErr.ErrTaskSetup)

	_, err = ParseStrategy("random", nil)
	require.ErrorIs(t, err, appErr.ErrInvalid)

	require.ErrorIs(t, Plan{}.Validate(), appErr.ErrTaskSetup)
	require.ErrorIs(t, Plan{Strategy: SmartMix{TotalSize: 5, Local: 99}}.Validate(), appErr.ErrTaskSetup)
}

func TestUnitQuota(t *testing.T) {
	require.Equal(t, 3, unitQuota(10, 3, 7))
	require.Equal(t, 1, unitQuota(2, 5, 7))
	require.Equal(t, 7, unitQuota(0, 5, 7))
	require.Equal(t, 0, unitQuota(4, 0, 7))
}

func TestContextualUnitsUseFileNeighbours(t *testing.T) {
	f := newFixture(t)
	a := f.addFile(t, "fa", "guide.md", "", "alpha one", "alpha two", "alpha three")
	f.addFile(t, "fb", "single.md", "", "lonely chunk")
	llm := &fakeLLM{}
	gen := NewGenerator(f.questions, f.tags, WithRandom(func() float64 { return 1 }))

	tk, saved := f.run(t, f.router(gen), Plan{Strategy: ContextualStrategy{}}, llm)
	require.Equal(t, 9, saved)
	require.Equal(t, model.TaskStatusCompleted, tk.Status)
	require.Equal(t, 9, tk.TotalCount)
	require.Equal(t, 9, tk.CompletedCount)

	qs, err := f.questions.ListByProject(context.Background(), "p1")
	require.NoError(t, err)
	byChunk := map[string]*model.QuestionMetadata{}
	for _, q := range qs {
		require.True(t, strings.HasSuffix(q.Question, "?"))
		byChunk[q.ChunkID] = q.Metadata
	}
	require.Len(t, byChunk, 3)
	require.NotContains(t, byChunk, "fb-c1")
	first := byChunk[a[0].ID]
	require.Equal(t, model.QuestionTypeContextual, first.Type)
	require.Empty(t, first.PreviousChunkID)
	require.Equal(t, a[1].ID, first.NextChunkID)
	middle := byChunk[a[1].ID]
	require.Equal(t, a[0].ID, middle.PreviousChunkID)
	require.Equal(t, a[2].ID, middle.NextChunkID)

	for _, p := range llm.questionPrompts() {
		require.Contains(t, p, "consecutive sections")
	}
}

func TestSmartMixRunsGlobalThenContextualThenLocal(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "fa", "guide.md", "- Intro\n- Usage", "alpha one", "alpha two", "alpha three")
	f.addFile(t, "fb", "single.md", "", "lonely chunk")
	llm := &fakeLLM{}
	gen := NewGenerator(f.questions, f.tags)
	plan := Plan{Strategy: SmartMix{TotalSize: 10, Local: 60, Contextual: 30, Global: 10}}

	tk, saved := f.run(t, f.router(gen), plan, llm)
	// global 1 file x1, contextual 3 units x1, local 4 units x max(1, 6/4)
	require.Equal(t, 8, saved)
	require.Equal(t, 8, tk.TotalCount)
	require.Equal(t, 8, tk.CompletedCount)

	prompts := llm.questionPrompts()
	require.Len(t, prompts, 8)
	require.Contains(t, prompts[0], "whole document")
	require.Contains(t, prompts[0], "- Intro")
	for _, p := range prompts[1:4] {
		require.Contains(t, p, "consecutive sections")
	}
	for _, p := range prompts[4:] {
		require.Contains(t, p, "key points")
	}

	qs, err := f.questions.ListByProject(context.Background(), "p1")
	require.NoError(t, err)
	counts := map[model.QuestionType]int{}
	for _, q := range qs {
		counts[q.Metadata.EffectiveType()]++
		if q.Metadata.Type == model.QuestionTypeGlobal {
			require.Equal(t, "fa", q.Metadata.FileID)
			require.Equal(t, "fa-c1", q.ChunkID)
		}
	}
	require.Equal(t, map[model.QuestionType]int{"global": 1, "contextual": 3, "local": 4}, counts)
}

func TestLocalDefaultQuotaFollowsChunkLength(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "fa", "guide.md", "", strings.Repeat("x", 35), "short")
	llm := &fakeLLM{}
	gen := NewGenerator(f.questions, f.tags)

	tk, saved := f.run(t, f.router(gen), Plan{Strategy: LocalStrategy{}}, llm)
	// 35/10 = 3 for the long chunk, at least one for the short one
	require.Equal(t, 4, saved)
	require.Equal(t, 4, tk.TotalCount)
}

func TestGlobalSkipsFilesWithoutToc(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "fa", "guide.md", "", "alpha one")
	llm := &fakeLLM{}
	gen := NewGenerator(f.questions, f.tags)

	tk, saved := f.run(t, f.router(gen), Plan{Strategy: GlobalStrategy{}, Quota: 5}, llm)
	require.Zero(t, saved)
	require.Zero(t, tk.TotalCount)
	require.Equal(t, model.TaskStatusCompleted, tk.Status)
	require.Empty(t, llm.questionPrompts())
}

func TestGeneratorMasksAndLabels(t *testing.T) {
	f := newFixture(t)
	chunks := f.addFile(t, "fa", "guide.md", "", "alpha one")
	require.NoError(t, f.tags.CreateBatch(context.Background(), []model.Tag{
		{ID: "t1", ProjectID: "p1", Label: "Science"},
		{ID: "t2", ProjectID: "p1", Label: "Physics", ParentID: "t1"},
	}))
	llm := &fakeLLM{label: "Science > Physics"}
	gen := NewGenerator(f.questions, f.tags, WithMaskRemovingProbability(0.6), WithRandom(func() float64 { return 0.1 }))
	unit := Unit{Context: localContext(&chunks[0])}

	qs, err := gen.Generate(context.Background(), llm, unit, 2, "en")
	require.NoError(t, err)
	require.Len(t, qs, 2)
	for _, q := range qs {
		require.False(t, strings.HasSuffix(q.Question, "?"))
		require.Equal(t, "Physics", q.Label)
		require.Equal(t, "fa-c1", q.ChunkID)
		require.Equal(t, model.QuestionTypeLocal, q.Metadata.Type)
	}
}

func TestGeneratorKeepsMarkAboveProbability(t *testing.T) {
	gen := NewGenerator(nil, nil, WithRandom(func() float64 { return 0.7 }))
	require.Equal(t, "why?", gen.maskQuestion("why?"))
	gen = NewGenerator(nil, nil, WithRandom(func() float64 { return 0.59 }))
	require.Equal(t, "为什么", gen.maskQuestion("为什么？"))
	require.Equal(t, "no mark", gen.maskQuestion("no mark"))
}

func TestGeneratorMalformedReplyIsNotFatal(t *testing.T) {
	f := newFixture(t)
	chunks := f.addFile(t, "fa", "guide.md", "", "alpha one")
	llm := &fakeLLM{reply: func(string) (string, error) { return "I cannot help with that", nil }}
	gen := NewGenerator(f.questions, f.tags)

	qs, err := gen.Generate(context.Background(), llm, Unit{Context: localContext(&chunks[0])}, 3, "en")
	require.NoError(t, err)
	require.Empty(t, qs)

	llm.reply = func(string) (string, error) { return "", fmt.Errorf("upstream down") }
	_, err = gen.Generate(context.Background(), llm, Unit{Context: localContext(&chunks[0])}, 3, "en")
	require.Error(t, err)
}

func TestGeneratorRunsOncePerGaPair(t *testing.T) {
	f := newFixture(t)
	chunks := f.addFile(t, "fa", "guide.md", "", "alpha one")
	pairs := []model.GaPair{
		{ID: "g1", FileID: "fa", GenreTitle: "Tutorial", AudienceTitle: "Beginner", IsActive: true},
		{ID: "g2", FileID: "fa", GenreTitle: "Reference", AudienceTitle: "Expert", IsActive: true},
	}
	llm := &fakeLLM{}
	gen := NewGenerator(f.questions, f.tags)

	qs, err := gen.Generate(context.Background(), llm, Unit{Context: localContext(&chunks[0]), GaPairs: pairs}, 4, "zh")
	require.NoError(t, err)
	require.Len(t, qs, 4)
	prompts := llm.questionPrompts()
	require.Len(t, prompts, 2)
	require.Contains(t, prompts[0], "Tutorial")
	require.Contains(t, prompts[1], "Expert")
	require.Contains(t, prompts[0], "Chinese")
	require.Equal(t, "g1", qs[0].GaPairID)
	require.Equal(t, "g2", qs[3].GaPairID)
}

func TestTagPaths(t *testing.T) {
	tags := []model.Tag{
		{ID: "a", Label: "Root"},
		{ID: "b", Label: "Mid", ParentID: "a"},
		{ID: "c", Label: "Leaf", ParentID: "b"},
		{ID: "d", Label: "Orphan", ParentID: "missing"},
	}
	require.Equal(t, []string{"Root", "Root > Mid", "Root > Mid > Leaf", "Orphan"}, tagPaths(tags))
}
