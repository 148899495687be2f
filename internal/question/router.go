// Package question turns chunks into questions using local, contextual, global or
// mixed generation strategies.
package question

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/ai"
	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
	"github.com/xxxsen/dsforge/internal/task"
)

type ChunkLister interface {
	ListByProjectID(ctx context.Context, projectID string, filter model.ChunkFilter) ([]model.Chunk, error)
}

type FileLister interface {
	ListByProject(ctx context.Context, projectID string) ([]model.File, error)
}

type GaPairLister interface {
	ListActiveByFileID(ctx context.Context, fileID string) ([]model.GaPair, error)
}

type RouterConfig struct {
	ConcurrencyLimit         int
	QuestionGenerationLength int
}

type Router struct {
	chunks  ChunkLister
	files   FileLister
	gaPairs GaPairLister
	gen     *Generator
	cfg     RouterConfig
}

func NewRouter(chunks ChunkLister, files FileLister, gaPairs GaPairLister, gen *Generator, cfg RouterConfig) *Router {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = task.DefaultConcurrencyLimit
	}
	if cfg.QuestionGenerationLength <= 0 {
		cfg.QuestionGenerationLength = defaultQuestionLength
	}
	return &Router{chunks: chunks, files: files, gaPairs: gaPairs, gen: gen, cfg: cfg}
}

// Route plans every phase up front so the task total is known, then runs the
// phases in order through the task runner. It returns the number of saved questions.
func (r *Router) Route(ctx context.Context, exec *task.Execution, plan Plan, llm ai.ILLM, language string) (int, error) {
	if err := plan.Validate(); err != nil {
		return 0, err
	}
	if llm == nil {
		return 0, fmt.Errorf("no model client: %w", appErr.ErrTaskSetup)
	}
	projectID := exec.ProjectID()
	logger := logutil.GetLogger(ctx).With(zap.String("task_id", exec.TaskID()), zap.String("strategy", plan.Strategy.Name()))
	src := &unitSource{
		ctx:            ctx,
		projectID:      projectID,
		questionLength: r.cfg.QuestionGenerationLength,
		chunks:         r.chunks,
		files:          r.files,
		gaPairs:        r.gaPairs,
	}
	phases, err := plan.Strategy.plan(src, plan.Quota)
	if err != nil {
		return 0, fmt.Errorf("plan %s: %w", plan.Strategy.Name(), err)
	}
	total := 0
	for _, p := range phases {
		total += p.total()
	}
	exec.SetTotal(total)
	logger.Info("question generation planned", zap.Int("phases", len(phases)), zap.Int("total", total))

	saved := 0
	for _, p := range phases {
		if exec.Stopped(ctx) {
			exec.Note("stopped before %s phase", p.typ)
			break
		}
		stats := task.ForEach(ctx, exec, p.items, r.cfg.ConcurrencyLimit, func(ctx context.Context, it workItem) (int, error) {
			items, err := r.gen.Generate(ctx, llm, it.unit, it.quota, language)
			return len(items), err
		})
		saved += stats.Progress
		exec.Note("%s: %d units, %d questions", p.typ, stats.Attempted, stats.Progress)
	}
	logger.Info("question generation finished", zap.Int("saved", saved))
	return saved, nil
}
