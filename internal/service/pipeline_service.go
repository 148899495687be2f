package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/ai"
	"github.com/xxxsen/dsforge/internal/answer"
	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
	"github.com/xxxsen/dsforge/internal/question"
	"github.com/xxxsen/dsforge/internal/repo"
	"github.com/xxxsen/dsforge/internal/task"
	"github.com/xxxsen/dsforge/internal/verify"
)

// LLMResolver hands out a model client for a provider/model selection.
type LLMResolver interface {
	Client(mc model.ModelConfig) (ai.ILLM, error)
}

type QuestionTaskInput struct {
	Strategy string             `json:"strategy"`
	Quota    int                `json:"quota"`
	SmartMix *question.SmartMix `json:"smart_mix,omitempty"`
	Model    model.ModelConfig  `json:"model"`
	Language string             `json:"language"`
}

type AnswerTaskInput struct {
	// QuestionID selects one question; empty means every unanswered question of the project.
	QuestionID string            `json:"question_id"`
	Model      model.ModelConfig `json:"model"`
	Language   string            `json:"language"`
}

type DatasetQuery struct {
	Statuses []model.VerificationStatus
	Offset   uint
	Limit    uint
}

type PipelineDeps struct {
	Runner    *task.Runner
	Router    *question.Router
	Answers   *answer.Generator
	Verifier  *verify.Verifier
	LLMs      LLMResolver
	Questions *repo.QuestionRepo
	Datasets  *repo.DatasetRepo
	Tasks     *repo.TaskRepo
}

type PipelineService struct {
	runner    *task.Runner
	router    *question.Router
	answers   *answer.Generator
	verifier  *verify.Verifier
	llms      LLMResolver
	questions *repo.QuestionRepo
	datasets  *repo.DatasetRepo
	tasks     *repo.TaskRepo
}

func NewPipelineService(deps PipelineDeps) *PipelineService {
	return &PipelineService{
		runner:    deps.Runner,
		router:    deps.Router,
		answers:   deps.Answers,
		verifier:  deps.Verifier,
		llms:      deps.LLMs,
		questions: deps.Questions,
		datasets:  deps.Datasets,
		tasks:     deps.Tasks,
	}
}

// StartQuestionGenerationTask validates the request, creates the task and runs
// generation in the background. A smart mix that does not add up to 100 still
// creates the task, which fails right away.
func (s *PipelineService) StartQuestionGenerationTask(ctx context.Context, projectID string, in QuestionTaskInput) (*model.Task, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("project id: %w", appErr.ErrMissingParameter)
	}
	strategy, planErr := question.ParseStrategy(in.Strategy, in.SmartMix)
	if planErr != nil && !errors.Is(planErr, appErr.ErrTaskSetup) {
		return nil, planErr
	}
	llm, err := s.llms.Client(in.Model)
	if err != nil {
		return nil, err
	}
	note := model.TaskNote{
		ModelInfo: in.Model,
		Language:  in.Language,
		Params: map[string]any{
			"strategy": in.Strategy,
			"quota":    in.Quota,
		},
	}
	if in.SmartMix != nil {
		note.Params["smart_mix"] = in.SmartMix
	}
	t, err := s.runner.Create(ctx, projectID, model.TaskTypeQuestionGeneration, note)
	if err != nil {
		return nil, err
	}
	plan := question.Plan{Strategy: strategy, Quota: in.Quota}
	s.runner.Start(t, func(ctx context.Context, exec *task.Execution) error {
		if planErr != nil {
			return planErr
		}
		_, err := s.router.Route(ctx, exec, plan, llm, in.Language)
		return err
	})
	return t, nil
}

// StartAnswerGenerationTask answers one question, or all unanswered questions of
// the project when no question id is given.
func (s *PipelineService) StartAnswerGenerationTask(ctx context.Context, projectID string, in AnswerTaskInput) (*model.Task, error) {
	if in.QuestionID != "" {
		q, err := s.questions.GetByID(ctx, in.QuestionID)
		if err != nil {
			return nil, err
		}
		if projectID == "" {
			projectID = q.ProjectID
		}
		if q.ProjectID != projectID {
			return nil, appErr.ErrNotFound
		}
	}
	if projectID == "" {
		return nil, fmt.Errorf("project id: %w", appErr.ErrMissingParameter)
	}
	llm, err := s.llms.Client(in.Model)
	if err != nil {
		return nil, err
	}
	note := model.TaskNote{ModelInfo: in.Model, Language: in.Language}
	if in.QuestionID != "" {
		note.Params = map[string]any{"question_id": in.QuestionID}
	}
	t, err := s.runner.Create(ctx, projectID, model.TaskTypeAnswerGeneration, note)
	if err != nil {
		return nil, err
	}
	s.runner.Start(t, func(ctx context.Context, exec *task.Execution) error {
		ids := []string{in.QuestionID}
		if in.QuestionID == "" {
			pending, err := s.questions.ListUnanswered(ctx, projectID)
			if err != nil {
				return err
			}
			ids = make([]string, 0, len(pending))
			for _, q := range pending {
				ids = append(ids, q.ID)
			}
		}
		exec.SetTotal(len(ids))
		task.ForEach(ctx, exec, ids, s.runner.Limit(), func(ctx context.Context, id string) (int, error) {
			_, err := s.answers.Generate(ctx, llm, id, in.Language)
			return 1, err
		})
		return nil
	})
	return t, nil
}

// StartVerificationTask re-verifies records that are still pending or failed.
func (s *PipelineService) StartVerificationTask(ctx context.Context, projectID string) (*model.Task, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id: %w", appErr.ErrMissingParameter)
	}
	t, err := s.runner.Create(ctx, projectID, model.TaskTypeAnswerValidation, model.TaskNote{})
	if err != nil {
		return nil, err
	}
	s.runner.Start(t, func(ctx context.Context, exec *task.Execution) error {
		items, err := s.datasets.ListByProject(ctx, projectID, repo.DatasetFilter{
			Statuses: []model.VerificationStatus{model.VerificationPending, model.VerificationFailed},
		})
		if err != nil {
			return err
		}
		exec.SetTotal(len(items))
		task.ForEach(ctx, exec, items, s.runner.Limit(), func(ctx context.Context, item model.Dataset) (int, error) {
			return 1, s.verifier.Verify(ctx, item.ID)
		})
		return nil
	})
	return t, nil
}

// StartCotCleanupTask reruns the reasoning cleanup over every record of a project.
func (s *PipelineService) StartCotCleanupTask(ctx context.Context, projectID string, mc model.ModelConfig) (*model.Task, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id: %w", appErr.ErrMissingParameter)
	}
	llm, err := s.llms.Client(mc)
	if err != nil {
		return nil, err
	}
	t, err := s.runner.Create(ctx, projectID, model.TaskTypeCotCleanup, model.TaskNote{ModelInfo: mc})
	if err != nil {
		return nil, err
	}
	s.runner.Start(t, func(ctx context.Context, exec *task.Execution) error {
		items, err := s.datasets.ListByProject(ctx, projectID, repo.DatasetFilter{})
		if err != nil {
			return err
		}
		exec.SetTotal(len(items))
		task.ForEach(ctx, exec, items, s.runner.Limit(), func(ctx context.Context, item model.Dataset) (int, error) {
			return 1, s.answers.CleanupCot(ctx, llm, item.ID, item.Cot)
		})
		return nil
	})
	return t, nil
}

func (s *PipelineService) GetTaskProgress(ctx context.Context, taskID string) (*model.Task, error) {
	return s.runner.Progress(ctx, taskID)
}

// AbortTask stops a processing task. Aborting a finished task is a conflict.
func (s *PipelineService) AbortTask(ctx context.Context, taskID string) error {
	ok, err := s.runner.Abort(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return appErr.ErrConflict
	}
	logutil.GetLogger(ctx).Info("task aborted", zap.String("task_id", taskID))
	return nil
}

func (s *PipelineService) ListTasks(ctx context.Context, projectID string, limit uint) ([]model.Task, error) {
	return s.tasks.ListByProject(ctx, projectID, limit)
}

func (s *PipelineService) ListDatasets(ctx context.Context, projectID string, q DatasetQuery) ([]model.Dataset, int, error) {
	filter := repo.DatasetFilter{Statuses: q.Statuses, Offset: q.Offset, Limit: q.Limit}
	items, err := s.datasets.ListByProject(ctx, projectID, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.datasets.CountByProject(ctx, projectID, repo.DatasetFilter{Statuses: q.Statuses})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Shutdown aborts running tasks and waits for them to settle or for ctx to end.
func (s *PipelineService) Shutdown(ctx context.Context) error {
	return s.runner.Shutdown(ctx)
}

// Wait blocks until every started task has settled.
func (s *PipelineService) Wait() {
	s.runner.Wait()
}
