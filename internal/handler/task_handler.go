package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/dsforge/internal/model"
	"github.com/xxxsen/dsforge/internal/pkg/errcode"
	"github.com/xxxsen/dsforge/internal/pkg/response"
	"github.com/xxxsen/dsforge/internal/service"
)

type PipelineService interface {
	StartQuestionGenerationTask(ctx context.Context, projectID string, in service.QuestionTaskInput) (*model.Task, error)
	StartAnswerGenerationTask(ctx context.Context, projectID string, in service.AnswerTaskInput) (*model.Task, error)
	StartVerificationTask(ctx context.Context, projectID string) (*model.Task, error)
	StartCotCleanupTask(ctx context.Context, projectID string, mc model.ModelConfig) (*model.Task, error)
	GetTaskProgress(ctx context.Context, taskID string) (*model.Task, error)
	AbortTask(ctx context.Context, taskID string) error
	ListTasks(ctx context.Context, projectID string, limit uint) ([]model.Task, error)
	ListDatasets(ctx context.Context, projectID string, q service.DatasetQuery) ([]model.Dataset, int, error)
}

type TaskHandler struct {
	pipeline PipelineService
}

func NewTaskHandler(pipeline PipelineService) *TaskHandler {
	return &TaskHandler{pipeline: pipeline}
}

type taskStarted struct {
	TaskID string `json:"task_id"`
}

type cotCleanupRequest struct {
	Model model.ModelConfig `json:"model"`
}

func (h *TaskHandler) StartQuestions(c *gin.Context) {
	var req service.QuestionTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	t, err := h.pipeline.StartQuestionGenerationTask(c.Request.Context(), c.Param("project_id"), req)
	h.respondStarted(c, t, err)
}

func (h *TaskHandler) StartAnswers(c *gin.Context) {
	var req service.AnswerTaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	t, err := h.pipeline.StartAnswerGenerationTask(c.Request.Context(), c.Param("project_id"), req)
	h.respondStarted(c, t, err)
}

func (h *TaskHandler) StartVerification(c *gin.Context) {
	t, err := h.pipeline.StartVerificationTask(c.Request.Context(), c.Param("project_id"))
	h.respondStarted(c, t, err)
}

func (h *TaskHandler) StartCotCleanup(c *gin.Context) {
	var req cotCleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	t, err := h.pipeline.StartCotCleanupTask(c.Request.Context(), c.Param("project_id"), req.Model)
	h.respondStarted(c, t, err)
}

func (h *TaskHandler) respondStarted(c *gin.Context, t *model.Task, err error) {
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, taskStarted{TaskID: t.ID})
}

func (h *TaskHandler) Progress(c *gin.Context) {
	t, err := h.pipeline.GetTaskProgress(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, t)
}

func (h *TaskHandler) Abort(c *gin.Context) {
	if err := h.pipeline.AbortTask(c.Request.Context(), c.Param("task_id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *TaskHandler) List(c *gin.Context) {
	limit, err := queryUint(c, "limit", 50)
	if err != nil {
		handleError(c, err)
		return
	}
	tasks, err := h.pipeline.ListTasks(c.Request.Context(), c.Param("project_id"), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.List(c, tasks, len(tasks))
}
