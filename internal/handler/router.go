package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/dsforge/internal/middleware"
)

type RouterDeps struct {
	Files     *FileHandler
	Tasks     *TaskHandler
	Datasets  *DatasetHandler
	RateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	project := api.Group("/projects/:project_id")
	project.POST("/files", deps.Files.Ingest)
	project.GET("/files", deps.Files.List)
	project.GET("/files/toc", deps.Files.Toc)
	project.DELETE("/files/:file_id", deps.Files.Delete)
	project.POST("/files/:file_id/resegment", deps.Files.Resegment)

	starts := project.Group("/tasks")
	starts.Use(middleware.RateLimit(deps.RateLimit))
	starts.POST("/questions", deps.Tasks.StartQuestions)
	starts.POST("/answers", deps.Tasks.StartAnswers)
	starts.POST("/verify", deps.Tasks.StartVerification)
	starts.POST("/cot-cleanup", deps.Tasks.StartCotCleanup)
	project.GET("/tasks", deps.Tasks.List)

	project.GET("/datasets", deps.Datasets.List)

	api.GET("/tasks/:task_id", deps.Tasks.Progress)
	api.POST("/tasks/:task_id/abort", deps.Tasks.Abort)
}
