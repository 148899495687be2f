package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/ai"
	"github.com/xxxsen/dsforge/internal/answer"
	"github.com/xxxsen/dsforge/internal/config"
	"github.com/xxxsen/dsforge/internal/db"
	"github.com/xxxsen/dsforge/internal/filestore"
	"github.com/xxxsen/dsforge/internal/handler"
	"github.com/xxxsen/dsforge/internal/job"
	"github.com/xxxsen/dsforge/internal/middleware"
	"github.com/xxxsen/dsforge/internal/provenance"
	"github.com/xxxsen/dsforge/internal/question"
	"github.com/xxxsen/dsforge/internal/repo"
	"github.com/xxxsen/dsforge/internal/schedule"
	"github.com/xxxsen/dsforge/internal/service"
	"github.com/xxxsen/dsforge/internal/task"
	"github.com/xxxsen/dsforge/internal/verify"
)

const shutdownTimeout = 30 * time.Second

func runServer(cfg *config.Config, d *db.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_driver", d.Driver),
		zap.String("file_store", cfg.FileStore.Type),
	)

	fileRepo := repo.NewFileRepo(d)
	chunkRepo := repo.NewChunkRepo(d)
	questionRepo := repo.NewQuestionRepo(d)
	datasetRepo := repo.NewDatasetRepo(d)
	gaPairRepo := repo.NewGaPairRepo(d)
	tagRepo := repo.NewTagRepo(d)
	taskRepo := repo.NewTaskRepo(d)

	llms, err := ai.NewManagerFromConfig(cfg.AI)
	if err != nil {
		return fmt.Errorf("init ai providers: %w", err)
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	pool := task.NewPool(cfg.Task.BackgroundWorkers, cfg.Task.BackgroundQueueSize)
	defer pool.Stop()

	contexts := provenance.NewBuilder(chunkRepo, fileRepo)
	verifier := verify.NewVerifier(datasetRepo, questionRepo, contexts)
	runner := task.NewRunner(taskRepo, cfg.Task.ConcurrencyLimit)
	generator := question.NewGenerator(questionRepo, tagRepo,
		question.WithMaskRemovingProbability(cfg.Task.QuestionMaskRemovingProbability),
		question.WithMaxInputChars(llms.MaxInputChars()),
	)
	router := question.NewRouter(chunkRepo, fileRepo, gaPairRepo, generator, question.RouterConfig{
		ConcurrencyLimit:         cfg.Task.ConcurrencyLimit,
		QuestionGenerationLength: cfg.Task.QuestionGenerationLength,
	})
	answers := answer.NewGenerator(answer.Dependencies{
		Questions:  questionRepo,
		Datasets:   datasetRepo,
		GaPairs:    gaPairRepo,
		Contexts:   contexts,
		Verifier:   verifier,
		Background: pool,
	}, llms.MaxInputChars())

	ingestService := service.NewIngestService(fileRepo, chunkRepo, gaPairRepo, store, contexts, cfg.Segment)
	pipelineService := service.NewPipelineService(service.PipelineDeps{
		Runner:    runner,
		Router:    router,
		Answers:   answers,
		Verifier:  verifier,
		LLMs:      llms,
		Questions: questionRepo,
		Datasets:  datasetRepo,
		Tasks:     taskRepo,
	})

	deps := handler.RouterDeps{
		Files:     handler.NewFileHandler(ingestService),
		Tasks:     handler.NewTaskHandler(pipelineService),
		Datasets:  handler.NewDatasetHandler(pipelineService),
		RateLimit: time.Duration(cfg.RateLimitSeconds) * time.Second,
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.Add(
		schedule.Entry{
			Job:  job.NewStaleTaskJob(taskRepo, time.Duration(cfg.Task.StaleTaskMinutes)*time.Minute),
			Spec: cfg.Schedule.StaleTaskSpec,
		},
		schedule.Entry{
			Job:  job.NewPendingVerificationJob(datasetRepo, verifier, pool, time.Duration(cfg.Task.PendingVerificationMinutes)*time.Minute),
			Spec: cfg.Schedule.PendingVerificationSpec,
		},
	); err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	// tasks settle before the deferred pool stop so nothing submits to a closed pool
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := pipelineService.Shutdown(shutdownCtx); err != nil {
		logutil.GetLogger(shutdownCtx).Warn("tasks still running at shutdown", zap.Error(err))
	}
	return nil
}
