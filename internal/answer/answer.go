// Package answer produces reasoning and answers for generated questions.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/ai"
	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
	"github.com/xxxsen/dsforge/internal/provenance"
	"github.com/xxxsen/dsforge/internal/verify"
)

type QuestionStore interface {
	GetByID(ctx context.Context, id string) (*model.Question, error)
	MarkAnswered(ctx context.Context, id string, mtime int64) error
}

type DatasetStore interface {
	Create(ctx context.Context, item *model.Dataset) error
	UpdateCot(ctx context.Context, id, cot string, mtime int64) error
}

type GaPairReader interface {
	GetByID(ctx context.Context, id string) (*model.GaPair, error)
}

type ContextBuilder interface {
	Build(ctx context.Context, q *model.Question) (*provenance.Context, error)
}

type Verifier interface {
	Verify(ctx context.Context, datasetID string) error
}

// Submitter runs background work. Submit reports false when the job was dropped.
type Submitter interface {
	Submit(name string, fn func(ctx context.Context) error) bool
}

type Generator struct {
	questions     QuestionStore
	datasets      DatasetStore
	gaPairs       GaPairReader
	contexts      ContextBuilder
	verifier      Verifier
	background    Submitter
	maxInputChars int
	now           func() time.Time
	newID         func() string
}

type Dependencies struct {
	Questions  QuestionStore
	Datasets   DatasetStore
	GaPairs    GaPairReader
	Contexts   ContextBuilder
	Verifier   Verifier
	Background Submitter
}

func NewGenerator(deps Dependencies, maxInputChars int) *Generator {
	return &Generator{
		questions:     deps.Questions,
		datasets:      deps.Datasets,
		gaPairs:       deps.GaPairs,
		contexts:      deps.Contexts,
		verifier:      deps.Verifier,
		background:    deps.Background,
		maxInputChars: maxInputChars,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Generate answers one question and stores the result as a pending dataset record.
// CoT cleanup and verification are queued afterwards and never fail the call.
func (g *Generator) Generate(ctx context.Context, llm ai.ILLM, questionID, language string) (*model.Dataset, error) {
	if questionID == "" {
		return nil, fmt.Errorf("question id: %w", appErr.ErrMissingParameter)
	}
	if llm == nil {
		return nil, fmt.Errorf("model client: %w", appErr.ErrMissingParameter)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("question_id", questionID))
	q, err := g.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	window, err := g.contexts.Build(ctx, q)
	if err != nil {
		return nil, err
	}
	source := ai.Truncate(window.SourceText(q), g.maxInputChars)
	pair := g.activePair(ctx, q.GaPairID)

	reasoning, err := llm.CompleteWithReasoning(ctx, buildAnswerPrompt(source, q.Question, pair, language))
	if err != nil {
		return nil, err
	}
	now := g.now().Unix()
	item := &model.Dataset{
		ID:                 g.newID(),
		ProjectID:          q.ProjectID,
		QuestionID:         q.ID,
		Question:           q.Question,
		Model:              llm.ModelName(),
		Cot:                reasoning.Cot,
		Answer:             reasoning.Answer,
		ChunkName:          window.Anchor.Name,
		ChunkContent:       source,
		QuestionLabel:      q.Label,
		VerificationStatus: model.VerificationPending,
		Ctime:              now,
		Mtime:              now,
	}
	// the question stays open until its record exists, so a failed save can be retried
	if err := g.datasets.Create(ctx, item); err != nil {
		return nil, err
	}
	logger.Info("answer saved", zap.String("dataset_id", item.ID), zap.String("model", item.Model))
	g.schedule(llm, item)
	if err := g.questions.MarkAnswered(ctx, q.ID, now); err != nil {
		return item, fmt.Errorf("mark question answered: %w", err)
	}
	return item, nil
}

func (g *Generator) activePair(ctx context.Context, pairID string) *model.GaPair {
	if pairID == "" || g.gaPairs == nil {
		return nil
	}
	pair, err := g.gaPairs.GetByID(ctx, pairID)
	if err != nil {
		logutil.GetLogger(ctx).Warn("ga pair unavailable, use standard prompt", zap.String("ga_pair_id", pairID), zap.Error(err))
		return nil
	}
	if !pair.IsActive {
		return nil
	}
	return pair
}

func (g *Generator) schedule(llm ai.ILLM, item *model.Dataset) {
	if g.background == nil {
		return
	}
	datasetID, cot := item.ID, item.Cot
	g.background.Submit("cot-cleanup:"+datasetID, func(ctx context.Context) error {
		return g.CleanupCot(ctx, llm, datasetID, cot)
	})
	if g.verifier != nil {
		g.background.Submit("verify:"+datasetID, func(ctx context.Context) error {
			return g.verifier.Verify(ctx, datasetID)
		})
	}
}

// CleanupCot strips references to the source material from a reasoning trace.
// A rewrite that changes the quoted spans would break verification and is discarded.
func (g *Generator) CleanupCot(ctx context.Context, llm ai.ILLM, datasetID, cot string) error {
	if strings.TrimSpace(cot) == "" {
		return nil
	}
	logger := logutil.GetLogger(ctx).With(zap.String("dataset_id", datasetID))
	reply, err := llm.Complete(ctx, buildCleanupPrompt(cot))
	if err != nil {
		return err
	}
	cleaned := strings.TrimSpace(ai.StripThink(reply))
	if cleaned == "" || cleaned == cot {
		return nil
	}
	if !verify.SameQuotes(cot, cleaned) {
		logger.Warn("cot cleanup changed quotes, keep original")
		return nil
	}
	return g.datasets.UpdateCot(ctx, datasetID, cleaned, g.now().Unix())
}
