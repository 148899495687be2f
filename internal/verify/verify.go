// Package verify scores how much of a generated reasoning trace is backed by its source.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/model"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
	"github.com/xxxsen/dsforge/internal/provenance"
)

type DatasetStore interface {
	GetByID(ctx context.Context, id string) (*model.Dataset, error)
	UpdateVerification(ctx context.Context, id string, score *float64, status model.VerificationStatus, mtime int64) error
}

type QuestionReader interface {
	GetByID(ctx context.Context, id string) (*model.Question, error)
}

type ContextBuilder interface {
	Build(ctx context.Context, q *model.Question) (*provenance.Context, error)
}

type Verifier struct {
	datasets  DatasetStore
	questions QuestionReader
	contexts  ContextBuilder
	now       func() time.Time
}

func NewVerifier(datasets DatasetStore, questions QuestionReader, contexts ContextBuilder) *Verifier {
	return &Verifier{datasets: datasets, questions: questions, contexts: contexts, now: time.Now}
}

// Verify scores one dataset record and stores the outcome on it. Problems with the
// record itself end up as verification_failed; only store errors are returned.
func (v *Verifier) Verify(ctx context.Context, datasetID string) (err error) {
	logger := logutil.GetLogger(ctx).With(zap.String("dataset_id", datasetID))
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("verification panic", zap.Any("panic", rec))
			err = v.save(ctx, datasetID, Result{Status: model.VerificationFailed})
		}
	}()
	item, err := v.datasets.GetByID(ctx, datasetID)
	if err != nil {
		if appErr.IsNotFound(err) {
			logger.Warn("dataset to verify not found")
			return nil
		}
		return err
	}
	res, err := v.evaluate(ctx, item)
	if err != nil {
		if !isInputProblem(err) {
			logger.Error("verification failed unexpectedly", zap.Error(err))
		} else {
			logger.Warn("verification input missing", zap.Error(err))
		}
		res = Result{Status: model.VerificationFailed}
	}
	if err := v.save(ctx, datasetID, res); err != nil {
		return err
	}
	logger.Debug("dataset verified", zap.String("status", string(res.Status)), zap.Int("quotes", res.Total), zap.Int("matched", res.Matched))
	return nil
}

func (v *Verifier) evaluate(ctx context.Context, item *model.Dataset) (Result, error) {
	if strings.TrimSpace(item.Cot) == "" {
		return Result{}, fmt.Errorf("empty cot: %w", appErr.ErrVerificationInputMissing)
	}
	q, err := v.questions.GetByID(ctx, item.QuestionID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return Result{}, fmt.Errorf("question %s: %w", item.QuestionID, appErr.ErrVerificationInputMissing)
		}
		return Result{}, err
	}
	window, err := v.contexts.Build(ctx, q)
	if err != nil {
		return Result{}, err
	}
	source := window.SourceText(q)
	if strings.TrimSpace(source) == "" {
		return Result{}, fmt.Errorf("empty context: %w", appErr.ErrVerificationInputMissing)
	}
	return Evaluate(item.Cot, source), nil
}

func (v *Verifier) save(ctx context.Context, datasetID string, res Result) error {
	return v.datasets.UpdateVerification(ctx, datasetID, res.Score, res.Status, v.now().Unix())
}

func isInputProblem(err error) bool {
	return appErr.IsNotFound(err) || errors.Is(err, appErr.ErrVerificationInputMissing)
}
