package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/model"
	"github.com/xxxsen/dsforge/internal/repo"
)

const pendingVerificationBatch = 100

type DatasetLister interface {
	ListByStatus(ctx context.Context, filter repo.DatasetFilter) ([]model.Dataset, error)
}

type Verifier interface {
	Verify(ctx context.Context, datasetID string) error
}

type Submitter interface {
	Submit(name string, fn func(ctx context.Context) error) bool
}

// PendingVerificationJob requeues records still pending after minAge, which
// happens when the background queue dropped their verification.
type PendingVerificationJob struct {
	datasets DatasetLister
	verifier Verifier
	pool     Submitter
	minAge   time.Duration
	now      func() time.Time
}

func NewPendingVerificationJob(datasets DatasetLister, verifier Verifier, pool Submitter, minAge time.Duration) *PendingVerificationJob {
	return &PendingVerificationJob{datasets: datasets, verifier: verifier, pool: pool, minAge: minAge, now: time.Now}
}

func (j *PendingVerificationJob) Name() string {
	return "pending_verification_sweep"
}

func (j *PendingVerificationJob) Run(ctx context.Context) error {
	if j.datasets == nil || j.verifier == nil || j.pool == nil {
		return nil
	}
	minAge := j.minAge
	if minAge <= 0 {
		minAge = 10 * time.Minute
	}
	items, err := j.datasets.ListByStatus(ctx, repo.DatasetFilter{
		Statuses:    []model.VerificationStatus{model.VerificationPending},
		MtimeBefore: j.now().Add(-minAge).Unix(),
		Limit:       pendingVerificationBatch,
	})
	if err != nil {
		return err
	}
	queued := 0
	for _, item := range items {
		id := item.ID
		if j.pool.Submit("verify:"+id, func(ctx context.Context) error {
			return j.verifier.Verify(ctx, id)
		}) {
			queued++
		}
	}
	if len(items) > 0 {
		logutil.GetLogger(ctx).Info("pending verifications requeued", zap.Int("found", len(items)), zap.Int("queued", queued))
	}
	return nil
}
