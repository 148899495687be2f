package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// ItemFunc processes one item and returns how many progress units it produced.
// The units are counted even when an error is returned.
type ItemFunc[T any] func(ctx context.Context, item T) (int, error)

type Stats struct {
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
	Progress  int
}

// ForEach runs fn over items with at most limit in flight. Before each item starts
// the task status is re-read; once it is aborted or failed the remaining items are
// skipped while running ones finish. Item errors and panics are counted, never raised.
func ForEach[T any](ctx context.Context, exec *Execution, items []T, limit int, fn ItemFunc[T]) Stats {
	if limit <= 0 {
		limit = 1
	}
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		failed    atomic.Int64
		progress  atomic.Int64
		attempted int
		skipped   int
	)
	sem := make(chan struct{}, limit)
	for i, item := range items {
		sem <- struct{}{}
		if ctx.Err() != nil || exec.Stopped(ctx) {
			<-sem
			skipped = len(items) - i
			exec.itemsSkipped(skipped)
			break
		}
		attempted++
		exec.itemStarted()
		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			n, err := runItem(ctx, fn, item)
			if err != nil {
				failed.Add(1)
				logutil.GetLogger(ctx).Warn("task item failed", zap.String("task_id", exec.TaskID()), zap.Int("index", idx), zap.Error(err))
			} else {
				succeeded.Add(1)
			}
			progress.Add(int64(n))
			exec.itemDone(n, err)
		}(i, item)
	}
	wg.Wait()
	return Stats{
		Attempted: attempted,
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Skipped:   skipped,
		Progress:  int(progress.Load()),
	}
}

func runItem[T any](ctx context.Context, fn ItemFunc[T], item T) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("item panic: %v", rec)
		}
	}()
	return fn(ctx, item)
}
