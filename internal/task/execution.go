package task

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/dsforge/internal/model"
)

type outcome int

const (
	outcomeNone outcome = iota
	outcomeSuccess
	outcomeFailure
)

type event struct {
	setTotal  bool
	total     int
	completed int
	outcome   outcome
	attempted bool
	skipped   int
	note      string
}

type progressState struct {
	total     int
	completed int
	attempted int
	succeeded int
	failed    int
	skipped   int
	notes     []string
}

func (s *progressState) apply(ev event) {
	if ev.setTotal {
		s.total = ev.total
	}
	s.completed += ev.completed
	if s.total > 0 && s.completed > s.total {
		s.completed = s.total
	}
	if ev.attempted {
		s.attempted++
	}
	switch ev.outcome {
	case outcomeSuccess:
		s.succeeded++
	case outcomeFailure:
		s.failed++
	}
	s.skipped += ev.skipped
	if ev.note != "" {
		s.notes = append(s.notes, ev.note)
	}
}

func (s *progressState) detail() string {
	out := fmt.Sprintf("attempted %d, succeeded %d, failed %d, skipped %d", s.attempted, s.succeeded, s.failed, s.skipped)
	if len(s.notes) > 0 {
		out += "; " + strings.Join(s.notes, "; ")
	}
	return out
}

// Execution is the handle a running job uses to report progress. Every update
// goes through one channel drained by a single writer goroutine, so counters
// are written in order and never move backwards.
type Execution struct {
	runner  *Runner
	task    *model.Task
	events  chan event
	done    chan struct{}
	state   progressState
	started atomic.Bool
	once    sync.Once
}

func newExecution(ctx context.Context, r *Runner, t *model.Task) *Execution {
	e := &Execution{
		runner: r,
		task:   t,
		events: make(chan event, 64),
		done:   make(chan struct{}),
	}
	go e.stream(ctx)
	return e
}

func (e *Execution) TaskID() string {
	return e.task.ID
}

func (e *Execution) ProjectID() string {
	return e.task.ProjectID
}

func (e *Execution) SetTotal(total int) {
	e.events <- event{setTotal: true, total: total}
}

// Advance adds progress units without touching the item counters.
func (e *Execution) Advance(n int) {
	if n > 0 {
		e.events <- event{completed: n}
	}
}

func (e *Execution) Note(format string, args ...interface{}) {
	e.events <- event{note: fmt.Sprintf(format, args...)}
}

// Stopped re-reads the task and reports whether it left processing.
func (e *Execution) Stopped(ctx context.Context) bool {
	t, err := e.runner.store.GetByID(ctx, e.task.ID)
	if err != nil {
		logutil.GetLogger(ctx).Warn("read task status failed", zap.String("task_id", e.task.ID), zap.Error(err))
		return false
	}
	return t.Status.Terminal()
}

func (e *Execution) itemStarted() {
	e.started.Store(true)
}

func (e *Execution) itemDone(progress int, err error) {
	ev := event{completed: progress, attempted: true, outcome: outcomeSuccess}
	if err != nil {
		ev.outcome = outcomeFailure
	}
	e.events <- ev
}

func (e *Execution) itemsSkipped(n int) {
	if n > 0 {
		e.events <- event{skipped: n}
	}
}

func (e *Execution) stream(ctx context.Context) {
	defer close(e.done)
	logger := logutil.GetLogger(ctx).With(zap.String("task_id", e.task.ID))
	for ev := range e.events {
		e.state.apply(ev)
		if err := e.runner.store.UpdateProgress(ctx, e.task.ID, e.state.completed, e.state.total, e.state.detail(), e.runner.now().Unix()); err != nil {
			logger.Warn("write task progress failed", zap.Error(err))
		}
	}
}

// close stops the stream, waits for the last write and returns the final detail.
func (e *Execution) close() string {
	e.once.Do(func() { close(e.events) })
	<-e.done
	return e.state.detail()
}
