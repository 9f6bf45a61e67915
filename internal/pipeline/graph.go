// internal/pipeline/graph.go
package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/logging"
)

// Run terminal statuses reported to the observer.
const (
	RunCompleted = "completed"
	RunAborted   = "aborted"
	RunFailed    = "failed"
)

// Observer receives stage and run measurements. Implementations must be
// cheap; the runner calls them inline.
type Observer interface {
	ObserveStage(stage string, seconds float64, failed bool)
	ObserveRun(status string, seconds float64)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, float64, bool) {}
func (nopObserver) ObserveRun(string, float64)        {}

// runner executes the stage list in order against one run's state.
//
// Stages run strictly sequentially. A stage error fails the run after the
// configured retries are exhausted; an Abort outcome terminates the run
// normally with downstream stages skipped. Stage closures must be safe to
// re-execute from scratch: they overwrite their state slots rather than
// append, so a retried stage cannot double-record.
type runner struct {
	stages       []Stage
	seq          *progressSequencer
	logger       *logging.Logger
	stageTimeout time.Duration
	stageRetries int
	observer     Observer
}

func (r *runner) run(ctx context.Context, state *RunState) error {
	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: stage.Name, Err: err}
		}

		sctx := logging.WithStage(ctx, stage.Name)
		start := time.Now()
		outcome, err := r.runStage(sctx, stage, state)
		elapsed := time.Since(start)

		state.StageTimingsSeconds[stage.Name] = roundSeconds(elapsed)
		r.observer.ObserveStage(stage.Name, elapsed.Seconds(), err != nil)

		if err != nil {
			r.logger.Error(sctx, "stage failed",
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
			return &StageError{Stage: stage.Name, Err: err}
		}

		r.seq.emit(stage.Name, stage.Label)
		r.logger.Info(sctx, "stage completed", zap.Duration("elapsed", elapsed))

		switch outcome.Kind {
		case KindContinue:
		case KindAbort:
			state.Aborted = true
			state.AbortReason = outcome.AbortReason
			r.logger.Warn(sctx, "run aborted", zap.String("reason", outcome.AbortReason))
			return nil
		}
	}
	return nil
}

// runStage executes one stage with the per-stage timeout and bounded
// retry. Context cancellation is never retried.
func (r *runner) runStage(ctx context.Context, stage Stage, state *RunState) (Outcome, error) {
	attempt := func() (Outcome, error) {
		sctx := ctx
		if r.stageTimeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(ctx, r.stageTimeout)
			defer cancel()
		}

		outcome, err := stage.Run(sctx, state)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, backoff.Permanent(err)
			}
			return Outcome{}, err
		}
		return outcome, nil
	}

	if r.stageRetries <= 0 {
		return attempt()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(r.stageRetries+1)))
}
