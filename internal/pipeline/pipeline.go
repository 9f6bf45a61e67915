// Package pipeline implements the content run graph: research, gap
// analysis, strategy brief, positioning, three gated refinement loops,
// and final report assembly.
//
// The package owns orchestration only. Everything that talks to a model,
// a cache, or a corpus is injected as a collaborator interface, so the
// whole graph is testable with in-memory fakes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/logging"
)

// Researcher discovers one external signal for a keyword and scores its
// confidence. A non-retryable problem with the keyword itself is reported
// through SignalResult.AbortReason, not an error.
type Researcher interface {
	DiscoverSignal(ctx context.Context, keyword string) (*SignalResult, error)
}

// GapAnalyzer maps the saturated content landscape around a signal.
type GapAnalyzer interface {
	AnalyzeGaps(ctx context.Context, keyword string, signal ExternalSignal) (*GapAnalysis, error)
}

// BriefBuilder chooses the editorial angle and produces the strategy
// brief all generators read.
type BriefBuilder interface {
	BuildBrief(ctx context.Context, keyword string, signal ExternalSignal, gap GapAnalysis) (*StrategyBrief, error)
}

// Positioner retrieves brand positioning hooks for a brief. It is the
// only optional collaborator: a nil or failing Positioner degrades to
// empty hooks.
type Positioner interface {
	BuildHooks(ctx context.Context, keyword string, brief StrategyBrief) (*PositioningHooks, error)
}

// Options wires an Engine. Researcher, GapAnalyzer, BriefBuilder, Critic,
// and one Generator per asset are required.
type Options struct {
	Researcher   Researcher
	GapAnalyzer  GapAnalyzer
	BriefBuilder BriefBuilder
	Positioner   Positioner
	Generators   map[AssetType]Generator
	Critic       Critic

	Emitter  ProgressEmitter
	Observer Observer
	Logger   *logging.Logger

	ConfidenceThreshold float64
	GateThreshold       float64
	MaxIterations       int
	StageTimeout        time.Duration
	StageRetries        int
}

// Engine runs the full pipeline for one keyword at a time. It is safe
// for concurrent use; all per-run state lives in the RunState built
// inside Run.
type Engine struct {
	opts     Options
	logger   *logging.Logger
	emitter  ProgressEmitter
	observer Observer
}

// NewEngine validates the wiring and returns a ready engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Researcher == nil {
		return nil, errors.New("pipeline: Researcher is required")
	}
	if opts.GapAnalyzer == nil {
		return nil, errors.New("pipeline: GapAnalyzer is required")
	}
	if opts.BriefBuilder == nil {
		return nil, errors.New("pipeline: BriefBuilder is required")
	}
	if opts.Critic == nil {
		return nil, errors.New("pipeline: Critic is required")
	}
	for _, asset := range AllAssets() {
		if opts.Generators[asset] == nil {
			return nil, fmt.Errorf("pipeline: generator for %s is required", asset)
		}
	}
	if opts.MaxIterations < 1 {
		return nil, errors.New("pipeline: MaxIterations must be at least 1")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = NopEmitter{}
	}
	var observer Observer = nopObserver{}
	if opts.Observer != nil {
		observer = opts.Observer
	}

	return &Engine{
		opts:     opts,
		logger:   logger.Named("pipeline"),
		emitter:  emitter,
		observer: observer,
	}, nil
}

// Run executes the whole graph for one keyword and returns the final
// report. Aborted runs return a report with Aborted set; only stage
// failures and cancellation return an error.
func (e *Engine) Run(ctx context.Context, keyword string) (*Report, error) {
	state := NewRunState(strings.TrimSpace(keyword))
	seq := newProgressSequencer(e.emitter)

	e.logger.Info(ctx, "run started", zap.String("keyword", state.Keyword))

	r := &runner{
		stages:       e.buildStages(state, seq),
		seq:          seq,
		logger:       e.logger,
		stageTimeout: e.opts.StageTimeout,
		stageRetries: e.opts.StageRetries,
		observer:     e.observer,
	}

	if err := r.run(ctx, state); err != nil {
		e.observer.ObserveRun(RunFailed, time.Since(state.StartedAt).Seconds())
		e.logger.Error(ctx, "run failed", zap.String("keyword", state.Keyword), zap.Error(err))
		return nil, err
	}

	assembleStart := time.Now()
	report := Assemble(state)
	state.StageTimingsSeconds[StageAssemble] = roundSeconds(time.Since(assembleStart))
	report.StageTimingsSeconds[StageAssemble] = state.StageTimingsSeconds[StageAssemble]
	state.TotalLatencySeconds = report.Metadata.TotalLatencySeconds

	seq.emit(StageAssemble, "Report assembled")
	e.emitter.ReportReady(report)

	status := RunCompleted
	if state.Aborted {
		status = RunAborted
	}
	e.observer.ObserveRun(status, time.Since(state.StartedAt).Seconds())
	e.logger.Info(ctx, "run finished",
		zap.String("keyword", state.Keyword),
		zap.String("status", status),
		zap.Float64("latency_seconds", report.Metadata.TotalLatencySeconds))
	return report, nil
}

// buildStages constructs the per-run stage list. The gate decision slices
// live here so a retried loop stage overwrites rather than appends.
func (e *Engine) buildStages(state *RunState, seq *progressSequencer) []Stage {
	var blogDecisions, linkedinDecisions, twitterDecisions []GateDecision

	return []Stage{
		{
			Name:  StageResearch,
			Label: "Signal research completed",
			Run: func(ctx context.Context, s *RunState) (Outcome, error) {
				res, err := e.opts.Researcher.DiscoverSignal(ctx, s.Keyword)
				if err != nil {
					return Outcome{}, err
				}
				s.Research = res
				if res.AbortReason != "" {
					return Abort(res.AbortReason), nil
				}
				if res.ConfidenceScore < e.opts.ConfidenceThreshold {
					return Abort(fmt.Sprintf("Signal confidence %.2f is below threshold %.2f.",
						res.ConfidenceScore, e.opts.ConfidenceThreshold)), nil
				}
				return Continue(), nil
			},
		},
		{
			Name:  StageGapAnalysis,
			Label: "Gap analysis completed",
			Run: func(ctx context.Context, s *RunState) (Outcome, error) {
				gap, err := e.opts.GapAnalyzer.AnalyzeGaps(ctx, s.Keyword, s.Research.Signal)
				if err != nil {
					return Outcome{}, err
				}
				s.Gap = gap
				return Continue(), nil
			},
		},
		{
			Name:  StageStrategyBrief,
			Label: "Strategy brief completed",
			Run: func(ctx context.Context, s *RunState) (Outcome, error) {
				brief, err := e.opts.BriefBuilder.BuildBrief(ctx, s.Keyword, s.Research.Signal, *s.Gap)
				if err != nil {
					return Outcome{}, err
				}
				s.Brief = brief
				return Continue(), nil
			},
		},
		{
			Name:  StagePositioning,
			Label: "Positioning hooks retrieved",
			Run: func(ctx context.Context, s *RunState) (Outcome, error) {
				s.Positioning = &PositioningHooks{}
				if e.opts.Positioner == nil {
					return Continue(), nil
				}
				hooks, err := e.opts.Positioner.BuildHooks(ctx, s.Keyword, *s.Brief)
				if err != nil {
					e.logger.Warn(ctx, "positioning failed, continuing with empty hooks", zap.Error(err))
					return Continue(), nil
				}
				s.Positioning = hooks
				return Continue(), nil
			},
		},
		{
			Name:  StageBlogLoop,
			Label: "Blog refinement loop completed",
			Run: func(ctx context.Context, s *RunState) (Outcome, error) {
				res, err := e.runLoop(ctx, AssetBlog, s, seq)
				if err != nil {
					return Outcome{}, err
				}
				s.Blog = res.History
				blogDecisions = res.Decisions
				return Continue(), nil
			},
		},
		{
			Name:  StageShortFormLoop,
			Label: "Short-form refinement loops completed",
			Run: func(ctx context.Context, s *RunState) (Outcome, error) {
				// LinkedIn and twitter loops share no state, so they run
				// concurrently; results land in distinct slots and the
				// gate log is merged in fixed asset order afterwards.
				var (
					wg    sync.WaitGroup
					liRes *LoopResult
					twRes *LoopResult
					liErr error
					twErr error
				)
				wg.Add(2)
				go func() {
					defer wg.Done()
					liRes, liErr = e.runLoop(ctx, AssetLinkedIn, s, seq)
				}()
				go func() {
					defer wg.Done()
					twRes, twErr = e.runLoop(ctx, AssetTwitter, s, seq)
				}()
				wg.Wait()

				if liErr != nil {
					return Outcome{}, liErr
				}
				if twErr != nil {
					return Outcome{}, twErr
				}

				s.LinkedIn = liRes.History
				s.Twitter = twRes.History
				linkedinDecisions = liRes.Decisions
				twitterDecisions = twRes.Decisions

				merged := make([]GateDecision, 0, len(blogDecisions)+len(linkedinDecisions)+len(twitterDecisions))
				merged = append(merged, blogDecisions...)
				merged = append(merged, linkedinDecisions...)
				merged = append(merged, twitterDecisions...)
				s.GateLog = merged
				return Continue(), nil
			},
		},
	}
}

func (e *Engine) runLoop(ctx context.Context, asset AssetType, s *RunState, seq *progressSequencer) (*LoopResult, error) {
	loop := &RefinementLoop{
		Asset:         asset,
		Generator:     e.opts.Generators[asset],
		Critic:        e.opts.Critic,
		GateThreshold: e.opts.GateThreshold,
		MaxIterations: e.opts.MaxIterations,
		Logger:        e.logger,
	}
	hooks := PositioningHooks{}
	if s.Positioning != nil {
		hooks = *s.Positioning
	}
	return loop.Run(ctx, s.Keyword, *s.Brief, s.Research.Signal, hooks, seq.emit)
}
