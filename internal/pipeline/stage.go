// internal/pipeline/stage.go
package pipeline

import (
	"context"
	"fmt"
)

// Stage names in execution order. The runner records timings and emits
// progress under these keys.
const (
	StageResearch      = "research"
	StageGapAnalysis   = "gap_analysis"
	StageStrategyBrief = "strategy_brief"
	StagePositioning   = "positioning"
	StageBlogLoop      = "blog_loop"
	StageShortFormLoop = "short_form_loop"
	StageAssemble      = "assemble"
)

// OutcomeKind tags a stage result. Every stage either continues the run
// or aborts it with a reason; there is no third state, and the runner
// switches exhaustively on the tag.
type OutcomeKind int

const (
	// KindContinue advances the run to the next stage.
	KindContinue OutcomeKind = iota
	// KindAbort short-circuits the run; downstream stages never execute.
	KindAbort
)

// Outcome is a stage's verdict on the run.
type Outcome struct {
	Kind        OutcomeKind
	AbortReason string
}

// Continue advances to the next stage.
func Continue() Outcome {
	return Outcome{Kind: KindContinue}
}

// Abort short-circuits the run with a human-readable reason.
func Abort(reason string) Outcome {
	return Outcome{Kind: KindAbort, AbortReason: reason}
}

// Stage is one node of the run graph. Run mutates only the state fields
// the stage owns and returns a tagged outcome, or an error when the stage
// could not produce a verdict at all.
type Stage struct {
	Name  string
	Label string
	Run   func(ctx context.Context, s *RunState) (Outcome, error)
}

// StageError wraps a failure with the stage it occurred in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
