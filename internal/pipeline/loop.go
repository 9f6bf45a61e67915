// internal/pipeline/loop.go
package pipeline

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/logging"
)

// finalFixPrefix marks the revision instruction for the last allowed
// draft, steering the generator toward targeted fixes instead of a full
// rewrite.
const finalFixPrefix = "FINAL TARGETED FIX: "

// GenerateRequest carries everything a generator needs for one draft.
// Feedback is empty for the first draft and the previous critique's
// feedback afterwards.
type GenerateRequest struct {
	Asset       AssetType
	Keyword     string
	Brief       StrategyBrief
	Signal      ExternalSignal
	Hooks       PositioningHooks
	DraftNumber int
	Feedback    string
}

// Generator produces one draft of an asset.
type Generator interface {
	GenerateDraft(ctx context.Context, req GenerateRequest) (Draft, error)
}

// Critic scores one draft across the asset's critique dimensions.
type Critic interface {
	Critique(ctx context.Context, asset AssetType, draft Draft) (*CritiqueResult, error)
}

// RefinementLoop drives the draft/critique/gate cycle for one asset.
//
// The loop is failure-tolerant on the critic side: any critic error is
// replaced by neutral midpoint scores so the loop always terminates with
// a final draft. Generator errors are fatal to the run.
type RefinementLoop struct {
	Asset         AssetType
	Generator     Generator
	Critic        Critic
	GateThreshold float64
	MaxIterations int
	Logger        *logging.Logger
}

// LoopResult is one asset's completed refinement loop.
type LoopResult struct {
	History   DraftHistory
	Decisions []GateDecision
}

// Run executes the loop until the gate passes or the iteration cap is
// reached. emit receives one progress call per draft, critique, and gate
// decision; pass nil to disable.
func (l *RefinementLoop) Run(ctx context.Context, keyword string, brief StrategyBrief, signal ExternalSignal, hooks PositioningHooks, emit func(stage, label string)) (*LoopResult, error) {
	if emit == nil {
		emit = func(string, string) {}
	}
	log := l.Logger
	if log == nil {
		log = logging.NewNop()
	}

	result := &LoopResult{}
	var prev *CritiqueResult
	prevMean := 0.0

	for i := 1; i <= l.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		feedback := ""
		if prev != nil {
			feedback = prev.Feedback
			if i == l.MaxIterations {
				feedback = finalFixPrefix + feedback
			}
		}

		draft, err := l.Generator.GenerateDraft(ctx, GenerateRequest{
			Asset:       l.Asset,
			Keyword:     keyword,
			Brief:       brief,
			Signal:      signal,
			Hooks:       hooks,
			DraftNumber: i,
			Feedback:    feedback,
		})
		if err != nil {
			return nil, err
		}
		draft.Number = i
		result.History.Drafts = append(result.History.Drafts, draft)
		emit(loopStageName(l.Asset, "draft", i), assetLabel(l.Asset)+" draft generated")

		critique := l.critiqueDraft(ctx, draft, log)
		result.History.EvolutionLog = append(result.History.EvolutionLog, l.evolutionEntry(i, critique, feedback, prev, prevMean))
		emit(loopStageName(l.Asset, "critique", i), assetLabel(l.Asset)+" draft critiqued")

		mean := critique.Scores.Mean(l.Asset)

		// The gate never fires before the second critique unless the cap
		// itself is below two.
		if i < 2 && i < l.MaxIterations {
			prev = critique
			prevMean = mean
			continue
		}

		outcome := EvaluateGate(l.Asset, critique.Scores, i, l.GateThreshold, l.MaxIterations)
		result.Decisions = append(result.Decisions, outcome.Decision())
		emit(loopStageName(l.Asset, "gate", i), assetLabel(l.Asset)+" gate: "+outcome.Reason)

		if outcome.NeedsRewrite {
			log.Info(ctx, "gate requested rewrite",
				zap.String("asset", string(l.Asset)),
				zap.Int("iteration", i),
				zap.String("reason", outcome.Reason))
			prev = critique
			prevMean = mean
			continue
		}

		log.Info(ctx, "refinement loop finished",
			zap.String("asset", string(l.Asset)),
			zap.Int("drafts", i),
			zap.Bool("gate_passed", outcome.Passed))
		final := draft
		result.History.FinalDraft = &final
		return result, nil
	}

	// Unreachable with MaxIterations >= 1: the last iteration always
	// produces a terminal gate outcome.
	final := result.History.Drafts[len(result.History.Drafts)-1]
	result.History.FinalDraft = &final
	return result, nil
}

// critiqueDraft runs the critic and substitutes the neutral fallback on
// any failure, so a broken critic can degrade quality but never stall or
// abort a run.
func (l *RefinementLoop) critiqueDraft(ctx context.Context, draft Draft, log *logging.Logger) *CritiqueResult {
	critique, err := l.Critic.Critique(ctx, l.Asset, draft)
	if err != nil {
		log.Warn(ctx, "critic failed, applying neutral scores",
			zap.String("asset", string(l.Asset)),
			zap.Int("draft", draft.Number),
			zap.Error(err))
		return &CritiqueResult{
			Scores:      NeutralScores(l.Asset),
			Feedback:    "Could not parse critique; default scores applied.",
			DraftNumber: draft.Number,
		}
	}
	critique.Scores = critique.Scores.Clamped()
	critique.DraftNumber = draft.Number
	return critique
}

func (l *RefinementLoop) evolutionEntry(draftNumber int, critique *CritiqueResult, feedback string, prev *CritiqueResult, prevMean float64) EvolutionEntry {
	entry := EvolutionEntry{
		DraftNumber: draftNumber,
		Scores:      critique.Scores,
		Narrative:   "Initial draft",
	}
	if feedback != "" {
		entry.Narrative = "Addressed critique: " + feedback
	}
	if prev != nil {
		delta := math.Round((critique.Scores.Mean(l.Asset)-prevMean)*100) / 100
		entry.ScoreDelta = &delta
	}
	return entry
}

func loopStageName(asset AssetType, step string, iteration int) string {
	return fmt.Sprintf("%s_%s_%d", asset, step, iteration)
}

func assetLabel(asset AssetType) string {
	switch asset {
	case AssetBlog:
		return "Blog"
	case AssetLinkedIn:
		return "LinkedIn"
	default:
		return "Twitter"
	}
}
