// Package strategy implements the editorial-judgment collaborators: gap
// analysis of the content landscape and the strategy brief every
// generator reads, plus the brand positioning engine.
package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/llm"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

// Completer is the model call surface the strategy agents need.
// *llm.Client satisfies it.
type Completer interface {
	CompleteJSON(ctx context.Context, system, prompt string) (string, error)
}

// Analyzer implements pipeline.GapAnalyzer and pipeline.BriefBuilder on
// one strategy-grade model.
type Analyzer struct {
	completer Completer
	logger    *logging.Logger
}

// NewAnalyzer wires the strategy agents to a model client.
func NewAnalyzer(completer Completer, logger *logging.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Analyzer{completer: completer, logger: logger.Named("strategy")}
}

const gapSystem = `You are an editorial strategist. Given a keyword and a real-world signal, analyze the competitive content landscape.
Output a JSON object with these exact keys:
- saturated_angles: list of 3-5 angles that are already overused in content for this keyword
- common_narratives: list of 2-4 narrative cliches to avoid
- angles_to_avoid: list of 2-4 specific angles we should NOT use
- summary: 2-3 sentence summary of the gap opportunity

Be specific and actionable. No hype.`

// AnalyzeGaps maps the saturated landscape around a signal. A transport
// failure is an error; an unparseable model response degrades to an
// empty analysis so the run can continue on the brief's own judgment.
func (a *Analyzer) AnalyzeGaps(ctx context.Context, keyword string, signal pipeline.ExternalSignal) (*pipeline.GapAnalysis, error) {
	prompt := fmt.Sprintf(`Keyword: %s
Signal we have: %s
Source: %s
Summary: %s

Analyze the content landscape for %q. What angles are saturated? What should we avoid? Output ONLY valid JSON, no markdown.`,
		keyword, signal.Title, signal.Source, signal.Summary, keyword)

	raw, err := a.completer.CompleteJSON(ctx, gapSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("gap analysis: %w", err)
	}

	var gap pipeline.GapAnalysis
	if err := llm.DecodeJSON(raw, &gap); err != nil {
		a.logger.Warn(ctx, "gap analysis unparseable, continuing without it", zap.Error(err))
		return &pipeline.GapAnalysis{Summary: "Gap analysis unavailable."}, nil
	}
	return &gap, nil
}

const briefSystem = `You are a growth editor. Produce a strategy brief for a single piece of content (blog + LinkedIn + Twitter).
Output a JSON object with these exact keys:
- signal_summary: 2-3 sentence summary of the external signal
- chosen_angle: one contrarian, defensible, actionable angle (one sentence)
- why_this_angle_wins: 2-3 sentences on why this angle differentiates
- rejected_angles: list of objects, each with "angle" and "reason_rejected" (2-3 items)
- platform_strategy: how the same angle adapts to blog (long), LinkedIn (professional), Twitter (thread)
- core_thesis: one sentence core message

Be contrarian and specific. No hype. No sales CTAs.`

// BuildBrief chooses the editorial angle. An unparseable response falls
// back to a brief derived from the signal itself; the run never aborts
// on editorial indecision.
func (a *Analyzer) BuildBrief(ctx context.Context, keyword string, signal pipeline.ExternalSignal, gap pipeline.GapAnalysis) (*pipeline.StrategyBrief, error) {
	prompt := fmt.Sprintf(`Keyword: %s
Signal: %s - %s
Source: %s

Gap analysis (avoid these):
Saturated angles: %v
Common narratives to avoid: %v
Angles to avoid: %v
Summary: %s

Generate the strategy brief. Output ONLY valid JSON, no markdown.`,
		keyword, signal.Title, signal.Summary, signal.Source,
		gap.SaturatedAngles, gap.CommonNarratives, gap.AnglesToAvoid, gap.Summary)

	raw, err := a.completer.CompleteJSON(ctx, briefSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("strategy brief: %w", err)
	}

	var brief pipeline.StrategyBrief
	if decodeErr := llm.DecodeJSON(raw, &brief); decodeErr != nil {
		a.logger.Warn(ctx, "strategy brief unparseable, using signal-derived fallback", zap.Error(decodeErr))
		return fallbackBrief(signal), nil
	}
	if brief.ChosenAngle == "" || brief.CoreThesis == "" {
		a.logger.Warn(ctx, "strategy brief incomplete, using signal-derived fallback")
		return fallbackBrief(signal), nil
	}
	return &brief, nil
}

func fallbackBrief(signal pipeline.ExternalSignal) *pipeline.StrategyBrief {
	return &pipeline.StrategyBrief{
		SignalSummary:    truncate(signal.Summary, 300),
		ChosenAngle:      "Use the signal to argue a contrarian, technical angle.",
		WhyThisAngleWins: "Differentiation through specificity.",
		RejectedAngles:   []pipeline.RejectedAngle{},
		PlatformStrategy: "Blog: long-form; LinkedIn: professional take; Twitter: thread.",
		CoreThesis:       truncate(signal.Summary, 200),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ pipeline.GapAnalyzer = (*Analyzer)(nil)
var _ pipeline.BriefBuilder = (*Analyzer)(nil)
