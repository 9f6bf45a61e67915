package strategy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contentd/internal/corpus"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

type stubCompleter struct {
	response   string
	err        error
	lastSystem string
	lastPrompt string
}

func (s *stubCompleter) CompleteJSON(_ context.Context, system, prompt string) (string, error) {
	s.lastSystem = system
	s.lastPrompt = prompt
	return s.response, s.err
}

func testSignal() pipeline.ExternalSignal {
	return pipeline.ExternalSignal{
		Title:   "Survey: agent reliability in production",
		Source:  "arxiv.org",
		Summary: "Most deployed agents fail silently.",
	}
}

func TestAnalyzeGaps(t *testing.T) {
	completer := &stubCompleter{response: `{
		"saturated_angles": ["top 10 lists"],
		"common_narratives": ["agents will replace everyone"],
		"angles_to_avoid": ["pure hype"],
		"summary": "Nobody covers failure modes."
	}`}

	gap, err := NewAnalyzer(completer, nil).AnalyzeGaps(context.Background(), "ai agents", testSignal())
	require.NoError(t, err)

	assert.Equal(t, []string{"top 10 lists"}, gap.SaturatedAngles)
	assert.Equal(t, "Nobody covers failure modes.", gap.Summary)
	assert.Contains(t, completer.lastPrompt, "ai agents")
	assert.Contains(t, completer.lastPrompt, "Survey: agent reliability in production")
}

func TestAnalyzeGaps_TransportErrorPropagates(t *testing.T) {
	completer := &stubCompleter{err: errors.New("connection refused")}

	_, err := NewAnalyzer(completer, nil).AnalyzeGaps(context.Background(), "ai agents", testSignal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gap analysis")
}

func TestAnalyzeGaps_UnparseableDegrades(t *testing.T) {
	completer := &stubCompleter{response: "I cannot produce JSON today."}

	gap, err := NewAnalyzer(completer, nil).AnalyzeGaps(context.Background(), "ai agents", testSignal())
	require.NoError(t, err)
	assert.Equal(t, "Gap analysis unavailable.", gap.Summary)
	assert.Empty(t, gap.SaturatedAngles)
}

func TestBuildBrief(t *testing.T) {
	completer := &stubCompleter{response: "```json\n" + `{
		"signal_summary": "Agents fail silently in production.",
		"chosen_angle": "Reliability is the real moat.",
		"why_this_angle_wins": "Everyone else talks capability.",
		"rejected_angles": [{"angle": "top tools", "reason_rejected": "saturated"}],
		"platform_strategy": "Blog deep dive, LinkedIn summary, Twitter thread.",
		"core_thesis": "Boring reliability beats shiny demos."
	}` + "\n```"}

	brief, err := NewAnalyzer(completer, nil).BuildBrief(context.Background(), "ai agents", testSignal(), pipeline.GapAnalysis{Summary: "gap"})
	require.NoError(t, err)

	assert.Equal(t, "Reliability is the real moat.", brief.ChosenAngle)
	require.Len(t, brief.RejectedAngles, 1)
	assert.Equal(t, "saturated", brief.RejectedAngles[0].Reason)
}

func TestBuildBrief_FallbackOnUnparseable(t *testing.T) {
	completer := &stubCompleter{response: "nope"}

	brief, err := NewAnalyzer(completer, nil).BuildBrief(context.Background(), "ai agents", testSignal(), pipeline.GapAnalysis{})
	require.NoError(t, err)

	assert.NotEmpty(t, brief.ChosenAngle)
	assert.NotEmpty(t, brief.CoreThesis)
	assert.Contains(t, brief.SignalSummary, "fail silently")
}

func TestBuildBrief_FallbackOnMissingAngle(t *testing.T) {
	completer := &stubCompleter{response: `{"signal_summary": "x"}`}

	brief, err := NewAnalyzer(completer, nil).BuildBrief(context.Background(), "ai agents", testSignal(), pipeline.GapAnalysis{})
	require.NoError(t, err)
	assert.NotEmpty(t, brief.ChosenAngle)
}

type stubRetriever struct {
	results   []corpus.Result
	err       error
	lastQuery string
}

func (s *stubRetriever) Query(_ context.Context, query string, _ int) ([]corpus.Result, error) {
	s.lastQuery = query
	return s.results, s.err
}

func testBrief() pipeline.StrategyBrief {
	return pipeline.StrategyBrief{
		ChosenAngle: "Reliability is the real moat.",
		CoreThesis:  "Boring reliability beats shiny demos.",
	}
}

func TestBuildHooks(t *testing.T) {
	completer := &stubCompleter{response: `{
		"blog_tail_insight": "Reliability work compounds.",
		"linkedin_mention": "We learned this shipping pipelines.",
		"twitter_mention": "Reliability is the moat.",
		"philosophy_tie": "Build boring things that work."
	}`}
	retriever := &stubRetriever{results: []corpus.Result{
		{Content: "Our philosophy: boring software that works.", Source: "philosophy.md"},
	}}

	hooks, err := NewPositioning(completer, retriever, "Fyrsmith Labs", nil).
		BuildHooks(context.Background(), "ai agents", testBrief())
	require.NoError(t, err)

	assert.Equal(t, "Reliability work compounds.", hooks.BlogTailInsight)
	assert.Equal(t, "Build boring things that work.", hooks.PhilosophyTie)

	// Retrieval query combines thesis and angle; the prompt carries the
	// retrieved context and the brand name.
	assert.Contains(t, retriever.lastQuery, "Boring reliability")
	assert.Contains(t, completer.lastPrompt, "boring software that works")
	assert.Contains(t, completer.lastSystem, "Fyrsmith Labs")
}

func TestBuildHooks_TruncatesTwitterMention(t *testing.T) {
	long := strings.Repeat("x", 400)
	completer := &stubCompleter{response: `{"twitter_mention": "` + long + `"}`}

	hooks, err := NewPositioning(completer, &stubRetriever{}, "Fyrsmith Labs", nil).
		BuildHooks(context.Background(), "ai agents", testBrief())
	require.NoError(t, err)
	assert.Len(t, hooks.TwitterMention, 280)
}

func TestBuildHooks_EmptyCorpusStillGenerates(t *testing.T) {
	completer := &stubCompleter{response: `{"philosophy_tie": "tie"}`}

	hooks, err := NewPositioning(completer, &stubRetriever{}, "Fyrsmith Labs", nil).
		BuildHooks(context.Background(), "ai agents", testBrief())
	require.NoError(t, err)
	assert.Equal(t, "tie", hooks.PhilosophyTie)
}

func TestBuildHooks_RetrievalErrorPropagates(t *testing.T) {
	retriever := &stubRetriever{err: errors.New("store corrupted")}
	completer := &stubCompleter{response: "{}"}

	_, err := NewPositioning(completer, retriever, "Fyrsmith Labs", nil).
		BuildHooks(context.Background(), "ai agents", testBrief())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positioning retrieval")
}

func TestBuildHooks_UnparseableIsError(t *testing.T) {
	completer := &stubCompleter{response: "not json"}

	_, err := NewPositioning(completer, &stubRetriever{}, "Fyrsmith Labs", nil).
		BuildHooks(context.Background(), "ai agents", testBrief())
	require.Error(t, err)
}
