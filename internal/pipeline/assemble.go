// internal/pipeline/assemble.go
package pipeline

import (
	"math"
	"strings"
	"time"
)

// RunMetadata identifies one completed run.
type RunMetadata struct {
	Keyword             string  `json:"keyword"`
	GeneratedAt         string  `json:"generated_at"`
	TotalLatencySeconds float64 `json:"total_latency_seconds"`
}

// SignalReport is the research section of the final report.
type SignalReport struct {
	Signal              ExternalSignal     `json:"signal"`
	ConfidenceScore     float64            `json:"confidence_score"`
	ConfidenceBreakdown map[string]float64 `json:"confidence_breakdown"`
}

// BlogReport is the long-form section of the final report.
type BlogReport struct {
	FinalDraft      string           `json:"final_draft"`
	MetaTitle       string           `json:"meta_title"`
	MetaDescription string           `json:"meta_description"`
	EvolutionLog    []EvolutionEntry `json:"evolution_log"`
}

// ShortFormReport is a single-post section of the final report.
type ShortFormReport struct {
	FinalDraft   string           `json:"final_draft"`
	EvolutionLog []EvolutionEntry `json:"evolution_log"`
}

// ThreadReport is the tweet thread section of the final report.
type ThreadReport struct {
	Tweets       []string         `json:"tweets"`
	EvolutionLog []EvolutionEntry `json:"evolution_log"`
}

// Report is the single output document of a run. Aborted runs carry
// metadata, the abort reason, and whatever sections completed before the
// abort; content sections are empty, never null-panicking.
type Report struct {
	Metadata    RunMetadata    `json:"run_metadata"`
	Aborted     bool           `json:"aborted"`
	AbortReason string         `json:"abort_reason,omitempty"`
	Signal      *SignalReport  `json:"signal_intelligence,omitempty"`
	Brief       *StrategyBrief `json:"strategy_brief,omitempty"`

	Blog     BlogReport      `json:"blog"`
	LinkedIn ShortFormReport `json:"linkedin"`
	Twitter  ThreadReport    `json:"twitter"`

	GateLog             []GateDecision     `json:"quality_gate_log"`
	StageTimingsSeconds map[string]float64 `json:"stage_timings_seconds"`
}

// Assemble builds the final report from a run's state. It is pure apart
// from reading the clock: identical state produces an identical report
// except for the timestamp and latency fields. Missing sections are
// tolerated so an aborted or partially failed run still assembles.
func Assemble(state *RunState) *Report {
	now := time.Now().UTC()
	latency := 0.0
	if !state.StartedAt.IsZero() {
		latency = roundSeconds(now.Sub(state.StartedAt))
	}

	report := &Report{
		Metadata: RunMetadata{
			Keyword:             state.Keyword,
			GeneratedAt:         now.Format(time.RFC3339),
			TotalLatencySeconds: latency,
		},
		Aborted:             state.Aborted,
		AbortReason:         state.AbortReason,
		GateLog:             copyGateLog(state.GateLog),
		StageTimingsSeconds: copyTimings(state.StageTimingsSeconds),
	}

	if state.Research != nil && state.Research.AbortReason == "" {
		report.Signal = &SignalReport{
			Signal:              state.Research.Signal,
			ConfidenceScore:     state.Research.ConfidenceScore,
			ConfidenceBreakdown: copyTimings(state.Research.ConfidenceBreakdown),
		}
	}
	if state.Brief != nil {
		brief := *state.Brief
		report.Brief = &brief
	}

	report.Blog = assembleBlog(state.Blog)
	report.LinkedIn = assembleShortForm(state.LinkedIn)
	report.Twitter = assembleThread(state.Twitter)
	return report
}

func assembleBlog(h DraftHistory) BlogReport {
	out := BlogReport{EvolutionLog: clampEvolution(h.EvolutionLog)}
	if h.FinalDraft != nil {
		out.FinalDraft = h.FinalDraft.Content
		out.MetaTitle = h.FinalDraft.MetaTitle
		out.MetaDescription = h.FinalDraft.MetaDescription
	}
	return out
}

func assembleShortForm(h DraftHistory) ShortFormReport {
	out := ShortFormReport{EvolutionLog: clampEvolution(h.EvolutionLog)}
	if h.FinalDraft != nil {
		out.FinalDraft = h.FinalDraft.Content
	}
	return out
}

func assembleThread(h DraftHistory) ThreadReport {
	out := ThreadReport{
		Tweets:       []string{},
		EvolutionLog: clampEvolution(h.EvolutionLog),
	}
	if h.FinalDraft != nil {
		out.Tweets = SplitTweets(h.FinalDraft.Content)
	}
	return out
}

// SplitTweets turns a thread draft into individual tweets, one per
// non-empty line.
func SplitTweets(content string) []string {
	tweets := []string{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			tweets = append(tweets, line)
		}
	}
	return tweets
}

// clampEvolution copies evolution entries with scores clamped to the
// valid range so a misbehaving critic cannot leak out-of-range values
// into the report.
func clampEvolution(entries []EvolutionEntry) []EvolutionEntry {
	out := make([]EvolutionEntry, len(entries))
	for i, e := range entries {
		out[i] = EvolutionEntry{
			DraftNumber: e.DraftNumber,
			Scores:      e.Scores.Clamped(),
			Narrative:   e.Narrative,
		}
		if e.ScoreDelta != nil {
			delta := *e.ScoreDelta
			out[i].ScoreDelta = &delta
		}
	}
	return out
}

func copyGateLog(log []GateDecision) []GateDecision {
	out := make([]GateDecision, len(log))
	for i, d := range log {
		out[i] = GateDecision{
			Asset:       d.Asset,
			Passed:      d.Passed,
			Reason:      d.Reason,
			FinalScores: copyTimings(d.FinalScores),
		}
	}
	return out
}

func copyTimings(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
