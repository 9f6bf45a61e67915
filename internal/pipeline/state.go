// internal/pipeline/state.go
package pipeline

import (
	"time"
)

// Score range for every critique dimension. NeutralScore is the midpoint
// substituted when a critic response cannot be parsed.
const (
	ScoreMin     = 0.0
	ScoreMax     = 10.0
	NeutralScore = 5.0
)

// AssetType identifies one of the three content assets produced per run.
type AssetType string

const (
	AssetBlog     AssetType = "blog"
	AssetLinkedIn AssetType = "linkedin"
	AssetTwitter  AssetType = "twitter"
)

// AllAssets returns the assets in their fixed serialization order. Gate
// decisions are merged into the run log in this order regardless of which
// loop finished first.
func AllAssets() []AssetType {
	return []AssetType{AssetBlog, AssetLinkedIn, AssetTwitter}
}

// Dimensions returns the critique dimensions for an asset, in declaration
// order. Gate reason strings sort failing names separately, so this order
// only controls trace layout.
func Dimensions(asset AssetType) []string {
	if asset == AssetBlog {
		return []string{"hook", "clarity", "authority", "differentiation", "structure", "brand_fit"}
	}
	return []string{"hook", "platform_fit", "engagement", "shareability", "brand_fit"}
}

// Scores maps critique dimension name to a value in [ScoreMin, ScoreMax].
type Scores map[string]float64

// Mean returns the unweighted average over the asset's dimensions. Missing
// dimensions count as the neutral midpoint.
func (s Scores) Mean(asset AssetType) float64 {
	dims := Dimensions(asset)
	sum := 0.0
	for _, d := range dims {
		v, ok := s[d]
		if !ok {
			v = NeutralScore
		}
		sum += v
	}
	return sum / float64(len(dims))
}

// Clamped returns a copy with every value clamped to the score range.
func (s Scores) Clamped() Scores {
	out := make(Scores, len(s))
	for k, v := range s {
		out[k] = clampScore(v)
	}
	return out
}

func clampScore(v float64) float64 {
	if v < ScoreMin {
		return ScoreMin
	}
	if v > ScoreMax {
		return ScoreMax
	}
	return v
}

// NeutralScores returns the documented parse-failure fallback: the neutral
// midpoint for every dimension of the asset.
func NeutralScores(asset AssetType) Scores {
	out := make(Scores)
	for _, d := range Dimensions(asset) {
		out[d] = NeutralScore
	}
	return out
}

// ExternalSignal is one discovered real-world signal for a keyword.
type ExternalSignal struct {
	Title      string `json:"title"`
	Source     string `json:"source"`
	SourceType string `json:"source_type"`
	Summary    string `json:"summary"`
	URL        string `json:"url,omitempty"`
	Year       int    `json:"year,omitempty"`
}

// SignalResult is the research stage output. A non-empty AbortReason or a
// composite confidence below the configured threshold short-circuits the
// run before any content stage executes.
type SignalResult struct {
	Signal              ExternalSignal     `json:"signal"`
	ConfidenceScore     float64            `json:"confidence_score"`
	ConfidenceBreakdown map[string]float64 `json:"confidence_breakdown"`
	AbortReason         string             `json:"abort_reason,omitempty"`
	FromCache           bool               `json:"from_cache,omitempty"`
}

// GapAnalysis captures the competitive content landscape for a keyword.
type GapAnalysis struct {
	SaturatedAngles  []string `json:"saturated_angles"`
	CommonNarratives []string `json:"common_narratives"`
	AnglesToAvoid    []string `json:"angles_to_avoid"`
	Summary          string   `json:"summary"`
}

// RejectedAngle is an angle the strategy stage considered and discarded.
type RejectedAngle struct {
	Angle  string `json:"angle"`
	Reason string `json:"reason_rejected"`
}

// StrategyBrief is the editorial decision record every generation stage
// reads. Set once, never mutated downstream.
type StrategyBrief struct {
	SignalSummary    string          `json:"signal_summary"`
	ChosenAngle      string          `json:"chosen_angle"`
	WhyThisAngleWins string          `json:"why_this_angle_wins"`
	RejectedAngles   []RejectedAngle `json:"rejected_angles"`
	PlatformStrategy string          `json:"platform_strategy"`
	CoreThesis       string          `json:"core_thesis"`
}

// PositioningHooks are brand tie-ins retrieved from the corpus. A failed
// positioning stage degrades to empty hooks rather than aborting the run.
type PositioningHooks struct {
	BlogTailInsight string `json:"blog_tail_insight"`
	LinkedInMention string `json:"linkedin_mention"`
	TwitterMention  string `json:"twitter_mention"`
	PhilosophyTie   string `json:"philosophy_tie"`
}

// Draft is one generated draft of an asset. A twitter draft stores the
// whole thread, one tweet per line; it is critiqued as a single unit.
type Draft struct {
	Number          int    `json:"number"`
	Content         string `json:"content"`
	MetaTitle       string `json:"meta_title,omitempty"`
	MetaDescription string `json:"meta_description,omitempty"`
}

// CritiqueResult is the critic collaborator output for one draft.
type CritiqueResult struct {
	Scores      Scores `json:"scores"`
	Feedback    string `json:"feedback"`
	DraftNumber int    `json:"draft_number"`
}

// EvolutionEntry records one draft/critique round. ScoreDelta is nil for
// the first entry and mean(curr) - mean(prev) for every later one.
type EvolutionEntry struct {
	DraftNumber int      `json:"draft_number"`
	Scores      Scores   `json:"scores"`
	Narrative   string   `json:"key_changes_made"`
	ScoreDelta  *float64 `json:"score_delta"`
}

// DraftHistory accumulates one asset's refinement loop. Drafts and the
// evolution log are append-only; FinalDraft is set exactly once by the
// loop's terminal iteration.
type DraftHistory struct {
	Drafts       []Draft          `json:"drafts"`
	EvolutionLog []EvolutionEntry `json:"evolution_log"`
	FinalDraft   *Draft           `json:"final_draft"`
}

// GateDecision is one quality gate verdict appended to the run log.
type GateDecision struct {
	Asset       AssetType          `json:"asset"`
	Passed      bool               `json:"gate_passed"`
	Reason      string             `json:"trigger_reason"`
	FinalScores map[string]float64 `json:"final_scores"`
}

// RunState is the single record threaded through every stage of one run.
// It is mutated only by the stage executing at that moment; stages never
// observe a partially updated state from a sibling.
type RunState struct {
	Keyword   string
	StartedAt time.Time

	Research    *SignalResult
	Gap         *GapAnalysis
	Brief       *StrategyBrief
	Positioning *PositioningHooks

	Blog     DraftHistory
	LinkedIn DraftHistory
	Twitter  DraftHistory

	// GateLog holds terminal and intermediate gate decisions, merged in
	// fixed asset order at the end of the loop stages.
	GateLog []GateDecision

	StageTimingsSeconds map[string]float64
	TotalLatencySeconds float64

	Aborted     bool
	AbortReason string
}

// NewRunState creates the state for one keyword submission.
func NewRunState(keyword string) *RunState {
	return &RunState{
		Keyword:             keyword,
		StartedAt:           time.Now(),
		StageTimingsSeconds: make(map[string]float64),
	}
}

// History returns the draft history slot for an asset.
func (s *RunState) History(asset AssetType) *DraftHistory {
	switch asset {
	case AssetBlog:
		return &s.Blog
	case AssetLinkedIn:
		return &s.LinkedIn
	default:
		return &s.Twitter
	}
}
