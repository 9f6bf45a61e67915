// internal/content/critic.go
package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/contentd/internal/llm"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

// Critique prompts truncate the draft to keep token usage bounded.
const maxCritiqueChars = 8000

var dimensionGuide = map[string]string{
	"hook":            "Does the opening grab attention and promise value?",
	"clarity":         "Is the argument easy to follow, free of filler?",
	"authority":       "Does it cite specifics, data, or sources (not generic)?",
	"differentiation": "Is it contrarian or distinct vs typical content?",
	"structure":       "Is it clear and well-organized?",
	"brand_fit":       "Does the brand appear as philosophy, never a pitch?",
	"platform_fit":    "Does it match the platform's native format and length?",
	"engagement":      "Would the target audience stop scrolling and respond?",
	"shareability":    "Would a practitioner repost this to look smart?",
}

// Critic scores drafts across the asset's critique dimensions. One
// instance serves all assets.
type Critic struct {
	completer Completer
	logger    *logging.Logger
}

// NewCritic wires the critic to a model client.
func NewCritic(completer Completer, logger *logging.Logger) *Critic {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Critic{completer: completer, logger: logger.Named("critic")}
}

// Critique scores one draft. Transport and parse failures both surface
// as errors; the refinement loop substitutes neutral scores.
func (c *Critic) Critique(ctx context.Context, asset pipeline.AssetType, draft pipeline.Draft) (*pipeline.CritiqueResult, error) {
	dims := pipeline.Dimensions(asset)

	var guide strings.Builder
	for _, d := range dims {
		fmt.Fprintf(&guide, "- %s: %s\n", d, dimensionGuide[d])
	}

	system := fmt.Sprintf(`You are an editorial critic. Score the content on these dimensions (0-10 each) and give actionable feedback.
Dimensions:
%s
Output a JSON object with one numeric key per dimension plus "feedback" (string, 2-4 substantive sentences on what to improve). Be specific. Output ONLY valid JSON.`, guide.String())

	body := draft.Content
	if len(body) > maxCritiqueChars {
		body = body[:maxCritiqueChars]
	}
	prompt := fmt.Sprintf(`Platform: %s
Draft number: %d

Content:
%s

Score and critique. Output ONLY valid JSON.`, asset, draft.Number, body)

	raw, err := c.completer.CompleteJSON(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("critique %s draft %d: %w", asset, draft.Number, err)
	}

	var decoded map[string]any
	if err := llm.DecodeJSON(raw, &decoded); err != nil {
		return nil, fmt.Errorf("critique %s draft %d: %w", asset, draft.Number, err)
	}

	scores := make(pipeline.Scores, len(dims))
	for _, d := range dims {
		scores[d] = numericScore(decoded[d])
	}
	feedback, _ := decoded["feedback"].(string)

	return &pipeline.CritiqueResult{
		Scores:      scores,
		Feedback:    feedback,
		DraftNumber: draft.Number,
	}, nil
}

// numericScore coerces a JSON value to a clamped score, defaulting to
// the neutral midpoint for anything non-numeric.
func numericScore(v any) float64 {
	f, ok := v.(float64)
	if !ok {
		return pipeline.NeutralScore
	}
	if f < pipeline.ScoreMin {
		return pipeline.ScoreMin
	}
	if f > pipeline.ScoreMax {
		return pipeline.ScoreMax
	}
	return f
}

var _ pipeline.Critic = (*Critic)(nil)
