// internal/strategy/positioning.go
package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/contentd/internal/corpus"
	"github.com/fyrsmithlabs/contentd/internal/llm"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

const (
	retrievalK      = 4
	maxContextChars = 3000
	maxTweetChars   = 280
)

// Retriever is the corpus query surface positioning needs. *corpus.Store
// satisfies it.
type Retriever interface {
	Query(ctx context.Context, query string, k int) ([]corpus.Result, error)
}

// Positioning retrieves brand context and turns it into hooks for each
// asset. The brand appears as philosophy, never as a sales pitch.
type Positioning struct {
	completer Completer
	retriever Retriever
	brand     string
	logger    *logging.Logger
}

// NewPositioning wires the positioning engine.
func NewPositioning(completer Completer, retriever Retriever, brand string, logger *logging.Logger) *Positioning {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Positioning{
		completer: completer,
		retriever: retriever,
		brand:     brand,
		logger:    logger.Named("positioning"),
	}
}

// BuildHooks generates positioning hooks grounded in retrieved corpus
// context. Errors propagate; the pipeline degrades them to empty hooks.
func (p *Positioning) BuildHooks(ctx context.Context, keyword string, brief pipeline.StrategyBrief) (*pipeline.PositioningHooks, error) {
	brandContext, err := p.retrieveContext(ctx, brief)
	if err != nil {
		return nil, err
	}

	system := fmt.Sprintf(`You are aligning content to the positioning of %[1]s. Audience: engineers and technical leaders. Tone: technical, direct, slightly contrarian.
Do NOT write sales CTAs. Do NOT use "revolutionary" or "game-changing". Connect %[1]s as a philosophy, not a pitch.
Use the provided brand context to make the tie-in authentic. Output ONLY valid JSON with these keys:
- blog_tail_insight: 2-4 sentences for the final 10-15%% of the blog
- linkedin_mention: 1-2 sentences for a subtle LinkedIn mention
- twitter_mention: one short line for Twitter (under 280 chars)
- philosophy_tie: one sentence describing how this connects to the brand philosophy`, p.brand)

	prompt := fmt.Sprintf(`Keyword: %s
Strategy brief core thesis: %s
Chosen angle: %s

Brand context (from our corpus):
%s

Generate positioning hooks. Output ONLY valid JSON, no markdown.`,
		keyword, brief.CoreThesis, brief.ChosenAngle, brandContext)

	raw, err := p.completer.CompleteJSON(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("positioning: %w", err)
	}

	var hooks pipeline.PositioningHooks
	if err := llm.DecodeJSON(raw, &hooks); err != nil {
		return nil, fmt.Errorf("positioning: %w", err)
	}
	if len(hooks.TwitterMention) > maxTweetChars {
		hooks.TwitterMention = hooks.TwitterMention[:maxTweetChars]
	}
	return &hooks, nil
}

// retrieveContext queries the corpus with the brief's thesis and angle.
// An empty corpus yields empty context rather than an error so hooks can
// still be generated from the brief alone.
func (p *Positioning) retrieveContext(ctx context.Context, brief pipeline.StrategyBrief) (string, error) {
	if p.retriever == nil {
		return "", nil
	}

	results, err := p.retriever.Query(ctx, brief.CoreThesis+" "+brief.ChosenAngle, retrievalK)
	if err != nil {
		return "", fmt.Errorf("positioning retrieval: %w", err)
	}
	if len(results) == 0 {
		p.logger.Debug(ctx, "brand corpus empty, generating hooks without retrieval")
		return "", nil
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Content)
	}
	joined := strings.Join(parts, "\n\n")
	if len(joined) > maxContextChars {
		joined = joined[:maxContextChars]
	}
	return joined, nil
}

var _ pipeline.Positioner = (*Positioning)(nil)
