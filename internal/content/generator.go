// Package content implements the generation and critique collaborators:
// one platform-native generator per asset and a dimension-scoring critic.
package content

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/llm"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

// Completer is the model call surface content agents need. *llm.Client
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	CompleteJSON(ctx context.Context, system, prompt string) (string, error)
}

// Generator produces platform-native drafts for one asset type.
type Generator struct {
	asset     pipeline.AssetType
	completer Completer
	brand     string
	logger    *logging.Logger
}

// NewGenerator builds the generator for one asset.
func NewGenerator(asset pipeline.AssetType, completer Completer, brand string, logger *logging.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{
		asset:     asset,
		completer: completer,
		brand:     brand,
		logger:    logger.Named("generator." + string(asset)),
	}
}

// Generators wires one generator per asset on a shared client.
func Generators(completer Completer, brand string, logger *logging.Logger) map[pipeline.AssetType]pipeline.Generator {
	out := make(map[pipeline.AssetType]pipeline.Generator, 3)
	for _, asset := range pipeline.AllAssets() {
		out[asset] = NewGenerator(asset, completer, brand, logger)
	}
	return out
}

// GenerateDraft produces one draft. Blog drafts come back as JSON with
// SEO meta fields; an unparseable blog response degrades to the raw text
// as content so generation never fails on formatting alone.
func (g *Generator) GenerateDraft(ctx context.Context, req pipeline.GenerateRequest) (pipeline.Draft, error) {
	switch g.asset {
	case pipeline.AssetBlog:
		return g.generateBlog(ctx, req)
	case pipeline.AssetLinkedIn:
		return g.generateLinkedIn(ctx, req)
	default:
		return g.generateThread(ctx, req)
	}
}

func (g *Generator) generateBlog(ctx context.Context, req pipeline.GenerateRequest) (pipeline.Draft, error) {
	system := fmt.Sprintf(`You write technical long-form blog posts for engineers. Tone: direct, contrarian, no hype.
Requirements:
- 800-1200 words
- Problem-first, then signal, then argument
- Cite the signal/source; no generic claims
- %[1]s mentioned ONLY in the final 10-15%% of the post (one short section)
- No "revolutionary", "game-changing", or sales CTAs
- Clear structure: hook, context, signal, argument, implication, brand tie-in at end
Output a JSON object with keys "content" (the full post as markdown), "meta_title" (under 60 chars), "meta_description" (under 160 chars).`, g.brand)

	prompt := g.basePrompt(req) +
		fmt.Sprintf("\nBrand tail section (use only at end, in final 10-15%%): %s\n", req.Hooks.BlogTailInsight) +
		"\nWrite the full blog post now. Output ONLY valid JSON."

	raw, err := g.completer.CompleteJSON(ctx, system, prompt)
	if err != nil {
		return pipeline.Draft{}, fmt.Errorf("blog draft %d: %w", req.DraftNumber, err)
	}

	var decoded struct {
		Content         string `json:"content"`
		MetaTitle       string `json:"meta_title"`
		MetaDescription string `json:"meta_description"`
	}
	if decodeErr := llm.DecodeJSON(raw, &decoded); decodeErr != nil || decoded.Content == "" {
		g.logger.Warn(ctx, "blog draft not valid JSON, using raw text",
			zap.Int("draft", req.DraftNumber))
		return pipeline.Draft{Content: llm.StripFences(raw)}, nil
	}
	return pipeline.Draft{
		Content:         strings.TrimSpace(decoded.Content),
		MetaTitle:       decoded.MetaTitle,
		MetaDescription: decoded.MetaDescription,
	}, nil
}

func (g *Generator) generateLinkedIn(ctx context.Context, req pipeline.GenerateRequest) (pipeline.Draft, error) {
	system := fmt.Sprintf(`You write LinkedIn posts for technical professionals. Tone: professional, direct, slightly contrarian.
- 200-300 words
- Strong opening hook
- Same signal and angle as the blog, but condensed
- One short %s mention only if it fits naturally (no sales pitch)
- No hype words. No CTAs.`, g.brand)

	prompt := g.basePrompt(req) +
		fmt.Sprintf("\nOptional brand mention: %s\n", req.Hooks.LinkedInMention) +
		"\nWrite the LinkedIn post. Output only the post."

	raw, err := g.completer.Complete(ctx, system, prompt)
	if err != nil {
		return pipeline.Draft{}, fmt.Errorf("linkedin draft %d: %w", req.DraftNumber, err)
	}
	return pipeline.Draft{Content: strings.TrimSpace(raw)}, nil
}

func (g *Generator) generateThread(ctx context.Context, req pipeline.GenerateRequest) (pipeline.Draft, error) {
	system := fmt.Sprintf(`You write Twitter/X threads for technical audiences. Tone: punchy, direct.
- 5-8 tweets
- First tweet: hook + promise
- Each tweet stands alone but builds the thread
- Max ~280 chars per tweet
- Same signal and angle as blog/LinkedIn
- Final tweet can include a brief %s mention if natural
Output format: one tweet per line. No other commentary.`, g.brand)

	prompt := g.basePrompt(req) +
		fmt.Sprintf("\nOptional brand mention: %s\n", req.Hooks.TwitterMention) +
		"\nWrite the thread. One tweet per line."

	raw, err := g.completer.Complete(ctx, system, prompt)
	if err != nil {
		return pipeline.Draft{}, fmt.Errorf("twitter draft %d: %w", req.DraftNumber, err)
	}
	return pipeline.Draft{Content: strings.TrimSpace(raw)}, nil
}

// basePrompt renders the shared signal/brief context and, for revisions,
// the critique feedback to incorporate.
func (g *Generator) basePrompt(req pipeline.GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Keyword: %s\n", req.Keyword)
	fmt.Fprintf(&b, "Signal: %s\nSource: %s\nSummary: %s\n\n", req.Signal.Title, req.Signal.Source, req.Signal.Summary)
	fmt.Fprintf(&b, "Chosen angle: %s\n", req.Brief.ChosenAngle)
	fmt.Fprintf(&b, "Why this angle wins: %s\n", req.Brief.WhyThisAngleWins)
	fmt.Fprintf(&b, "Core thesis: %s\n", req.Brief.CoreThesis)
	if req.Feedback != "" {
		fmt.Fprintf(&b, "\nRevision request (incorporate this feedback):\n%s\n", req.Feedback)
	}
	return b.String()
}

var _ pipeline.Generator = (*Generator)(nil)
