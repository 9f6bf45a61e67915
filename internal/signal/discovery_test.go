package signal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contentd/internal/config"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

func writeCache(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signal_cache.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func testConfig(path string) config.SignalConfig {
	return config.SignalConfig{
		CachePath: path,
		Weights:   config.ConfidenceWeights{Authority: 0.3, Recency: 0.2, Relevance: 0.5},
	}
}

const sampleCache = `{
  "ai agents": {
    "title": "Survey: agent reliability in production",
    "source": "arxiv.org",
    "source_type": "paper",
    "summary": "Most deployed agents fail silently.",
    "url": "https://arxiv.org/abs/2601.00001",
    "year": 2026,
    "authority_score": 0.9,
    "recency_score": 0.8,
    "relevance_score": 0.9
  },
  "pipeline observability": {
    "title": "State of observability report",
    "source": "example.com",
    "summary": "Pipelines fail quietly."
  }
}`

func newTestDiscoverer(t *testing.T, cache string) *Discoverer {
	t.Helper()
	d, err := NewDiscoverer(testConfig(writeCache(t, cache)), nil, nil)
	require.NoError(t, err)
	return d
}

func TestDiscoverSignal_ExactMatch(t *testing.T) {
	d := newTestDiscoverer(t, sampleCache)

	res, err := d.DiscoverSignal(context.Background(), "AI Agents")
	require.NoError(t, err)

	assert.Empty(t, res.AbortReason)
	assert.True(t, res.FromCache)
	assert.Equal(t, "Survey: agent reliability in production", res.Signal.Title)
	assert.Equal(t, "paper", res.Signal.SourceType)

	// 0.9*0.3 + 0.8*0.2 + 0.9*0.5 = 0.88
	assert.InDelta(t, 0.88, res.ConfidenceScore, 1e-9)
	assert.Equal(t, 0.9, res.ConfidenceBreakdown["source_authority"])
	assert.Equal(t, 0.8, res.ConfidenceBreakdown["recency"])
	assert.Equal(t, 0.9, res.ConfidenceBreakdown["keyword_relevance"])
}

func TestDiscoverSignal_SubstringMatch(t *testing.T) {
	d := newTestDiscoverer(t, sampleCache)

	res, err := d.DiscoverSignal(context.Background(), "observability")
	require.NoError(t, err)

	assert.Empty(t, res.AbortReason)
	assert.Equal(t, "State of observability report", res.Signal.Title)
}

func TestDiscoverSignal_DefaultDimensionScores(t *testing.T) {
	d := newTestDiscoverer(t, sampleCache)

	res, err := d.DiscoverSignal(context.Background(), "pipeline observability")
	require.NoError(t, err)

	// 0.6*0.3 + 0.7*0.2 + 0.8*0.5 = 0.72
	assert.InDelta(t, 0.72, res.ConfidenceScore, 1e-9)
	assert.Equal(t, "blog", res.Signal.SourceType)
}

func TestDiscoverSignal_EmptyKeyword(t *testing.T) {
	d := newTestDiscoverer(t, sampleCache)

	for _, kw := range []string{"", "   "} {
		res, err := d.DiscoverSignal(context.Background(), kw)
		require.NoError(t, err)
		assert.Equal(t, "Keyword is empty.", res.AbortReason)
		assert.Zero(t, res.ConfidenceScore)
	}
}

func TestDiscoverSignal_NoMatch(t *testing.T) {
	d := newTestDiscoverer(t, sampleCache)

	res, err := d.DiscoverSignal(context.Background(), "quantum basket weaving")
	require.NoError(t, err)

	assert.Contains(t, res.AbortReason, "No external signal found")
	assert.Zero(t, res.ConfidenceScore)
}

func TestNewDiscoverer_MissingCacheFile(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "absent.json"))
	d, err := NewDiscoverer(cfg, nil, nil)
	require.NoError(t, err)

	res, err := d.DiscoverSignal(context.Background(), "anything")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AbortReason)
}

func TestNewDiscoverer_MalformedCache(t *testing.T) {
	cfg := testConfig(writeCache(t, "{not json"))
	_, err := NewDiscoverer(cfg, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse signal cache")
}

type stubLive struct {
	result *pipeline.SignalResult
	err    error
}

func (s *stubLive) Search(context.Context, string) (*pipeline.SignalResult, error) {
	return s.result, s.err
}

func TestDiscoverSignal_LiveSearchPreferred(t *testing.T) {
	live := &stubLive{result: &pipeline.SignalResult{
		Signal:          pipeline.ExternalSignal{Title: "Live result"},
		ConfidenceScore: 0.95,
	}}
	d, err := NewDiscoverer(testConfig(writeCache(t, sampleCache)), live, nil)
	require.NoError(t, err)

	res, err := d.DiscoverSignal(context.Background(), "ai agents")
	require.NoError(t, err)
	assert.Equal(t, "Live result", res.Signal.Title)
}

func TestDiscoverSignal_LiveSearchFailureFallsBack(t *testing.T) {
	live := &stubLive{err: errors.New("search api down")}
	d, err := NewDiscoverer(testConfig(writeCache(t, sampleCache)), live, nil)
	require.NoError(t, err)

	res, err := d.DiscoverSignal(context.Background(), "ai agents")
	require.NoError(t, err)
	assert.True(t, res.FromCache)
}

func TestDiscoverSignal_WeightsAreNormalized(t *testing.T) {
	cfg := testConfig(writeCache(t, sampleCache))
	cfg.Weights = config.ConfidenceWeights{Authority: 3, Recency: 2, Relevance: 5}
	d, err := NewDiscoverer(cfg, nil, nil)
	require.NoError(t, err)

	res, err := d.DiscoverSignal(context.Background(), "ai agents")
	require.NoError(t, err)
	assert.InDelta(t, 0.88, res.ConfidenceScore, 1e-9)
}
