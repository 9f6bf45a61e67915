// Package signal implements keyword research: hybrid signal discovery
// over a curated cache with an optional live searcher, plus weighted
// confidence scoring.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/config"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
)

// Default per-dimension scores for cache entries that omit them.
const (
	defaultAuthority = 0.6
	defaultRecency   = 0.7
	defaultRelevance = 0.8
)

// LiveSearcher finds a signal from a live source. Discovery falls back
// to the cache when the searcher is nil or returns (nil, nil).
type LiveSearcher interface {
	Search(ctx context.Context, keyword string) (*pipeline.SignalResult, error)
}

// cacheEntry is one curated signal in the cache file, keyed by keyword.
type cacheEntry struct {
	Title          string   `json:"title"`
	Source         string   `json:"source"`
	SourceType     string   `json:"source_type"`
	Summary        string   `json:"summary"`
	URL            string   `json:"url"`
	Year           int      `json:"year"`
	AuthorityScore *float64 `json:"authority_score"`
	RecencyScore   *float64 `json:"recency_score"`
	RelevanceScore *float64 `json:"relevance_score"`
}

// Discoverer implements pipeline.Researcher over the signal cache.
type Discoverer struct {
	cache   map[string]cacheEntry
	keys    []string
	weights config.ConfidenceWeights
	live    LiveSearcher
	logger  *logging.Logger
}

// NewDiscoverer loads the signal cache at cfg.CachePath. A missing file
// is not an error; discovery then aborts every keyword until curated
// signals exist.
func NewDiscoverer(cfg config.SignalConfig, live LiveSearcher, logger *logging.Logger) (*Discoverer, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("signal")

	cache := map[string]cacheEntry{}
	data, err := os.ReadFile(cfg.CachePath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cache); err != nil {
			return nil, fmt.Errorf("parse signal cache %s: %w", cfg.CachePath, err)
		}
	case os.IsNotExist(err):
		logger.Warn(context.Background(), "signal cache missing, all keywords will abort",
			zap.String("path", cfg.CachePath))
	default:
		return nil, fmt.Errorf("read signal cache %s: %w", cfg.CachePath, err)
	}

	// Lowercased keys, sorted for deterministic substring matching
	normalized := make(map[string]cacheEntry, len(cache))
	keys := make([]string, 0, len(cache))
	for k, v := range cache {
		lk := strings.ToLower(strings.TrimSpace(k))
		normalized[lk] = v
		keys = append(keys, lk)
	}
	sort.Strings(keys)

	return &Discoverer{
		cache:   normalized,
		keys:    keys,
		weights: cfg.Weights.Normalized(),
		live:    live,
		logger:  logger,
	}, nil
}

// DiscoverSignal finds the best signal for a keyword. Keyword problems
// are reported through AbortReason, never as an error, so the pipeline
// can abort the run cleanly.
func (d *Discoverer) DiscoverSignal(ctx context.Context, keyword string) (*pipeline.SignalResult, error) {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return &pipeline.SignalResult{AbortReason: "Keyword is empty."}, nil
	}

	if d.live != nil {
		res, err := d.live.Search(ctx, kw)
		if err != nil {
			d.logger.Warn(ctx, "live signal search failed, falling back to cache", zap.Error(err))
		} else if res != nil {
			return res, nil
		}
	}

	entry, ok := d.lookup(kw)
	if !ok {
		d.logger.Info(ctx, "no cached signal", zap.String("keyword", kw))
		return &pipeline.SignalResult{
			Signal: pipeline.ExternalSignal{
				Title:      "No signal found",
				Source:     "N/A",
				SourceType: "other",
				Summary:    "No curated or live signal found for this keyword.",
			},
			AbortReason: "No external signal found for this keyword. Add a curated signal to the cache or enable live search.",
		}, nil
	}

	score, breakdown := d.confidence(entry)
	d.logger.Info(ctx, "signal discovered from cache",
		zap.String("keyword", kw),
		zap.Float64("confidence", score))

	return &pipeline.SignalResult{
		Signal: pipeline.ExternalSignal{
			Title:      entry.Title,
			Source:     entry.Source,
			SourceType: sourceTypeOrDefault(entry.SourceType),
			Summary:    entry.Summary,
			URL:        entry.URL,
			Year:       entry.Year,
		},
		ConfidenceScore:     score,
		ConfidenceBreakdown: breakdown,
		FromCache:           true,
	}, nil
}

// lookup tries the exact keyword first, then the first cache key (in
// sorted order) that contains or is contained by the keyword.
func (d *Discoverer) lookup(kw string) (cacheEntry, bool) {
	if entry, ok := d.cache[kw]; ok {
		return entry, true
	}
	for _, k := range d.keys {
		if strings.Contains(k, kw) || strings.Contains(kw, k) {
			return d.cache[k], true
		}
	}
	return cacheEntry{}, false
}

// confidence computes the weighted composite score and its breakdown.
func (d *Discoverer) confidence(entry cacheEntry) (float64, map[string]float64) {
	authority := scoreOrDefault(entry.AuthorityScore, defaultAuthority)
	recency := scoreOrDefault(entry.RecencyScore, defaultRecency)
	relevance := scoreOrDefault(entry.RelevanceScore, defaultRelevance)

	breakdown := map[string]float64{
		"source_authority":  authority,
		"recency":           recency,
		"keyword_relevance": relevance,
	}

	score := authority*d.weights.Authority + recency*d.weights.Recency + relevance*d.weights.Relevance
	score = math.Min(1.0, score)
	return math.Round(score*1000) / 1000, breakdown
}

func scoreOrDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	if *v < 0 {
		return 0
	}
	if *v > 1 {
		return 1
	}
	return *v
}

func sourceTypeOrDefault(t string) string {
	if t == "" {
		return "blog"
	}
	return t
}
