// Package config provides configuration loading for contentd.
//
// Configuration is read from a YAML file and overridden by environment
// variables. All pipeline tunables (confidence threshold, gate threshold,
// iteration cap, confidence weights) live here so the orchestration core
// never hardcodes them.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the contentd daemon.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Signal   SignalConfig   `koanf:"signal"`
	LLM      LLMConfig      `koanf:"llm"`
	Corpus   CorpusConfig   `koanf:"corpus"`
	Events   EventsConfig   `koanf:"events"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger settings consumed by internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// PipelineConfig holds the orchestration tunables.
type PipelineConfig struct {
	// ConfidenceThreshold aborts the run when the research stage reports
	// a composite confidence below it.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`

	// GateThreshold is the minimum per-dimension critique score for a
	// draft to pass the quality gate.
	GateThreshold float64 `koanf:"gate_threshold"`

	// MaxIterations caps drafts per asset. The gate never requests a
	// rewrite at or beyond this iteration.
	MaxIterations int `koanf:"max_iterations"`

	// StageTimeout bounds a single stage execution, including all
	// collaborator calls it makes.
	StageTimeout Duration `koanf:"stage_timeout"`

	// StageRetries is how many times a failed stage call is retried
	// before the run fails. Zero means fail on first error.
	StageRetries int `koanf:"stage_retries"`
}

// ConfidenceWeights combine the research sub-scores into the composite
// confidence. Tuning constants, not a law: they are normalized at load so
// any positive mix is valid.
type ConfidenceWeights struct {
	Authority float64 `koanf:"authority"`
	Recency   float64 `koanf:"recency"`
	Relevance float64 `koanf:"relevance"`
}

// SignalConfig holds research-stage settings.
type SignalConfig struct {
	CachePath string            `koanf:"cache_path"`
	Weights   ConfidenceWeights `koanf:"weights"`
}

// LLMConfig holds collaborator model client settings. The endpoint is any
// OpenAI-compatible API (OpenAI, a local server, or a compat gateway).
type LLMConfig struct {
	BaseURL        string   `koanf:"base_url"`
	APIKey         Secret   `koanf:"api_key"`
	StrategyModel  string   `koanf:"strategy_model"`
	ContentModel   string   `koanf:"content_model"`
	EmbeddingModel string   `koanf:"embedding_model"`
	RequestTimeout Duration `koanf:"request_timeout"`
	MaxRetries     int      `koanf:"max_retries"`

	// RequestsPerSecond and Burst feed the client-side rate limiter.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// CorpusConfig holds the embedded brand-corpus store settings. Brand is
// the name woven into positioning hooks.
type CorpusConfig struct {
	Dir        string `koanf:"dir"`
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Brand      string `koanf:"brand"`
}

// EventsConfig holds progress event transport settings.
type EventsConfig struct {
	NATSURL string `koanf:"nats_url"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold must be in [0, 1], got %v", c.Pipeline.ConfidenceThreshold)
	}
	if c.Pipeline.GateThreshold < 0 || c.Pipeline.GateThreshold > 10 {
		return fmt.Errorf("pipeline.gate_threshold must be in [0, 10], got %v", c.Pipeline.GateThreshold)
	}
	if c.Pipeline.MaxIterations < 1 {
		return fmt.Errorf("pipeline.max_iterations must be >= 1, got %d", c.Pipeline.MaxIterations)
	}
	if c.Pipeline.StageRetries < 0 {
		return fmt.Errorf("pipeline.stage_retries must be >= 0, got %d", c.Pipeline.StageRetries)
	}
	w := c.Signal.Weights
	if w.Authority < 0 || w.Recency < 0 || w.Relevance < 0 {
		return fmt.Errorf("signal.weights must be non-negative")
	}
	if w.Authority+w.Recency+w.Relevance == 0 {
		return fmt.Errorf("signal.weights must not all be zero")
	}
	return nil
}

// Normalized returns the weights scaled to sum to 1.
func (w ConfidenceWeights) Normalized() ConfidenceWeights {
	sum := w.Authority + w.Recency + w.Relevance
	if sum == 0 {
		return w
	}
	return ConfidenceWeights{
		Authority: w.Authority / sum,
		Recency:   w.Recency / sum,
		Relevance: w.Relevance / sum,
	}
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Pipeline.ConfidenceThreshold == 0 {
		cfg.Pipeline.ConfidenceThreshold = 0.5
	}
	if cfg.Pipeline.GateThreshold == 0 {
		cfg.Pipeline.GateThreshold = 7.0
	}
	if cfg.Pipeline.MaxIterations == 0 {
		cfg.Pipeline.MaxIterations = 3
	}
	if cfg.Pipeline.StageTimeout == 0 {
		cfg.Pipeline.StageTimeout = Duration(2 * time.Minute)
	}

	if cfg.Signal.CachePath == "" {
		cfg.Signal.CachePath = "./data/signal_cache.json"
	}
	if cfg.Signal.Weights == (ConfidenceWeights{}) {
		cfg.Signal.Weights = ConfidenceWeights{Authority: 0.3, Recency: 0.2, Relevance: 0.5}
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.StrategyModel == "" {
		cfg.LLM.StrategyModel = "gpt-4o"
	}
	if cfg.LLM.ContentModel == "" {
		cfg.LLM.ContentModel = "gpt-4o-mini"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LLM.RequestTimeout == 0 {
		cfg.LLM.RequestTimeout = Duration(90 * time.Second)
	}
	if cfg.LLM.RequestsPerSecond == 0 {
		cfg.LLM.RequestsPerSecond = 2
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 4
	}

	if cfg.Corpus.Dir == "" {
		cfg.Corpus.Dir = "./data/brand_corpus"
	}
	if cfg.Corpus.Path == "" {
		cfg.Corpus.Path = "~/.config/contentd/corpus"
	}
	if cfg.Corpus.Collection == "" {
		cfg.Corpus.Collection = "brand_corpus"
	}
	if cfg.Corpus.Brand == "" {
		cfg.Corpus.Brand = "Fyrsmith Labs"
	}

	if cfg.Events.NATSURL == "" {
		cfg.Events.NATSURL = "nats://127.0.0.1:4222"
	}
}
