// Contentd is a content-pipeline daemon with HTTP/SSE transport.
//
// This binary starts the contentd HTTP server with full service
// initialization: signal discovery, the brand corpus store, LLM
// collaborators, NATS progress events, and Prometheus metrics.
//
// Configuration is loaded from ~/.config/contentd/config.yaml and
// CONTENTD_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	contentd
//
//	# Configure via flags and environment
//	CONTENTD_LLM_API_KEY=sk-... contentd -config ./config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/philippgille/chromem-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/config"
	"github.com/fyrsmithlabs/contentd/internal/content"
	"github.com/fyrsmithlabs/contentd/internal/corpus"
	"github.com/fyrsmithlabs/contentd/internal/events"
	"github.com/fyrsmithlabs/contentd/internal/llm"
	"github.com/fyrsmithlabs/contentd/internal/logging"
	"github.com/fyrsmithlabs/contentd/internal/metrics"
	"github.com/fyrsmithlabs/contentd/internal/pipeline"
	"github.com/fyrsmithlabs/contentd/internal/signal"
	"github.com/fyrsmithlabs/contentd/internal/strategy"
	"github.com/fyrsmithlabs/contentd/pkg/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/contentd/config.yaml)")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  contentd           Start the contentd daemon\n")
			fmt.Fprintf(os.Stderr, "  contentd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("contentd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the contentd server and blocks until context is cancelled.
//
// This function initializes all dependencies and services:
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Connects to NATS and opens the brand corpus store
//  4. Creates the LLM collaborator clients
//  5. Wires the pipeline engine factory into the HTTP server
//  6. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info(ctx, "starting contentd",
		zap.Int("port", cfg.Server.Port),
		zap.String("strategy_model", cfg.LLM.StrategyModel),
		zap.String("content_model", cfg.LLM.ContentModel))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info(ctx, "dependencies initialized",
		zap.Bool("nats_connected", deps.natsConn != nil),
		zap.Int("corpus_documents", deps.corpusStore.Count()))

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	registry := events.NewRegistry(deps.natsConn, logger)

	factory := engineFactory(cfg, deps, recorder, logger)

	srv := server.New(cfg, logger, registry, deps.natsConn, factory, recorder)

	logger.Info(ctx, "server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("run_endpoint", "/api/run"),
		zap.String("metrics_endpoint", "/metrics"))

	return srv.Start(ctx)
}

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	natsConn       *nats.Conn
	corpusStore    *corpus.Store
	discoverer     *signal.Discoverer
	strategyClient *llm.Client
	contentClient  *llm.Client
}

// Close releases infrastructure connections.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
}

// initDependencies connects to NATS, opens the corpus store, and builds
// the LLM clients. NATS is optional: the server still serves runs
// without it, only the SSE stream degrades.
func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	nc, err := nats.Connect(cfg.Events.NATSURL,
		nats.Name("contentd"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		logger.Warn(ctx, "nats unavailable, progress streaming disabled",
			zap.String("url", cfg.Events.NATSURL), zap.Error(err))
		nc = nil
	}

	embed := chromem.NewEmbeddingFuncOpenAICompat(
		strings.TrimSuffix(cfg.LLM.BaseURL, "/"),
		cfg.LLM.APIKey.Value(),
		cfg.LLM.EmbeddingModel,
		nil,
	)

	corpusCfg := cfg.Corpus
	corpusCfg.Path, err = expandHome(corpusCfg.Path)
	if err != nil {
		return nil, err
	}
	store, err := corpus.NewStore(ctx, corpusCfg, embed, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus store: %w", err)
	}

	discoverer, err := signal.NewDiscoverer(cfg.Signal, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load signal cache: %w", err)
	}

	strategyClient, err := llm.New(cfg.LLM, cfg.LLM.StrategyModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create strategy client: %w", err)
	}
	contentClient, err := llm.New(cfg.LLM, cfg.LLM.ContentModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create content client: %w", err)
	}

	return &dependencies{
		natsConn:       nc,
		corpusStore:    store,
		discoverer:     discoverer,
		strategyClient: strategyClient,
		contentClient:  contentClient,
	}, nil
}

// engineFactory wires the pipeline collaborators once and returns a
// factory that binds each run to its own progress emitter.
func engineFactory(cfg *config.Config, deps *dependencies, recorder *metrics.Recorder, logger *logging.Logger) server.EngineFactory {
	analyzer := strategy.NewAnalyzer(deps.strategyClient, logger)
	positioner := strategy.NewPositioning(deps.strategyClient, deps.corpusStore, cfg.Corpus.Brand, logger)
	generators := content.Generators(deps.contentClient, cfg.Corpus.Brand, logger)
	critic := content.NewCritic(deps.strategyClient, logger)

	return func(emitter pipeline.ProgressEmitter) (*pipeline.Engine, error) {
		return pipeline.NewEngine(pipeline.Options{
			Researcher:          deps.discoverer,
			GapAnalyzer:         analyzer,
			BriefBuilder:        analyzer,
			Positioner:          positioner,
			Generators:          generators,
			Critic:              critic,
			Emitter:             emitter,
			Observer:            recorder,
			Logger:              logger,
			ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
			GateThreshold:       cfg.Pipeline.GateThreshold,
			MaxIterations:       cfg.Pipeline.MaxIterations,
			StageTimeout:        cfg.Pipeline.StageTimeout.Duration(),
			StageRetries:        cfg.Pipeline.StageRetries,
		})
	}
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
