// Package corpus embeds the brand corpus in a local vector store and
// serves similarity queries for positioning retrieval.
package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/config"
	"github.com/fyrsmithlabs/contentd/internal/logging"
)

// Result is one retrieved corpus chunk.
type Result struct {
	Content    string
	Source     string
	Similarity float32
}

// Store wraps a chromem collection holding the brand corpus.
type Store struct {
	collection *chromem.Collection
	logger     *logging.Logger
}

// NewStore opens (or creates) the persistent collection and ingests the
// markdown corpus directory if the collection is empty. Ingestion is
// idempotent across restarts.
func NewStore(ctx context.Context, cfg config.CorpusConfig, embed chromem.EmbeddingFunc, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("corpus")

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("open corpus db at %s: %w", cfg.Path, err)
		}
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", cfg.Collection, err)
	}

	store := &Store{collection: collection, logger: logger}
	if collection.Count() == 0 {
		if err := store.ingestDir(ctx, cfg.Dir); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// ingestDir loads every markdown file under dir, in sorted path order. A
// missing directory leaves the corpus empty; positioning then degrades
// gracefully.
func (s *Store) ingestDir(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		s.logger.Warn(ctx, "corpus directory missing, store is empty", zap.String("dir", dir))
		return nil
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk corpus dir %s: %w", dir, err)
	}
	sort.Strings(paths)

	docs := make([]chromem.Document, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn(ctx, "skipping unreadable corpus file",
				zap.String("path", path), zap.Error(err))
			continue
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		docs = append(docs, chromem.Document{
			ID:       rel,
			Content:  string(content),
			Metadata: map[string]string{"source": rel},
		})
	}
	if len(docs) == 0 {
		s.logger.Warn(ctx, "no markdown files in corpus dir", zap.String("dir", dir))
		return nil
	}

	if err := s.collection.AddDocuments(ctx, docs, 2); err != nil {
		return fmt.Errorf("ingest corpus: %w", err)
	}
	s.logger.Info(ctx, "corpus ingested", zap.Int("documents", len(docs)))
	return nil
}

// Query returns up to k chunks most similar to the query text.
func (s *Store) Query(ctx context.Context, query string, k int) ([]Result, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query corpus: %w", err)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, Result{
			Content:    r.Content,
			Source:     r.Metadata["source"],
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

// Count reports the number of stored documents.
func (s *Store) Count() int {
	return s.collection.Count()
}
