// Package app builds the long-lived components shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/knoguchi/kgsearch/internal/config"
	"github.com/knoguchi/kgsearch/internal/embedder"
	"github.com/knoguchi/kgsearch/internal/osti"
	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/knoguchi/kgsearch/internal/repository/memory"
	"github.com/knoguchi/kgsearch/internal/repository/postgres"
	"github.com/knoguchi/kgsearch/internal/retrieval"
	"github.com/knoguchi/kgsearch/internal/vectorstore"
)

// NewLogger returns a JSON logger writing to w at the named level.
// Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// Deps holds the components built from Config
type Deps struct {
	Store    repository.RecordStore
	Embedder embedder.Embedder
	Engine   *retrieval.Engine

	// OSTI is nil when OSTI_ENABLED is false
	OSTI *osti.Client

	closers []func()
}

// Build connects the record store and creates the embedder, engine and
// OSTI client. Callers must Close the result.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	d := &Deps{}

	store, err := d.openStore(ctx, cfg, logger)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Store = store
	d.Embedder = NewEmbedder(cfg)
	d.Engine = NewEngine(cfg, store, d.Embedder, logger)

	if cfg.OSTIEnabled {
		d.OSTI = osti.NewClient(osti.Config{
			BaseURL: cfg.OSTIBaseURL,
			Timeout: cfg.OSTITimeout,
			Logger:  logger,
		})
	}

	logger.Info("initialized retrieval",
		"store", cfg.StoreBackend,
		"embedder", d.Embedder.ModelName(),
		"osti", cfg.OSTIEnabled,
	)
	return d, nil
}

// Close releases the store and index connections in reverse order of creation
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func (d *Deps) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.RecordStore, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		store, err := memory.Load(cfg.MemoryFixturePath)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded memory store", "path", cfg.MemoryFixturePath)
		return store, nil

	case config.BackendPostgres, config.BackendQdrant:
		repo, err := OpenRecordRepo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, repo.Close)
		logger.Info("connected to PostgreSQL")
		if cfg.StoreBackend == config.BackendPostgres {
			return repo, nil
		}

		index, err := OpenQdrant(ctx, cfg)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() {
			if err := index.Close(); err != nil {
				logger.Warn("error closing Qdrant client", "error", err)
			}
		})
		logger.Info("connected to Qdrant", "url", cfg.QdrantGRPCURL)
		return repository.NewIndexed(repo, index), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// OpenRecordRepo connects to Postgres
func OpenRecordRepo(ctx context.Context, cfg *config.Config) (*postgres.RecordRepo, error) {
	db, err := postgres.New(ctx, cfg.DatabaseURL, postgres.WithMaxConns(cfg.DBMaxConns))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return postgres.NewRecordRepo(db), nil
}

// OpenQdrant connects to Qdrant
func OpenQdrant(ctx context.Context, cfg *config.Config) (*vectorstore.QdrantStore, error) {
	opts := []vectorstore.QdrantOption{vectorstore.WithCollectionPrefix(cfg.QdrantCollectionPrefix)}
	if cfg.QdrantAPIKey != "" {
		opts = append(opts, vectorstore.WithAPIKey(cfg.QdrantAPIKey))
	}
	store, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	return store, nil
}

// NewEmbedder creates the configured embedding client
func NewEmbedder(cfg *config.Config) embedder.Embedder {
	if cfg.EmbeddingProvider == config.ProviderMLAPI {
		return embedder.NewMLAPIEmbedder(embedder.MLAPIConfig{
			BaseURL:   cfg.MLAPIURL,
			Dimension: cfg.VectorLength,
			Timeout:   cfg.EmbeddingTimeout,
		})
	}
	return embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL:   cfg.OllamaURL,
		Model:     cfg.OllamaEmbeddingModel,
		Dimension: cfg.VectorLength,
		Timeout:   cfg.EmbeddingTimeout,
	})
}

// NewEngine creates a retrieval engine tuned by cfg
func NewEngine(cfg *config.Config, store repository.RecordStore, emb embedder.Embedder, logger *slog.Logger) *retrieval.Engine {
	return retrieval.NewEngine(store, emb,
		retrieval.WithLogger(logger),
		retrieval.WithTimeout(cfg.RetrievalTimeout),
		retrieval.WithMaxParallel(cfg.RetrievalMaxParallel),
		retrieval.WithDefaults(cfg.DefaultMaxCount, cfg.DefaultMaxExcerpts),
		retrieval.WithStringMatch(cfg.StringMatchMinLength, cfg.StringMatchMaxCount),
		retrieval.WithChildExcerpts(cfg.ChildExcerptsPerReport),
		retrieval.WithSourceEarliestYear(cfg.SourceEarliestYear),
	)
}
