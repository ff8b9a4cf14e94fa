package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/docqa/docqa/pkg/answer"
	"github.com/docqa/docqa/pkg/budget"
	"github.com/docqa/docqa/pkg/cache"
	cachesqlite "github.com/docqa/docqa/pkg/cache/sqlite"
	"github.com/docqa/docqa/pkg/canonical"
	"github.com/docqa/docqa/pkg/config"
	"github.com/docqa/docqa/pkg/documents"
	"github.com/docqa/docqa/pkg/embedding/openai"
	"github.com/docqa/docqa/pkg/generation"
	genopenai "github.com/docqa/docqa/pkg/generation/openai"
	"github.com/docqa/docqa/pkg/router"
	"github.com/docqa/docqa/pkg/similarity"
	"github.com/docqa/docqa/pkg/textnorm"
	"github.com/docqa/docqa/pkg/tracker"
	"github.com/docqa/docqa/pkg/vectorstore"
	"github.com/docqa/docqa/pkg/vectorstore/memory"
	"github.com/docqa/docqa/pkg/vectorstore/qdrant"
)

// app is the fully wired service graph shared by the commands.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *cachesqlite.Store
	vectors vectorstore.Store
	docs    *documents.Service
	lookup  *cache.Lookup
	answers *answer.Service
	usage   *tracker.SQLiteTracker
	closers []func() error
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}

// openStore opens only the cache database, for the cache admin commands.
func openStore(configPath string) (*config.Config, *cachesqlite.Store, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	store, err := cachesqlite.New(cfg.DBPath, cachesqlite.Options{
		MaxRetries:   cfg.Storage.MaxRetries,
		RetryBackoff: cfg.Storage.RetryBackoff,
		BusyTimeout:  cfg.Storage.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init cache: %w", err)
	}
	return cfg, store, nil
}

func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() error { _ = log.Sync(); return nil })

	a.store, err = cachesqlite.New(cfg.DBPath, cachesqlite.Options{
		MaxRetries:   cfg.Storage.MaxRetries,
		RetryBackoff: cfg.Storage.RetryBackoff,
		BusyTimeout:  cfg.Storage.BusyTimeout,
		Logger:       log.Named("store"),
	})
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	embedder := openai.New(cfg.Embedder)

	switch cfg.VectorStore.Type {
	case "memory":
		a.vectors = memory.New()
	case "", "qdrant":
		qs, err := qdrant.New(cfg.VectorStore, log.Named("qdrant"))
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.vectors = qs
		a.closers = append(a.closers, qs.Close)
	default:
		_ = a.Close()
		return nil, fmt.Errorf("unknown vector store type %q", cfg.VectorStore.Type)
	}
	if err := a.vectors.EnsureCollection(ctx, embedder.Dimension()); err != nil {
		_ = a.Close()
		return nil, err
	}

	normalizer, err := textnorm.New()
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init normalizer: %w", err)
	}

	m := cfg.Matching
	scorer := similarity.New(embedder, normalizer, similarity.Weights{Lexical: m.LexicalWeight, Semantic: m.SemanticWeight})
	canon := canonical.New(m.CanonicalQueries, canonical.WithCutoff(m.CanonicalCutoff))
	a.lookup = cache.NewLookup(a.store, canon, scorer, m.HitThreshold, log.Named("cache"))

	a.docs = documents.New(a.vectors, embedder, cfg.VectorStore.ScrollSize, log.Named("documents"))

	a.usage, err = tracker.New(cfg.DBPath)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init usage tracker: %w", err)
	}
	a.closers = append(a.closers, a.usage.Close)

	chain := generation.NewChain(router.New(cfg), genopenai.FromRoute, log.Named("generation")).
		WithRecorder(a.usage)
	if cfg.Budget.Enabled && len(cfg.Budget.Policies) > 0 {
		chain.WithBudget(budget.New(cfg.Budget.Policies, a.usage))
	}
	a.answers = answer.New(answer.Deps{
		Documents: a.docs,
		Cache:     a.store,
		Matcher:   a.lookup,
		Embedder:  embedder,
		Vectors:   a.vectors,
		Generators: answer.Generators{
			Ask:       chain.For(router.OpAsk),
			Summarize: chain.For(router.OpSummarize),
			Extract:   chain.For(router.OpExtract),
		},
		TopK:   cfg.Retrieval.TopK,
		Logger: log.Named("answer"),
	})
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
