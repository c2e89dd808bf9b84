package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/curator"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/embed"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/store"
	anthropicpkg "github.com/edwinlov3tt/ignite-report-ai-sub002/pkg/anthropic"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/pkg/perplexity"
)

// curatorEnv holds the store and the wired service used by serve, mcp and extract.
type curatorEnv struct {
	Store   store.Store
	Service *curator.Service
}

// Close releases resources held by the environment.
func (ce *curatorEnv) Close() {
	if ce.Store != nil {
		_ = ce.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "curator.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCurator validates config for mode, opens and migrates the store and
// builds the service. Callers should defer env.Close().
func initCurator(ctx context.Context, mode string) (*curatorEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	jinaClient := embed.NewJinaClient(cfg)
	embedder, err := embed.New(ctx, cfg, jinaClient)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init embedder")
	}

	var aiOpts []anthropicpkg.Option
	if cfg.Anthropic.BaseURL != "" {
		aiOpts = append(aiOpts, anthropicpkg.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	if cfg.Anthropic.MaxRetries > 0 {
		aiOpts = append(aiOpts, anthropicpkg.WithMaxRetries(cfg.Anthropic.MaxRetries))
	}
	aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key, aiOpts...)

	var research perplexity.Client
	if cfg.Perplexity.Key != "" {
		research = perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
	} else {
		zap.L().Info("perplexity key not set; research_fill actions will fail")
	}

	vocab := curator.DefaultVocabulary()
	if cfg.Curator.VocabularyFile != "" {
		vocab, err = curator.LoadVocabulary(cfg.Curator.VocabularyFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	svc := curator.NewService(cfg, st, embedder, aiClient, jinaClient, research, vocab)
	return &curatorEnv{Store: st, Service: svc}, nil
}
