package embed

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/config"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/pkg/jina"
)

// New builds the embedder selected by cfg.Embedding.Provider. The jina client
// is reused when the provider is jina.
func New(ctx context.Context, cfg *config.Config, jc jina.Client) (Embedder, error) {
	switch cfg.Embedding.Provider {
	case "", "jina":
		if jc == nil {
			jc = NewJinaClient(cfg)
		}
		return NewJina(jc), nil
	case "gemini":
		return NewGemini(ctx, cfg.Gemini.Key, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	default:
		return nil, eris.Errorf("embed: unknown provider %q", cfg.Embedding.Provider)
	}
}

// NewJinaClient builds a Jina client from configuration.
func NewJinaClient(cfg *config.Config) jina.Client {
	opts := []jina.Option{
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithEmbedURL(cfg.Jina.EmbedURL),
		jina.WithDimensions(cfg.Embedding.Dimensions),
	}
	if cfg.Embedding.Provider == "jina" && cfg.Embedding.Model != "" {
		opts = append(opts, jina.WithModel(cfg.Embedding.Model))
	}
	if cfg.Jina.RateLimit > 0 {
		opts = append(opts, jina.WithRateLimit(rate.Limit(cfg.Jina.RateLimit), 4))
	}
	return jina.NewClient(cfg.Jina.Key, opts...)
}
