package curator

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/embed"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/policy"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/resilience"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/store"
)

const defaultMatcherConcurrency = 4

// Matcher looks up each mention against every semantically indexed entity
// type.
type Matcher struct {
	embedder    embed.Embedder
	vectors     store.VectorStore
	concurrency int
	breaker     *resilience.Breaker
}

// NewMatcher creates a Matcher. A non-positive concurrency uses the default.
func NewMatcher(embedder embed.Embedder, vectors store.VectorStore, concurrency int) *Matcher {
	if concurrency <= 0 {
		concurrency = defaultMatcherConcurrency
	}
	return &Matcher{
		embedder:    embedder,
		vectors:     vectors,
		concurrency: concurrency,
		breaker:     resilience.NewBreaker("embedder", 5, 0),
	}
}

// Match embeds every mention once and searches each indexed type with it.
// Failures are logged and skipped, so the result only ever shrinks. Results
// are merged in mention order and deduplicated by entity id within a type.
func (m *Matcher) Match(ctx context.Context, mentions []string) model.MatchContext {
	out := make(model.MatchContext)
	if len(mentions) == 0 {
		return out
	}

	// results[i][j] holds matches for mention i and IndexedTypes[j].
	results := make([][][]model.SemanticMatch, len(mentions))
	for i := range results {
		results[i] = make([][]model.SemanticMatch, len(model.IndexedTypes))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, mention := range mentions {
		g.Go(func() error {
			vec, err := resilience.Execute(gctx, m.breaker, func(ctx context.Context) ([]float32, error) {
				return m.embedder.EmbedQuery(ctx, mention)
			})
			if err != nil {
				zap.L().Warn("curator: embed mention failed",
					zap.String("mention", mention),
					zap.Error(err),
				)
				return nil
			}

			for j, t := range model.IndexedTypes {
				found, err := m.vectors.MatchEntities(gctx, t, vec, policy.MinSimilarity, policy.MatchCount)
				if err != nil {
					zap.L().Warn("curator: similarity search failed",
						zap.String("mention", mention),
						zap.String("entity_type", string(t)),
						zap.Error(err),
					)
					continue
				}
				for k := range found {
					found[k].MatchedText = mention
				}
				results[i][j] = found
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	seen := make(map[model.EntityType]map[string]bool, len(model.IndexedTypes))
	for i := range mentions {
		for j, t := range model.IndexedTypes {
			for _, match := range results[i][j] {
				if seen[t] == nil {
					seen[t] = make(map[string]bool)
				}
				if seen[t][match.EntityID] {
					continue
				}
				seen[t][match.EntityID] = true
				out[t] = append(out[t], match)
			}
		}
	}
	return out
}
