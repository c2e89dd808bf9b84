package embed

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/pkg/jina"
)

// Jina embeds through the Jina Embeddings API.
type Jina struct {
	client jina.Client
}

// NewJina wraps a Jina client.
func NewJina(client jina.Client) *Jina {
	return &Jina{client: client}
}

// EmbedQuery implements Embedder.
func (j *Jina) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return j.embed(ctx, text, jina.TaskQuery)
}

// EmbedDocument implements Embedder.
func (j *Jina) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return j.embed(ctx, text, jina.TaskPassage)
}

func (j *Jina) embed(ctx context.Context, text, task string) ([]float32, error) {
	vectors, err := j.client.Embed(ctx, []string{text}, task)
	if err != nil {
		return nil, eris.Wrap(err, "embed: jina")
	}
	return single(vectors, "jina")
}
