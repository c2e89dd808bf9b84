package embed

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-embedding-001"

// contentEmbedder is the slice of genai.Models used here.
type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Gemini embeds through the Gemini API.
type Gemini struct {
	models     contentEmbedder
	model      string
	dimensions int32
}

// NewGemini creates a Gemini embedder. A zero dimensions value keeps the
// model's default output size.
func NewGemini(ctx context.Context, apiKey, model string, dimensions int) (*Gemini, error) {
	if apiKey == "" {
		return nil, eris.New("embed: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "embed: create gemini client")
	}
	return newGemini(client.Models, model, dimensions), nil
}

func newGemini(models contentEmbedder, model string, dimensions int) *Gemini {
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{models: models, model: model, dimensions: int32(dimensions)}
}

// EmbedQuery implements Embedder.
func (g *Gemini) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, "RETRIEVAL_QUERY")
}

// EmbedDocument implements Embedder.
func (g *Gemini) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, "RETRIEVAL_DOCUMENT")
}

func (g *Gemini) embed(ctx context.Context, text, task string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{TaskType: task}
	if g.dimensions > 0 {
		dims := g.dimensions
		cfg.OutputDimensionality = &dims
	}

	resp, err := g.models.EmbedContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "embed: gemini")
	}

	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if e != nil {
			vectors = append(vectors, e.Values)
		}
	}
	return single(vectors, "gemini")
}
