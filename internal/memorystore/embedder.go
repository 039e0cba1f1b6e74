package memorystore

import (
	"context"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// openAIEmbedder is the Embedder this domain wires by default. The
// embedding model is a constructor argument (empty selects
// text-embedding-3-small); memorystore.Build always passes
// text-embedding-3-small, and no environment variable overrides it.
type openAIEmbedder struct {
	sdk        sdk.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder builds an Embedder backed by the OpenAI embeddings
// endpoint. dimensions must match the target collection's configured
// vector size.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int, httpClient *http.Client) *openAIEmbedder {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &openAIEmbedder{sdk: sdk.NewClient(opts...), model: model, dimensions: dimensions}
}

func (e *openAIEmbedder) Dimensions() int { return e.dimensions }

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.sdk.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Model: e.model,
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}
