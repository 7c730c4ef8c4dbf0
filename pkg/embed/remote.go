package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Remote calls the OpenAI embeddings API. Dimensions is pinned to the chain
// dimension so remote vectors stay comparable with the other tiers.
type Remote struct {
	client    openai.Client
	model     string
	dimension int
}

// RemoteConfig holds remote API configuration
type RemoteConfig struct {
	APIKey    string
	Model     string
	Dimension int
}

// NewRemote creates a new OpenAI embedding provider
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}

	return &Remote{
		client:    openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (r *Remote) Dimension() int {
	return r.dimension
}

// Embed generates an embedding via the OpenAI API.
func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := r.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model:      openai.EmbeddingModel(r.model),
		Dimensions: openai.Int(int64(r.dimension)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call embeddings API: %w", err)
	}

	if len(res.Data) == 0 {
		return nil, fmt.Errorf("embeddings API returned no data")
	}

	raw := res.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}

	return vec, nil
}

func (r *Remote) Close() error {
	return nil
}
