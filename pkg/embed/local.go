package embed

import (
	"context"
	"fmt"

	fastembed "github.com/anush008/fastembed-go"
)

// bge-small-en-v1.5 output size
const localDimension = 384

// Local runs an ONNX embedding model on the host, no network required.
type Local struct {
	model *fastembed.FlagEmbedding
}

// LocalConfig holds local model configuration
type LocalConfig struct {
	CacheDir  string // where model weights are cached
	MaxLength int    // token limit, 0 = library default
}

// NewLocal loads the local embedding model
func NewLocal(cfg LocalConfig) (*Local, error) {
	model, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:     fastembed.BGESmallENV15,
		CacheDir:  cfg.CacheDir,
		MaxLength: cfg.MaxLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load local embedding model: %w", err)
	}

	return &Local{model: model}, nil
}

func (l *Local) Dimension() int {
	return localDimension
}

// Embed generates an embedding with the local model.
func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	vec, err := l.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("local embedding failed: %w", err)
	}
	return vec, nil
}

func (l *Local) Close() error {
	if l.model != nil {
		l.model.Destroy()
	}
	return nil
}
