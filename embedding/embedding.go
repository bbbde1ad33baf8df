package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/datakita/querybridge/config"
)

// Provider generates vector embeddings for text.
type Provider interface {
	// GetEmbedding embeds a single text.
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	// GetEmbeddings embeds a batch in order.
	GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the embedding width the provider produces.
	Dimensions() int
}

// NewProvider creates an embedding provider from configuration.
func NewProvider(cfg *config.EmbeddingConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
