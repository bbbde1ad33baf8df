package vectordb

import (
	"context"
	"fmt"
	"strings"

	"github.com/datakita/querybridge/config"
	"github.com/datakita/querybridge/schema"
)

// VectorStoreProvider stores and retrieves embedded document chunks.
type VectorStoreProvider interface {
	// AddDocs inserts chunks; IDs must be set by the caller.
	AddDocs(ctx context.Context, docs []*schema.Document) error
	// SearchDocs returns the most similar chunks for a query vector.
	SearchDocs(ctx context.Context, vector []float32, opts *schema.SearchOptions) ([]*schema.SearchResult, error)
	// CountByFingerprint reports how many chunks of a source document exist.
	CountByFingerprint(ctx context.Context, fingerprint string) (int64, error)
	// DeleteByFingerprint removes all chunks of a source document.
	DeleteByFingerprint(ctx context.Context, fingerprint string) error
	// ListDocs pages over stored chunks without a similarity query.
	ListDocs(ctx context.Context, limit int) ([]*schema.Document, error)
	Close() error
}

// NewProvider creates a vector store from configuration. dimensions must match
// the embedding provider.
func NewProvider(ctx context.Context, cfg *config.VectorDBConfig, dimensions int) (VectorStoreProvider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "milvus":
		return NewMilvusStore(ctx, cfg, dimensions)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown vectordb provider: %s", cfg.Provider)
	}
}
