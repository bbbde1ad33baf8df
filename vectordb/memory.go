package vectordb

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/datakita/querybridge/schema"
)

// MemoryStore is an in-process VectorStoreProvider doing brute-force cosine
// search. Used in tests and single-node setups without a Milvus deployment.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*schema.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*schema.Document)}
}

func (s *MemoryStore) AddDocs(_ context.Context, docs []*schema.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.docs[doc.ID] = doc
	}
	return nil
}

func (s *MemoryStore) SearchDocs(_ context.Context, vector []float32, opts *schema.SearchOptions) ([]*schema.SearchResult, error) {
	topK := 10
	threshold := 0.0
	if opts != nil {
		if opts.TopK > 0 {
			topK = opts.TopK
		}
		threshold = opts.Threshold
	}

	s.mu.RLock()
	results := make([]*schema.SearchResult, 0, len(s.docs))
	for _, doc := range s.docs {
		score := cosine(vector, doc.Vector)
		if score < threshold {
			continue
		}
		results = append(results, &schema.SearchResult{Document: doc, Score: score})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *MemoryStore) CountByFingerprint(_ context.Context, fingerprint string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, doc := range s.docs {
		if doc.Fingerprint == fingerprint {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteByFingerprint(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, doc := range s.docs {
		if doc.Fingerprint == fingerprint {
			delete(s.docs, id)
		}
	}
	return nil
}

// ListDocs returns copies, so callers can reshape the documents without
// touching the stored ones.
func (s *MemoryStore) ListDocs(_ context.Context, limit int) ([]*schema.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]*schema.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		copied := *doc
		docs = append(docs, &copied)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Fingerprint != docs[j].Fingerprint {
			return docs[i].Fingerprint < docs[j].Fingerprint
		}
		return docs[i].ChunkIndex < docs[j].ChunkIndex
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *MemoryStore) Close() error { return nil }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
