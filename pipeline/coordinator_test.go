package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datakita/querybridge/config"
	"github.com/datakita/querybridge/dedup"
	"github.com/datakita/querybridge/errs"
	"github.com/datakita/querybridge/schema"
	"github.com/datakita/querybridge/textsplitter"
	"github.com/datakita/querybridge/vectordb"
)

// countingEmbedder returns fixed-width vectors and counts batch calls.
type countingEmbedder struct {
	calls atomic.Int64
}

func (e *countingEmbedder) Dimensions() int { return 3 }

func (e *countingEmbedder) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	vs, err := e.GetEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (e *countingEmbedder) GetEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return out, nil
}

// brokenStore fails every operation, simulating a cache outage.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*dedup.Entry, error) {
	return nil, errors.New("store down")
}
func (brokenStore) Put(context.Context, string, *dedup.Entry) error { return errors.New("store down") }
func (brokenStore) Delete(context.Context, string) error            { return errors.New("store down") }
func (brokenStore) Len(context.Context) (int64, error)              { return 0, errors.New("store down") }

func newCoordinator(t *testing.T, cache *dedup.Cache, emb *countingEmbedder, store vectordb.VectorStoreProvider) *Coordinator {
	t.Helper()
	splitter, err := textsplitter.NewTextSplitter(&config.SplitterConfig{ChunkSize: 60})
	require.NoError(t, err)
	return NewCoordinator(cache, splitter, emb, store, config.UploadConfig{MaxBytes: 1 << 20})
}

func TestProcess_FirstUploadComputes(t *testing.T) {
	emb := &countingEmbedder{}
	store := vectordb.NewMemoryStore()
	c := newCoordinator(t, dedup.New(dedup.NewMemoryStore()), emb, store)

	res, err := c.Process(context.Background(), []byte("alpha beta gamma delta epsilon"), "notes.md")
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.False(t, res.Degraded)
	assert.Greater(t, res.ChunkCount, 0)
	assert.Len(t, res.Fingerprint, 64)
	assert.EqualValues(t, 1, emb.calls.Load())

	n, err := store.CountByFingerprint(context.Background(), res.Fingerprint)
	require.NoError(t, err)
	assert.EqualValues(t, res.ChunkCount, n)
}

func TestProcess_DuplicateUploadHitsCache(t *testing.T) {
	emb := &countingEmbedder{}
	store := vectordb.NewMemoryStore()
	c := newCoordinator(t, dedup.New(dedup.NewMemoryStore()), emb, store)

	raw := []byte("identical content uploaded twice under different names")
	first, err := c.Process(context.Background(), raw, "a.md")
	require.NoError(t, err)
	second, err := c.Process(context.Background(), raw, "b.md")
	require.NoError(t, err)

	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.EqualValues(t, 1, emb.calls.Load())

	// No duplicate chunks in the vector store.
	n, err := store.CountByFingerprint(context.Background(), first.Fingerprint)
	require.NoError(t, err)
	assert.EqualValues(t, first.ChunkCount, n)
}

func TestProcess_ConcurrentIdenticalUploads(t *testing.T) {
	emb := &countingEmbedder{}
	store := vectordb.NewMemoryStore()
	c := newCoordinator(t, dedup.New(dedup.NewMemoryStore()), emb, store)

	raw := []byte(strings.Repeat("concurrent upload body text ", 8))
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Process(context.Background(), raw, "same.md")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, emb.calls.Load())
}

func TestProcess_CacheOutageDegrades(t *testing.T) {
	emb := &countingEmbedder{}
	store := vectordb.NewMemoryStore()
	c := newCoordinator(t, dedup.New(brokenStore{}), emb, store)

	res, err := c.Process(context.Background(), []byte("upload during cache outage"), "x.md")
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.False(t, res.CacheHit)

	// Chunks still landed in the vector store.
	n, err := store.CountByFingerprint(context.Background(), res.Fingerprint)
	require.NoError(t, err)
	assert.Greater(t, n, int64(0))
}

func TestProcess_RejectsEmptyAndOversize(t *testing.T) {
	emb := &countingEmbedder{}
	c := newCoordinator(t, dedup.New(dedup.NewMemoryStore()), emb, vectordb.NewMemoryStore())

	_, err := c.Process(context.Background(), nil, "empty.md")
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	big := make([]byte, (1<<20)+1)
	for i := range big {
		big[i] = 'a'
	}
	_, err = c.Process(context.Background(), big, "big.md")
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	assert.EqualValues(t, 0, emb.calls.Load())
}

func TestDeleteDocument_ThenReuploadRecomputes(t *testing.T) {
	emb := &countingEmbedder{}
	store := vectordb.NewMemoryStore()
	c := newCoordinator(t, dedup.New(dedup.NewMemoryStore()), emb, store)

	raw := []byte("a document that gets deleted and uploaded again")
	first, err := c.Process(context.Background(), raw, "a.md")
	require.NoError(t, err)

	require.NoError(t, c.DeleteDocument(context.Background(), first.Fingerprint))

	n, err := store.CountByFingerprint(context.Background(), first.Fingerprint)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	docs, err := c.ListDocuments(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, docs)

	// The cache entry was evicted too, so the re-upload computes again.
	second, err := c.Process(context.Background(), raw, "a.md")
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
	assert.EqualValues(t, 2, emb.calls.Load())
}

func TestListDocuments_LeavesStoredVectorsIntact(t *testing.T) {
	emb := &countingEmbedder{}
	store := vectordb.NewMemoryStore()
	c := newCoordinator(t, dedup.New(dedup.NewMemoryStore()), emb, store)

	raw := []byte("listing documents must not degrade later searches")
	_, err := c.Process(context.Background(), raw, "a.md")
	require.NoError(t, err)

	docs, err := c.ListDocuments(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	for _, doc := range docs {
		assert.Nil(t, doc.Vector)
	}

	// The listing strips embeddings from its own copies only; the stored
	// documents still match a search for their content.
	vector, err := emb.GetEmbedding(context.Background(), string(raw))
	require.NoError(t, err)
	results, err := store.SearchDocs(context.Background(), vector, &schema.SearchOptions{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestDeleteDocument_InvalidFingerprint(t *testing.T) {
	c := newCoordinator(t, dedup.New(dedup.NewMemoryStore()), &countingEmbedder{}, vectordb.NewMemoryStore())
	err := c.DeleteDocument(context.Background(), "zz")
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestProcess_CacheHitRepairsLostChunks(t *testing.T) {
	emb := &countingEmbedder{}
	store := vectordb.NewMemoryStore()
	c := newCoordinator(t, dedup.New(dedup.NewMemoryStore()), emb, store)

	raw := []byte("content whose chunks get lost from the vector store")
	first, err := c.Process(context.Background(), raw, "a.md")
	require.NoError(t, err)

	require.NoError(t, store.DeleteByFingerprint(context.Background(), first.Fingerprint))

	second, err := c.Process(context.Background(), raw, "a.md")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	// Repair reuses cached vectors instead of re-embedding.
	assert.EqualValues(t, 1, emb.calls.Load())

	n, err := store.CountByFingerprint(context.Background(), first.Fingerprint)
	require.NoError(t, err)
	assert.EqualValues(t, first.ChunkCount, n)
}
