package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/datakita/querybridge/common/logger"
	"github.com/datakita/querybridge/config"
	"github.com/datakita/querybridge/dedup"
	"github.com/datakita/querybridge/embedding"
	"github.com/datakita/querybridge/errs"
	"github.com/datakita/querybridge/fingerprint"
	"github.com/datakita/querybridge/schema"
	"github.com/datakita/querybridge/textsplitter"
	"github.com/datakita/querybridge/vectordb"
)

// ProcessResult summarizes one document ingestion.
type ProcessResult struct {
	Fingerprint string `json:"fingerprint"`
	Filename    string `json:"filename"`
	ChunkCount  int    `json:"chunk_count"`
	// CacheHit reports whether chunking and embedding were skipped because the
	// exact bytes were seen before.
	CacheHit bool `json:"cache_hit"`
	// Degraded reports that the dedup cache was unreachable and the document
	// was processed without it.
	Degraded bool `json:"degraded,omitempty"`
}

// Coordinator runs the ingestion pipeline: fingerprint, dedup-gated chunking
// and embedding, then vector store insertion.
type Coordinator struct {
	cache    *dedup.Cache
	splitter textsplitter.TextSplitter
	embedder embedding.Provider
	store    vectordb.VectorStoreProvider
	maxBytes int64
}

func NewCoordinator(cache *dedup.Cache, splitter textsplitter.TextSplitter, embedder embedding.Provider, store vectordb.VectorStoreProvider, upload config.UploadConfig) *Coordinator {
	return &Coordinator{
		cache:    cache,
		splitter: splitter,
		embedder: embedder,
		store:    store,
		maxBytes: upload.MaxBytes,
	}
}

// Process ingests one document. Identical bytes are processed at most once no
// matter how many concurrent uploads carry them; the vector store insert stays
// idempotent via a fingerprint presence check.
func (c *Coordinator) Process(ctx context.Context, raw []byte, filename string) (*ProcessResult, error) {
	if len(raw) == 0 {
		return nil, errs.New(errs.KindValidation, "document is empty")
	}
	if c.maxBytes > 0 && int64(len(raw)) > c.maxBytes {
		return nil, errs.New(errs.KindValidation, "document exceeds %d bytes", c.maxBytes)
	}

	fp := fingerprint.Sum(raw)
	compute := func(ctx context.Context) (*dedup.Entry, error) {
		return c.computeEntry(ctx, raw, filename)
	}

	degraded := false
	entry, cacheHit, err := c.cache.GetOrCompute(ctx, fp, compute)
	if err != nil {
		if !errs.IsKind(err, errs.KindCacheUnavailable) {
			return nil, err
		}
		// Cache outage must not block ingestion. Process without dedup; the
		// vector store presence check below still prevents duplicate chunks.
		logger.Warnf("pipeline: cache unavailable, processing %s without dedup: %v", fp, err)
		degraded = true
		if entry, err = compute(ctx); err != nil {
			return nil, err
		}
	}

	if err := c.ensureStored(ctx, fp, entry); err != nil {
		return nil, err
	}

	return &ProcessResult{
		Fingerprint: fp.String(),
		Filename:    filename,
		ChunkCount:  len(entry.Chunks),
		CacheHit:    cacheHit,
		Degraded:    degraded,
	}, nil
}

func (c *Coordinator) computeEntry(ctx context.Context, raw []byte, filename string) (*dedup.Entry, error) {
	pieces, err := textsplitter.SplitWithHeadings(c.splitter, string(raw))
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "split document")
	}
	if len(pieces) == 0 {
		return nil, errs.New(errs.KindValidation, "document contains no text")
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vectors, err := c.embedder.GetEmbeddings(ctx, texts)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalFailure, err, "embed %d chunks", len(texts))
	}

	chunks := make([]dedup.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = dedup.Chunk{Text: p.Text, Heading: p.Heading, Index: i}
	}
	return &dedup.Entry{
		Chunks:    chunks,
		Vectors:   vectors,
		Filename:  filename,
		ByteSize:  int64(len(raw)),
		CreatedAt: time.Now(),
	}, nil
}

// ListDocuments pages over stored chunks. Vectors are stripped; callers want
// the text and provenance, not the embeddings.
func (c *Coordinator) ListDocuments(ctx context.Context, limit int) ([]*schema.Document, error) {
	docs, err := c.store.ListDocs(ctx, limit)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalFailure, err, "list documents")
	}
	// Copy before stripping: the store may hand out its own documents, and
	// their embeddings must stay intact for search.
	out := make([]*schema.Document, len(docs))
	for i, doc := range docs {
		copied := *doc
		copied.Vector = nil
		out[i] = &copied
	}
	return out, nil
}

// DeleteDocument removes a document's chunks and its cache entry, so a later
// upload of the same bytes is processed fresh.
func (c *Coordinator) DeleteDocument(ctx context.Context, fingerprintHex string) error {
	fp, err := fingerprint.Parse(fingerprintHex)
	if err != nil {
		return errs.Wrap(errs.KindValidation, err, "invalid fingerprint")
	}
	if err := c.store.DeleteByFingerprint(ctx, fp.String()); err != nil {
		return errs.Wrap(errs.KindExternalFailure, err, "delete chunks for %s", fp)
	}
	if err := c.cache.Evict(ctx, fp); err != nil {
		// The chunks are gone; a stale cache entry only short-circuits the
		// next identical upload, which ensureStored repairs.
		logger.Warnf("pipeline: evict %s failed: %v", fp, err)
	}
	return nil
}

// ensureStored inserts the entry's chunks unless chunks for this fingerprint
// are already present. A cache hit whose chunks were lost from the vector
// store is repaired from the cached artifacts without re-embedding.
func (c *Coordinator) ensureStored(ctx context.Context, fp fingerprint.Fingerprint, entry *dedup.Entry) error {
	count, err := c.store.CountByFingerprint(ctx, fp.String())
	if err != nil {
		return errs.Wrap(errs.KindExternalFailure, err, "check vector store for %s", fp)
	}
	if count > 0 {
		return nil
	}

	docs := make([]*schema.Document, len(entry.Chunks))
	for i, chunk := range entry.Chunks {
		docs[i] = &schema.Document{
			ID:          chunkID(fp, chunk.Index),
			Content:     chunk.Text,
			Vector:      entry.Vectors[i],
			Fingerprint: fp.String(),
			Filename:    entry.Filename,
			Heading:     chunk.Heading,
			ChunkIndex:  chunk.Index,
			CreatedAt:   entry.CreatedAt,
		}
	}
	if err := c.store.AddDocs(ctx, docs); err != nil {
		return errs.Wrap(errs.KindExternalFailure, err, "insert %d chunks for %s", len(docs), fp)
	}
	return nil
}

// chunkID is deterministic so repeated inserts of the same content upsert
// rather than duplicate.
func chunkID(fp fingerprint.Fingerprint, index int) string {
	return fmt.Sprintf("%s-%d", fp.String()[:32], index)
}
