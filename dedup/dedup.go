package dedup

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/datakita/querybridge/common/logger"
	"github.com/datakita/querybridge/errs"
	"github.com/datakita/querybridge/fingerprint"
)

// ErrMiss is returned by Store.Get when no entry exists for a fingerprint.
var ErrMiss = errors.New("dedup: cache miss")

// Chunk is one bounded text span derived from a document.
type Chunk struct {
	Text    string `json:"text"`
	Heading string `json:"heading,omitempty"`
	Index   int    `json:"index"`
}

// Entry holds the artifacts computed for one content fingerprint: the ordered
// chunks and their embedding vectors. Entries are immutable after creation;
// the store is append-only across fingerprints.
type Entry struct {
	Chunks    []Chunk     `json:"chunks"`
	Vectors   [][]float32 `json:"vectors"`
	Filename  string      `json:"filename"`
	ByteSize  int64       `json:"byte_size"`
	CreatedAt time.Time   `json:"created_at"`
}

// Store is the durable backing for cache entries, keyed by the hex
// fingerprint.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Len(ctx context.Context) (int64, error)
}

// Cache is the content-addressable dedup cache. Concurrent GetOrCompute calls
// for the same fingerprint share a single compute; distinct fingerprints never
// serialize against each other.
type Cache struct {
	store Store
	group singleflight.Group
}

// New creates a Cache over the given store.
func New(store Store) *Cache {
	return &Cache{store: store}
}

// Lookup is a non-blocking read. It returns ErrMiss when the fingerprint is
// unknown and a cache_unavailable error when the backing store fails.
func (c *Cache) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (*Entry, error) {
	entry, err := c.store.Get(ctx, fp.String())
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return nil, ErrMiss
		}
		return nil, errs.Wrap(errs.KindCacheUnavailable, err, "cache lookup failed for %s", fp)
	}
	return entry, nil
}

// GetOrCompute returns the entry for fp, invoking compute at most once per
// fingerprint across all concurrent callers. The boolean reports whether the
// entry was served from the store without running compute. A failed compute
// populates nothing; the next caller retries.
func (c *Cache) GetOrCompute(ctx context.Context, fp fingerprint.Fingerprint, compute func(context.Context) (*Entry, error)) (*Entry, bool, error) {
	key := fp.String()

	type outcome struct {
		entry    *Entry
		computed bool
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// The compute is shared by every concurrent caller for this
		// fingerprint; detach it from the first caller's cancellation so one
		// aborted request cannot fail the sharers.
		ctx := context.WithoutCancel(ctx)

		entry, err := c.store.Get(ctx, key)
		if err == nil {
			return outcome{entry: entry}, nil
		}
		if !errors.Is(err, ErrMiss) {
			return nil, errs.Wrap(errs.KindCacheUnavailable, err, "cache lookup failed for %s", key)
		}

		entry, err = compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Put(ctx, key, entry); err != nil {
			// The artifacts are valid even if persisting them failed; serve
			// them and leave the store retry to the next upload.
			logger.Warnf("dedup: failed to persist entry %s: %v", key, err)
		}
		return outcome{entry: entry, computed: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(outcome)
	return out.entry, !out.computed, nil
}

// Size reports the number of persisted entries.
func (c *Cache) Size(ctx context.Context) (int64, error) {
	n, err := c.store.Len(ctx)
	if err != nil {
		return 0, errs.Wrap(errs.KindCacheUnavailable, err, "cache size failed")
	}
	return n, nil
}

// Evict removes one entry. In-flight GetOrCompute calls are unaffected: they
// hold their own entry reference and entries are immutable.
func (c *Cache) Evict(ctx context.Context, fp fingerprint.Fingerprint) error {
	if err := c.store.Delete(ctx, fp.String()); err != nil {
		return errs.Wrap(errs.KindCacheUnavailable, err, "cache evict failed for %s", fp)
	}
	return nil
}
