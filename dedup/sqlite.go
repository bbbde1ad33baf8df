package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// entryRecord is the persisted row shape. Chunks and vectors are serialized
// together as JSON; the fingerprint is the primary key, which makes Put
// append-only across fingerprints at the schema level.
type entryRecord struct {
	Fingerprint string `gorm:"primaryKey;size:64"`
	Filename    string
	ByteSize    int64
	ChunkCount  int
	Payload     []byte
	CreatedAt   time.Time
}

func (entryRecord) TableName() string { return "cache_entries" }

type entryPayload struct {
	Chunks  []Chunk     `json:"chunks"`
	Vectors [][]float32 `json:"vectors"`
}

// SQLiteStore is the durable cache store. Entries survive process restarts.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the cache database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open cache store %s: %w", path, err)
	}
	if err := db.AutoMigrate(&entryRecord{}); err != nil {
		return nil, fmt.Errorf("migrate cache store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	var rec entryRecord
	err := s.db.WithContext(ctx).First(&rec, "fingerprint = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMiss
		}
		return nil, err
	}

	var payload entryPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &Entry{
		Chunks:    payload.Chunks,
		Vectors:   payload.Vectors,
		Filename:  rec.Filename,
		ByteSize:  rec.ByteSize,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, entry *Entry) error {
	payload, err := json.Marshal(entryPayload{Chunks: entry.Chunks, Vectors: entry.Vectors})
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	rec := entryRecord{
		Fingerprint: key,
		Filename:    entry.Filename,
		ByteSize:    entry.ByteSize,
		ChunkCount:  len(entry.Chunks),
		Payload:     payload,
		CreatedAt:   entry.CreatedAt,
	}
	// First writer wins; a concurrent duplicate insert is not an error.
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&entryRecord{}, "fingerprint = ?", key).Error
}

func (s *SQLiteStore) Len(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&entryRecord{}).Count(&n).Error
	return n, err
}
