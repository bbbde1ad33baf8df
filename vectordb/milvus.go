package vectordb

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/datakita/querybridge/config"
	"github.com/datakita/querybridge/schema"
)

const (
	fieldID          = "id"
	fieldFingerprint = "fingerprint"
	fieldFilename    = "filename"
	fieldHeading     = "heading"
	fieldChunkIndex  = "chunk_index"
	fieldContent     = "content"
	fieldCreatedAt   = "created_at"
	fieldVector      = "vector"
)

// MilvusStore implements VectorStoreProvider on a Milvus collection.
type MilvusStore struct {
	client     client.Client
	collection string
	dimensions int
}

func NewMilvusStore(ctx context.Context, cfg *config.VectorDBConfig, dimensions int) (*MilvusStore, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:  fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusStore{client: c, collection: cfg.Collection, dimensions: dimensions}
	if err := s.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

func (s *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !has {
		sch := entity.NewSchema().
			WithName(s.collection).
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(fieldFingerprint).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldFilename).WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
			WithField(entity.NewField().WithName(fieldHeading).WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
			WithField(entity.NewField().WithName(fieldChunkIndex).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldContent).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName(fieldCreatedAt).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldVector).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dimensions)))
		if err := s.client.CreateCollection(ctx, sch, 1); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		index, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
		if err != nil {
			return fmt.Errorf("build index spec: %w", err)
		}
		if err := s.client.CreateIndex(ctx, s.collection, fieldVector, index, false); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusStore) AddDocs(ctx context.Context, docs []*schema.Document) error {
	if len(docs) == 0 {
		return nil
	}
	ids := make([]string, len(docs))
	fingerprints := make([]string, len(docs))
	filenames := make([]string, len(docs))
	headings := make([]string, len(docs))
	indexes := make([]int64, len(docs))
	contents := make([]string, len(docs))
	createdAts := make([]int64, len(docs))
	vectors := make([][]float32, len(docs))
	for i, doc := range docs {
		if len(doc.Vector) != s.dimensions {
			return fmt.Errorf("doc %s vector has %d dimensions, want %d", doc.ID, len(doc.Vector), s.dimensions)
		}
		ids[i] = doc.ID
		fingerprints[i] = doc.Fingerprint
		filenames[i] = doc.Filename
		headings[i] = doc.Heading
		indexes[i] = int64(doc.ChunkIndex)
		contents[i] = doc.Content
		createdAts[i] = doc.CreatedAt.Unix()
		vectors[i] = doc.Vector
	}

	_, err := s.client.Insert(ctx, s.collection, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldFingerprint, fingerprints),
		entity.NewColumnVarChar(fieldFilename, filenames),
		entity.NewColumnVarChar(fieldHeading, headings),
		entity.NewColumnInt64(fieldChunkIndex, indexes),
		entity.NewColumnVarChar(fieldContent, contents),
		entity.NewColumnInt64(fieldCreatedAt, createdAts),
		entity.NewColumnFloatVector(fieldVector, s.dimensions, vectors),
	)
	if err != nil {
		return fmt.Errorf("insert docs: %w", err)
	}
	return nil
}

func (s *MilvusStore) SearchDocs(ctx context.Context, vector []float32, opts *schema.SearchOptions) ([]*schema.SearchResult, error) {
	topK := 10
	if opts != nil && opts.TopK > 0 {
		topK = opts.TopK
	}
	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("build search param: %w", err)
	}
	outputFields := []string{fieldID, fieldFingerprint, fieldFilename, fieldHeading, fieldChunkIndex, fieldContent, fieldCreatedAt}

	results, err := s.client.Search(ctx, s.collection, nil, "", outputFields,
		[]entity.Vector{entity.FloatVector(vector)}, fieldVector, entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("search docs: %w", err)
	}

	var out []*schema.SearchResult
	for _, result := range results {
		docs, err := docsFromColumns(result.Fields, result.ResultCount)
		if err != nil {
			return nil, err
		}
		for i, doc := range docs {
			score := float64(result.Scores[i])
			if opts != nil && opts.Threshold > 0 && score < opts.Threshold {
				continue
			}
			out = append(out, &schema.SearchResult{Document: doc, Score: score})
		}
	}
	return out, nil
}

func (s *MilvusStore) CountByFingerprint(ctx context.Context, fingerprint string) (int64, error) {
	rs, err := s.client.Query(ctx, s.collection, nil,
		fmt.Sprintf("%s == %q", fieldFingerprint, fingerprint), []string{fieldID})
	if err != nil {
		return 0, fmt.Errorf("query by fingerprint: %w", err)
	}
	col := rs.GetColumn(fieldID)
	if col == nil {
		return 0, nil
	}
	return int64(col.Len()), nil
}

func (s *MilvusStore) DeleteByFingerprint(ctx context.Context, fingerprint string) error {
	expr := fmt.Sprintf("%s == %q", fieldFingerprint, fingerprint)
	if err := s.client.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("delete by fingerprint: %w", err)
	}
	return nil
}

func (s *MilvusStore) ListDocs(ctx context.Context, limit int) ([]*schema.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	outputFields := []string{fieldID, fieldFingerprint, fieldFilename, fieldHeading, fieldChunkIndex, fieldContent, fieldCreatedAt}
	rs, err := s.client.Query(ctx, s.collection, nil, fmt.Sprintf("%s != \"\"", fieldID),
		outputFields, client.WithLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("list docs: %w", err)
	}
	count := 0
	if col := rs.GetColumn(fieldID); col != nil {
		count = col.Len()
	}
	return docsFromColumns(rs, count)
}

func (s *MilvusStore) Close() error { return s.client.Close() }

func docsFromColumns(rs client.ResultSet, count int) ([]*schema.Document, error) {
	docs := make([]*schema.Document, 0, count)
	for i := 0; i < count; i++ {
		doc := &schema.Document{}
		var err error
		if doc.ID, err = stringAt(rs, fieldID, i); err != nil {
			return nil, err
		}
		if doc.Fingerprint, err = stringAt(rs, fieldFingerprint, i); err != nil {
			return nil, err
		}
		if doc.Filename, err = stringAt(rs, fieldFilename, i); err != nil {
			return nil, err
		}
		if doc.Heading, err = stringAt(rs, fieldHeading, i); err != nil {
			return nil, err
		}
		if doc.Content, err = stringAt(rs, fieldContent, i); err != nil {
			return nil, err
		}
		if idx, err := intAt(rs, fieldChunkIndex, i); err == nil {
			doc.ChunkIndex = int(idx)
		}
		if ts, err := intAt(rs, fieldCreatedAt, i); err == nil {
			doc.CreatedAt = time.Unix(ts, 0)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func stringAt(rs client.ResultSet, field string, idx int) (string, error) {
	col := rs.GetColumn(field)
	if col == nil {
		return "", fmt.Errorf("result missing column %s", field)
	}
	return col.GetAsString(idx)
}

func intAt(rs client.ResultSet, field string, idx int) (int64, error) {
	col := rs.GetColumn(field)
	if col == nil {
		return 0, fmt.Errorf("result missing column %s", field)
	}
	return col.GetAsInt64(idx)
}
