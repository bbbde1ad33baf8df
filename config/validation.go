package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Message))
	}
	return b.String()
}

// Validate validates the complete configuration
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateVectorDB()...)
	errs = append(errs, c.validateRAG()...)
	errs = append(errs, c.validateRouter()...)
	errs = append(errs, c.validateSQL()...)
	errs = append(errs, c.validateCache()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateEmbedding() ValidationErrors {
	var errs ValidationErrors

	if c.Embedding.Provider == "" {
		errs = append(errs, ValidationError{
			Field:   "embedding.provider",
			Message: "embedding provider is required",
		})
	}

	if c.Embedding.Model == "" {
		errs = append(errs, ValidationError{
			Field:   "embedding.model",
			Message: "embedding model is required",
		})
	}

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, ValidationError{
			Field:   "embedding.dimensions",
			Message: fmt.Sprintf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions),
		})
	}

	return errs
}

func (c *Config) validateVectorDB() ValidationErrors {
	var errs ValidationErrors

	if c.VectorDB.Provider == "" {
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: "vectordb provider is required",
		})
	}

	switch strings.ToLower(c.VectorDB.Provider) {
	case "milvus":
		if c.VectorDB.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.host",
				Message: "vectordb host is required for milvus provider",
			})
		}
		if c.VectorDB.Collection == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.collection",
				Message: "collection name is required for milvus provider",
			})
		}
	case "memory", "":
	default:
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: fmt.Sprintf("unknown vectordb provider %q", c.VectorDB.Provider),
		})
	}

	return errs
}

func (c *Config) validateRAG() ValidationErrors {
	var errs ValidationErrors

	if c.RAG.TopK <= 0 {
		errs = append(errs, ValidationError{
			Field:   "rag.top_k",
			Message: fmt.Sprintf("rag.top_k must be positive, got %d", c.RAG.TopK),
		})
	}

	if c.RAG.TopK > 100 {
		errs = append(errs, ValidationError{
			Field:   "rag.top_k",
			Message: fmt.Sprintf("rag.top_k %d is too large (max recommended: 100)", c.RAG.TopK),
		})
	}

	if c.RAG.Threshold < 0 || c.RAG.Threshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "rag.threshold",
			Message: fmt.Sprintf("rag.threshold must be in [0, 1], got %.2f", c.RAG.Threshold),
		})
	}

	if c.RAG.Splitter.ChunkSize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "rag.splitter.chunk_size",
			Message: fmt.Sprintf("chunk_size must be positive, got %d", c.RAG.Splitter.ChunkSize),
		})
	}

	if c.RAG.Splitter.ChunkOverlap < 0 || c.RAG.Splitter.ChunkOverlap >= c.RAG.Splitter.ChunkSize {
		errs = append(errs, ValidationError{
			Field:   "rag.splitter.chunk_overlap",
			Message: fmt.Sprintf("chunk_overlap must be in [0, chunk_size), got %d", c.RAG.Splitter.ChunkOverlap),
		})
	}

	return errs
}

func (c *Config) validateRouter() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.Router.DefaultRoute) {
	case "", "sql", "documents", "hybrid":
	default:
		errs = append(errs, ValidationError{
			Field:   "router.default_route",
			Message: fmt.Sprintf("default_route must be one of sql, documents, hybrid; got %q", c.Router.DefaultRoute),
		})
	}

	return errs
}

func (c *Config) validateSQL() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.SQL.TicketStore) {
	case "", "sqlite", "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "sql.ticket_store",
			Message: fmt.Sprintf("ticket_store must be sqlite or memory, got %q", c.SQL.TicketStore),
		})
	}

	if strings.EqualFold(c.SQL.TicketStore, "sqlite") && c.SQL.TicketPath == "" {
		errs = append(errs, ValidationError{
			Field:   "sql.ticket_path",
			Message: "ticket_path is required for the sqlite ticket store",
		})
	}

	if c.SQL.MaxRows < 0 {
		errs = append(errs, ValidationError{
			Field:   "sql.max_rows",
			Message: fmt.Sprintf("max_rows must be non-negative, got %d", c.SQL.MaxRows),
		})
	}

	return errs
}

func (c *Config) validateCache() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.Cache.Store) {
	case "", "sqlite", "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "cache.store",
			Message: fmt.Sprintf("cache store must be sqlite or memory, got %q", c.Cache.Store),
		})
	}

	if strings.EqualFold(c.Cache.Store, "sqlite") && c.Cache.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "cache.path",
			Message: "path is required for the sqlite cache store",
		})
	}

	return errs
}
