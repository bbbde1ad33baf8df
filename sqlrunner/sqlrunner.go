package sqlrunner

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/datakita/querybridge/config"
)

// Runner executes a statement and returns rows as generic maps.
type Runner interface {
	Run(ctx context.Context, query string) ([]map[string]any, error)
}

// PostgresRunner runs approved statements against the analytical database.
// It assumes the statement already passed the read-only safety filter.
type PostgresRunner struct {
	db      *sql.DB
	maxRows int
}

func NewPostgresRunner(cfg *config.SQLConfig) (*PostgresRunner, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sql dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open analytical database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PostgresRunner{db: db, maxRows: cfg.MaxRows}, nil
}

func (r *PostgresRunner) Run(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		if r.maxRows > 0 && len(out) >= r.maxRows {
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (r *PostgresRunner) Close() error { return r.db.Close() }

// Unconfigured is the Runner used when no analytical database is set up.
// Tickets can still be created, listed and rejected; approvals fail until a
// DSN is configured.
type Unconfigured struct{}

func (Unconfigured) Run(context.Context, string) ([]map[string]any, error) {
	return nil, fmt.Errorf("no analytical database configured")
}
