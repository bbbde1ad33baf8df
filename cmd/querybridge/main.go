package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datakita/querybridge/approval"
	"github.com/datakita/querybridge/common/logger"
	"github.com/datakita/querybridge/config"
	"github.com/datakita/querybridge/dedup"
	"github.com/datakita/querybridge/embedding"
	"github.com/datakita/querybridge/llm"
	"github.com/datakita/querybridge/mcpserver"
	"github.com/datakita/querybridge/orchestrator"
	"github.com/datakita/querybridge/pipeline"
	"github.com/datakita/querybridge/router"
	"github.com/datakita/querybridge/server"
	"github.com/datakita/querybridge/sqlgen"
	"github.com/datakita/querybridge/sqlrunner"
	"github.com/datakita/querybridge/textsplitter"
	"github.com/datakita/querybridge/vectordb"
)

var (
	configPath string
	logLevel   string
	devMode    bool
)

func main() {
	root := &cobra.Command{
		Use:   "querybridge",
		Short: "Unified query service over documents and an analytical database",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return logger.Init(devMode, logLevel)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&devMode, "dev", false, "development logging")

	root.AddCommand(serveCmd(), mcpCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			comp, err := buildComponents(cmd.Context())
			if err != nil {
				return err
			}
			defer comp.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(comp.cfg, comp.coordinator, comp.orch, comp.workflow)
			return srv.ListenAndServe(ctx)
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			comp, err := buildComponents(cmd.Context())
			if err != nil {
				return err
			}
			defer comp.close()

			return mcpserver.ServeStdio(mcpserver.New(comp.coordinator, comp.orch, comp.workflow))
		},
	}
}

type components struct {
	cfg         *config.Config
	coordinator *pipeline.Coordinator
	orch        *orchestrator.Orchestrator
	workflow    *approval.Workflow

	closers []func() error
}

func (c *components) close() {
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}
	logger.Sync()
}

func buildComponents(ctx context.Context) (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	comp := &components{cfg: cfg}

	splitter, err := textsplitter.NewTextSplitter(&cfg.RAG.Splitter)
	if err != nil {
		return nil, err
	}
	embedder, err := embedding.NewProvider(&cfg.Embedding)
	if err != nil {
		return nil, err
	}
	completer, err := llm.NewProvider(&cfg.LLM)
	if err != nil {
		return nil, err
	}

	store, err := vectordb.NewProvider(ctx, &cfg.VectorDB, embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	comp.closers = append(comp.closers, store.Close)

	cacheStore, err := newCacheStore(cfg)
	if err != nil {
		return nil, err
	}
	cache := dedup.New(cacheStore)

	ticketStore, err := newTicketStore(cfg)
	if err != nil {
		return nil, err
	}
	runner, err := newRunner(cfg)
	if err != nil {
		return nil, err
	}
	if closer, ok := runner.(interface{ Close() error }); ok {
		comp.closers = append(comp.closers, closer.Close)
	}

	comp.workflow = approval.NewWorkflow(ticketStore, runner)
	comp.coordinator = pipeline.NewCoordinator(cache, splitter, embedder, store, cfg.Upload)
	comp.orch = orchestrator.New(
		router.New(cfg.Router),
		embedder,
		store,
		completer,
		sqlgen.NewLLMGenerator(completer, cfg.SQL.SchemaContext),
		comp.workflow,
		cfg.RAG,
	)
	return comp, nil
}

func newCacheStore(cfg *config.Config) (dedup.Store, error) {
	switch strings.ToLower(cfg.Cache.Store) {
	case "", "sqlite":
		return dedup.NewSQLiteStore(cfg.Cache.Path)
	case "memory":
		return dedup.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache store: %s", cfg.Cache.Store)
	}
}

func newTicketStore(cfg *config.Config) (approval.TicketStore, error) {
	switch strings.ToLower(cfg.SQL.TicketStore) {
	case "", "sqlite":
		return approval.NewSQLiteTicketStore(cfg.SQL.TicketPath)
	case "memory":
		return approval.NewMemoryTicketStore(), nil
	default:
		return nil, fmt.Errorf("unknown ticket store: %s", cfg.SQL.TicketStore)
	}
}

func newRunner(cfg *config.Config) (approval.Runner, error) {
	if cfg.SQL.DSN == "" {
		logger.Warnf("no sql dsn configured, approvals will fail until one is set")
		return sqlrunner.Unconfigured{}, nil
	}
	return sqlrunner.NewPostgresRunner(&cfg.SQL)
}
