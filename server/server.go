package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/datakita/querybridge/approval"
	"github.com/datakita/querybridge/common/logger"
	"github.com/datakita/querybridge/config"
	"github.com/datakita/querybridge/errs"
	"github.com/datakita/querybridge/orchestrator"
	"github.com/datakita/querybridge/pipeline"
)

// Server exposes the query bridge over HTTP.
type Server struct {
	coordinator *pipeline.Coordinator
	orch        *orchestrator.Orchestrator
	workflow    *approval.Workflow
	cfg         *config.Config
	httpServer  *http.Server
}

func New(cfg *config.Config, coordinator *pipeline.Coordinator, orch *orchestrator.Orchestrator, workflow *approval.Workflow) *Server {
	s := &Server{
		coordinator: coordinator,
		orch:        orch,
		workflow:    workflow,
		cfg:         cfg,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the chi router with middleware and the API surface.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents/upload", s.handleUpload)
		r.Get("/documents", s.handleListDocuments)
		r.Delete("/documents/{fingerprint}", s.handleDeleteDocument)
		r.Post("/query/documents", s.handleQueryDocuments)
		r.Post("/sql/generate", s.handleGenerateSQL)
		r.Post("/sql/execute", s.handleExecuteSQL)
		r.Get("/sql/pending", s.handleListPending)
		r.Post("/query", s.handleQuery)
	})
	return r
}

// ListenAndServe blocks serving HTTP until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server: listening on %s", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Infof("http: %s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("http: encode response: %v", err)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errs.HTTPStatus(err), errorBody{Error: errorDetail{
		Kind:    string(errs.KindOf(err)),
		Message: errs.MessageOf(err),
	}})
}
