package orchestrator

import (
	"context"
	"fmt"

	"github.com/datakita/querybridge/approval"
	"github.com/datakita/querybridge/common/logger"
	"github.com/datakita/querybridge/config"
	"github.com/datakita/querybridge/embedding"
	"github.com/datakita/querybridge/errs"
	"github.com/datakita/querybridge/llm"
	"github.com/datakita/querybridge/router"
	"github.com/datakita/querybridge/schema"
	"github.com/datakita/querybridge/sqlgen"
	"github.com/datakita/querybridge/vectordb"
)

// Source is one retrieved chunk cited by a document answer.
type Source struct {
	Content  string  `json:"content"`
	Filename string  `json:"filename,omitempty"`
	Heading  string  `json:"heading,omitempty"`
	Score    float64 `json:"score"`
}

// DocumentAnswer is the document-retrieval side of a result.
type DocumentAnswer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
}

// SQLResult is the structured-data side of a result. Rows is populated only
// when the ticket was auto-approved and executed.
type SQLResult struct {
	Ticket *approval.Ticket `json:"ticket"`
	Rows   []map[string]any `json:"rows,omitempty"`
}

// UnifiedResult is the single answer shape for every route.
type UnifiedResult struct {
	Route     router.Route     `json:"route"`
	Question  string           `json:"question"`
	Matched   []string         `json:"matched,omitempty"`
	Documents *DocumentAnswer  `json:"documents,omitempty"`
	SQL       *SQLResult       `json:"sql,omitempty"`
	// Partial marks a hybrid answer where one side failed.
	Partial bool     `json:"partial,omitempty"`
	Notes   []string `json:"notes,omitempty"`
}

// Orchestrator routes a question and drives the matching answer paths.
type Orchestrator struct {
	router    *router.KeywordRouter
	embedder  embedding.Provider
	store     vectordb.VectorStoreProvider
	completer llm.Provider
	generator sqlgen.Generator
	workflow  *approval.Workflow
	rag       config.RAGConfig
}

func New(kr *router.KeywordRouter, embedder embedding.Provider, store vectordb.VectorStoreProvider,
	completer llm.Provider, generator sqlgen.Generator, workflow *approval.Workflow, rag config.RAGConfig) *Orchestrator {
	return &Orchestrator{
		router:    kr,
		embedder:  embedder,
		store:     store,
		completer: completer,
		generator: generator,
		workflow:  workflow,
		rag:       rag,
	}
}

// Answer classifies the question and produces a unified result. Hybrid
// questions succeed partially: if one side fails, the other side's answer is
// returned with the failure recorded in Notes. An error is returned only when
// every required side failed.
func (o *Orchestrator) Answer(ctx context.Context, question string, topK int, autoApprove bool) (*UnifiedResult, error) {
	decision, err := o.router.Route(question)
	if err != nil {
		return nil, err
	}
	logger.Debugf("orchestrator: routed %q to %s", question, decision.Route)

	result := &UnifiedResult{
		Route:    decision.Route,
		Question: question,
		Matched:  decision.Matched,
	}

	wantDocs := decision.Route == router.RouteDocuments || decision.Route == router.RouteHybrid
	wantSQL := decision.Route == router.RouteSQL || decision.Route == router.RouteHybrid

	var docErr, sqlErr error
	if wantDocs {
		result.Documents, docErr = o.answerFromDocuments(ctx, question, topK)
	}
	if wantSQL {
		result.SQL, sqlErr = o.answerFromSQL(ctx, question, autoApprove)
	}

	switch {
	case wantDocs && wantSQL:
		if docErr != nil && sqlErr != nil {
			return nil, errs.Wrap(errs.KindExternalFailure, sqlErr, "both answer paths failed (documents: %v)", docErr)
		}
		if docErr != nil {
			result.Partial = true
			result.Notes = append(result.Notes, fmt.Sprintf("document retrieval failed: %v", errs.MessageOf(docErr)))
		}
		if sqlErr != nil {
			result.Partial = true
			result.Notes = append(result.Notes, fmt.Sprintf("sql path failed: %v", errs.MessageOf(sqlErr)))
		}
	case docErr != nil:
		return nil, docErr
	case sqlErr != nil:
		return nil, sqlErr
	}

	if result.SQL != nil && result.SQL.Ticket.Status == approval.StatusPending {
		result.Notes = append(result.Notes, fmt.Sprintf("sql awaiting approval: ticket %s", result.SQL.Ticket.QueryID))
	}
	return result, nil
}

// AnswerDocuments runs the document retrieval path directly, bypassing the
// router.
func (o *Orchestrator) AnswerDocuments(ctx context.Context, question string, topK int) (*DocumentAnswer, error) {
	return o.answerFromDocuments(ctx, question, topK)
}

// GenerateTicket runs the SQL generation path directly, always leaving the
// ticket pending for explicit approval.
func (o *Orchestrator) GenerateTicket(ctx context.Context, question string) (*SQLResult, error) {
	return o.answerFromSQL(ctx, question, false)
}

func (o *Orchestrator) answerFromDocuments(ctx context.Context, question string, topK int) (*DocumentAnswer, error) {
	if topK <= 0 {
		topK = o.rag.TopK
	}
	vector, err := o.embedder.GetEmbedding(ctx, question)
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalFailure, err, "embed question")
	}
	results, err := o.store.SearchDocs(ctx, vector, &schema.SearchOptions{TopK: topK, Threshold: o.rag.Threshold})
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalFailure, err, "search documents")
	}
	if len(results) == 0 {
		return &DocumentAnswer{Answer: "No relevant documents found."}, nil
	}

	contexts := make([]string, len(results))
	sources := make([]Source, len(results))
	for i, r := range results {
		contexts[i] = r.Document.Content
		sources[i] = Source{
			Content:  r.Document.Content,
			Filename: r.Document.Filename,
			Heading:  r.Document.Heading,
			Score:    r.Score,
		}
	}

	answer, err := o.completer.GenerateCompletion(ctx, "", llm.BuildPrompt(question, contexts))
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalFailure, err, "generate answer")
	}
	return &DocumentAnswer{Answer: answer, Sources: sources}, nil
}

func (o *Orchestrator) answerFromSQL(ctx context.Context, question string, autoApprove bool) (*SQLResult, error) {
	gen, err := o.generator.Generate(ctx, question)
	if err != nil {
		return nil, err
	}
	ticket, err := o.workflow.Create(ctx, question, gen.SQL, gen.Explanation)
	if err != nil {
		return nil, err
	}
	if !autoApprove {
		return &SQLResult{Ticket: ticket}, nil
	}

	executed, rows, err := o.workflow.Execute(ctx, ticket.QueryID, true)
	if err != nil {
		// The ticket exists and stays pending; surface it so the caller can
		// retry the approval.
		logger.Warnf("orchestrator: auto-approve of %s failed: %v", ticket.QueryID, err)
		return &SQLResult{Ticket: ticket}, nil
	}
	return &SQLResult{Ticket: executed, Rows: rows}, nil
}
