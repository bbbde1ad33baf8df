package router

import (
	"strings"

	"github.com/datakita/querybridge/config"
	"github.com/datakita/querybridge/errs"
)

// Route is the classification assigned to a question.
type Route string

const (
	RouteSQL       Route = "sql"
	RouteDocuments Route = "documents"
	RouteHybrid    Route = "hybrid"
)

// Decision represents the routing decision for a question. It is produced
// fresh per query and never persisted.
type Decision struct {
	Route    Route    `json:"route"`
	Matched  []string `json:"matched,omitempty"` // keyword evidence, in match order
	Question string   `json:"question"`
}

// KeywordRouter classifies questions by case-insensitive phrase matching
// against three disjoint-priority tables. It is a pure function of the
// question text and the configured tables: no state, no inference, fully
// auditable.
type KeywordRouter struct {
	sqlTable      []string
	documentTable []string
	hybridTable   []string
	defaultRoute  Route
}

// Default keyword tables, used when the configuration leaves them empty.
// They are tuned for analytical questions over an operational database plus
// an unstructured knowledge base.
var (
	defaultSQLKeywords = []string{
		"how many", "count", "total", "sum", "average", "revenue",
		"orders", "customers", "products", "sales", "top ", "list all",
		"by segment", "by category", "by country", "group by",
		"highest", "lowest", "most recent orders",
	}
	defaultDocumentKeywords = []string{
		"policy", "policies", "how do i", "how to", "what is",
		"explain", "describe", "documentation", "guide", "manual",
		"procedure", "return", "refund", "warranty", "shipping policy",
		"terms", "about",
	}
	defaultHybridConnectives = []string{
		"and explain", "and describe", "and tell me about",
		"and summarize", "and what is", "along with an explanation",
	}
)

// New builds a KeywordRouter from configuration, falling back to the
// compiled-in tables and the documents default route.
func New(cfg config.RouterConfig) *KeywordRouter {
	r := &KeywordRouter{
		sqlTable:      cfg.SQLKeywords,
		documentTable: cfg.DocumentKeywords,
		hybridTable:   cfg.HybridConnectives,
		defaultRoute:  RouteDocuments,
	}
	if len(r.sqlTable) == 0 {
		r.sqlTable = defaultSQLKeywords
	}
	if len(r.documentTable) == 0 {
		r.documentTable = defaultDocumentKeywords
	}
	if len(r.hybridTable) == 0 {
		r.hybridTable = defaultHybridConnectives
	}
	switch strings.ToLower(cfg.DefaultRoute) {
	case "sql":
		r.defaultRoute = RouteSQL
	case "hybrid":
		r.defaultRoute = RouteHybrid
	case "", "documents":
	}
	return r
}

// Route classifies a question. The priority order is total and reproducible:
//  1. a hybrid connective wins outright (explicit combination intent),
//  2. SQL-only matches route to SQL,
//  3. document-only matches route to DOCUMENTS,
//  4. matches in both tables are treated conservatively as HYBRID,
//  5. no match falls back to the configured default route.
func (r *KeywordRouter) Route(question string) (*Decision, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errs.New(errs.KindValidation, "question is empty")
	}

	lower := strings.ToLower(question)

	if hit, ok := matchFirst(lower, r.hybridTable); ok {
		// A connective only signals combination intent when a data-request
		// phrase is also present; "and explain" inside a pure documentation
		// question is not a hybrid signal.
		if sqlHits := matchAll(lower, r.sqlTable); len(sqlHits) > 0 {
			return &Decision{
				Route:    RouteHybrid,
				Matched:  append(sqlHits, hit),
				Question: question,
			}, nil
		}
	}

	sqlHits := matchAll(lower, r.sqlTable)
	docHits := matchAll(lower, r.documentTable)

	switch {
	case len(sqlHits) > 0 && len(docHits) == 0:
		return &Decision{Route: RouteSQL, Matched: sqlHits, Question: question}, nil
	case len(docHits) > 0 && len(sqlHits) == 0:
		return &Decision{Route: RouteDocuments, Matched: docHits, Question: question}, nil
	case len(sqlHits) > 0 && len(docHits) > 0:
		// Ambiguous signal: ask both sides rather than guess.
		return &Decision{Route: RouteHybrid, Matched: append(sqlHits, docHits...), Question: question}, nil
	default:
		return &Decision{Route: r.defaultRoute, Question: question}, nil
	}
}

func matchFirst(lower string, table []string) (string, bool) {
	for _, kw := range table {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

func matchAll(lower string, table []string) []string {
	var hits []string
	for _, kw := range table {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			hits = append(hits, kw)
		}
	}
	return hits
}
