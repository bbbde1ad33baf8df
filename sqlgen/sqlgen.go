package sqlgen

import (
	"context"
	"strings"

	"github.com/datakita/querybridge/errs"
	"github.com/datakita/querybridge/llm"
)

// Generation is a generated statement plus a natural-language explanation of
// what it returns, shown to the reviewer deciding on the ticket.
type Generation struct {
	SQL         string
	Explanation string
}

// Generator turns a natural-language question into a SQL statement.
type Generator interface {
	Generate(ctx context.Context, question string) (*Generation, error)
}

// LLMGenerator prompts a language model with the database schema documentation
// and golden question/SQL pairs.
type LLMGenerator struct {
	provider      llm.Provider
	schemaContext string
}

func NewLLMGenerator(provider llm.Provider, schemaContext string) *LLMGenerator {
	if strings.TrimSpace(schemaContext) == "" {
		schemaContext = defaultSchemaContext
	}
	return &LLMGenerator{provider: provider, schemaContext: schemaContext}
}

const systemInstruction = "You are a PostgreSQL expert. Generate a single read-only SELECT statement " +
	"answering the user's question against the documented schema. Reply with the SQL " +
	"inside a ```sql code fence, followed by one sentence explaining what the query " +
	"returns. Never generate INSERT, UPDATE, DELETE, DDL or multiple statements."

// defaultExplanation is used when the model omits the explanation sentence.
const defaultExplanation = "This SQL will retrieve data from your database. Please review before approving."

func (g *LLMGenerator) Generate(ctx context.Context, question string) (*Generation, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errs.New(errs.KindValidation, "question is empty")
	}

	var prompt strings.Builder
	prompt.WriteString(g.schemaContext)
	prompt.WriteString("\n\nQuestion: ")
	prompt.WriteString(question)

	raw, err := g.provider.GenerateCompletion(ctx, systemInstruction, prompt.String())
	if err != nil {
		return nil, errs.Wrap(errs.KindExternalFailure, err, "generate sql")
	}

	sql := ExtractSQL(raw)
	if sql == "" {
		return nil, errs.New(errs.KindExternalFailure, "model response contains no sql statement")
	}
	return &Generation{SQL: sql, Explanation: ExtractExplanation(raw)}, nil
}

// ExtractSQL pulls the statement out of a model response. A ```sql fence wins;
// a bare fence is accepted; otherwise the whole trimmed response is taken as
// the statement.
func ExtractSQL(response string) string {
	trimmed := strings.TrimSpace(response)
	for _, marker := range []string{"```sql", "```SQL", "```"} {
		start := strings.Index(trimmed, marker)
		if start < 0 {
			continue
		}
		rest := trimmed[start+len(marker):]
		end := strings.Index(rest, "```")
		if end < 0 {
			return strings.TrimSpace(rest)
		}
		return strings.TrimSpace(rest[:end])
	}
	return trimmed
}

// ExtractExplanation takes the prose surrounding the code fence as the
// reviewer-facing explanation, falling back to a fixed review prompt when the
// model returned only the statement.
func ExtractExplanation(response string) string {
	trimmed := strings.TrimSpace(response)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return defaultExplanation
	}
	before := strings.TrimSpace(trimmed[:start])
	rest := trimmed[start+3:]
	var after string
	if end := strings.Index(rest, "```"); end >= 0 {
		after = strings.TrimSpace(rest[end+3:])
	}
	switch {
	case after != "":
		return after
	case before != "":
		return before
	default:
		return defaultExplanation
	}
}
