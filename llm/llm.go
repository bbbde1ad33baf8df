package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/datakita/querybridge/config"
)

// Provider generates text completions.
type Provider interface {
	// GenerateCompletion produces a completion for the prompt, optionally
	// steered by a system instruction. An empty system string is allowed.
	GenerateCompletion(ctx context.Context, system, prompt string) (string, error)
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg *config.LLMConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// BuildPrompt assembles a grounded question prompt from retrieved contexts.
// The model is told to answer only from the provided material.
func BuildPrompt(query string, contexts []string) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. ")
	b.WriteString("If the context does not contain the answer, say so.\n\n")
	b.WriteString("Context:\n")
	for i, c := range contexts {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	return b.String()
}
