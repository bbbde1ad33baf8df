package sqlgen

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datakita/querybridge/errs"
)

type stubLLM struct {
	response string
	prompt   string
	system   string
}

func (s *stubLLM) GenerateCompletion(_ context.Context, system, prompt string) (string, error) {
	s.system = system
	s.prompt = prompt
	return s.response, nil
}

func TestExtractSQL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"sql fence",
			"Here you go:\n```sql\nSELECT count(*) FROM orders;\n```\nLet me know.",
			"SELECT count(*) FROM orders;",
		},
		{
			"bare fence",
			"```\nSELECT 1\n```",
			"SELECT 1",
		},
		{
			"unterminated fence",
			"```sql\nSELECT 1",
			"SELECT 1",
		},
		{
			"no fence",
			"  SELECT name FROM customers  ",
			"SELECT name FROM customers",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractSQL(tc.in))
		})
	}
}

func TestExtractExplanation(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"prose after fence",
			"```sql\nSELECT count(*) FROM orders;\n```\nCounts every order in the database.",
			"Counts every order in the database.",
		},
		{
			"prose before fence only",
			"This counts the orders:\n```sql\nSELECT count(*) FROM orders;\n```",
			"This counts the orders:",
		},
		{
			"fence only falls back",
			"```sql\nSELECT 1\n```",
			defaultExplanation,
		},
		{
			"no fence falls back",
			"SELECT 1",
			defaultExplanation,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractExplanation(tc.in))
		})
	}
}

func TestGenerate_IncludesSchemaAndQuestion(t *testing.T) {
	stub := &stubLLM{response: "```sql\nSELECT COUNT(*) FROM customers;\n```\nCounts all customers."}
	g := NewLLMGenerator(stub, "")

	gen, err := g.Generate(context.Background(), "How many customers do we have?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM customers;", gen.SQL)
	assert.Equal(t, "Counts all customers.", gen.Explanation)

	assert.Contains(t, stub.prompt, "Table: customers")
	assert.Contains(t, stub.prompt, "How many customers do we have?")
	assert.Contains(t, stub.system, "read-only")
}

func TestGenerate_ExplanationNeverEmpty(t *testing.T) {
	stub := &stubLLM{response: "```sql\nSELECT 1\n```"}
	g := NewLLMGenerator(stub, "")

	gen, err := g.Generate(context.Background(), "anything")
	require.NoError(t, err)
	assert.NotEmpty(t, gen.Explanation)
}

func TestGenerate_CustomSchemaContext(t *testing.T) {
	stub := &stubLLM{response: "SELECT 1"}
	g := NewLLMGenerator(stub, "Table: fleet_vehicles")

	_, err := g.Generate(context.Background(), "how many vehicles")
	require.NoError(t, err)
	assert.Contains(t, stub.prompt, "fleet_vehicles")
	assert.False(t, strings.Contains(stub.prompt, "Table: customers"))
}

func TestGenerate_EmptyQuestion(t *testing.T) {
	g := NewLLMGenerator(&stubLLM{}, "")
	_, err := g.Generate(context.Background(), " ")
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestGenerate_EmptyResponse(t *testing.T) {
	g := NewLLMGenerator(&stubLLM{response: "   "}, "")
	_, err := g.Generate(context.Background(), "how many orders")
	assert.True(t, errs.IsKind(err, errs.KindExternalFailure))
}
