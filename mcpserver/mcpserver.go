package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/datakita/querybridge/approval"
	"github.com/datakita/querybridge/orchestrator"
	"github.com/datakita/querybridge/pipeline"
)

const Version = "1.0.0"

// New builds the MCP server exposing document ingestion, unified querying and
// the SQL approval workflow as tools.
func New(coordinator *pipeline.Coordinator, orch *orchestrator.Orchestrator, workflow *approval.Workflow) *server.MCPServer {
	s := server.NewMCPServer(
		"querybridge",
		Version,
		server.WithInstructions("Query bridge over a document knowledge base and an analytical SQL database. Generated SQL requires approval before execution."),
	)

	s.AddTool(
		mcp.NewTool("upload-document",
			mcp.WithDescription("Ingest a document into the knowledge base. Identical content is deduplicated by fingerprint."),
			mcp.WithString("content", mcp.Required(), mcp.Description("Raw document text")),
			mcp.WithString("filename", mcp.Description("Display name for the document")),
		),
		handleUpload(coordinator),
	)

	s.AddTool(
		mcp.NewTool("list-documents",
			mcp.WithDescription("List stored document chunks with their filenames and headings."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of chunks to return")),
		),
		handleListDocuments(coordinator),
	)

	s.AddTool(
		mcp.NewTool("delete-document",
			mcp.WithDescription("Delete all chunks of a document by its content fingerprint."),
			mcp.WithString("fingerprint", mcp.Required(), mcp.Description("Hex fingerprint from upload-document")),
		),
		handleDeleteDocument(coordinator),
	)

	s.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription("Ask a question. It is routed to document retrieval, SQL generation, or both."),
			mcp.WithString("question", mcp.Required(), mcp.Description("Natural language question")),
			mcp.WithNumber("top_k", mcp.Description("Number of document chunks to retrieve")),
			mcp.WithBoolean("auto_approve", mcp.Description("Execute generated SQL immediately instead of leaving it pending")),
		),
		handleQuery(orch),
	)

	s.AddTool(
		mcp.NewTool("generate-sql",
			mcp.WithDescription("Generate a read-only SQL statement for a question and create a pending approval ticket."),
			mcp.WithString("question", mcp.Required(), mcp.Description("Natural language question about the database")),
		),
		handleGenerateSQL(orch),
	)

	s.AddTool(
		mcp.NewTool("execute-sql",
			mcp.WithDescription("Resolve a pending SQL ticket: approve to execute it, or reject it."),
			mcp.WithString("query_id", mcp.Required(), mcp.Description("Ticket identifier from generate-sql")),
			mcp.WithBoolean("approved", mcp.Required(), mcp.Description("true executes the statement, false rejects the ticket")),
		),
		handleExecuteSQL(workflow),
	)

	s.AddTool(
		mcp.NewTool("list-pending-sql",
			mcp.WithDescription("List SQL tickets awaiting approval, oldest first."),
		),
		handleListPending(workflow),
	)

	return s
}

// ServeStdio runs the server over stdio until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func handleUpload(coordinator *pipeline.Coordinator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filename := req.GetString("filename", "")

		result, err := coordinator.Process(ctx, []byte(content), filename)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(result)
	}
}

func handleListDocuments(coordinator *pipeline.Coordinator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs, err := coordinator.ListDocuments(ctx, req.GetInt("limit", 100))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"documents": docs})
	}
}

func handleDeleteDocument(coordinator *pipeline.Coordinator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		fp, err := req.RequireString("fingerprint")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := coordinator.DeleteDocument(ctx, fp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]string{"deleted": fp})
	}
}

func handleQuery(orch *orchestrator.Orchestrator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		topK := req.GetInt("top_k", 0)
		autoApprove := req.GetBool("auto_approve", false)

		result, err := orch.Answer(ctx, question, topK, autoApprove)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(result)
	}
}

func handleGenerateSQL(orch *orchestrator.Orchestrator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := orch.GenerateTicket(ctx, question)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(result)
	}
}

func handleExecuteSQL(workflow *approval.Workflow) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryID, err := req.RequireString("query_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		approved, err := req.RequireBool("approved")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ticket, rows, err := workflow.Execute(ctx, queryID, approved)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"ticket": ticket, "rows": rows})
	}
}

func handleListPending(workflow *approval.Workflow) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pending, err := workflow.ListPending(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"pending": pending})
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}
