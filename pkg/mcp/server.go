// Package mcp exposes the workflow editor to AI assistants over the Model
// Context Protocol: querying and saving workflows, rendering diagrams, and
// walking diagnostic sessions. Every tool call is metered as an API call.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/repairkit/fixtree/internal/folders"
	"github.com/repairkit/fixtree/internal/license"
	"github.com/repairkit/fixtree/internal/session"
	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/internal/streaming"
	"github.com/repairkit/fixtree/internal/validation"
	"github.com/repairkit/fixtree/internal/workflows"
)

// FixtreeServerDeps holds the dependencies for creating a FixtreeServer.
type FixtreeServerDeps struct {
	Store     store.Store
	Changes   *store.ChangeLog
	Service   *workflows.Service
	Folders   *folders.Registry
	Sessions  *session.Walker
	Gate      *license.Gate
	Validator *validation.WorkflowValidator
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// FixtreeServer wraps an MCP server with fixtree-specific tool handlers.
type FixtreeServer struct {
	store     store.Store
	changes   *store.ChangeLog
	service   *workflows.Service
	folders   *folders.Registry
	walker    *session.Walker
	gate      *license.Gate
	validator *validation.WorkflowValidator
	hub       streaming.EventHub
	logger    *slog.Logger
	clients   *ClientRegistry
	mcpServer *server.MCPServer
}

// NewFixtreeServer creates a FixtreeServer with all 4 tools registered.
func NewFixtreeServer(deps FixtreeServerDeps) *FixtreeServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FixtreeServer{
		store:     deps.Store,
		changes:   deps.Changes,
		service:   deps.Service,
		folders:   deps.Folders,
		walker:    deps.Sessions,
		gate:      deps.Gate,
		validator: deps.Validator,
		hub:       deps.Hub,
		logger:    logger,
		clients:   NewClientRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"fixtree",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Fixtree manages appliance-repair diagnostic workflows. Use fixtree.query to list workflows, folders, sessions, or change history; fixtree.save to create or update a workflow; fixtree.diagram to render a workflow as ASCII art or Mermaid; and fixtree.diagnose to walk a diagnostic session step by step."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *FixtreeServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom
// transports.
func (s *FixtreeServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FixtreeServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: saveTool(), Handler: s.handleSave},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: diagnoseTool(), Handler: s.handleDiagnose},
	}
}

// --- Tool definitions ---

func queryTool() mcp.Tool {
	return mcp.NewTool("fixtree.query",
		mcp.WithDescription("Query workflows, folders, diagnostic sessions, or a workflow's change history"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "folders", "sessions", "changes"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (folder, workflow, status, limit)")),
		mcp.WithString("technician_id", mcp.Description("ID of the technician making the call")),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("fixtree.save",
		mcp.WithDescription("Create or update a diagnostic workflow. The workflow is validated first; validation errors are returned without saving"),
		mcp.WithObject("workflow", mcp.Required(),
			mcp.Description("SavedWorkflow object: {metadata {name, folder, isActive}, nodes, edges, nodeCounter}"),
		),
		mcp.WithString("technician_id", mcp.Description("ID of the technician making the call")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("fixtree.diagram",
		mcp.WithDescription("Render a workflow as a diagram. Returns ASCII art or Mermaid flowchart syntax, optionally overlaid with a session's progress"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
		mcp.WithString("folder", mcp.Description("Folder the workflow lives in (default: Default)")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid"),
			mcp.Description("Output format: ascii (text boxes) or mermaid (flowchart syntax)"),
		),
		mcp.WithString("session_id", mcp.Description("Overlay this session's visited nodes and answers")),
	)
}

func diagnoseTool() mcp.Tool {
	return mcp.NewTool("fixtree.diagnose",
		mcp.WithDescription("Walk a diagnostic session. Start a run on a workflow, advance it with an answer or measurement, check where it stands, or abandon it"),
		mcp.WithString("op", mcp.Required(),
			mcp.Enum("start", "advance", "status", "abandon"),
			mcp.Description("Operation to perform"),
		),
		mcp.WithString("workflow_id", mcp.Description("Workflow ID (required for start)")),
		mcp.WithString("session_id", mcp.Description("Session ID (required for advance, status, abandon)")),
		mcp.WithString("answer", mcp.Description("Chosen option for the current question node")),
		mcp.WithNumber("value", mcp.Description("Numeric reading for the current measurement or test node")),
		mcp.WithString("unit", mcp.Description("Unit of the reading, e.g. V or ohm")),
		mcp.WithObject("form_data", mcp.Description("Collected form payload for data-collection nodes")),
		mcp.WithString("technician_id", mcp.Description("ID of the technician making the call")),
	)
}
