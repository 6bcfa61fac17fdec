package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/macta/internal/analysis"
)

// MactaServerDeps holds the dependencies for creating a MactaServer.
type MactaServerDeps struct {
	Service *analysis.Service
	Logger  *slog.Logger
}

// MactaServer wraps an MCP server with process-analysis tool handlers.
type MactaServer struct {
	service   *analysis.Service
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewMactaServer creates a new MactaServer with all tools registered.
func NewMactaServer(deps MactaServerDeps) *MactaServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &MactaServer{
		service: deps.Service,
		logger:  logger,
	}

	mcpSrv := server.NewMCPServer(
		"macta",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("MACTA analyses BPMN business processes. Use macta.import to store a BPMN document, macta.document to generate its operating procedure, macta.lint to check its structure and gateway conditions, macta.simulate to run an arrival-rate simulation, macta.query to project a stored simulation result with jq, and macta.diagram to draw the process."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *MactaServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *MactaServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *MactaServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: importTool(), Handler: s.handleImport},
		{Tool: documentTool(), Handler: s.handleDocument},
		{Tool: lintTool(), Handler: s.handleLint},
		{Tool: simulateTool(), Handler: s.handleSimulate},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func importTool() mcp.Tool {
	return mcp.NewTool("macta.import",
		mcp.WithDescription("Import and store a BPMN 2.0 process document"),
		mcp.WithString("xml", mcp.Required(), mcp.Description("BPMN XML text")),
		mcp.WithString("process_id", mcp.Description("ID to store the process under (default: the id declared in the document)")),
		mcp.WithString("name", mcp.Description("Display name (default: the process name in the document)")),
	)
}

func documentTool() mcp.Tool {
	return mcp.NewTool("macta.document",
		mcp.WithDescription("Generate the operating procedure of a process"),
		mcp.WithString("process_id", mcp.Description("ID of a stored process")),
		mcp.WithString("xml", mcp.Description("BPMN XML text to document without storing it")),
		mcp.WithString("format", mcp.Enum("json", "markdown"), mcp.Description("Output format (default: json)")),
	)
}

func lintTool() mcp.Tool {
	return mcp.NewTool("macta.lint",
		mcp.WithDescription("Check a BPMN document's structure and gateway conditions"),
		mcp.WithString("xml", mcp.Required(), mcp.Description("BPMN XML text")),
		mcp.WithObject("variables", mcp.Description("Sample process variables used to route every gateway")),
	)
}

func simulateTool() mcp.Tool {
	return mcp.NewTool("macta.simulate",
		mcp.WithDescription("Run an arrival-rate simulation of a stored process"),
		mcp.WithString("process_id", mcp.Required(), mcp.Description("ID of a stored process with allocated resources")),
		mcp.WithString("config_type", mcp.Required(), mcp.Description("Stored config name or preset: standard, peak, batch, variable")),
		mcp.WithNumber("simulation_hours", mcp.Required(), mcp.Description("Simulated horizon in hours")),
		mcp.WithString("seed", mcp.Description("Random seed for a reproducible run")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("macta.query",
		mcp.WithDescription("Query simulation history, or project a stored result with a jq expression"),
		mcp.WithString("run_id", mcp.Description("Simulation run ID; omit to list runs")),
		mcp.WithString("jq", mcp.Description("jq expression applied to the stored simulation response")),
		mcp.WithObject("filter", mcp.Description("Run list filter (process_id, status, limit, offset)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("macta.diagram",
		mcp.WithDescription("Draw a stored process. Returns Mermaid flowchart syntax or a base64-encoded PNG image"),
		mcp.WithString("process_id", mcp.Required(), mcp.Description("ID of a stored process")),
		mcp.WithString("run_id", mcp.Description("Highlight the bottlenecks found by this simulation run")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("mermaid", "image"),
			mcp.Description("Output format: mermaid (flowchart syntax) or image (base64 PNG)"),
		),
	)
}
