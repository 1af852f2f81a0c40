package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/mcp-memoria/internal/router"
	"github.com/dshills/mcp-memoria/internal/search"
	"github.com/dshills/mcp-memoria/internal/writepipeline"
)

const (
	// ServerName is the MCP server name advertised during initialize.
	ServerName = "mcp-memoria"
	// ServerVersion is the current server version.
	ServerVersion = "1.0.0"
)

// Server wraps the MCP transport with the memory engine's dependencies.
// Dependency construction (opening stores, the embedder, the worker
// goroutine) lives in cmd/mcp-memoria, not here: Server only wires
// already-built components to tool handlers.
type Server struct {
	mcp      *server.MCPServer
	router   *router.Router
	pipeline *writepipeline.Pipeline
	search   *search.Engine
	cwd      string
}

// NewServer creates the MCP server and registers every memory tool.
// cwd drives project-scope discovery for tools that don't name a path
// explicitly.
func NewServer(r *router.Router, p *writepipeline.Pipeline, se *search.Engine, cwd string) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		router:   r,
		pipeline: p,
		search:   se,
		cwd:      cwd,
	}
	s.registerTools()
	return s
}

// Serve blocks on stdio until the client disconnects or ctx is done.
// Closing stores is the caller's responsibility (see cmd/mcp-memoria),
// since the same Router outlives the worker that also uses it.
func (s *Server) Serve(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(memorySaveTool(), s.handleMemorySave)
	s.mcp.AddTool(memorySearchTool(), s.handleMemorySearch)
	s.mcp.AddTool(memoryContextTool(), s.handleMemoryContext)
	s.mcp.AddTool(memoryListTool(), s.handleMemoryList)
	s.mcp.AddTool(memoryStatsTool(), s.handleMemoryStats)
	s.mcp.AddTool(memoryDeleteTool(), s.handleMemoryDelete)
	s.mcp.AddTool(memoryReindexTool(), s.handleMemoryReindex)
	s.mcp.AddTool(memoryCompactTool(), s.handleMemoryCompact)
}
