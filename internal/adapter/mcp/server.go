// Package mcp exposes the code intelligence runtime as Model Context
// Protocol tools and resources, served over stdio or streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	otelAdapter "github.com/Strob0t/CodeSense/internal/adapter/otel"
	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
	"github.com/Strob0t/CodeSense/internal/logger"
)

// Intel is the code intelligence surface the tools call. Implemented by
// *service.Runtime; tests substitute mocks.
type Intel interface {
	FindSymbol(ctx context.Context, relPath, namePath string) (*lspDomain.Symbol, error)
	DocumentSymbols(ctx context.Context, relPath string) ([]*lspDomain.Symbol, error)
	References(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.ReferenceGroup, error)
	Definition(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.Location, error)
	Hover(ctx context.Context, relPath string, pos lspDomain.Position) (*lspDomain.HoverResult, error)
	Completions(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.CompletionItem, error)
	IncomingCalls(ctx context.Context, relPath string, pos lspDomain.Position) ([]lspDomain.Location, error)
	WorkspaceSymbols(ctx context.Context, language, query string) ([]*lspDomain.Symbol, error)
	Diagnostics(ctx context.Context, relPath string) ([]lspDomain.Diagnostic, error)
	InvalidateFile(relPath string)
	Status() []lspDomain.ServerInfo
}

// ServerConfig identifies the MCP server to clients.
type ServerConfig struct {
	Addr    string // http mode listen address, optional
	APIKey  string // http mode bearer token, empty disables auth
	Name    string
	Version string
}

// ServerDeps carries the runtime dependencies for tool handlers.
type ServerDeps struct {
	Intel  Intel
	Logger *slog.Logger
}

// Server wires tools and resources onto an MCP protocol server.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
}

// NewServer creates an MCP server with all tools and resources registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}

// Start serves the MCP protocol over streamable HTTP in the background.
func (s *Server) Start() error {
	handler := AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("mcp http server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts down the HTTP transport if it was started.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// instrument wraps a tool handler with a span and a per-call request id.
func (s *Server) instrument(name string, h mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		ctx, span := otelAdapter.StartToolSpan(ctx, name)
		defer span.End()
		ctx = logger.WithRequestID(ctx, uuid.NewString())

		s.deps.Logger.Debug("tool call", "tool", name, "request_id", logger.RequestID(ctx))
		return h(ctx, req)
	}
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
