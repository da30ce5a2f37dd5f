package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	lspDomain "github.com/Strob0t/CodeSense/internal/domain/lsp"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.findSymbolTool(),
		s.documentSymbolsTool(),
		s.findReferencesTool(),
		s.gotoDefinitionTool(),
		s.hoverTool(),
		s.completionsTool(),
		s.incomingCallsTool(),
		s.workspaceSymbolsTool(),
		s.diagnosticsTool(),
		s.fileChangedTool(),
		s.serverStatusTool(),
	)
}

func (s *Server) findSymbolTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("find_symbol",
		mcplib.WithDescription("Find a symbol in a file by its name path (e.g. 'Calc/add')"),
		mcplib.WithString("relative_path",
			mcplib.Required(),
			mcplib.Description("File path relative to the project root"),
		),
		mcplib.WithString("name_path",
			mcplib.Required(),
			mcplib.Description("Slash-joined symbol path within the file"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.instrument("find_symbol", s.handleFindSymbol),
	}
}

func (s *Server) documentSymbolsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_document_symbols",
		mcplib.WithDescription("Get the full symbol tree of a file"),
		mcplib.WithString("relative_path",
			mcplib.Required(),
			mcplib.Description("File path relative to the project root"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.instrument("get_document_symbols", s.handleDocumentSymbols),
	}
}

func (s *Server) findReferencesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("find_referencing_symbols",
		mcplib.WithDescription("Find all references to the symbol at a position, grouped by file and enclosing symbol kind"),
		mcplib.WithString("relative_path",
			mcplib.Required(),
			mcplib.Description("File path relative to the project root"),
		),
		mcplib.WithNumber("line",
			mcplib.Required(),
			mcplib.Description("Zero-based line of the symbol"),
		),
		mcplib.WithNumber("character",
			mcplib.Required(),
			mcplib.Description("Zero-based character of the symbol"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.instrument("find_referencing_symbols", s.handleFindReferences),
	}
}

func (s *Server) gotoDefinitionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("goto_definition",
		mcplib.WithDescription("Resolve the definition of the symbol at a position; real source is preferred over vendored copies"),
		mcplib.WithString("relative_path",
			mcplib.Required(),
			mcplib.Description("File path relative to the project root"),
		),
		mcplib.WithNumber("line",
			mcplib.Required(),
			mcplib.Description("Zero-based line of the symbol"),
		),
		mcplib.WithNumber("character",
			mcplib.Required(),
			mcplib.Description("Zero-based character of the symbol"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.instrument("goto_definition", s.handleGotoDefinition),
	}
}

func (s *Server) hoverTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("hover",
		mcplib.WithDescription("Get hover documentation for the symbol at a position"),
		mcplib.WithString("relative_path",
			mcplib.Required(),
			mcplib.Description("File path relative to the project root"),
		),
		mcplib.WithNumber("line",
			mcplib.Required(),
			mcplib.Description("Zero-based line of the symbol"),
		),
		mcplib.WithNumber("character",
			mcplib.Required(),
			mcplib.Description("Zero-based character of the symbol"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.instrument("hover", s.handleHover),
	}
}

func (s *Server) completionsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("completions",
		mcplib.WithDescription("Get completion suggestions at a position"),
		mcplib.WithString("relative_path",
			mcplib.Required(),
			mcplib.Description("File path relative to the project root"),
		),
		mcplib.WithNumber("line",
			mcplib.Required(),
			mcplib.Description("Zero-based line of the cursor"),
		),
		mcplib.WithNumber("character",
			mcplib.Required(),
			mcplib.Description("Zero-based character of the cursor"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.instrument("completions", s.handleCompletions),
	}
}

func (s *Server) incomingCallsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("incoming_calls",
		mcplib.WithDescription("Find callers of the function at a position, degrading to a reference scan where the server lacks call hierarchy"),
		mcplib.WithString("relative_path",
			mcplib.Required(),
			mcplib.Description("File path relative to the project root"),
		),
		mcplib.WithNumber("line",
			mcplib.Required(),
			mcplib.Description("Zero-based line of the function"),
		),
		mcplib.WithNumber("character",
			mcplib.Required(),
			mcplib.Description("Zero-based character of the function"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.instrument("incoming_calls", s.handleIncomingCalls),
	}
}

func (s *Server) workspaceSymbolsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("workspace_symbols",
		mcplib.WithDescription("Search symbols across the whole workspace for one language"),
		mcplib.WithString("language",
			mcplib.Required(),
			mcplib.Description("Language whose server to query (e.g. go, python)"),
		),
		mcplib.WithString("query",
			mcplib.Description("Symbol name query; empty lists everything the server reports"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.instrument("workspace_symbols", s.handleWorkspaceSymbols),
	}
}

func (s *Server) diagnosticsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_diagnostics",
		mcplib.WithDescription("Get compiler/linter diagnostics for a file, or the whole workspace when no path is given"),
		mcplib.WithString("relative_path",
			mcplib.Description("File path relative to the project root, optional"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.instrument("get_diagnostics", s.handleDiagnostics),
	}
}

func (s *Server) fileChangedTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("notify_file_changed",
		mcplib.WithDescription("Tell the runtime a file was edited so cached symbols for it are dropped"),
		mcplib.WithString("relative_path",
			mcplib.Required(),
			mcplib.Description("File path relative to the project root"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.instrument("notify_file_changed", s.handleFileChanged),
	}
}

func (s *Server) serverStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("server_status",
		mcplib.WithDescription("Get the lifecycle state of every running language server"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.instrument("server_status", s.handleServerStatus),
	}
}

// --- Handlers ---

func (s *Server) handleFindSymbol(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("code intelligence not configured"), nil
	}
	relPath, namePath, errRes := stringArgs(req, "relative_path", "name_path")
	if errRes != nil {
		return errRes, nil
	}
	sym, err := s.deps.Intel.FindSymbol(ctx, relPath, namePath)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to find symbol %s", namePath), err), nil
	}
	if sym == nil {
		return mcplib.NewToolResultText("null"), nil
	}
	return marshalResult(sym)
}

func (s *Server) handleDocumentSymbols(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("code intelligence not configured"), nil
	}
	relPath, errRes := stringArg(req, "relative_path")
	if errRes != nil {
		return errRes, nil
	}
	roots, err := s.deps.Intel.DocumentSymbols(ctx, relPath)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get symbols for %s", relPath), err), nil
	}
	return marshalResult(roots)
}

func (s *Server) handleFindReferences(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("code intelligence not configured"), nil
	}
	relPath, pos, errRes := positionArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	groups, err := s.deps.Intel.References(ctx, relPath, pos)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to find references", err), nil
	}
	return marshalResult(groups)
}

func (s *Server) handleGotoDefinition(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("code intelligence not configured"), nil
	}
	relPath, pos, errRes := positionArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	locs, err := s.deps.Intel.Definition(ctx, relPath, pos)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to resolve definition", err), nil
	}
	return marshalResult(locs)
}

func (s *Server) handleHover(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("code intelligence not configured"), nil
	}
	relPath, pos, errRes := positionArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	out, err := s.deps.Intel.Hover(ctx, relPath, pos)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to get hover", err), nil
	}
	if out == nil {
		return mcplib.NewToolResultText("null"), nil
	}
	return marshalResult(out)
}

func (s *Server) handleCompletions(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("code intelligence not configured"), nil
	}
	relPath, pos, errRes := positionArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	items, err := s.deps.Intel.Completions(ctx, relPath, pos)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to get completions", err), nil
	}
	return marshalResult(items)
}

func (s *Server) handleIncomingCalls(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("code intelligence not configured"), nil
	}
	relPath, pos, errRes := positionArgs(req)
	if errRes != nil {
		return errRes, nil
	}
	locs, err := s.deps.Intel.IncomingCalls(ctx, relPath, pos)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to get incoming calls", err), nil
	}
	return marshalResult(locs)
}

func (s *Server) handleWorkspaceSymbols(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("code intelligence not configured"), nil
	}
	language, errRes := stringArg(req, "language")
	if errRes != nil {
		return errRes, nil
	}
	query, _ := req.GetArguments()["query"].(string)
	syms, err := s.deps.Intel.WorkspaceSymbols(ctx, language, query)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to search workspace symbols", err), nil
	}
	return marshalResult(syms)
}

func (s *Server) handleDiagnostics(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("code intelligence not configured"), nil
	}
	relPath, _ := req.GetArguments()["relative_path"].(string)
	diags, err := s.deps.Intel.Diagnostics(ctx, relPath)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to get diagnostics", err), nil
	}
	if diags == nil {
		diags = []lspDomain.Diagnostic{}
	}
	return marshalResult(diags)
}

func (s *Server) handleFileChanged(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("code intelligence not configured"), nil
	}
	relPath, errRes := stringArg(req, "relative_path")
	if errRes != nil {
		return errRes, nil
	}
	s.deps.Intel.InvalidateFile(relPath)
	return mcplib.NewToolResultText("ok"), nil
}

func (s *Server) handleServerStatus(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("code intelligence not configured"), nil
	}
	return marshalResult(s.deps.Intel.Status())
}

// --- Argument helpers ---

func stringArg(req mcplib.CallToolRequest, key string) (string, *mcplib.CallToolResult) { //nolint:gocritic // hugeParam: mcp-go handler signature
	val, ok := req.GetArguments()[key].(string)
	if !ok || val == "" {
		return "", mcplib.NewToolResultError(key + " is required")
	}
	return val, nil
}

func stringArgs(req mcplib.CallToolRequest, key1, key2 string) (string, string, *mcplib.CallToolResult) { //nolint:gocritic // hugeParam: mcp-go handler signature
	v1, errRes := stringArg(req, key1)
	if errRes != nil {
		return "", "", errRes
	}
	v2, errRes := stringArg(req, key2)
	if errRes != nil {
		return "", "", errRes
	}
	return v1, v2, nil
}

// positionArgs extracts the common (relative_path, line, character) triple.
func positionArgs(req mcplib.CallToolRequest) (string, lspDomain.Position, *mcplib.CallToolResult) { //nolint:gocritic // hugeParam: mcp-go handler signature
	relPath, errRes := stringArg(req, "relative_path")
	if errRes != nil {
		return "", lspDomain.Position{}, errRes
	}
	args := req.GetArguments()
	line, ok := args["line"].(float64)
	if !ok {
		return "", lspDomain.Position{}, mcplib.NewToolResultError("line is required")
	}
	character, ok := args["character"].(float64)
	if !ok {
		return "", lspDomain.Position{}, mcplib.NewToolResultError("character is required")
	}
	return relPath, lspDomain.Position{Line: int(line), Character: int(character)}, nil
}

func marshalResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return toolResultJSON(string(data)), nil
}
